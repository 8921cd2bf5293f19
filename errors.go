/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Recoverable game errors, reported only to the offending connection as an
// "error" event. Grouped by cause: bad input, capacity, game status, host
// authority, membership. None of these terminate the connection.
var (
	ErrInvalidRoomID = errors.New("Invalid room ID.")
	ErrInvalidName   = errors.New("Please provide a nickname of at most 50 characters.")

	ErrRoomFull  = errors.New("Room is full.")
	ErrNameTaken = errors.New("That nickname is already taken.")

	ErrAlreadyStarted = errors.New("The game has already started.")
	ErrNotStarted     = errors.New("The game has not started yet.")

	ErrNotHost = errors.New("Only the host can start the game.")

	ErrNotInGame  = errors.New("Not in a game.")
	ErrRoomClosed = errors.New("Room no longer exists.")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
