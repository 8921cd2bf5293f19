package main

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"
)

const (
	maxParagraphBytes = 16 * 1024
	fallbackWordCount = 50
)

// ParagraphSource provides the shared text for a round.
type ParagraphSource interface {
	FetchParagraph(ctx context.Context) string
}

// HTTPParagraphSource fetches prose from a remote generator and falls
// back to a locally sampled word bag on any failure. FetchParagraph
// always returns a non-empty paragraph.
type HTTPParagraphSource struct {
	url    string
	client *http.Client
}

func NewHTTPParagraphSource(url string, timeout time.Duration) *HTTPParagraphSource {
	return &HTTPParagraphSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (ps *HTTPParagraphSource) FetchParagraph(ctx context.Context) string {
	paragraph, err := ps.fetch(ctx)
	if err != nil {
		return fallbackParagraph()
	}
	return paragraph
}

func (ps *HTTPParagraphSource) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ps.url, nil)
	if err != nil {
		return "", err
	}

	resp, err := ps.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errors.New("unexpected status " + resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxParagraphBytes))
	if err != nil {
		return "", err
	}

	// Collapse newlines and any other whitespace runs to single spaces.
	paragraph := strings.Join(strings.Fields(string(body)), " ")
	if paragraph == "" {
		return "", errors.New("empty paragraph")
	}

	return paragraph, nil
}

// fallbackWords is the fixed bag the local generator samples from, with
// replacement. Common short words keep the fallback raceable.
var fallbackWords = []string{
	"the", "of", "and", "to", "in", "for", "on", "with", "as", "at",
	"time", "year", "people", "way", "day", "man", "thing", "world",
	"life", "hand", "part", "child", "eye", "woman", "place", "work",
	"week", "case", "point", "company", "number", "group", "problem",
	"fact", "water", "night", "home", "room", "mother", "area", "money",
	"story", "month", "right", "study", "book", "word", "house", "side",
	"city",
}

// fallbackParagraph samples the word bag with replacement. It never
// fails, so a round can always start even with the remote source down.
func fallbackParagraph() string {
	words := make([]string, fallbackWordCount)
	for i := range words {
		words[i] = fallbackWords[rand.Intn(len(fallbackWords))]
	}
	return strings.Join(words, " ")
}
