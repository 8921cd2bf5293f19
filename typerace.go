// Typebox Typing Race
//
// Players join a named room and race to type the same paragraph. The first
// connection to create a room becomes its host; only the host can start a
// round. Once started, every member receives the paragraph and their typed
// text is scored server-side in real time until someone finishes it or the
// round timer expires.
//
// Features:
// - WebSockets per room: /path/:roomid and /path/:roomid/ws
// - Room creator becomes host; host authority transfers when the host leaves
// - Up to 10 players per room; joins rejected once a round has started
// - Live word score and character precision broadcast on every update
// - 60-second round timer, cancelled early when a player finishes
// - Paragraphs fetched from a remote generator, local fallback bag on failure
// - Rooms torn down the moment the last member leaves
// - Idle rooms reaped after a configurable timeout
// - Random 8-char room IDs via crypto/rand for the /path redirect flow
// - Per-IP connection rate limiting and per-connection typing throttling
// - In-browser QR button to share the current room, backed by go-qrcode
package main

import (
	"context"
	"crypto/rand"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 64

	// Per-connection budget for "typed" updates. Clients send one update
	// per input event at most every 100ms, so this only bites runaways.
	typedPerSecond = 30
	typedBurst     = 60
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)

type Client struct {
	conn    *websocket.Conn
	send    chan any
	connID  string
	limiter *rate.Limiter

	closeOnce sync.Once
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		conn:    conn,
		send:    make(chan any, sendBufferSize),
		connID:  uuid.NewString(),
		limiter: rate.NewLimiter(typedPerSecond, typedBurst),
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.send)
	})
}

// Controller translates inbound events into session operations and fans
// the results back out to room members. It is the only layer aware of
// the transport.
type Controller struct {
	cfg      *Config
	registry *SessionRegistry
	index    *ConnectionIndex
	source   ParagraphSource

	mu    sync.RWMutex
	conns map[string]*Client
}

func NewController(cfg *Config, source ParagraphSource) *Controller {
	ct := &Controller{
		cfg:      cfg,
		registry: NewSessionRegistry(cfg.uniqueNames),
		index:    NewConnectionIndex(),
		source:   source,
		conns:    make(map[string]*Client),
	}
	if cfg.sessionTimeout > 0 {
		go ct.reaperLoop(cfg.sessionTimeout)
	}
	return ct
}

func (ct *Controller) sendTo(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		// Client's send buffer is full, drop the message. The read
		// deadline takes care of disconnecting dead peers.
	}
}

func (ct *Controller) sendError(c *Client, err error) {
	ct.sendTo(c, ErrorMessage{Type: "error", Message: err.Error()})
}

// broadcast delivers msg to every current member of s.
func (ct *Controller) broadcast(s *Session, msg any) {
	members := s.Snapshot()

	ct.mu.RLock()
	defer ct.mu.RUnlock()

	for _, p := range members {
		if c, ok := ct.conns[p.ID]; ok {
			ct.sendTo(c, msg)
		}
	}
}

// HandleJoin validates the request shape, then admits the connection into
// the room, creating the session when absent. The connection index is
// only written once membership is established, so a failed join leaves no
// state behind.
func (ct *Controller) HandleJoin(c *Client, msg ClientMessage) {
	roomID := msg.Room
	name := strings.TrimSpace(msg.Name)

	if !roomIDPattern.MatchString(roomID) {
		ct.sendError(c, ErrInvalidRoomID)
		return
	}
	if name == "" || len([]rune(name)) > maxNameLength {
		ct.sendError(c, ErrInvalidName)
		return
	}

	// Most-recent join wins: leaving any current room first keeps the
	// connection→room mapping 1:1 with actual membership.
	if _, ok := ct.index.Get(c.connID); ok {
		ct.leaveRoom(c)
	}

	s, isNew := ct.registry.GetOrCreate(roomID, c.connID)

	res, err := s.AddPlayer(c.connID, name)
	if err != nil {
		if isNew && s.PlayerCount() == 0 {
			ct.registry.RemoveSession(roomID, s)
		}
		ct.sendError(c, err)
		return
	}

	ct.mu.Lock()
	ct.conns[c.connID] = c
	ct.mu.Unlock()
	ct.index.Set(c.connID, roomID)

	ct.broadcast(s, PlayerJoinedMessage{
		Type:      "player-joined",
		ID:        res.Player.ID,
		Name:      res.Player.Name,
		Score:     res.Player.Score,
		Precision: res.Player.Precision,
	})
	ct.sendTo(c, PlayersMessage{Type: "players", Players: s.Snapshot()})
	ct.sendTo(c, NewHostMessage{Type: "new-host", ID: s.HostID()})

	if isNew {
		ct.broadcast(s, GameCreatedMessage{Type: "game-created", Room: roomID})
	}

	logf(ct.cfg, "RACES: Player %q joined %s", res.Player.Name, roomID)
}

// HandleStart begins a round. The paragraph is fetched before the
// transition commits so the session lock is never held across network
// I/O; a cheap pre-check avoids fetching for requests that would be
// rejected anyway.
func (ct *Controller) HandleStart(c *Client) {
	roomID, ok := ct.index.Get(c.connID)
	if !ok {
		ct.sendError(c, ErrNotInGame)
		return
	}
	s, ok := ct.registry.Get(roomID)
	if !ok {
		ct.sendError(c, ErrNotInGame)
		return
	}

	if err := s.CanStart(c.connID); err != nil {
		ct.sendError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ct.cfg.fetchTimeout)
	paragraph := ct.source.FetchParagraph(ctx)
	cancel()

	err := s.StartRound(c.connID, paragraph, ct.cfg.roundDuration, func() {
		ct.finishByTimeout(s)
	})
	if err != nil {
		ct.sendError(c, err)
		return
	}

	ct.broadcast(s, PlayersMessage{Type: "players", Players: s.Snapshot()})
	ct.broadcast(s, GameStartedMessage{Type: "game-started", Paragraph: paragraph})

	logf(ct.cfg, "RACES: Round started in %s (%d words)", roomID, len(strings.Fields(paragraph)))
}

// finishByTimeout runs when the round timer fires. The closure holds the
// session itself rather than its room ID, so a stale timer can never
// reach a successor room created under the same ID; firing after the
// round already finished, or after teardown, is silently ignored.
func (ct *Controller) finishByTimeout(s *Session) {
	players, ok := s.FinishByTimeout()
	if !ok {
		return
	}

	ct.broadcast(s, GameFinishedMessage{Type: "game-finished"})
	ct.broadcast(s, PlayersMessage{Type: "players", Players: players})

	logf(ct.cfg, "RACES: Round in %s ended by timeout", s.RoomID())
}

// HandleTyped scores a typed-text update and broadcasts the result.
func (ct *Controller) HandleTyped(c *Client, text string) {
	if !c.limiter.Allow() {
		return
	}

	roomID, ok := ct.index.Get(c.connID)
	if !ok {
		ct.sendError(c, ErrNotInGame)
		return
	}
	s, ok := ct.registry.Get(roomID)
	if !ok {
		ct.sendError(c, ErrNotInGame)
		return
	}

	upd, err := s.ApplyTyped(c.connID, text)
	if err != nil {
		ct.sendError(c, err)
		return
	}

	ct.broadcast(s, PlayerScoreMessage{
		Type:      "player-score",
		ID:        upd.ID,
		Score:     upd.Score,
		Precision: upd.Precision,
	})

	if upd.Finished {
		ct.broadcast(s, GameFinishedMessage{Type: "game-finished"})
		ct.broadcast(s, PlayersMessage{Type: "players", Players: upd.Players})
		logf(ct.cfg, "RACES: Round in %s finished", roomID)
	}
}

// HandleDisconnect releases whatever room state the connection holds.
// Safe to run concurrently with in-flight operations for the same
// connection and idempotent if the room is already gone.
func (ct *Controller) HandleDisconnect(c *Client) {
	ct.mu.Lock()
	delete(ct.conns, c.connID)
	ct.mu.Unlock()

	ct.leaveRoom(c)
	c.Close()
}

func (ct *Controller) leaveRoom(c *Client) {
	roomID, ok := ct.index.Get(c.connID)
	if !ok {
		return
	}
	ct.index.Remove(c.connID)

	s, ok := ct.registry.Get(roomID)
	if !ok {
		return
	}

	res, ok := s.RemovePlayer(c.connID)
	if !ok {
		return
	}

	if res.Empty {
		ct.registry.RemoveSession(roomID, s)
		ct.sendTo(c, GameEndedMessage{Type: "game-ended", Room: roomID})
		logf(ct.cfg, "RACES: Room %s ended (no players)", roomID)
		return
	}

	ct.broadcast(s, PlayerLeftMessage{Type: "player-left", ID: res.Removed.ID})
	if res.NewHost != "" {
		ct.broadcast(s, NewHostMessage{Type: "new-host", ID: res.NewHost})
	}

	logf(ct.cfg, "RACES: Player %q left %s", res.Removed.Name, roomID)
}

// reaperLoop periodically drops sessions idle longer than the timeout and
// releases their connections.
func (ct *Controller) reaperLoop(idleTimeout time.Duration) {
	ticker := time.NewTicker(idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-idleTimeout)

		for _, s := range ct.registry.Sessions() {
			if !s.LastActive().Before(cutoff) {
				continue
			}

			ct.registry.RemoveSession(s.RoomID(), s)
			for _, connID := range s.CloseAll() {
				ct.index.Remove(connID)
				ct.mu.Lock()
				c, ok := ct.conns[connID]
				delete(ct.conns, connID)
				ct.mu.Unlock()
				if ok {
					c.Close()
				}
			}

			logf(ct.cfg, "RACES: Room %s reaped (idle timeout)", s.RoomID())
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocket handler; the room itself is chosen by the "join" message.
func serveWSForController(cfg *Config, ct *Controller, limiter *RateLimiter) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !limiter.Allow(realIP(r)) {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logf(cfg, "RACES: Upgrade error from %s: %v", realIP(r), err)
			return
		}

		client := newClient(conn)

		go client.writePump()
		client.readPump(ct)
	}
}

func (c *Client) readPump(ct *Controller) {
	defer func() {
		ct.HandleDisconnect(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "join":
			ct.HandleJoin(c, msg)
		case "start":
			ct.HandleStart(c)
		case "typed":
			ct.HandleTyped(c, msg.Text)
		default:
			// ignore unknown types
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// randomRoomID generates a crypto-random room ID for the redirect flow
// and ensures it doesn't collide with a live room.
func randomRoomID(registry *SessionRegistry) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		if _, exists := registry.Get(id); !exists {
			return id
		}
	}
}

// redirectNewRace handles GET /path by generating a fresh room ID and
// redirecting to /path/:roomid. Rooms also spring into existence when a
// player joins any user-chosen ID directly.
func redirectNewRace(cfg *Config, path string, ct *Controller) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		roomID := randomRoomID(ct.registry)
		logf(cfg, "RACES: Redirecting to new room %s/%s", path, roomID)
		http.Redirect(w, r, cfg.prefix+path+"/"+roomID, http.StatusTemporaryRedirect)
	}
}

// QR handler: generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("roomid")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:roomid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func getRacePageHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(raceHTML))
	}
}

// registerTypingRace sets up routes so that:
//   - $path              → redirects to a new random room (8-char ID)
//   - $path/:roomid      → HTML client
//   - $path/:roomid/ws   → WebSocket for that room
//   - $path/:roomid/qr   → PNG QR code for that room URL
func registerTypingRace(cfg *Config, path string, mux *httprouter.Router, ct *Controller) {
	limiter := NewRateLimiter(cfg.rateLimit)

	// Root path → redirect to new random room
	mux.GET(cfg.prefix+path, redirectNewRace(cfg, path, ct))

	// Per-room client view
	mux.GET(cfg.prefix+path+"/:roomid", getRacePageHandler(cfg))

	// Per-room websocket
	mux.GET(cfg.prefix+path+"/:roomid/ws", serveWSForController(cfg, ct, limiter))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/:roomid/qr", qrHandler)
}
