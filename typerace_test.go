package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type stubSource struct {
	paragraph string
}

func (s stubSource) FetchParagraph(_ context.Context) string {
	return s.paragraph
}

func newTestConfig() *Config {
	return &Config{
		fetchTimeout:  time.Second,
		rateLimit:     10,
		roundDuration: time.Minute,
		uniqueNames:   true,
	}
}

func newTestController(cfg *Config, paragraph string) *Controller {
	return NewController(cfg, stubSource{paragraph: paragraph})
}

func newTestClient() *Client {
	return &Client{
		send:    make(chan any, sendBufferSize),
		connID:  uuid.NewString(),
		limiter: rate.NewLimiter(rate.Inf, 0),
	}
}

func joinRoom(ct *Controller, c *Client, room, name string) {
	ct.HandleJoin(c, ClientMessage{Type: "join", Room: room, Name: name})
}

func recvMessage(t *testing.T, c *Client) any {
	t.Helper()

	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func recvError(t *testing.T, c *Client) ErrorMessage {
	t.Helper()

	msg := recvMessage(t, c)
	errMsg, ok := msg.(ErrorMessage)
	require.True(t, ok, "expected ErrorMessage, got %T", msg)
	return errMsg
}

func drainMessages(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func TestController_JoinCreatesRoom(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta")
	c := newTestClient()

	joinRoom(ct, c, "room", "alice")

	msg := recvMessage(t, c)
	joined, ok := msg.(PlayerJoinedMessage)
	require.True(t, ok, "expected PlayerJoinedMessage, got %T", msg)
	assert.Equal(t, c.connID, joined.ID)
	assert.Equal(t, "alice", joined.Name)

	msg = recvMessage(t, c)
	players, ok := msg.(PlayersMessage)
	require.True(t, ok, "expected PlayersMessage, got %T", msg)
	require.Len(t, players.Players, 1)
	assert.Equal(t, "alice", players.Players[0].Name)

	msg = recvMessage(t, c)
	host, ok := msg.(NewHostMessage)
	require.True(t, ok, "expected NewHostMessage, got %T", msg)
	assert.Equal(t, c.connID, host.ID)

	msg = recvMessage(t, c)
	created, ok := msg.(GameCreatedMessage)
	require.True(t, ok, "expected GameCreatedMessage, got %T", msg)
	assert.Equal(t, "room", created.Room)

	assert.Equal(t, 1, ct.registry.Len())
	roomID, ok := ct.index.Get(c.connID)
	require.True(t, ok)
	assert.Equal(t, "room", roomID)
}

func TestController_JoinValidation(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta")

	c := newTestClient()
	joinRoom(ct, c, "bad room!", "alice")
	assert.Equal(t, ErrInvalidRoomID.Error(), recvError(t, c).Message)

	joinRoom(ct, c, "room", "   ")
	assert.Equal(t, ErrInvalidName.Error(), recvError(t, c).Message)

	// Nothing was admitted, so no state exists.
	assert.Equal(t, 0, ct.registry.Len())
	assert.Equal(t, 0, ct.index.Len())
}

func TestController_JoinDuplicateName(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta")

	c1 := newTestClient()
	joinRoom(ct, c1, "room", "alice")
	drainMessages(c1)

	c2 := newTestClient()
	joinRoom(ct, c2, "room", "Alice")
	assert.Equal(t, ErrNameTaken.Error(), recvError(t, c2).Message)

	// The rejected connection holds no room state.
	_, ok := ct.index.Get(c2.connID)
	assert.False(t, ok)

	s, ok := ct.registry.Get("room")
	require.True(t, ok)
	assert.Equal(t, 1, s.PlayerCount())
}

func TestController_SecondJoinerNotifiesRoom(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta")

	c1 := newTestClient()
	joinRoom(ct, c1, "room", "alice")
	drainMessages(c1)

	c2 := newTestClient()
	joinRoom(ct, c2, "room", "bob")

	msg := recvMessage(t, c1)
	joined, ok := msg.(PlayerJoinedMessage)
	require.True(t, ok, "expected PlayerJoinedMessage, got %T", msg)
	assert.Equal(t, c2.connID, joined.ID)

	// The joiner gets the same broadcast plus its snapshot and the
	// current host; no game-created for an existing room.
	msg = recvMessage(t, c2)
	_, ok = msg.(PlayerJoinedMessage)
	require.True(t, ok, "expected PlayerJoinedMessage, got %T", msg)

	msg = recvMessage(t, c2)
	players, ok := msg.(PlayersMessage)
	require.True(t, ok, "expected PlayersMessage, got %T", msg)
	assert.Len(t, players.Players, 2)

	msg = recvMessage(t, c2)
	host, ok := msg.(NewHostMessage)
	require.True(t, ok, "expected NewHostMessage, got %T", msg)
	assert.Equal(t, c1.connID, host.ID)

	select {
	case extra := <-c2.send:
		t.Fatalf("unexpected message: %#v", extra)
	default:
	}
}

func TestController_RejoinMovesRooms(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta")

	c := newTestClient()
	joinRoom(ct, c, "first", "alice")
	drainMessages(c)

	joinRoom(ct, c, "second", "alice")

	// Leaving "first" empties it out, so it is torn down.
	msg := recvMessage(t, c)
	ended, ok := msg.(GameEndedMessage)
	require.True(t, ok, "expected GameEndedMessage, got %T", msg)
	assert.Equal(t, "first", ended.Room)

	_, ok = ct.registry.Get("first")
	assert.False(t, ok)

	roomID, ok := ct.index.Get(c.connID)
	require.True(t, ok)
	assert.Equal(t, "second", roomID)
}

func TestController_StartBroadcastsParagraph(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta gamma")

	c1 := newTestClient()
	c2 := newTestClient()
	joinRoom(ct, c1, "room", "alice")
	joinRoom(ct, c2, "room", "bob")
	drainMessages(c1)
	drainMessages(c2)

	ct.HandleStart(c1)

	for _, c := range []*Client{c1, c2} {
		msg := recvMessage(t, c)
		players, ok := msg.(PlayersMessage)
		require.True(t, ok, "expected PlayersMessage, got %T", msg)
		for _, p := range players.Players {
			assert.Zero(t, p.Score)
		}

		msg = recvMessage(t, c)
		started, ok := msg.(GameStartedMessage)
		require.True(t, ok, "expected GameStartedMessage, got %T", msg)
		assert.Equal(t, "alpha beta gamma", started.Paragraph)
	}

	s, ok := ct.registry.Get("room")
	require.True(t, ok)
	assert.Equal(t, StatusInProgress, s.Status())
}

func TestController_StartAuthorization(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta")

	c1 := newTestClient()
	c2 := newTestClient()
	joinRoom(ct, c1, "room", "alice")
	joinRoom(ct, c2, "room", "bob")
	drainMessages(c1)
	drainMessages(c2)

	ct.HandleStart(c2)
	assert.Equal(t, ErrNotHost.Error(), recvError(t, c2).Message)

	stranger := newTestClient()
	ct.HandleStart(stranger)
	assert.Equal(t, ErrNotInGame.Error(), recvError(t, stranger).Message)

	s, ok := ct.registry.Get("room")
	require.True(t, ok)
	assert.Equal(t, StatusNotStarted, s.Status())

	ct.HandleStart(c1)
	drainMessages(c1)
	drainMessages(c2)

	ct.HandleStart(c1)
	assert.Equal(t, ErrAlreadyStarted.Error(), recvError(t, c1).Message)
}

func TestController_TypedBroadcastsScore(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta gamma")

	c1 := newTestClient()
	c2 := newTestClient()
	joinRoom(ct, c1, "room", "alice")
	joinRoom(ct, c2, "room", "bob")
	ct.HandleStart(c1)
	drainMessages(c1)
	drainMessages(c2)

	ct.HandleTyped(c2, "alpha beta")

	for _, c := range []*Client{c1, c2} {
		msg := recvMessage(t, c)
		score, ok := msg.(PlayerScoreMessage)
		require.True(t, ok, "expected PlayerScoreMessage, got %T", msg)
		assert.Equal(t, c2.connID, score.ID)
		assert.Equal(t, 2, score.Score)
	}
}

func TestController_TypedCompletionFinishesRound(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta gamma")

	c1 := newTestClient()
	c2 := newTestClient()
	joinRoom(ct, c1, "room", "alice")
	joinRoom(ct, c2, "room", "bob")
	ct.HandleStart(c1)
	drainMessages(c1)
	drainMessages(c2)

	ct.HandleTyped(c2, "alpha beta gamma")

	for _, c := range []*Client{c1, c2} {
		msg := recvMessage(t, c)
		score, ok := msg.(PlayerScoreMessage)
		require.True(t, ok, "expected PlayerScoreMessage, got %T", msg)
		assert.Equal(t, 3, score.Score)

		msg = recvMessage(t, c)
		_, ok = msg.(GameFinishedMessage)
		require.True(t, ok, "expected GameFinishedMessage, got %T", msg)

		msg = recvMessage(t, c)
		players, ok := msg.(PlayersMessage)
		require.True(t, ok, "expected PlayersMessage, got %T", msg)
		assert.Len(t, players.Players, 2)
	}

	s, ok := ct.registry.Get("room")
	require.True(t, ok)
	assert.Equal(t, StatusFinished, s.Status())
}

func TestController_TypedBeforeStart(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta")

	c := newTestClient()
	joinRoom(ct, c, "room", "alice")
	drainMessages(c)

	ct.HandleTyped(c, "alpha")
	assert.Equal(t, ErrNotStarted.Error(), recvError(t, c).Message)
}

func TestController_RoundTimeout(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig()
	cfg.roundDuration = 20 * time.Millisecond
	ct := newTestController(cfg, "alpha beta")

	c := newTestClient()
	joinRoom(ct, c, "room", "alice")
	drainMessages(c)

	ct.HandleStart(c)

	msg := recvMessage(t, c)
	_, ok := msg.(PlayersMessage)
	require.True(t, ok, "expected PlayersMessage, got %T", msg)

	msg = recvMessage(t, c)
	_, ok = msg.(GameStartedMessage)
	require.True(t, ok, "expected GameStartedMessage, got %T", msg)

	msg = recvMessage(t, c)
	_, ok = msg.(GameFinishedMessage)
	require.True(t, ok, "expected GameFinishedMessage, got %T", msg)

	msg = recvMessage(t, c)
	_, ok = msg.(PlayersMessage)
	require.True(t, ok, "expected PlayersMessage, got %T", msg)

	s, ok := ct.registry.Get("room")
	require.True(t, ok)
	assert.Equal(t, StatusFinished, s.Status())

	ct.HandleTyped(c, "alpha")
	assert.Equal(t, ErrNotStarted.Error(), recvError(t, c).Message)
}

func TestController_DisconnectTransfersHost(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta")

	c1 := newTestClient()
	c2 := newTestClient()
	joinRoom(ct, c1, "room", "alice")
	joinRoom(ct, c2, "room", "bob")
	drainMessages(c1)
	drainMessages(c2)

	ct.HandleDisconnect(c1)

	msg := recvMessage(t, c2)
	left, ok := msg.(PlayerLeftMessage)
	require.True(t, ok, "expected PlayerLeftMessage, got %T", msg)
	assert.Equal(t, c1.connID, left.ID)

	msg = recvMessage(t, c2)
	host, ok := msg.(NewHostMessage)
	require.True(t, ok, "expected NewHostMessage, got %T", msg)
	assert.Equal(t, c2.connID, host.ID)

	_, ok = ct.index.Get(c1.connID)
	assert.False(t, ok)

	s, ok := ct.registry.Get("room")
	require.True(t, ok)
	assert.Equal(t, c2.connID, s.HostID())
}

func TestController_LastDisconnectEndsRoom(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta")

	c := newTestClient()
	joinRoom(ct, c, "room", "alice")
	drainMessages(c)

	ct.HandleDisconnect(c)

	msg := recvMessage(t, c)
	ended, ok := msg.(GameEndedMessage)
	require.True(t, ok, "expected GameEndedMessage, got %T", msg)
	assert.Equal(t, "room", ended.Room)

	assert.Equal(t, 0, ct.registry.Len())
	assert.Equal(t, 0, ct.index.Len())

	// Idempotent.
	ct.HandleDisconnect(c)
	assert.Equal(t, 0, ct.registry.Len())
}

func TestController_StaleTimerIgnoresRecreatedRoom(t *testing.T) {
	t.Parallel()

	ct := newTestController(newTestConfig(), "alpha beta")

	c1 := newTestClient()
	joinRoom(ct, c1, "room", "alice")
	ct.HandleStart(c1)
	drainMessages(c1)

	old, ok := ct.registry.Get("room")
	require.True(t, ok)

	// Tear the room down mid-round, then re-create it under the same ID
	// and start a fresh round.
	ct.HandleDisconnect(c1)

	c2 := newTestClient()
	joinRoom(ct, c2, "room", "bob")
	ct.HandleStart(c2)
	drainMessages(c2)

	// The old round's timer firing now must not touch the new room.
	ct.finishByTimeout(old)

	s, ok := ct.registry.Get("room")
	require.True(t, ok)
	assert.Equal(t, StatusInProgress, s.Status())

	select {
	case msg := <-c2.send:
		t.Fatalf("unexpected message: %#v", msg)
	default:
	}
}

func TestController_IdleReaper(t *testing.T) {
	t.Parallel()

	cfg := newTestConfig()
	cfg.sessionTimeout = 50 * time.Millisecond
	ct := newTestController(cfg, "alpha beta")

	c := newTestClient()
	joinRoom(ct, c, "room", "alice")
	drainMessages(c)

	assert.Eventually(t, func() bool {
		return ct.registry.Len() == 0 && ct.index.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRandomRoomID(t *testing.T) {
	t.Parallel()

	r := NewSessionRegistry(true)

	id := randomRoomID(r)
	assert.Len(t, id, 8)
	assert.Regexp(t, roomIDPattern, id)

	assert.NotEqual(t, id, randomRoomID(r))
}
