package main

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

type GameStatus int

const (
	StatusNotStarted GameStatus = iota
	StatusInProgress
	StatusFinished
)

const (
	maxPlayersPerRoom = 10
	maxNameLength     = 50
)

// Player holds the data we store server-side for one room member.
type Player struct {
	ID        string
	Name      string
	Score     int
	Precision float64
}

// Session is the authoritative state of one room. Every mutation happens
// under mu, so multi-step invariants (capacity check + insert, status
// check + transition) hold as a unit. Sessions for different room IDs
// never share state and never block each other.
type Session struct {
	mu sync.Mutex

	roomID    string
	hostID    string
	status    GameStatus
	paragraph string
	words     []string

	players   map[string]*Player
	joinOrder []string

	uniqueNames bool
	closed      bool
	timer       *time.Timer

	createdAt  time.Time
	lastActive time.Time
}

// NewSession creates the room with its creator as presumptive host. The
// creator is not yet a member; their join attempt still goes through
// AddPlayer, and host authority settles on the first member if that
// join never lands (see AddPlayer).
func NewSession(roomID, creatorID string, uniqueNames bool) *Session {
	now := time.Now()
	return &Session{
		roomID:      roomID,
		hostID:      creatorID,
		status:      StatusNotStarted,
		players:     make(map[string]*Player),
		uniqueNames: uniqueNames,
		createdAt:   now,
		lastActive:  now,
	}
}

func (s *Session) RoomID() string {
	return s.roomID
}

func (s *Session) HostID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostID
}

func (s *Session) Status() GameStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Snapshot returns the members in join order.
func (s *Session) Snapshot() []PlayerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() []PlayerState {
	players := make([]PlayerState, 0, len(s.players))
	for _, id := range s.joinOrder {
		p, ok := s.players[id]
		if !ok {
			continue
		}
		players = append(players, PlayerState{
			ID:        p.ID,
			Name:      p.Name,
			Score:     p.Score,
			Precision: p.Precision,
		})
	}
	return players
}

// AddResult describes a successful admission the caller must relay: the
// new member, and a host transfer if authority settled on them.
type AddResult struct {
	Player  PlayerState
	NewHost string // non-empty only if host authority moved
}

// AddPlayer admits a new member, or explains why it can't.
func (s *Session) AddPlayer(connID, name string) (AddResult, error) {
	name = strings.TrimSpace(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return AddResult{}, ErrRoomClosed
	}
	if s.status != StatusNotStarted {
		return AddResult{}, ErrAlreadyStarted
	}
	if len(s.players) >= maxPlayersPerRoom {
		return AddResult{}, ErrRoomFull
	}
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return AddResult{}, ErrInvalidName
	}
	if s.uniqueNames {
		for _, p := range s.players {
			if strings.EqualFold(p.Name, name) {
				return AddResult{}, ErrNameTaken
			}
		}
	}

	s.players[connID] = &Player{ID: connID, Name: name}
	s.joinOrder = append(s.joinOrder, connID)
	s.lastActive = time.Now()

	res := AddResult{Player: PlayerState{ID: connID, Name: name}}

	// The creator holds presumptive host authority without being a
	// member yet. If another connection gets in first, or the creator's
	// own join is rejected, the host must still be a current member or
	// nobody could ever start the round.
	if _, ok := s.players[s.hostID]; !ok {
		s.hostID = s.joinOrder[0]
		res.NewHost = s.hostID
	}

	return res, nil
}

// RemoveResult describes the effects of a removal the caller must relay:
// a host transfer, or the room having emptied out.
type RemoveResult struct {
	Removed PlayerState
	NewHost string // non-empty only if host authority moved
	Empty   bool
}

// RemovePlayer is permitted in any status. When the host leaves with
// members remaining, authority passes to the earliest remaining member by
// join order. An emptied session is closed and must be dropped from the
// registry by the caller.
func (s *Session) RemovePlayer(connID string) (RemoveResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[connID]
	if !ok {
		return RemoveResult{}, false
	}

	delete(s.players, connID)
	for i, id := range s.joinOrder {
		if id == connID {
			s.joinOrder = append(s.joinOrder[:i], s.joinOrder[i+1:]...)
			break
		}
	}
	s.lastActive = time.Now()

	res := RemoveResult{
		Removed: PlayerState{ID: p.ID, Name: p.Name, Score: p.Score, Precision: p.Precision},
	}

	if len(s.players) == 0 {
		s.closed = true
		s.stopTimerLocked()
		res.Empty = true
		return res, true
	}

	if s.hostID == connID {
		s.hostID = s.joinOrder[0]
		res.NewHost = s.hostID
	}

	return res, true
}

// CanStart is an advisory pre-check so the controller can skip the
// paragraph fetch for requests that would be rejected anyway. StartRound
// re-validates under the same lock before committing.
func (s *Session) CanStart(requesterID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startChecksLocked(requesterID)
}

func (s *Session) startChecksLocked(requesterID string) error {
	if s.closed {
		return ErrRoomClosed
	}
	if _, ok := s.players[requesterID]; !ok {
		return ErrNotInGame
	}
	if s.status != StatusNotStarted {
		return ErrAlreadyStarted
	}
	if s.hostID != requesterID {
		return ErrNotHost
	}
	return nil
}

// StartRound transitions NotStarted → InProgress: every member's score and
// precision reset to zero, the shared paragraph is installed, and the
// round timer is armed. onTimeout runs after d unless the round finishes
// first; it must re-validate status itself (see FinishByTimeout).
func (s *Session) StartRound(requesterID, paragraph string, d time.Duration, onTimeout func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.startChecksLocked(requesterID); err != nil {
		return err
	}

	for _, p := range s.players {
		p.Score = 0
		p.Precision = 0
	}

	s.paragraph = paragraph
	s.words = strings.Fields(paragraph)
	s.status = StatusInProgress
	s.lastActive = time.Now()
	s.timer = time.AfterFunc(d, onTimeout)

	return nil
}

// FinishByTimeout ends the round if it is still running. A timer that
// fires after completion, or after the room was torn down, observes
// the status or closed flag here and does nothing.
func (s *Session) FinishByTimeout() ([]PlayerState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.status != StatusInProgress {
		return nil, false
	}

	s.status = StatusFinished
	s.timer = nil
	s.lastActive = time.Now()

	return s.snapshotLocked(), true
}

// ScoreUpdate carries the result of one accepted typed-text update.
type ScoreUpdate struct {
	ID        string
	Score     int
	Precision float64
	Finished  bool
	Players   []PlayerState // final snapshot, set only when Finished
}

// ApplyTyped scores a member's typed text against the paragraph and
// stores the result. The round completes when every word is matched and
// the typed text covers the full paragraph length.
func (s *Session) ApplyTyped(connID, typed string) (ScoreUpdate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[connID]
	if !ok {
		return ScoreUpdate{}, ErrNotInGame
	}
	if s.status != StatusInProgress {
		return ScoreUpdate{}, ErrNotStarted
	}

	trimmed := strings.TrimRight(typed, " \t\r\n")
	p.Score = wordScore(s.words, typed)
	p.Precision = typingPrecision(s.paragraph, trimmed)
	s.lastActive = time.Now()

	upd := ScoreUpdate{ID: connID, Score: p.Score, Precision: p.Precision}

	if p.Score == len(s.words) && utf8.RuneCountInString(trimmed) >= utf8.RuneCountInString(s.paragraph) {
		s.status = StatusFinished
		s.stopTimerLocked()
		upd.Finished = true
		upd.Players = s.snapshotLocked()
	}

	return upd, nil
}

// CloseAll force-closes the session (idle reap) and reports the members
// that were dropped so the caller can release their connections.
func (s *Session) CloseAll() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.stopTimerLocked()

	members := make([]string, len(s.joinOrder))
	copy(members, s.joinOrder)
	s.players = make(map[string]*Player)
	s.joinOrder = nil

	return members
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// wordScore counts contiguous case-insensitive word matches from the
// start: typed text is split on whitespace and walked index-aligned
// against the paragraph words, stopping at the first mismatch or at the
// shorter length.
func wordScore(words []string, typed string) int {
	score := 0
	for i, w := range strings.Fields(typed) {
		if i >= len(words) || !strings.EqualFold(w, words[i]) {
			break
		}
		score++
	}
	return score
}

// typingPrecision is the percentage of typed characters matching the
// paragraph at the same position, over everything typed so far. This is
// positional prefix comparison, not edit distance: a dropped character
// early on costs every position after it.
func typingPrecision(paragraph, typed string) float64 {
	if typed == "" {
		return 0
	}

	tr := []rune(strings.ToLower(typed))
	pr := []rune(strings.ToLower(paragraph))

	matches := 0
	for i := 0; i < len(tr) && i < len(pr); i++ {
		if tr[i] == pr[i] {
			matches++
		}
	}

	return 100 * float64(matches) / float64(len(tr))
}
