package main

// Messages coming from clients
type ClientMessage struct {
	Type string `json:"type"`           // "join", "start", "typed"
	Room string `json:"room,omitempty"` // join
	Name string `json:"name,omitempty"` // join
	Text string `json:"text"`           // typed (may legitimately be empty)
}

// PlayerState is the wire form of a room member, used in snapshots and
// join notifications.
type PlayerState struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Score     int     `json:"score"`
	Precision float64 `json:"precision"`
}

// Sent to a single client when a request is rejected
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Message string `json:"message"`
}

// Broadcast to the room when a player joins
type PlayerJoinedMessage struct {
	Type      string  `json:"type"` // "player-joined"
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Score     int     `json:"score"`
	Precision float64 `json:"precision"`
}

// Full member snapshot, sent to one client or broadcast to the room
type PlayersMessage struct {
	Type    string        `json:"type"` // "players"
	Players []PlayerState `json:"players"`
}

// Broadcast when host authority is (re)assigned
type NewHostMessage struct {
	Type string `json:"type"` // "new-host"
	ID   string `json:"id"`
}

// Broadcast once when a room is first created
type GameCreatedMessage struct {
	Type string `json:"type"` // "game-created"
	Room string `json:"room"`
}

// Broadcast to the room when a player leaves
type PlayerLeftMessage struct {
	Type string `json:"type"` // "player-left"
	ID   string `json:"id"`
}

// Broadcast when a round begins, carrying the shared paragraph
type GameStartedMessage struct {
	Type      string `json:"type"` // "game-started"
	Paragraph string `json:"paragraph"`
}

// Broadcast on every accepted typed update
type PlayerScoreMessage struct {
	Type      string  `json:"type"` // "player-score"
	ID        string  `json:"id"`
	Score     int     `json:"score"`
	Precision float64 `json:"precision"`
}

// Broadcast once when a round ends, by completion or timeout;
// always followed by a "players" snapshot
type GameFinishedMessage struct {
	Type string `json:"type"` // "game-finished"
}

// Delivered when the last member leaves and the room is torn down
type GameEndedMessage struct {
	Type string `json:"type"` // "game-ended"
	Room string `json:"room"`
}
