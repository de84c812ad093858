package room

import (
	"time"

	"github.com/nightvote/resistance-backend/internal/engine"
	"github.com/nightvote/resistance-backend/internal/types"
)

type Msg interface{ isRoomMsg() }

// Join seats a brand-new player and binds the requesting connection.
type Join struct {
	ConnID string
	Name   string
	Outbox chan types.ServerMessage
	Reply  chan JoinResult
}

type JoinResult struct {
	Token    string
	PlayerID string
	Err      error
}

// Attach binds a connection to an existing session (rejoin, extra
// device, or the first connection after an HTTP create).
type Attach struct {
	ConnID string
	Token  string
	Outbox chan types.ServerMessage
	Reply  chan AttachResult
}

type AttachResult struct {
	PlayerID string
	Err      error
}

type Detach struct{ ConnID string }

type Heartbeat struct{ ConnID string }

// Command is one player command, already shape-validated by the
// orchestrator. The session is derived from the bound connection.
type Command struct {
	ConnID   string
	Kind     string
	ActionID string
	Team     []string
	Vote     engine.Vote
	Action   engine.QuestAction
}

// Sweep carries the tick time so auto-resolution is testable.
type Sweep struct{ Now time.Time }

// GetState reflects internal state without data races; test-only.
type GetState struct{ Reply chan Status }

type Status struct {
	NumConns int
	Offline  map[string]time.Time
	State    engine.State
}

type Shutdown struct{}

func (Join) isRoomMsg()      {}
func (Attach) isRoomMsg()    {}
func (Detach) isRoomMsg()    {}
func (Heartbeat) isRoomMsg() {}
func (Command) isRoomMsg()   {}
func (Sweep) isRoomMsg()     {}
func (GetState) isRoomMsg()  {}
func (Shutdown) isRoomMsg()  {}
