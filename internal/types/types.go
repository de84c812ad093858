package types

import "github.com/nightvote/resistance-backend/internal/view"

// Client -> server message kinds.
const (
	MsgCreateGame        = "create-game"
	MsgJoinGame          = "join-game"
	MsgRejoin            = "rejoin"
	MsgProposeTeam       = "propose-team"
	MsgSubmitVote        = "submit-vote"
	MsgSubmitQuestAction = "submit-quest-action"
	MsgAdvancePhase      = "advance-phase"
	MsgHeartbeat         = "heartbeat"
)

// Server -> client event kinds.
const (
	EvtConnectionAcked    = "connection-acknowledged"
	EvtLobbyState         = "lobby-state"
	EvtGameState          = "game-state"
	EvtTeamProposed       = "team-proposed"
	EvtVoteSubmitted      = "vote-submitted"
	EvtQuestSubmitted     = "quest-submitted"
	EvtPhaseChanged       = "phase-changed"
	EvtGameEnded          = "game-ended"
	EvtPlayerJoined       = "player-joined"
	EvtPlayerLeft         = "player-left"
	EvtPlayerReconnected  = "player-reconnected"
	EvtError              = "error"
)

type ClientMessage struct {
	Type          string   `json:"type"`
	Name          string   `json:"name,omitempty"`
	JoinCode      string   `json:"joinCode,omitempty"`
	SessionToken  string   `json:"sessionToken,omitempty"`
	TeamPlayerIDs []string `json:"teamPlayerIds,omitempty"`
	Vote          string   `json:"vote,omitempty"`
	Action        string   `json:"action,omitempty"`
	ActionID      string   `json:"actionId,omitempty"`
}

type ServerMessage struct {
	Type          string            `json:"type"`
	ConnectionID  string            `json:"connectionId,omitempty"`
	SessionToken  string            `json:"sessionToken,omitempty"`
	JoinCode      string            `json:"joinCode,omitempty"`
	GameID        string            `json:"gameId,omitempty"`
	PlayerID      string            `json:"playerId,omitempty"`
	Phase         string            `json:"phase,omitempty"`
	Winner        string            `json:"winner,omitempty"`
	LeaderID      string            `json:"leaderId,omitempty"`
	TeamPlayerIDs []string          `json:"teamPlayerIds,omitempty"`
	State         *view.GameView    `json:"state,omitempty"`
	Private       *view.PrivateView `json:"private,omitempty"`
	Error         string            `json:"error,omitempty"`
}
