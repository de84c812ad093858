package engine

import (
	"time"
)

type Phase string

const (
	PhaseLobby          Phase = "lobby"
	PhaseRoleAssignment Phase = "role_assignment"
	PhaseTeamProposal   Phase = "team_proposal"
	PhaseVoting         Phase = "voting"
	PhaseQuest          Phase = "quest"
	PhaseEndgame        Phase = "endgame"
)

type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleResistance Role = "resistance"
	RoleSpy        Role = "spy"
)

type Vote string

const (
	VoteApprove Vote = "approve"
	VoteReject  Vote = "reject"
)

func (v Vote) Valid() bool { return v == VoteApprove || v == VoteReject }

type QuestAction string

const (
	QuestSuccess QuestAction = "success"
	QuestFail    QuestAction = "fail"
)

func (a QuestAction) Valid() bool { return a == QuestSuccess || a == QuestFail }

type Winner string

const (
	WinnerNone       Winner = ""
	WinnerResistance Winner = "resistance"
	WinnerSpies      Winner = "spy"
)

// Player is owned exclusively by its State; seats are a contiguous
// 1..N permutation in join order.
type Player struct {
	ID        string
	Name      string
	Role      Role
	Seat      int
	Connected bool
}

// QuestResolution records one finished quest. The list it lives in is
// append-only; entries are never rewritten.
type QuestResolution struct {
	Quest      int
	Team       []string
	Approvals  int
	Rejections int
	Succeeded  bool
	FailCount  int
}

// State is the aggregate game record. Every transition returns a fresh
// value; callers never observe in-place mutation.
type State struct {
	ID              string
	Phase           Phase
	Players         []Player
	HostID          string
	Round           int
	Turn            int
	LeaderSeat      int
	ProposedTeam    []string
	Votes           map[string]Vote
	QuestActions    map[string]QuestAction
	VoteEndsAt      *time.Time
	QuestEndsAt     *time.Time
	FailedProposals int
	QuestResults    []QuestResolution
	Winner          Winner
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (s State) clone() State {
	c := s
	c.Players = make([]Player, len(s.Players))
	copy(c.Players, s.Players)
	c.ProposedTeam = append([]string(nil), s.ProposedTeam...)
	c.Votes = make(map[string]Vote, len(s.Votes))
	for k, v := range s.Votes {
		c.Votes[k] = v
	}
	c.QuestActions = make(map[string]QuestAction, len(s.QuestActions))
	for k, v := range s.QuestActions {
		c.QuestActions[k] = v
	}
	c.QuestResults = make([]QuestResolution, len(s.QuestResults))
	copy(c.QuestResults, s.QuestResults)
	for i := range c.QuestResults {
		c.QuestResults[i].Team = append([]string(nil), s.QuestResults[i].Team...)
	}
	if s.VoteEndsAt != nil {
		t := *s.VoteEndsAt
		c.VoteEndsAt = &t
	}
	if s.QuestEndsAt != nil {
		t := *s.QuestEndsAt
		c.QuestEndsAt = &t
	}
	return c
}

// PlayerByID returns the seated player with the given id.
func (s State) PlayerByID(id string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Leader returns the player at LeaderSeat.
func (s State) Leader() Player {
	for _, p := range s.Players {
		if p.Seat == s.LeaderSeat {
			return p
		}
	}
	return Player{}
}

// OnTeam reports whether id is part of the proposed team.
func (s State) OnTeam(id string) bool {
	for _, t := range s.ProposedTeam {
		if t == id {
			return true
		}
	}
	return false
}

// SpyIDs returns spy ids in seat order.
func (s State) SpyIDs() []string {
	ids := []string{}
	for _, p := range s.Players {
		if p.Role == RoleSpy {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// SuccessCount returns how many quests have succeeded so far.
func (s State) SuccessCount() int {
	n := 0
	for _, q := range s.QuestResults {
		if q.Succeeded {
			n++
		}
	}
	return n
}

// FailureCount returns how many quests have failed so far.
func (s State) FailureCount() int {
	n := 0
	for _, q := range s.QuestResults {
		if !q.Succeeded {
			n++
		}
	}
	return n
}

func (s State) rotateLeader() int {
	if len(s.Players) == 0 {
		return s.LeaderSeat
	}
	return s.LeaderSeat%len(s.Players) + 1
}
