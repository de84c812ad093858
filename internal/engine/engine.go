// Package engine holds the pure game state machine. Every operation
// takes a State value and returns a new one; failures leave the input
// untouched and are reported as sentinel errors.
package engine

import (
	"math/rand"
	"time"

	"github.com/nightvote/resistance-backend/internal/rules"
)

// Windows carries the configured submission deadlines. Deadlines are
// stored in state as wall-clock values so they survive reconnects.
type Windows struct {
	Vote  time.Duration
	Quest time.Duration
}

// shufflePlayers is a var so tests can pin role assignment.
var shufflePlayers = func(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}

// CreateGame returns a fresh lobby with the host in seat 1.
func CreateGame(id string, host Player, now time.Time) State {
	// The creator's connection attaches separately; until then the
	// host counts as disconnected.
	host.Seat = 1
	host.Role = RoleUnassigned
	host.Connected = false
	return State{
		ID:           id,
		Phase:        PhaseLobby,
		Players:      []Player{host},
		HostID:       host.ID,
		Round:        1,
		Turn:         1,
		LeaderSeat:   1,
		Votes:        map[string]Vote{},
		QuestActions: map[string]QuestAction{},
		QuestResults: []QuestResolution{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Join seats a new player at the next seat.
func Join(s State, p Player, now time.Time) (State, error) {
	if s.Phase != PhaseLobby {
		return s, ErrInvalidPhase
	}
	if len(s.Players) >= rules.MaxPlayers {
		return s, ErrCapacityExceeded
	}
	if _, ok := s.PlayerByID(p.ID); ok {
		return s, ErrDuplicatePlayer
	}
	c := s.clone()
	p.Seat = len(c.Players) + 1
	p.Role = RoleUnassigned
	p.Connected = true
	c.Players = append(c.Players, p)
	c.UpdatedAt = now
	return c, nil
}

// Advance runs the automatic phase transitions. team_proposal and
// endgame never auto-advance; they need an explicit player command.
func Advance(s State, w Windows, now time.Time) (State, error) {
	switch s.Phase {
	case PhaseLobby:
		return startGame(s, now)

	case PhaseRoleAssignment:
		c := s.clone()
		c.Phase = PhaseTeamProposal
		c.UpdatedAt = now
		return c, nil

	case PhaseVoting:
		return resolveVote(s, w, now)

	case PhaseQuest:
		return resolveQuest(s, now)

	default:
		return s, ErrCannotAutoAdvance
	}
}

func startGame(s State, now time.Time) (State, error) {
	if len(s.Players) < rules.MinPlayers {
		return s, ErrInsufficientPlayers
	}
	spies, err := rules.SpyCount(len(s.Players))
	if err != nil {
		return s, err
	}
	c := s.clone()
	// Uniform draw without replacement over seat indexes.
	idx := make([]int, len(c.Players))
	for i := range idx {
		idx[i] = i
	}
	shufflePlayers(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	for n, i := range idx {
		if n < spies {
			c.Players[i].Role = RoleSpy
		} else {
			c.Players[i].Role = RoleResistance
		}
	}
	c.Phase = PhaseRoleAssignment
	c.UpdatedAt = now
	return c, nil
}

func resolveVote(s State, w Windows, now time.Time) (State, error) {
	if len(s.Votes) < len(s.Players) {
		return s, ErrIncompleteVotes
	}
	approvals, rejections := 0, 0
	for _, v := range s.Votes {
		if v == VoteApprove {
			approvals++
		} else {
			rejections++
		}
	}
	c := s.clone()
	if approvals > rejections {
		c.Phase = PhaseQuest
		c.QuestActions = map[string]QuestAction{}
		deadline := now.Add(w.Quest)
		c.QuestEndsAt = &deadline
		c.VoteEndsAt = nil
		c.UpdatedAt = now
		return c, nil
	}
	c.FailedProposals++
	if c.FailedProposals >= rules.MaxFailedProposals {
		return endGame(c, WinnerSpies, now), nil
	}
	c.Phase = PhaseTeamProposal
	c.LeaderSeat = c.rotateLeader()
	c.ProposedTeam = nil
	c.Votes = map[string]Vote{}
	c.VoteEndsAt = nil
	c.Turn++
	c.UpdatedAt = now
	return c, nil
}

func resolveQuest(s State, now time.Time) (State, error) {
	for _, id := range s.ProposedTeam {
		if _, ok := s.QuestActions[id]; !ok {
			return s, ErrIncompleteQuestActions
		}
	}
	failCount := 0
	for _, a := range s.QuestActions {
		if a == QuestFail {
			failCount++
		}
	}
	approvals, rejections := 0, 0
	for _, v := range s.Votes {
		if v == VoteApprove {
			approvals++
		} else {
			rejections++
		}
	}
	c := s.clone()
	c.QuestResults = append(c.QuestResults, QuestResolution{
		Quest:      c.Round,
		Team:       append([]string(nil), c.ProposedTeam...),
		Approvals:  approvals,
		Rejections: rejections,
		Succeeded:  failCount == 0,
		FailCount:  failCount,
	})
	c.ProposedTeam = nil
	c.Votes = map[string]Vote{}
	c.QuestActions = map[string]QuestAction{}
	c.VoteEndsAt = nil
	c.QuestEndsAt = nil
	c.LeaderSeat = c.rotateLeader()
	c.Round++
	c.Turn++

	switch {
	case c.SuccessCount() >= 3:
		return endGame(c, WinnerResistance, now), nil
	case c.FailureCount() >= 3, c.Round > rules.Rounds:
		return endGame(c, WinnerSpies, now), nil
	}
	c.Phase = PhaseTeamProposal
	c.UpdatedAt = now
	return c, nil
}

func endGame(c State, w Winner, now time.Time) State {
	c.Phase = PhaseEndgame
	c.Winner = w
	c.VoteEndsAt = nil
	c.QuestEndsAt = nil
	c.UpdatedAt = now
	return c
}

// ProposeTeam moves the game into voting on the leader's team.
func ProposeTeam(s State, leaderID string, team []string, w Windows, now time.Time) (State, error) {
	if s.Phase != PhaseTeamProposal {
		return s, ErrInvalidPhase
	}
	if s.Leader().ID != leaderID {
		return s, ErrNotLeader
	}
	size, err := rules.TeamSize(len(s.Players), s.Round)
	if err != nil {
		return s, err
	}
	if len(team) != size {
		return s, ErrWrongTeamSize
	}
	seen := map[string]bool{}
	for _, id := range team {
		if seen[id] {
			return s, ErrDuplicateTeamMember
		}
		seen[id] = true
		if _, ok := s.PlayerByID(id); !ok {
			return s, ErrUnknownPlayer
		}
	}
	c := s.clone()
	c.Phase = PhaseVoting
	c.ProposedTeam = append([]string(nil), team...)
	c.Votes = map[string]Vote{}
	deadline := now.Add(w.Vote)
	c.VoteEndsAt = &deadline
	c.UpdatedAt = now
	return c, nil
}

// SubmitVote records one player's vote on the proposed team.
func SubmitVote(s State, playerID string, v Vote, now time.Time) (State, error) {
	if s.Phase != PhaseVoting {
		return s, ErrInvalidPhase
	}
	if _, ok := s.PlayerByID(playerID); !ok {
		return s, ErrUnknownPlayer
	}
	if s.VoteEndsAt != nil && now.After(*s.VoteEndsAt) {
		return s, ErrWindowClosed
	}
	if _, ok := s.Votes[playerID]; ok {
		return s, ErrDuplicateVote
	}
	c := s.clone()
	c.Votes[playerID] = v
	c.UpdatedAt = now
	return c, nil
}

// SubmitQuestAction records a team member's secret success/fail card.
func SubmitQuestAction(s State, playerID string, a QuestAction, now time.Time) (State, error) {
	if s.Phase != PhaseQuest {
		return s, ErrInvalidPhase
	}
	if s.QuestEndsAt != nil && now.After(*s.QuestEndsAt) {
		return s, ErrWindowClosed
	}
	if !s.OnTeam(playerID) {
		return s, ErrNotOnTeam
	}
	if _, ok := s.QuestActions[playerID]; ok {
		return s, ErrDuplicateAction
	}
	c := s.clone()
	c.QuestActions[playerID] = a
	c.UpdatedAt = now
	return c, nil
}

// DefaultVote records a reject on behalf of a silent player. Unlike
// SubmitVote it ignores the deadline; auto-resolution runs precisely
// when the window has already closed.
func DefaultVote(s State, playerID string, now time.Time) (State, error) {
	if s.Phase != PhaseVoting {
		return s, ErrInvalidPhase
	}
	if _, ok := s.PlayerByID(playerID); !ok {
		return s, ErrUnknownPlayer
	}
	if _, ok := s.Votes[playerID]; ok {
		return s, ErrDuplicateVote
	}
	c := s.clone()
	c.Votes[playerID] = VoteReject
	c.UpdatedAt = now
	return c, nil
}

// DefaultQuestAction records a success on behalf of a silent team
// member. Absence is never treated as sabotage.
func DefaultQuestAction(s State, playerID string, now time.Time) (State, error) {
	if s.Phase != PhaseQuest {
		return s, ErrInvalidPhase
	}
	if !s.OnTeam(playerID) {
		return s, ErrNotOnTeam
	}
	if _, ok := s.QuestActions[playerID]; ok {
		return s, ErrDuplicateAction
	}
	c := s.clone()
	c.QuestActions[playerID] = QuestSuccess
	c.UpdatedAt = now
	return c, nil
}

// SetConnected flips a player's liveness flag. This is bookkeeping,
// not a rule transition; it never rolls anything back.
func SetConnected(s State, playerID string, connected bool, now time.Time) (State, error) {
	if _, ok := s.PlayerByID(playerID); !ok {
		return s, ErrUnknownPlayer
	}
	c := s.clone()
	for i := range c.Players {
		if c.Players[i].ID == playerID {
			c.Players[i].Connected = connected
		}
	}
	c.UpdatedAt = now
	return c, nil
}
