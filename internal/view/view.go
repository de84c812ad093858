// Package view derives broadcast-safe projections from a game state.
// The public projection never carries a role; the private projection
// adds the viewer's own role and, for spies only, the spy roster.
package view

import (
	"errors"
	"time"

	"github.com/nightvote/resistance-backend/internal/engine"
)

var ErrPlayerNotFound = errors.New("player not part of this game")

type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Seat      int    `json:"seat"`
	Connected bool   `json:"connected"`
}

type QuestView struct {
	Quest      int      `json:"quest"`
	Team       []string `json:"team"`
	Approvals  int      `json:"approvals"`
	Rejections int      `json:"rejections"`
	Succeeded  bool     `json:"succeeded"`
	FailCount  int      `json:"failCount"`
}

// GameView is the role-free projection, safe for room-wide broadcast.
// Votes and quest actions appear as submitter identities only.
type GameView struct {
	ID              string        `json:"id"`
	Phase           engine.Phase  `json:"phase"`
	Players         []PlayerView  `json:"players"`
	HostID          string        `json:"hostId"`
	Round           int           `json:"round"`
	Turn            int           `json:"turn"`
	LeaderSeat      int           `json:"leaderSeat"`
	LeaderID        string        `json:"leaderId"`
	ProposedTeam    []string      `json:"proposedTeam"`
	VotedPlayerIDs  []string      `json:"votedPlayerIds"`
	ActedPlayerIDs  []string      `json:"actedPlayerIds"`
	VoteEndsAt      *time.Time    `json:"voteEndsAt,omitempty"`
	QuestEndsAt     *time.Time    `json:"questEndsAt,omitempty"`
	FailedProposals int           `json:"failedProposals"`
	QuestResults    []QuestView   `json:"questResults"`
	Winner          engine.Winner `json:"winner,omitempty"`
}

// PrivateView is GameView plus the viewer's hidden information.
type PrivateView struct {
	GameView
	Role       engine.Role `json:"role"`
	KnownSpies []string    `json:"knownSpies"`
}

// Public projects the role-free view.
func Public(s engine.State) GameView {
	players := make([]PlayerView, len(s.Players))
	voted := []string{}
	acted := []string{}
	for i, p := range s.Players {
		players[i] = PlayerView{ID: p.ID, Name: p.Name, Seat: p.Seat, Connected: p.Connected}
		if _, ok := s.Votes[p.ID]; ok {
			voted = append(voted, p.ID)
		}
		if _, ok := s.QuestActions[p.ID]; ok {
			acted = append(acted, p.ID)
		}
	}
	results := make([]QuestView, len(s.QuestResults))
	for i, q := range s.QuestResults {
		results[i] = QuestView{
			Quest:      q.Quest,
			Team:       append([]string(nil), q.Team...),
			Approvals:  q.Approvals,
			Rejections: q.Rejections,
			Succeeded:  q.Succeeded,
			FailCount:  q.FailCount,
		}
	}
	return GameView{
		ID:              s.ID,
		Phase:           s.Phase,
		Players:         players,
		HostID:          s.HostID,
		Round:           s.Round,
		Turn:            s.Turn,
		LeaderSeat:      s.LeaderSeat,
		LeaderID:        s.Leader().ID,
		ProposedTeam:    append([]string{}, s.ProposedTeam...),
		VotedPlayerIDs:  voted,
		ActedPlayerIDs:  acted,
		VoteEndsAt:      s.VoteEndsAt,
		QuestEndsAt:     s.QuestEndsAt,
		FailedProposals: s.FailedProposals,
		QuestResults:    results,
		Winner:          s.Winner,
	}
}

// ForPlayer projects the private view for one viewer. Spies see the
// full spy roster, themselves included; everyone else sees none.
func ForPlayer(s engine.State, playerID string) (PrivateView, error) {
	p, ok := s.PlayerByID(playerID)
	if !ok {
		return PrivateView{}, ErrPlayerNotFound
	}
	v := PrivateView{
		GameView:   Public(s),
		Role:       p.Role,
		KnownSpies: []string{},
	}
	if p.Role == engine.RoleSpy {
		v.KnownSpies = s.SpyIDs()
	}
	return v, nil
}
