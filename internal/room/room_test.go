package room

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nightvote/resistance-backend/internal/engine"
	"github.com/nightvote/resistance-backend/internal/store"
	"github.com/nightvote/resistance-backend/internal/types"
)

var testCfg = Config{
	Windows:          engine.Windows{Vote: time.Minute, Quest: time.Minute},
	HeartbeatTimeout: 45 * time.Second,
	DisconnectGrace:  12 * time.Second,
}

func fivePlayers() []engine.Player {
	return []engine.Player{
		{ID: "p1", Name: "P1", Role: engine.RoleSpy, Seat: 1, Connected: true},
		{ID: "p2", Name: "P2", Role: engine.RoleSpy, Seat: 2, Connected: true},
		{ID: "p3", Name: "P3", Role: engine.RoleResistance, Seat: 3, Connected: true},
		{ID: "p4", Name: "P4", Role: engine.RoleResistance, Seat: 4, Connected: true},
		{ID: "p5", Name: "P5", Role: engine.RoleResistance, Seat: 5, Connected: true},
	}
}

func proposalGame() engine.State {
	return engine.State{
		ID:           "g1",
		Phase:        engine.PhaseTeamProposal,
		Players:      fivePlayers(),
		HostID:       "p1",
		Round:        1,
		Turn:         1,
		LeaderSeat:   1,
		Votes:        map[string]engine.Vote{},
		QuestActions: map[string]engine.QuestAction{},
	}
}

func votingGame(voteEnds time.Time) engine.State {
	st := proposalGame()
	st.Phase = engine.PhaseVoting
	st.ProposedTeam = []string{"p1", "p2"}
	st.VoteEndsAt = &voteEnds
	return st
}

type fixture struct {
	room     *Room
	games    *store.GameStore
	sessions *store.SessionStore
	actions  *store.ActionCache
}

func newFixture(t *testing.T, st engine.State) *fixture {
	t.Helper()
	f := &fixture{
		games:    store.NewGameStore(),
		sessions: store.NewSessionStore(),
		actions:  store.NewActionCache(2 * time.Minute),
	}
	f.games.Save(st)
	for _, p := range st.Players {
		f.sessions.Put(store.SessionRecord{
			Token:    "tok-" + p.ID,
			GameID:   st.ID,
			JoinCode: "QQQQQ",
			PlayerID: p.ID,
		})
	}
	f.room = New(st.ID, "QQQQQ", testCfg, f.games, f.sessions, f.actions, zap.NewNop(), nil)
	t.Cleanup(func() { f.room.Inbox() <- Shutdown{} })
	return f
}

func (f *fixture) attach(t *testing.T, connID, token string) chan types.ServerMessage {
	t.Helper()
	out := make(chan types.ServerMessage, 32)
	reply := make(chan AttachResult, 1)
	f.room.Inbox() <- Attach{ConnID: connID, Token: token, Outbox: out, Reply: reply}
	select {
	case res := <-reply:
		if res.Err != nil {
			t.Fatalf("attach %s: %v", connID, res.Err)
		}
	case <-time.After(time.Second):
		t.Fatalf("attach %s timed out", connID)
	}
	return out
}

func (f *fixture) status(t *testing.T) Status {
	t.Helper()
	reply := make(chan Status, 1)
	f.room.Inbox() <- GetState{Reply: reply}
	select {
	case s := <-reply:
		return s
	case <-time.After(time.Second):
		t.Fatalf("status timed out")
		return Status{}
	}
}

// waitForType drains messages until one of the wanted type arrives.
func waitForType(t *testing.T, ch <-chan types.ServerMessage, typ string) types.ServerMessage {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				t.Fatalf("outbox closed waiting for %q", typ)
			}
			if m.Type == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q", typ)
		}
	}
}

func recvNoMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case m, ok := <-ch:
		if ok {
			t.Fatalf("expected no message, got %+v", m)
		}
	case <-time.After(within):
	}
}

func TestAttachHydratesConnection(t *testing.T) {
	f := newFixture(t, votingGame(time.Now().Add(time.Minute)))
	out := f.attach(t, "c1", "tok-p1")

	snap := waitForType(t, out, types.EvtGameState)
	if snap.Private == nil || snap.Private.Role != engine.RoleSpy {
		t.Fatalf("private view missing or wrong role: %+v", snap.Private)
	}
	if snap.State == nil || snap.State.Phase != engine.PhaseVoting {
		t.Fatalf("public view missing or wrong phase: %+v", snap.State)
	}
}

func TestAttachRejectsForeignToken(t *testing.T) {
	f := newFixture(t, proposalGame())
	f.sessions.Put(store.SessionRecord{Token: "other", GameID: "g2", PlayerID: "px"})

	out := make(chan types.ServerMessage, 4)
	reply := make(chan AttachResult, 1)
	f.room.Inbox() <- Attach{ConnID: "c1", Token: "other", Outbox: out, Reply: reply}
	res := <-reply
	if res.Err == nil {
		t.Fatalf("expected rejection for a token from another game")
	}
}

func TestProposeTeamBroadcasts(t *testing.T) {
	f := newFixture(t, proposalGame())
	leader := f.attach(t, "c1", "tok-p1")
	other := f.attach(t, "c2", "tok-p3")
	waitForType(t, leader, types.EvtGameState)
	waitForType(t, other, types.EvtGameState)

	f.room.Inbox() <- Command{ConnID: "c1", Kind: types.MsgProposeTeam, Team: []string{"p1", "p2"}}

	echo := waitForType(t, other, types.EvtTeamProposed)
	if echo.LeaderID != "p1" || len(echo.TeamPlayerIDs) != 2 {
		t.Fatalf("bad echo: %+v", echo)
	}
	phase := waitForType(t, other, types.EvtPhaseChanged)
	if phase.Phase != string(engine.PhaseVoting) {
		t.Fatalf("want voting, got %s", phase.Phase)
	}
	if st := f.status(t).State; st.Phase != engine.PhaseVoting {
		t.Fatalf("store not updated: %v", st.Phase)
	}
}

func TestNonLeaderProposalRejected(t *testing.T) {
	f := newFixture(t, proposalGame())
	out := f.attach(t, "c1", "tok-p2")
	waitForType(t, out, types.EvtGameState)

	f.room.Inbox() <- Command{ConnID: "c1", Kind: types.MsgProposeTeam, Team: []string{"p1", "p2"}}

	errMsg := waitForType(t, out, types.EvtError)
	if errMsg.Error == "" {
		t.Fatalf("expected error payload")
	}
	if st := f.status(t).State; st.Phase != engine.PhaseTeamProposal {
		t.Fatalf("state must be unchanged, got %v", st.Phase)
	}
}

func TestAdvancePhaseIsHostOnly(t *testing.T) {
	st := proposalGame()
	st.Phase = engine.PhaseLobby
	f := newFixture(t, st)
	out := f.attach(t, "c1", "tok-p2")
	waitForType(t, out, types.EvtLobbyState)

	f.room.Inbox() <- Command{ConnID: "c1", Kind: types.MsgAdvancePhase}
	waitForType(t, out, types.EvtError)

	host := f.attach(t, "c2", "tok-p1")
	waitForType(t, host, types.EvtLobbyState)
	f.room.Inbox() <- Command{ConnID: "c2", Kind: types.MsgAdvancePhase}
	phase := waitForType(t, host, types.EvtPhaseChanged)
	if phase.Phase != string(engine.PhaseRoleAssignment) {
		t.Fatalf("want role_assignment, got %s", phase.Phase)
	}
}

func TestIdempotentRetryAppliesOnce(t *testing.T) {
	f := newFixture(t, votingGame(time.Now().Add(time.Minute)))
	out := f.attach(t, "c1", "tok-p1")
	waitForType(t, out, types.EvtGameState)

	vote := Command{ConnID: "c1", Kind: types.MsgSubmitVote, Vote: engine.VoteApprove, ActionID: "a1"}
	f.room.Inbox() <- vote
	waitForType(t, out, types.EvtVoteSubmitted)
	waitForType(t, out, types.EvtGameState)

	// Same id, same payload: silently re-acknowledged, no second apply.
	f.room.Inbox() <- vote
	waitForType(t, out, types.EvtVoteSubmitted)
	waitForType(t, out, types.EvtGameState)
	if n := len(f.status(t).State.Votes); n != 1 {
		t.Fatalf("retry applied twice: %d votes", n)
	}

	// Same id, different payload: conflict, no mutation.
	f.room.Inbox() <- Command{ConnID: "c1", Kind: types.MsgSubmitVote, Vote: engine.VoteReject, ActionID: "a1"}
	waitForType(t, out, types.EvtError)
	st := f.status(t).State
	if len(st.Votes) != 1 || st.Votes["p1"] != engine.VoteApprove {
		t.Fatalf("conflicting retry mutated state: %+v", st.Votes)
	}
}

func TestPartialVotesDoNotResolve(t *testing.T) {
	st := votingGame(time.Now().Add(time.Minute))
	st.Votes = map[string]engine.Vote{
		"p1": engine.VoteApprove,
		"p2": engine.VoteApprove,
		"p3": engine.VoteApprove,
	}
	f := newFixture(t, st)
	out := f.attach(t, "c1", "tok-p4")
	waitForType(t, out, types.EvtGameState)

	f.room.Inbox() <- Command{ConnID: "c1", Kind: types.MsgSubmitVote, Vote: engine.VoteReject}
	waitForType(t, out, types.EvtVoteSubmitted)

	// Four of five votes in; the phase must hold for the last voter.
	if got := f.status(t).State; got.Phase != engine.PhaseVoting {
		t.Fatalf("resolved early: %v", got.Phase)
	}
}

func TestVoteCompletionAdvancesToQuest(t *testing.T) {
	st := votingGame(time.Now().Add(time.Minute))
	st.Votes = map[string]engine.Vote{
		"p1": engine.VoteApprove,
		"p2": engine.VoteApprove,
		"p3": engine.VoteApprove,
		"p4": engine.VoteReject,
	}
	f := newFixture(t, st)
	out := f.attach(t, "c1", "tok-p5")
	waitForType(t, out, types.EvtGameState)

	f.room.Inbox() <- Command{ConnID: "c1", Kind: types.MsgSubmitVote, Vote: engine.VoteReject}

	waitForType(t, out, types.EvtVoteSubmitted)
	phase := waitForType(t, out, types.EvtPhaseChanged)
	if phase.Phase != string(engine.PhaseQuest) {
		t.Fatalf("want quest, got %s", phase.Phase)
	}
	got := f.status(t).State
	if got.Phase != engine.PhaseQuest || got.QuestEndsAt == nil {
		t.Fatalf("quest phase not entered cleanly: %+v", got.Phase)
	}
}

func TestSweepDefaultsDisconnectedVoter(t *testing.T) {
	st := votingGame(time.Now().Add(time.Minute))
	for i := range st.Players {
		if st.Players[i].ID == "p5" {
			st.Players[i].Connected = false
		}
	}
	st.Votes = map[string]engine.Vote{
		"p1": engine.VoteApprove,
		"p2": engine.VoteApprove,
		"p3": engine.VoteApprove,
		"p4": engine.VoteApprove,
	}
	f := newFixture(t, st)
	out := f.attach(t, "c1", "tok-p1")
	waitForType(t, out, types.EvtGameState)

	// p5 has been offline since room start; past the grace period the
	// sweep defaults the missing vote to reject and resolves.
	f.room.Inbox() <- Sweep{Now: time.Now().Add(20 * time.Second)}

	phase := waitForType(t, out, types.EvtPhaseChanged)
	if phase.Phase != string(engine.PhaseQuest) {
		t.Fatalf("want quest after defaults, got %s", phase.Phase)
	}
	got := f.status(t).State
	if got.Votes["p5"] != engine.VoteReject {
		t.Fatalf("p5 not defaulted to reject: %+v", got.Votes)
	}
}

func TestSweepWithinGraceDoesNothing(t *testing.T) {
	st := votingGame(time.Now().Add(time.Minute))
	for i := range st.Players {
		if st.Players[i].ID == "p5" {
			st.Players[i].Connected = false
		}
	}
	st.Votes = map[string]engine.Vote{
		"p1": engine.VoteApprove,
		"p2": engine.VoteApprove,
		"p3": engine.VoteApprove,
		"p4": engine.VoteApprove,
	}
	f := newFixture(t, st)
	out := f.attach(t, "c1", "tok-p1")
	waitForType(t, out, types.EvtGameState)

	f.room.Inbox() <- Sweep{Now: time.Now().Add(2 * time.Second)}

	if got := f.status(t).State; got.Phase != engine.PhaseVoting {
		t.Fatalf("resolved inside the grace period: %v", got.Phase)
	}
}

func TestSweepDefaultsQuestToSuccess(t *testing.T) {
	st := proposalGame()
	st.Phase = engine.PhaseQuest
	st.ProposedTeam = []string{"p1", "p2"}
	deadline := time.Now().Add(-time.Second)
	st.QuestEndsAt = &deadline
	st.QuestActions = map[string]engine.QuestAction{"p1": engine.QuestFail}
	st.Votes = map[string]engine.Vote{
		"p1": engine.VoteApprove, "p2": engine.VoteApprove, "p3": engine.VoteApprove,
		"p4": engine.VoteReject, "p5": engine.VoteReject,
	}
	f := newFixture(t, st)
	out := f.attach(t, "c1", "tok-p3")
	waitForType(t, out, types.EvtGameState)

	// Deadline passed: p2's missing action defaults to success, the
	// quest resolves, and the single fail still sabotages it.
	f.room.Inbox() <- Sweep{Now: time.Now()}

	phase := waitForType(t, out, types.EvtPhaseChanged)
	if phase.Phase != string(engine.PhaseTeamProposal) {
		t.Fatalf("want team_proposal, got %s", phase.Phase)
	}
	got := f.status(t).State
	if len(got.QuestResults) != 1 {
		t.Fatalf("quest not resolved")
	}
	q := got.QuestResults[0]
	if q.Succeeded || q.FailCount != 1 {
		t.Fatalf("want sabotaged quest, got %+v", q)
	}
}

func TestDetachMarksDisconnected(t *testing.T) {
	f := newFixture(t, votingGame(time.Now().Add(time.Minute)))
	host := f.attach(t, "c1", "tok-p1")
	waitForType(t, host, types.EvtGameState)
	other := f.attach(t, "c2", "tok-p2")
	waitForType(t, other, types.EvtGameState)

	f.room.Inbox() <- Detach{ConnID: "c2"}

	left := waitForType(t, host, types.EvtPlayerLeft)
	if left.PlayerID != "p2" {
		t.Fatalf("want p2 left, got %s", left.PlayerID)
	}
	s := f.status(t)
	p, _ := s.State.PlayerByID("p2")
	if p.Connected {
		t.Fatalf("p2 still marked connected")
	}
	if _, ok := s.Offline["p2"]; !ok {
		t.Fatalf("p2 missing from offline tracking")
	}
}

func TestSecondDeviceKeepsPlayerConnected(t *testing.T) {
	f := newFixture(t, votingGame(time.Now().Add(time.Minute)))
	first := f.attach(t, "c1", "tok-p1")
	waitForType(t, first, types.EvtGameState)
	second := f.attach(t, "c2", "tok-p1")
	waitForType(t, second, types.EvtGameState)

	f.room.Inbox() <- Detach{ConnID: "c1"}

	s := f.status(t)
	p, _ := s.State.PlayerByID("p1")
	if !p.Connected {
		t.Fatalf("player must stay connected while another device is bound")
	}
	if s.NumConns != 1 {
		t.Fatalf("want one connection left, got %d", s.NumConns)
	}
}

func TestSweepDropsSilentConnection(t *testing.T) {
	f := newFixture(t, proposalGame())
	out := f.attach(t, "c1", "tok-p1")
	waitForType(t, out, types.EvtGameState)

	// No heartbeat for longer than the timeout: the sweep detaches the
	// connection like any other disconnect.
	f.room.Inbox() <- Sweep{Now: time.Now().Add(time.Minute)}

	s := f.status(t)
	if s.NumConns != 0 {
		t.Fatalf("silent connection survived the sweep: %d conns", s.NumConns)
	}
	p, _ := s.State.PlayerByID("p1")
	if p.Connected {
		t.Fatalf("p1 still marked connected")
	}
	if _, ok := s.Offline["p1"]; !ok {
		t.Fatalf("p1 missing from offline tracking")
	}
	for {
		select {
		case _, ok := <-out:
			if !ok {
				return
			}
		case <-time.After(time.Second):
			t.Fatalf("dropped outbox left open")
		}
	}
}

func TestHeartbeatKeepsConnectionAlive(t *testing.T) {
	f := newFixture(t, proposalGame())
	out := f.attach(t, "c1", "tok-p1")
	waitForType(t, out, types.EvtGameState)

	f.room.Inbox() <- Heartbeat{ConnID: "c1"}
	f.room.Inbox() <- Sweep{Now: time.Now().Add(30 * time.Second)}

	s := f.status(t)
	if s.NumConns != 1 {
		t.Fatalf("heartbeating connection dropped")
	}
	p, _ := s.State.PlayerByID("p1")
	if !p.Connected {
		t.Fatalf("p1 marked disconnected despite heartbeat")
	}
}

func TestSlowConnectionIsDropped(t *testing.T) {
	f := newFixture(t, proposalGame())
	slow := make(chan types.ServerMessage, 1)
	reply := make(chan AttachResult, 1)
	f.room.Inbox() <- Attach{ConnID: "c1", Token: "tok-p2", Outbox: slow, Reply: reply}
	if res := <-reply; res.Err != nil {
		t.Fatalf("attach: %v", res.Err)
	}
	leader := f.attach(t, "c2", "tok-p1")
	waitForType(t, leader, types.EvtGameState)

	// The one-slot outbox is already full with the attach snapshot, so
	// the next broadcast overflows it and the room drops the conn,
	// closing the outbox so the socket side can shut down too.
	f.room.Inbox() <- Command{ConnID: "c2", Kind: types.MsgProposeTeam, Team: []string{"p1", "p2"}}
	waitForType(t, leader, types.EvtTeamProposed)

	<-slow // the buffered attach snapshot
	select {
	case _, ok := <-slow:
		if ok {
			t.Fatalf("expected closed outbox, got a message")
		}
	case <-time.After(time.Second):
		t.Fatalf("slow outbox not closed")
	}
	if s := f.status(t); s.NumConns != 1 {
		t.Fatalf("want one connection left, got %d", s.NumConns)
	}
}

func TestSweepVanishedGameIsNoop(t *testing.T) {
	f := newFixture(t, proposalGame())
	out := f.attach(t, "c1", "tok-p1")
	waitForType(t, out, types.EvtGameState)

	f.games.Delete("g1")
	f.room.Inbox() <- Sweep{Now: time.Now().Add(time.Hour)}

	// Still responsive, no broadcasts, no panic.
	if s := f.status(t); s.NumConns != 1 {
		t.Fatalf("connection dropped by vanished-game sweep")
	}
	recvNoMsg(t, out, 50*time.Millisecond)
}
