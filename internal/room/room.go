// Package room runs one actor goroutine per game. All transitions for
// a game id pass through its inbox, which serializes them; different
// games share nothing and proceed in parallel.
package room

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nightvote/resistance-backend/internal/engine"
	"github.com/nightvote/resistance-backend/internal/store"
	"github.com/nightvote/resistance-backend/internal/types"
	"github.com/nightvote/resistance-backend/internal/view"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrUnknownGame    = errors.New("unknown game")
	ErrNotHost        = errors.New("only the host may advance the phase")
	ErrUnknownCommand = errors.New("unsupported command")
)

// Config carries the per-room timing knobs.
type Config struct {
	Windows          engine.Windows
	HeartbeatTimeout time.Duration
	DisconnectGrace  time.Duration
}

// connHandle is one physical connection bound to a session. Several
// handles may share a token (multi-device).
type connHandle struct {
	id       string
	token    string
	playerID string
	outbox   chan types.ServerMessage
	lastSeen time.Time
}

type Room struct {
	gameID   string
	joinCode string
	cfg      Config
	games    *store.GameStore
	sessions *store.SessionStore
	actions  *store.ActionCache
	log      *zap.Logger

	inbox chan Msg
	conns map[string]*connHandle
	// offline tracks when a player's last connection went away, for
	// the continuous-disconnect grace check.
	offline map[string]time.Time
	onEmpty func(gameID string)
}

// New starts the room's actor loop. onEmpty fires once the game has
// ended and the last connection is gone.
func New(gameID, joinCode string, cfg Config, games *store.GameStore, sessions *store.SessionStore, actions *store.ActionCache, log *zap.Logger, onEmpty func(gameID string)) *Room {
	r := &Room{
		gameID:   gameID,
		joinCode: joinCode,
		cfg:      cfg,
		games:    games,
		sessions: sessions,
		actions:  actions,
		log:      log,
		inbox:    make(chan Msg, 64),
		conns:    make(map[string]*connHandle),
		offline:  make(map[string]time.Time),
	}
	if st, ok := games.Get(gameID); ok {
		now := time.Now()
		for _, p := range st.Players {
			if !p.Connected {
				r.offline[p.ID] = now
			}
		}
	}
	go r.loop()
	return r
}

func (r *Room) Inbox() chan<- Msg { return r.inbox }

func (r *Room) GameID() string   { return r.gameID }
func (r *Room) JoinCode() string { return r.joinCode }

// TrySweep offers a sweep tick without blocking; a busy room skips
// the tick and catches up on the next one.
func (r *Room) TrySweep(now time.Time) {
	select {
	case r.inbox <- Sweep{Now: now}:
	default:
	}
}

func (r *Room) loop() {
	for m := range r.inbox {
		switch msg := m.(type) {
		case Join:
			r.handleJoin(msg)
		case Attach:
			r.handleAttach(msg)
		case Detach:
			r.detach(msg.ConnID, time.Now())
		case Heartbeat:
			if c, ok := r.conns[msg.ConnID]; ok {
				c.lastSeen = time.Now()
			}
		case Command:
			r.handleCommand(msg)
		case Sweep:
			r.handleSweep(msg.Now)
		case GetState:
			msg.Reply <- r.status()
		case Shutdown:
			r.shutdown()
			return
		}
	}
}

func (r *Room) status() Status {
	st, _ := r.games.Get(r.gameID)
	offline := make(map[string]time.Time, len(r.offline))
	for k, v := range r.offline {
		offline[k] = v
	}
	return Status{NumConns: len(r.conns), Offline: offline, State: st}
}

func (r *Room) shutdown() {
	for id, c := range r.conns {
		close(c.outbox)
		delete(r.conns, id)
	}
}

func (r *Room) handleJoin(msg Join) {
	now := time.Now()
	st, ok := r.games.Get(r.gameID)
	if !ok {
		msg.Reply <- JoinResult{Err: ErrUnknownGame}
		return
	}
	player := engine.Player{ID: uuid.NewString(), Name: msg.Name}
	next, err := engine.Join(st, player, now)
	if err != nil {
		msg.Reply <- JoinResult{Err: err}
		return
	}
	token := uuid.NewString()
	r.sessions.Put(store.SessionRecord{
		Token:    token,
		GameID:   r.gameID,
		JoinCode: r.joinCode,
		PlayerID: player.ID,
	})
	r.games.Save(next)
	r.conns[msg.ConnID] = &connHandle{
		id:       msg.ConnID,
		token:    token,
		playerID: player.ID,
		outbox:   msg.Outbox,
		lastSeen: now,
	}
	msg.Reply <- JoinResult{Token: token, PlayerID: player.ID}
	r.broadcast(next, types.ServerMessage{Type: types.EvtPlayerJoined, PlayerID: player.ID})
}

func (r *Room) handleAttach(msg Attach) {
	now := time.Now()
	rec, ok := r.sessions.Get(msg.Token)
	if !ok || rec.GameID != r.gameID {
		msg.Reply <- AttachResult{Err: ErrUnknownSession}
		return
	}
	st, ok := r.games.Get(r.gameID)
	if !ok {
		msg.Reply <- AttachResult{Err: ErrUnknownGame}
		return
	}
	prev, _ := st.PlayerByID(rec.PlayerID)
	next, err := engine.SetConnected(st, rec.PlayerID, true, now)
	if err != nil {
		msg.Reply <- AttachResult{Err: err}
		return
	}
	r.games.Save(next)
	delete(r.offline, rec.PlayerID)
	r.conns[msg.ConnID] = &connHandle{
		id:       msg.ConnID,
		token:    msg.Token,
		playerID: rec.PlayerID,
		outbox:   msg.Outbox,
		lastSeen: now,
	}
	msg.Reply <- AttachResult{PlayerID: rec.PlayerID}
	if prev.Connected {
		// Extra device; just hydrate the new connection.
		r.sendSnapshot(msg.ConnID, next)
		return
	}
	r.broadcast(next, types.ServerMessage{Type: types.EvtPlayerReconnected, PlayerID: rec.PlayerID})
}

// detach removes one connection. When it was the player's last one,
// the player is marked disconnected for future auto-resolution; the
// already-applied history is never rolled back.
func (r *Room) detach(connID string, now time.Time) {
	c, ok := r.conns[connID]
	if !ok {
		return
	}
	delete(r.conns, connID)
	close(c.outbox)
	for _, other := range r.conns {
		if other.playerID == c.playerID {
			return
		}
	}
	r.offline[c.playerID] = now
	st, ok := r.games.Get(r.gameID)
	if !ok {
		return
	}
	next, err := engine.SetConnected(st, c.playerID, false, now)
	if err != nil {
		return
	}
	r.games.Save(next)
	r.broadcast(next, types.ServerMessage{Type: types.EvtPlayerLeft, PlayerID: c.playerID})
	if next.Phase == engine.PhaseEndgame && len(r.conns) == 0 && r.onEmpty != nil {
		r.onEmpty(r.gameID)
	}
}

func (r *Room) handleCommand(msg Command) {
	now := time.Now()
	c, ok := r.conns[msg.ConnID]
	if !ok {
		return
	}
	c.lastSeen = now
	st, ok := r.games.Get(r.gameID)
	if !ok {
		r.sendError(msg.ConnID, ErrUnknownGame)
		return
	}

	var fp string
	if msg.ActionID != "" {
		fp = fingerprint(msg)
		if prev, hit := r.actions.Lookup(c.token, msg.ActionID, now); hit {
			if prev.Fingerprint == fp {
				r.replay(msg.ConnID, st, msg, c.playerID)
				return
			}
			r.sendError(msg.ConnID, store.ErrConflictingRetry)
			return
		}
	}

	next, echo, err := r.apply(st, msg, c.playerID, now)
	if err != nil {
		r.sendError(msg.ConnID, err)
		return
	}
	next = r.autoAdvance(next, now)
	r.games.Save(next)
	if msg.ActionID != "" {
		r.actions.Store(c.token, msg.ActionID, msg.Kind, fp, now)
	}
	r.broadcast(next, r.transitionEvents(st, next, echo)...)
}

func (r *Room) apply(st engine.State, msg Command, playerID string, now time.Time) (engine.State, *types.ServerMessage, error) {
	switch msg.Kind {
	case types.MsgProposeTeam:
		next, err := engine.ProposeTeam(st, playerID, msg.Team, r.cfg.Windows, now)
		if err != nil {
			return st, nil, err
		}
		return next, &types.ServerMessage{
			Type:          types.EvtTeamProposed,
			LeaderID:      playerID,
			TeamPlayerIDs: msg.Team,
		}, nil

	case types.MsgSubmitVote:
		next, err := engine.SubmitVote(st, playerID, msg.Vote, now)
		if err != nil {
			return st, nil, err
		}
		return next, &types.ServerMessage{Type: types.EvtVoteSubmitted, PlayerID: playerID}, nil

	case types.MsgSubmitQuestAction:
		next, err := engine.SubmitQuestAction(st, playerID, msg.Action, now)
		if err != nil {
			return st, nil, err
		}
		return next, &types.ServerMessage{Type: types.EvtQuestSubmitted, PlayerID: playerID}, nil

	case types.MsgAdvancePhase:
		if playerID != st.HostID {
			return st, nil, ErrNotHost
		}
		next, err := engine.Advance(st, r.cfg.Windows, now)
		if err != nil {
			return st, nil, err
		}
		return next, nil, nil

	default:
		return st, nil, ErrUnknownCommand
	}
}

// autoAdvance resolves voting and quest phases as soon as the last
// submission lands, so nobody waits on the host or the sweeper.
func (r *Room) autoAdvance(st engine.State, now time.Time) engine.State {
	for {
		switch st.Phase {
		case engine.PhaseVoting:
			if len(st.Votes) < len(st.Players) {
				return st
			}
		case engine.PhaseQuest:
			if !questComplete(st) {
				return st
			}
		default:
			return st
		}
		next, err := engine.Advance(st, r.cfg.Windows, now)
		if err != nil {
			return st
		}
		st = next
	}
}

func questComplete(st engine.State) bool {
	for _, id := range st.ProposedTeam {
		if _, ok := st.QuestActions[id]; !ok {
			return false
		}
	}
	return len(st.ProposedTeam) > 0
}

// transitionEvents prefixes the snapshot fan-out with the echo and any
// phase-change notifications.
func (r *Room) transitionEvents(before, after engine.State, echo *types.ServerMessage) []types.ServerMessage {
	extras := []types.ServerMessage{}
	if echo != nil {
		extras = append(extras, *echo)
	}
	if after.Phase != before.Phase {
		extras = append(extras, types.ServerMessage{Type: types.EvtPhaseChanged, Phase: string(after.Phase)})
		if after.Phase == engine.PhaseEndgame {
			extras = append(extras, types.ServerMessage{Type: types.EvtGameEnded, Winner: string(after.Winner)})
		}
	}
	return extras
}

// replay re-acknowledges an idempotent retry without touching state.
func (r *Room) replay(connID string, st engine.State, msg Command, playerID string) {
	var echo *types.ServerMessage
	switch msg.Kind {
	case types.MsgProposeTeam:
		echo = &types.ServerMessage{Type: types.EvtTeamProposed, LeaderID: playerID, TeamPlayerIDs: msg.Team}
	case types.MsgSubmitVote:
		echo = &types.ServerMessage{Type: types.EvtVoteSubmitted, PlayerID: playerID}
	case types.MsgSubmitQuestAction:
		echo = &types.ServerMessage{Type: types.EvtQuestSubmitted, PlayerID: playerID}
	}
	if c, ok := r.conns[connID]; ok && echo != nil {
		r.send(connID, c, *echo)
	}
	r.sendSnapshot(connID, st)
}

func (r *Room) handleSweep(now time.Time) {
	st, ok := r.games.Get(r.gameID)
	if !ok {
		// Vanished between steps: a no-op, not an error.
		return
	}

	// Drop connections silent past the heartbeat timeout.
	for id, c := range r.conns {
		if now.Sub(c.lastSeen) > r.cfg.HeartbeatTimeout {
			r.detach(id, now)
		}
	}
	if st, ok = r.games.Get(r.gameID); !ok {
		return
	}

	// Default silent participants and resolve the phase.
	switch st.Phase {
	case engine.PhaseVoting:
		r.resolveStale(st, now, voters(st), engine.DefaultVote, st.VoteEndsAt)
	case engine.PhaseQuest:
		r.resolveStale(st, now, st.ProposedTeam, engine.DefaultQuestAction, st.QuestEndsAt)
	}
}

func voters(st engine.State) []string {
	ids := make([]string, len(st.Players))
	for i, p := range st.Players {
		ids[i] = p.ID
	}
	return ids
}

func (r *Room) resolveStale(st engine.State, now time.Time, required []string, apply func(engine.State, string, time.Time) (engine.State, error), deadline *time.Time) {
	pastDeadline := deadline != nil && now.After(*deadline)
	changed := false
	for _, id := range required {
		if submitted(st, id) {
			continue
		}
		if !pastDeadline && !r.offlinePastGrace(id, now) {
			continue
		}
		next, err := apply(st, id, now)
		if err != nil {
			r.log.Warn("auto-resolve default failed",
				zap.String("player", id), zap.Error(err))
			continue
		}
		st = next
		changed = true
	}
	if !changed {
		return
	}
	before := st
	st = r.autoAdvance(st, now)
	r.games.Save(st)
	r.broadcast(st, r.transitionEvents(before, st, nil)...)
}

func submitted(st engine.State, playerID string) bool {
	switch st.Phase {
	case engine.PhaseVoting:
		_, ok := st.Votes[playerID]
		return ok
	case engine.PhaseQuest:
		_, ok := st.QuestActions[playerID]
		return ok
	}
	return false
}

func (r *Room) offlinePastGrace(playerID string, now time.Time) bool {
	since, ok := r.offline[playerID]
	return ok && now.Sub(since) > r.cfg.DisconnectGrace
}

func snapshotType(st engine.State) string {
	if st.Phase == engine.PhaseLobby {
		return types.EvtLobbyState
	}
	return types.EvtGameState
}

// broadcast fans extras plus a per-viewer snapshot to every live
// connection. The snapshot is the state at the moment this transition
// completed; a later command produces its own broadcast.
func (r *Room) broadcast(st engine.State, extras ...types.ServerMessage) {
	pub := view.Public(st)
	for id, c := range r.conns {
		for _, m := range extras {
			if !r.send(id, c, m) {
				break
			}
		}
		if _, still := r.conns[id]; !still {
			continue
		}
		pv, err := view.ForPlayer(st, c.playerID)
		if err != nil {
			continue
		}
		r.send(id, c, types.ServerMessage{Type: snapshotType(st), State: &pub, Private: &pv})
	}
}

func (r *Room) sendSnapshot(connID string, st engine.State) {
	c, ok := r.conns[connID]
	if !ok {
		return
	}
	pub := view.Public(st)
	pv, err := view.ForPlayer(st, c.playerID)
	if err != nil {
		return
	}
	r.send(connID, c, types.ServerMessage{Type: snapshotType(st), State: &pub, Private: &pv})
}

func (r *Room) sendError(connID string, err error) {
	if c, ok := r.conns[connID]; ok {
		r.send(connID, c, types.ServerMessage{Type: types.EvtError, Error: err.Error()})
	}
}

// send is non-blocking; a full outbox means a slow client, which gets
// dropped rather than stalling the room.
func (r *Room) send(id string, c *connHandle, m types.ServerMessage) bool {
	select {
	case c.outbox <- m:
		return true
	default:
		close(c.outbox)
		delete(r.conns, id)
		r.log.Warn("dropped slow connection", zap.String("conn", id))
		return false
	}
}
