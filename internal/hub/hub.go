// Package hub owns the map from join codes to rooms. Like the rooms it
// is an actor: callers talk to it through typed messages with reply
// channels, so no lock guards the maps.
package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nightvote/resistance-backend/internal/engine"
	"github.com/nightvote/resistance-backend/internal/room"
	"github.com/nightvote/resistance-backend/internal/store"
)

// ErrJoinCodesExhausted means rejection sampling failed to find a free
// code. The code space is sized for far more rooms than one process
// should hold, so this is a fatal sizing fault, not a user error.
var ErrJoinCodesExhausted = errors.New("join code space exhausted")

var ErrUnknownJoinCode = errors.New("unknown join code")

// codeAlphabet omits lookalikes (0/O, 1/I/L) so codes survive being
// read aloud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 5

const maxCodeAttempts = 100

type Msg interface{ isHubMsg() }

type CreateGame struct {
	HostName string
	Reply    chan CreateResult
}

type CreateResult struct {
	Room     *room.Room
	GameID   string
	JoinCode string
	Token    string
	PlayerID string
	Err      error
}

type GetRoom struct {
	Code  string
	Reply chan *room.Room
}

// ResolveSession maps a reconnection token back to its room.
type ResolveSession struct {
	Token string
	Reply chan Resolution
}

type Resolution struct {
	Rec  store.SessionRecord
	Room *room.Room
	OK   bool
}

// Rooms lists every live room, for the sweeper.
type Rooms struct {
	Reply chan []*room.Room
}

// RemoveGame tears down a finished game: room, state and sessions.
type RemoveGame struct{ GameID string }

type Shutdown struct{}

func (CreateGame) isHubMsg()     {}
func (GetRoom) isHubMsg()        {}
func (ResolveSession) isHubMsg() {}
func (Rooms) isHubMsg()          {}
func (RemoveGame) isHubMsg()     {}
func (Shutdown) isHubMsg()       {}

type Hub struct {
	inbox    chan Msg
	byCode   map[string]*room.Room
	byGame   map[string]*room.Room
	cfg      room.Config
	games    *store.GameStore
	sessions *store.SessionStore
	actions  *store.ActionCache
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func New(parent context.Context, cfg room.Config, games *store.GameStore, sessions *store.SessionStore, actions *store.ActionCache, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan Msg, 64),
		byCode:   make(map[string]*room.Room),
		byGame:   make(map[string]*room.Room),
		cfg:      cfg,
		games:    games,
		sessions: sessions,
		actions:  actions,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.teardown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateGame:
				msg.Reply <- h.createGame(msg.HostName)

			case GetRoom:
				msg.Reply <- h.byCode[msg.Code]

			case ResolveSession:
				rec, ok := h.sessions.Get(msg.Token)
				rm := h.byGame[rec.GameID]
				msg.Reply <- Resolution{Rec: rec, Room: rm, OK: ok && rm != nil}

			case Rooms:
				out := make([]*room.Room, 0, len(h.byCode))
				for _, rm := range h.byCode {
					out = append(out, rm)
				}
				msg.Reply <- out

			case RemoveGame:
				h.removeGame(msg.GameID)

			case Shutdown:
				h.teardown()
				return
			}
		}
	}
}

// teardown stops every room and clears the registries. Both exit paths
// share it, so parent cancellation closes outboxes just like an
// explicit Shutdown.
func (h *Hub) teardown() {
	for _, rm := range h.byCode {
		rm.Inbox() <- room.Shutdown{}
	}
	clear(h.byCode)
	clear(h.byGame)
	h.cancel()
}

func (h *Hub) createGame(hostName string) CreateResult {
	code, err := h.mintCode()
	if err != nil {
		return CreateResult{Err: err}
	}
	now := time.Now()
	gameID := uuid.NewString()
	playerID := uuid.NewString()
	token := uuid.NewString()

	st := engine.CreateGame(gameID, engine.Player{ID: playerID, Name: hostName}, now)
	h.games.Save(st)
	h.sessions.Put(store.SessionRecord{
		Token:    token,
		GameID:   gameID,
		JoinCode: code,
		PlayerID: playerID,
	})

	rm := room.New(gameID, code, h.cfg, h.games, h.sessions, h.actions,
		h.log.With(zap.String("game", gameID), zap.String("code", code)),
		h.onEmpty)
	h.byCode[code] = rm
	h.byGame[gameID] = rm
	h.log.Info("game created", zap.String("game", gameID), zap.String("code", code))
	return CreateResult{
		Room:     rm,
		GameID:   gameID,
		JoinCode: code,
		Token:    token,
		PlayerID: playerID,
	}
}

// onEmpty runs on a room goroutine; it only posts back to the hub.
func (h *Hub) onEmpty(gameID string) {
	select {
	case h.inbox <- RemoveGame{GameID: gameID}:
	default:
	}
}

func (h *Hub) removeGame(gameID string) {
	rm, ok := h.byGame[gameID]
	if !ok {
		return
	}
	delete(h.byGame, gameID)
	delete(h.byCode, rm.JoinCode())
	h.games.Delete(gameID)
	h.sessions.DeleteGame(gameID)
	rm.Inbox() <- room.Shutdown{}
	h.log.Info("game removed", zap.String("game", gameID))
}

// mintCode rejection-samples against live codes. Bounded: exhausting
// the attempts means the deployment has outgrown the code space.
func (h *Hub) mintCode() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		if _, taken := h.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", ErrJoinCodesExhausted
}

func generateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
