// Package ws is the connection orchestrator: it upgrades connections,
// hydrates sessions, forwards validated commands into rooms and pumps
// room broadcasts back out.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nightvote/resistance-backend/internal/engine"
	"github.com/nightvote/resistance-backend/internal/hub"
	"github.com/nightvote/resistance-backend/internal/room"
	"github.com/nightvote/resistance-backend/internal/types"
)

const (
	readTimeout  = 90 * time.Second
	writeTimeout = 3 * time.Second
)

func Handler(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		connID := uuid.NewString()
		out := make(chan types.ServerMessage, 16)

		// Writer goroutine: drains room broadcasts until the room (or
		// this handler, pre-attach) closes the outbox. A closed outbox
		// means the session is over, whether by shutdown or by the room
		// dropping a slow consumer, so the socket closes with it and the
		// read loop below unblocks.
		writeCtx, writeCancel := context.WithCancel(context.Background())
		defer writeCancel()
		go func() {
			for msg := range out {
				payload, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = conn.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
			conn.Close(websocket.StatusNormalClosure, "session closed")
		}()

		writeDirect(r.Context(), conn, types.ServerMessage{
			Type:         types.EvtConnectionAcked,
			ConnectionID: connID,
		})

		var rm *room.Room
		attached := false
		defer func() {
			if attached {
				rm.Inbox() <- room.Detach{ConnID: connID}
			} else {
				close(out)
			}
		}()

		for {
			ctx, cancel := context.WithTimeout(r.Context(), readTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(r.Context(), conn, "bad json")
				continue
			}

			switch cm.Type {
			case types.MsgCreateGame:
				if attached || cm.Name == "" {
					writeError(r.Context(), conn, "cannot create now")
					continue
				}
				created, ok := createGame(r.Context(), conn, h, log, connID, cm.Name, out)
				if ok {
					rm = created
					attached = true
				}

			case types.MsgJoinGame:
				if attached || cm.Name == "" || cm.JoinCode == "" {
					writeError(r.Context(), conn, "cannot join now")
					continue
				}
				joined, ok := joinGame(r.Context(), conn, h, connID, cm, out)
				if ok {
					rm = joined
					attached = true
				}

			case types.MsgRejoin:
				if attached || cm.SessionToken == "" {
					writeError(r.Context(), conn, "cannot rejoin now")
					continue
				}
				rejoined, ok := rejoin(r.Context(), conn, h, connID, cm.SessionToken, out)
				if ok {
					rm = rejoined
					attached = true
				}

			case types.MsgHeartbeat:
				if attached {
					rm.Inbox() <- room.Heartbeat{ConnID: connID}
				}

			case types.MsgProposeTeam, types.MsgSubmitVote, types.MsgSubmitQuestAction, types.MsgAdvancePhase:
				if !attached {
					writeError(r.Context(), conn, "not in a game")
					continue
				}
				cmd, ok := toCommand(connID, cm)
				if !ok {
					writeError(r.Context(), conn, "malformed command")
					continue
				}
				rm.Inbox() <- cmd

			default:
				writeError(r.Context(), conn, "unknown type")
			}
		}
	}
}

func createGame(ctx context.Context, conn *websocket.Conn, h *hub.Hub, log *zap.Logger, connID, name string, out chan types.ServerMessage) (*room.Room, bool) {
	reply := make(chan hub.CreateResult, 1)
	h.Inbox() <- hub.CreateGame{HostName: name, Reply: reply}
	res := <-reply
	if res.Err != nil {
		if errors.Is(res.Err, hub.ErrJoinCodesExhausted) {
			log.Fatal("join code space exhausted", zap.Error(res.Err))
		}
		writeError(ctx, conn, res.Err.Error())
		return nil, false
	}
	areply := make(chan room.AttachResult, 1)
	res.Room.Inbox() <- room.Attach{ConnID: connID, Token: res.Token, Outbox: out, Reply: areply}
	if ar := <-areply; ar.Err != nil {
		writeError(ctx, conn, ar.Err.Error())
		return nil, false
	}
	writeDirect(ctx, conn, types.ServerMessage{
		Type:         types.EvtConnectionAcked,
		ConnectionID: connID,
		SessionToken: res.Token,
		JoinCode:     res.JoinCode,
		GameID:       res.GameID,
		PlayerID:     res.PlayerID,
	})
	return res.Room, true
}

func joinGame(ctx context.Context, conn *websocket.Conn, h *hub.Hub, connID string, cm types.ClientMessage, out chan types.ServerMessage) (*room.Room, bool) {
	reply := make(chan *room.Room, 1)
	h.Inbox() <- hub.GetRoom{Code: cm.JoinCode, Reply: reply}
	rm := <-reply
	if rm == nil {
		writeError(ctx, conn, hub.ErrUnknownJoinCode.Error())
		return nil, false
	}
	jreply := make(chan room.JoinResult, 1)
	rm.Inbox() <- room.Join{ConnID: connID, Name: cm.Name, Outbox: out, Reply: jreply}
	jr := <-jreply
	if jr.Err != nil {
		writeError(ctx, conn, jr.Err.Error())
		return nil, false
	}
	writeDirect(ctx, conn, types.ServerMessage{
		Type:         types.EvtConnectionAcked,
		ConnectionID: connID,
		SessionToken: jr.Token,
		JoinCode:     cm.JoinCode,
		GameID:       rm.GameID(),
		PlayerID:     jr.PlayerID,
	})
	return rm, true
}

func rejoin(ctx context.Context, conn *websocket.Conn, h *hub.Hub, connID, token string, out chan types.ServerMessage) (*room.Room, bool) {
	reply := make(chan hub.Resolution, 1)
	h.Inbox() <- hub.ResolveSession{Token: token, Reply: reply}
	res := <-reply
	if !res.OK {
		writeError(ctx, conn, room.ErrUnknownSession.Error())
		return nil, false
	}
	areply := make(chan room.AttachResult, 1)
	res.Room.Inbox() <- room.Attach{ConnID: connID, Token: token, Outbox: out, Reply: areply}
	ar := <-areply
	if ar.Err != nil {
		writeError(ctx, conn, ar.Err.Error())
		return nil, false
	}
	writeDirect(ctx, conn, types.ServerMessage{
		Type:         types.EvtConnectionAcked,
		ConnectionID: connID,
		SessionToken: token,
		JoinCode:     res.Rec.JoinCode,
		GameID:       res.Rec.GameID,
		PlayerID:     ar.PlayerID,
	})
	return res.Room, true
}

// toCommand validates the wire shape; rule checks belong to the engine.
func toCommand(connID string, cm types.ClientMessage) (room.Command, bool) {
	cmd := room.Command{ConnID: connID, Kind: cm.Type, ActionID: cm.ActionID}
	switch cm.Type {
	case types.MsgProposeTeam:
		if len(cm.TeamPlayerIDs) == 0 {
			return room.Command{}, false
		}
		cmd.Team = cm.TeamPlayerIDs
	case types.MsgSubmitVote:
		v := engine.Vote(cm.Vote)
		if !v.Valid() {
			return room.Command{}, false
		}
		cmd.Vote = v
	case types.MsgSubmitQuestAction:
		a := engine.QuestAction(cm.Action)
		if !a.Valid() {
			return room.Command{}, false
		}
		cmd.Action = a
	case types.MsgAdvancePhase:
	default:
		return room.Command{}, false
	}
	return cmd, true
}

func writeDirect(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(wctx, websocket.MessageText, payload)
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	writeDirect(ctx, conn, types.ServerMessage{Type: types.EvtError, Error: msg})
}
