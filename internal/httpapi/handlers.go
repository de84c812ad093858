package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/nightvote/resistance-backend/internal/hub"
	"github.com/nightvote/resistance-backend/internal/room"
)

type createRequest struct {
	Name string `json:"name"`
}

type createResponse struct {
	GameID       string `json:"gameId"`
	JoinCode     string `json:"joinCode"`
	SessionToken string `json:"sessionToken"`
	PlayerID     string `json:"playerId"`
}

// CreateGame mints a game over plain HTTP; the host then connects to
// /ws and rejoins with the returned session token.
func CreateGame(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		reply := make(chan hub.CreateResult, 1)
		h.Inbox() <- hub.CreateGame{HostName: req.Name, Reply: reply}
		res := <-reply
		if res.Err != nil {
			if errors.Is(res.Err, hub.ErrJoinCodesExhausted) {
				log.Fatal("join code space exhausted", zap.Error(res.Err))
			}
			http.Error(w, "failed to create game", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(createResponse{
			GameID:       res.GameID,
			JoinCode:     res.JoinCode,
			SessionToken: res.Token,
			PlayerID:     res.PlayerID,
		})
	}
}

// JoinQR renders a game's join link as a PNG QR code.
func JoinQR(h *hub.Hub, baseURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{Code: code, Reply: reply}
		if <-reply == nil {
			http.Error(w, "game not found", http.StatusNotFound)
			return
		}
		png, err := qrcode.Encode(baseURL+"/join?code="+code, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "failed to render code", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
