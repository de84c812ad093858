package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nightvote/resistance-backend/internal/hub"
	"github.com/nightvote/resistance-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, baseURL string, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Post("/games", CreateGame(h, log))
	r.Get("/games/{code}/qr", JoinQR(h, baseURL))
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(h, log))
	return r
}
