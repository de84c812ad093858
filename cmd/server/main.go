package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nightvote/resistance-backend/internal/config"
	"github.com/nightvote/resistance-backend/internal/engine"
	"github.com/nightvote/resistance-backend/internal/httpapi"
	"github.com/nightvote/resistance-backend/internal/hub"
	"github.com/nightvote/resistance-backend/internal/room"
	"github.com/nightvote/resistance-backend/internal/store"
	"github.com/nightvote/resistance-backend/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	games := store.NewGameStore()
	sessions := store.NewSessionStore()
	actions := store.NewActionCache(cfg.ActionTTL)

	h := hub.New(ctx, room.Config{
		Windows: engine.Windows{
			Vote:  cfg.VoteWindow,
			Quest: cfg.QuestWindow,
		},
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		DisconnectGrace:  cfg.DisconnectGrace,
	}, games, sessions, actions, logger)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, cfg.PublicBaseURL, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sweeper.New(h, actions, cfg.SweepInterval, logger).Run(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		h.Inbox() <- hub.Shutdown{}
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
