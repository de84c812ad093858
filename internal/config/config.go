package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr          string `env:"ADDR" envDefault:":8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:8080"`

	VoteWindow  time.Duration `env:"VOTE_WINDOW" envDefault:"1m"`
	QuestWindow time.Duration `env:"QUEST_WINDOW" envDefault:"1m"`

	HeartbeatTimeout time.Duration `env:"HEARTBEAT_TIMEOUT" envDefault:"45s"`
	DisconnectGrace  time.Duration `env:"DISCONNECT_GRACE" envDefault:"12s"`
	SweepInterval    time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
	ActionTTL        time.Duration `env:"ACTION_TTL" envDefault:"2m"`
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
