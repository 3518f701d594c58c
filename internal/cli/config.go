package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds defaults read from the environment.
type Config struct {
	Database  string        `env:"ROLLCALL_DB"`
	Policy    string        `env:"ROLLCALL_POLICY"     envDefault:"uniform"`
	Weights   string        `env:"ROLLCALL_WEIGHTS"`
	DrawDelay time.Duration `env:"ROLLCALL_DRAW_DELAY"`
	Seed      *uint64       `env:"ROLLCALL_SEED"`
	LogLevel  slog.Level    `env:"ROLLCALL_LOG_LEVEL"  envDefault:"INFO"`
}

// LoadConfig parses the ROLLCALL_* environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
