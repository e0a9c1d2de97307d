package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/DoyleJ11/tap-race-backend/internal/engine"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Addr            string        `env:"TAPRACE_ADDR" envDefault:":8080"`
	RequiredPlayers int           `env:"TAPRACE_REQUIRED_PLAYERS" envDefault:"2"`
	RoundDuration   time.Duration `env:"TAPRACE_ROUND_DURATION" envDefault:"20s"`
	LogLevel        string        `env:"TAPRACE_LOG_LEVEL" envDefault:"info"`
	Dev             bool          `env:"TAPRACE_DEV" envDefault:"false"`
	AllowedOrigins  []string      `env:"TAPRACE_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads an optional .env file from the working directory, then the
// environment. Variables already set win over the file.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load dotenv: %w", err)
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if c.RequiredPlayers < engine.MinPlayers || c.RequiredPlayers > engine.MaxPlayers {
		return fmt.Errorf("TAPRACE_REQUIRED_PLAYERS must be in [%d, %d], got %d",
			engine.MinPlayers, engine.MaxPlayers, c.RequiredPlayers)
	}
	if c.RoundDuration <= 0 {
		return fmt.Errorf("TAPRACE_ROUND_DURATION must be positive, got %s", c.RoundDuration)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("TAPRACE_LOG_LEVEL: %w", err)
	}
	return nil
}

func NewLogger(c Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zc := zap.NewProductionConfig()
	if c.Dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
