package saga

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds configuration for the workflow engine.
type Config struct {
	// MaxWorkers bounds the number of concurrent stage workers per
	// batch. Batches wider than this limit queue excess stages.
	MaxWorkers int `env:"SAGA_MAX_WORKERS"`

	// StageTimeout is the per-stage generation deadline. A stage that
	// exceeds it is treated as failed; the underlying generator call is
	// cancelled, not awaited further.
	StageTimeout time.Duration `env:"SAGA_STAGE_TIMEOUT"`

	// MaxRetries is how many times a failed generator call is retried
	// within a single stage execution before the stage is reported
	// failed. Zero disables in-stage retries.
	MaxRetries int `env:"SAGA_MAX_RETRIES"`

	// RetainCheckpoints keeps the last N checkpoints per session,
	// pruning older ones after each successful batch. Zero keeps all.
	RetainCheckpoints int `env:"SAGA_RETAIN_CHECKPOINTS"`

	// Model controls passed through to the generator.
	Model       string  `env:"SAGA_MODEL"`
	Temperature float32 `env:"SAGA_MODEL_TEMPERATURE"`
	Seed        int     `env:"SAGA_RANDOM_SEED"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxWorkers:        3,
		StageTimeout:      5 * time.Minute,
		MaxRetries:        3,
		RetainCheckpoints: 0,
		Temperature:       0.7,
	}
}

// ConfigFromEnv loads configuration from SAGA_* environment variables,
// starting from DefaultConfig for unset values.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("saga: parse env config: %w", err)
	}
	return cfg, nil
}
