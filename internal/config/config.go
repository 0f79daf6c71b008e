package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/eval"
	"github.com/danielpatrickdp/assembly-reward/go-controller/internal/reward"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// #region types
// RetryConfig controls backoff on idempotent simulator calls.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	Multiplier   float64       `yaml:"multiplier"`
}

// LogConfig selects the zap logger flavor.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | console
}

// Config is the controller's full configuration.
type Config struct {
	FurnitureName   string        `yaml:"furniture_name"`
	RecipeDir       string        `yaml:"recipe_dir"`
	MaxEpisodeSteps int           `yaml:"max_episode_steps"`
	DBPath          string        `yaml:"db_path"`
	SimAddr         string        `yaml:"sim_addr"`
	CallTimeout     time.Duration `yaml:"call_timeout"`
	Seed            int64         `yaml:"seed"`

	Reward reward.Config   `yaml:"reward"`
	Eval   eval.EvalConfig `yaml:"eval"`
	Retry  RetryConfig     `yaml:"retry"`
	Log    LogConfig       `yaml:"log"`
}

// #endregion types

// #region defaults
// DefaultConfig returns the table_lack defaults.
func DefaultConfig() Config {
	return Config{
		FurnitureName:   "table_lack_0825",
		RecipeDir:       "recipes",
		MaxEpisodeSteps: 500,
		DBPath:          "data/episodes.db",
		SimAddr:         "localhost:50051",
		CallTimeout:     5 * time.Second,
		Seed:            1,
		Reward:          reward.DefaultConfig(),
		Eval:            eval.DefaultEvalConfig(),
		Retry: RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// #endregion defaults

// #region load
// Load reads path over the defaults, then applies a .env file (if present) and
// environment overrides. An empty path skips the YAML step.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	envFile := ".env"
	if path != "" {
		envFile = filepath.Join(filepath.Dir(path), ".env")
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from ASSEMBLY_* variables resolved through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("ASSEMBLY_FURNITURE", &c.FurnitureName)
	str("ASSEMBLY_RECIPE_DIR", &c.RecipeDir)
	str("ASSEMBLY_DB", &c.DBPath)
	str("ASSEMBLY_SIM_ADDR", &c.SimAddr)
	str("ASSEMBLY_LOG_LEVEL", &c.Log.Level)
	str("ASSEMBLY_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("ASSEMBLY_MAX_STEPS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ASSEMBLY_MAX_STEPS: %w", err)
		}
		c.MaxEpisodeSteps = n
	}
	if v, ok := lookup("ASSEMBLY_DIFF_REW"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ASSEMBLY_DIFF_REW: %w", err)
		}
		c.Reward.DiffRew = b
	}
	if v, ok := lookup("ASSEMBLY_DISCRETE_GRIP"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ASSEMBLY_DISCRETE_GRIP: %w", err)
		}
		c.Reward.DiscreteGrip = b
	}
	return nil
}

// #endregion load

// #region validate
// Validate checks the controller settings and the reward coefficients.
func (c Config) Validate() error {
	if c.FurnitureName == "" {
		return fmt.Errorf("%w: furniture_name is empty", ErrInvalid)
	}
	if c.MaxEpisodeSteps <= 0 {
		return fmt.Errorf("%w: max_episode_steps must be positive, got %d", ErrInvalid, c.MaxEpisodeSteps)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry.max_attempts must be at least 1", ErrInvalid)
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("%w: retry.multiplier must be at least 1", ErrInvalid)
	}
	if c.Retry.InitialDelay < 0 {
		return fmt.Errorf("%w: retry.initial_delay must be non-negative, got %s", ErrInvalid, c.Retry.InitialDelay)
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("%w: call_timeout must be non-negative (0 disables it), got %s", ErrInvalid, c.CallTimeout)
	}
	if c.Eval.MinSuccessRate < 0 || c.Eval.MinSuccessRate > 1 {
		return fmt.Errorf("%w: eval.min_success_rate must be in [0, 1], got %g", ErrInvalid, c.Eval.MinSuccessRate)
	}
	if c.Eval.MaxUnfinished < 0 {
		return fmt.Errorf("%w: eval.max_unfinished must be non-negative", ErrInvalid)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format)
	}
	if err := c.Reward.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// RecipePath is the recipe file resolved from RecipeDir and FurnitureName.
func (c Config) RecipePath() string {
	return filepath.Join(c.RecipeDir, c.FurnitureName+".yaml")
}

// #endregion validate
