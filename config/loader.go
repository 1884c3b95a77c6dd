package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/us-irs/asynchronix/feeders"
)

// Static errors for the config package.
var (
	ErrConfigCannotBeNil   = errors.New("config cannot be nil")
	ErrUnsupportedFileType = errors.New("unsupported config file extension")
	ErrInvalidWorkerCount  = errors.New("worker_count must be positive")
	ErrInvalidMailboxCap   = errors.New("mailbox_capacity must be positive")
)

// Loader composes a file feeder (YAML or TOML, selected by extension) with
// an EnvFeeder layered on top, env variables taking priority over file
// values, mirroring the source-priority composition the embedding teacher
// uses for its own layered config loading.
type Loader struct {
	envFeeder feeders.EnvFeeder
}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{envFeeder: feeders.NewEnvFeeder()}
}

// Load populates a BenchConfig by applying defaults, then the file at path
// (if non-empty), then environment variable overrides, in that order.
func (l *Loader) Load(ctx context.Context, path string) (*BenchConfig, error) {
	cfg := Default()

	if path != "" {
		if err := l.loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := l.envFeeder.Feed(cfg); err != nil {
		return nil, fmt.Errorf("config: env overlay: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) loadFile(path string, cfg *BenchConfig) error {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := feeders.NewYamlFeeder(path).Feed(cfg); err != nil {
			return fmt.Errorf("config: yaml file %s: %w", path, err)
		}
	case ".toml":
		if err := feeders.NewTomlFeeder(path).Feed(cfg); err != nil {
			return fmt.Errorf("config: toml file %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFileType, path)
	}
	return nil
}

// Validate checks invariants BenchConfig must hold before a Simulation can
// be sized from it.
func Validate(cfg *BenchConfig) error {
	if cfg == nil {
		return ErrConfigCannotBeNil
	}
	if cfg.WorkerCount <= 0 {
		return ErrInvalidWorkerCount
	}
	if cfg.MailboxCapacity <= 0 {
		return ErrInvalidMailboxCap
	}
	return nil
}

// Load is a package-level convenience wrapping NewLoader().Load, used by
// hosts that don't need to hold onto a Loader instance.
func Load(ctx context.Context, path string) (*BenchConfig, error) {
	return NewLoader().Load(ctx, path)
}
