package analysis

import (
	"log/slog"
	"maps"
)

// Analyzer derives topology and health views from mesh graphs. It keeps no
// state between calls and is safe for concurrent use.
type Analyzer struct {
	cfg    Config
	logger *slog.Logger
}

// New validates cfg and returns an analyzer bound to it.
func New(cfg Config, logger *slog.Logger) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg.CriticalPath.KindWeights = maps.Clone(cfg.CriticalPath.KindWeights)
	cfg.Importance.KindWeights = maps.Clone(cfg.Importance.KindWeights)
	cfg.Importance.CircuitPenalty = maps.Clone(cfg.Importance.CircuitPenalty)

	return &Analyzer{cfg: cfg, logger: logger}, nil
}

// Config returns the configuration the analyzer was built with.
func (a *Analyzer) Config() Config {
	return a.cfg
}
