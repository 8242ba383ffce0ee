// Package refresh periodically re-analyzes a named snapshot and publishes the
// newest report.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/archellir/denshimon-sub006/internal/analysis"
	"github.com/archellir/denshimon-sub006/internal/mesh"
	"github.com/archellir/denshimon-sub006/internal/snapshot"
)

const defaultInterval = time.Minute

// ErrSuperseded is returned by a cycle whose result was overtaken by a newer one.
var ErrSuperseded = errors.New("refresh cycle superseded")

// Analyzer computes a report from a snapshot.
type Analyzer interface {
	Analyze(ctx context.Context, s mesh.Snapshot) (*analysis.Report, error)
}

// Result is one published report.
type Result struct {
	Report      *analysis.Report `json:"report"`
	Snapshot    string           `json:"snapshot"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Generation  uint64           `json:"generation"`
}

// Refresher runs analysis cycles on a ticker and on demand. Starting a cycle
// cancels the one in flight, and a result is published only when its
// generation is newer than the published one.
type Refresher struct {
	store    snapshot.Store
	analyzer Analyzer
	name     string
	interval time.Duration
	logger   *slog.Logger

	trigger    chan struct{}
	generation atomic.Uint64

	mu       sync.Mutex
	inflight context.CancelFunc
	latest   *Result
}

// New creates a refresher for the named snapshot.
func New(store snapshot.Store, analyzer Analyzer, name string, interval time.Duration, logger *slog.Logger) *Refresher {
	if interval <= 0 {
		interval = defaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		store:    store,
		analyzer: analyzer,
		name:     name,
		interval: interval,
		logger:   logger.With("component", "refresh", "snapshot", name),
		trigger:  make(chan struct{}, 1),
	}
}

// Trigger requests a cycle without waiting for the ticker. Requests made while
// one is already pending are coalesced.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Latest returns the most recently published result.
func (r *Refresher) Latest() (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return Result{}, false
	}
	return *r.latest, true
}

// Run starts a cycle immediately and then on every tick or trigger until ctx
// is done. It waits for in-flight cycles before returning.
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	start := func(reason string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.Debug("refresh cycle did not publish", "reason", reason, "error", err)
			}
		}()
	}

	r.logger.Info("refresh loop started", "interval", r.interval.String())
	start("startup")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresh loop stopped")
			return
		case <-ticker.C:
			start("tick")
		case <-r.trigger:
			start("trigger")
		}
	}
}

// Refresh runs one cycle synchronously: load, analyze, publish.
func (r *Refresher) Refresh(ctx context.Context) error {
	gen := r.generation.Add(1)
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if r.inflight != nil {
		r.inflight()
	}
	r.inflight = cancel
	r.mu.Unlock()

	start := time.Now()
	logger := r.logger.With("generation", gen)

	payload, err := r.store.Get(cycleCtx, r.name)
	if err != nil {
		refreshCycles.WithLabelValues(cycleResult(err)).Inc()
		logger.Warn("failed to load snapshot", "error", err)
		return fmt.Errorf("load snapshot %s: %w", r.name, err)
	}

	report, err := r.analyzer.Analyze(cycleCtx, payload)
	if err != nil {
		refreshCycles.WithLabelValues(cycleResult(err)).Inc()
		logger.Warn("failed to analyze snapshot", "error", err)
		return fmt.Errorf("analyze snapshot %s: %w", r.name, err)
	}

	result := Result{
		Report:      report,
		Snapshot:    r.name,
		GeneratedAt: payload.Metadata.GeneratedAt,
		Generation:  gen,
	}
	if !r.publish(result) {
		refreshCycles.WithLabelValues("superseded").Inc()
		logger.Debug("dropping superseded refresh result")
		return ErrSuperseded
	}

	refreshCycles.WithLabelValues("published").Inc()
	publishedGeneration.Set(float64(gen))
	logger.Info(
		"mesh report published",
		"durationMs", time.Since(start).Milliseconds(),
		"serviceCount", len(payload.Services),
		"connectionCount", len(payload.Connections),
		"warningCount", len(payload.Warnings),
	)
	return nil
}

func (r *Refresher) publish(result Result) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest != nil && r.latest.Generation >= result.Generation {
		return false
	}
	r.latest = &result
	return true
}

func cycleResult(err error) string {
	var validationErr *mesh.ValidationError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &validationErr):
		return "invalid"
	default:
		return "error"
	}
}
