package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

// Source provides the raw cluster inventory.
type Source interface {
	Inventory(ctx context.Context) (Inventory, error)
}

// SnapshotCollector builds live mesh snapshots from a cluster inventory source.
type SnapshotCollector struct {
	source Source
	logger *slog.Logger
	now    func() time.Time
}

// NewSnapshotCollector constructs a live snapshot collector.
func NewSnapshotCollector(source Source, logger *slog.Logger) *SnapshotCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCollector{
		source: source,
		logger: logger,
		now:    time.Now,
	}
}

// Collect lists the cluster and builds a snapshot with the given name.
func (c *SnapshotCollector) Collect(ctx context.Context, name string) (mesh.Snapshot, error) {
	start := time.Now()
	logger := c.logger.With("snapshot", name)
	logger.Info("collecting mesh inventory snapshot")

	inv, err := c.source.Inventory(ctx)
	durationMs := time.Since(start).Milliseconds()
	if err != nil {
		logger.Error("mesh inventory collection failed", "durationMs", durationMs, "error", err)
		return mesh.Snapshot{}, fmt.Errorf("collect mesh inventory: %w", err)
	}

	payload := BuildSnapshot(inv, name, c.now())
	logger.Info(
		"mesh inventory snapshot collected",
		"durationMs", durationMs,
		"serviceCount", len(payload.Services),
		"connectionCount", len(payload.Connections),
		"warningCount", len(payload.Warnings),
	)
	return payload, nil
}
