package analysis

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

// Report holds every whole-mesh view derived from one snapshot. It carries
// no timestamps, so the same snapshot always yields an identical report.
type Report struct {
	Health                HealthSummary       `json:"health"`
	Traffic               TrafficFlow         `json:"traffic"`
	CriticalPath          mesh.Path           `json:"criticalPath"`
	SinglePointsOfFailure []string            `json:"singlePointsOfFailure"`
	Bottlenecks           []string            `json:"bottlenecks"`
	Importance            []ServiceImportance `json:"importance"`
	Truncated             bool                `json:"truncated"`
}

// Analyze validates the snapshot and computes the full report. An invalid
// snapshot returns its *mesh.ValidationError and no report.
func (a *Analyzer) Analyze(ctx context.Context, s mesh.Snapshot) (*Report, error) {
	g, err := mesh.NewGraph(s)
	if err != nil {
		analysisTotal.WithLabelValues("invalid").Inc()
		a.logger.Warn("mesh snapshot rejected", "snapshot", s.Metadata.Name, "error", err)
		return nil, err
	}
	return a.AnalyzeGraph(ctx, g)
}

// AnalyzeGraph computes every view concurrently over the shared graph.
// Cancellation is checked before and after each view, and periodically
// during path enumeration.
func (a *Analyzer) AnalyzeGraph(ctx context.Context, g *mesh.Graph) (*Report, error) {
	start := time.Now()
	report := &Report{}

	views := []struct {
		name string
		run  func(ctx context.Context)
	}{
		{"health", func(context.Context) { report.Health = AnalyzeMeshHealth(g) }},
		{"traffic", func(context.Context) { report.Traffic = TrafficFlowMetrics(g.Connections()) }},
		{"critical_path", func(ctx context.Context) { report.CriticalPath, report.Truncated = a.findCriticalPath(ctx, g) }},
		{"single_points_of_failure", func(context.Context) { report.SinglePointsOfFailure = a.FindSinglePointsOfFailure(g) }},
		{"bottlenecks", func(context.Context) { report.Bottlenecks = a.DetectBottlenecks(g) }},
		{"importance", func(context.Context) { report.Importance = a.RankServices(g) }},
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, view := range views {
		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}
			viewStart := time.Now()
			view.run(groupCtx)
			analysisDuration.WithLabelValues(view.name).Observe(time.Since(viewStart).Seconds())
			return groupCtx.Err()
		})
	}

	if err := group.Wait(); err != nil {
		result := "error"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			result = "canceled"
		}
		analysisTotal.WithLabelValues(result).Inc()
		return nil, err
	}

	analysisTotal.WithLabelValues("ok").Inc()
	analysisGraphSize.Observe(float64(g.Len()))
	if report.Truncated {
		analysisTruncated.Inc()
	}

	a.logger.Debug(
		"mesh analysis completed",
		"durationMs", time.Since(start).Milliseconds(),
		"serviceCount", g.Len(),
		"criticalPathLength", len(report.CriticalPath),
		"singlePointsOfFailure", len(report.SinglePointsOfFailure),
		"bottlenecks", len(report.Bottlenecks),
		"truncated", report.Truncated,
	)
	return report, nil
}
