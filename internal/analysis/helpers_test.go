package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

// meshBuilder assembles snapshots for tests.
type meshBuilder struct {
	snapshot mesh.Snapshot
}

func newMesh() *meshBuilder {
	return &meshBuilder{}
}

func (b *meshBuilder) service(id string, kind mesh.Kind, requestRate float64) *meshBuilder {
	b.snapshot.Services = append(b.snapshot.Services, mesh.ServiceNode{
		ID:        id,
		Name:      id,
		Namespace: "default",
		Kind:      kind,
		Status:    mesh.StatusHealthy,
		Metrics: mesh.ServiceMetrics{
			RequestRate:        requestRate,
			SuccessRatePercent: 100,
		},
		CircuitBreaker: mesh.CircuitBreaker{Status: mesh.CircuitClosed, FailureThreshold: 5, TimeoutMs: 30000},
	})
	return b
}

func (b *meshBuilder) with(id string, mutate func(*mesh.ServiceNode)) *meshBuilder {
	for i := range b.snapshot.Services {
		if b.snapshot.Services[i].ID == id {
			mutate(&b.snapshot.Services[i])
		}
	}
	return b
}

func (b *meshBuilder) connect(source, target string) *meshBuilder {
	id := fmt.Sprintf("%s->%s#%d", source, target, len(b.snapshot.Connections))
	b.snapshot.Connections = append(b.snapshot.Connections, mesh.ServiceConnection{
		ID:            id,
		SourceID:      source,
		TargetID:      target,
		Protocol:      mesh.ProtocolHTTP,
		LoadBalancing: mesh.LoadBalancingRoundRobin,
	})
	return b
}

func (b *meshBuilder) build() mesh.Snapshot {
	return b.snapshot
}

func (b *meshBuilder) graph(t *testing.T) *mesh.Graph {
	t.Helper()
	g, err := mesh.NewGraph(b.snapshot)
	require.NoError(t, err)
	return g
}

func newAnalyzer(t *testing.T, mutate ...func(*Config)) *Analyzer {
	t.Helper()
	cfg := DefaultConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	a, err := New(cfg, nil)
	require.NoError(t, err)
	return a
}
