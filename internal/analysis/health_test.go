package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

func TestAnalyzeMeshHealthEmpty(t *testing.T) {
	summary := AnalyzeMeshHealth(newMesh().graph(t))
	assert.Equal(t, HealthSummary{}, summary)
}

func TestAnalyzeMeshHealthAggregates(t *testing.T) {
	b := newMesh().
		service("web", mesh.KindFrontend, 100).
		service("api", mesh.KindBackend, 300).
		service("db", mesh.KindDatabase, 200).
		service("legacy", mesh.KindOther, 0).
		with("web", func(n *mesh.ServiceNode) { n.Metrics.Latency.P95 = 100; n.Metrics.ErrorRatePercent = 1 }).
		with("api", func(n *mesh.ServiceNode) {
			n.Status = mesh.StatusWarning
			n.Metrics.Latency.P95 = 300
			n.Metrics.ErrorRatePercent = 3
			n.CircuitBreaker.Status = mesh.CircuitHalfOpen
		}).
		with("db", func(n *mesh.ServiceNode) {
			n.Status = mesh.StatusError
			n.Metrics.Latency.P95 = 200
			n.CircuitBreaker.Status = mesh.CircuitOpen
		}).
		with("legacy", func(n *mesh.ServiceNode) { n.Status = mesh.StatusUnknown }).
		connect("web", "api").
		connect("api", "db")
	s := b.build()
	s.Connections[0].Security = mesh.Security{Encrypted: true, MTLS: true}
	s.Connections[1].Security = mesh.Security{Encrypted: true}

	g, err := mesh.NewGraph(s)
	assert.NoError(t, err)

	assert.Equal(t, HealthSummary{
		TotalServices:           4,
		HealthyServices:         1,
		WarningServices:         1,
		ErrorServices:           1,
		UnknownServices:         1,
		OpenCircuitBreakers:     1,
		HalfOpenCircuitBreakers: 1,
		TotalConnections:        2,
		EncryptedConnections:    2,
		MTLSConnections:         1,
		AvgLatencyMs:            150,
		AvgErrorRate:            1,
		TotalRequestRate:        600,
	}, AnalyzeMeshHealth(g))
}

func TestTrafficFlowMetricsEmpty(t *testing.T) {
	flow := TrafficFlowMetrics(nil)
	assert.Zero(t, flow.TotalConnections)
	assert.Zero(t, flow.TotalRequestRate)
	assert.Zero(t, flow.TotalBytesPerSecond)
	assert.Zero(t, flow.AvgLatencyMs)
	assert.Zero(t, flow.AvgErrorRate)
	assert.Zero(t, flow.EncryptedPercent)
	assert.Zero(t, flow.MTLSPercent)
	assert.Empty(t, flow.Protocols)
}

func TestTrafficFlowMetricsAggregates(t *testing.T) {
	connections := []mesh.ServiceConnection{
		{
			ID: "c1", Protocol: mesh.ProtocolHTTP,
			Metrics:  mesh.ConnectionMetrics{RequestRate: 100, ErrorRatePercent: 2, AvgLatencyMs: 10, BytesPerSecond: 1000},
			Security: mesh.Security{Encrypted: true, MTLS: true},
		},
		{
			ID: "c2", Protocol: mesh.ProtocolGRPC,
			Metrics:  mesh.ConnectionMetrics{RequestRate: 50, ErrorRatePercent: 0, AvgLatencyMs: 30, BytesPerSecond: 500},
			Security: mesh.Security{Encrypted: true},
		},
		{
			ID: "c3", Protocol: mesh.ProtocolHTTP,
			Metrics: mesh.ConnectionMetrics{RequestRate: 50, ErrorRatePercent: 4, AvgLatencyMs: 20},
		},
		{
			ID: "c4", Protocol: mesh.ProtocolTCP,
			Metrics: mesh.ConnectionMetrics{RequestRate: 0, ErrorRatePercent: 2, AvgLatencyMs: 0},
		},
	}

	flow := TrafficFlowMetrics(connections)
	assert.Equal(t, 4, flow.TotalConnections)
	assert.InDelta(t, 200.0, flow.TotalRequestRate, 1e-9)
	assert.InDelta(t, 1500.0, flow.TotalBytesPerSecond, 1e-9)
	assert.InDelta(t, 15.0, flow.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 2.0, flow.AvgErrorRate, 1e-9)
	assert.InDelta(t, 50.0, flow.EncryptedPercent, 1e-9)
	assert.InDelta(t, 25.0, flow.MTLSPercent, 1e-9)
	assert.Equal(t, map[mesh.Protocol]int{mesh.ProtocolHTTP: 2, mesh.ProtocolGRPC: 1, mesh.ProtocolTCP: 1}, flow.Protocols)
}
