package analysis

import (
	"github.com/samber/lo"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

// HealthSummary aggregates service and connection health across the mesh.
type HealthSummary struct {
	TotalServices           int     `json:"totalServices"`
	HealthyServices         int     `json:"healthyServices"`
	WarningServices         int     `json:"warningServices"`
	ErrorServices           int     `json:"errorServices"`
	UnknownServices         int     `json:"unknownServices"`
	OpenCircuitBreakers     int     `json:"openCircuitBreakers"`
	HalfOpenCircuitBreakers int     `json:"halfOpenCircuitBreakers"`
	TotalConnections        int     `json:"totalConnections"`
	EncryptedConnections    int     `json:"encryptedConnections"`
	MTLSConnections         int     `json:"mtlsConnections"`
	AvgLatencyMs            float64 `json:"avgLatencyMs"`
	AvgErrorRate            float64 `json:"avgErrorRate"`
	TotalRequestRate        float64 `json:"totalRequestRate"`
}

// TrafficFlow aggregates traffic across connections.
type TrafficFlow struct {
	TotalConnections    int                   `json:"totalConnections"`
	TotalRequestRate    float64               `json:"totalRequestRate"`
	TotalBytesPerSecond float64               `json:"totalBytesPerSecond"`
	AvgLatencyMs        float64               `json:"avgLatencyMs"`
	AvgErrorRate        float64               `json:"avgErrorRate"`
	EncryptedPercent    float64               `json:"encryptedPercent"`
	MTLSPercent         float64               `json:"mtlsPercent"`
	Protocols           map[mesh.Protocol]int `json:"protocols"`
}

// AnalyzeMeshHealth summarizes the graph. Averages over an empty service set
// are zero. Latency is the mean of per-service p95.
func AnalyzeMeshHealth(g *mesh.Graph) HealthSummary {
	nodes := g.Nodes()
	connections := g.Connections()

	countStatus := func(status mesh.Status) int {
		return lo.CountBy(nodes, func(n mesh.ServiceNode) bool { return n.Status == status })
	}
	countCircuit := func(state mesh.CircuitState) int {
		return lo.CountBy(nodes, func(n mesh.ServiceNode) bool { return n.CircuitBreaker.Status == state })
	}

	return HealthSummary{
		TotalServices:           len(nodes),
		HealthyServices:         countStatus(mesh.StatusHealthy),
		WarningServices:         countStatus(mesh.StatusWarning),
		ErrorServices:           countStatus(mesh.StatusError),
		UnknownServices:         countStatus(mesh.StatusUnknown),
		OpenCircuitBreakers:     countCircuit(mesh.CircuitOpen),
		HalfOpenCircuitBreakers: countCircuit(mesh.CircuitHalfOpen),
		TotalConnections:        len(connections),
		EncryptedConnections:    lo.CountBy(connections, func(c mesh.ServiceConnection) bool { return c.Security.Encrypted }),
		MTLSConnections:         lo.CountBy(connections, func(c mesh.ServiceConnection) bool { return c.Security.MTLS }),
		AvgLatencyMs:            lo.MeanBy(nodes, func(n mesh.ServiceNode) float64 { return n.Metrics.Latency.P95 }),
		AvgErrorRate:            lo.MeanBy(nodes, func(n mesh.ServiceNode) float64 { return n.Metrics.ErrorRatePercent }),
		TotalRequestRate:        lo.SumBy(nodes, func(n mesh.ServiceNode) float64 { return n.Metrics.RequestRate }),
	}
}

// TrafficFlowMetrics aggregates request rate, latency, error rate and
// security coverage over connections. Every field is zero for no connections.
func TrafficFlowMetrics(connections []mesh.ServiceConnection) TrafficFlow {
	flow := TrafficFlow{
		TotalConnections:    len(connections),
		TotalRequestRate:    lo.SumBy(connections, func(c mesh.ServiceConnection) float64 { return c.Metrics.RequestRate }),
		TotalBytesPerSecond: lo.SumBy(connections, func(c mesh.ServiceConnection) float64 { return c.Metrics.BytesPerSecond }),
		AvgLatencyMs:        lo.MeanBy(connections, func(c mesh.ServiceConnection) float64 { return c.Metrics.AvgLatencyMs }),
		AvgErrorRate:        lo.MeanBy(connections, func(c mesh.ServiceConnection) float64 { return c.Metrics.ErrorRatePercent }),
		Protocols:           lo.CountValuesBy(connections, func(c mesh.ServiceConnection) mesh.Protocol { return c.Protocol }),
	}
	if len(connections) == 0 {
		return flow
	}

	total := float64(len(connections))
	flow.EncryptedPercent = float64(lo.CountBy(connections, func(c mesh.ServiceConnection) bool { return c.Security.Encrypted })) * 100 / total
	flow.MTLSPercent = float64(lo.CountBy(connections, func(c mesh.ServiceConnection) bool { return c.Security.MTLS })) * 100 / total
	return flow
}
