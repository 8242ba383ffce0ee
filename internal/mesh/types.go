package mesh

import "time"

// Kind classifies a service by its role in the mesh.
type Kind string

const (
	KindFrontend Kind = "frontend"
	KindBackend  Kind = "backend"
	KindDatabase Kind = "database"
	KindCache    Kind = "cache"
	KindGateway  Kind = "gateway"
	KindSidecar  Kind = "sidecar"
	KindOther    Kind = "other"
)

// Kinds lists every known service kind in declaration order.
var Kinds = []Kind{KindFrontend, KindBackend, KindDatabase, KindCache, KindGateway, KindSidecar, KindOther}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Status is the reported health of a service.
type Status string

const (
	StatusHealthy Status = "healthy"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusUnknown Status = "unknown"
)

// CircuitState is the state of a service circuit breaker.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half-open"
)

// Protocol is the transport protocol of a connection.
type Protocol string

const (
	ProtocolHTTP Protocol = "HTTP"
	ProtocolGRPC Protocol = "gRPC"
	ProtocolTCP  Protocol = "TCP"
	ProtocolUDP  Protocol = "UDP"
)

// LoadBalancing is the balancing strategy a connection uses.
type LoadBalancing string

const (
	LoadBalancingRoundRobin LoadBalancing = "round_robin"
	LoadBalancingLeastConn  LoadBalancing = "least_conn"
	LoadBalancingRandom     LoadBalancing = "random"
	LoadBalancingWeighted   LoadBalancing = "weighted"
)

// Latency holds response latency percentiles in milliseconds.
type Latency struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// ServiceMetrics are the observed traffic metrics of a service.
type ServiceMetrics struct {
	RequestRate        float64 `json:"requestRate"`
	ErrorRatePercent   float64 `json:"errorRatePercent"`
	Latency            Latency `json:"latency"`
	SuccessRatePercent float64 `json:"successRatePercent"`
}

// CircuitBreaker describes the circuit breaker guarding a service.
type CircuitBreaker struct {
	Status           CircuitState `json:"status"`
	FailureThreshold int          `json:"failureThreshold"`
	TimeoutMs        int          `json:"timeoutMs"`
	LastTrippedAt    *time.Time   `json:"lastTrippedAt,omitempty"`
}

// ServiceNode is a deployable unit in the mesh.
type ServiceNode struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Namespace      string         `json:"namespace"`
	Version        string         `json:"version"`
	Kind           Kind           `json:"kind"`
	Status         Status         `json:"status"`
	InstanceCount  int            `json:"instanceCount"`
	Metrics        ServiceMetrics `json:"metrics"`
	CircuitBreaker CircuitBreaker `json:"circuitBreaker"`
}

// ConnectionMetrics are the observed traffic metrics of a connection.
type ConnectionMetrics struct {
	RequestRate      float64 `json:"requestRate"`
	ErrorRatePercent float64 `json:"errorRatePercent"`
	AvgLatencyMs     float64 `json:"avgLatencyMs"`
	BytesPerSecond   float64 `json:"bytesPerSecond"`
}

// Security describes transport security on a connection. MTLS implies Encrypted.
type Security struct {
	Encrypted  bool   `json:"encrypted"`
	MTLS       bool   `json:"mTLS"`
	AuthPolicy string `json:"authPolicy,omitempty"`
}

// RetryPolicy is the client retry configuration of a connection.
type RetryPolicy struct {
	Attempts        int    `json:"attempts"`
	TimeoutMs       int    `json:"timeoutMs"`
	BackoffStrategy string `json:"backoffStrategy"`
}

// ServiceConnection is a directed edge from SourceID to TargetID.
type ServiceConnection struct {
	ID            string            `json:"id"`
	SourceID      string            `json:"sourceId"`
	TargetID      string            `json:"targetId"`
	Protocol      Protocol          `json:"protocol"`
	Metrics       ConnectionMetrics `json:"metrics"`
	Security      Security          `json:"security"`
	RetryPolicy   *RetryPolicy      `json:"retryPolicy,omitempty"`
	LoadBalancing LoadBalancing     `json:"loadBalancing"`
}

// Metadata captures collection metadata returned with each snapshot.
type Metadata struct {
	SchemaVersion string    `json:"schemaVersion"`
	GeneratedAt   time.Time `json:"generatedAt"`
	Source        string    `json:"source"`
	Name          string    `json:"name"`
}

// Warning provides structured warnings for degraded collection states.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Snapshot is the mesh state taken at one instant: services, their connections
// and the collection metadata that came with them.
type Snapshot struct {
	Metadata    Metadata            `json:"metadata"`
	Services    []ServiceNode       `json:"services"`
	Connections []ServiceConnection `json:"connections"`
	Warnings    []Warning           `json:"warnings,omitempty"`
}

// Path is an ordered list of service ids with no repeated id.
type Path []string
