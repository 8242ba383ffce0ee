package analysis

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

// Config bundles every tunable threshold and weight used by the analyzer.
// The defaults are empirical and are expected to be tuned per deployment.
type Config struct {
	Limits               Limits               `json:"limits"`
	CriticalPath         CriticalPathConfig   `json:"criticalPath"`
	SinglePointOfFailure SinglePointOfFailure `json:"singlePointOfFailure"`
	Importance           ImportanceConfig     `json:"importance"`
	Bottleneck           BottleneckConfig     `json:"bottleneck"`
}

// Limits bound the cost of path enumeration. Zero means unlimited.
type Limits struct {
	// MaxPaths caps the paths produced by one enumeration.
	MaxPaths int `json:"maxPaths"`
	// MaxDepth caps the number of services on a single path.
	MaxDepth int `json:"maxDepth"`
	// MaxExpansions caps the services entered by one enumeration, whether or
	// not they end up on a path.
	MaxExpansions int `json:"maxExpansions"`
}

// CriticalPathConfig weights request rates by service kind when scoring
// frontend-to-database paths. Kinds not listed weigh 1.
type CriticalPathConfig struct {
	KindWeights map[mesh.Kind]float64 `json:"kindWeights"`
}

// SinglePointOfFailure holds the thresholds of the failure heuristics. A
// service is flagged when a degree strictly exceeds its threshold.
type SinglePointOfFailure struct {
	DatabaseInDegree   int     `json:"databaseInDegree"`
	GatewayDegree      int     `json:"gatewayDegree"`
	TrafficRequestRate float64 `json:"trafficRequestRate"`
	TrafficInDegree    int     `json:"trafficInDegree"`
	UniqueKindDegree   int     `json:"uniqueKindDegree"`
}

// ImportanceConfig holds the terms of the importance score:
//
//	requestRate/RequestRateDivisor + DegreeWeight*degree + kindWeight
//	  - ErrorRateWeight*errorRate - circuitPenalty
type ImportanceConfig struct {
	RequestRateDivisor float64                       `json:"requestRateDivisor"`
	DegreeWeight       float64                       `json:"degreeWeight"`
	ErrorRateWeight    float64                       `json:"errorRateWeight"`
	KindWeights        map[mesh.Kind]float64         `json:"kindWeights"`
	DefaultKindWeight  float64                       `json:"defaultKindWeight"`
	CircuitPenalty     map[mesh.CircuitState]float64 `json:"circuitPenalty"`
}

// BottleneckConfig holds the bottleneck thresholds; all comparisons are strict.
type BottleneckConfig struct {
	LatencyP95Ms     float64 `json:"latencyP95Ms"`
	ErrorRatePercent float64 `json:"errorRatePercent"`
	RequestRate      float64 `json:"requestRate"`
	InDegree         int     `json:"inDegree"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Limits: Limits{
			MaxPaths:      10000,
			MaxDepth:      0,
			MaxExpansions: 1_000_000,
		},
		CriticalPath: CriticalPathConfig{
			KindWeights: map[mesh.Kind]float64{
				mesh.KindGateway: 2,
			},
		},
		SinglePointOfFailure: SinglePointOfFailure{
			DatabaseInDegree:   3,
			GatewayDegree:      5,
			TrafficRequestRate: 1000,
			TrafficInDegree:    1,
			UniqueKindDegree:   1,
		},
		Importance: ImportanceConfig{
			RequestRateDivisor: 100,
			DegreeWeight:       10,
			ErrorRateWeight:    5,
			KindWeights: map[mesh.Kind]float64{
				mesh.KindGateway:  100,
				mesh.KindDatabase: 80,
				mesh.KindBackend:  50,
				mesh.KindFrontend: 30,
			},
			DefaultKindWeight: 20,
			CircuitPenalty: map[mesh.CircuitState]float64{
				mesh.CircuitOpen:     50,
				mesh.CircuitHalfOpen: 25,
				mesh.CircuitClosed:   0,
			},
		},
		Bottleneck: BottleneckConfig{
			LatencyP95Ms:     200,
			ErrorRatePercent: 5,
			RequestRate:      100,
			InDegree:         2,
		},
	}
}

// ConfigError reports a configuration value outside its valid domain.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid analyzer config %s: %s", e.Field, e.Reason)
}

// Validate rejects negative thresholds, non-positive divisors and unknown kinds.
func (c Config) Validate() error {
	nonNegativeInts := []struct {
		field string
		value int
	}{
		{"limits.maxPaths", c.Limits.MaxPaths},
		{"limits.maxDepth", c.Limits.MaxDepth},
		{"limits.maxExpansions", c.Limits.MaxExpansions},
		{"singlePointOfFailure.databaseInDegree", c.SinglePointOfFailure.DatabaseInDegree},
		{"singlePointOfFailure.gatewayDegree", c.SinglePointOfFailure.GatewayDegree},
		{"singlePointOfFailure.trafficInDegree", c.SinglePointOfFailure.TrafficInDegree},
		{"singlePointOfFailure.uniqueKindDegree", c.SinglePointOfFailure.UniqueKindDegree},
		{"bottleneck.inDegree", c.Bottleneck.InDegree},
	}
	for _, v := range nonNegativeInts {
		if v.value < 0 {
			return &ConfigError{Field: v.field, Reason: fmt.Sprintf("must not be negative, got %d", v.value)}
		}
	}

	nonNegativeFloats := []struct {
		field string
		value float64
	}{
		{"singlePointOfFailure.trafficRequestRate", c.SinglePointOfFailure.TrafficRequestRate},
		{"importance.degreeWeight", c.Importance.DegreeWeight},
		{"importance.errorRateWeight", c.Importance.ErrorRateWeight},
		{"importance.defaultKindWeight", c.Importance.DefaultKindWeight},
		{"bottleneck.latencyP95Ms", c.Bottleneck.LatencyP95Ms},
		{"bottleneck.errorRatePercent", c.Bottleneck.ErrorRatePercent},
		{"bottleneck.requestRate", c.Bottleneck.RequestRate},
	}
	for _, v := range nonNegativeFloats {
		if !(v.value >= 0) {
			return &ConfigError{Field: v.field, Reason: fmt.Sprintf("must not be negative, got %g", v.value)}
		}
	}

	if !(c.Importance.RequestRateDivisor > 0) {
		return &ConfigError{
			Field:  "importance.requestRateDivisor",
			Reason: fmt.Sprintf("must be positive, got %g", c.Importance.RequestRateDivisor),
		}
	}

	if err := validateKindWeights("criticalPath.kindWeights", c.CriticalPath.KindWeights); err != nil {
		return err
	}
	if err := validateKindWeights("importance.kindWeights", c.Importance.KindWeights); err != nil {
		return err
	}

	for state, penalty := range c.Importance.CircuitPenalty {
		switch state {
		case mesh.CircuitClosed, mesh.CircuitOpen, mesh.CircuitHalfOpen:
		default:
			return &ConfigError{Field: "importance.circuitPenalty", Reason: fmt.Sprintf("unknown circuit state %q", state)}
		}
		if !(penalty >= 0) {
			return &ConfigError{
				Field:  "importance.circuitPenalty." + string(state),
				Reason: fmt.Sprintf("must not be negative, got %g", penalty),
			}
		}
	}

	return nil
}

func validateKindWeights(field string, weights map[mesh.Kind]float64) error {
	for kind, weight := range weights {
		if !kind.Valid() {
			return &ConfigError{Field: field, Reason: fmt.Sprintf("unknown service kind %q", kind)}
		}
		if !(weight >= 0) {
			return &ConfigError{Field: field + "." + string(kind), Reason: fmt.Sprintf("must not be negative, got %g", weight)}
		}
	}
	return nil
}

// LoadConfig reads a YAML config file, overlays it on DefaultConfig and
// validates the result. Maps in the file replace the default maps.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read analyzer config: %w", err)
	}

	defaults := DefaultConfig()
	cfg := DefaultConfig()
	cfg.CriticalPath.KindWeights = nil
	cfg.Importance.KindWeights = nil
	cfg.Importance.CircuitPenalty = nil
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode analyzer config %s: %w", path, err)
	}

	if cfg.CriticalPath.KindWeights == nil {
		cfg.CriticalPath.KindWeights = defaults.CriticalPath.KindWeights
	}
	if cfg.Importance.KindWeights == nil {
		cfg.Importance.KindWeights = defaults.Importance.KindWeights
	}
	if cfg.Importance.CircuitPenalty == nil {
		cfg.Importance.CircuitPenalty = defaults.Importance.CircuitPenalty
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
