package analysis

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

func TestFindCriticalPathPrefersHeavierIndirectRoute(t *testing.T) {
	g := newMesh().
		service("a", mesh.KindFrontend, 10).
		service("b", mesh.KindDatabase, 10).
		service("c", mesh.KindBackend, 500).
		connect("a", "b").
		connect("a", "c").
		connect("c", "b").
		graph(t)

	path, truncated := newAnalyzer(t).FindCriticalPath(g)
	assert.Equal(t, mesh.Path{"a", "c", "b"}, path)
	assert.False(t, truncated)
}

func TestFindCriticalPathKeepsFirstFoundOnTie(t *testing.T) {
	g := newMesh().
		service("a", mesh.KindFrontend, 10).
		service("b", mesh.KindDatabase, 10).
		service("c", mesh.KindBackend, 0).
		connect("a", "b").
		connect("a", "c").
		connect("c", "b").
		graph(t)

	path, _ := newAnalyzer(t).FindCriticalPath(g)
	assert.Equal(t, mesh.Path{"a", "b"}, path)
}

func TestFindCriticalPathWeightsGateways(t *testing.T) {
	b := newMesh().
		service("web", mesh.KindFrontend, 10).
		service("edge", mesh.KindGateway, 100).
		service("orders", mesh.KindBackend, 150).
		service("db", mesh.KindDatabase, 10).
		connect("web", "edge").
		connect("edge", "db").
		connect("web", "orders").
		connect("orders", "db")

	path, _ := newAnalyzer(t).FindCriticalPath(b.graph(t))
	assert.Equal(t, mesh.Path{"web", "edge", "db"}, path)

	unweighted := newAnalyzer(t, func(c *Config) {
		c.CriticalPath.KindWeights = map[mesh.Kind]float64{mesh.KindGateway: 1}
	})
	path, _ = unweighted.FindCriticalPath(b.graph(t))
	assert.Equal(t, mesh.Path{"web", "orders", "db"}, path)
}

func TestFindCriticalPathAcrossSeveralFrontendsAndDatabases(t *testing.T) {
	g := newMesh().
		service("web", mesh.KindFrontend, 1).
		service("mobile", mesh.KindFrontend, 50).
		service("users", mesh.KindDatabase, 1).
		service("orders", mesh.KindDatabase, 5).
		connect("web", "users").
		connect("mobile", "orders").
		graph(t)

	path, _ := newAnalyzer(t).FindCriticalPath(g)
	assert.Equal(t, mesh.Path{"mobile", "orders"}, path)
}

func TestFindCriticalPathEmptyWithoutFrontendOrDatabase(t *testing.T) {
	noDatabase := newMesh().
		service("web", mesh.KindFrontend, 10).
		service("api", mesh.KindBackend, 10).
		connect("web", "api").
		graph(t)

	path, truncated := newAnalyzer(t).FindCriticalPath(noDatabase)
	assert.NotNil(t, path)
	assert.Empty(t, path)
	assert.False(t, truncated)

	unreachable := newMesh().
		service("web", mesh.KindFrontend, 10).
		service("db", mesh.KindDatabase, 10).
		graph(t)
	path, _ = newAnalyzer(t).FindCriticalPath(unreachable)
	assert.Empty(t, path)
}

func databaseWithCallers(callers int) *meshBuilder {
	b := newMesh().
		service("primary-db", mesh.KindDatabase, 0).
		service("replica-db", mesh.KindDatabase, 0)
	for i := 0; i < 5; i++ {
		b.service(fmt.Sprintf("api-%d", i), mesh.KindBackend, 0)
	}
	for i := 0; i < callers; i++ {
		b.connect(fmt.Sprintf("api-%d", i), "primary-db")
	}
	return b
}

func TestFindSinglePointsOfFailureDatabaseInDegree(t *testing.T) {
	a := newAnalyzer(t, func(c *Config) { c.SinglePointOfFailure.DatabaseInDegree = 3 })

	assert.Equal(t, []string{"primary-db"}, a.FindSinglePointsOfFailure(databaseWithCallers(5).graph(t)))
	assert.Empty(t, a.FindSinglePointsOfFailure(databaseWithCallers(2).graph(t)))
}

func TestFindSinglePointsOfFailureGatewayDegree(t *testing.T) {
	b := newMesh().
		service("edge", mesh.KindGateway, 0).
		service("edge-2", mesh.KindGateway, 0)
	for i := 0; i < 6; i++ {
		name := fmt.Sprintf("svc-%d", i)
		b.service(name, mesh.KindBackend, 0).connect("edge", name)
	}

	assert.Equal(t, []string{"edge"}, newAnalyzer(t).FindSinglePointsOfFailure(b.graph(t)))
}

func TestFindSinglePointsOfFailureHighTraffic(t *testing.T) {
	g := newMesh().
		service("web", mesh.KindFrontend, 0).
		service("mobile", mesh.KindFrontend, 0).
		service("auth", mesh.KindBackend, 5000).
		service("search", mesh.KindBackend, 5000).
		connect("web", "auth").
		connect("mobile", "auth").
		connect("web", "search").
		graph(t)

	assert.Equal(t, []string{"auth"}, newAnalyzer(t).FindSinglePointsOfFailure(g))
}

func TestFindSinglePointsOfFailureUniqueKind(t *testing.T) {
	g := newMesh().
		service("web", mesh.KindFrontend, 0).
		service("mobile", mesh.KindFrontend, 0).
		service("session-cache", mesh.KindCache, 0).
		service("metrics-cache", mesh.KindOther, 0).
		connect("web", "session-cache").
		connect("mobile", "session-cache").
		connect("web", "metrics-cache").
		graph(t)

	// metrics-cache is the only "other" but has a single connection.
	assert.Equal(t, []string{"session-cache"}, newAnalyzer(t).FindSinglePointsOfFailure(g))
}

func TestCalculateDependencyPaths(t *testing.T) {
	g := newMesh().
		service("x", mesh.KindFrontend, 0).
		service("s", mesh.KindBackend, 0).
		service("t", mesh.KindBackend, 0).
		service("u", mesh.KindDatabase, 0).
		connect("x", "s").
		connect("s", "t").
		connect("s", "u").
		connect("t", "u").
		graph(t)

	set, err := newAnalyzer(t).CalculateDependencyPaths(g, "s")
	require.NoError(t, err)
	assert.Equal(t, []mesh.Path{
		{"s", "t"},
		{"s", "t", "u"},
		{"s", "u"},
		{"x", "s"},
	}, set.Paths)
	assert.False(t, set.Truncated)

	_, err = newAnalyzer(t).CalculateDependencyPaths(g, "nope")
	assert.ErrorIs(t, err, mesh.ErrServiceNotFound)
}

func TestCalculateDependencyPathsIsolatedService(t *testing.T) {
	g := newMesh().service("lonely", mesh.KindOther, 0).graph(t)

	set, err := newAnalyzer(t).CalculateDependencyPaths(g, "lonely")
	require.NoError(t, err)
	assert.NotNil(t, set.Paths)
	assert.Empty(t, set.Paths)
}

func TestCalculateServiceImportance(t *testing.T) {
	g := newMesh().
		service("edge", mesh.KindGateway, 1000).
		service("web", mesh.KindFrontend, 0).
		service("mobile", mesh.KindFrontend, 0).
		service("api", mesh.KindBackend, 0).
		with("edge", func(n *mesh.ServiceNode) { n.Metrics.ErrorRatePercent = 1 }).
		connect("web", "edge").
		connect("mobile", "edge").
		connect("edge", "api").
		graph(t)

	score, err := newAnalyzer(t).CalculateServiceImportance(g, "edge")
	require.NoError(t, err)
	// 1000/100 + 10*3 + 100 - 5*1 - 0
	assert.InDelta(t, 135.0, score, 1e-9)

	_, err = newAnalyzer(t).CalculateServiceImportance(g, "missing")
	assert.ErrorIs(t, err, mesh.ErrServiceNotFound)
}

func TestImportanceScoreNeverNegative(t *testing.T) {
	cfg := DefaultConfig().Importance
	states := []mesh.CircuitState{mesh.CircuitClosed, mesh.CircuitHalfOpen, mesh.CircuitOpen, ""}

	for _, kind := range mesh.Kinds {
		for _, state := range states {
			for _, errorRate := range []float64{0, 5, 50, 100} {
				node := mesh.ServiceNode{
					Kind:           kind,
					Metrics:        mesh.ServiceMetrics{ErrorRatePercent: errorRate},
					CircuitBreaker: mesh.CircuitBreaker{Status: state},
				}
				assert.GreaterOrEqual(t, cfg.Score(node, 0, 0), 0.0, "kind=%s state=%s errorRate=%v", kind, state, errorRate)
			}
		}
	}

	failing := mesh.ServiceNode{
		Kind:           mesh.KindSidecar,
		Metrics:        mesh.ServiceMetrics{ErrorRatePercent: 100},
		CircuitBreaker: mesh.CircuitBreaker{Status: mesh.CircuitOpen},
	}
	assert.Zero(t, cfg.Score(failing, 1, 1))
}

func TestImportanceScoreUsesDefaultKindWeight(t *testing.T) {
	cfg := DefaultConfig().Importance
	cache := mesh.ServiceNode{Kind: mesh.KindCache}
	assert.InDelta(t, 20.0, cfg.Score(cache, 0, 0), 1e-9)

	halfOpen := mesh.ServiceNode{Kind: mesh.KindBackend, CircuitBreaker: mesh.CircuitBreaker{Status: mesh.CircuitHalfOpen}}
	assert.InDelta(t, 25.0, cfg.Score(halfOpen, 0, 0), 1e-9)
}

func TestRankServicesOrdersByScore(t *testing.T) {
	g := newMesh().
		service("web", mesh.KindFrontend, 0).
		service("db", mesh.KindDatabase, 0).
		service("edge", mesh.KindGateway, 0).
		service("cache", mesh.KindCache, 0).
		service("worker", mesh.KindSidecar, 0).
		graph(t)

	ranked := newAnalyzer(t).RankServices(g)
	ids := make([]string, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"edge", "db", "web", "cache", "worker"}, ids)
	assert.Equal(t, mesh.KindGateway, ranked[0].Kind)
}

func TestDetectBottlenecks(t *testing.T) {
	b := newMesh().
		service("slow", mesh.KindBackend, 150).
		service("flaky", mesh.KindBackend, 150).
		service("idle", mesh.KindBackend, 50).
		service("fine", mesh.KindBackend, 150).
		with("slow", func(n *mesh.ServiceNode) { n.Metrics.Latency = mesh.Latency{P50: 50, P95: 250, P99: 400} }).
		with("flaky", func(n *mesh.ServiceNode) { n.Metrics.ErrorRatePercent = 6 }).
		with("idle", func(n *mesh.ServiceNode) { n.Metrics.Latency.P95 = 900 }).
		with("fine", func(n *mesh.ServiceNode) { n.Metrics.Latency.P95 = 20 })
	for i := 0; i < 3; i++ {
		caller := fmt.Sprintf("caller-%d", i)
		b.service(caller, mesh.KindFrontend, 0)
		b.connect(caller, "slow").connect(caller, "flaky").connect(caller, "idle").connect(caller, "fine")
	}

	assert.Equal(t, []string{"slow", "flaky"}, newAnalyzer(t).DetectBottlenecks(b.graph(t)))
}

func TestDetectBottlenecksRequiresSeveralCallers(t *testing.T) {
	g := newMesh().
		service("slow", mesh.KindBackend, 150).
		service("a", mesh.KindFrontend, 0).
		service("b", mesh.KindFrontend, 0).
		with("slow", func(n *mesh.ServiceNode) { n.Metrics.Latency.P95 = 250 }).
		connect("a", "slow").
		connect("b", "slow").
		graph(t)

	assert.Empty(t, newAnalyzer(t).DetectBottlenecks(g))
}
