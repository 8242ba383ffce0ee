package analysis

import (
	"context"
	"sort"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

// ServiceImportance is the importance score of one service.
type ServiceImportance struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Kind  mesh.Kind `json:"kind"`
	Score float64   `json:"score"`
}

// FindCriticalPath returns the frontend-to-database path with the highest sum
// of kind-weighted request rates. Ties keep the path found first. The path is
// empty when the mesh has no frontend or no database. The second result
// reports whether a path limit cut the search short.
func (a *Analyzer) FindCriticalPath(g *mesh.Graph) (mesh.Path, bool) {
	return a.findCriticalPath(context.Background(), g)
}

func (a *Analyzer) findCriticalPath(ctx context.Context, g *mesh.Graph) (mesh.Path, bool) {
	var frontends, databases []int
	for i := 0; i < g.Len(); i++ {
		switch g.Node(i).Kind {
		case mesh.KindFrontend:
			frontends = append(frontends, i)
		case mesh.KindDatabase:
			databases = append(databases, i)
		}
	}

	best := mesh.Path{}
	if len(frontends) == 0 || len(databases) == 0 {
		return best, false
	}

	var bestScore float64
	found := false
	truncated := false
	for _, start := range frontends {
		for _, end := range databases {
			if ctx.Err() != nil {
				return best, truncated
			}
			cut := a.walk(ctx, g, start, end, func(path []int) bool {
				score := a.pathScore(g, path)
				if !found || score > bestScore {
					best = toPath(g, path)
					bestScore = score
					found = true
				}
				return true
			})
			truncated = truncated || cut
		}
	}
	return best, truncated
}

func (a *Analyzer) pathScore(g *mesh.Graph, path []int) float64 {
	var score float64
	for _, pos := range path {
		node := g.Node(pos)
		weight, ok := a.cfg.CriticalPath.KindWeights[node.Kind]
		if !ok {
			weight = 1
		}
		score += node.Metrics.RequestRate * weight
	}
	return score
}

// FindSinglePointsOfFailure returns, in snapshot order, the ids of services
// matching any failure heuristic:
//   - a database with in-degree above DatabaseInDegree
//   - a gateway with total degree above GatewayDegree
//   - request rate above TrafficRequestRate with in-degree above TrafficInDegree
//   - the only service of its kind with total degree above UniqueKindDegree
func (a *Analyzer) FindSinglePointsOfFailure(g *mesh.Graph) []string {
	cfg := a.cfg.SinglePointOfFailure

	kindCount := map[mesh.Kind]int{}
	for i := 0; i < g.Len(); i++ {
		kindCount[g.Node(i).Kind]++
	}

	flagged := []string{}
	for i := 0; i < g.Len(); i++ {
		node := g.Node(i)
		in, degree := g.InDegree(i), g.Degree(i)

		switch {
		case node.Kind == mesh.KindDatabase && in > cfg.DatabaseInDegree,
			node.Kind == mesh.KindGateway && degree > cfg.GatewayDegree,
			node.Metrics.RequestRate > cfg.TrafficRequestRate && in > cfg.TrafficInDegree,
			kindCount[node.Kind] == 1 && degree > cfg.UniqueKindDegree:
			flagged = append(flagged, node.ID)
		}
	}
	return flagged
}

// CalculateDependencyPaths returns the paths from serviceID to the target of
// each of its outgoing connections, followed by the paths from the source of
// each incoming connection to serviceID. Sets are concatenated per connection
// and not deduplicated, so parallel connections repeat their set.
func (a *Analyzer) CalculateDependencyPaths(g *mesh.Graph, serviceID string) (PathSet, error) {
	return a.CalculateDependencyPathsContext(context.Background(), g, serviceID)
}

// CalculateDependencyPathsContext is CalculateDependencyPaths with cancellation.
func (a *Analyzer) CalculateDependencyPathsContext(ctx context.Context, g *mesh.Graph, serviceID string) (PathSet, error) {
	self, err := g.Position(serviceID)
	if err != nil {
		return PathSet{}, err
	}

	result := PathSet{Paths: []mesh.Path{}}
	appendSet := func(set PathSet) {
		result.Paths = append(result.Paths, set.Paths...)
		result.Truncated = result.Truncated || set.Truncated
	}

	for c := 0; c < g.ConnectionCount(); c++ {
		if source, target := g.Endpoints(c); source == self {
			appendSet(a.collect(ctx, g, self, target))
		}
	}
	for c := 0; c < g.ConnectionCount(); c++ {
		if source, target := g.Endpoints(c); target == self {
			appendSet(a.collect(ctx, g, source, self))
		}
	}
	if err := ctx.Err(); err != nil {
		return PathSet{}, err
	}
	return result, nil
}

// CalculateServiceImportance scores one service of the graph.
func (a *Analyzer) CalculateServiceImportance(g *mesh.Graph, serviceID string) (float64, error) {
	pos, err := g.Position(serviceID)
	if err != nil {
		return 0, err
	}
	return a.cfg.Importance.Score(g.Node(pos), g.InDegree(pos), g.OutDegree(pos)), nil
}

// Score computes the importance of a service with the given degrees. The
// result is never negative.
func (c ImportanceConfig) Score(node mesh.ServiceNode, inDegree, outDegree int) float64 {
	kindWeight, ok := c.KindWeights[node.Kind]
	if !ok {
		kindWeight = c.DefaultKindWeight
	}

	score := node.Metrics.RequestRate/c.RequestRateDivisor +
		c.DegreeWeight*float64(inDegree+outDegree) +
		kindWeight -
		c.ErrorRateWeight*node.Metrics.ErrorRatePercent -
		c.CircuitPenalty[node.CircuitBreaker.Status]

	// Also catches NaN.
	if !(score > 0) {
		return 0
	}
	return score
}

// RankServices scores every service and orders them by descending score.
// Equal scores keep snapshot order.
func (a *Analyzer) RankServices(g *mesh.Graph) []ServiceImportance {
	ranked := make([]ServiceImportance, 0, g.Len())
	for i := 0; i < g.Len(); i++ {
		node := g.Node(i)
		ranked = append(ranked, ServiceImportance{
			ID:    node.ID,
			Name:  node.Name,
			Kind:  node.Kind,
			Score: a.cfg.Importance.Score(node, g.InDegree(i), g.OutDegree(i)),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// DetectBottlenecks returns, in snapshot order, the services that are slow or
// failing while under load and depended on by several callers.
func (a *Analyzer) DetectBottlenecks(g *mesh.Graph) []string {
	cfg := a.cfg.Bottleneck

	bottlenecks := []string{}
	for i := 0; i < g.Len(); i++ {
		node := g.Node(i)
		degraded := node.Metrics.Latency.P95 > cfg.LatencyP95Ms || node.Metrics.ErrorRatePercent > cfg.ErrorRatePercent
		if degraded && node.Metrics.RequestRate > cfg.RequestRate && g.InDegree(i) > cfg.InDegree {
			bottlenecks = append(bottlenecks, node.ID)
		}
	}
	return bottlenecks
}
