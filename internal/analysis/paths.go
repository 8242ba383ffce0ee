package analysis

import (
	"context"
	"iter"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

// PathSet is a list of simple paths. Truncated is set when a ceiling from
// Limits stopped enumeration before every path was produced.
type PathSet struct {
	Paths     []mesh.Path `json:"paths"`
	Truncated bool        `json:"truncated"`
}

// Paths returns a lazy sequence of every simple path from one service to
// another. The sequence is restartable; each range over it enumerates afresh.
// When from equals to the only path is the single-service path.
func (a *Analyzer) Paths(g *mesh.Graph, from, to string) (iter.Seq[mesh.Path], error) {
	start, end, err := endpoints(g, from, to)
	if err != nil {
		return nil, err
	}

	return func(yield func(mesh.Path) bool) {
		a.walk(context.Background(), g, start, end, func(path []int) bool {
			return yield(toPath(g, path))
		})
	}, nil
}

// FindAllPaths materializes every simple path from one service to another,
// honouring the configured limits. A path is a sequence of service ids, so
// parallel connections between the same two services yield one path, not one
// per connection.
func (a *Analyzer) FindAllPaths(g *mesh.Graph, from, to string) (PathSet, error) {
	return a.FindAllPathsContext(context.Background(), g, from, to)
}

// FindAllPathsContext is FindAllPaths with cancellation. A canceled
// enumeration returns ctx's error.
func (a *Analyzer) FindAllPathsContext(ctx context.Context, g *mesh.Graph, from, to string) (PathSet, error) {
	start, end, err := endpoints(g, from, to)
	if err != nil {
		return PathSet{}, err
	}
	set := a.collect(ctx, g, start, end)
	if err := ctx.Err(); err != nil {
		return PathSet{}, err
	}
	return set, nil
}

func (a *Analyzer) collect(ctx context.Context, g *mesh.Graph, start, end int) PathSet {
	set := PathSet{Paths: []mesh.Path{}}
	set.Truncated = a.walk(ctx, g, start, end, func(path []int) bool {
		set.Paths = append(set.Paths, toPath(g, path))
		return true
	})
	return set
}

func endpoints(g *mesh.Graph, from, to string) (int, int, error) {
	start, err := g.Position(from)
	if err != nil {
		return 0, 0, err
	}
	end, err := g.Position(to)
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

func toPath(g *mesh.Graph, positions []int) mesh.Path {
	path := make(mesh.Path, len(positions))
	for i, pos := range positions {
		path[i] = g.ID(pos)
	}
	return path
}

// cancelCheckInterval is how many expansions a walk makes between context checks.
const cancelCheckInterval = 1024

// walk runs a depth-first enumeration of simple paths from start to end and
// calls yield with the positions on each path. The slice passed to yield is
// reused between calls. Services that cannot reach end are never entered.
// walk reports whether a limit cut enumeration short; it also stops early,
// without reporting truncation, once ctx is done.
func (a *Analyzer) walk(ctx context.Context, g *mesh.Graph, start, end int, yield func(path []int) bool) bool {
	reach := g.CanReach(end)
	if !reach[start] {
		return false
	}

	w := &walker{
		ctx:           ctx,
		g:             g,
		end:           end,
		reach:         reach,
		maxPaths:      a.cfg.Limits.MaxPaths,
		maxDepth:      a.cfg.Limits.MaxDepth,
		maxExpansions: a.cfg.Limits.MaxExpansions,
		onPath:        make([]bool, g.Len()),
		yield:         yield,
	}
	w.visit(start)
	return w.truncated
}

type walker struct {
	ctx           context.Context
	g             *mesh.Graph
	end           int
	reach         []bool
	maxPaths      int
	maxDepth      int
	maxExpansions int

	// onPath holds the services on the current branch only. A service is
	// released when its branch returns so sibling branches may use it again.
	onPath     []bool
	path       []int
	found      int
	expansions int

	yield     func(path []int) bool
	truncated bool
}

// visit extends the current path with pos and returns false once enumeration
// must stop.
func (w *walker) visit(pos int) bool {
	w.expansions++
	if w.maxExpansions > 0 && w.expansions > w.maxExpansions {
		w.truncated = true
		return false
	}
	if w.expansions%cancelCheckInterval == 0 && w.ctx.Err() != nil {
		return false
	}

	w.path = append(w.path, pos)
	w.onPath[pos] = true
	defer func() {
		w.path = w.path[:len(w.path)-1]
		w.onPath[pos] = false
	}()

	if pos == w.end {
		if w.maxPaths > 0 && w.found == w.maxPaths {
			w.truncated = true
			return false
		}
		w.found++
		return w.yield(w.path)
	}

	for _, next := range w.g.Successors(pos) {
		if w.onPath[next] || !w.reach[next] {
			continue
		}
		if w.maxDepth > 0 && len(w.path) >= w.maxDepth {
			w.truncated = true
			return true
		}
		if !w.visit(next) {
			return false
		}
	}
	return true
}
