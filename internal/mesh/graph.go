package mesh

import (
	"fmt"
	"slices"
)

// Graph is a validated, indexed, read-only view of a snapshot. It holds its
// own copy of every service and connection and exposes no mutation, so one
// Graph may be shared by any number of concurrent readers.
type Graph struct {
	nodes       []ServiceNode
	connections []ServiceConnection
	index       map[string]int
	successors  [][]int
	predecessor [][]int
	endpoints   [][2]int
	inDegree    []int
	outDegree   []int
}

// NewGraph validates s and builds its graph. An invalid snapshot yields the
// *ValidationError from Validate and no graph.
func NewGraph(s Snapshot) (*Graph, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}

	g := &Graph{
		nodes:       make([]ServiceNode, len(s.Services)),
		connections: make([]ServiceConnection, len(s.Connections)),
		index:       make(map[string]int, len(s.Services)),
		successors:  make([][]int, len(s.Services)),
		predecessor: make([][]int, len(s.Services)),
		endpoints:   make([][2]int, len(s.Connections)),
		inDegree:    make([]int, len(s.Services)),
		outDegree:   make([]int, len(s.Services)),
	}

	for i, node := range s.Services {
		g.nodes[i] = cloneNode(node)
		g.index[node.ID] = i
	}

	for i, conn := range s.Connections {
		g.connections[i] = cloneConnection(conn)
		source := g.index[conn.SourceID]
		target := g.index[conn.TargetID]
		g.endpoints[i] = [2]int{source, target}
		g.outDegree[source]++
		g.inDegree[target]++
		// Parallel edges collapse into one successor; first-seen order is kept.
		if !slices.Contains(g.successors[source], target) {
			g.successors[source] = append(g.successors[source], target)
			g.predecessor[target] = append(g.predecessor[target], source)
		}
	}

	return g, nil
}

// Len returns the number of services.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Node returns the service at position i in snapshot order.
func (g *Graph) Node(i int) ServiceNode {
	return g.nodes[i]
}

// Lookup returns the service with the given id.
func (g *Graph) Lookup(id string) (ServiceNode, bool) {
	i, ok := g.index[id]
	if !ok {
		return ServiceNode{}, false
	}
	return g.nodes[i], true
}

// Position returns the snapshot position of id, or an ErrServiceNotFound error.
func (g *Graph) Position(id string) (int, error) {
	i, ok := g.index[id]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrServiceNotFound, id)
	}
	return i, nil
}

// Nodes returns a copy of the services in snapshot order.
func (g *Graph) Nodes() []ServiceNode {
	return slices.Clone(g.nodes)
}

// Connections returns a copy of the connections in snapshot order.
func (g *Graph) Connections() []ServiceConnection {
	return slices.Clone(g.connections)
}

// Successors returns the positions of the distinct targets of i's outgoing
// connections, in the order the connections first appear. The returned slice
// is shared and must not be modified.
func (g *Graph) Successors(i int) []int {
	return g.successors[i]
}

// Predecessors returns the positions of the distinct sources of i's incoming
// connections. The returned slice is shared and must not be modified.
func (g *Graph) Predecessors(i int) []int {
	return g.predecessor[i]
}

// Endpoints returns the source and target positions of the connection at
// position c in snapshot order. Validation guarantees both exist.
func (g *Graph) Endpoints(c int) (source, target int) {
	return g.endpoints[c][0], g.endpoints[c][1]
}

// ConnectionCount returns the number of connections.
func (g *Graph) ConnectionCount() int {
	return len(g.connections)
}

// CanReach marks every position from which end is reachable, end included.
func (g *Graph) CanReach(end int) []bool {
	reach := make([]bool, len(g.nodes))
	reach[end] = true
	queue := []int{end}
	for len(queue) > 0 {
		pos := queue[0]
		queue = queue[1:]
		for _, prev := range g.predecessor[pos] {
			if !reach[prev] {
				reach[prev] = true
				queue = append(queue, prev)
			}
		}
	}
	return reach
}

// InDegree counts connections targeting position i. Parallel edges each count.
func (g *Graph) InDegree(i int) int {
	return g.inDegree[i]
}

// OutDegree counts connections leaving position i. Parallel edges each count.
func (g *Graph) OutDegree(i int) int {
	return g.outDegree[i]
}

// Degree is InDegree plus OutDegree.
func (g *Graph) Degree(i int) int {
	return g.inDegree[i] + g.outDegree[i]
}

// ID returns the service id at position i.
func (g *Graph) ID(i int) string {
	return g.nodes[i].ID
}

func cloneNode(node ServiceNode) ServiceNode {
	if node.CircuitBreaker.LastTrippedAt != nil {
		at := *node.CircuitBreaker.LastTrippedAt
		node.CircuitBreaker.LastTrippedAt = &at
	}
	return node
}

func cloneConnection(conn ServiceConnection) ServiceConnection {
	if conn.RetryPolicy != nil {
		policy := *conn.RetryPolicy
		conn.RetryPolicy = &policy
	}
	return conn
}
