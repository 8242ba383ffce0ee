package mesh

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrServiceNotFound is returned when an operation names a service id that is
// not part of the graph.
var ErrServiceNotFound = errors.New("service not found")

// ValidationError reports every structural defect found in a snapshot.
type ValidationError struct {
	DanglingEdges          []string `json:"danglingEdges,omitempty"`
	DuplicateNodeIDs       []string `json:"duplicateNodeIds,omitempty"`
	DuplicateConnectionIDs []string `json:"duplicateConnectionIds,omitempty"`
	MissingIDs             []string `json:"missingIds,omitempty"`
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.DanglingEdges) > 0 {
		parts = append(parts, fmt.Sprintf("dangling edges: %s", strings.Join(e.DanglingEdges, ", ")))
	}
	if len(e.DuplicateNodeIDs) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate node ids: %s", strings.Join(e.DuplicateNodeIDs, ", ")))
	}
	if len(e.DuplicateConnectionIDs) > 0 {
		parts = append(parts, fmt.Sprintf("duplicate connection ids: %s", strings.Join(e.DuplicateConnectionIDs, ", ")))
	}
	if len(e.MissingIDs) > 0 {
		parts = append(parts, fmt.Sprintf("missing ids: %s", strings.Join(e.MissingIDs, ", ")))
	}
	return "invalid mesh snapshot: " + strings.Join(parts, "; ")
}

func (e *ValidationError) empty() bool {
	return len(e.DanglingEdges) == 0 &&
		len(e.DuplicateNodeIDs) == 0 &&
		len(e.DuplicateConnectionIDs) == 0 &&
		len(e.MissingIDs) == 0
}

// Validate checks referential integrity and id uniqueness of a snapshot.
// It returns all defects found, not just the first, as a *ValidationError.
func Validate(s Snapshot) error {
	verr := &ValidationError{}

	nodeIDs := make(map[string]int, len(s.Services))
	for i, node := range s.Services {
		if node.ID == "" {
			verr.MissingIDs = append(verr.MissingIDs, fmt.Sprintf("node[%d]", i))
			continue
		}
		nodeIDs[node.ID]++
	}
	for id, count := range nodeIDs {
		if count > 1 {
			verr.DuplicateNodeIDs = append(verr.DuplicateNodeIDs, id)
		}
	}

	connectionIDs := make(map[string]int, len(s.Connections))
	dangling := map[string]bool{}
	for i, conn := range s.Connections {
		if conn.ID == "" {
			verr.MissingIDs = append(verr.MissingIDs, fmt.Sprintf("connection[%d]", i))
		} else {
			connectionIDs[conn.ID]++
		}

		_, hasSource := nodeIDs[conn.SourceID]
		_, hasTarget := nodeIDs[conn.TargetID]
		if !hasSource || !hasTarget {
			label := conn.ID
			if label == "" {
				label = fmt.Sprintf("connection[%d]", i)
			}
			dangling[label] = true
		}
	}
	for id, count := range connectionIDs {
		if count > 1 {
			verr.DuplicateConnectionIDs = append(verr.DuplicateConnectionIDs, id)
		}
	}
	for id := range dangling {
		verr.DanglingEdges = append(verr.DanglingEdges, id)
	}

	if verr.empty() {
		return nil
	}

	// Sort for deterministic error output.
	sort.Strings(verr.DanglingEdges)
	sort.Strings(verr.DuplicateNodeIDs)
	sort.Strings(verr.DuplicateConnectionIDs)
	return verr
}
