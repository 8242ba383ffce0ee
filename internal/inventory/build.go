package inventory

import (
	"fmt"
	"sort"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

const (
	LabelKind    = "mesh.denshimon.io/kind"
	LabelVersion = "app.kubernetes.io/version"

	AnnotationDependsOn     = "mesh.denshimon.io/depends-on"
	AnnotationEncrypted     = "mesh.denshimon.io/encrypted"
	AnnotationMTLS          = "mesh.denshimon.io/mtls"
	AnnotationAuthPolicy    = "mesh.denshimon.io/auth-policy"
	AnnotationLoadBalancing = "mesh.denshimon.io/load-balancing"

	defaultFailureThreshold = 5
	defaultBreakerTimeoutMs = 30000
)

// Inventory is the raw cluster state a mesh snapshot is built from.
type Inventory struct {
	Services    []corev1.Service
	Deployments []appsv1.Deployment
	Warnings    []mesh.Warning
}

// BuildSnapshot turns cluster inventory into a mesh snapshot skeleton. Nodes
// carry topology, kind, version, instance counts and rollout status; traffic
// metrics are left for telemetry. Dependencies on services outside the
// inventory are dropped with a warning so the result always validates.
func BuildSnapshot(inv Inventory, name string, now time.Time) mesh.Snapshot {
	warnings := []mesh.Warning{}
	addedWarnings := map[string]bool{}

	appendWarning := func(code, message string) {
		if addedWarnings[code+message] {
			return
		}
		warnings = append(warnings, mesh.Warning{Code: code, Message: message})
		addedWarnings[code+message] = true
	}
	for _, w := range inv.Warnings {
		appendWarning(w.Code, w.Message)
	}

	nodes := map[string]mesh.ServiceNode{}
	for _, svc := range inv.Services {
		id := serviceID(svc.Namespace, svc.Name)

		kind, ok := parseKind(svc.Labels[LabelKind])
		if !ok {
			appendWarning("UNKNOWN_KIND", fmt.Sprintf("service %s has unknown kind %q; using other", id, svc.Labels[LabelKind]))
		}

		ready, desired, matched := rollout(svc, inv.Deployments)
		nodes[id] = mesh.ServiceNode{
			ID:            id,
			Name:          svc.Name,
			Namespace:     svc.Namespace,
			Version:       svc.Labels[LabelVersion],
			Kind:          kind,
			Status:        rolloutStatus(ready, desired, matched),
			InstanceCount: ready,
			CircuitBreaker: mesh.CircuitBreaker{
				Status:           mesh.CircuitClosed,
				FailureThreshold: defaultFailureThreshold,
				TimeoutMs:        defaultBreakerTimeoutMs,
			},
		}
	}

	edges := map[string]mesh.ServiceConnection{}
	for _, svc := range inv.Services {
		raw, ok := svc.Annotations[AnnotationDependsOn]
		if !ok {
			continue
		}
		sourceID := serviceID(svc.Namespace, svc.Name)

		deps, err := ParseDependencies(raw, svc.Namespace)
		if err != nil {
			appendWarning("PARSER_FAILED", fmt.Sprintf("service %s dependency annotation: %v", sourceID, err))
			continue
		}

		lb, ok := parseLoadBalancing(svc.Annotations[AnnotationLoadBalancing])
		if !ok {
			appendWarning("UNKNOWN_LOAD_BALANCING", fmt.Sprintf("service %s has unknown load balancing %q; using round_robin", sourceID, svc.Annotations[AnnotationLoadBalancing]))
		}
		mtls := ParseBool(svc.Annotations[AnnotationMTLS])
		security := mesh.Security{
			Encrypted:  mtls || ParseBool(svc.Annotations[AnnotationEncrypted]),
			MTLS:       mtls,
			AuthPolicy: svc.Annotations[AnnotationAuthPolicy],
		}

		for _, dep := range deps {
			targetID := dep.ID()
			if _, known := nodes[targetID]; !known {
				appendWarning("DANGLING_DEPENDENCY", fmt.Sprintf("service %s depends on unknown service %s", sourceID, targetID))
				continue
			}
			edgeID := edgeKey(dep.Protocol, sourceID, targetID)
			edges[edgeID] = mesh.ServiceConnection{
				ID:            edgeID,
				SourceID:      sourceID,
				TargetID:      targetID,
				Protocol:      dep.Protocol,
				Security:      security,
				LoadBalancing: lb,
			}
		}
	}

	orderedNodes := make([]mesh.ServiceNode, 0, len(nodes))
	for _, node := range nodes {
		orderedNodes = append(orderedNodes, node)
	}
	sort.Slice(orderedNodes, func(i, j int) bool {
		return orderedNodes[i].ID < orderedNodes[j].ID
	})

	orderedEdges := make([]mesh.ServiceConnection, 0, len(edges))
	for _, edge := range edges {
		orderedEdges = append(orderedEdges, edge)
	}
	sort.Slice(orderedEdges, func(i, j int) bool {
		return orderedEdges[i].ID < orderedEdges[j].ID
	})

	return mesh.Snapshot{
		Metadata: mesh.Metadata{
			SchemaVersion: "v1",
			GeneratedAt:   now.UTC(),
			Source:        "kubernetes",
			Name:          name,
		},
		Services:    orderedNodes,
		Connections: orderedEdges,
		Warnings:    warnings,
	}
}

// rollout sums ready and desired replicas of the deployments whose pod
// template the service selects.
func rollout(svc corev1.Service, deployments []appsv1.Deployment) (ready, desired int, matched bool) {
	if len(svc.Spec.Selector) == 0 {
		return 0, 0, false
	}
	selector := labels.SelectorFromSet(svc.Spec.Selector)

	for _, deployment := range deployments {
		if deployment.Namespace != svc.Namespace {
			continue
		}
		if !selector.Matches(labels.Set(deployment.Spec.Template.Labels)) {
			continue
		}
		matched = true
		ready += int(deployment.Status.ReadyReplicas)
		if deployment.Spec.Replicas != nil {
			desired += int(*deployment.Spec.Replicas)
		} else {
			desired++
		}
	}
	return ready, desired, matched
}

func rolloutStatus(ready, desired int, matched bool) mesh.Status {
	switch {
	case !matched:
		return mesh.StatusUnknown
	case desired > 0 && ready == 0:
		return mesh.StatusError
	case desired == 0 || ready < desired:
		return mesh.StatusWarning
	default:
		return mesh.StatusHealthy
	}
}

func edgeKey(protocol mesh.Protocol, source, target string) string {
	return fmt.Sprintf("%s:%s:%s", protocol, source, target)
}
