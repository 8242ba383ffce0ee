package inventory

import (
	"testing"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

func TestBuildSnapshotBuildsExpectedTopology(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	inv := Inventory{
		Services: []corev1.Service{
			newService("shop", "web", "frontend", map[string]string{
				AnnotationDependsOn: "api:gRPC",
				AnnotationMTLS:      "true",
			}),
			newService("shop", "api", "backend", map[string]string{
				AnnotationDependsOn:     "orders-db:TCP, payments/ledger",
				AnnotationLoadBalancing: "least_conn",
			}),
			newService("shop", "orders-db", "database", nil),
		},
		Deployments: []appsv1.Deployment{
			newDeployment("shop", "web", 3, 3),
			newDeployment("shop", "api", 4, 2),
			newDeployment("shop", "orders-db", 1, 0),
		},
	}

	payload := BuildSnapshot(inv, "live", now)

	if payload.Metadata.Name != "live" || payload.Metadata.Source != "kubernetes" || !payload.Metadata.GeneratedAt.Equal(now) {
		t.Fatalf("unexpected metadata: %#v", payload.Metadata)
	}
	if err := mesh.Validate(payload); err != nil {
		t.Fatalf("expected built snapshot to validate: %v", err)
	}

	nodes := map[string]mesh.ServiceNode{}
	for _, node := range payload.Services {
		nodes[node.ID] = node
	}
	expectedStatus := map[string]mesh.Status{
		"shop/web":       mesh.StatusHealthy,
		"shop/api":       mesh.StatusWarning,
		"shop/orders-db": mesh.StatusError,
	}
	for id, status := range expectedStatus {
		if nodes[id].Status != status {
			t.Fatalf("unexpected status for %s: got=%q want=%q", id, nodes[id].Status, status)
		}
	}
	if nodes["shop/web"].InstanceCount != 3 || nodes["shop/web"].Kind != mesh.KindFrontend || nodes["shop/web"].Version != "1.4.0" {
		t.Fatalf("unexpected web node: %#v", nodes["shop/web"])
	}

	edges := map[string]mesh.ServiceConnection{}
	for _, edge := range payload.Connections {
		edges[edge.ID] = edge
	}
	if len(edges) != 2 {
		t.Fatalf("expected two connections, got %#v", payload.Connections)
	}
	web := edges["gRPC:shop/web:shop/api"]
	if !web.Security.MTLS || !web.Security.Encrypted {
		t.Fatalf("expected mTLS connection from web, got %#v", web)
	}
	api := edges["TCP:shop/api:shop/orders-db"]
	if api.LoadBalancing != mesh.LoadBalancingLeastConn || api.Security.Encrypted {
		t.Fatalf("unexpected api connection: %#v", api)
	}

	if !hasWarning(payload.Warnings, "DANGLING_DEPENDENCY") {
		t.Fatalf("expected dangling dependency warning, got %#v", payload.Warnings)
	}
}

func TestBuildSnapshotWarnsOnBadAnnotations(t *testing.T) {
	inv := Inventory{
		Services: []corev1.Service{
			newService("shop", "web", "spaceship", map[string]string{AnnotationDependsOn: "api:carrier-pigeon"}),
			newService("shop", "api", "", nil),
		},
		Warnings: []mesh.Warning{{Code: "LIST_FAILED", Message: "namespace billing: forbidden"}},
	}

	payload := BuildSnapshot(inv, "live", time.Now())

	for _, code := range []string{"UNKNOWN_KIND", "PARSER_FAILED", "LIST_FAILED"} {
		if !hasWarning(payload.Warnings, code) {
			t.Fatalf("expected %s warning, got %#v", code, payload.Warnings)
		}
	}
	if len(payload.Connections) != 0 {
		t.Fatalf("expected no connections, got %#v", payload.Connections)
	}
	for _, node := range payload.Services {
		if node.Kind != mesh.KindOther || node.Status != mesh.StatusUnknown {
			t.Fatalf("unexpected node without deployments: %#v", node)
		}
	}
}

func TestRolloutStatus(t *testing.T) {
	cases := []struct {
		ready, desired int
		matched        bool
		want           mesh.Status
	}{
		{0, 0, false, mesh.StatusUnknown},
		{0, 2, true, mesh.StatusError},
		{1, 2, true, mesh.StatusWarning},
		{0, 0, true, mesh.StatusWarning},
		{2, 2, true, mesh.StatusHealthy},
	}
	for _, tc := range cases {
		if got := rolloutStatus(tc.ready, tc.desired, tc.matched); got != tc.want {
			t.Fatalf("rolloutStatus(%d, %d, %v) = %q, want %q", tc.ready, tc.desired, tc.matched, got, tc.want)
		}
	}
}

func hasWarning(warnings []mesh.Warning, code string) bool {
	for _, w := range warnings {
		if w.Code == code {
			return true
		}
	}
	return false
}

func newService(namespace, name, kind string, annotations map[string]string) corev1.Service {
	return corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Namespace:   namespace,
			Name:        name,
			Labels:      map[string]string{LabelKind: kind, LabelVersion: "1.4.0"},
			Annotations: annotations,
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{"app": name},
		},
	}
}

func newDeployment(namespace, app string, desired, ready int32) appsv1.Deployment {
	return appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Namespace: namespace,
			Name:      app,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: ptr.To(desired),
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": app, "tier": "prod"}},
			},
		},
		Status: appsv1.DeploymentStatus{
			ReadyReplicas: ready,
		},
	}
}
