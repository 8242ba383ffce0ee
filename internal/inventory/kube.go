package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"

	"github.com/archellir/denshimon-sub006/internal/mesh"
)

// KubernetesSource lists Services and Deployments from target namespaces.
type KubernetesSource struct {
	clientset  kubernetes.Interface
	namespaces []string
	logger     *slog.Logger
}

// NewKubernetesSource builds an inventory source backed by the Kubernetes API.
func NewKubernetesSource(clientset kubernetes.Interface, namespaces []string, logger *slog.Logger) *KubernetesSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &KubernetesSource{
		clientset:  clientset,
		namespaces: slices.Clone(namespaces),
		logger:     logger,
	}
}

// Inventory lists every target namespace. A namespace that cannot be listed
// degrades the result with a warning; the call fails only when no namespace
// could be listed.
func (s *KubernetesSource) Inventory(ctx context.Context) (Inventory, error) {
	if s.clientset == nil {
		return Inventory{}, fmt.Errorf("kubernetes client is not configured")
	}

	inv := Inventory{}
	listed := 0
	var lastErr error

	for _, namespace := range s.namespaces {
		namespace = strings.TrimSpace(namespace)
		if namespace == "" {
			continue
		}

		services, deployments, err := s.listNamespace(ctx, namespace)
		if err != nil {
			lastErr = err
			s.logger.Warn("failed to list mesh inventory namespace", "namespace", namespace, "error", err)
			inv.Warnings = append(inv.Warnings, mesh.Warning{
				Code:    "LIST_FAILED",
				Message: fmt.Sprintf("namespace %s: %v", namespace, err),
			})
			continue
		}

		listed++
		inv.Services = append(inv.Services, services...)
		inv.Deployments = append(inv.Deployments, deployments...)
		s.logger.Debug(
			"listed mesh inventory namespace",
			"namespace", namespace,
			"serviceCount", len(services),
			"deploymentCount", len(deployments),
		)
	}

	if listed == 0 {
		if lastErr == nil {
			return Inventory{}, fmt.Errorf("no target namespaces configured")
		}
		return Inventory{}, fmt.Errorf("list mesh inventory in namespaces %q: %w", strings.Join(s.namespaces, ","), lastErr)
	}
	return inv, nil
}

func (s *KubernetesSource) listNamespace(ctx context.Context, namespace string) ([]corev1.Service, []appsv1.Deployment, error) {
	serviceList, err := s.clientset.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("list services: %w", err)
	}

	deploymentList, err := s.clientset.AppsV1().Deployments(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("list deployments: %w", err)
	}

	return serviceList.Items, deploymentList.Items, nil
}
