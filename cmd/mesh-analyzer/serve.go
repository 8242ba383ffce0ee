package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/archellir/denshimon-sub006/internal/inventory"
	"github.com/archellir/denshimon-sub006/internal/refresh"
	"github.com/archellir/denshimon-sub006/internal/server"
	"github.com/archellir/denshimon-sub006/internal/snapshot"
)

func runServe(cmd *cobra.Command, _ []string) error {
	logger := newLogger(os.Stdout)

	port, _ := cmd.Flags().GetString("port")
	snapshotDir, _ := cmd.Flags().GetString("snapshot-dir")
	snapshotDefault, _ := cmd.Flags().GetString("snapshot-default")
	inventoryEnabled, _ := cmd.Flags().GetBool("inventory")
	namespaces, _ := cmd.Flags().GetString("inventory-namespaces")
	refreshSnapshot, _ := cmd.Flags().GetString("refresh-snapshot")
	refreshInterval, _ := cmd.Flags().GetDuration("refresh-interval")
	targetNamespaces := parseCSV(namespaces)

	analyzer, err := buildAnalyzer(cmd, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fileStore := snapshot.NewFileStore(snapshotDir, snapshotDefault)
	var store snapshot.Store = fileStore
	if inventoryEnabled {
		collector, err := buildLiveCollector(targetNamespaces, logger)
		if err != nil {
			logger.Warn("live mesh inventory disabled; serving file snapshots only", "error", err)
		} else {
			store = snapshot.NewLiveStore(fileStore, snapshot.StoreFunc(collector.Collect))
			logger.Info("live mesh inventory enabled", "targetNamespaces", targetNamespaces)
		}
	}

	opts := server.Options{Logger: logger}
	if strings.TrimSpace(refreshSnapshot) != "" {
		refresher := refresh.New(store, analyzer, refreshSnapshot, refreshInterval, logger)
		opts.Latest = refresher
		go refresher.Run(ctx)
		startWatcher(ctx, snapshotDir, snapshotDefault, refreshSnapshot, refresher, logger)
	}

	srv := server.New(store, analyzer, opts)
	defer srv.Close()

	addr := ":" + port
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting mesh-analyzer",
		"addr", addr,
		"snapshotDir", snapshotDir,
		"inventoryEnabled", inventoryEnabled,
		"refreshSnapshot", refreshSnapshot,
		"refreshInterval", refreshInterval.String(),
		"logLevel", parseLogLevel(logLevel).String(),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("mesh-analyzer server failed", "error", err)
		return err
	}
	logger.Info("mesh-analyzer stopped")
	return nil
}

// startWatcher triggers a refresh when the refreshed snapshot's file, or the
// fallback file it may resolve to, changes on disk.
func startWatcher(ctx context.Context, dir, fallbackFile, name string, refresher *refresh.Refresher, logger *slog.Logger) {
	fallbackName := strings.TrimSuffix(fallbackFile, ".json")
	watcher, err := snapshot.NewWatcher(dir, func(names []string) {
		if slices.Contains(names, name) || (fallbackName != "" && slices.Contains(names, fallbackName)) {
			refresher.Trigger()
		}
	}, 0, logger.With("component", "watcher"))
	if err != nil {
		logger.Warn("snapshot watcher disabled; relying on the refresh interval", "error", err)
		return
	}
	go watcher.Run(ctx)
}

func buildLiveCollector(targetNamespaces []string, logger *slog.Logger) (*inventory.SnapshotCollector, error) {
	if len(targetNamespaces) == 0 {
		return nil, fmt.Errorf("at least one target namespace is required")
	}

	restConfig, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("load in-cluster config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}

	source := inventory.NewKubernetesSource(clientset, targetNamespaces, logger.With("component", "inventory"))
	return inventory.NewSnapshotCollector(source, logger.With("component", "collector")), nil
}
