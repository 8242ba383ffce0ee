package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/archellir/denshimon-sub006/internal/inventory"
)

var (
	rootCmd = &cobra.Command{
		Use:   "mesh-analyzer",
		Short: "Dependency and resilience analysis for service mesh snapshots",
		Long: `mesh-analyzer validates service mesh topology snapshots and derives
critical paths, single points of failure, bottlenecks, importance rankings
and aggregate health from them.`,
		SilenceUsage: true,
	}
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis HTTP API",
		RunE:  runServe,
	}
	analyzeCmd = &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a snapshot file and print the JSON report",
		RunE:  runAnalyze,
	}

	logLevel string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", envOrDefault("LOG_LEVEL", "info"), "Log level (error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("config", os.Getenv("ANALYZER_CONFIG"), "Analyzer thresholds YAML file")

	serveCmd.Flags().String("port", envOrDefault("PORT", "8090"), "HTTP listen port")
	serveCmd.Flags().String("snapshot-dir", envOrDefault("SNAPSHOT_DIR", "./fixtures/snapshots"), "Directory of snapshot JSON files")
	serveCmd.Flags().String("snapshot-default", envOrDefault("SNAPSHOT_DEFAULT", "default.json"), "Fallback snapshot file served for unknown names")
	serveCmd.Flags().Bool("inventory", inventory.ParseBool(envOrDefault("INVENTORY_ENABLED", "false")), "Serve the live snapshot from the Kubernetes inventory")
	serveCmd.Flags().String("inventory-namespaces", envOrDefault("INVENTORY_NAMESPACES", "default"), "Comma separated namespaces to inventory")
	serveCmd.Flags().String("refresh-snapshot", os.Getenv("REFRESH_SNAPSHOT"), "Snapshot the refresh loop analyzes; empty disables the loop")
	serveCmd.Flags().Duration("refresh-interval", parseDuration(envOrDefault("REFRESH_INTERVAL", "1m"), time.Minute), "Refresh loop interval")

	analyzeCmd.Flags().String("snapshot", "", "Snapshot JSON file to analyze")
	_ = analyzeCmd.MarkFlagRequired("snapshot")

	rootCmd.AddCommand(serveCmd, analyzeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(w io.Writer) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLogLevel(logLevel)}))
	slog.SetDefault(logger)
	return logger
}

func envOrDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		value := strings.TrimSpace(part)
		if value == "" || slices.Contains(values, value) {
			continue
		}
		values = append(values, value)
	}
	return values
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "error":
		return slog.LevelError
	case "warn":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		// slog has no trace level.
		return slog.LevelDebug
	case "info":
		fallthrough
	default:
		return slog.LevelInfo
	}
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func loadAnalyzerConfigPath(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", fmt.Errorf("read config flag: %w", err)
	}
	return path, nil
}
