package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/archellir/denshimon-sub006/internal/analysis"
	"github.com/archellir/denshimon-sub006/internal/snapshot"
)

// runAnalyze writes the report to stdout and logs to stderr so the output
// stays a single JSON document.
func runAnalyze(cmd *cobra.Command, _ []string) error {
	logger := newLogger(cmd.ErrOrStderr())

	path, _ := cmd.Flags().GetString("snapshot")
	analyzer, err := buildAnalyzer(cmd, logger)
	if err != nil {
		return err
	}

	payload, err := snapshot.LoadFile(path)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	report, err := analyzer.Analyze(cmd.Context(), payload)
	if err != nil {
		return fmt.Errorf("analyze %s: %w", path, err)
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(report)
}

func buildAnalyzer(cmd *cobra.Command, logger *slog.Logger) (*analysis.Analyzer, error) {
	configPath, err := loadAnalyzerConfigPath(cmd)
	if err != nil {
		return nil, err
	}

	cfg := analysis.DefaultConfig()
	if configPath != "" {
		cfg, err = analysis.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("load analyzer config: %w", err)
		}
		logger.Info("loaded analyzer config", "path", configPath)
	}

	analyzer, err := analysis.New(cfg, logger.With("component", "analysis"))
	if err != nil {
		return nil, fmt.Errorf("build analyzer: %w", err)
	}
	return analyzer, nil
}
