package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/archellir/denshimon-sub006/internal/analysis"
	"github.com/archellir/denshimon-sub006/internal/mesh"
	"github.com/archellir/denshimon-sub006/internal/refresh"
	"github.com/archellir/denshimon-sub006/internal/snapshot"
)

const (
	snapshotsPrefix = "/api/v1/snapshots/"
	analysisPrefix  = "/api/v1/analysis/"
	latestReport    = "/api/v1/reports/latest"

	defaultCacheTTL = 5 * time.Minute
)

const (
	headerSnapshotGeneratedAt = "X-Mesh-Snapshot-Generated-At"
	headerSnapshotSource      = "X-Mesh-Snapshot-Source"
	headerSnapshotName        = "X-Mesh-Snapshot-Name"
	headerReportGeneration    = "X-Mesh-Report-Generation"
	headerReportCache         = "X-Mesh-Report-Cache"
)

// LatestReporter exposes the report most recently published by a refresh loop.
type LatestReporter interface {
	Latest() (refresh.Result, bool)
}

// Options configures optional server dependencies.
type Options struct {
	// Latest serves /api/v1/reports/latest. Nil disables the endpoint.
	Latest   LatestReporter
	CacheTTL time.Duration
	Logger   *slog.Logger
}

// Server wraps HTTP handlers for the mesh analyzer.
type Server struct {
	store    snapshot.Store
	analyzer *analysis.Analyzer
	latest   LatestReporter
	reports  *ttlcache.Cache[string, *analysis.Report]
	logger   *slog.Logger
}

// New creates a mesh analyzer HTTP server. Close releases the report cache.
func New(store snapshot.Store, analyzer *analysis.Analyzer, opts Options) *Server {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reports := ttlcache.New[string, *analysis.Report](
		ttlcache.WithTTL[string, *analysis.Report](ttl),
	)
	go reports.Start()

	return &Server{
		store:    store,
		analyzer: analyzer,
		latest:   opts.Latest,
		reports:  reports,
		logger:   logger.With("component", "server"),
	}
}

// Close stops the report cache janitor.
func (s *Server) Close() {
	s.reports.Stop()
}

// Handler returns the mesh analyzer HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc(snapshotsPrefix, s.handleSnapshot)
	mux.HandleFunc(analysisPrefix, s.handleAnalysis)
	mux.HandleFunc(latestReport, s.handleLatestReport)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, snapshotsPrefix))
	if !snapshot.ValidName(name) {
		http.Error(w, "missing or invalid snapshot name", http.StatusBadRequest)
		return
	}

	payload, ok := s.loadSnapshot(w, r, name)
	if !ok {
		return
	}
	s.writeJSON(w, payload)
}

// handleAnalysis serves
//
//	{name}
//	{name}/paths?from=&to=
//	{name}/dependencies/{service}
//	{name}/importance/{service}
//
// Service ids may contain slashes.
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, analysisPrefix)
	name, rest, _ := strings.Cut(rest, "/")
	name = strings.TrimSpace(name)
	if !snapshot.ValidName(name) {
		http.Error(w, "missing or invalid snapshot name", http.StatusBadRequest)
		return
	}
	view, service, _ := strings.Cut(rest, "/")

	switch view {
	case "":
		s.handleReport(w, r, name)
	case "paths":
		s.handlePaths(w, r, name)
	case "dependencies", "importance":
		if strings.TrimSpace(service) == "" {
			http.Error(w, "missing service id", http.StatusBadRequest)
			return
		}
		if view == "dependencies" {
			s.handleDependencies(w, r, name, service)
		} else {
			s.handleImportance(w, r, name, service)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, name string) {
	payload, ok := s.loadSnapshot(w, r, name)
	if !ok {
		return
	}

	// Snapshots without a generation time cannot be told apart, so they bypass the cache.
	key := ""
	if !payload.Metadata.GeneratedAt.IsZero() {
		key = name + "@" + payload.Metadata.GeneratedAt.UTC().Format(time.RFC3339Nano)
		if item := s.reports.Get(key); item != nil {
			w.Header().Set(headerReportCache, "hit")
			s.writeJSON(w, item.Value())
			return
		}
	}

	report, err := s.analyzer.Analyze(r.Context(), payload)
	if err != nil {
		s.writeError(w, name, err)
		return
	}
	if key != "" {
		s.reports.Set(key, report, ttlcache.DefaultTTL)
	}
	w.Header().Set(headerReportCache, "miss")
	s.writeJSON(w, report)
}

func (s *Server) handlePaths(w http.ResponseWriter, r *http.Request, name string) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		http.Error(w, "query parameters from and to are required", http.StatusBadRequest)
		return
	}

	g, ok := s.loadGraph(w, r, name)
	if !ok {
		return
	}
	paths, err := s.analyzer.FindAllPathsContext(r.Context(), g, from, to)
	if err != nil {
		s.writeError(w, name, err)
		return
	}
	s.writeJSON(w, paths)
}

func (s *Server) handleDependencies(w http.ResponseWriter, r *http.Request, name, service string) {
	g, ok := s.loadGraph(w, r, name)
	if !ok {
		return
	}
	paths, err := s.analyzer.CalculateDependencyPathsContext(r.Context(), g, service)
	if err != nil {
		s.writeError(w, name, err)
		return
	}
	s.writeJSON(w, paths)
}

type importanceResponse struct {
	Service string  `json:"service"`
	Score   float64 `json:"score"`
}

func (s *Server) handleImportance(w http.ResponseWriter, r *http.Request, name, service string) {
	g, ok := s.loadGraph(w, r, name)
	if !ok {
		return
	}
	score, err := s.analyzer.CalculateServiceImportance(g, service)
	if err != nil {
		s.writeError(w, name, err)
		return
	}
	s.writeJSON(w, importanceResponse{Service: service, Score: score})
}

func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.latest == nil {
		http.Error(w, "refresh loop is not enabled", http.StatusNotFound)
		return
	}

	result, ok := s.latest.Latest()
	if !ok {
		http.Error(w, "no report published yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set(headerReportGeneration, fmt.Sprintf("%d", result.Generation))
	w.Header().Set(headerSnapshotName, result.Snapshot)
	if !result.GeneratedAt.IsZero() {
		w.Header().Set(headerSnapshotGeneratedAt, result.GeneratedAt.UTC().Format(time.RFC3339))
	}
	s.writeJSON(w, result)
}

func (s *Server) loadSnapshot(w http.ResponseWriter, r *http.Request, name string) (mesh.Snapshot, bool) {
	payload, err := s.store.Get(r.Context(), name)
	if err != nil {
		s.writeError(w, name, err)
		return mesh.Snapshot{}, false
	}

	w.Header().Set(headerSnapshotName, name)
	if !payload.Metadata.GeneratedAt.IsZero() {
		w.Header().Set(headerSnapshotGeneratedAt, payload.Metadata.GeneratedAt.UTC().Format(time.RFC3339))
	}
	if payload.Metadata.Source != "" {
		w.Header().Set(headerSnapshotSource, payload.Metadata.Source)
	}
	return payload, true
}

func (s *Server) loadGraph(w http.ResponseWriter, r *http.Request, name string) (*mesh.Graph, bool) {
	payload, ok := s.loadSnapshot(w, r, name)
	if !ok {
		return nil, false
	}
	g, err := mesh.NewGraph(payload)
	if err != nil {
		s.writeError(w, name, err)
		return nil, false
	}
	return g, true
}

type validationResponse struct {
	Error string `json:"error"`
	*mesh.ValidationError
}

func (s *Server) writeError(w http.ResponseWriter, name string, err error) {
	var validationErr *mesh.ValidationError
	switch {
	case errors.As(err, &validationErr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(validationResponse{Error: validationErr.Error(), ValidationError: validationErr})
	case errors.Is(err, snapshot.ErrNotFound):
		http.Error(w, "snapshot not found", http.StatusNotFound)
	case errors.Is(err, mesh.ErrServiceNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		s.logger.Error("failed to serve snapshot", "snapshot", name, "error", err)
		http.Error(w, fmt.Sprintf("failed to load snapshot: %v", err), http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response payload", "error", err)
	}
}
