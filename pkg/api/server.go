// Package api maps the REST surface onto engine operations.
package api

import (
	"net/http"
	"time"

	"github.com/pmoura/lsmkv/pkg/auth"
	"github.com/pmoura/lsmkv/pkg/features"
	"github.com/pmoura/lsmkv/pkg/logging"
	"github.com/pmoura/lsmkv/pkg/lsm"
	"github.com/pmoura/lsmkv/pkg/metrics"
)

// Options wires the server's collaborators. Auth and Metrics may be nil,
// which disables authentication and instrumentation respectively.
type Options struct {
	Engine        *lsm.Engine
	Features      *features.Client
	Auth          *auth.Manager
	APISecretHash string
	Metrics       *metrics.Registry
	Logger        logging.Logger
	MaxBodyBytes  int64
	Version       string
}

// Server is the HTTP API over one engine.
type Server struct {
	engine        *lsm.Engine
	features      *features.Client
	auth          *auth.Manager
	apiSecretHash string
	metrics       *metrics.Registry
	logger        logging.Logger
	maxBodyBytes  int64
	version       string
	startTime     time.Time
}

// NewServer creates an API server over the given engine.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 50 * 1024 * 1024
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}
	return &Server{
		engine:        opts.Engine,
		features:      opts.Features,
		auth:          opts.Auth,
		apiSecretHash: opts.APISecretHash,
		metrics:       opts.Metrics,
		logger:        logger,
		maxBodyBytes:  maxBody,
		version:       version,
		startTime:     time.Now(),
	}
}

// Handler builds the route table and wraps it in the middleware chain:
// request id, logging, panic recovery, metrics, auth.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)

	mux.HandleFunc("GET /keys", s.handleListKeys)
	mux.HandleFunc("GET /keys/{key...}", s.handleGetKey)
	mux.HandleFunc("PUT /keys/{key...}", s.handlePutKey)
	mux.HandleFunc("DELETE /keys/{key...}", s.handleDeleteKey)
	mux.HandleFunc("POST /batch/set", s.handleBatchSet)
	mux.HandleFunc("POST /batch/delete", s.handleBatchDelete)
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("POST /flush", s.handleFlush)

	if s.features != nil {
		mux.HandleFunc("GET /features", s.handleListFeatures)
		mux.HandleFunc("GET /features/{name}", s.handleGetFeature)
		mux.HandleFunc("PUT /features/{name}", s.handleSetFeature)
		mux.HandleFunc("DELETE /features/{name}", s.handleDeleteFeature)
	}

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
	if s.auth != nil {
		mux.HandleFunc("POST /auth/token", s.handleIssueToken)
	}

	var handler http.Handler = mux
	handler = s.authMiddleware(handler)
	if s.metrics != nil {
		handler = s.metricsMiddleware(handler)
	}
	handler = s.recoveryMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = s.requestIDMiddleware(handler)
	handler = s.bodyLimitMiddleware(handler)
	return handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondOK(w, "lsmkv is running", map[string]any{
		"version": s.version,
		"uptime":  time.Since(s.startTime).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()
	respondOK(w, "stats retrieved", map[string]any{
		"memtable_records": stats.MemtableRecords,
		"memtable_bytes":   stats.MemtableBytes,
		"sstable_count":    stats.SSTableCount,
		"sstable_records":  stats.SSTableRecords,
		"sstable_bytes":    stats.SSTableBytes,
		"wal_bytes":        stats.WALBytes,
		"cache": map[string]any{
			"entries":  stats.Cache.Len,
			"capacity": stats.Cache.Cap,
			"hits":     stats.Cache.Hits,
			"misses":   stats.Cache.Misses,
		},
	})
}
