// Package api exposes the proxy's admin surface: backend registry
// status, pool depth, Prometheus metrics, and process health/readiness.
// The teacher's tenant-CRUD dashboard has no analogue here — there is
// one proxy and N backends, not N tenants — so this is trimmed to a
// small JSON status surface plus the metrics endpoint.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigwindlee/mysqlproxy/internal/backend"
	"github.com/bigwindlee/mysqlproxy/internal/config"
	"github.com/bigwindlee/mysqlproxy/internal/connpool"
	"github.com/bigwindlee/mysqlproxy/internal/logrecord"
	"github.com/bigwindlee/mysqlproxy/internal/metrics"
)

// Server is the admin REST API and metrics server.
type Server struct {
	registry   *backend.Registry
	pool       *connpool.Pool
	metrics    *metrics.Collector
	logger     logrecord.Logger
	httpServer *http.Server
	startTime  time.Time
	listenCfg  config.ListenConfig
}

// NewServer creates a new API server.
func NewServer(reg *backend.Registry, pool *connpool.Pool, m *metrics.Collector, logger logrecord.Logger, lc config.ListenConfig) *Server {
	return &Server{
		registry:  reg,
		pool:      pool,
		metrics:   m,
		logger:    logger,
		startTime: time.Now(),
		listenCfg: lc,
	}
}

// Start starts the HTTP API server on the configured admin address.
func (s *Server) Start() error {
	r := mux.NewRouter()

	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	r.HandleFunc("/backends", s.listBackends).Methods("GET")
	r.HandleFunc("/backends/check", s.checkBackends).Methods("POST")
	r.HandleFunc("/pool", s.poolStats).Methods("GET")
	r.HandleFunc("/health", s.healthHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         s.listenCfg.APIAddr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	s.log(logrecord.Message, fmt.Sprintf("admin API listening on %s", s.listenCfg.APIAddr))

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log(logrecord.Error, fmt.Sprintf("admin API server error: %v", err))
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) log(level logrecord.Level, msg string) {
	if s.logger != nil {
		s.logger.Log(logrecord.Record{Logger: "api", Level: level, Message: msg})
	}
}

// --- Backend handlers ---

func (s *Server) listBackends(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}

// checkBackends runs the throttled health-recovery sweep on demand and
// reports how many backends it woke up, instead of a free-running
// background checker.
func (s *Server) checkBackends(w http.ResponseWriter, r *http.Request) {
	woken := s.registry.Check()
	if s.metrics != nil {
		s.metrics.BackendChecksWoken(woken)
	}
	writeJSON(w, http.StatusOK, map[string]int{"woken": woken})
}

// --- Pool handlers ---

func (s *Server) poolStats(w http.ResponseWriter, r *http.Request) {
	stats := s.pool.Stats()
	if s.metrics != nil {
		for username, depth := range stats {
			s.metrics.SetPooledConnections(username, depth)
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Health & readiness ---

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := s.registry.Snapshot()
	allUp := len(snapshot) > 0
	for _, d := range snapshot {
		if d.State != backend.Up && d.State != backend.Unknown {
			allUp = false
		}
	}

	status := http.StatusOK
	if !allUp {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"status":   boolToStatus(allUp),
		"backends": snapshot,
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	snapshot := s.registry.Snapshot()
	if len(snapshot) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	for _, d := range snapshot {
		if d.State == backend.Up || d.State == backend.Unknown {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
			return
		}
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
}

// --- Status ---

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	uptime := time.Since(s.startTime).Seconds()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime_seconds":   int(uptime),
		"go_version":       runtime.Version(),
		"goroutines":       runtime.NumGoroutine(),
		"memory_mb":        float64(mem.Alloc) / 1024 / 1024,
		"num_backends":     s.registry.Count(),
		"mysql_addr":       s.listenCfg.MySQLAddr,
		"api_addr":         s.listenCfg.APIAddr,
		"tls_enabled":      s.listenCfg.TLSEnabled(),
	})
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func boolToStatus(b bool) string {
	if b {
		return "healthy"
	}
	return "unhealthy"
}
