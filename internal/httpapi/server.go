// Package httpapi exposes the run's health/readiness probes, Prometheus
// metrics, and a query endpoint over the propagated RIB, mirroring the
// teacher's health-check server shape repointed at this domain's engine.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/route-beacon/bgpextrapolate/internal/rib"
	"github.com/route-beacon/bgpextrapolate/internal/trace"
)

// ConsumerStatus abstracts the Kafka ingest consumer's join state so the
// readiness probe can report it without importing internal/ingest.
type ConsumerStatus interface {
	IsJoined() bool
}

// DBChecker abstracts the database health check for testability.
type DBChecker interface {
	Ping(ctx context.Context) error
}

// Tracer abstracts the engine's trace query for testability. Satisfied
// directly by *engine.Engine.
type Tracer interface {
	Trace(asn rib.ASN, block rib.BlockID) (trace.Result, error)
}

// Server serves the HTTP surface for one run: health checks, metrics, and
// the /rib query endpoint.
type Server struct {
	srv      *http.Server
	dbCheck  DBChecker
	consumer ConsumerStatus
	tracer   Tracer
	logger   *zap.Logger
}

// NewServer builds a Server. db and consumer may be nil when that
// dependency is not configured for this run (a file-only run has no
// Kafka consumer, and a run with no Postgres sink has no DBChecker).
func NewServer(addr string, db DBChecker, consumer ConsumerStatus, tracer Tracer, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{dbCheck: db, consumer: consumer, tracer: tracer, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/rib", s.handleRIB)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background. Errors after Serve starts are
// logged, not returned, since Shutdown is the expected way to stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	allOK := true

	if s.dbCheck != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.dbCheck.Ping(ctx); err != nil {
			checks["postgres"] = "error"
			allOK = false
		} else {
			checks["postgres"] = "ok"
		}
	}

	if s.consumer != nil {
		if s.consumer.IsJoined() {
			checks["kafka"] = "ok"
		} else {
			checks["kafka"] = "not_joined"
			allOK = false
		}
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{"status": status, "checks": checks})
}

// handleRIB answers ?asn=<n>&block=<n>, tracing the AS_PATH a cell
// represents (spec section 4.7).
func (s *Server) handleRIB(w http.ResponseWriter, r *http.Request) {
	if s.tracer == nil {
		http.Error(w, "rib query unavailable: no engine attached", http.StatusServiceUnavailable)
		return
	}

	asnStr := r.URL.Query().Get("asn")
	asnVal, err := strconv.ParseUint(asnStr, 10, 32)
	if err != nil {
		http.Error(w, "missing or invalid 'asn' query parameter", http.StatusBadRequest)
		return
	}

	blockStr := r.URL.Query().Get("block")
	var blockVal uint64
	if blockStr != "" {
		blockVal, err = strconv.ParseUint(blockStr, 10, 32)
		if err != nil {
			http.Error(w, "invalid 'block' query parameter", http.StatusBadRequest)
			return
		}
	}

	res, err := s.tracer.Trace(rib.ASN(asnVal), rib.BlockID(blockVal))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"asn": asnVal, "block": blockVal, "as_path": res.Path})
}
