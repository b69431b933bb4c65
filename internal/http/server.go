package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ConsumerStatus abstracts the topology consumer's join state for
// testability.
type ConsumerStatus interface {
	IsJoined() bool
}

type Server struct {
	srv      *http.Server
	topology ConsumerStatus
	corePresent bool
	logger   *zap.Logger
}

// NewServer wires the healthz/readyz/metrics mux. corePresent reports
// whether a router core was successfully constructed; readiness has nothing
// further to check on the core itself since it has no external connections
// of its own (unlike the topology consumer, which depends on Kafka).
func NewServer(addr string, topology ConsumerStatus, corePresent bool, logger *zap.Logger) *Server {
	s := &Server{
		topology:    topology,
		corePresent: corePresent,
		logger:      logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

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

	if s.topology != nil && s.topology.IsJoined() {
		checks["topology"] = "ok"
	} else {
		checks["topology"] = "not_joined"
		allOK = false
	}

	if s.corePresent {
		checks["router_core"] = "ok"
	} else {
		checks["router_core"] = "error"
		allOK = false
	}

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !allOK {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{
		"status": status,
		"checks": checks,
	})
}
