package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type MetricsServer struct {
	server *http.Server
	webUI  *WebUI
	logger *zerolog.Logger
	addr   net.Addr
}

func NewMetricsServer(addr string, logger *zerolog.Logger) *MetricsServer {
	mux := http.NewServeMux()
	webUI := NewWebUI(logger)

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/", webUI.handleIndex)
	mux.HandleFunc("/ws", webUI.handleWebSocket)

	return &MetricsServer{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		webUI:  webUI,
		logger: logger,
	}
}

// Start binds the listener synchronously so a bad address fails the run,
// then serves until ctx is done.
func (s *MetricsServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	s.addr = ln.Addr()

	go func() {
		s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting metrics server")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.webUI.closeAll()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("Error shutting down metrics server")
		}
	}()

	return nil
}

// Addr returns the bound address once Start succeeded, which resolves a
// ":0" listen address to the chosen port.
func (s *MetricsServer) Addr() string {
	if s.addr == nil {
		return s.server.Addr
	}
	return s.addr.String()
}

func (s *MetricsServer) BroadcastStats(snapshot *Snapshot) {
	if s.webUI != nil {
		s.webUI.broadcastStats(snapshot)
	}
}
