// Package rpc exposes per-symbol book verification status through the
// standard gRPC health service.
package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/spooky-finn/go-marketdata-checker/usecase"
)

const servicePrefix = "marketdata."

// ServiceName is the health service name reporting on symbol.
func ServiceName(symbol string) string {
	return servicePrefix + symbol
}

// Server reports SERVING for a symbol after a successful check and
// NOT_SERVING after a failed one. Inconclusive checks keep the last status.
type Server struct {
	grpc    *grpc.Server
	health  *health.Server
	symbols map[string]struct{}
	logger  *slog.Logger
}

func NewServer(symbols []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		grpc:    grpc.NewServer(),
		health:  health.NewServer(),
		symbols: make(map[string]struct{}, len(symbols)),
		logger:  logger.With("component", "rpc"),
	}
	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)

	s.health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	for _, symbol := range symbols {
		s.symbols[symbol] = struct{}{}
		s.health.SetServingStatus(ServiceName(symbol), grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// Serve blocks until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info("grpc_listening", "addr", lis.Addr().String())
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop drains in-flight calls, giving up when ctx is done.
func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
	}
}

func (s *Server) OnSuccess(res *usecase.CheckResult) {
	s.setStatus(res, grpc_health_v1.HealthCheckResponse_SERVING)
}

func (s *Server) OnInconclusive(*usecase.CheckResult) {}

func (s *Server) OnFailure(res *usecase.CheckResult) {
	s.setStatus(res, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

func (s *Server) IsSupportedSymbol(symbol string) bool {
	_, ok := s.symbols[symbol]
	return ok
}

func (s *Server) setStatus(res *usecase.CheckResult, status grpc_health_v1.HealthCheckResponse_ServingStatus) {
	if !s.IsSupportedSymbol(res.Symbol) {
		s.logger.Warn("unknown_symbol", "symbol", res.Symbol)
		return
	}
	s.health.SetServingStatus(ServiceName(res.Symbol), status)
}
