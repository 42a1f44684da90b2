// Package health serves the standard gRPC health checking protocol for the
// history service, for orchestrators that check health over gRPC.
//
// The overall status ("") is SERVING while the server runs. The history
// service status follows the latest snapshot: SERVING after a successful
// cycle, NOT_SERVING before the first cycle and after a failed one.
package health

import (
	"context"
	"net"
	"time"

	"github.com/S3MTFoundationv0/s3mt.xyz/internal/history"
	"github.com/S3MTFoundationv0/s3mt.xyz/internal/model"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// HistoryService is the service name reported for the reconstructor.
const HistoryService = "s3mt.history"

// Server wraps a gRPC server exposing only the health service.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewServer creates a health server. History starts NOT_SERVING.
func NewServer() *Server {
	s := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle: 5 * time.Minute,
			Time:              20 * time.Second,
			Timeout:           10 * time.Second,
		}),
	)

	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(HistoryService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	return &Server{grpc: s, health: hs}
}

// Track updates the history status from snapshots until ctx is done or ch
// is closed.
func (s *Server) Track(ctx context.Context, ch <-chan model.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-ch:
			if !ok {
				return
			}
			s.health.SetServingStatus(HistoryService, statusFor(snapshot))
		}
	}
}

// statusFor maps a snapshot to a serving status. An empty program is healthy.
func statusFor(snapshot model.Snapshot) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if snapshot.ErrorMessage == "" || snapshot.ErrorMessage == history.NoTransactionsMessage {
		return grpc_health_v1.HealthCheckResponse_SERVING
	}
	return grpc_health_v1.HealthCheckResponse_NOT_SERVING
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC health server listening")
	return s.grpc.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}
