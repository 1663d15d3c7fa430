package cmd

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	grpctrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/google.golang.org/grpc"

	"candor/internal/config"
)

// startGRPC serves the health service and reflection until GracefulStop
func startGRPC(addr string, tracing config.Tracing, logger *zap.Logger) (*grpc.Server, *health.Server, error) {
	var opts []grpc.ServerOption
	if tracing.Enabled {
		opts = append(opts,
			grpc.UnaryInterceptor(grpctrace.UnaryServerInterceptor(grpctrace.WithServiceName(tracing.Service))),
			grpc.StreamInterceptor(grpctrace.StreamServerInterceptor(grpctrace.WithServiceName(tracing.Service))))
	}
	grpcServer := grpc.NewServer(opts...)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus("candor", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, hs)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen for gRPC on %s: %w", addr, err)
	}

	go func() {
		logger.Info("Starting gRPC server", zap.String("addr", addr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("Failed to serve gRPC server", zap.Error(err))
		}
	}()
	return grpcServer, hs, nil
}
