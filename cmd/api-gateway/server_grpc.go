package main

import (
	"net"

	config "github.com/NordCoder/Tokengate/internal/config/api-gateway"
	"github.com/NordCoder/Tokengate/internal/obs"
	"github.com/NordCoder/Tokengate/internal/services/api-gateway/auth"
	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

func buildGRPCServer(cfg *config.Config, uc *auth.Usecase) (*grpc.Server, *health.Server, net.Listener, error) {
	grpcMetrics := grpcprometheus.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		return nil, nil, nil, err
	}

	opts := obs.GRPCServerOpts()
	opts = append(opts,
		grpc.ChainUnaryInterceptor(
			grpcMetrics.UnaryServerInterceptor(),
			auth.UnaryAuthInterceptor(uc.Authenticate),
		),
		grpc.ChainStreamInterceptor(
			grpcMetrics.StreamServerInterceptor(),
		),
	)
	srv := grpc.NewServer(opts...)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	grpcMetrics.InitializeMetrics(srv)

	ln, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		return nil, nil, nil, err
	}
	return srv, hs, ln, nil
}

func serveGRPC(s *grpc.Server, ln net.Listener, logger *zap.Logger) error {
	logger.Info("grpc listening", zap.String("addr", ln.Addr().String()))
	return s.Serve(ln)
}
