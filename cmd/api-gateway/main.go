package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	config "github.com/NordCoder/Tokengate/internal/config/api-gateway"
	"github.com/NordCoder/Tokengate/internal/identity/google"
	"github.com/NordCoder/Tokengate/internal/services/api-gateway/auth"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	cfgPath := flag.String("config", "config/api-gateway.yaml", "path to the yaml config")
	flag.Parse()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		panic(err)
	}

	logger, err := initLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting api-gateway",
		zap.String("env", cfg.App.Env),
		zap.String("ver", cfg.App.Version),
		zap.String("storage", cfg.Storage.Driver),
	)

	otelShutdown, err := initOTel(rootCtx, cfg)
	if err != nil {
		logger.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	st, err := initStorage(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("storage init", zap.Error(err))
	}
	defer st.close()

	ev, err := initEvents(rootCtx, cfg, st, logger)
	if err != nil {
		logger.Fatal("events init", zap.Error(err))
	}

	deps := auth.Deps{
		Users:    st.users,
		Sessions: st.sessions,
		Tx:       st.tx,
		Verifier: google.New(cfg.Identity),
		Logger:   logger.Named("auth"),
		Outbox:   ev.sessionOutbox(st),
	}
	if ev != nil {
		defer ev.Close()
	}
	uc := auth.NewUseCase(deps, auth.Config{
		Secret:       []byte(cfg.Auth.JWTSecret),
		TTL:          cfg.Auth.TTL,
		SubjectClaim: cfg.Auth.SubjectClaim,
		FutureLeeway: cfg.Auth.FutureLeeway,
	})

	grpcServer, healthSrv, grpcLn, err := buildGRPCServer(cfg, uc)
	if err != nil {
		logger.Fatal("build grpc", zap.Error(err))
	}
	authSrv := auth.NewServer(uc, logger.Named("http"))
	if cfg.RateLimit.Enable {
		authSrv.WithRateLimit(auth.NewRateLimiter(cfg.RateLimit))
	}
	httpSrv := buildHTTPServer(cfg, logger, st, authSrv)

	g, gctx := errgroup.WithContext(rootCtx)
	g.Go(func() error { return serveGRPC(grpcServer, grpcLn, logger) })
	g.Go(func() error {
		logger.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if ev != nil && ev.runner != nil {
		g.Go(func() error {
			ev.runner.Run(gctx)
			return nil
		})
	}
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		healthSrv.Shutdown()

		shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shCtx)
		grpcServer.GracefulStop()
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("api-gateway stopped with error", zap.Error(err))
	}
	logger.Info("bye")
}
