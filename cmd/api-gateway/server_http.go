package main

import (
	"net/http"
	"time"

	config "github.com/NordCoder/Tokengate/internal/config/api-gateway"
	"github.com/NordCoder/Tokengate/internal/obs"
	"github.com/NordCoder/Tokengate/internal/services/api-gateway/auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func buildHTTPServer(cfg *config.Config, logger *zap.Logger, st *storage, authSrv *auth.Server) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)

	r.Get("/healthz", obs.HealthHandler(st.ping))
	r.Handle("/metrics", obs.MetricsHandler())
	authSrv.Routes(r)

	return &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           obs.HTTPHandler(r, "api-gateway"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ErrorLog:          zap.NewStdLog(logger),
	}
}
