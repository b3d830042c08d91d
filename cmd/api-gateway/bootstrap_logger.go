package main

import (
	config "github.com/NordCoder/Tokengate/internal/config/api-gateway"
	"github.com/NordCoder/Tokengate/internal/obs"
	"go.uber.org/zap"
)

func initLogger(cfg *config.Config) (*zap.Logger, error) {
	return obs.NewLogger(*cfg.Log.AsLoggerConfig(cfg.App))
}
