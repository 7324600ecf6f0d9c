package main

import (
	"github.com/sudior04/iot-backend/internal/config"
	"github.com/sudior04/iot-backend/internal/logging"
	"go.uber.org/zap"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.NewLogger(cfg.ServiceName)
}
