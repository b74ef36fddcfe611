package infrastructure

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.Logger

// Init builds the process-wide logger. LOG_LEVEL=debug turns on the verbose
// per-candle evaluation logging, anything else stays at info.
func Init() {
	cfg := zap.NewProductionConfig()
	if os.Getenv("LOG_LEVEL") == "debug" {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}

	Logger, _ = cfg.Build()
	Logger.Info("infrastructure initialized")
}
