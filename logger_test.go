package antrean

import (
	"testing"

	"go.uber.org/zap"
)

// Light smoke tests ensuring exported logger APIs do not panic and remain
// callable. If richer logging behavior (format, sinks, filtering) is added
// later, expand assertions here.
func TestSimpleLoggerLevels(t *testing.T) {
	logger := NewSimpleLogger()

	logger.Debug("debug message")
	logger.Info("info message", "key", "value")
	logger.Warn("warn message", "attempt", 2)
	logger.Error("error message")
}

func TestSimpleLoggerReusability(t *testing.T) {
	logger := NewSimpleLogger()
	for i := 0; i < 5; i++ {
		logger.Info("loop message", "i", i)
	}
}

func TestZapLoggerAdapter(t *testing.T) {
	logger := NewZapLogger(zap.NewNop().Sugar())

	logger.Debug("debug message", "key", "value")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message", "err", "boom")
}

func TestDefaultDebugConfig(t *testing.T) {
	config := DefaultDebugConfig()

	if config.Enabled {
		t.Error("Expected debug disabled by default")
	}
	if !config.LogRequests || !config.LogRetries || !config.LogCircuit || !config.LogRateLimit || !config.LogQueue {
		t.Error("Expected all event classes selected by default")
	}
	if config.RequestIDGen == nil {
		t.Fatal("Expected a request ID generator")
	}
	if a, b := config.RequestIDGen(), config.RequestIDGen(); a == b {
		t.Error("Expected unique request IDs")
	}
}
