package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/armyletters/letters-server/internal/config"
)

// defaultShutdownTimeout applies when the configuration leaves
// Server.ShutdownTimeout unset, as hand-built test configs do.
const defaultShutdownTimeout = 30 * time.Second

// shutdownTimeout is how long open letter streams and in-flight letter
// requests may delay a stop.
func shutdownTimeout(i do.Injector) time.Duration {
	cfg, err := do.Invoke[*config.Config](i)
	if err != nil || cfg.Server.ShutdownTimeout <= 0 {
		return defaultShutdownTimeout
	}
	return cfg.Server.ShutdownTimeout
}

// drainContext bounds one shutdown step by timeout.
func drainContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}
	return context.WithTimeout(context.Background(), timeout)
}
