package providers

import (
	"testing"
	"time"

	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyletters/letters-server/internal/config"
)

func TestShutdownTimeout(t *testing.T) {
	t.Run("configured", func(t *testing.T) {
		injector := do.New()
		do.ProvideValue(injector, &config.Config{Server: config.ServerConfig{ShutdownTimeout: 5 * time.Second}})
		assert.Equal(t, 5*time.Second, shutdownTimeout(injector))
	})

	t.Run("unset falls back", func(t *testing.T) {
		injector := do.New()
		do.ProvideValue(injector, &config.Config{})
		assert.Equal(t, defaultShutdownTimeout, shutdownTimeout(injector))
	})

	t.Run("no config falls back", func(t *testing.T) {
		assert.Equal(t, defaultShutdownTimeout, shutdownTimeout(do.New()))
	})
}

func TestDrainContext(t *testing.T) {
	ctx, cancel := drainContext(50 * time.Millisecond)
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)

	ctx, cancel = drainContext(0)
	defer cancel()
	deadline, ok = ctx.Deadline()
	require.True(t, ok)
	assert.Greater(t, time.Until(deadline), time.Second)
}
