package providers

import (
	"context"
	"time"

	"github.com/samber/do/v2"

	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/logger"
	"github.com/armyletters/letters-server/internal/sse"
	"github.com/armyletters/letters-server/internal/store"
	"github.com/armyletters/letters-server/internal/store/sqlite"
	"github.com/armyletters/letters-server/internal/validation"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel  context.CancelFunc
	timeout time.Duration
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	ctx, cancel := drainContext(h.timeout)
	defer cancel()
	err := h.Manager.Shutdown(ctx)
	h.cancel()
	return err
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Component("sse").Logger)

	// Deliver in background
	ctx, cancel := context.WithCancel(context.Background())
	manager.Run(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
		timeout: shutdownTimeout(i),
	}, nil
}

// StoreHandle wraps the configured letter store with shutdown capability.
type StoreHandle struct {
	store.LetterStore
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore opens the letter store for the configured driver and wires
// it to the SSE manager and the hot-reloaded block list.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	blocklist := do.MustInvoke[*ProfanityWatcherHandle](i)

	st, err := OpenStore(cfg, log)
	if err != nil {
		return nil, err
	}
	st.SetEventEmitter(sseHandle.Manager)
	st.SetValidator(validation.New(validation.WithChecker(blocklist.Watcher)))

	return &StoreHandle{LetterStore: st}, nil
}

// OpenStore opens the configured backend without any wiring. Maintenance
// commands use it directly.
func OpenStore(cfg *config.Config, log *logger.Logger) (store.LetterStore, error) {
	opts := store.Options{
		PageSize: cfg.Store.PageSize,
		LiveCap:  cfg.Store.LiveCap,
	}
	storeLog := log.Component("store").Logger

	var (
		st  store.LetterStore
		err error
	)
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		st, err = sqlite.Open(cfg.Store.Path, storeLog, opts)
	default:
		st, err = store.New(cfg.Store.Path, storeLog, nil, opts)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Database initialized", "driver", cfg.Store.Driver, "path", cfg.Store.Path)
	return st, nil
}

