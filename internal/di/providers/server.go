package providers

import (
	"errors"
	"net/http"
	"time"

	"github.com/samber/do/v2"

	"github.com/armyletters/letters-server/internal/api"
	"github.com/armyletters/letters-server/internal/config"
	"github.com/armyletters/letters-server/internal/logger"
	"github.com/armyletters/letters-server/internal/service"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	handler *api.Server
	timeout time.Duration
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := drainContext(h.timeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.handler.Close()
	return err
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	limiters := do.MustInvoke[*RateLimiters](i)
	log := do.MustInvoke[*logger.Logger](i)

	services := &api.Services{
		Letters: do.MustInvoke[*service.LetterService](i),
		Songs:   do.MustInvoke[*service.SongService](i),
		Search:  do.MustInvoke[*service.SearchService](i),
	}

	handler := api.NewServer(storeHandle.LetterStore, services, sseHandle.Manager, api.Options{
		CORSOrigins:    cfg.Web.CORSOrigins,
		WriteLimiter:   limiters.Write,
		SongLimiter:    limiters.Song,
		RequestTimeout: cfg.Server.WriteTimeout,
	}, log.Component("http").Logger)

	// No server WriteTimeout: it would cut the live stream.
	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     handler,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	return &HTTPServerHandle{Server: srv, handler: handler, timeout: shutdownTimeout(i)}, nil
}
