package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/vk/pipebook/internal/ctxlog"
)

// Run serves the contents protocol until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	if a.config.HealthcheckPort > 0 {
		a.startHealthcheckServer(a.config.HealthcheckPort)
	}

	if a.config.Watch {
		stop, err := a.watchSpec(ctx)
		if err != nil {
			a.logger.Warn("Specification watcher unavailable; falling back to per-request checks.", "error", err)
		} else {
			defer stop()
		}
	}

	mux := http.NewServeMux()
	mux.Handle(contentsPrefix, a.contentsHandler())

	srv := &http.Server{Addr: a.config.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	a.logger.Info("📓 Contents server starting", "address", a.config.ListenAddr, "root", a.config.Root)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.logger.Debug("App.Run method finished.")
	return nil
}
