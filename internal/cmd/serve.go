package cmd

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tideline/tideline/internal/restore"
	"github.com/tideline/tideline/pkg/queue"
)

var serveCmd = &cobra.Command{
	Use:   "serve-hooks",
	Short: "Serve the push-delivery hook endpoint",
	Long: `Run an HTTP server that accepts the vault's retrieval-finished
notifications as topic push deliveries, as an alternative to polling the
retrieval queue. Subscription confirmations are handled automatically.`,
	RunE: runServeHooks,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServeHooks(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close()

	handler := restore.NewCompletionHandler(rt.records(), rt.hot(), rt.vault(), rt.logger)
	hook := queue.NewWebhook(handler, rt.logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Post(rt.cfg.Server.HookPath, hook.ServeHTTP)

	srv := &http.Server{
		Addr:         rt.cfg.Server.Addr,
		Handler:      r,
		ReadTimeout:  rt.cfg.Server.ReadTimeout,
		WriteTimeout: rt.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("Hook server started",
			zap.String("addr", rt.cfg.Server.Addr),
			zap.String("path", rt.cfg.Server.HookPath))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
