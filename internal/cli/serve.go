package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/quipper/poc/lti/tool/pkg/common/logger"
)

const (
	serverReadHeaderTimeout = 10 * time.Second
	serverIdleTimeout       = 60 * time.Second
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the LTI tool HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), rootOpts)
		},
	}
	cmd.Flags().Int("port", 0, "port to listen on (overrides server.port)")
	_ = rootOpts.v.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, err := opts.load()
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger.Info("starting server")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Keys load here so a generated dev key is reported at startup.
	h, err := a.handler()
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h.Router(),
		ReadHeaderTimeout: serverReadHeaderTimeout,
		IdleTimeout:       serverIdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening on %s, launch URL %s", cfg.Addr(), cfg.LaunchURL())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown: %v", err)
	}
	logger.Info("server stopped")
	return nil
}
