package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"connector-sync/internal/config"
	"connector-sync/pkg/log"
)

const (
	shutdownTimeout = 30 * time.Second
	idleTimeout     = 120 * time.Second
)

func NewServer(cfg config.HTTP, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         net.JoinHostPort(cfg.Address, strconv.Itoa(cfg.Port)),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Serve runs server until ctx is cancelled, then shuts it down gracefully.
func Serve(ctx context.Context, server *http.Server) error {
	logger := log.Logger.With().Str("component", "http_server").Str("address", server.Addr).Logger()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Msg("HTTP server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server forced to shutdown: %w", err)
	}
	logger.Info().Msg("HTTP server stopped")
	return nil
}
