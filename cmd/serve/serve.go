package serve

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"connector-sync/cmd/version"
	"connector-sync/internal/api"
	"connector-sync/internal/config"
	"connector-sync/internal/core"
	"connector-sync/pkg/log"
)

var ServeCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the HTTP sync trigger",
	Long:    `Start the HTTP API that triggers a sync for one connection and reports connection status.`,
	Example: `connector-sync serve --config /path/to/config.yaml`,
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	appConfig, err := config.Load()
	if err != nil {
		log.Logger.Error().Err(err).Msg("Error creating config")
		return err
	}
	logger := log.Logger.With().Str("component", "serve").Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wiring := core.NewWiring(appConfig)
	defer func() {
		if err := wiring.Close(); err != nil {
			logger.Error().Err(err).Msg("Error releasing resources")
		}
	}()

	handler, err := wiring.InitAPIHandler(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error initialising API handler")
		return err
	}

	logger.Info().Str("version", version.GetVersion()).Msg("Starting connector-sync API")
	server := api.NewServer(appConfig.HTTP, handler.Router())
	return api.Serve(ctx, server)
}
