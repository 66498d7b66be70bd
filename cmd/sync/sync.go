package sync

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"connector-sync/internal/config"
	"connector-sync/internal/core"
	"connector-sync/internal/models"
	"connector-sync/internal/scheduler"
	"connector-sync/internal/service/orchestrator"
	"connector-sync/pkg/log"
)

var (
	organizationFlag string
	sourceFlag       string
	resourcesFlag    []string
	itemCapFlag      int
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize connected platforms into the document store",
	Long:  `Synchronize connected platforms into the document store with various execution modes.`,
}

var onceCmd = &cobra.Command{
	Use:     "once",
	Short:   "Sync one connection and exit",
	Long:    `Run a single sync for one organization and source, then print the per-resource counts.`,
	Example: `connector-sync sync once --organization org-1 --source hubspot --config /path/to/config.yaml`,
	RunE:    runOnce,
}

var allCmd = &cobra.Command{
	Use:     "all",
	Short:   "Sync every connected connection once and exit",
	Example: `connector-sync sync all --config /path/to/config.yaml`,
	RunE:    runAll,
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	Short:   "Run sync as a scheduled daemon",
	Long:    `Run a sync of every connected connection every configured interval until stopped.`,
	Example: `connector-sync sync daemon --config /path/to/config.yaml`,
	RunE:    runDaemon,
}

var dryRunCmd = &cobra.Command{
	Use:     "dry-run",
	Short:   "Show what would be synced without actually syncing",
	Long:    `Discover and display every connection and resource that would be synchronized without performing the sync.`,
	Example: `connector-sync sync dry-run --config /path/to/config.yaml`,
	RunE:    runDryRun,
}

func init() {
	onceCmd.Flags().StringVarP(&organizationFlag, "organization", "o", "", "organization id of the connection")
	onceCmd.Flags().StringVarP(&sourceFlag, "source", "s", "", "source of the connection (hubspot, google_ads, ...)")
	onceCmd.Flags().StringSliceVarP(&resourcesFlag, "resources", "r", nil, "only sync these resources")
	onceCmd.Flags().IntVar(&itemCapFlag, "item-cap", 0, "maximum records per resource (0 uses the source default)")
	_ = onceCmd.MarkFlagRequired("organization")
	_ = onceCmd.MarkFlagRequired("source")

	SyncCmd.AddCommand(onceCmd)
	SyncCmd.AddCommand(allCmd)
	SyncCmd.AddCommand(daemonCmd)
	SyncCmd.AddCommand(dryRunCmd)
}

type session struct {
	ctx          context.Context
	wiring       *core.Wiring
	orchestrator *orchestrator.SyncOrchestrator
	logger       zerolog.Logger
	stop         context.CancelFunc
}

func setup(cmd *cobra.Command, component string) (*session, error) {
	appConfig, err := config.Load()
	if err != nil {
		log.Logger.Error().Err(err).Msg("Error creating config")
		return nil, err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	s := &session{
		ctx:    ctx,
		wiring: core.NewWiring(appConfig),
		logger: log.Logger.With().Str("component", component).Logger(),
		stop:   stop,
	}

	s.orchestrator, err = s.wiring.InitOrchestrator(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Error initialising orchestrator")
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) close() {
	s.stop()
	if err := s.wiring.Close(); err != nil {
		s.logger.Error().Err(err).Msg("Error releasing resources")
	}
}

func runOnce(cmd *cobra.Command, _ []string) error {
	s, err := setup(cmd, "sync-once")
	if err != nil {
		return err
	}
	defer s.close()
	ctx, orch, logger := s.ctx, s.orchestrator, s.logger

	logger.Info().Str("organization_id", organizationFlag).Str("source", sourceFlag).Msg("Starting one-time sync")
	result, err := orch.Sync(ctx, organizationFlag, models.SourceName(sourceFlag), orchestrator.SyncOptions{
		Resources: resourcesFlag,
		ItemCap:   itemCapFlag,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Error during sync")
		return err
	}

	for name, count := range result.Counts {
		logger.Info().Str("resource", name).Int("count", count).Msg("Resource synced")
	}
	for _, msg := range result.Errors {
		logger.Warn().Str("error", msg).Msg("Resource failed")
	}
	logger.Info().Int("total", result.Total()).Int("errors", len(result.Errors)).Msg("One-time sync completed")
	return nil
}

func runAll(cmd *cobra.Command, _ []string) error {
	s, err := setup(cmd, "sync-all")
	if err != nil {
		return err
	}
	defer s.close()
	ctx, orch, logger := s.ctx, s.orchestrator, s.logger

	result, err := orch.SyncAll(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error during sync")
		return err
	}
	for _, run := range result.Runs {
		if run.Error != nil {
			logger.Warn().Err(run.Error).
				Str("organization_id", run.OrganizationID).
				Str("source", run.Source.String()).
				Msg("Connection failed")
		}
	}
	if result.Failed > 0 {
		return errors.New("one or more connections failed to sync")
	}
	return nil
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	s, err := setup(cmd, "sync-daemon")
	if err != nil {
		return err
	}
	defer s.close()
	ctx, orch, logger := s.ctx, s.orchestrator, s.logger

	interval := time.Duration(s.wiring.GetConfig().Interval) * time.Minute
	logger.Info().Dur("interval", interval).Msg("Starting connector-sync daemon")
	return scheduler.New(orch, interval).Run(ctx)
}

func runDryRun(cmd *cobra.Command, _ []string) error {
	s, err := setup(cmd, "sync-dry-run")
	if err != nil {
		return err
	}
	defer s.close()
	ctx, orch, logger := s.ctx, s.orchestrator, s.logger

	plans, err := orch.Plan(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Error discovering connections for dry-run")
		return err
	}

	logger.Info().Msg("=== DRY RUN: Connections that would be synced ===")

	resources := 0
	for _, plan := range plans {
		event := logger.Info().
			Str("organization_id", plan.OrganizationID).
			Str("source", plan.Source.String()).
			Str("status", plan.Status.String()).
			Str("resources", strings.Join(plan.Resources, ","))
		if plan.LastSyncAt != nil {
			event = event.Time("last_sync_at", *plan.LastSyncAt)
		}
		event.Msg(" → Would sync")
		resources += len(plan.Resources)
	}

	logger.Info().Int("total_connections", len(plans)).Int("total_resources", resources).Msg("=== DRY RUN COMPLETE ===")
	return nil
}
