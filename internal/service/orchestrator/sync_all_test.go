package orchestrator

import (
	"context"
	"time"

	"connector-sync/internal/models"
)

func (s *OrchestratorTestSuite) TestSyncAll() {
	s.saveConnection("org-2", models.SourceHubSpot, models.StatusSyncing)
	s.saveConnection("org-3", models.SourceHubSpot, models.StatusDisconnected)
	s.saveConnection("org-4", models.SourceXero, models.StatusConnected)
	s.settings.Concurrency = 2

	result, err := s.newOrchestrator().SyncAll(s.ctx)

	s.Require().NoError(err)
	s.Equal(2, result.TotalConnections)
	s.Equal(2, result.Succeeded)
	s.Equal(0, result.Failed)
	s.Len(result.Runs, 2)
	for _, run := range result.Runs {
		s.NoError(run.Error)
		s.Equal(250, run.Results.Counts["contacts"])
	}

	conn, err := s.store.GetConnection(s.ctx, "org-3", models.SourceHubSpot)
	s.Require().NoError(err)
	s.Equal(models.StatusDisconnected, conn.Status)
}

func (s *OrchestratorTestSuite) TestSyncAllReportsFailuresWithoutStopping() {
	expired := time.Now().Add(-time.Hour)
	broken := s.saveConnection("org-2", models.SourceHubSpot, models.StatusConnected)
	broken.Credentials.AccessTokenExpiry = &expired
	s.Require().NoError(s.store.SaveConnection(s.ctx, broken))

	_, err := s.locker.Acquire(s.ctx, models.ConnectionKey("org-5", models.SourceHubSpot), time.Minute)
	s.Require().NoError(err)
	s.saveConnection("org-5", models.SourceHubSpot, models.StatusConnected)

	result, err := s.newOrchestrator().SyncAll(s.ctx)

	s.Require().NoError(err)
	s.Equal(3, result.TotalConnections)
	s.Equal(1, result.Succeeded)
	s.Equal(1, result.Failed)
	s.Equal(1, result.Skipped)
}

func (s *OrchestratorTestSuite) TestSyncAllCancelled() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	result, err := s.newOrchestrator().SyncAll(ctx)

	s.Nil(result)
	s.ErrorIs(err, context.Canceled)
}

func (s *OrchestratorTestSuite) TestPlan() {
	s.saveConnection("org-2", models.SourceHubSpot, models.StatusError)
	s.syncRule.ResourcesToIgnore = []string{"hubspot/deals"}

	plans, err := s.newOrchestrator().Plan(s.ctx)

	s.Require().NoError(err)
	s.Require().Len(plans, 1)
	s.Equal(orgID, plans[0].OrganizationID)
	s.Equal(models.StatusConnected, plans[0].Status)
	s.Equal([]string{"contacts", "companies"}, plans[0].Resources)
	s.Empty(s.platform.Requests())
	s.Empty(s.statusHistory())
}
