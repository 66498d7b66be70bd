package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"connector-sync/internal/models"
	"connector-sync/internal/repository"
	"connector-sync/pkg/db"
	"connector-sync/pkg/db/migrations"
	"connector-sync/testutil"
)

type RepositoryTestSuite struct {
	suite.Suite
	ctx      context.Context
	pgHelper *testutil.PostgresHelper
	db       *db.PostgresDatastore
	repo     *Repository
}

func TestRepositorySuite(t *testing.T) {
	if os.Getenv("SKIP_INTEGRATION_TESTS") == "true" {
		t.Skip("Skipping integration tests")
	}
	suite.Run(t, new(RepositoryTestSuite))
}

func (suite *RepositoryTestSuite) SetupSuite() {
	suite.ctx = context.Background()

	var err error
	suite.pgHelper, err = testutil.NewPostgresContainer(suite.ctx)
	suite.Require().NoError(err, "Failed to create Postgres test container")

	suite.db, err = db.NewPostgresDatastore(suite.ctx, suite.pgHelper.Config, migrations.NewPostgresMigration())
	suite.Require().NoError(err, "Failed to create datastore")
	suite.repo = NewRepository(suite.db)
}

func (suite *RepositoryTestSuite) SetupTest() {
	suite.Require().NoError(suite.pgHelper.ExecutePsqlCommand(suite.ctx, "TRUNCATE TABLE connections, documents"))
}

func (suite *RepositoryTestSuite) TearDownSuite() {
	if suite.db != nil {
		suite.NoError(suite.db.Close())
	}
	if suite.pgHelper != nil {
		suite.NoError(suite.pgHelper.Terminate(suite.ctx))
	}
}

func (suite *RepositoryTestSuite) seedConnection(org string, source models.SourceName, status models.ConnectionStatus) {
	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Millisecond)
	suite.Require().NoError(suite.repo.SaveConnection(suite.ctx, &models.Connection{
		OrganizationID: org,
		Source:         source,
		Status:         status,
		Credentials:    models.Credentials{AccessToken: "access", RefreshToken: "refresh", AccessTokenExpiry: &expiry},
		SourceConfig:   map[string]string{"accountId": "acc-1"},
	}))
}

func (suite *RepositoryTestSuite) TestConnectionLifecycle() {
	suite.seedConnection("org-1", models.SourceGoogleAds, models.StatusConnected)

	suite.Run("partial update keeps untouched columns", func() {
		err := suite.repo.UpdateConnection(suite.ctx, "org-1", models.SourceGoogleAds,
			models.StatusUpdate(models.StatusError).WithErrorMessage("authorization expired"))
		suite.Require().NoError(err)

		conn, err := suite.repo.GetConnection(suite.ctx, "org-1", models.SourceGoogleAds)
		suite.Require().NoError(err)
		suite.Equal(models.StatusError, conn.Status)
		suite.Equal("access", conn.Credentials.AccessToken)
		suite.Equal("acc-1", conn.SourceConfig["accountId"])
		suite.Require().NotNil(conn.ErrorMessage)
		suite.Equal("authorization expired", *conn.ErrorMessage)
	})

	suite.Run("completion stores results and clears the error", func() {
		now := time.Now().UTC().Truncate(time.Millisecond)
		result := models.NewSyncResult()
		result.Add("campaigns", 12, "")
		result.Add("ad_groups", 0, "ad_groups sync failed: malformed response at offset 0: EOF")

		update := models.StatusUpdate(models.StatusConnected).ClearErrorMessage()
		update.LastSyncAt = &now
		update.LastSyncResults = result
		suite.Require().NoError(suite.repo.UpdateConnection(suite.ctx, "org-1", models.SourceGoogleAds, update))

		conn, err := suite.repo.GetConnection(suite.ctx, "org-1", models.SourceGoogleAds)
		suite.Require().NoError(err)
		suite.Equal(models.StatusConnected, conn.Status)
		suite.Nil(conn.ErrorMessage)
		suite.Require().NotNil(conn.LastSyncAt)
		suite.WithinDuration(now, *conn.LastSyncAt, time.Second)
		suite.Equal(result.Counts, conn.LastSyncResults.Counts)
		suite.Equal(result.Errors, conn.LastSyncResults.Errors)
	})

	suite.Run("credential refresh persists the new token", func() {
		expiry := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Millisecond)
		creds := models.Credentials{AccessToken: "new-access", RefreshToken: "refresh", AccessTokenExpiry: &expiry}
		suite.Require().NoError(suite.repo.UpdateConnection(suite.ctx, "org-1", models.SourceGoogleAds,
			models.ConnectionUpdate{Credentials: &creds}))

		conn, err := suite.repo.GetConnection(suite.ctx, "org-1", models.SourceGoogleAds)
		suite.Require().NoError(err)
		suite.Equal("new-access", conn.Credentials.AccessToken)
		suite.WithinDuration(expiry, *conn.Credentials.AccessTokenExpiry, time.Second)
	})

	suite.Run("unknown connection", func() {
		_, err := suite.repo.GetConnection(suite.ctx, "org-2", models.SourceGoogleAds)
		suite.ErrorIs(err, repository.ErrConnectionNotFound)

		err = suite.repo.UpdateConnection(suite.ctx, "org-2", models.SourceGoogleAds, models.StatusUpdate(models.StatusSyncing))
		suite.ErrorIs(err, repository.ErrConnectionNotFound)
	})
}

func (suite *RepositoryTestSuite) TestListConnections() {
	suite.seedConnection("org-b", models.SourceXero, models.StatusConnected)
	suite.seedConnection("org-a", models.SourceHubSpot, models.StatusSyncing)
	suite.seedConnection("org-a", models.SourceXero, models.StatusDisconnected)

	conns, err := suite.repo.ListConnections(suite.ctx)

	suite.Require().NoError(err)
	suite.Require().Len(conns, 3)
	suite.Equal("org-a_hubspot", conns[0].Key())
	suite.Equal("org-a_xero", conns[1].Key())
	suite.Equal("org-b_xero", conns[2].Key())
}

func (suite *RepositoryTestSuite) TestUpsertBatchIsIdempotent() {
	syncedAt := time.Now().UTC().Truncate(time.Millisecond)
	records := make([]models.Record, 0, 500)
	for i := range 500 {
		id := fmt.Sprintf("%d", i)
		records = append(records, models.Record{
			Key:            "org-1_" + id,
			OrganizationID: "org-1",
			ExternalID:     id,
			Source:         models.SourceHubSpot,
			Fields:         map[string]any{"email": id + "@example.com", "lifecycleStage": "lead"},
			SyncedAt:       syncedAt,
		})
	}

	suite.Require().NoError(suite.repo.UpsertBatch(suite.ctx, "contacts", records))
	suite.Require().NoError(suite.repo.UpsertBatch(suite.ctx, "contacts", records))

	count, err := suite.repo.CountDocuments(suite.ctx, "contacts")
	suite.Require().NoError(err)
	suite.Equal(500, count)

	suite.Run("replaces the whole document", func() {
		replaced := records[0]
		replaced.Fields = map[string]any{"email": "changed@example.com"}
		suite.Require().NoError(suite.repo.UpsertBatch(suite.ctx, "contacts", []models.Record{replaced}))

		doc, err := suite.repo.GetDocument(suite.ctx, "contacts", replaced.Key)
		suite.Require().NoError(err)
		suite.Equal(map[string]any{"email": "changed@example.com"}, doc.Fields)
	})

	suite.Run("missing document", func() {
		_, err := suite.repo.GetDocument(suite.ctx, "contacts", "org-1_missing")
		suite.ErrorIs(err, repository.ErrDocumentNotFound)
	})
}
