package testutil

import (
	"iter"
	"testing"

	"connector-sync/internal/models"
)

// CollectRecords drains seq and returns the records seen before the first error.
func CollectRecords(t *testing.T, seq iter.Seq2[models.Record, error]) ([]models.Record, error) {
	t.Helper()
	var records []models.Record
	for rec, err := range seq {
		if err != nil {
			return records, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// NewConnection returns a connected connection with a long lived access token.
func NewConnection(organizationID string, source models.SourceName, sourceConfig map[string]string) *models.Connection {
	return &models.Connection{
		OrganizationID: organizationID,
		Source:         source,
		Status:         models.StatusConnected,
		Credentials:    models.Credentials{AccessToken: "access-token"},
		SourceConfig:   sourceConfig,
	}
}
