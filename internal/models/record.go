package models

import "time"

// Record is one normalized document produced by a transformer.
type Record struct {
	Key            string         `json:"-"`
	OrganizationID string         `json:"organizationId"`
	ExternalID     string         `json:"externalId"`
	Source         SourceName     `json:"source"`
	Fields         map[string]any `json:"fields"`
	SyncedAt       time.Time      `json:"syncedAt"`
}
