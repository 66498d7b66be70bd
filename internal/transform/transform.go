// Package transform builds normalized records from typed raw platform payloads.
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"connector-sync/internal/models"
	"connector-sync/pkg/converter"
)

const naturalKeyBytes = 16

// Func maps one raw item to its normalized record. Implementations must not do I/O
// and must fill absent optional fields with zero values instead of failing.
type Func[T any] func(organizationID string, raw T, syncedAt time.Time) models.Record

// DocumentKey is the composite document key of a record.
func DocumentKey(organizationID, externalID string) string {
	return organizationID + "_" + externalID
}

// NaturalKey derives a stable id for items that have no native id, such as a page URL
// or a campaign name. Distinct inputs may collide; that is accepted.
func NaturalKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:naturalKeyBytes])
}

// NewRecord assembles a record keyed by organization and external id. Nil field values
// are kept and stored as null.
func NewRecord(organizationID string, source models.SourceName, externalID string, fields map[string]any, syncedAt time.Time) models.Record {
	return models.Record{
		Key:            DocumentKey(organizationID, externalID),
		OrganizationID: organizationID,
		ExternalID:     externalID,
		Source:         source,
		Fields:         converter.CloneFields(fields),
		SyncedAt:       syncedAt,
	}
}
