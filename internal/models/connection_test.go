package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialsNeedsRefresh(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name     string
		creds    Credentials
		margin   time.Duration
		expected bool
	}{
		{"static api key never refreshes", Credentials{AccessToken: "key"}, 5 * time.Minute, false},
		{"fresh token outside margin", Credentials{AccessTokenExpiry: at(10 * time.Minute)}, 5 * time.Minute, false},
		{"token inside margin", Credentials{AccessTokenExpiry: at(4 * time.Minute)}, 5 * time.Minute, true},
		{"token exactly at margin", Credentials{AccessTokenExpiry: at(5 * time.Minute)}, 5 * time.Minute, true},
		{"expired token with zero margin", Credentials{AccessTokenExpiry: at(-time.Second)}, 0, true},
		{"valid token with zero margin", Credentials{AccessTokenExpiry: at(time.Second)}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.creds.NeedsRefresh(now, tt.margin))
		})
	}
}

func TestConnectionStatusSyncable(t *testing.T) {
	assert.True(t, StatusConnected.Syncable())
	assert.True(t, StatusSyncing.Syncable())
	assert.False(t, StatusError.Syncable())
	assert.False(t, StatusDisconnected.Syncable())
}

func TestConnectionUpdateApply(t *testing.T) {
	t.Run("leaves nil fields untouched", func(t *testing.T) {
		msg := "previous failure"
		conn := &Connection{
			OrganizationID: "org-1",
			Source:         SourceHubSpot,
			Status:         StatusConnected,
			Credentials:    Credentials{AccessToken: "a", RefreshToken: "r"},
			ErrorMessage:   &msg,
		}

		StatusUpdate(StatusSyncing).Apply(conn)

		assert.Equal(t, StatusSyncing, conn.Status)
		assert.Equal(t, "a", conn.Credentials.AccessToken)
		require.NotNil(t, conn.ErrorMessage)
		assert.Equal(t, "previous failure", *conn.ErrorMessage)
	})

	t.Run("empty error message clears the stored message", func(t *testing.T) {
		msg := "previous failure"
		conn := &Connection{ErrorMessage: &msg}

		StatusUpdate(StatusConnected).ClearErrorMessage().Apply(conn)

		assert.Nil(t, conn.ErrorMessage)
		assert.Equal(t, StatusConnected, conn.Status)
	})

	t.Run("copies results so later mutation does not leak", func(t *testing.T) {
		result := NewSyncResult()
		result.Add("contacts", 10, "")
		now := time.Now()
		conn := &Connection{}

		ConnectionUpdate{LastSyncResults: result, LastSyncAt: &now}.Apply(conn)
		result.Add("deals", 3, "")

		require.NotNil(t, conn.LastSyncResults)
		assert.Equal(t, map[string]int{"contacts": 10}, conn.LastSyncResults.Counts)
		assert.Equal(t, now, *conn.LastSyncAt)
	})
}

func TestConnectionKey(t *testing.T) {
	conn := &Connection{OrganizationID: "org-1", Source: SourceXero}
	assert.Equal(t, "org-1_xero", conn.Key())
}
