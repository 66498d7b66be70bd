package models

import "time"

// SourceName identifies one external platform integration.
type SourceName string

const (
	SourceHubSpot         SourceName = "hubspot"
	SourceGoogleAds       SourceName = "google_ads"
	SourceGoogleAnalytics SourceName = "google_analytics"
	SourceSEOCrawler      SourceName = "seo_crawler"
	SourceXero            SourceName = "xero"
)

func (s SourceName) String() string {
	return string(s)
}

// ConnectionStatus represents where a connection is in its sync lifecycle.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnected    ConnectionStatus = "connected"
	StatusSyncing      ConnectionStatus = "syncing"
	StatusError        ConnectionStatus = "error"
)

func (s ConnectionStatus) String() string {
	return string(s)
}

// Syncable reports whether a run may start from this status. A connection left in
// syncing by a crashed run is allowed through; the sync lease decides exclusivity.
func (s ConnectionStatus) Syncable() bool {
	return s == StatusConnected || s == StatusSyncing
}

// Credentials holds the tokens of one connection. Sources authenticated with a static
// API key carry no refresh token and no expiry.
type Credentials struct {
	AccessToken       string     `json:"accessToken"`
	RefreshToken      string     `json:"refreshToken,omitempty"`
	AccessTokenExpiry *time.Time `json:"accessTokenExpiry,omitempty"`
}

func (c Credentials) HasRefreshToken() bool {
	return c.RefreshToken != ""
}

// NeedsRefresh reports whether the access token is expired or will expire within margin.
func (c Credentials) NeedsRefresh(now time.Time, margin time.Duration) bool {
	if c.AccessTokenExpiry == nil {
		return false
	}
	return !now.Before(c.AccessTokenExpiry.Add(-margin))
}

// Connection is the per-organization, per-source credential and status record.
type Connection struct {
	OrganizationID  string            `json:"organizationId"`
	Source          SourceName        `json:"source"`
	Status          ConnectionStatus  `json:"status"`
	Credentials     Credentials       `json:"credentials"`
	SourceConfig    map[string]string `json:"sourceConfig,omitempty"`
	LastSyncAt      *time.Time        `json:"lastSyncAt,omitempty"`
	LastSyncResults *SyncResult       `json:"lastSyncResults,omitempty"`
	ErrorMessage    *string           `json:"errorMessage,omitempty"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Key is the lease and event key of the connection.
func (c *Connection) Key() string {
	return ConnectionKey(c.OrganizationID, c.Source)
}

func ConnectionKey(organizationID string, source SourceName) string {
	return organizationID + "_" + string(source)
}

// ConnectionUpdate is a merge-style partial update. Nil fields are left untouched;
// an ErrorMessage pointing at an empty string clears the stored message.
type ConnectionUpdate struct {
	Status          *ConnectionStatus
	Credentials     *Credentials
	LastSyncAt      *time.Time
	LastSyncResults *SyncResult
	ErrorMessage    *string
}

// Apply merges the update into conn.
func (u ConnectionUpdate) Apply(conn *Connection) {
	if u.Status != nil {
		conn.Status = *u.Status
	}
	if u.Credentials != nil {
		conn.Credentials = *u.Credentials
	}
	if u.LastSyncAt != nil {
		t := *u.LastSyncAt
		conn.LastSyncAt = &t
	}
	if u.LastSyncResults != nil {
		conn.LastSyncResults = u.LastSyncResults.Clone()
	}
	if u.ErrorMessage != nil {
		if *u.ErrorMessage == "" {
			conn.ErrorMessage = nil
		} else {
			msg := *u.ErrorMessage
			conn.ErrorMessage = &msg
		}
	}
}

func StatusUpdate(status ConnectionStatus) ConnectionUpdate {
	return ConnectionUpdate{Status: &status}
}

func (u ConnectionUpdate) WithErrorMessage(msg string) ConnectionUpdate {
	u.ErrorMessage = &msg
	return u
}

func (u ConnectionUpdate) ClearErrorMessage() ConnectionUpdate {
	return u.WithErrorMessage("")
}
