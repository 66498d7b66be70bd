package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"connector-sync/internal/config"
	"connector-sync/internal/models"
	"connector-sync/pkg/httpclient"
)

const requestTimeout = 30 * time.Second

// Base implements the configuration driven part of Adapter. Platform adapters embed it.
type Base struct {
	SourceName    models.SourceName
	BaseURL       string
	PageSize      int
	ItemCap       int
	oauth         *oauth2.Config
	refreshMargin time.Duration
	client        *http.Client
	// APIKeyHeader, when set, carries the token instead of a bearer Authorization header.
	APIKeyHeader string
}

// NewBase reads endpoints and OAuth client settings from cfg, falling back to the
// adapter defaults for page size and refresh margin.
func NewBase(name models.SourceName, cfg config.SourceConfig, defaultPageSize int, defaultMargin time.Duration) Base {
	b := Base{
		SourceName:    name,
		BaseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		PageSize:      defaultPageSize,
		ItemCap:       cfg.ItemCap,
		refreshMargin: defaultMargin,
		client:        httpclient.New(requestTimeout, cfg.RequestsPerSecond),
	}
	if cfg.PageSize > 0 {
		b.PageSize = cfg.PageSize
	}
	if cfg.RefreshMargin > 0 {
		b.refreshMargin = cfg.RefreshMargin
	}
	if cfg.TokenURL != "" {
		b.oauth = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		}
	}
	return b
}

func (b Base) Name() models.SourceName {
	return b.SourceName
}

func (b Base) OAuthConfig() *oauth2.Config {
	return b.oauth
}

func (b Base) RefreshMargin() time.Duration {
	return b.refreshMargin
}

// HTTPClient is the rate limited client used for this source's API calls.
func (b Base) HTTPClient() *http.Client {
	return b.client
}

// NewRequest builds an authenticated JSON request against the source's base URL.
func (b Base) NewRequest(ctx context.Context, call Call, method, path string, query url.Values, body any) (*http.Request, error) {
	target := b.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.APIKeyHeader != "" {
		req.Header.Set(b.APIKeyHeader, call.AccessToken)
	} else {
		req.Header.Set("Authorization", "Bearer "+call.AccessToken)
	}
	return req, nil
}

// SourceConfigValue returns a required per-connection identifier.
func SourceConfigValue(conn *models.Connection, key string) (string, error) {
	v := conn.SourceConfig[key]
	if v == "" {
		return "", fmt.Errorf("connection source config is missing %q", key)
	}
	return v, nil
}

// Cap returns the configured item cap for this source, or def when none is configured.
func (b Base) Cap(def int) int {
	if b.ItemCap > 0 {
		return b.ItemCap
	}
	return def
}
