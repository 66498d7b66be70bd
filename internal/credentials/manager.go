// Package credentials keeps connection access tokens fresh.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"

	"connector-sync/internal/models"
	"connector-sync/internal/repository"
	"connector-sync/pkg/log"
)

// TokenSource describes how a source issues tokens. A nil OAuthConfig means the
// source authenticates with a static API key that is never refreshed.
type TokenSource interface {
	OAuthConfig() *oauth2.Config
	RefreshMargin() time.Duration
}

// Manager refreshes expiring access tokens and persists them before handing them out.
// Refresh calls go through one circuit breaker per connection so a provider that keeps
// rejecting a connection is not hammered by every scheduled run.
type Manager struct {
	repo       repository.ConnectionRepository
	httpClient *http.Client
	now        func() time.Time
	breakersMu sync.Mutex
	breakers   map[string]*gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

func NewManager(repo repository.ConnectionRepository, httpClient *http.Client) *Manager {
	return &Manager{
		repo:       repo,
		httpClient: httpClient,
		now:        time.Now,
		breakers:   make(map[string]*gobreaker.CircuitBreaker),
		logger: log.Logger.With().
			Str("component", "credential_manager").
			Logger(),
	}
}

// EnsureValidToken returns a usable access token for conn. A token that is still valid
// beyond the source's refresh margin is returned without any network call. Otherwise
// the refresh-token grant is performed, the new credentials are persisted, conn is
// updated in place, and the new token is returned. Any failure to obtain or store a
// token wraps models.ErrAuthExpired, except a refresh cut short by ctx, which returns
// the context error.
func (m *Manager) EnsureValidToken(ctx context.Context, conn *models.Connection, src TokenSource) (string, error) {
	logger := m.logger.With().
		Str("organization_id", conn.OrganizationID).
		Str("source", conn.Source.String()).
		Logger()

	creds := conn.Credentials
	if !creds.NeedsRefresh(m.now(), src.RefreshMargin()) {
		if creds.AccessToken == "" {
			return "", fmt.Errorf("%w: connection has no access token", models.ErrAuthExpired)
		}
		logger.Debug().Msg("Access token still valid")
		return creds.AccessToken, nil
	}

	oauthConfig := src.OAuthConfig()
	if oauthConfig == nil {
		return "", fmt.Errorf("%w: token expired and source does not support refresh", models.ErrAuthExpired)
	}
	if !creds.HasRefreshToken() {
		logger.Warn().Msg("Access token expired and no refresh token is stored")
		return "", fmt.Errorf("%w: no refresh token", models.ErrAuthExpired)
	}

	logger.Info().Msg("Refreshing access token")
	token, err := m.refresh(ctx, conn.Key(), oauthConfig, creds.RefreshToken)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.Warn().Err(err).Msg("Token refresh interrupted")
			return "", fmt.Errorf("token refresh interrupted: %w", ctxErr)
		}
		logger.Error().Err(err).Msg("Token refresh failed")
		return "", fmt.Errorf("%w: %v", models.ErrAuthExpired, err)
	}

	refreshed := models.Credentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = creds.RefreshToken
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		refreshed.AccessTokenExpiry = &expiry
	}

	// The grant may have rotated the refresh token, so the write must land even if
	// the run was cancelled meanwhile.
	persistCtx := context.WithoutCancel(ctx)
	if err := m.repo.UpdateConnection(persistCtx, conn.OrganizationID, conn.Source, models.ConnectionUpdate{Credentials: &refreshed}); err != nil {
		logger.Error().Err(err).Msg("Failed to persist refreshed token")
		return "", fmt.Errorf("%w: failed to persist refreshed token: %v", models.ErrAuthExpired, err)
	}

	conn.Credentials = refreshed
	logger.Info().Time("expires_at", token.Expiry).Msg("Access token refreshed")
	return refreshed.AccessToken, nil
}

func (m *Manager) refresh(ctx context.Context, key string, cfg *oauth2.Config, refreshToken string) (*oauth2.Token, error) {
	if m.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	}

	result, err := m.breaker(key).Execute(func() (interface{}, error) {
		return cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("token endpoint temporarily blocked after repeated failures: %w", err)
		}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode != "" {
			return nil, fmt.Errorf("grant rejected: %s", retrieveErr.ErrorCode)
		}
		return nil, err
	}
	return result.(*oauth2.Token), nil
}

//nolint:mnd
func (m *Manager) breaker(key string) *gobreaker.CircuitBreaker {
	m.breakersMu.Lock()
	defer m.breakersMu.Unlock()

	if brk, ok := m.breakers[key]; ok {
		return brk
	}
	brk := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "token_refresh_" + key,
		MaxRequests: 1,
		Timeout:     5 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})
	m.breakers[key] = brk
	return brk
}
