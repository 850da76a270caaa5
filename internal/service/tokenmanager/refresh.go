package tokenmanager

import (
	"context"
	"fmt"

	"github.com/nkiryanov/graphtoken/internal/apperrors"
	"github.com/nkiryanov/graphtoken/internal/models"
)

// GetValidAccessToken returns the stored access token, refreshing it first if it expires soon
// Returns ErrUnauthorized if there is no usable token
// A failed refresh falls back to the stored token unless the refresh policy says otherwise
func (m *TokenManager) GetValidAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.load(ctx)
	if !ok {
		return "", fmt.Errorf("%w: authorize via login url and exchange the code", apperrors.ErrUnauthorized)
	}

	remaining := token.Remaining(m.now())
	state := m.policy.State(remaining)
	if state == models.StateFresh {
		return token.AccessToken(), nil
	}

	m.logger.Info("Token expiring soon, refreshing", "state", state.String(), "remaining", remaining)

	refreshed, err := m.refresh(ctx, token)
	if err != nil {
		if !m.policy.FallbackOnFailure {
			return "", err
		}
		m.logger.Error("Failed to refresh token, falling back to existing token", "error", err, "state", state.String(), "remaining", remaining)
		return token.AccessToken(), nil
	}

	return refreshed.AccessToken(), nil
}

// refresh exchanges the current access token for a new long-lived one
// New token is returned even if it could not be saved
func (m *TokenManager) refresh(ctx context.Context, current models.TokenRecord) (models.TokenRecord, error) {
	body, err := m.issuer.Get(ctx, m.exchangeParams(current.AccessToken()))
	if err != nil {
		return models.TokenRecord{}, fmt.Errorf("%w: %w", apperrors.ErrRefreshFailed, err)
	}

	token, err := models.NewTokenRecord(body, m.now())
	if err != nil || !token.HasAccessToken() {
		return models.TokenRecord{}, fmt.Errorf("%w: response has no access_token: %s", apperrors.ErrRefreshFailed, body)
	}

	m.save(ctx, token)
	return token, nil
}
