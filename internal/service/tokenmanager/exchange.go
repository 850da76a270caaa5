package tokenmanager

import (
	"context"
	"fmt"

	"github.com/nkiryanov/graphtoken/internal/apperrors"
	"github.com/nkiryanov/graphtoken/internal/models"
	"github.com/nkiryanov/graphtoken/internal/service/issuer"
)

// ExchangeCodeWithState checks the state issued by LoginURL and exchanges the code
func (m *TokenManager) ExchangeCodeWithState(ctx context.Context, code string, state string) (models.TokenRecord, error) {
	if err := m.verifyState(state); err != nil {
		m.logger.Warn("Rejected authorization callback", "error", err)
		return models.TokenRecord{}, err
	}

	return m.ExchangeCode(ctx, code)
}

// ExchangeCode trades authorization code for short-lived token, short-lived for long-lived,
// stores the long-lived one and returns it
// Not retried: on ErrExchangeFailed the user has to authorize again
func (m *TokenManager) ExchangeCode(ctx context.Context, code string) (models.TokenRecord, error) {
	if code == "" {
		return models.TokenRecord{}, fmt.Errorf("%w: authorization code is empty", apperrors.ErrExchangeFailed)
	}

	body, err := m.issuer.Get(ctx, issuer.CodeParams{
		ClientID:     m.cfg.AppID,
		RedirectURI:  m.cfg.RedirectURI,
		ClientSecret: m.cfg.AppSecret,
		Code:         code,
	})
	if err != nil {
		return models.TokenRecord{}, fmt.Errorf("%w: short-lived token. Err: %w", apperrors.ErrExchangeFailed, err)
	}

	short, err := models.ParseTokenRecord(body)
	if err != nil || !short.HasAccessToken() {
		return models.TokenRecord{}, fmt.Errorf("%w: failed to obtain short-lived token: %s", apperrors.ErrExchangeFailed, body)
	}

	body, err = m.issuer.Get(ctx, m.exchangeParams(short.AccessToken()))
	if err != nil {
		return models.TokenRecord{}, fmt.Errorf("%w: long-lived token. Err: %w", apperrors.ErrExchangeFailed, err)
	}

	token, err := models.NewTokenRecord(body, m.now())
	if err != nil || !token.HasAccessToken() {
		return models.TokenRecord{}, fmt.Errorf("%w: failed to obtain long-lived token: %s", apperrors.ErrExchangeFailed, body)
	}

	m.mu.Lock()
	m.save(ctx, token)
	m.mu.Unlock()

	m.logger.Info("Long-lived token obtained", "expires_in", token.ExpiresIn())
	return token, nil
}

func (m *TokenManager) exchangeParams(exchangeToken string) issuer.ExchangeParams {
	return issuer.ExchangeParams{
		GrantType:    m.cfg.GrantType,
		ClientID:     m.cfg.AppID,
		ClientSecret: m.cfg.AppSecret,
		ExchangeToken: issuer.ExchangeToken{
			Param: m.cfg.ExchangeTokenParam,
			Value: exchangeToken,
		},
	}
}
