package tokenmanager

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/nkiryanov/graphtoken/internal/apperrors"
)

// LoginURL returns issuer authorization dialog url with signed state
// The user is redirected back to RedirectURI with 'code' and 'state'
func (m *TokenManager) LoginURL() (string, error) {
	authURL, err := url.JoinPath(m.cfg.DialogURL, m.cfg.APIVersion, "dialog", "oauth")
	if err != nil {
		return "", fmt.Errorf("invalid dialog url. Err: %w", err)
	}

	state, err := m.issueState()
	if err != nil {
		return "", err
	}

	cfg := oauth2.Config{
		ClientID:    m.cfg.AppID,
		RedirectURL: m.cfg.RedirectURI,
		Endpoint:    oauth2.Endpoint{AuthURL: authURL},
		// Graph API expects comma separated scopes, oauth2 would join them with spaces
		Scopes: []string{strings.Join(m.cfg.Scopes, ",")},
	}

	return cfg.AuthCodeURL(state), nil
}

func (m *TokenManager) issueState() (string, error) {
	now := m.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Audience:  jwt.ClaimStrings{m.cfg.AppID},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.StateTTL)),
	})

	state, err := token.SignedString([]byte(m.cfg.SecretKey))
	if err != nil {
		return "", fmt.Errorf("error while signing state. Err: %w", err)
	}
	return state, nil
}

func (m *TokenManager) verifyState(state string) error {
	if state == "" {
		return fmt.Errorf("%w: state is empty", apperrors.ErrInvalidState)
	}

	_, err := jwt.ParseWithClaims(
		state,
		&jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			return []byte(m.cfg.SecretKey), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(m.cfg.AppID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidState, err)
	}

	return nil
}
