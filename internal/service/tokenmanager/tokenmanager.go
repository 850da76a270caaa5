package tokenmanager

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/nkiryanov/graphtoken/internal/apperrors"
	"github.com/nkiryanov/graphtoken/internal/logger"
	"github.com/nkiryanov/graphtoken/internal/models"
	"github.com/nkiryanov/graphtoken/internal/repository"
)

const (
	defaultGrantType          = "fb_exchange_token"
	defaultExchangeTokenParam = "fb_exchange_token"
	defaultDialogURL          = "https://www.facebook.com"
	defaultAPIVersion         = "v19.0"
	defaultStateTTL           = 10 * time.Minute
	defaultRefreshThreshold   = 7 * 24 * time.Hour
)

var defaultScopes = []string{
	"instagram_basic",
	"instagram_manage_comments",
	"pages_read_engagement",
	"pages_manage_posts",
	"pages_read_user_content",
	"pages_show_list",
	"public_profile",
}

// RefreshPolicy decides when to refresh and what to do if refresh fails
type RefreshPolicy struct {
	// Refresh when remaining validity drops below threshold
	Threshold time.Duration

	// If true a failed refresh returns the stored (aging or expired) token instead of error
	// The failure is logged with error level either way
	FallbackOnFailure bool
}

// DefaultRefreshPolicy refreshes a week before expiry and prefers availability over freshness
var DefaultRefreshPolicy = RefreshPolicy{
	Threshold:         defaultRefreshThreshold,
	FallbackOnFailure: true,
}

// State of the token with 'remaining' validity
func (p RefreshPolicy) State(remaining time.Duration) models.TokenState {
	switch {
	case remaining <= 0:
		return models.StateExpired
	case remaining < p.Threshold:
		return models.StateExpiringSoon
	default:
		return models.StateFresh
	}
}

// Token manager config with sensible defaults
type Config struct {
	// Issuer application credentials
	// Required to be set
	AppID     string
	AppSecret string

	// Redirect URI registered for the application; must match the one used in the login URL
	RedirectURI string

	// Secret key to sign OAuth state
	// Required to be set
	SecretKey string

	// Long-lived exchange and refresh parameters
	// If not set than graph API names are used
	GrantType          string
	ExchangeTokenParam string

	// Login dialog location: {DialogURL}/{APIVersion}/dialog/oauth
	// If not set than default is used
	DialogURL  string
	APIVersion string
	Scopes     []string
	StateTTL   time.Duration

	// If nil DefaultRefreshPolicy is used
	Refresh *RefreshPolicy
}

type issuerClient interface {
	// Call the issuer token endpoint; params are encoded into query
	Get(ctx context.Context, params any) ([]byte, error)
}

type TokenManager struct {
	cfg    Config
	policy RefreshPolicy

	// Guards every load -> decide -> refresh -> save sequence
	mu   sync.Mutex
	repo repository.TokenRepo

	issuer issuerClient
	logger logger.Logger
	now    func() time.Time
}

func New(cfg Config, repo repository.TokenRepo, issuer issuerClient, l logger.Logger) (*TokenManager, error) {
	switch {
	case cfg.AppID == "" || cfg.AppSecret == "":
		return nil, errors.New("app id and app secret must not be empty")
	case cfg.SecretKey == "":
		return nil, errors.New("secret key must not be empty")
	case repo == nil || issuer == nil:
		return nil, errors.New("token repo and issuer client must not be nil")
	}

	if cfg.RedirectURI != "" {
		if _, err := url.ParseRequestURI(cfg.RedirectURI); err != nil {
			return nil, errors.New("redirect uri must be absolute url")
		}
	}

	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.GrantType, defaultGrantType)
	setDefault(&cfg.ExchangeTokenParam, defaultExchangeTokenParam)
	setDefault(&cfg.DialogURL, defaultDialogURL)
	setDefault(&cfg.APIVersion, defaultAPIVersion)

	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaultScopes
	}
	if cfg.StateTTL == 0 {
		cfg.StateTTL = defaultStateTTL
	}

	policy := DefaultRefreshPolicy
	if cfg.Refresh != nil {
		policy = *cfg.Refresh
	}
	if policy.Threshold <= 0 {
		policy.Threshold = defaultRefreshThreshold
	}

	return &TokenManager{
		cfg:    cfg,
		policy: policy,
		repo:   repo,
		issuer: issuer,
		logger: l.With("component", "tokenmanager"),
		now:    time.Now,
	}, nil
}

// load returns stored usable token
// Read failures are logged and treated exactly as absence
func (m *TokenManager) load(ctx context.Context) (models.TokenRecord, bool) {
	token, err := m.repo.Load(ctx)

	switch {
	case errors.Is(err, apperrors.ErrTokenNotFound):
		return token, false
	case err != nil:
		m.logger.Error("Failed to load token, treating as absent", "error", err)
		return token, false
	case !token.HasAccessToken():
		m.logger.Warn("Stored token has no access_token, treating as absent")
		return token, false
	}

	return token, true
}

// save is best effort: failure is logged and the previous record stays in the store
func (m *TokenManager) save(ctx context.Context, token models.TokenRecord) bool {
	if err := m.repo.Save(ctx, token); err != nil {
		m.logger.Error("Failed to save token, previous record kept", "error", err)
		return false
	}

	m.logger.Info("Token saved", "expires_in", token.ExpiresIn(), "token_length", len(token.AccessToken()))
	return true
}
