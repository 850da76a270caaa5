package tokenmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/graphtoken/internal/apperrors"
	"github.com/nkiryanov/graphtoken/internal/logger"
	"github.com/nkiryanov/graphtoken/internal/models"
	"github.com/nkiryanov/graphtoken/internal/repository"
	"github.com/nkiryanov/graphtoken/internal/repository/file"
	"github.com/nkiryanov/graphtoken/internal/service/issuer"
)

const sixtyDays = 5184000

// fakeIssuer is token endpoint answering with respond(query)
type fakeIssuer struct {
	mu      sync.Mutex
	calls   []url.Values
	respond func(q url.Values) (int, string)
}

func (f *fakeIssuer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f.mu.Lock()
	f.calls = append(f.calls, q)
	respond := f.respond
	f.mu.Unlock()

	code, body := respond(q)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

func (f *fakeIssuer) Calls() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.calls...)
}

// graphIssuer answers like the graph API: code -> short token, exchange token -> long token
func graphIssuer() *fakeIssuer {
	return &fakeIssuer{respond: func(q url.Values) (int, string) {
		switch {
		case q.Get("code") != "":
			return http.StatusOK, `{"access_token": "short-token", "token_type": "bearer", "expires_in": 3600}`
		case q.Get("fb_exchange_token") != "":
			return http.StatusOK, fmt.Sprintf(`{"access_token": "long-token", "token_type": "bearer", "expires_in": %d, "issued_at": 1}`, sixtyDays)
		default:
			return http.StatusBadRequest, `{"error": {"message": "Missing parameter"}}`
		}
	}}
}

func failingIssuer() *fakeIssuer {
	return &fakeIssuer{respond: func(q url.Values) (int, string) {
		return http.StatusBadRequest, `{"error": {"message": "Error validating access token", "type": "OAuthException", "code": 190}}`
	}}
}

type env struct {
	manager *TokenManager
	repo    *file.TokenRepo
	issuer  *fakeIssuer
}

func newEnv(t *testing.T, fi *fakeIssuer, opts ...func(*Config)) env {
	t.Helper()

	srv := httptest.NewServer(fi)
	t.Cleanup(srv.Close)

	client, err := issuer.NewClient(issuer.Config{BaseURL: srv.URL, Timeout: time.Second}, logger.NewNoOpLogger())
	require.NoError(t, err)

	cfg := Config{
		AppID:       "app-id",
		AppSecret:   "app-secret",
		RedirectURI: "http://localhost:8080/api/graph/oauth/exchange",
		SecretKey:   "test-secret-key",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	repo := file.NewTokenRepo(filepath.Join(t.TempDir(), "token.json"))
	m, err := New(cfg, repo, client, logger.NewNoOpLogger())
	require.NoError(t, err, "token manager should be created without errors")

	return env{manager: m, repo: repo, issuer: fi}
}

// store puts token issued 'age' ago valid for 'expiresIn'
func (e env) store(t *testing.T, accessToken string, age time.Duration, expiresIn time.Duration) models.TokenRecord {
	t.Helper()

	payload := fmt.Sprintf(`{"access_token": %q, "token_type": "bearer", "expires_in": %d}`, accessToken, int64(expiresIn.Seconds()))
	token, err := models.NewTokenRecord([]byte(payload), time.Now().Add(-age))
	require.NoError(t, err)
	require.NoError(t, e.repo.Save(t.Context(), token))
	return token
}

func (e env) stored(t *testing.T) models.TokenRecord {
	t.Helper()

	token, err := e.repo.Load(t.Context())
	require.NoError(t, err)
	return token
}

// brokenRepo fails every call
type brokenRepo struct {
	token models.TokenRecord
	saves int
}

func (r *brokenRepo) Load(ctx context.Context) (models.TokenRecord, error) {
	if r.token.IsZero() {
		return r.token, fmt.Errorf("%w: disk on fire", apperrors.ErrPersistenceFailed)
	}
	return r.token, nil
}

func (r *brokenRepo) Save(ctx context.Context, token models.TokenRecord) error {
	r.saves++
	return fmt.Errorf("%w: disk on fire", apperrors.ErrPersistenceFailed)
}

var _ repository.TokenRepo = (*brokenRepo)(nil)

func Test_New(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		m, err := New(Config{AppID: "id", AppSecret: "secret", SecretKey: "key"}, &brokenRepo{}, &issuer.Client{}, logger.NewNoOpLogger())
		require.NoError(t, err)

		assert.Equal(t, DefaultRefreshPolicy, m.policy)
		assert.Equal(t, 7*24*time.Hour, m.policy.Threshold)
		assert.True(t, m.policy.FallbackOnFailure, "fallback on refresh failure is the default policy")
		assert.Equal(t, "fb_exchange_token", m.cfg.GrantType)
		assert.Equal(t, "fb_exchange_token", m.cfg.ExchangeTokenParam)
		assert.Equal(t, defaultScopes, m.cfg.Scopes)
		assert.Equal(t, defaultStateTTL, m.cfg.StateTTL)
	})

	t.Run("custom policy", func(t *testing.T) {
		policy := RefreshPolicy{Threshold: time.Hour, FallbackOnFailure: false}
		m, err := New(Config{AppID: "id", AppSecret: "secret", SecretKey: "key", Refresh: &policy}, &brokenRepo{}, &issuer.Client{}, logger.NewNoOpLogger())
		require.NoError(t, err)

		assert.Equal(t, policy, m.policy)
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			name string
			cfg  Config
		}{
			{"no app id", Config{AppSecret: "secret", SecretKey: "key"}},
			{"no app secret", Config{AppID: "id", SecretKey: "key"}},
			{"no secret key", Config{AppID: "id", AppSecret: "secret"}},
			{"relative redirect", Config{AppID: "id", AppSecret: "secret", SecretKey: "key", RedirectURI: "oauth/exchange"}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := New(tt.cfg, &brokenRepo{}, &issuer.Client{}, logger.NewNoOpLogger())
				require.Error(t, err)
			})
		}
	})
}

func Test_RefreshPolicy_State(t *testing.T) {
	p := DefaultRefreshPolicy

	tests := []struct {
		remaining time.Duration
		expected  models.TokenState
	}{
		{60 * 24 * time.Hour, models.StateFresh},
		{7 * 24 * time.Hour, models.StateFresh},
		{7*24*time.Hour - time.Second, models.StateExpiringSoon},
		{time.Second, models.StateExpiringSoon},
		{0, models.StateExpired},
		{-time.Hour, models.StateExpired},
	}

	for _, tt := range tests {
		t.Run(tt.remaining.String(), func(t *testing.T) {
			require.Equal(t, tt.expected, p.State(tt.remaining))
		})
	}
}

func Test_ExchangeCode(t *testing.T) {
	t.Run("store long-lived token", func(t *testing.T) {
		e := newEnv(t, graphIssuer())

		token, err := e.manager.ExchangeCode(t.Context(), "auth-code")

		require.NoError(t, err)
		assert.Equal(t, "long-token", token.AccessToken())
		assert.Equal(t, sixtyDays*time.Second, token.ExpiresIn())
		issuedAt, ok := token.IssuedAt()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now(), issuedAt, 2*time.Second, "issued_at is set by us, not by issuer")
		assert.Equal(t, token, e.stored(t), "exchanged token has to be persisted")
	})

	t.Run("issuer calls", func(t *testing.T) {
		e := newEnv(t, graphIssuer())

		_, err := e.manager.ExchangeCode(t.Context(), "auth-code")
		require.NoError(t, err)

		calls := e.issuer.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, url.Values{
			"client_id":     {"app-id"},
			"redirect_uri":  {"http://localhost:8080/api/graph/oauth/exchange"},
			"client_secret": {"app-secret"},
			"code":          {"auth-code"},
		}, calls[0])
		assert.Equal(t, url.Values{
			"grant_type":        {"fb_exchange_token"},
			"client_id":         {"app-id"},
			"client_secret":     {"app-secret"},
			"fb_exchange_token": {"short-token"},
		}, calls[1])
	})

	t.Run("custom exchange parameter", func(t *testing.T) {
		fi := &fakeIssuer{respond: func(q url.Values) (int, string) {
			return http.StatusOK, `{"access_token": "tok", "expires_in": 100}`
		}}
		e := newEnv(t, fi, func(c *Config) {
			c.GrantType = "token_exchange"
			c.ExchangeTokenParam = "exchange_token"
		})

		_, err := e.manager.ExchangeCode(t.Context(), "auth-code")
		require.NoError(t, err)

		calls := e.issuer.Calls()
		require.Len(t, calls, 2)
		assert.Equal(t, "token_exchange", calls[1].Get("grant_type"))
		assert.Equal(t, "tok", calls[1].Get("exchange_token"))
	})

	t.Run("short-lived response without access token", func(t *testing.T) {
		fi := &fakeIssuer{respond: func(q url.Values) (int, string) {
			return http.StatusOK, `{"token_type": "bearer", "hint": "weird"}`
		}}
		e := newEnv(t, fi)

		_, err := e.manager.ExchangeCode(t.Context(), "auth-code")

		require.ErrorIs(t, err, apperrors.ErrExchangeFailed)
		assert.Contains(t, err.Error(), `"hint": "weird"`, "raw body included for diagnostics")
		assert.Len(t, e.issuer.Calls(), 1, "long-lived exchange must not be attempted")
		_, err = e.repo.Load(t.Context())
		assert.ErrorIs(t, err, apperrors.ErrTokenNotFound)
	})

	t.Run("issuer rejects code", func(t *testing.T) {
		e := newEnv(t, failingIssuer())

		_, err := e.manager.ExchangeCode(t.Context(), "used-code")

		require.ErrorIs(t, err, apperrors.ErrExchangeFailed)
		assert.Contains(t, err.Error(), "Error validating access token")
		assert.Len(t, e.issuer.Calls(), 1, "exchange is not retried")
	})

	t.Run("long-lived exchange fails", func(t *testing.T) {
		fi := &fakeIssuer{respond: func(q url.Values) (int, string) {
			if q.Get("code") != "" {
				return http.StatusOK, `{"access_token": "short-token"}`
			}
			return http.StatusInternalServerError, `{"error": {"message": "Service temporarily unavailable"}}`
		}}
		e := newEnv(t, fi)
		previous := e.store(t, "previous", 0, 60*24*time.Hour)

		_, err := e.manager.ExchangeCode(t.Context(), "auth-code")

		require.ErrorIs(t, err, apperrors.ErrExchangeFailed)
		assert.Equal(t, previous, e.stored(t), "previous token must stay untouched")
	})

	t.Run("empty code", func(t *testing.T) {
		e := newEnv(t, graphIssuer())

		_, err := e.manager.ExchangeCode(t.Context(), "")

		require.ErrorIs(t, err, apperrors.ErrExchangeFailed)
		assert.Empty(t, e.issuer.Calls())
	})

	t.Run("save failure does not fail exchange", func(t *testing.T) {
		srv := httptest.NewServer(graphIssuer())
		t.Cleanup(srv.Close)
		client, err := issuer.NewClient(issuer.Config{BaseURL: srv.URL}, logger.NewNoOpLogger())
		require.NoError(t, err)
		repo := &brokenRepo{}
		m, err := New(Config{AppID: "id", AppSecret: "secret", SecretKey: "key"}, repo, client, logger.NewNoOpLogger())
		require.NoError(t, err)

		token, err := m.ExchangeCode(t.Context(), "auth-code")

		require.NoError(t, err)
		assert.Equal(t, "long-token", token.AccessToken())
		assert.Equal(t, 1, repo.saves)
	})
}

func Test_GetValidAccessToken(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		e := newEnv(t, graphIssuer())

		_, err := e.manager.GetValidAccessToken(t.Context())

		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
		assert.Empty(t, e.issuer.Calls())
	})

	t.Run("fresh token without outbound call", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		stored := e.store(t, "fresh-token", 10*time.Second, sixtyDays*time.Second)

		got, err := e.manager.GetValidAccessToken(t.Context())

		require.NoError(t, err)
		assert.Equal(t, "fresh-token", got)
		assert.Empty(t, e.issuer.Calls(), "fresh token must not be refreshed")
		assert.Equal(t, stored, e.stored(t))
	})

	t.Run("expiring token refreshed", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		e.store(t, "aging-token", 1000*time.Second, 1500*time.Second)

		got, err := e.manager.GetValidAccessToken(t.Context())

		require.NoError(t, err)
		assert.Equal(t, "long-token", got)

		calls := e.issuer.Calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "aging-token", calls[0].Get("fb_exchange_token"), "current token is used as exchange token")

		stored := e.stored(t)
		assert.Equal(t, "long-token", stored.AccessToken())
		issuedAt, ok := stored.IssuedAt()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now(), issuedAt, 2*time.Second, "issued_at moves to the refresh time")
	})

	t.Run("expired token refreshed", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		e.store(t, "expired-token", 2*time.Hour, time.Hour)

		got, err := e.manager.GetValidAccessToken(t.Context())

		require.NoError(t, err)
		assert.Equal(t, "long-token", got)
	})

	t.Run("refresh failure falls back to stored token", func(t *testing.T) {
		e := newEnv(t, failingIssuer())
		before := e.store(t, "aging-token", 1000*time.Second, 1500*time.Second)

		got, err := e.manager.GetValidAccessToken(t.Context())

		require.NoError(t, err, "refresh failure must not fail the caller")
		assert.Equal(t, "aging-token", got)
		assert.Len(t, e.issuer.Calls(), 1)
		assert.Equal(t, before, e.stored(t), "store must stay unchanged")
	})

	t.Run("refresh failure of expired token falls back too", func(t *testing.T) {
		e := newEnv(t, failingIssuer())
		e.store(t, "expired-token", 2*time.Hour, time.Hour)

		got, err := e.manager.GetValidAccessToken(t.Context())

		require.NoError(t, err)
		assert.Equal(t, "expired-token", got)
	})

	t.Run("refresh response without access token", func(t *testing.T) {
		fi := &fakeIssuer{respond: func(q url.Values) (int, string) {
			return http.StatusOK, `{"token_type": "bearer"}`
		}}
		e := newEnv(t, fi)
		before := e.store(t, "aging-token", 1000*time.Second, 1500*time.Second)

		got, err := e.manager.GetValidAccessToken(t.Context())

		require.NoError(t, err)
		assert.Equal(t, "aging-token", got)
		assert.Equal(t, before, e.stored(t), "response without token must not be saved")
	})

	t.Run("strict policy reports refresh failure", func(t *testing.T) {
		e := newEnv(t, failingIssuer(), func(c *Config) {
			c.Refresh = &RefreshPolicy{Threshold: 7 * 24 * time.Hour, FallbackOnFailure: false}
		})
		e.store(t, "aging-token", 1000*time.Second, 1500*time.Second)

		_, err := e.manager.GetValidAccessToken(t.Context())

		require.ErrorIs(t, err, apperrors.ErrRefreshFailed)
	})

	t.Run("issuer down falls back", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		e.store(t, "aging-token", 1000*time.Second, 1500*time.Second)
		client, err := issuer.NewClient(issuer.Config{BaseURL: "http://127.0.0.1:1", Timeout: 100 * time.Millisecond}, logger.NewNoOpLogger())
		require.NoError(t, err)
		e.manager.issuer = client

		got, err := e.manager.GetValidAccessToken(t.Context())

		require.NoError(t, err)
		assert.Equal(t, "aging-token", got)
	})

	t.Run("corrupt store treated as absent", func(t *testing.T) {
		srv := httptest.NewServer(graphIssuer())
		t.Cleanup(srv.Close)
		client, err := issuer.NewClient(issuer.Config{BaseURL: srv.URL}, logger.NewNoOpLogger())
		require.NoError(t, err)
		m, err := New(Config{AppID: "id", AppSecret: "secret", SecretKey: "key"}, &brokenRepo{}, client, logger.NewNoOpLogger())
		require.NoError(t, err)

		_, err = m.GetValidAccessToken(t.Context())

		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("record without access token treated as absent", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		token, err := models.NewTokenRecord([]byte(`{"expires_in": 100}`), time.Now())
		require.NoError(t, err)
		require.NoError(t, e.repo.Save(t.Context(), token))

		_, err = e.manager.GetValidAccessToken(t.Context())

		require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("refreshed token returned even if not saved", func(t *testing.T) {
		srv := httptest.NewServer(graphIssuer())
		t.Cleanup(srv.Close)
		client, err := issuer.NewClient(issuer.Config{BaseURL: srv.URL}, logger.NewNoOpLogger())
		require.NoError(t, err)
		aging, err := models.NewTokenRecord([]byte(`{"access_token": "aging-token", "expires_in": 1500}`), time.Now().Add(-1000*time.Second))
		require.NoError(t, err)
		repo := &brokenRepo{token: aging}
		m, err := New(Config{AppID: "id", AppSecret: "secret", SecretKey: "key"}, repo, client, logger.NewNoOpLogger())
		require.NoError(t, err)

		got, err := m.GetValidAccessToken(t.Context())

		require.NoError(t, err)
		assert.Equal(t, "long-token", got)
		assert.Equal(t, 1, repo.saves)
	})

	t.Run("concurrent callers refresh once", func(t *testing.T) {
		fi := graphIssuer()
		e := newEnv(t, fi)
		e.store(t, "aging-token", 1000*time.Second, 1500*time.Second)

		var wg sync.WaitGroup
		results := make([]string, 20)
		errs := make([]error, 20)
		for i := range results {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], errs[i] = e.manager.GetValidAccessToken(context.Background())
			}()
		}
		wg.Wait()

		for i := range results {
			require.NoError(t, errs[i])
			require.Equal(t, "long-token", results[i])
		}
		assert.Len(t, fi.Calls(), 1, "only the first caller refreshes, the rest see a fresh token")
	})

	t.Run("refresh does not race with exchange", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		e.store(t, "aging-token", 1000*time.Second, 1500*time.Second)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = e.manager.GetValidAccessToken(context.Background())
			}()
			go func() {
				defer wg.Done()
				_, _ = e.manager.ExchangeCode(context.Background(), "auth-code")
			}()
		}
		wg.Wait()

		stored := e.stored(t)
		assert.Equal(t, "long-token", stored.AccessToken())
		assert.Equal(t, models.StateFresh, e.manager.policy.State(stored.Remaining(time.Now())))
	})
}

func Test_GetStatus(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		e := newEnv(t, graphIssuer())

		status := e.manager.GetStatus(t.Context())

		assert.Equal(t, models.StatusNoToken, status.Status)
		assert.Nil(t, status.ExpiresInSeconds)
		assert.Nil(t, status.LastRefreshed)
	})

	t.Run("ok", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		stored := e.store(t, "secret-token-value", 10*time.Second, sixtyDays*time.Second)

		status := e.manager.GetStatus(t.Context())

		assert.Equal(t, models.StatusOK, status.Status)
		require.NotNil(t, status.ExpiresInSeconds)
		assert.InDelta(t, sixtyDays-10, *status.ExpiresInSeconds, 2)
		issuedAt, _ := stored.IssuedAt()
		require.NotNil(t, status.LastRefreshed)
		assert.Equal(t, issuedAt.Unix(), *status.LastRefreshed)
		assert.Equal(t, len("secret-token-value"), status.TokenLength)
	})

	t.Run("expired", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		e.store(t, "expired-token", 2*time.Hour, time.Hour)

		status := e.manager.GetStatus(t.Context())

		assert.Equal(t, models.StatusExpired, status.Status)
		require.NotNil(t, status.ExpiresInSeconds)
		assert.LessOrEqual(t, *status.ExpiresInSeconds, int64(-3599))
	})

	t.Run("never refreshes", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		before := e.store(t, "aging-token", 1000*time.Second, 1500*time.Second)

		_ = e.manager.GetStatus(t.Context())

		assert.Empty(t, e.issuer.Calls())
		assert.Equal(t, before, e.stored(t))
	})

	t.Run("never leaks the token", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		e.store(t, "EAAB-very-secret-token", 10*time.Second, sixtyDays*time.Second)

		data, err := json.Marshal(e.manager.GetStatus(t.Context()))

		require.NoError(t, err)
		assert.NotContains(t, string(data), "EAAB-very-secret-token")
		assert.Contains(t, string(data), `"access_token_length":22`)
	})
}

func Test_LoginURL(t *testing.T) {
	t.Run("dialog url", func(t *testing.T) {
		e := newEnv(t, graphIssuer())

		loginURL, err := e.manager.LoginURL()
		require.NoError(t, err)

		u, err := url.Parse(loginURL)
		require.NoError(t, err)
		assert.Equal(t, "https", u.Scheme)
		assert.Equal(t, "www.facebook.com", u.Host)
		assert.Equal(t, "/v19.0/dialog/oauth", u.Path)

		q := u.Query()
		assert.Equal(t, "app-id", q.Get("client_id"))
		assert.Equal(t, "http://localhost:8080/api/graph/oauth/exchange", q.Get("redirect_uri"))
		assert.Equal(t, "code", q.Get("response_type"))
		assert.Equal(t, "instagram_basic,instagram_manage_comments,pages_read_engagement,pages_manage_posts,pages_read_user_content,pages_show_list,public_profile", q.Get("scope"))
		assert.NotContains(t, loginURL, "app-secret", "secret never goes to browser")
		require.NoError(t, e.manager.verifyState(q.Get("state")), "issued state must verify")
	})

	t.Run("state is unique", func(t *testing.T) {
		e := newEnv(t, graphIssuer())

		first, err := e.manager.issueState()
		require.NoError(t, err)
		second, err := e.manager.issueState()
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
	})
}

func Test_ExchangeCodeWithState(t *testing.T) {
	t.Run("valid state", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		state, err := e.manager.issueState()
		require.NoError(t, err)

		token, err := e.manager.ExchangeCodeWithState(t.Context(), "auth-code", state)

		require.NoError(t, err)
		assert.Equal(t, "long-token", token.AccessToken())
	})

	t.Run("invalid state", func(t *testing.T) {
		other := newEnv(t, graphIssuer(), func(c *Config) { c.SecretKey = "other-key" })
		foreign, err := other.manager.issueState()
		require.NoError(t, err)

		tests := []struct {
			name  string
			state string
		}{
			{"empty", ""},
			{"garbage", "not-a-jwt"},
			{"signed with other key", foreign},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				e := newEnv(t, graphIssuer())

				_, err := e.manager.ExchangeCodeWithState(t.Context(), "auth-code", tt.state)

				require.ErrorIs(t, err, apperrors.ErrInvalidState)
				assert.Empty(t, e.issuer.Calls(), "issuer must not be called with unverified state")
			})
		}
	})

	t.Run("expired state", func(t *testing.T) {
		e := newEnv(t, graphIssuer())
		state, err := e.manager.issueState()
		require.NoError(t, err)
		e.manager.now = func() time.Time { return time.Now().Add(defaultStateTTL + time.Minute) }

		_, err = e.manager.ExchangeCodeWithState(t.Context(), "auth-code", state)

		require.ErrorIs(t, err, apperrors.ErrInvalidState)
	})
}
