package issuer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/tidwall/gjson"

	"github.com/nkiryanov/graphtoken/internal/logger"
)

const (
	CodeTransport = "transport"
	CodeStatus    = "status"
	CodeMalformed = "malformed"
	CodeIssuer    = "issuer-error"
)

const (
	defaultBaseURL    = "https://graph.facebook.com"
	defaultAPIVersion = "v19.0"
	defaultTimeout    = 5 * time.Second

	maxBodySize = 1 << 20
)

type Error struct {
	Code string

	StatusCode int    // zero if response was not received
	Body       string // raw response body for diagnostics
	Err        error
}

func (e *Error) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("issuer %s error: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("issuer %s error: %v, body: %s", e.Code, e.Err, e.Body)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Issuer client config with sensible defaults
type Config struct {
	// Scheme and host of the graph API, e.g. https://graph.facebook.com
	BaseURL string

	// Graph API version, e.g. v19.0
	APIVersion string

	// Timeout of one token endpoint call
	Timeout time.Duration

	// Used if not nil
	HTTPClient *http.Client
}

// Client of the issuer token endpoint
type Client struct {
	tokenURL string
	timeout  time.Duration

	client *http.Client
	logger logger.Logger
}

func NewClient(cfg Config, l logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}

	tokenURL, err := url.JoinPath(cfg.BaseURL, cfg.APIVersion, "oauth", "access_token")
	if err != nil {
		return nil, fmt.Errorf("invalid issuer url %q. Err: %w", cfg.BaseURL, err)
	}

	return &Client{
		tokenURL: tokenURL,
		timeout:  cfg.Timeout,
		client:   cfg.HTTPClient,
		logger:   l.With("component", "issuer"),
	}, nil
}

// Call the token endpoint with query built from params
// Params has to be a struct with 'url' tags (see github.com/google/go-querystring)
// Returns the body if it is a JSON object without 'error' key
func (c *Client) Get(ctx context.Context, params any) ([]byte, error) {
	q, err := query.Values(params)
	if err != nil {
		return nil, &Error{Code: CodeMalformed, Err: fmt.Errorf("can't encode params: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.tokenURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, &Error{Code: CodeTransport, Err: fmt.Errorf("failed to create request: %w", redact(err))}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Issuer request failed", "error", redact(err), "duration", time.Since(start))
		return nil, &Error{Code: CodeTransport, Err: fmt.Errorf("failed to send request: %w", redact(err))}
	}
	defer resp.Body.Close() // nolint:errcheck

	// Body is needed for both outcomes: the issuer explains errors in it
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{Code: CodeTransport, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", redact(err))}
	}
	c.logger.Debug("Issuer responded", "status_code", resp.StatusCode, "size", len(body), "duration", time.Since(start))

	ok := resp.StatusCode >= 200 && resp.StatusCode <= 299
	parsed := gjson.ParseBytes(body)

	switch {
	case gjson.ValidBytes(body) && parsed.IsObject() && parsed.Get("error").Exists():
		msg := parsed.Get("error.message").String()
		if msg == "" {
			msg = parsed.Get("error").String()
		}
		return nil, &Error{Code: CodeIssuer, StatusCode: resp.StatusCode, Body: string(body), Err: errors.New(msg)}

	case !ok:
		return nil, &Error{Code: CodeStatus, StatusCode: resp.StatusCode, Body: string(body), Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}

	case !gjson.ValidBytes(body) || !parsed.IsObject():
		return nil, &Error{Code: CodeMalformed, StatusCode: resp.StatusCode, Body: string(body), Err: errors.New("response is not a JSON object")}
	}

	return body, nil
}

// redact drops query from transport errors, it carries client secret and tokens
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s %s: %w", urlErr.Op, strings.SplitN(urlErr.URL, "?", 2)[0], urlErr.Err)
	}
	return err
}
