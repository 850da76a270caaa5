package issuer

import (
	"net/url"
)

// Query of the authorization code exchange (short-lived token)
type CodeParams struct {
	ClientID     string `url:"client_id"`
	RedirectURI  string `url:"redirect_uri"`
	ClientSecret string `url:"client_secret"`
	Code         string `url:"code"`
}

// Query of the long-lived token exchange. Refresh uses it too
type ExchangeParams struct {
	GrantType     string        `url:"grant_type"`
	ClientID      string        `url:"client_id"`
	ClientSecret  string        `url:"client_secret"`
	ExchangeToken ExchangeToken `url:"exchange_token"`
}

// ExchangeToken is sent under configurable parameter name
// The graph API calls it 'fb_exchange_token'
type ExchangeToken struct {
	Param string
	Value string
}

// EncodeValues implements query.Encoder
func (t ExchangeToken) EncodeValues(key string, v *url.Values) error {
	if t.Param != "" {
		key = t.Param
	}
	v.Set(key, t.Value)
	return nil
}
