package models

// Token states reported by status
const (
	StatusNoToken = "NO_TOKEN"
	StatusOK      = "OK"
	StatusExpired = "EXPIRED"
)

// TokenState is computed on every access, never stored
type TokenState int

const (
	StateNoToken TokenState = iota
	StateFresh
	StateExpiringSoon
	StateExpired
)

func (s TokenState) String() string {
	switch s {
	case StateNoToken:
		return "NO_TOKEN"
	case StateFresh:
		return "FRESH"
	case StateExpiringSoon:
		return "EXPIRING_SOON"
	case StateExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// TokenStatus is read-only token report
// Only derived values here: the access token itself must never leak into it
type TokenStatus struct {
	Status           string `json:"status"`
	Message          string `json:"message,omitempty"`
	ExpiresInSeconds *int64 `json:"expires_in_seconds,omitempty"`
	LastRefreshed    *int64 `json:"last_refreshed,omitempty"`
	TokenLength      int    `json:"access_token_length,omitempty"`
}
