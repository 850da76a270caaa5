package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Keys of the issuer payload the token manager interprets. Everything else is passed through
const (
	KeyAccessToken = "access_token"
	KeyExpiresIn   = "expires_in"
	KeyIssuedAt    = "issued_at"
	KeyError       = "error"
)

// TokenRecord is the issuer token payload as persisted
// Raw is compact JSON object; issuer supplied fields are kept as is
type TokenRecord struct {
	Raw json.RawMessage
}

// NewTokenRecord stamps issuedAt onto issuer payload
// Any 'issued_at' sent by the issuer is overwritten
func NewTokenRecord(payload []byte, issuedAt time.Time) (TokenRecord, error) {
	raw, err := compact(payload)
	if err != nil {
		return TokenRecord{}, err
	}

	raw, err = sjson.SetBytes(raw, KeyIssuedAt, issuedAt.Unix())
	if err != nil {
		return TokenRecord{}, fmt.Errorf("can't stamp issued_at. Err: %w", err)
	}

	return TokenRecord{Raw: raw}, nil
}

// ParseTokenRecord wraps already stamped payload (e.g. read back from a store)
func ParseTokenRecord(data []byte) (TokenRecord, error) {
	raw, err := compact(data)
	if err != nil {
		return TokenRecord{}, err
	}
	return TokenRecord{Raw: raw}, nil
}

func compact(data []byte) ([]byte, error) {
	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("token payload is not a JSON object")
	}

	buf := &bytes.Buffer{}
	if err := json.Compact(buf, data); err != nil {
		return nil, fmt.Errorf("can't compact token payload. Err: %w", err)
	}
	return buf.Bytes(), nil
}

func (r TokenRecord) get(key string) gjson.Result {
	return gjson.GetBytes(r.Raw, key)
}

// IsZero reports whether the record holds no payload at all
func (r TokenRecord) IsZero() bool {
	return len(r.Raw) == 0
}

// HasAccessToken reports whether the record is usable
func (r TokenRecord) HasAccessToken() bool {
	v := r.get(KeyAccessToken)
	return v.Type == gjson.String && v.Str != ""
}

func (r TokenRecord) AccessToken() string {
	return r.get(KeyAccessToken).String()
}

// ExpiresIn is validity window reported by the issuer. Zero if absent
func (r TokenRecord) ExpiresIn() time.Duration {
	return time.Duration(r.get(KeyExpiresIn).Int()) * time.Second
}

// IssuedAt returns the time the record was stored and false if it was never stamped
func (r TokenRecord) IssuedAt() (time.Time, bool) {
	v := r.get(KeyIssuedAt)
	if v.Type != gjson.Number {
		return time.Time{}, false
	}
	return time.Unix(v.Int(), 0), true
}

// Remaining validity at 'now'; negative when expired
// A record without issued_at counts as issued right now
func (r TokenRecord) Remaining(now time.Time) time.Duration {
	issuedAt, ok := r.IssuedAt()
	if !ok {
		issuedAt = now
	}
	elapsed := time.Duration(now.Unix()-issuedAt.Unix()) * time.Second
	return r.ExpiresIn() - elapsed
}

// IssuerError returns issuer 'error' object if present
func (r TokenRecord) IssuerError() (string, bool) {
	v := r.get(KeyError)
	if !v.Exists() {
		return "", false
	}
	return v.Raw, true
}

// MarshalJSON renders the raw payload so the record may be returned as is
func (r TokenRecord) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("null"), nil
	}
	return r.Raw, nil
}
