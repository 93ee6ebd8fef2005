package model

import "time"

// RefreshRecord is the persisted state of one refresh token, keyed in the
// store by sha256(token). The plaintext token exists only in the client
// cookie. A record is mutated exactly once: Used flips to true and
// RotatedTo is set when the token is rotated.
type RefreshRecord struct {
	Username    string    `json:"username"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Used        bool      `json:"used"`
	RotatedTo   string    `json:"rotated_to,omitempty"`
}

// Expired reports whether the record is past its expiry at the given time.
func (r *RefreshRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}
