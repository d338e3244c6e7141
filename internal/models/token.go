package models

import "time"

// Token holds the OAuth credential pair for one broker environment.
// It is mutated only by the session manager and persisted after every
// successful renewal.
type Token struct {
	AccessToken      string      `json:"access_token"`
	RefreshToken     string      `json:"refresh_token"`
	ObtainedAt       time.Time   `json:"obtained_at"`
	AccessExpiresAt  time.Time   `json:"access_token_expires_at"`
	RefreshExpiresAt time.Time   `json:"refresh_token_expires_at"`
	Environment      Environment `json:"environment"`
}

// IsZero reports whether the token carries no credentials.
func (t Token) IsZero() bool {
	return t.AccessToken == ""
}

// TokenStatus is a point-in-time read of a Token against the wall clock.
type TokenStatus struct {
	AccessValid      bool
	RefreshValid     bool
	AccessRemaining  time.Duration
	RefreshRemaining time.Duration
	NeedsRefresh     bool
	NeedsReauth      bool
}

// RefreshThreshold is how close to access-token expiry a refresh becomes due.
const RefreshThreshold = 5 * time.Minute

// UnknownExpiryAge is how old a token without an expiry timestamp may
// grow before a renewal becomes due anyway.
const UnknownExpiryAge = 15 * time.Minute

// StatusAt evaluates the token against the given instant. An unknown
// (zero) access expiry is treated as valid until the token is older
// than UnknownExpiryAge, at which point it needs a refresh.
func (t Token) StatusAt(now time.Time) TokenStatus {
	st := TokenStatus{AccessValid: true, RefreshValid: true}

	if !t.AccessExpiresAt.IsZero() {
		st.AccessRemaining = t.AccessExpiresAt.Sub(now)
		st.AccessValid = st.AccessRemaining > 0
		st.NeedsRefresh = st.AccessRemaining <= RefreshThreshold
	} else if !t.ObtainedAt.IsZero() {
		st.NeedsRefresh = now.Sub(t.ObtainedAt) >= UnknownExpiryAge
	}
	if !t.RefreshExpiresAt.IsZero() {
		st.RefreshRemaining = t.RefreshExpiresAt.Sub(now)
		st.RefreshValid = st.RefreshRemaining > 0
		st.NeedsReauth = st.RefreshRemaining <= 0
	}
	return st
}
