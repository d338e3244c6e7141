package models

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: a token needs refresh exactly when its access expiry is
// within the refresh threshold, and needs re-authentication exactly
// when its refresh expiry has passed.
func TestProperty_TokenStatusThresholds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	now := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

	// Offsets in seconds relative to now, spanning expired through
	// comfortably valid.
	offsetGen := gen.Int64Range(-3600, 7200)

	properties.Property("refresh due exactly within threshold", prop.ForAll(
		func(accessOffset, refreshOffset int64) bool {
			token := Token{
				AccessToken:      "a",
				RefreshToken:     "r",
				AccessExpiresAt:  now.Add(time.Duration(accessOffset) * time.Second),
				RefreshExpiresAt: now.Add(time.Duration(refreshOffset) * time.Second),
			}
			st := token.StatusAt(now)

			wantRefresh := time.Duration(accessOffset)*time.Second <= RefreshThreshold
			wantReauth := refreshOffset <= 0

			if st.NeedsRefresh != wantRefresh {
				return false
			}
			if st.NeedsReauth != wantReauth {
				return false
			}
			if st.AccessValid != (accessOffset > 0) {
				return false
			}
			return st.RefreshValid == (refreshOffset > 0)
		},
		offsetGen, offsetGen,
	))

	properties.Property("unknown expiries stay valid without demanding reauth", prop.ForAll(
		func(access string) bool {
			token := Token{AccessToken: access, RefreshToken: "r"}
			st := token.StatusAt(now)
			return st.AccessValid && st.RefreshValid && !st.NeedsReauth
		},
		gen.AlphaString(),
	))

	properties.Property("unknown expiry falls due by age", prop.ForAll(
		func(ageSeconds int64) bool {
			token := Token{
				AccessToken:  "a",
				RefreshToken: "r",
				ObtainedAt:   now.Add(-time.Duration(ageSeconds) * time.Second),
			}
			st := token.StatusAt(now)
			wantRefresh := time.Duration(ageSeconds)*time.Second >= UnknownExpiryAge
			return st.NeedsRefresh == wantRefresh && st.AccessValid
		},
		gen.Int64Range(0, 7200),
	))

	properties.TestingRun(t)
}
