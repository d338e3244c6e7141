// Package resilience provides request execution with automatic token
// recovery.
package resilience

import (
	"context"

	"github.com/rs/zerolog"

	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/models"
)

// Refresher renews the session token after the gateway rejects it.
type Refresher interface {
	ForceRefresh(ctx context.Context) (models.Token, error)
}

// Executor wraps gateway calls so a mid-session token expiry heals
// itself: an unauthorized response triggers one renewal and one retry.
// Any other failure, and any failure of the retried call, is returned
// as-is.
type Executor struct {
	refresher Refresher
	log       zerolog.Logger
}

// NewExecutor creates an executor backed by the refresher.
func NewExecutor(refresher Refresher, log zerolog.Logger) *Executor {
	return &Executor{
		refresher: refresher,
		log:       log.With().Str("component", "executor").Logger(),
	}
}

// Do runs call. If it fails with an error classified as an auth
// failure, the token is renewed and the call retried exactly once.
func Do[T any](ctx context.Context, e *Executor, name string, call func(ctx context.Context) (T, error)) (T, error) {
	result, err := call(ctx)
	if err == nil || !apperrors.IsAuthError(err) {
		return result, err
	}

	e.log.Warn().Err(err).Str("call", name).Msg("unauthorized response, renewing token")
	if _, rerr := e.refresher.ForceRefresh(ctx); rerr != nil {
		var zero T
		return zero, apperrors.Wrapf(rerr, "renewing token after unauthorized %s", name)
	}

	result, err = call(ctx)
	if err != nil {
		e.log.Error().Err(err).Str("call", name).Msg("call failed after token renewal")
	}
	return result, err
}

// DoErr is Do for calls that return only an error.
func DoErr(ctx context.Context, e *Executor, name string, call func(ctx context.Context) error) error {
	_, err := Do(ctx, e, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, call(ctx)
	})
	return err
}
