package resilience

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/models"
)

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) ForceRefresh(ctx context.Context) (models.Token, error) {
	f.calls++
	if f.err != nil {
		return models.Token{}, f.err
	}
	return models.Token{AccessToken: "renewed"}, nil
}

func TestDoPassesThroughSuccess(t *testing.T) {
	r := &fakeRefresher{}
	e := NewExecutor(r, zerolog.Nop())

	calls := 0
	got, err := Do(context.Background(), e, "quote", func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, r.calls)
}

func TestDoRetriesOnceAfterUnauthorized(t *testing.T) {
	r := &fakeRefresher{}
	e := NewExecutor(r, zerolog.Nop())

	calls := 0
	got, err := Do(context.Background(), e, "positions", func(ctx context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", apperrors.NewBrokerError(401, "Unauthorized", "token rejected")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, r.calls)
}

func TestDoDoesNotRetryNonAuthErrors(t *testing.T) {
	r := &fakeRefresher{}
	e := NewExecutor(r, zerolog.Nop())

	calls := 0
	_, err := Do(context.Background(), e, "orders", func(ctx context.Context) (int, error) {
		calls++
		return 0, apperrors.NewBrokerError(500, "InternalError", "gateway down")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, r.calls)
}

func TestDoRetriesExactlyOnce(t *testing.T) {
	r := &fakeRefresher{}
	e := NewExecutor(r, zerolog.Nop())

	calls := 0
	_, err := Do(context.Background(), e, "orders", func(ctx context.Context) (int, error) {
		calls++
		return 0, apperrors.NewBrokerError(401, "Unauthorized", "still rejected")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, r.calls)
}

func TestDoSurfacesRenewalFailure(t *testing.T) {
	r := &fakeRefresher{err: apperrors.ErrRefreshLimitExceeded}
	e := NewExecutor(r, zerolog.Nop())

	calls := 0
	_, err := Do(context.Background(), e, "balance", func(ctx context.Context) (int, error) {
		calls++
		return 0, apperrors.NewBrokerError(401, "Unauthorized", "token rejected")
	})
	assert.ErrorIs(t, err, apperrors.ErrRefreshLimitExceeded)
	assert.Equal(t, 1, calls)
}

func TestDoClassifiesBySubstring(t *testing.T) {
	r := &fakeRefresher{}
	e := NewExecutor(r, zerolog.Nop())

	calls := 0
	err := DoErr(context.Background(), e, "close", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return apperrors.New("request failed: Token expired")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, r.calls)
}
