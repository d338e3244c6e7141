package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	apperrors "saxo-trader/internal/errors"
	"saxo-trader/internal/models"
)

const (
	// maxSleep caps how long the background loop sleeps between checks,
	// so a wall-clock jump or a bad expiry never strands the loop.
	maxSleep = 10 * time.Minute
	// unknownPoll is the check interval when the token carries no
	// expiry timestamp.
	unknownPoll = 5 * time.Minute
	// renewRetryDelay is how long the loop backs off after a failed
	// renewal before checking again.
	renewRetryDelay = time.Minute
	// maxReauthAttempts bounds failed renewals over the manager's
	// lifetime before it gives up and demands manual
	// re-authentication. Only a new interactive login resets the count.
	maxReauthAttempts = 3
)

// TokenExchanger performs the OAuth refresh grant against the auth
// server, exchanging a refresh token for a new token pair.
type TokenExchanger interface {
	Exchange(ctx context.Context, refreshToken string) (models.Token, error)
}

type renewRequest struct {
	force bool
	reply chan renewResult
}

type renewResult struct {
	token models.Token
	err   error
}

// Manager keeps one environment's token fresh. All renewals, whether
// requested by callers or triggered by the background loop, are served
// by a single consumer inside Run, so at most one exchange is in
// flight at a time and concurrent requests coalesce onto its result.
type Manager struct {
	store     *TokenStore
	exchanger TokenExchanger
	env       models.Environment
	log       zerolog.Logger

	mu       sync.RWMutex
	token    models.Token
	onToken  func(models.Token)
	failures int

	renewCh chan renewRequest
}

// NewManager creates a manager for the environment, loading any stored
// token. onToken is invoked with every new token, including the loaded
// one; it may be nil.
func NewManager(store *TokenStore, exchanger TokenExchanger, env models.Environment, onToken func(models.Token), log zerolog.Logger) (*Manager, error) {
	token, err := store.Load(env)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:     store,
		exchanger: exchanger,
		env:       env,
		log:       log.With().Str("component", "session").Str("env", string(env)).Logger(),
		token:     token,
		onToken:   onToken,
		renewCh:   make(chan renewRequest),
	}
	if onToken != nil && !token.IsZero() {
		onToken(token)
	}
	return m, nil
}

// Token returns the current token.
func (m *Manager) Token() models.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Status reports the token's state as of now.
func (m *Manager) Status() models.TokenStatus {
	return m.Token().StatusAt(time.Now())
}

// SetToken installs a token obtained out of band (initial authorization
// grant) and persists it.
func (m *Manager) SetToken(token models.Token) error {
	token.Environment = m.env
	if err := m.store.Save(token); err != nil {
		return err
	}
	m.mu.Lock()
	m.token = token
	m.failures = 0
	m.mu.Unlock()
	if m.onToken != nil {
		m.onToken(token)
	}
	return nil
}

// RefreshIfNeeded asks the renewal consumer for a token that is fresh
// as of now, renewing only when the access token is within the refresh
// threshold. Requires Run to be active.
func (m *Manager) RefreshIfNeeded(ctx context.Context) (models.Token, error) {
	return m.requestRenew(ctx, false)
}

// ForceRefresh renews the token regardless of its remaining lifetime.
// Used after the gateway rejects a request as unauthorized. Requires
// Run to be active.
func (m *Manager) ForceRefresh(ctx context.Context) (models.Token, error) {
	return m.requestRenew(ctx, true)
}

func (m *Manager) requestRenew(ctx context.Context, force bool) (models.Token, error) {
	req := renewRequest{force: force, reply: make(chan renewResult, 1)}
	select {
	case m.renewCh <- req:
	case <-ctx.Done():
		return models.Token{}, ctx.Err()
	}
	select {
	case res := <-req.reply:
		return res.token, res.err
	case <-ctx.Done():
		return models.Token{}, ctx.Err()
	}
}

// Run drives the renewal consumer and the proactive refresh schedule
// until ctx is cancelled. It returns ErrRefreshLimitExceeded when
// consecutive renewals keep failing, and ErrReauthRequired when the
// refresh token itself has expired.
func (m *Manager) Run(ctx context.Context) error {
	timer := time.NewTimer(m.nextCheck(time.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case req := <-m.renewCh:
			token, err := m.renew(ctx, req.force)
			req.reply <- renewResult{token: token, err: err}
			if isFatal(err) {
				return err
			}
			resetTimer(timer, m.nextWake(err))

		case <-timer.C:
			var err error
			if m.Token().StatusAt(time.Now()).NeedsRefresh {
				if _, err = m.renew(ctx, false); isFatal(err) {
					return err
				}
			}
			resetTimer(timer, m.nextWake(err))
		}
	}
}

func isFatal(err error) bool {
	return apperrors.Is(err, apperrors.ErrRefreshLimitExceeded) ||
		apperrors.Is(err, apperrors.ErrReauthRequired)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// nextWake schedules the loop's next freshness check, backing off
// after a failed renewal instead of hammering the auth server.
func (m *Manager) nextWake(lastErr error) time.Duration {
	if lastErr != nil {
		return renewRetryDelay
	}
	return m.nextCheck(time.Now())
}

// nextCheck returns how long to sleep before the next freshness check.
func (m *Manager) nextCheck(now time.Time) time.Duration {
	token := m.Token()
	if token.IsZero() || token.AccessExpiresAt.IsZero() {
		return unknownPoll
	}
	d := token.AccessExpiresAt.Add(-models.RefreshThreshold).Sub(now)
	if d < time.Second {
		return time.Second
	}
	if d > maxSleep {
		return maxSleep
	}
	return d
}

// renew performs one renewal attempt. Only the Run loop calls this, so
// there is never more than one exchange in flight.
func (m *Manager) renew(ctx context.Context, force bool) (models.Token, error) {
	now := time.Now()
	current := m.Token()
	status := current.StatusAt(now)

	if !force && !status.NeedsRefresh && !current.IsZero() {
		// A concurrent caller already renewed; hand back the result.
		return current, nil
	}
	if current.IsZero() || current.RefreshToken == "" {
		return models.Token{}, apperrors.ErrNotAuthenticated
	}
	if status.NeedsReauth {
		m.log.Error().Msg("refresh token expired, manual re-authentication required")
		return models.Token{}, apperrors.ErrReauthRequired
	}

	fresh, err := m.exchanger.Exchange(ctx, current.RefreshToken)
	if err != nil {
		m.mu.Lock()
		m.failures++
		failures := m.failures
		m.mu.Unlock()

		m.log.Warn().Err(err).Int("attempt", failures).Msg("token renewal failed")
		if failures >= maxReauthAttempts {
			return models.Token{}, apperrors.Wrapf(apperrors.ErrRefreshLimitExceeded, "renewal failed %d times: %v", failures, err)
		}
		return models.Token{}, apperrors.Wrap(err, "renewing token")
	}

	fresh.Environment = m.env
	if fresh.ObtainedAt.IsZero() {
		fresh.ObtainedAt = now
	}
	if err := m.store.Save(fresh); err != nil {
		return models.Token{}, apperrors.Wrap(err, "persisting renewed token")
	}

	m.mu.Lock()
	m.token = fresh
	m.mu.Unlock()
	if m.onToken != nil {
		m.onToken(fresh)
	}

	m.log.Info().Time("expires_at", fresh.AccessExpiresAt).Msg("token renewed")
	return fresh, nil
}
