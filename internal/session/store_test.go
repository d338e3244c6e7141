package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saxo-trader/internal/models"
)

func tempStore(t *testing.T) *TokenStore {
	t.Helper()
	return NewTokenStore(filepath.Join(t.TempDir(), "tokens.json"))
}

func TestTokenStoreRoundTrip(t *testing.T) {
	store := tempStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	token := models.Token{
		AccessToken:      "access-abc",
		RefreshToken:     "refresh-def",
		ObtainedAt:       now,
		AccessExpiresAt:  now.Add(20 * time.Minute),
		RefreshExpiresAt: now.Add(time.Hour),
		Environment:      models.EnvSim,
	}
	require.NoError(t, store.Save(token))

	got, err := store.Load(models.EnvSim)
	require.NoError(t, err)
	assert.Equal(t, token.AccessToken, got.AccessToken)
	assert.Equal(t, token.RefreshToken, got.RefreshToken)
	assert.True(t, token.AccessExpiresAt.Equal(got.AccessExpiresAt))
}

func TestTokenStoreMissingFile(t *testing.T) {
	store := tempStore(t)

	got, err := store.Load(models.EnvLive)
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestTokenStoreKeepsOtherEnvironments(t *testing.T) {
	store := tempStore(t)

	sim := models.Token{AccessToken: "sim-token", Environment: models.EnvSim}
	live := models.Token{AccessToken: "live-token", Environment: models.EnvLive}
	require.NoError(t, store.Save(sim))
	require.NoError(t, store.Save(live))

	got, err := store.Load(models.EnvSim)
	require.NoError(t, err)
	assert.Equal(t, "sim-token", got.AccessToken)

	require.NoError(t, store.Clear(models.EnvSim))

	got, err = store.Load(models.EnvSim)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = store.Load(models.EnvLive)
	require.NoError(t, err)
	assert.Equal(t, "live-token", got.AccessToken)
}

func TestTokenStoreFilePermissions(t *testing.T) {
	store := tempStore(t)
	require.NoError(t, store.Save(models.Token{AccessToken: "x", Environment: models.EnvSim}))

	info, err := os.Stat(store.path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestTokenStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "deeper")
	store := NewTokenStore(filepath.Join(dir, "tokens.json"))

	require.NoError(t, store.Save(models.Token{AccessToken: "x", Environment: models.EnvSim}))

	_, err := os.Stat(dir)
	require.NoError(t, err)
}
