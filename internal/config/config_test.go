package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "coinlake.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	path := writeConfig(t, t.TempDir(), "Env: dev\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "dev", cfg.Env)
	require.Equal(t, 8, cfg.Workers)
	require.Equal(t, "coinlake", cfg.Cache.Bucket)
	require.Equal(t, 3600, cfg.Cache.FreshTTLSeconds)
	require.Equal(t, 0.05, cfg.Quality.LossThreshold)
	require.Equal(t, 16, cfg.Quality.PricePrecision)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)

	backoff, err := cfg.Retry.InitialBackoff()
	require.NoError(t, err)
	require.Equal(t, 200*time.Millisecond, backoff)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	path := writeConfig(t, t.TempDir(), "Env: staging\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "env")
}

func TestLoadRejectsBadLossThreshold(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	path := writeConfig(t, t.TempDir(), "Env: dev\nQuality:\n  LossThreshold: 1.5\n")

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "lossThreshold")
}

func TestLoadRejectsJobMissingVariant(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	path := writeConfig(t, t.TempDir(), `
Env: dev
Jobs:
  - Provider: coingecko
`)

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "variant")
}

func TestLoadRejectsBadRetryDuration(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	path := writeConfig(t, t.TempDir(), "Env: dev\nRetry:\n  InitialBackoffRaw: nonsense\n")

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadHydratesIdentitySection(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	dir := t.TempDir()
	identityYAML := `
assets:
  - canonical_id: bitcoin
    variants:
      - id: bitcoin
        rank: 0
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "identity.yaml"), []byte(identityYAML), 0o600))
	path := writeConfig(t, dir, "Env: dev\nIdentity:\n  File: identity.yaml\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Identity.Value)
	require.Equal(t, 1, cfg.Identity.Value.Len())
}

func TestLoadJobDefaults(t *testing.T) {
	t.Setenv("NO_DOTENV", "1")
	path := writeConfig(t, t.TempDir(), `
Env: dev
Jobs:
  - Provider: coingecko
    Variant: bitcoin
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Jobs, 1)
	require.Equal(t, "market_chart", cfg.Jobs[0].Kind)
	require.Equal(t, "max", cfg.Jobs[0].Period)
}
