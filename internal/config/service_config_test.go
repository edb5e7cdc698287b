package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/fastauth/go-migrate/internal/config"
)

func TestDefaultServiceConfigFromEnv(t *testing.T) {
	cfg, err := config.DefaultServiceConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.RPC.RetryCount)
	assert.Equal(t, 500*time.Millisecond, cfg.RPC.BaseWait)
	assert.Equal(t, uint64(100), cfg.RPC.BlockHeightMargin)
	assert.Equal(t, 4, cfg.Queue.WorkerCount)
	assert.Equal(t, 5*time.Minute, cfg.Queue.VisibilityTimeout)
	assert.Equal(t, 10, cfg.Queue.MaxAttempts)
	assert.Equal(t, uint32(1), cfg.Derive.DomainID)
	assert.Equal(t, 10*time.Second, cfg.Relayer.BlockHashTTL)
	assert.Equal(t, ":8080", cfg.Relayer.ListenAddress)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestDefaultServiceConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("FASTAUTH_RPC_RETRY_COUNT", "3")
	t.Setenv("FASTAUTH_QUEUE_WORKER_COUNT", "16")
	t.Setenv("FASTAUTH_LEGACY_BASE_URL", "https://mpc.example.com")

	cfg, err := config.DefaultServiceConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.RPC.RetryCount)
	assert.Equal(t, 16, cfg.Queue.WorkerCount)
	assert.Equal(t, "https://mpc.example.com", cfg.Legacy.BaseURL)
}

func TestValidate(t *testing.T) {
	cfg := config.Service{
		RPC: config.RPC{
			EndpointURLs: []string{"https://rpc.example.com"},
			RetryCount:   10,
			BaseWait:     500 * time.Millisecond,
		},
	}
	require.NoError(t, cfg.Validate())

	broken := cfg
	broken.RPC.EndpointURLs = nil
	require.Error(t, broken.Validate())

	broken = cfg
	broken.RPC.RetryCount = -1
	require.Error(t, broken.Validate())

	broken = cfg
	broken.RPC.BaseWait = 0
	require.Error(t, broken.Validate())
}

func TestValidateEndpointURLs(t *testing.T) {
	require.NoError(t, config.ValidateEndpointURLs([]string{"https://a.example.com", "http://b.example.com:3030"}))

	require.Error(t, config.ValidateEndpointURLs(nil))
	require.Error(t, config.ValidateEndpointURLs([]string{"ftp://a.example.com"}))
	require.Error(t, config.ValidateEndpointURLs([]string{"https://"}))
	require.Error(t, config.ValidateEndpointURLs([]string{"://bad"}))
}
