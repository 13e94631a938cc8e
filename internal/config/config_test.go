package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "ssh", cfg.SSHLane)
	assert.Equal(t, 3, cfg.JobMaxAttempts)
	assert.Equal(t, 5, cfg.SSHLaneConcurrency)
	assert.Equal(t, 2, cfg.SSHLanePerServer)
	assert.Equal(t, 10*time.Minute, cfg.RemoteCommandTimeout)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("SSH_LANE_NAME", "remote")
	t.Setenv("JOB_MAX_ATTEMPTS", "5")
	t.Setenv("JOB_BACKOFF_BASE", "2s")
	t.Setenv("LOG_PRETTY", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.ServerPort)
	assert.Equal(t, "remote", cfg.SSHLane)
	assert.Equal(t, 5, cfg.JobMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.JobBackoffBase)
	assert.False(t, cfg.LogPretty)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Run("port", func(t *testing.T) {
		t.Setenv("PORT", "http")
		_, err := Load()
		assert.ErrorContains(t, err, "PORT")
	})
	t.Run("duration", func(t *testing.T) {
		t.Setenv("SWEEP_INTERVAL", "often")
		_, err := Load()
		assert.ErrorContains(t, err, "SWEEP_INTERVAL")
	})
	t.Run("attempts", func(t *testing.T) {
		t.Setenv("JOB_MAX_ATTEMPTS", "0")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("lease shorter than command timeout", func(t *testing.T) {
		t.Setenv("JOB_LEASE", "1m")
		_, err := Load()
		assert.ErrorContains(t, err, "JOB_LEASE")
	})
}
