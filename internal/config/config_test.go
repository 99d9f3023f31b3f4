package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := parse([]string{"-jwt-key", "k"}, envOf(nil))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.HTTPAddr)
	require.Equal(t, ":8443", cfg.GRPCAddr)
	require.Equal(t, "192.168.1.100", cfg.DeviceAddr)
	require.Equal(t, 30*time.Second, cfg.PollInterval)
	require.Equal(t, 5*time.Second, cfg.DeviceTimeout)
	require.Equal(t, 10*time.Minute, cfg.AlertDedupe)
	require.Equal(t, StorageMemory, cfg.Storage)
	require.False(t, cfg.Archive.Enabled)
}

func TestParse_EnvThenFlags(t *testing.T) {
	t.Parallel()
	env := envOf(map[string]string{
		"PILLMON_JWT_KEY":       "secret",
		"PILLMON_DEVICE":        "10.0.0.7",
		"PILLMON_POLL_INTERVAL": "1m",
		"PILLMON_STORAGE":       "redis",
		"ARCHIVE_S3_ENDPOINT":   "minio:9000",
		"ARCHIVE_S3_USE_SSL":    "false",
		"MINIO_ROOT_USER":       "admin",
	})
	cfg, err := parse([]string{"-device", "10.0.0.9", "-storage", "postgres"}, env)
	require.NoError(t, err)
	require.Equal(t, "secret", cfg.JWTKey)
	require.Equal(t, "10.0.0.9", cfg.DeviceAddr)
	require.Equal(t, time.Minute, cfg.PollInterval)
	require.Equal(t, StoragePostgres, cfg.Storage)
	require.True(t, cfg.Archive.Enabled)
	require.False(t, cfg.Archive.UseSSL)
	require.Equal(t, "admin", cfg.Archive.AccessKey)
	require.Equal(t, "pillmon-history", cfg.Archive.Bucket)
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()
	_, err := parse(nil, envOf(nil))
	require.ErrorContains(t, err, "jwt")

	_, err = parse([]string{"-jwt-key", "k", "-storage", "sqlite"}, envOf(nil))
	require.ErrorContains(t, err, "unknown storage")

	_, err = parse([]string{"-jwt-key", "k"}, envOf(map[string]string{"PILLMON_POLL_INTERVAL": "soon"}))
	require.ErrorContains(t, err, "PILLMON_POLL_INTERVAL")

	_, err = parse([]string{"-jwt-key", "k", "-poll-interval", "0s"}, envOf(nil))
	require.Error(t, err)
}
