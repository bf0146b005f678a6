package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/geomark-lab/geomark-api/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "GeoMark Grading API", cfg.AppName)
	require.Equal(t, "openai", cfg.AIProvider)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, time.Second, cfg.RetryBaseDelay)
	require.Equal(t, 90*time.Second, cfg.LLMTimeout)
	require.Equal(t, 3, cfg.TopKRetrieval)
	require.Equal(t, 500, cfg.ChunkSize)
	require.Equal(t, 50, cfg.ChunkOverlap)
	require.Equal(t, 60*time.Second, cfg.RAGTimeout)
	require.Equal(t, 256, cfg.EventBufferSize)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("GEOMARK_APP_PORT", "9090")
	t.Setenv("GEOMARK_AI_PROVIDER", "Anthropic")
	t.Setenv("GEOMARK_MAX_RETRIES", "5")
	t.Setenv("GEOMARK_RETRY_BASE_DELAY", "250ms")

	cfg, err := config.Load()
	require.NoError(t, err)

	require.Equal(t, "9090", cfg.AppPort)
	require.Equal(t, "anthropic", cfg.AIProvider)
	require.Equal(t, 5, cfg.MaxRetries)
	require.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
}

func TestLoad_InvalidDurationRejected(t *testing.T) {
	t.Setenv("GEOMARK_LLM_TIMEOUT", "ninety seconds")

	_, err := config.Load()
	require.Error(t, err)
}

func TestLoad_OverlapClampedBelowChunkSize(t *testing.T) {
	t.Setenv("GEOMARK_CHUNK_SIZE", "100")
	t.Setenv("GEOMARK_CHUNK_OVERLAP", "100")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, 100, cfg.ChunkSize)
	require.Equal(t, 10, cfg.ChunkOverlap)
}

func TestHTTPAddress(t *testing.T) {
	require.Equal(t, ":8080", config.Config{AppPort: "8080"}.HTTPAddress())
	require.Equal(t, ":8080", config.Config{AppPort: ":8080"}.HTTPAddress())
}
