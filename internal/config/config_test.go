package config_test

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rannes/pact-stub-server/internal/config"
)

func TestParse_repeatedFileFlags(t *testing.T) {
	cfg, err := config.Parse([]string{
		"--file", "a.json", "--file", "b.json",
		"--port", "9090",
		"--cors",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.json", "b.json"}, cfg.Files)
	assert.Equal(t, 9090, cfg.Port)
	assert.True(t, cfg.CORS)
}

func TestParse_defaults(t *testing.T) {
	cfg, err := config.Parse(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "X-Pact-Provider-State", cfg.ProviderStateHeaderName)
	assert.False(t, cfg.CORS)
	assert.Zero(t, cfg.RequestTimeout)
}

func TestParse_requestTimeout(t *testing.T) {
	cfg, err := config.Parse([]string{"--request-timeout", "250ms"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, cfg.RequestTimeout)
}

func TestParse_invalidFlagIsError(t *testing.T) {
	_, err := config.Parse([]string{"--not-a-flag"}, io.Discard)
	assert.Error(t, err)
}

func TestConfig_providerStateFilterCompilesRegex(t *testing.T) {
	cfg, err := config.Parse([]string{"--provider-state", "^guest$"}, io.Discard)
	require.NoError(t, err)

	filter, err := cfg.ProviderStateFilter()
	require.NoError(t, err)
	require.NotNil(t, filter)
	assert.True(t, filter.MatchString("guest"))
	assert.False(t, filter.MatchString("guest2"))
}

func TestConfig_providerStateFilterNilWhenUnset(t *testing.T) {
	cfg, err := config.Parse(nil, io.Discard)
	require.NoError(t, err)

	filter, err := cfg.ProviderStateFilter()
	require.NoError(t, err)
	assert.Nil(t, filter)
}
