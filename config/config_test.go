package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/flow/config"
)

func TestLoad(t *testing.T) {
	c, err := config.Load(strings.NewReader(`
buffer_items: 1024
log_level: debug
throttle:
  sample_rate: 48000
head:
  items: 4800
`))
	require.NoError(t, err)
	assert.Equal(t, 1024, c.BufferItems)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 48000.0, c.Throttle.SampleRate)
	assert.Equal(t, uint64(4800), c.Head.Items)
	assert.Equal(t, config.DefaultMetricsNamespace, c.MetricsNamespace)
}

func TestLoadEmpty(t *testing.T) {
	c, err := config.Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), c)
}

func TestLoadInvalid(t *testing.T) {
	_, err := config.Load(strings.NewReader("buffer_items: 0"))
	assert.Error(t, err)

	_, err = config.Load(strings.NewReader("buffer_items: [1"))
	assert.Error(t, err)

	_, err = config.Load(strings.NewReader("throttle: {sample_rate: -1}"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buffer_items: 64\n"), 0o600))
	c, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 64, c.BufferItems)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
