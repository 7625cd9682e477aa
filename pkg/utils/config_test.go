package utils

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name     string        `mapstructure:"name"`
	Count    int           `mapstructure:"count"`
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Listen   []string      `mapstructure:"listen"`
}

func TestUnmarshalConfig(t *testing.T) {
	v := viper.New()
	v.Set("name", "pilot")
	v.Set("count", "3")
	v.Set("enabled", "yes")
	v.Set("interval", "1m30s")
	v.Set("listen", "tcp://:8080,tcp://:8081")

	config := &testConfig{}
	require.NoError(t, UnmarshalConfig(v, config))

	assert.Equal(t, "pilot", config.Name)
	assert.Equal(t, 3, config.Count)
	assert.True(t, config.Enabled)
	assert.Equal(t, 90*time.Second, config.Interval)
	assert.Equal(t, []string{"tcp://:8080", "tcp://:8081"}, config.Listen)
}

func TestUnmarshalConfigErrors(t *testing.T) {
	v := viper.New()
	v.Set("count", "three")
	assert.Error(t, UnmarshalConfig(v, &testConfig{}))

	v = viper.New()
	v.Set("enabled", "maybe")
	assert.Error(t, UnmarshalConfig(v, &testConfig{}))
}
