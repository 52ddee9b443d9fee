/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testLimiterConfig struct {
	Window      time.Duration
	MaxRequests int
}

func (c *testLimiterConfig) KeyPrefix() string {
	return "limiter"
}

func (c *testLimiterConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("window", "1s")
	dp.SetDefault("maxRequests", 5)
}

func (c *testLimiterConfig) Set(dp DataProvider) (err error) {
	if c.Window, err = dp.GetDuration("window"); err != nil {
		return err
	}
	c.MaxRequests, err = dp.GetInt("maxRequests")
	return err
}

func TestLoader_LoadFromReader(t *testing.T) {
	t.Run("use defaults", func(t *testing.T) {
		cfg := &testLimiterConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(`{}`), DataTypeJSON, cfg)
		require.NoError(t, err)
		require.Equal(t, time.Second, cfg.Window)
		require.Equal(t, 5, cfg.MaxRequests)
	})

	t.Run("use key prefix", func(t *testing.T) {
		cfg := &testLimiterConfig{}
		yamlData := "limiter:\n  window: 200ms\n  maxRequests: 3\n"
		err := NewLoader(NewViperAdapter()).LoadFromReader(bytes.NewBufferString(yamlData), DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, 200*time.Millisecond, cfg.Window)
		require.Equal(t, 3, cfg.MaxRequests)
	})

	t.Run("invalid value", func(t *testing.T) {
		cfg := &testLimiterConfig{}
		err := NewLoader(NewViperAdapter()).LoadFromReader(
			bytes.NewBufferString(`{"limiter":{"maxRequests":"many"}}`), DataTypeJSON, cfg)
		require.ErrorContains(t, err, "limiter.maxRequests")
	})
}

func TestLoader_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("limiter:\n  maxRequests: 7\n"), 0o600))

	cfg := &testLimiterConfig{}
	require.NoError(t, NewLoader(NewViperAdapter()).LoadFromFile(path, DataTypeYAML, cfg))
	require.Equal(t, 7, cfg.MaxRequests)
	require.Equal(t, time.Second, cfg.Window)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("CRPTAPI_TEST_LIMITER_MAXREQUESTS", "11")

	cfg := &testLimiterConfig{}
	require.NoError(t, NewDefaultLoader("crptapi_test").Load(cfg))
	require.Equal(t, 11, cfg.MaxRequests)
}
