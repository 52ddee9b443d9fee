/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-crptapi/config"
)

func TestConfigWithLoader(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewReader(nil), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, NewDefaultConfig(), cfg)
	})

	t.Run("all values with key prefix", func(t *testing.T) {
		yamlData := []byte(`
client:
  timeout: 30s
  rateLimits:
    enabled: true
    limit: 300
    burst: 30
    waitTimeout: 3s
  logger:
    enabled: true
    mode: ALL
    slowRequestThreshold: 500ms
  metrics:
    enabled: true
`)
		cfg := NewConfigWithKeyPrefix("client")
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
			bytes.NewReader(yamlData), config.DataTypeYAML, cfg)
		require.NoError(t, err)

		wantCfg := NewConfigWithKeyPrefix("client")
		wantCfg.Timeout = 30 * time.Second
		wantCfg.RateLimits = RateLimitConfig{Enabled: true, Limit: 300, Burst: 30, WaitTimeout: 3 * time.Second}
		wantCfg.Logger = LoggerConfig{Enabled: true, Mode: LoggingModeAll, SlowRequestThreshold: 500 * time.Millisecond}
		wantCfg.Metrics.Enabled = true
		require.Equal(t, wantCfg, cfg)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name       string
			yamlData   string
			wantErrMsg string
		}{
			{
				name:       "negative timeout",
				yamlData:   "timeout: -1s",
				wantErrMsg: "timeout: should not be negative",
			},
			{
				name:       "rate limit is not positive",
				yamlData:   "rateLimits: {enabled: true, limit: 0}",
				wantErrMsg: "rateLimits.limit: should be positive",
			},
			{
				name:       "unknown logging mode",
				yamlData:   "logger: {mode: verbose}",
				wantErrMsg: `logger.mode: unknown value "verbose", should be one of [none all failed]`,
			},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
					bytes.NewReader([]byte(tt.yamlData)), config.DataTypeYAML, NewConfig())
				require.EqualError(t, err, tt.wantErrMsg)
			})
		}
	})
}
