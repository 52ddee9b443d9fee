/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"fmt"
	"time"

	"github.com/acronis/go-crptapi/config"
)

// DefaultClientWaitTimeout is a default timeout for a client to wait for a response.
const DefaultClientWaitTimeout = 10 * time.Second

const (
	cfgKeyTimeout                    = "timeout"
	cfgKeyRateLimitsEnabled          = "rateLimits.enabled"
	cfgKeyRateLimitsLimit            = "rateLimits.limit"
	cfgKeyRateLimitsBurst            = "rateLimits.burst"
	cfgKeyRateLimitsWaitTimeout      = "rateLimits.waitTimeout"
	cfgKeyLoggerEnabled              = "logger.enabled"
	cfgKeyLoggerMode                 = "logger.mode"
	cfgKeyLoggerSlowRequestThreshold = "logger.slowRequestThreshold"
	cfgKeyMetricsEnabled             = "metrics.enabled"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// Config represents options for HTTP client configuration.
// Retries are intentionally absent: every call is exactly one attempt, the caller decides what to do on failure.
type Config struct {
	// Timeout is the maximum time to wait for the whole request (including reading the response body).
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`

	// RateLimits is a configuration for client-side smoothing of outgoing requests.
	RateLimits RateLimitConfig `mapstructure:"rateLimits" yaml:"rateLimits" json:"rateLimits"`

	// Logger is a configuration for HTTP client logs.
	Logger LoggerConfig `mapstructure:"logger" yaml:"logger" json:"logger"`

	// Metrics is a configuration for HTTP client metrics.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`

	keyPrefix string
}

// RateLimitConfig represents configuration options for HTTP client rate limits.
type RateLimitConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Limit is the maximum number of requests per second.
	Limit int `mapstructure:"limit" yaml:"limit" json:"limit"`

	// Burst allows temporary spikes in request rate.
	Burst int `mapstructure:"burst" yaml:"burst" json:"burst"`

	// WaitTimeout is the maximum time to wait for the rate limiter.
	WaitTimeout time.Duration `mapstructure:"waitTimeout" yaml:"waitTimeout" json:"waitTimeout"`
}

// TransportOpts returns transport options.
func (c *RateLimitConfig) TransportOpts() RateLimitingRoundTripperOpts {
	return RateLimitingRoundTripperOpts{Burst: c.Burst, WaitTimeout: c.WaitTimeout}
}

// LoggerConfig represents configuration options for HTTP client logs.
type LoggerConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// SlowRequestThreshold is a threshold for slow requests.
	// Successful requests faster than it are not logged in "all" mode.
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold" yaml:"slowRequestThreshold" json:"slowRequestThreshold"`

	// Mode of logging: none, all, failed.
	Mode LoggingMode `mapstructure:"mode" yaml:"mode" json:"mode"`
}

// TransportOpts returns transport options.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{Mode: c.Mode, SlowRequestThreshold: c.SlowRequestThreshold}
}

// MetricsConfig represents configuration options for HTTP client metrics.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix("")
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return NewDefaultConfigWithKeyPrefix("")
}

// NewDefaultConfigWithKeyPrefix is like NewDefaultConfig but allows specifying key prefix.
func NewDefaultConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{
		keyPrefix: keyPrefix,
		Timeout:   DefaultClientWaitTimeout,
		RateLimits: RateLimitConfig{
			WaitTimeout: DefaultRateLimitingWaitTimeout,
		},
		Logger: LoggerConfig{
			Enabled:              true,
			Mode:                 LoggingModeFailed,
			SlowRequestThreshold: time.Second,
		},
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	defaults := NewDefaultConfig()
	dp.SetDefault(cfgKeyTimeout, defaults.Timeout.String())
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, defaults.RateLimits.WaitTimeout.String())
	dp.SetDefault(cfgKeyLoggerEnabled, defaults.Logger.Enabled)
	dp.SetDefault(cfgKeyLoggerMode, string(defaults.Logger.Mode))
	dp.SetDefault(cfgKeyLoggerSlowRequestThreshold, defaults.Logger.SlowRequestThreshold.String())
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Timeout, err = dp.GetDuration(cfgKeyTimeout); err != nil {
		return err
	}
	if c.Timeout < 0 {
		return dp.WrapKeyErr(cfgKeyTimeout, fmt.Errorf("should not be negative"))
	}
	if err = c.setRateLimits(dp); err != nil {
		return err
	}
	if err = c.setLogger(dp); err != nil {
		return err
	}
	c.Metrics.Enabled, err = dp.GetBool(cfgKeyMetricsEnabled)
	return err
}

func (c *Config) setRateLimits(dp config.DataProvider) error {
	var err error
	if c.RateLimits.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if c.RateLimits.WaitTimeout, err = dp.GetDuration(cfgKeyRateLimitsWaitTimeout); err != nil {
		return err
	}
	if c.RateLimits.WaitTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsWaitTimeout, fmt.Errorf("should not be negative"))
	}
	if !c.RateLimits.Enabled {
		return nil
	}
	if c.RateLimits.Limit, err = dp.GetInt(cfgKeyRateLimitsLimit); err != nil {
		return err
	}
	if c.RateLimits.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsLimit, fmt.Errorf("should be positive"))
	}
	if c.RateLimits.Burst, err = dp.GetInt(cfgKeyRateLimitsBurst); err != nil {
		return err
	}
	if c.RateLimits.Burst < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitsBurst, fmt.Errorf("should not be negative"))
	}
	return nil
}

var availableLoggingModes = []string{string(LoggingModeNone), string(LoggingModeAll), string(LoggingModeFailed)}

func (c *Config) setLogger(dp config.DataProvider) error {
	var err error
	if c.Logger.Enabled, err = dp.GetBool(cfgKeyLoggerEnabled); err != nil {
		return err
	}
	if c.Logger.SlowRequestThreshold, err = dp.GetDuration(cfgKeyLoggerSlowRequestThreshold); err != nil {
		return err
	}
	if c.Logger.SlowRequestThreshold < 0 {
		return dp.WrapKeyErr(cfgKeyLoggerSlowRequestThreshold, fmt.Errorf("should not be negative"))
	}
	mode, err := dp.GetStringFromSet(cfgKeyLoggerMode, availableLoggingModes, true)
	if err != nil {
		return err
	}
	c.Logger.Mode = LoggingMode(mode)
	return nil
}
