/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package crptapi

import (
	"fmt"
	"net/url"
	"time"

	"github.com/acronis/go-crptapi/config"
	"github.com/acronis/go-crptapi/httpclient"
)

// DefaultEndpoint is the document creation endpoint of the production registry.
const DefaultEndpoint = "https://ismp.crpt.ru/api/v3/lk/documents/create"

const cfgDefaultKeyPrefix = "crptapi"

const clientCfgKeyPrefix = "client"

const (
	cfgKeyEndpoint                = "endpoint"
	cfgKeyLimiterWindow           = "limiter.window"
	cfgKeyLimiterMaxRequests      = "limiter.maxRequests"
	cfgKeyLimiterEvictionInterval = "limiter.evictionInterval"
	cfgKeyLimiterAlgorithm        = "limiter.algorithm"
)

// LimiterAlgorithm defines possible algorithms of the client-side rate limiter.
type LimiterAlgorithm string

// Limiter algorithms.
// Only LimiterAlgorithmSlidingLog guarantees that no more than MaxRequests requests are sent within any window.
const (
	LimiterAlgorithmSlidingLog    LimiterAlgorithm = "slidingLog"
	LimiterAlgorithmSlidingWindow LimiterAlgorithm = "slidingWindow"
	LimiterAlgorithmLeakyBucket   LimiterAlgorithm = "leakyBucket"
)

var availableLimiterAlgorithms = []string{
	string(LimiterAlgorithmSlidingLog), string(LimiterAlgorithmSlidingWindow), string(LimiterAlgorithmLeakyBucket),
}

// Config represents a set of configuration parameters for the client.
type Config struct {
	Endpoint string             `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint"`
	Limiter  LimiterConfig      `mapstructure:"limiter" yaml:"limiter" json:"limiter"`
	Client   *httpclient.Config `mapstructure:"client" yaml:"client" json:"client"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// LimiterConfig represents configuration of the client-side rate limiter.
type LimiterConfig struct {
	// Window is the duration of the rolling time window. Required.
	Window time.Duration `mapstructure:"window" yaml:"window" json:"window"`

	// MaxRequests is the maximum number of requests within the window. Required.
	MaxRequests int `mapstructure:"maxRequests" yaml:"maxRequests" json:"maxRequests"`

	// EvictionInterval is how often expired admissions are pruned.
	// If zero, it's derived from the window (e.g. 1s for a 1s window, 100ms for a 200ms one).
	EvictionInterval time.Duration `mapstructure:"evictionInterval" yaml:"evictionInterval" json:"evictionInterval"`

	Algorithm LimiterAlgorithm `mapstructure:"algorithm" yaml:"algorithm" json:"algorithm"`
}

// NewConfig creates a new instance of the Config with the default "crptapi" key prefix.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix, Client: httpclient.NewConfigWithKeyPrefix(clientCfgKeyPrefix)}
}

// NewDefaultConfig creates a new instance of the Config with default values.
// Limiter.Window and Limiter.MaxRequests are left zero and have to be set before use.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix: cfgDefaultKeyPrefix,
		Endpoint:  DefaultEndpoint,
		Limiter:   LimiterConfig{Algorithm: LimiterAlgorithmSlidingLog},
		Client:    httpclient.NewDefaultConfigWithKeyPrefix(clientCfgKeyPrefix),
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the client in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEndpoint, DefaultEndpoint)
	dp.SetDefault(cfgKeyLimiterEvictionInterval, "0s")
	dp.SetDefault(cfgKeyLimiterAlgorithm, string(LimiterAlgorithmSlidingLog))
	c.clientConfig().SetProviderDefaults(config.DataProviderFor(c.clientConfig(), dp))
}

// Set sets the client configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Endpoint, err = dp.GetString(cfgKeyEndpoint); err != nil {
		return err
	}
	if err = validateEndpoint(c.Endpoint); err != nil {
		return dp.WrapKeyErr(cfgKeyEndpoint, err)
	}

	if err = c.setLimiter(dp); err != nil {
		return err
	}

	return c.clientConfig().Set(config.DataProviderFor(c.clientConfig(), dp))
}

func (c *Config) setLimiter(dp config.DataProvider) error {
	var err error

	if c.Limiter.Window, err = dp.GetDuration(cfgKeyLimiterWindow); err != nil {
		return err
	}
	if c.Limiter.Window <= 0 {
		return dp.WrapKeyErr(cfgKeyLimiterWindow, fmt.Errorf("should be positive"))
	}

	if c.Limiter.MaxRequests, err = dp.GetInt(cfgKeyLimiterMaxRequests); err != nil {
		return err
	}
	if c.Limiter.MaxRequests <= 0 {
		return dp.WrapKeyErr(cfgKeyLimiterMaxRequests, fmt.Errorf("should be positive"))
	}

	if c.Limiter.EvictionInterval, err = dp.GetDuration(cfgKeyLimiterEvictionInterval); err != nil {
		return err
	}
	if c.Limiter.EvictionInterval < 0 {
		return dp.WrapKeyErr(cfgKeyLimiterEvictionInterval, fmt.Errorf("should not be negative"))
	}

	algorithm, err := dp.GetStringFromSet(cfgKeyLimiterAlgorithm, availableLimiterAlgorithms, true)
	if err != nil {
		return err
	}
	c.Limiter.Algorithm = LimiterAlgorithm(algorithm)
	return nil
}

func (c *Config) clientConfig() *httpclient.Config {
	if c.Client == nil {
		c.Client = httpclient.NewConfigWithKeyPrefix(clientCfgKeyPrefix)
	}
	return c.Client
}

func validateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("should be an absolute http(s) url, got %q", endpoint)
	}
	return nil
}
