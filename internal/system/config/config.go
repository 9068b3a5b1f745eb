/*
 * Copyright (c) 2025, WSO2 LLC. (http://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package config provides structures and functions for loading and managing server configurations.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/abdm-phr/phr/internal/system/log"

	yaml "gopkg.in/yaml.v3"
)

const (
	defaultGatewayTimeout     = 30
	defaultOTPResendInterval  = 60
	defaultOTPCodeLength      = 6
	defaultPollInterval       = 2
	defaultWatchdogTimeout    = 10
	defaultSearchDebounceMs   = 300
	defaultFlowCacheSize      = 1000
	defaultFlowCacheTTLSecond = 900
)

// ServerConfig holds the server configuration details.
type ServerConfig struct {
	Hostname string `yaml:"hostname"`
	Port     int    `yaml:"port"`
	HTTPOnly bool   `yaml:"http_only"`
}

// SecurityConfig holds the security configuration details.
type SecurityConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// CORSConfig holds the origins allowed to call the flow API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// GatewayConfig holds the details of the remote PHR backend the flows talk to.
type GatewayConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout is the outbound request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// OTPConfig holds the OTP verification settings.
type OTPConfig struct {
	// ResendInterval is the number of seconds before a resend is allowed.
	ResendInterval int `yaml:"resend_interval"`
	CodeLength     int `yaml:"code_length"`
}

// LinkingConfig holds the facility linking poller settings.
type LinkingConfig struct {
	// PollInterval is the status check interval in seconds.
	PollInterval int `yaml:"poll_interval"`
	// WatchdogTimeout is the client side limit for a linking job in seconds.
	WatchdogTimeout int `yaml:"watchdog_timeout"`
}

// SearchConfig holds the typeahead search settings.
type SearchConfig struct {
	DebounceMillis int `yaml:"debounce_ms"`
}

// FlowConfig holds the flow instance cache settings.
type FlowConfig struct {
	CacheSize int `yaml:"cache_size"`
	// TTL is the idle lifetime of a flow instance in seconds.
	TTL int `yaml:"ttl"`
}

// DataSource holds the individual database connection details.
type DataSource struct {
	Type            string `yaml:"type"`
	Hostname        string `yaml:"hostname"`
	Port            int    `yaml:"port"`
	Name            string `yaml:"name"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	SSLMode         string `yaml:"sslmode"`
	Path            string `yaml:"path"`
	Options         string `yaml:"options"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
}

// DatabaseConfig holds the different database configuration details.
type DatabaseConfig struct {
	Session DataSource `yaml:"session"`
}

// Config holds the complete configuration details of the server.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Security SecurityConfig `yaml:"security"`
	CORS     CORSConfig     `yaml:"cors"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	OTP      OTPConfig      `yaml:"otp"`
	Linking  LinkingConfig  `yaml:"linking"`
	Search   SearchConfig   `yaml:"search"`
	Flow     FlowConfig     `yaml:"flow"`
	Database DatabaseConfig `yaml:"database"`
}

// LoadConfig loads the configurations from the specified YAML file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	path = filepath.Clean(path)

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if ferr := file.Close(); ferr != nil {
			log.GetLogger().Error("Failed to close config file", log.Error(ferr))
		}
	}()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills unset numeric settings with their defaults.
func (c *Config) applyDefaults() {
	setDefault(&c.Gateway.Timeout, defaultGatewayTimeout)
	setDefault(&c.OTP.ResendInterval, defaultOTPResendInterval)
	setDefault(&c.OTP.CodeLength, defaultOTPCodeLength)
	setDefault(&c.Linking.PollInterval, defaultPollInterval)
	setDefault(&c.Linking.WatchdogTimeout, defaultWatchdogTimeout)
	setDefault(&c.Search.DebounceMillis, defaultSearchDebounceMs)
	setDefault(&c.Flow.CacheSize, defaultFlowCacheSize)
	setDefault(&c.Flow.TTL, defaultFlowCacheTTLSecond)
}

func setDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

// GatewayTimeout returns the outbound request timeout.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.Timeout) * time.Second
}

// PollInterval returns the linking status poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Linking.PollInterval) * time.Second
}

// WatchdogTimeout returns the linking watchdog timeout.
func (c *Config) WatchdogTimeout() time.Duration {
	return time.Duration(c.Linking.WatchdogTimeout) * time.Second
}

// SearchDebounce returns the delay applied before dispatching typeahead searches.
func (c *Config) SearchDebounce() time.Duration {
	return time.Duration(c.Search.DebounceMillis) * time.Millisecond
}

// FlowTTL returns the idle lifetime of a flow instance.
func (c *Config) FlowTTL() time.Duration {
	return time.Duration(c.Flow.TTL) * time.Second
}
