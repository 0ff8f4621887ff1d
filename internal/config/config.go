/*
 * MIT License
 *
 * Copyright (c) 2021 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package config decodes and validates the agent's configuration, covering
// every option named in spec.md §6: log-level, queue-size, retry-period,
// server-timestamp-mode, yield-on-idle, proxy, SSL, HTTP, device-online,
// plus the per-server-config list (primary/backup plus any additional
// servers) and the remote-session port set.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig is one (server-config) entry of spec.md §3/§4.7 — the master
// server has a primary and a backup; further entries are additional
// servers each driving their own ServerSession.
type ServerConfig struct {
	ID           int           `mapstructure:"id"`
	PostURL      string        `mapstructure:"postUrl"`
	PingInterval time.Duration `mapstructure:"pingInterval"`
	MaxMsgSize   int           `mapstructure:"maxMessageSize"`
	RetryPeriod  time.Duration `mapstructure:"retryPeriod"`
	IsBackup     bool          `mapstructure:"backup"`
}

// DeviceConfig identifies the managed device(s) this agent speaks for, per
// spec.md §4.7's registration round (AeDRMDeviceAdd's mn/sn/ow triple).
// RegistrationKind mirrors the original's gateway/managed/discovered/
// connector distinction: 0=gateway, 1=gateway-managed, 2=auto-discovered,
// 3=connector.
type DeviceConfig struct {
	ID               int32  `mapstructure:"id"`
	ModelNumber      string `mapstructure:"modelNumber"`
	SerialNumber     string `mapstructure:"serialNumber"`
	Owner            string `mapstructure:"owner"`
	RegistrationKind int    `mapstructure:"registrationKind"`
}

// ProxyConfig mirrors spec.md §6's proxy{protocol,host,port,user,password}.
type ProxyConfig struct {
	Protocol string `mapstructure:"protocol"` // "", "http", "socks4", "socks5"
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// SSLConfig mirrors spec.md §6's SSL{crypto-level,server-auth,ca-cert-file}.
type SSLConfig struct {
	CryptoLevel string `mapstructure:"cryptoLevel"` // none|low|medium|high
	ServerAuth  bool   `mapstructure:"serverAuth"`
	CACertFile  string `mapstructure:"caCertFile"`
}

// HTTPConfig mirrors spec.md §6's HTTP{version,persistent,timeout}.
type HTTPConfig struct {
	Version    string        `mapstructure:"version"` // "1.0" or "1.1"
	Persistent bool          `mapstructure:"persistent"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RemoteSessionConfig carries the ports the desktop probe and direct
// transport need, per spec.md §4.11.
type RemoteSessionConfig struct {
	ProbePort              int           `mapstructure:"probePort"`
	DirectPlainPort        int           `mapstructure:"directPlainPort"`
	DirectSSLPort          int           `mapstructure:"directSSLPort"`
	Timeout                time.Duration `mapstructure:"timeout"`
	DesktopConnectionPlain int           `mapstructure:"desktopConnectionPlainPort"`
	DesktopConnectionSSL   int           `mapstructure:"desktopConnectionSSLPort"`
}

// Config is the agent's whole configuration surface.
type Config struct {
	LogLevel           string               `mapstructure:"logLevel"`
	QueueSizeBytes      int                  `mapstructure:"queueSize"`
	RetryPeriod        time.Duration        `mapstructure:"retryPeriod"`
	ServerTimestampMode string               `mapstructure:"serverTimestampMode"` // device|server
	YieldOnIdle        time.Duration        `mapstructure:"yieldOnIdle"`
	DeviceOnline       bool                 `mapstructure:"deviceOnline"`
	Proxy              ProxyConfig          `mapstructure:"proxy"`
	SSL                SSLConfig            `mapstructure:"ssl"`
	HTTP               HTTPConfig           `mapstructure:"http"`
	RemoteSession      RemoteSessionConfig  `mapstructure:"remoteSession"`
	Servers            []ServerConfig       `mapstructure:"servers"`
	Devices            []DeviceConfig       `mapstructure:"devices"`
}

// Default returns the built-in configuration defaults, applied before any
// file/env overrides — mirrors the teacher's config.DefaultConfig pattern.
func Default() *Config {
	return &Config{
		LogLevel:            "info",
		QueueSizeBytes:      1 << 20, // 1 MiB
		RetryPeriod:         30 * time.Second,
		ServerTimestampMode: "device",
		YieldOnIdle:         250 * time.Millisecond,
		DeviceOnline:        true,
		SSL: SSLConfig{
			CryptoLevel: "medium",
			ServerAuth:  true,
		},
		HTTP: HTTPConfig{
			Version:    "1.1",
			Persistent: true,
			Timeout:    60 * time.Second,
		},
		RemoteSession: RemoteSessionConfig{
			ProbePort: 8331,
			Timeout:   10 * time.Minute,
		},
	}
}

// Load reads configuration from path (if non-empty) layered over
// AE_-prefixed environment variables and the built-in defaults, then
// validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("AE")
	v.AutomaticEnv()

	cfg := Default()
	applyDefaultsToViper(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	out := &Config{}
	if err := v.Unmarshal(out); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

func applyDefaultsToViper(v *viper.Viper, cfg *Config) {
	v.SetDefault("logLevel", cfg.LogLevel)
	v.SetDefault("queueSize", cfg.QueueSizeBytes)
	v.SetDefault("retryPeriod", cfg.RetryPeriod)
	v.SetDefault("serverTimestampMode", cfg.ServerTimestampMode)
	v.SetDefault("yieldOnIdle", cfg.YieldOnIdle)
	v.SetDefault("deviceOnline", cfg.DeviceOnline)
	v.SetDefault("ssl.cryptoLevel", cfg.SSL.CryptoLevel)
	v.SetDefault("ssl.serverAuth", cfg.SSL.ServerAuth)
	v.SetDefault("http.version", cfg.HTTP.Version)
	v.SetDefault("http.persistent", cfg.HTTP.Persistent)
	v.SetDefault("http.timeout", cfg.HTTP.Timeout)
	v.SetDefault("remoteSession.probePort", cfg.RemoteSession.ProbePort)
	v.SetDefault("remoteSession.timeout", cfg.RemoteSession.Timeout)
}

// Validate checks cross-field invariants the decoder can't express.
func (c *Config) Validate() error {
	if c.QueueSizeBytes <= 0 {
		return fmt.Errorf("config: queueSize must be positive")
	}
	switch c.ServerTimestampMode {
	case "device", "server":
	default:
		return fmt.Errorf("config: serverTimestampMode must be 'device' or 'server', got %q", c.ServerTimestampMode)
	}
	switch c.HTTP.Version {
	case "1.0", "1.1":
	default:
		return fmt.Errorf("config: http.version must be '1.0' or '1.1', got %q", c.HTTP.Version)
	}
	switch c.SSL.CryptoLevel {
	case "none", "low", "medium", "high":
	default:
		return fmt.Errorf("config: ssl.cryptoLevel must be one of none|low|medium|high, got %q", c.SSL.CryptoLevel)
	}
	if len(c.Servers) == 0 {
		return fmt.Errorf("config: at least one server must be configured")
	}
	if len(c.Devices) == 0 {
		return fmt.Errorf("config: at least one device must be configured")
	}
	return nil
}
