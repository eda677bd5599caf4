// Package config provides configuration types and loading for odinmcp.
//
// Configuration comes from an odinmcp.yaml file plus ODINMCP_-prefixed
// environment variables. Both the web tier and the worker tier read the same
// schema; each tier only consumes the sections it needs.
package config

import (
	"time"
)

// Config is the top-level configuration shared by the web and worker tiers.
type Config struct {
	// Server configures the HTTP frontend and server identity.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Auth configures how the per-request user is derived.
	Auth AuthConfig `yaml:"auth" mapstructure:"auth"`

	// Hermod configures the push-proxy offload.
	Hermod HermodConfig `yaml:"hermod" mapstructure:"hermod"`

	// Broker configures the task broker and result backend.
	Broker BrokerConfig `yaml:"broker" mapstructure:"broker"`

	// Debug enables verbose logging.
	Debug bool `yaml:"debug" mapstructure:"debug"`
}

// ServerConfig configures the HTTP listener and the identity advertised in
// initialize results.
type ServerConfig struct {
	// HTTPAddr is the address the web tier listens on.
	// Defaults to "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// Name is the server name reported in serverInfo. Required.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`

	// Version is the server version reported in serverInfo.
	Version string `yaml:"version" mapstructure:"version"`

	// Instructions is the optional usage text returned at initialize.
	Instructions string `yaml:"instructions" mapstructure:"instructions"`

	// LogLevel sets the minimum log level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// AuthConfig configures the trusted identity header.
type AuthConfig struct {
	// UserInfoHeader is the header carrying base64-encoded userinfo JSON
	// from the identity proxy. Defaults to "x-userinfo".
	UserInfoHeader string `yaml:"user_info_header" mapstructure:"user_info_header"`
}

// HermodConfig configures the GRIP push proxy integration.
type HermodConfig struct {
	// StreamingHeader is the header the push proxy injects on proxied
	// requests. Defaults to "x-hermod-stream".
	StreamingHeader string `yaml:"streaming_header" mapstructure:"streaming_header"`

	// TokenSecret is the HMAC key for channel tokens. Required.
	TokenSecret string `yaml:"token_secret" mapstructure:"token_secret" validate:"required"`

	// ZeroMQURLs are the push proxy's publish endpoints.
	ZeroMQURLs []string `yaml:"zeromq_urls" mapstructure:"zeromq_urls" validate:"min=1,dive,required"`

	// KeepAliveTimeout is the keep-alive interval advertised on streaming
	// hold responses, in seconds. Defaults to 10.
	KeepAliveTimeout int `yaml:"keep_alive_timeout" mapstructure:"keep_alive_timeout" validate:"omitempty,gt=0"`
}

// BrokerConfig configures the task broker and result backend.
type BrokerConfig struct {
	// Driver selects the broker implementation: "redis" for multi-node
	// deployments, "sqlite" for single-node development.
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=redis sqlite"`

	// RedisURL is the broker connection URL for the redis driver.
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url" validate:"omitempty,url"`

	// BackendURL is the result backend URL for the redis driver. Empty
	// means the broker URL is reused.
	BackendURL string `yaml:"backend_url" mapstructure:"backend_url" validate:"omitempty,url"`

	// SQLitePath is the database file for the sqlite driver.
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// Defaults applied by SetDefaults.
const (
	DefaultHTTPAddr         = "127.0.0.1:8080"
	DefaultUserInfoHeader   = "x-userinfo"
	DefaultStreamingHeader  = "x-hermod-stream"
	DefaultKeepAliveTimeout = 10
	DefaultRedisURL         = "redis://localhost:6379/0"
	DefaultSQLitePath       = "odinmcp.db"
)

// DefaultZeroMQURL is the push proxy publish endpoint assumed when none is
// configured.
const DefaultZeroMQURL = "tcp://localhost:5562"

// SetDefaults fills zero-valued optional fields.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.Version == "" {
		c.Server.Version = "0.1.0"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Auth.UserInfoHeader == "" {
		c.Auth.UserInfoHeader = DefaultUserInfoHeader
	}
	if c.Hermod.StreamingHeader == "" {
		c.Hermod.StreamingHeader = DefaultStreamingHeader
	}
	if len(c.Hermod.ZeroMQURLs) == 0 {
		c.Hermod.ZeroMQURLs = []string{DefaultZeroMQURL}
	}
	if c.Hermod.KeepAliveTimeout == 0 {
		c.Hermod.KeepAliveTimeout = DefaultKeepAliveTimeout
	}
	if c.Broker.Driver == "" {
		c.Broker.Driver = "redis"
	}
	if c.Broker.RedisURL == "" {
		c.Broker.RedisURL = DefaultRedisURL
	}
	if c.Broker.BackendURL == "" {
		c.Broker.BackendURL = c.Broker.RedisURL
	}
	if c.Broker.SQLitePath == "" {
		c.Broker.SQLitePath = DefaultSQLitePath
	}
}

// KeepAlive returns the streaming keep-alive interval as a duration.
func (c *HermodConfig) KeepAlive() time.Duration {
	return time.Duration(c.KeepAliveTimeout) * time.Second
}
