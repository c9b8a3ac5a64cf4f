// Package config handles TOML configuration loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	toml "github.com/pelletier/go-toml/v2"

	"bancho-proxy/internal/model"
)

// configSearchPaths lists paths checked in order when no explicit config is given.
var configSearchPaths = []string{
	"/etc/bancho-proxy/config.toml",
	"configs/config.toml",
}

// adminRoutes are served by the admin listener and cannot be used as the metrics path.
var adminRoutes = []string{"/healthz", "/proxy/status"}

// CLI holds command-line arguments parsed by Kong.
type CLI struct {
	Config   string           `kong:"short='c',help='Path to TOML config file.',env='CONFIG_PATH'"`
	Host     string           `kong:"help='Listen host (overrides config).',env='HOST'"`
	Port     int              `kong:"short='p',help='Listen port (overrides config).',env='PORT'"`
	Upstream string           `kong:"help='Upstream host:port (overrides config).',env='UPSTREAM_ADDRESS'"`
	LogLevel string           `kong:"help='Log level: debug|info|warn|error (overrides config).',env='LOG_LEVEL'"`
	Version  kong.VersionFlag `kong:"help='Print version and exit.'"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Route    RouteConfig    `toml:"route"`
	Upstream UpstreamConfig `toml:"upstream"`
	Admin    AdminConfig    `toml:"admin"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`

	filePath string // resolved config file path (unexported)
}

// ServerConfig holds the proxy listener settings.
type ServerConfig struct {
	Host         string          `toml:"host"`
	Port         int             `toml:"port"` // 0 means "use default" (80); TOML cannot distinguish 0 from unset
	BodyMaxBytes int64           `toml:"body_max_bytes"`
	RateLimit    RateLimitConfig `toml:"rate_limit"`
}

// RateLimitConfig controls per-IP request rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// RouteConfig lists the virtual hosts accepted by the proxy.
type RouteConfig struct {
	ServerNames []string `toml:"server_names"`
	CORSOrigin  string   `toml:"cors_origin"`
}

// UpstreamConfig holds upstream connection settings.
type UpstreamConfig struct {
	Address               string `toml:"address"`
	ReadTimeoutSeconds    int    `toml:"read_timeout_seconds"`
	ConnectTimeoutSeconds int    `toml:"connect_timeout_seconds"`
	IdleConnections       int    `toml:"idle_connections"`
}

// AdminConfig holds the health/status/metrics listener settings.
type AdminConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Load reads the TOML config file and applies CLI overrides.
// When no explicit path is given (via --config or CONFIG_PATH), it searches
// /etc/bancho-proxy/config.toml then configs/config.toml.
func Load(cli *CLI) (*Config, error) {
	path := cli.Config
	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return nil, fmt.Errorf("config: no config file found (searched %v)", configSearchPaths)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.filePath = path
	cfg.applyCLI(cli)
	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return &cfg, nil
}

// applyCLI overrides config values with non-zero CLI flags.
func (c *Config) applyCLI(cli *CLI) {
	if cli.Host != "" {
		c.Server.Host = cli.Host
	}
	if cli.Port != 0 {
		c.Server.Port = cli.Port
	}
	if cli.Upstream != "" {
		c.Upstream.Address = cli.Upstream
	}
	if cli.LogLevel != "" {
		c.Log.Level = cli.LogLevel
	}
}

// field validates a single value and prefixes any failure with its TOML key.
func field(name string, value any, rules ...validation.Rule) error {
	if err := validation.Validate(value, rules...); err != nil {
		return fmt.Errorf("%s %w", name, err)
	}
	return nil
}

func (c *Config) validate() error {
	checks := []error{
		field("server.port", c.Server.Port, validation.Min(0), validation.Max(65535)),
		field("server.body_max_bytes", c.Server.BodyMaxBytes, validation.Min(int64(0))),
		field("route.server_names", c.Route.ServerNames,
			validation.Required.Error("must list at least one host"),
			validation.Each(validation.Required, is.Host)),
		field("route.cors_origin", c.Route.CORSOrigin, validation.Required),
		field("upstream.address", c.Upstream.Address, validation.Required, is.DialString),
		field("upstream.read_timeout_seconds", c.Upstream.ReadTimeoutSeconds, validation.Min(0)),
		field("upstream.connect_timeout_seconds", c.Upstream.ConnectTimeoutSeconds, validation.Min(0)),
		field("upstream.idle_connections", c.Upstream.IdleConnections, validation.Min(0)),
		field("log.level", strings.ToLower(c.Log.Level), validation.In("debug", "info", "warn", "error")),
		field("log.format", strings.ToLower(c.Log.Format), validation.In("json", "text", "auto")),
	}
	if c.Server.RateLimit.Enabled {
		checks = append(checks, field("server.rate_limit.requests_per_second", c.Server.RateLimit.RequestsPerSecond,
			validation.Required.Error("must be > 0 when rate limiting is enabled"),
			validation.Min(0.0).Exclusive().Error("must be > 0 when rate limiting is enabled")))
	}
	if c.Admin.Enabled {
		checks = append(checks, field("admin.port", c.Admin.Port, validation.Min(1), validation.Max(65535),
			validation.NotIn(c.Server.Port).Error("must differ from server.port")))
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	// Metrics path validation (only when metrics are enabled).
	if c.Metrics.Enabled {
		p := c.Metrics.Path
		if p[0] != '/' {
			return fmt.Errorf("metrics.path must start with '/'; got %q", p)
		}
		for _, reserved := range adminRoutes {
			if p == reserved || strings.HasPrefix(p, reserved+"/") {
				return fmt.Errorf("metrics.path %q conflicts with reserved route %q", p, reserved)
			}
		}
	}

	return nil
}

// setDefaults fills zero-valued fields with sensible defaults.
// For integer fields (Port, BodyMaxBytes, etc.), zero means "unset" because TOML
// cannot distinguish between an explicit 0 and an omitted key. Setting port=0 in
// the config file therefore results in the default port (80).
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 80
	}
	if c.Server.BodyMaxBytes == 0 {
		c.Server.BodyMaxBytes = 10 * 1024 * 1024 // 10 MB
	}
	if c.Route.CORSOrigin == "" {
		c.Route.CORSOrigin = "*"
	}
	if c.Upstream.Address == "" {
		c.Upstream.Address = "127.0.0.1:9823"
	}
	if c.Upstream.ReadTimeoutSeconds == 0 {
		c.Upstream.ReadTimeoutSeconds = 3600
	}
	if c.Upstream.ConnectTimeoutSeconds == 0 {
		c.Upstream.ConnectTimeoutSeconds = 60
	}
	if c.Upstream.IdleConnections == 0 {
		c.Upstream.IdleConnections = 100
	}
	if c.Admin.Host == "" {
		c.Admin.Host = "127.0.0.1"
	}
	if c.Admin.Port == 0 {
		c.Admin.Port = 9824
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// BuildRoute builds the immutable route value shared by the proxy components.
// It must only be called on a validated Config.
func (c *Config) BuildRoute() model.RouteConfig {
	host, port, _ := net.SplitHostPort(c.Upstream.Address)
	n, _ := strconv.Atoi(port)
	return model.NewRouteConfig(
		c.Server.Port,
		c.Route.ServerNames,
		model.Upstream{Host: host, Port: n},
		time.Duration(c.Upstream.ReadTimeoutSeconds)*time.Second,
		c.Route.CORSOrigin,
	)
}

// findConfig returns the first config path that exists, or empty string.
func findConfig() string {
	return findConfigInPaths(configSearchPaths)
}

// findConfigInPaths returns the first path that exists on disk, or empty string.
func findConfigInPaths(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Addr returns the server listen address as host:port.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Addr returns the admin listen address as host:port.
func (c *AdminConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WarnPermissions logs a warning if the config file is readable by group or others.
func (c *Config) WarnPermissions(logger *slog.Logger) {
	if c.filePath == "" {
		return
	}
	info, err := os.Stat(c.filePath)
	if err != nil {
		return
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Warn("config file is readable by group/others; consider chmod 600",
			"path", c.filePath,
			"mode", fmt.Sprintf("%04o", perm),
		)
	}
}
