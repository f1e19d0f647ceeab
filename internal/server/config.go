// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the roomcast service.
package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// RateLimitConfig defines the parameters for per-connection chat message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// TelemetryConfig controls the machine metrics simulator.
type TelemetryConfig struct {
	Enabled   bool
	Namespace string
	Interval  time.Duration
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port            string
	AllowedOrigins  []string
	Namespaces      []string
	MaxMessageSize  int64
	SendBufferSize  int
	RateLimit       RateLimitConfig
	Telemetry       TelemetryConfig
	ShutdownTimeout time.Duration
	LogLevel        string
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		Namespaces:     []string{"/general", "/sports", "/movies", "/machines"},
		MaxMessageSize: 512,
		SendBufferSize: 256,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:   true,
			Namespace: "/machines",
			Interval:  time.Second,
		},
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// sanitize replaces unusable values with defaults and normalizes namespace names.
func (c *Config) sanitize() {
	def := defaultConfig()

	if c.Port == "" {
		c.Port = def.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = def.SendBufferSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if c.Telemetry.Interval <= 0 {
		c.Telemetry.Interval = def.Telemetry.Interval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = def.ShutdownTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	c.Telemetry.Namespace = normalizeNamespace(c.Telemetry.Namespace)
	if c.Telemetry.Namespace == "" {
		c.Telemetry.Namespace = def.Telemetry.Namespace
	}

	seen := make(map[string]struct{}, len(c.Namespaces)+1)
	namespaces := make([]string, 0, len(c.Namespaces)+1)
	for _, ns := range c.Namespaces {
		ns = normalizeNamespace(ns)
		if ns == "" {
			continue
		}
		if _, dup := seen[ns]; dup {
			continue
		}
		seen[ns] = struct{}{}
		namespaces = append(namespaces, ns)
	}
	if len(namespaces) == 0 {
		namespaces = append(namespaces, def.Namespaces...)
		for _, ns := range namespaces {
			seen[ns] = struct{}{}
		}
	}
	if _, ok := seen[c.Telemetry.Namespace]; c.Telemetry.Enabled && !ok {
		namespaces = append(namespaces, c.Telemetry.Namespace)
	}
	c.Namespaces = namespaces
}

func normalizeNamespace(ns string) string {
	ns = strings.Trim(strings.TrimSpace(ns), "/")
	if ns == "" {
		return ""
	}
	return "/" + ns
}

type setting struct {
	key   string
	flag  string
	env   string
	usage string
}

var settings = []setting{
	{"port", "port", "SERVER_PORT", "listen address"},
	{"allowed_origins", "allowed-origins", "ALLOWED_ORIGINS", "origins allowed to open websockets (* for any)"},
	{"namespaces", "namespaces", "NAMESPACES", "namespaces clients may attach to"},
	{"max_message_size", "max-message-size", "MAX_MESSAGE_SIZE", "maximum inbound frame size in bytes"},
	{"send_buffer_size", "send-buffer-size", "SEND_BUFFER_SIZE", "outbound events buffered per connection"},
	{"rate_limit.burst", "rate-limit-burst", "RATE_LIMIT_BURST", "chat messages allowed per refill interval"},
	{"rate_limit.refill_interval", "rate-limit-refill-interval", "RATE_LIMIT_REFILL_INTERVAL", "rate limit refill interval (seconds or duration)"},
	{"telemetry.enabled", "telemetry", "TELEMETRY_ENABLED", "run the machine metrics simulator"},
	{"telemetry.namespace", "telemetry-namespace", "TELEMETRY_NAMESPACE", "namespace receiving machine metrics"},
	{"telemetry.interval", "telemetry-interval", "TELEMETRY_INTERVAL", "machine metrics emission interval (seconds or duration)"},
	{"shutdown_timeout", "shutdown-timeout", "SHUTDOWN_TIMEOUT", "graceful shutdown timeout (seconds or duration)"},
	{"log_level", "log-level", "LOG_LEVEL", "debug, info, warn or error"},
}

// NewFlagSet declares the command line flags understood by LoadConfig.
func NewFlagSet(name string) *pflag.FlagSet {
	def := defaultConfig()
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "optional config file (yaml, json or toml)")
	fs.String("port", def.Port, usage("port"))
	fs.StringSlice("allowed-origins", def.AllowedOrigins, usage("allowed-origins"))
	fs.StringSlice("namespaces", def.Namespaces, usage("namespaces"))
	fs.Int64("max-message-size", def.MaxMessageSize, usage("max-message-size"))
	fs.Int("send-buffer-size", def.SendBufferSize, usage("send-buffer-size"))
	fs.Int("rate-limit-burst", def.RateLimit.Burst, usage("rate-limit-burst"))
	fs.Duration("rate-limit-refill-interval", def.RateLimit.RefillInterval, usage("rate-limit-refill-interval"))
	fs.Bool("telemetry", def.Telemetry.Enabled, usage("telemetry"))
	fs.String("telemetry-namespace", def.Telemetry.Namespace, usage("telemetry-namespace"))
	fs.Duration("telemetry-interval", def.Telemetry.Interval, usage("telemetry-interval"))
	fs.Duration("shutdown-timeout", def.ShutdownTimeout, usage("shutdown-timeout"))
	fs.String("log-level", def.LogLevel, usage("log-level"))
	return fs
}

func usage(flag string) string {
	for _, s := range settings {
		if s.flag == flag {
			return s.usage + " (env " + s.env + ")"
		}
	}
	return ""
}

// LoadConfig builds a Config from, in increasing precedence: defaults, the
// optional --config file, environment variables and command line flags.
func LoadConfig(args []string) (*Config, error) {
	fs := NewFlagSet("roomcast")
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "parse flags")
	}

	v := viper.New()
	for _, s := range settings {
		if err := v.BindPFlag(s.key, fs.Lookup(s.flag)); err != nil {
			return nil, errors.Wrapf(err, "bind flag %s", s.flag)
		}
		if err := v.BindEnv(s.key, s.env); err != nil {
			return nil, errors.Wrapf(err, "bind env %s", s.env)
		}
	}

	if path, _ := fs.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
	}

	cfg := Config{
		Port:           v.GetString("port"),
		AllowedOrigins: stringList(v, "allowed_origins"),
		Namespaces:     stringList(v, "namespaces"),
		MaxMessageSize: v.GetInt64("max_message_size"),
		SendBufferSize: v.GetInt("send_buffer_size"),
		RateLimit: RateLimitConfig{
			Burst:          v.GetInt("rate_limit.burst"),
			RefillInterval: duration(v, "rate_limit.refill_interval"),
		},
		Telemetry: TelemetryConfig{
			Enabled:   v.GetBool("telemetry.enabled"),
			Namespace: v.GetString("telemetry.namespace"),
			Interval:  duration(v, "telemetry.interval"),
		},
		ShutdownTimeout: duration(v, "shutdown_timeout"),
		LogLevel:        strings.ToLower(v.GetString("log_level")),
	}
	cfg.sanitize()
	return &cfg, nil
}

// stringList accepts comma separated strings from the environment as well as
// lists from flags and config files.
func stringList(v *viper.Viper, key string) []string {
	if raw, ok := v.Get(key).(string); ok {
		return parseList(raw)
	}
	return v.GetStringSlice(key)
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// duration reads bare integers as seconds, anything else as a Go duration.
func duration(v *viper.Viper, key string) time.Duration {
	switch raw := v.Get(key).(type) {
	case string:
		if seconds, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			return time.Duration(seconds) * time.Second
		}
	case int:
		return time.Duration(raw) * time.Second
	case int64:
		return time.Duration(raw) * time.Second
	}
	return v.GetDuration(key)
}
