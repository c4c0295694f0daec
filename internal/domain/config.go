package domain

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"
)

//go:embed config_template.toml
var configTemplateContent string

// Store backends.
const (
	StoreBackendFile   = "file"
	StoreBackendSQLite = "sqlite"
)

// Default configuration values.
const (
	DefaultLogLevel     = "info"
	DefaultStoreBackend = StoreBackendFile
	DefaultServeEvery   = 5 * time.Second
	DefaultPollTimeout  = 10 * time.Second
	DefaultAPIRoot      = "https://api.telegram.org"
)

// Config represents the application configuration.
// Fields are ordered to minimize memory padding.
type Config struct {
	Warnings  []string        `toml:"-"`
	Telegram  TelegramConfig  `toml:"telegram"`
	Worker    WorkerConfig    `toml:"worker"`
	Store     StoreConfig     `toml:"store"`
	Log       LogConfig       `toml:"log"`
	Retention RetentionConfig `toml:"retention"`
	Lease     LeaseConfig     `toml:"lease"`
	Serve     ServeConfig     `toml:"serve"`
}

// TelegramConfig holds Bot API settings from [telegram] section.
type TelegramConfig struct {
	Token        string   `toml:"token,omitempty"`
	APIRoot      string   `toml:"api_root,omitempty" validate:"omitempty,url"`
	AllowedUsers []int64  `toml:"allowed_users,omitempty"` // Empty allows everyone
	PollTimeout  Duration `toml:"poll_timeout,omitempty" validate:"gte=0"`
	AckStart     bool     `toml:"ack_start"` // Send a short notice when a task starts
}

// WorkerConfig holds the worker command from [worker] section.
type WorkerConfig struct {
	Command string   `toml:"command,omitempty"`
	Args    []string `toml:"args,omitempty"`
}

// StoreConfig holds storage settings from [store] section.
type StoreConfig struct {
	Backend string `toml:"backend,omitempty" validate:"oneof=file sqlite"`
}

// LeaseConfig holds lease settings from [lease] section.
type LeaseConfig struct {
	StaleAfter Duration `toml:"stale_after,omitempty" validate:"gt=0"`
}

// RetentionConfig holds message retention settings from [retention] section.
type RetentionConfig struct {
	ProcessedTTL  Duration `toml:"processed_ttl,omitempty" validate:"gt=0"`
	ContextWindow Duration `toml:"context_window,omitempty" validate:"gt=0"`
}

// Policy converts the section into a RetentionPolicy.
func (r RetentionConfig) Policy() RetentionPolicy {
	return RetentionPolicy{
		ProcessedTTL:  r.ProcessedTTL.Std(),
		ContextWindow: r.ContextWindow.Std(),
	}
}

// ServeConfig holds `relay serve` settings from [serve] section.
type ServeConfig struct {
	Interval Duration `toml:"interval,omitempty" validate:"gt=0"`
}

// LogConfig holds logging settings from [log] section.
type LogConfig struct {
	Level string `toml:"level,omitempty" validate:"oneof=debug info warn error"` // Log level: debug, info, warn, error
}

// ConfigInfo describes one config file on disk.
type ConfigInfo struct {
	Path    string
	Content string
	Exists  bool
}

// Duration is a time.Duration written as "30m" in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// NewDefaultConfig returns a Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			APIRoot:     DefaultAPIRoot,
			PollTimeout: Duration(DefaultPollTimeout),
			AckStart:    true,
		},
		Store: StoreConfig{Backend: DefaultStoreBackend},
		Lease: LeaseConfig{StaleAfter: Duration(DefaultStaleAfter)},
		Retention: RetentionConfig{
			ProcessedTTL:  Duration(DefaultProcessedTTL),
			ContextWindow: Duration(DefaultContextWindow),
		},
		Serve: ServeConfig{Interval: Duration(DefaultServeEvery)},
		Log:   LogConfig{Level: DefaultLogLevel},
	}
}

// Masked returns a copy of the config with secrets hidden.
func (c *Config) Masked() *Config {
	masked := *c
	masked.Telegram.Token = MaskSecret(c.Telegram.Token)
	return &masked
}

// MaskSecret keeps the first four characters of s.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", 8)
}

type templateData struct {
	StoreBackend  string
	StaleAfter    string
	ProcessedTTL  string
	ContextWindow string
	PollTimeout   string
	ServeInterval string
	LogLevel      string
}

// RenderConfigTemplate renders a commented config file from cfg's values.
func RenderConfigTemplate(cfg *Config) string {
	data := templateData{
		StoreBackend:  cfg.Store.Backend,
		StaleAfter:    cfg.Lease.StaleAfter.Std().String(),
		ProcessedTTL:  cfg.Retention.ProcessedTTL.Std().String(),
		ContextWindow: cfg.Retention.ContextWindow.Std().String(),
		PollTimeout:   cfg.Telegram.PollTimeout.Std().String(),
		ServeInterval: cfg.Serve.Interval.Std().String(),
		LogLevel:      cfg.Log.Level,
	}

	tmpl, err := template.New("config").Delims("<<", ">>").Parse(configTemplateContent)
	if err != nil {
		// Should never happen with embedded template
		panic(fmt.Sprintf("failed to parse config template: %v", err))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		panic(fmt.Sprintf("failed to execute config template: %v", err))
	}
	return buf.String()
}
