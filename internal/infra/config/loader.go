// Package config provides configuration loading functionality.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/runoshun/relay/internal/domain"
)

// Environment overrides, applied after both config files.
const (
	EnvBotToken        = "TELEGRAM_BOT_TOKEN"
	EnvAllowedUsers    = "TELEGRAM_ALLOWED_USERS"
	EnvPollingInterval = "TELEGRAM_POLLING_INTERVAL"
	EnvWorkerCommand   = "RELAY_WORKER_COMMAND"
	EnvStore           = "RELAY_STORE"
	EnvLogLevel        = "RELAY_LOG_LEVEL"
)

// Ensure Loader implements domain.ConfigLoader.
var _ domain.ConfigLoader = (*Loader)(nil)

// Loader loads configuration from TOML files and the environment.
type Loader struct {
	getenv        func(string) string
	dataDir       string // Path to the relay data directory
	globalConfDir string // Path to global config directory (e.g., ~/.config/relay)
}

// NewLoader creates a new Loader.
func NewLoader(dataDir string) *Loader {
	return NewLoaderWithGlobalDir(dataDir, defaultGlobalConfigDir())
}

// NewLoaderWithGlobalDir creates a new Loader with a custom global config directory.
// This is useful for testing.
func NewLoaderWithGlobalDir(dataDir, globalConfDir string) *Loader {
	return &Loader{
		getenv:        os.Getenv,
		dataDir:       dataDir,
		globalConfDir: globalConfDir,
	}
}

// defaultGlobalConfigDir returns the default global config directory.
func defaultGlobalConfigDir() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return domain.GlobalConfigDir(configHome)
}

// Load returns the merged configuration.
// Precedence, lowest first: defaults, global file, data dir file, environment.
func (l *Loader) Load() (*domain.Config, error) {
	cfg := domain.NewDefaultConfig()

	var warnings []string
	for _, path := range l.paths() {
		w, err := decodeFile(path, cfg)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w...)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}

	sort.Strings(warnings)
	cfg.Warnings = warnings
	return cfg, nil
}

func (l *Loader) paths() []string {
	var paths []string
	if l.globalConfDir != "" {
		paths = append(paths, filepath.Join(l.globalConfDir, domain.ConfigFileName))
	}
	return append(paths, filepath.Join(l.dataDir, domain.ConfigFileName))
}

// decodeFile decodes path over cfg. Keys present in the file win; absent keys
// keep their current value. Unknown keys are returned as warnings.
func decodeFile(path string, cfg *domain.Config) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, path, err)
	}

	// A second, strict pass over a scratch copy only collects unknown keys.
	scratch := domain.NewDefaultConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var warnings []string
	var strict *toml.StrictMissingError
	if err := dec.Decode(scratch); errors.As(err, &strict) {
		for _, e := range strict.Errors {
			warnings = append(warnings, fmt.Sprintf("unknown key in %s: %s", filepath.Base(path), strings.Join(e.Key(), ".")))
		}
	}
	return warnings, nil
}

func (l *Loader) applyEnv(cfg *domain.Config) error {
	if v := l.getenv(EnvBotToken); v != "" {
		cfg.Telegram.Token = v
	}
	if v := l.getenv(EnvAllowedUsers); v != "" {
		users, err := ParseUserIDs(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, EnvAllowedUsers, err)
		}
		cfg.Telegram.AllowedUsers = users
	}
	if v := l.getenv(EnvPollingInterval); v != "" {
		d, err := parseInterval(v)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrInvalidConfig, EnvPollingInterval, err)
		}
		cfg.Serve.Interval = domain.Duration(d)
	}
	if v := l.getenv(EnvWorkerCommand); v != "" {
		cfg.Worker.Command = v
	}
	if v := l.getenv(EnvStore); v != "" {
		cfg.Store.Backend = v
	}
	if v := l.getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// ParseUserIDs parses a comma-separated list of numeric user IDs.
func ParseUserIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseInterval accepts a Go duration ("30s") or a bare number of seconds.
func parseInterval(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against its field constraints.
func Validate(cfg *domain.Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s fails %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", domain.ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidConfig, err)
	}
	return nil
}
