package config

import (
	"os"
	"path/filepath"

	"github.com/runoshun/relay/internal/domain"
)

// Ensure Manager implements domain.ConfigManager.
var _ domain.ConfigManager = (*Manager)(nil)

// Manager inspects and creates config files.
type Manager struct {
	dataDir       string
	globalConfDir string
}

// NewManager creates a new Manager.
func NewManager(dataDir string) *Manager {
	return NewManagerWithGlobalDir(dataDir, defaultGlobalConfigDir())
}

// NewManagerWithGlobalDir creates a new Manager with a custom global config directory.
func NewManagerWithGlobalDir(dataDir, globalConfDir string) *Manager {
	return &Manager{
		dataDir:       dataDir,
		globalConfDir: globalConfDir,
	}
}

// GetDataConfigInfo returns information about the data directory's config file.
func (m *Manager) GetDataConfigInfo() domain.ConfigInfo {
	return readInfo(filepath.Join(m.dataDir, domain.ConfigFileName))
}

// GetGlobalConfigInfo returns information about the global config file.
func (m *Manager) GetGlobalConfigInfo() domain.ConfigInfo {
	if m.globalConfDir == "" {
		return domain.ConfigInfo{}
	}
	return readInfo(filepath.Join(m.globalConfDir, domain.ConfigFileName))
}

func readInfo(path string) domain.ConfigInfo {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.ConfigInfo{Path: path}
	}
	return domain.ConfigInfo{
		Path:    path,
		Content: string(content),
		Exists:  true,
	}
}

// InitDataConfig writes the commented default config into the data directory.
func (m *Manager) InitDataConfig(cfg *domain.Config) error {
	if err := os.MkdirAll(m.dataDir, 0o750); err != nil {
		return err
	}
	path := filepath.Join(m.dataDir, domain.ConfigFileName)
	if _, err := os.Stat(path); err == nil {
		return domain.ErrConfigExists
	}
	// The file may later hold the bot token.
	return os.WriteFile(path, []byte(domain.RenderConfigTemplate(cfg)), 0o600)
}
