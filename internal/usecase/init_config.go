package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/runoshun/relay/internal/domain"
)

// InitStoreInput contains the input for the InitStore use case.
type InitStoreInput struct {
	Config *domain.Config // Values rendered into the config template
}

// InitStoreOutput contains the output of the InitStore use case.
type InitStoreOutput struct {
	ConfigPath    string
	ConfigCreated bool // False when an existing config file was kept
}

// InitStore creates the data store and a commented config file.
type InitStore struct {
	store         domain.StoreInitializer
	configManager domain.ConfigManager
}

// NewInitStore creates a new InitStore use case.
func NewInitStore(store domain.StoreInitializer, configManager domain.ConfigManager) *InitStore {
	return &InitStore{
		store:         store,
		configManager: configManager,
	}
}

// Execute initializes the store. Running it twice is harmless.
func (uc *InitStore) Execute(ctx context.Context, in InitStoreInput) (*InitStoreOutput, error) {
	if err := uc.store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	cfg := in.Config
	if cfg == nil {
		cfg = domain.NewDefaultConfig()
	}
	out := &InitStoreOutput{ConfigPath: uc.configManager.GetDataConfigInfo().Path}
	err := uc.configManager.InitDataConfig(cfg)
	switch {
	case errors.Is(err, domain.ErrConfigExists):
	case err != nil:
		return nil, fmt.Errorf("write config: %w", err)
	default:
		out.ConfigCreated = true
	}
	return out, nil
}
