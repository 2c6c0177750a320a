// Package storage provides the top-level StorageManager owning the market
// data area.
package storage

import (
	"fmt"

	"github.com/mfehr/questfolio/internal/common"
	"github.com/mfehr/questfolio/internal/interfaces"
	"github.com/mfehr/questfolio/internal/storage/marketdb"
)

// Manager implements interfaces.StorageManager.
type Manager struct {
	market *marketdb.Store
	logger *common.Logger
}

// NewManager creates a new StorageManager.
func NewManager(logger *common.Logger, config *common.Config) (*Manager, error) {
	marketStore, err := marketdb.NewStore(logger, config.Storage.Market.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create market store: %w", err)
	}

	logger.Info().
		Str("market", config.Storage.Market.Path).
		Msg("Storage manager initialized")

	return &Manager{
		market: marketStore,
		logger: logger,
	}, nil
}

func (m *Manager) MarketDataStore() interfaces.MarketDataStore {
	return m.market
}

func (m *Manager) Close() error {
	if m.market != nil {
		return m.market.Close()
	}
	return nil
}

// Ensure Manager implements StorageManager
var _ interfaces.StorageManager = (*Manager)(nil)
