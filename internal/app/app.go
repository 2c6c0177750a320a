// Package app wires configuration, storage, clients, and the P&L engine into
// one shared core used by cmd/questfolio-server.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mfehr/questfolio/internal/clients/boc"
	"github.com/mfehr/questfolio/internal/clients/questrade"
	"github.com/mfehr/questfolio/internal/common"
	"github.com/mfehr/questfolio/internal/interfaces"
	"github.com/mfehr/questfolio/internal/services/pnl"
	"github.com/mfehr/questfolio/internal/storage"
)

// App holds all initialized services and clients.
type App struct {
	Config          *common.Config
	Logger          *common.Logger
	Storage         interfaces.StorageManager
	QuestradeClient *questrade.Client
	BOCClient       *boc.Client
	PnlService      interfaces.PnlService
	StartupTime     time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, storage, clients, and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	binDir := getBinaryDir()

	// Resolve config: provided path, QUESTFOLIO_CONFIG, binary dir, then the
	// development fallback.
	if configPath == "" {
		configPath = os.Getenv("QUESTFOLIO_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "questfolio.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/questfolio.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)
	logger.Info().
		Str("environment", config.Environment).
		Str("base_currency", config.BaseCurrency).
		Str("config", configPath).
		Msg("Starting questfolio")

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// The access token is read per request so an external refresher can
	// rotate it without a restart.
	tokenSource := questrade.TokenSource(func() (string, error) {
		token := os.Getenv("QUESTFOLIO_QT_TOKEN")
		if token == "" {
			return "", fmt.Errorf("QUESTFOLIO_QT_TOKEN is not set")
		}
		return token, nil
	})

	qtClient := questrade.NewClient(tokenSource,
		questrade.WithBaseURL(config.Clients.Questrade.BaseURL),
		questrade.WithRateLimit(config.Clients.Questrade.RateLimit),
		questrade.WithTimeout(config.Clients.Questrade.GetTimeout()),
		questrade.WithLogger(logger),
	)

	bocClient := boc.NewClient(
		boc.WithBaseURL(config.Clients.BOC.BaseURL),
		boc.WithRateLimit(config.Clients.BOC.RateLimit),
		boc.WithTimeout(config.Clients.BOC.GetTimeout()),
		boc.WithLogger(logger),
	)

	pnlService := pnl.NewService(qtClient, bocClient, storageManager.MarketDataStore(), config.BaseCurrency, logger)

	logger.Info().
		Dur("elapsed", time.Since(startupStart)).
		Msg("Application initialized")

	return &App{
		Config:          config,
		Logger:          logger,
		Storage:         storageManager,
		QuestradeClient: qtClient,
		BOCClient:       bocClient,
		PnlService:      pnlService,
		StartupTime:     time.Now(),
	}, nil
}

// Close releases application resources.
func (a *App) Close() error {
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}
