package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// preferenceBackend: выбранное хранилище настроек; pg заполнен только для postgres.
type preferenceBackend struct {
	repo domain.PreferenceStore
	pg   *postgres.Store
}

func (b preferenceBackend) close(logger *log.Entry) {
	if b.pg == nil {
		return
	}
	if err := b.pg.Close(); err != nil {
		logger.WithError(err).Warn("failed to close postgres store")
	}
}

// initPreferences открывает хранилище настроек по cfg.PreferencesDriver.
func initPreferences(ctx context.Context, cfg Config, logger *log.Entry) (preferenceBackend, error) {
	switch cfg.PreferencesDriver {
	case "", StorageDriverMemory:
		logger.Info("preferences use in-memory storage")
		return preferenceBackend{repo: memory.NewPreferenceRepository()}, nil
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return preferenceBackend{}, errors.New("postgres preferences driver requires " + envPostgresDSN)
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return preferenceBackend{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.Migrator().Up(ctx, 0); err != nil {
				_ = store.Close()
				return preferenceBackend{}, fmt.Errorf("apply migrations: %w", err)
			}
			status, err := store.Migrator().Status(ctx)
			if err == nil {
				logger.WithFields(log.Fields{
					"version": status.Version,
					"applied": status.Applied,
				}).Info("postgres schema is up to date")
			}
		}
		logger.Info("preferences use postgres storage")
		return preferenceBackend{repo: postgres.NewPreferenceRepository(store), pg: store}, nil
	default:
		return preferenceBackend{}, fmt.Errorf("unsupported preferences driver %q", cfg.PreferencesDriver)
	}
}
