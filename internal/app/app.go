package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/homebase-app/homebase/internal/config"
	"github.com/homebase-app/homebase/internal/db"
	"github.com/homebase-app/homebase/internal/repository"
	"github.com/homebase-app/homebase/internal/service"
	"github.com/homebase-app/homebase/internal/storage"
)

type App struct {
	Cfg       *config.Config
	DB        *sqlx.DB
	Entities  repository.EntityRepository
	Relations repository.RelationRepository
	// FileService is nil when no object storage is configured.
	FileService *service.FileService
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// Initialize database
	database, err := db.InitWithPool(cfg.DBDriver, cfg.DBConnection, db.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Run database migrations
	err = db.RunMigrations(database.DB, cfg.DBDriver)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a := NewWithDB(cfg, database, nil)

	// Storage
	if cfg.StorageEnabled() {
		fileStorage, err := storage.New(ctx, cfg)
		if err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.FileService = service.NewFileService(a.Entities, a.Relations, fileStorage)
	} else {
		slog.Info("object storage not configured, file routes disabled")
	}

	return a, nil
}

// NewWithDB wires repositories over an already migrated database. A nil
// blob store leaves file handling disabled.
func NewWithDB(cfg *config.Config, database *sqlx.DB, blobs storage.Storage) *App {
	entities := repository.NewEntityRepository(database)
	relations := repository.NewRelationRepository(database)

	a := &App{
		Cfg:       cfg,
		DB:        database,
		Entities:  entities,
		Relations: relations,
	}
	if blobs != nil {
		a.FileService = service.NewFileService(entities, relations, blobs)
	}
	return a
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
