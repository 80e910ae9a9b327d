package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/bakeops/bakeops/api/pkg/config"
	"github.com/bakeops/bakeops/api/pkg/types"
)

type PostgresStore struct {
	cfg config.Store
	gdb *gorm.DB
}

func NewPostgresStore(cfg config.Store) (*PostgresStore, error) {
	gormDB, err := connect(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	store := &PostgresStore{
		cfg: cfg,
		gdb: gormDB,
	}

	if cfg.AutoMigrate {
		if err := store.autoMigrate(); err != nil {
			return nil, fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	if cfg.SeedSpecs {
		if err := store.SeedBakeSpecs(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to seed bake specs: %w", err)
		}
	}

	return store, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) autoMigrate() error {
	return s.gdb.WithContext(context.Background()).AutoMigrate(
		&types.BakeSpec{},
		&types.Schedule{},
		&types.PresetOrder{},
	)
}

func connect(ctx context.Context, cfg config.Store) (*gorm.DB, error) {
	// Waiting for connection
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			sslMode := "disable"
			if cfg.SSL {
				sslMode = "require"
			}

			dsn := fmt.Sprintf(
				"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
				cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, sslMode,
			)
			if cfg.Schema != "" {
				dsn = fmt.Sprintf("%s search_path=%s", dsn, cfg.Schema)
			}

			gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
				Logger: NewGormLogger(200*time.Millisecond, true),
			})
			if err != nil {
				log.Warn().Err(err).Msg("sql store startup connection problem, retrying in 1 second")
				time.Sleep(1 * time.Second)
				continue
			}

			sqlDB, err := gormDB.DB()
			if err != nil {
				return nil, err
			}
			sqlDB.SetMaxIdleConns(cfg.IdleConns)
			sqlDB.SetMaxOpenConns(cfg.MaxConns)
			sqlDB.SetConnMaxIdleTime(cfg.MaxConnIdleTime)
			sqlDB.SetConnMaxLifetime(cfg.MaxConnLifetime)

			return gormDB, nil
		}
	}
}
