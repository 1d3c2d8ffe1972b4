package main

import (
	"context"
	"database/sql"
	"fmt"

	"futuresbot/internal/bot"
	"futuresbot/internal/config"
	"futuresbot/internal/repository"
)

// stores - хранилища, выбранные по DB_DRIVER.
// trades и notifications равны nil для файлового хранилища.
type stores struct {
	db            *sql.DB
	state         bot.StateStore
	trades        *repository.TradeRepository
	notifications *repository.NotificationRepository
}

// openStores открывает хранилище и применяет миграции
func openStores(ctx context.Context, cfg config.DatabaseConfig) (*stores, error) {
	if cfg.Driver == config.DriverFile {
		return &stores{state: repository.NewFileStateStore(cfg.StateFile)}, nil
	}

	db, err := repository.Open(ctx, cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect %s (%s): %w", cfg.Driver, cfg.DSNWithoutPassword(), err)
	}
	if err := repository.Migrate(ctx, db, cfg.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &stores{
		db:            db,
		state:         repository.NewRiskStateRepository(db),
		trades:        repository.NewTradeRepository(db),
		notifications: repository.NewNotificationRepository(db),
	}, nil
}

func (s *stores) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
