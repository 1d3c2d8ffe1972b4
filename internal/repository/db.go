package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Драйверы БД
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Open открывает БД, настраивает пул и проверяет соединение
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// sqlite не допускает параллельных писателей
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Migrate создает таблицы, если их нет
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	idColumn := "BIGSERIAL PRIMARY KEY"
	if driver == DriverSQLite {
		idColumn = "INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS risk_state (
			id INTEGER PRIMARY KEY,
			peak_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			current_drawdown DOUBLE PRECISION NOT NULL DEFAULT 0,
			daily_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
			daily_start_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
			trading_date TEXT NOT NULL DEFAULT '',
			win_streak INTEGER NOT NULL DEFAULT 0,
			loss_streak INTEGER NOT NULL DEFAULT 0,
			recent_trades TEXT NOT NULL DEFAULT '[]',
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			total_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
			kill_switch_active BOOLEAN NOT NULL DEFAULT FALSE,
			kill_switch_reason TEXT NOT NULL DEFAULT '',
			kill_switch_at TIMESTAMP NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			leverage INTEGER NOT NULL,
			pnl_pct DOUBLE PRECISION NOT NULL,
			leveraged_pnl DOUBLE PRECISION NOT NULL,
			pnl DOUBLE PRECISION NOT NULL,
			close_reason TEXT NOT NULL,
			opened_at TIMESTAMP NOT NULL,
			closed_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_closed_at ON trades (closed_at)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id ` + idColumn + `,
			timestamp TIMESTAMP NOT NULL,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL,
			meta TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_timestamp ON notifications (timestamp)`,
	}

	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
