package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"futuresbot/internal/models"
)

// Ошибки журнала сделок
var (
	ErrTradeNotFound = errors.New("trade not found")
)

// TradeRepository - журнал закрытых сделок (таблица trades)
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `id, symbol, side, entry_price, exit_price, amount, leverage,
	pnl_pct, leveraged_pnl, pnl, close_reason, opened_at, closed_at`

// SaveTrade записывает закрытую сделку
func (r *TradeRepository) SaveTrade(ctx context.Context, t *models.TradeRecord) error {
	query := `
		INSERT INTO trades (` + tradeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	if t.ClosedAt.IsZero() {
		t.ClosedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.Symbol,
		t.Side,
		t.EntryPrice,
		t.ExitPrice,
		t.Amount,
		t.Leverage,
		t.PnLPct,
		t.LeveragedPnL,
		t.PnL,
		t.CloseReason,
		t.OpenedAt,
		t.ClosedAt,
	)
	return err
}

// GetByID возвращает сделку по ID
func (r *TradeRepository) GetByID(ctx context.Context, id string) (*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = $1`

	t, err := scanTrade(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	return t, nil
}

// GetRecent возвращает последние N сделок, новые первыми
func (r *TradeRepository) GetRecent(ctx context.Context, limit int) ([]*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY closed_at DESC LIMIT $1`
	return r.query(ctx, query, limit)
}

// GetSince возвращает сделки, закрытые не раньше since
func (r *TradeRepository) GetSince(ctx context.Context, since time.Time) ([]*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE closed_at >= $1 ORDER BY closed_at ASC`
	return r.query(ctx, query, since)
}

func (r *TradeRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.TradeRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return trades, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row rowScanner) (*models.TradeRecord, error) {
	t := &models.TradeRecord{}
	err := row.Scan(
		&t.ID,
		&t.Symbol,
		&t.Side,
		&t.EntryPrice,
		&t.ExitPrice,
		&t.Amount,
		&t.Leverage,
		&t.PnLPct,
		&t.LeveragedPnL,
		&t.PnL,
		&t.CloseReason,
		&t.OpenedAt,
		&t.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
