package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"futuresbot/internal/models"
)

// ============================================================
// TradeRepository Tests
// ============================================================

var tradeRowColumns = []string{
	"id", "symbol", "side", "entry_price", "exit_price", "amount", "leverage",
	"pnl_pct", "leveraged_pnl", "pnl", "close_reason", "opened_at", "closed_at",
}

func TestTradeRepositorySave(t *testing.T) {
	opened := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	closed := opened.Add(time.Hour)

	trade := &models.TradeRecord{
		ID:           "01HS0000000000000000000000",
		Symbol:       "BTCUSDT",
		Side:         models.SideLong,
		EntryPrice:   50000,
		ExitPrice:    49000,
		Amount:       0.15,
		Leverage:     15,
		PnLPct:       -0.02,
		LeveragedPnL: -0.3,
		PnL:          -150,
		CloseReason:  "STOP_LOSS",
		OpenedAt:     opened,
		ClosedAt:     closed,
	}

	tests := []struct {
		name        string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "success",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO trades`).
					WithArgs(trade.ID, "BTCUSDT", "long", 50000.0, 49000.0, 0.15, 15, -0.02, -0.3, -150.0, "STOP_LOSS", opened, closed).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
		},
		{
			name: "database error",
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`INSERT INTO trades`).WillReturnError(errors.New("duplicate key"))
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			err = NewTradeRepository(db).SaveTrade(context.Background(), trade)
			if tt.expectError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestTradeRepositoryGetRecent(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(tradeRowColumns).
		AddRow("b", "ETHUSDT", "short", 2000.0, 1900.0, 1.0, 5, 0.05, 0.25, 100.0, "TAKE_PROFIT", now.Add(-time.Hour), now).
		AddRow("a", "BTCUSDT", "long", 50000.0, 49000.0, 0.1, 10, -0.02, -0.2, -100.0, "STOP_LOSS", now.Add(-2*time.Hour), now.Add(-time.Hour))
	mock.ExpectQuery(`SELECT .+ FROM trades ORDER BY closed_at DESC LIMIT`).
		WithArgs(2).
		WillReturnRows(rows)

	trades, err := NewTradeRepository(db).GetRecent(context.Background(), 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].ID != "b" || trades[0].PnL != 100 || trades[1].CloseReason != "STOP_LOSS" {
		t.Errorf("unexpected trades: %+v %+v", trades[0], trades[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestTradeRepositoryGetByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM trades WHERE id =`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(tradeRowColumns))

	_, err = NewTradeRepository(db).GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrTradeNotFound) {
		t.Errorf("expected ErrTradeNotFound, got %v", err)
	}
}

func TestTradeRepositoryGetSince(t *testing.T) {
	since := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM trades WHERE closed_at >=`).
		WithArgs(since).
		WillReturnError(errors.New("connection lost"))

	if _, err := NewTradeRepository(db).GetSince(context.Background(), since); err == nil {
		t.Error("expected error, got nil")
	}
}
