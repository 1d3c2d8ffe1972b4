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
// NotificationRepository Tests
// ============================================================

var notificationColumns = []string{"id", "timestamp", "type", "severity", "symbol", "message", "meta"}

func TestNewNotificationRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewNotificationRepository(db)
	if repo == nil {
		t.Fatal("NewNotificationRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestNotificationRepositoryCreate(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		notif       *models.Notification
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name: "with meta",
			notif: (&models.Notification{
				Timestamp: now,
				Type:      models.NotificationTypeGuardrail,
				Severity:  models.SeverityWarn,
				Symbol:    "BTCUSDT",
				Message:   "TRADE_VALUE_CAP: exceeds 5% per-trade cap",
			}).WithMeta("code", "TRADE_VALUE_CAP"),
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO notifications`).
					WithArgs(now, "GUARDRAIL", "warn", "BTCUSDT", sqlmock.AnyArg(), `{"code":"TRADE_VALUE_CAP"}`).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
			},
		},
		{
			name: "without meta",
			notif: &models.Notification{
				Timestamp: now,
				Type:      models.NotificationTypeKillSwitch,
				Severity:  models.SeverityError,
				Message:   "Kill switch activated",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO notifications`).
					WithArgs(now, "KILL_SWITCH", "error", "", "Kill switch activated", nil).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
			},
		},
		{
			name:  "database error",
			notif: &models.Notification{Timestamp: now, Type: "ERROR"},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO notifications`).WillReturnError(errors.New("database error"))
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

			err = NewNotificationRepository(db).Create(context.Background(), tt.notif)
			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if tt.notif.ID != 7 {
					t.Errorf("expected ID=7, got %d", tt.notif.ID)
				}
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestNotificationRepositoryGetRecent(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(notificationColumns).
		AddRow(2, now, "STOP_LOSS", "warn", "BTCUSDT", "Closed", `{"pnl":-150}`).
		AddRow(1, now.Add(-time.Minute), "OPEN", "info", "BTCUSDT", "Opened", nil)
	mock.ExpectQuery(`SELECT .+ FROM notifications ORDER BY timestamp DESC LIMIT`).
		WithArgs(10).
		WillReturnRows(rows)

	list, err := NewNotificationRepository(db).GetRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(list))
	}
	if list[0].Meta["pnl"] != -150.0 {
		t.Errorf("meta not decoded: %v", list[0].Meta)
	}
	if list[1].Meta != nil {
		t.Errorf("expected nil meta, got %v", list[1].Meta)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNotificationRepositoryGetByTypes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(`WHERE type IN \(\$1, \$2\) ORDER BY timestamp DESC LIMIT \$3`).
		WithArgs("GUARDRAIL", "KILL_SWITCH", 5).
		WillReturnRows(sqlmock.NewRows(notificationColumns))

	list, err := NewNotificationRepository(db).GetByTypes(context.Background(), []string{"GUARDRAIL", "KILL_SWITCH"}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d", len(list))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestNotificationRepositoryDeleteOlderThan(t *testing.T) {
	before := time.Now().Add(-30 * 24 * time.Hour)

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`DELETE FROM notifications WHERE timestamp <`).
		WithArgs(before).
		WillReturnResult(sqlmock.NewResult(0, 42))

	n, err := NewNotificationRepository(db).DeleteOlderThan(context.Background(), before)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 42 {
		t.Errorf("expected 42 deleted, got %d", n)
	}
}
