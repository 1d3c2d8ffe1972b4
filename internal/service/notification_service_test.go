package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"futuresbot/internal/models"
)

func TestCreateNotification(t *testing.T) {
	tests := []struct {
		name            string
		muted           []string
		notif           *models.Notification
		createErr       error
		expectError     bool
		expectStored    int
		expectBroadcast int
	}{
		{
			name:            "stored and broadcast",
			notif:           models.NewNotification("guardrail", models.SeverityWarn, "BTCUSDT", "blocked"),
			expectStored:    1,
			expectBroadcast: 1,
		},
		{
			name:  "muted type only logged",
			muted: []string{" open "},
			notif: models.NewNotification(models.NotificationTypeOpen, models.SeverityInfo, "BTCUSDT", "opened"),
		},
		{
			name:        "store error not broadcast",
			notif:       models.NewNotification(models.NotificationTypeError, models.SeverityError, "", "boom"),
			createErr:   errors.New("database error"),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMockNotificationStore()
			store.createErr = tt.createErr
			hub := &MockBroadcaster{}

			svc := NewNotificationService(store, tt.muted)
			svc.SetWebSocketHub(hub)

			err := svc.CreateNotification(context.Background(), tt.notif)
			if tt.expectError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if store.Count() != tt.expectStored {
				t.Errorf("stored %d, want %d", store.Count(), tt.expectStored)
			}
			if hub.Count() != tt.expectBroadcast {
				t.Errorf("broadcast %d, want %d", hub.Count(), tt.expectBroadcast)
			}
		})
	}
}

func TestCreateNotification_NormalizesType(t *testing.T) {
	store := NewMockNotificationStore()
	svc := NewNotificationService(store, nil)

	n := &models.Notification{Type: "kill_switch", Severity: models.SeverityError}
	if err := svc.CreateNotification(context.Background(), n); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Type != models.NotificationTypeKillSwitch {
		t.Errorf("type = %q", n.Type)
	}
	if n.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestGetNotifications(t *testing.T) {
	store := NewMockNotificationStore()
	svc := NewNotificationService(store, nil)
	ctx := context.Background()

	for _, typ := range []string{
		models.NotificationTypeOpen,
		models.NotificationTypeGuardrail,
		models.NotificationTypeStopLoss,
		models.NotificationTypeGuardrail,
	} {
		if err := svc.CreateNotification(ctx, models.NewNotification(typ, models.SeverityInfo, "BTCUSDT", typ)); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name      string
		types     []string
		limit     int
		wantCount int
	}{
		{"all types", nil, 0, 4},
		{"limit", nil, 2, 2},
		{"filter lower case", []string{"guardrail"}, 10, 2},
		{"two types", []string{"OPEN", "STOP_LOSS"}, 10, 2},
		{"unknown type only", []string{"PAUSE"}, 10, 0},
		{"unknown type ignored", []string{"PAUSE", "OPEN"}, 10, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := svc.GetNotifications(ctx, tt.types, tt.limit)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(list) != tt.wantCount {
				t.Errorf("got %d notifications, want %d", len(list), tt.wantCount)
			}
		})
	}
}

func TestGetNotifications_InMemory(t *testing.T) {
	svc := NewNotificationService(nil, nil)
	ctx := context.Background()

	for i := 0; i < maxNotificationLimit+20; i++ {
		_ = svc.CreateNotification(ctx, models.NewNotification(models.NotificationTypeGuardrail, models.SeverityWarn, "", "x"))
	}
	_ = svc.CreateNotification(ctx, models.NewNotification(models.NotificationTypeKillSwitch, models.SeverityError, "", "last"))

	list, err := svc.GetNotifications(ctx, nil, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != maxNotificationLimit {
		t.Errorf("got %d, want %d", len(list), maxNotificationLimit)
	}
	if list[0].Message != "last" {
		t.Errorf("newest first expected, got %q", list[0].Message)
	}

	ks, _ := svc.GetNotifications(ctx, []string{"KILL_SWITCH"}, 10)
	if len(ks) != 1 {
		t.Errorf("filtered in-memory = %d, want 1", len(ks))
	}
}

func TestNotificationService_Run(t *testing.T) {
	store := NewMockNotificationStore()
	hub := &MockBroadcaster{}
	svc := NewNotificationService(store, nil)
	svc.SetWebSocketHub(hub)

	ch := make(chan *models.Notification, 10)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx, ch)
		close(done)
	}()

	ch <- models.NewNotification(models.NotificationTypeOpen, models.SeverityInfo, "BTCUSDT", "opened")
	ch <- nil
	ch <- models.NewNotification(models.NotificationTypeStopLoss, models.SeverityWarn, "BTCUSDT", "closed")

	deadline := time.Now().Add(time.Second)
	for store.Count() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if store.Count() != 2 || hub.Count() != 2 {
		t.Errorf("stored %d, broadcast %d; want 2, 2", store.Count(), hub.Count())
	}
}

func TestNotificationService_RunDrainsOnCancel(t *testing.T) {
	store := NewMockNotificationStore()
	svc := NewNotificationService(store, nil)

	ch := make(chan *models.Notification, 10)
	for i := 0; i < 3; i++ {
		ch <- models.NewNotification(models.NotificationTypeGuardrail, models.SeverityWarn, "", "x")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.Run(ctx, ch)

	if store.Count() != 3 {
		t.Errorf("drained %d, want 3", store.Count())
	}
}

func TestCleanupOlderThan(t *testing.T) {
	store := NewMockNotificationStore()
	svc := NewNotificationService(store, nil)
	ctx := context.Background()

	old := models.NewNotification(models.NotificationTypeOpen, models.SeverityInfo, "", "old")
	old.Timestamp = time.Now().Add(-48 * time.Hour)
	_ = svc.CreateNotification(ctx, old)
	_ = svc.CreateNotification(ctx, models.NewNotification(models.NotificationTypeOpen, models.SeverityInfo, "", "new"))

	n, err := svc.CleanupOlderThan(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 || store.Count() != 1 {
		t.Errorf("deleted %d, left %d", n, store.Count())
	}

	store.deleteErr = errors.New("locked")
	if _, err := svc.CleanupOlderThan(ctx, time.Hour); err == nil {
		t.Error("expected error")
	}

	if n, err := NewNotificationService(nil, nil).CleanupOlderThan(ctx, time.Hour); n != 0 || err != nil {
		t.Errorf("without store = %d, %v", n, err)
	}
}
