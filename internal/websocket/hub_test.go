package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"futuresbot/internal/bot"
	"futuresbot/internal/models"
)

// ============================================================
// Unit Tests
// ============================================================

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := NewOriginChecker("http://localhost:3000, https://example.com")

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"https://example.com", true},
		{"http://evil.com", false},
		{"http://localhost:8080", false},
	}

	for _, tt := range tests {
		if got := checker.Check(tt.origin); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	for _, cfg := range []string{"", "*", "  "} {
		checker := NewOriginChecker(cfg)
		if !checker.Check("https://anything.example.org") {
			t.Errorf("NewOriginChecker(%q) should allow all", cfg)
		}
	}
}

func TestHub_BroadcastNonBlocking(t *testing.T) {
	// Run не запущен: очередь заполняется и лишнее отбрасывается
	hub := NewHub()

	for i := 0; i < broadcastBufferSize+10; i++ {
		hub.Broadcast(map[string]int{"i": i})
	}

	if got := hub.DroppedMessages(); got != 10 {
		t.Errorf("dropped = %d, want 10", got)
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub()

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	hub.Stop()
	hub.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Hub.Run() did not exit after Stop()")
	}

	// после Stop broadcast не блокирует и не считается отброшенным
	hub.BroadcastRaw([]byte(`{}`))
	if hub.DroppedMessages() != 0 {
		t.Error("broadcast after stop counted as dropped")
	}
}

func TestMessages(t *testing.T) {
	pm := NewPositionsMessage(nil)
	if pm.Type != MessageTypePositions || pm.Count != 0 || pm.Data == nil {
		t.Errorf("unexpected positions message: %+v", pm)
	}

	rm := NewRiskStateMessage(models.RiskState{Wins: 3, Losses: 1})
	if rm.Data.WinRate != 0.75 {
		t.Errorf("win rate = %v", rm.Data.WinRate)
	}

	data, err := encode(rm)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"type":"riskState"`) || !strings.Contains(s, `"win_rate":0.75`) || strings.HasSuffix(s, "\n") {
		t.Errorf("unexpected payload: %s", s)
	}
}

// ============================================================
// Integration with a real connection
// ============================================================

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]interface{}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestHub_StreamsToClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	conn := dial(t, hub)
	waitClients(t, hub, 1)

	hub.BroadcastPositions([]bot.PositionSnapshot{{Symbol: "BTCUSDT", Side: "long", State: bot.StateOpen}})
	msg := readMessage(t, conn)
	if msg["type"] != string(MessageTypePositions) || msg["count"] != 1.0 {
		t.Errorf("unexpected positions message: %v", msg)
	}

	hub.BroadcastNotification(models.NewNotification(models.NotificationTypeKillSwitch, models.SeverityError, "", "halt"))
	msg = readMessage(t, conn)
	data, _ := msg["data"].(map[string]interface{})
	if msg["type"] != string(MessageTypeNotification) || data["type"] != "KILL_SWITCH" {
		t.Errorf("unexpected notification message: %v", msg)
	}
}

func TestHub_PrimesNewClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	hub.BroadcastRiskState(models.RiskState{PeakBalance: 1000, KillSwitchActive: true})

	conn := dial(t, hub)
	msg := readMessage(t, conn)
	if msg["type"] != string(MessageTypeRiskState) {
		t.Fatalf("expected cached risk state first, got %v", msg)
	}
	data, _ := msg["data"].(map[string]interface{})
	if data["kill_switch_active"] != true {
		t.Errorf("unexpected risk payload: %v", data)
	}
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub()
	hub.SetAllowedOrigins("https://ops.example.com")
	go hub.Run()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	conn := dial(t, hub)
	waitClients(t, hub, 1)

	conn.Close()
	waitClients(t, hub, 0)
}

// ============================================================
// Parallel Stress Test
// ============================================================

func TestHub_ConcurrentOperations(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	var wg sync.WaitGroup
	const goroutines = 10
	const operations = 500

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < operations; j++ {
				if j%2 == 0 {
					hub.BroadcastRiskState(models.RiskState{Wins: j})
				} else {
					hub.Broadcast(map[string]int{"goroutine": id, "op": j})
				}
				_ = hub.ClientCount()
			}
		}(i)
	}

	wg.Wait()
}

// ============================================================
// Benchmarks
// ============================================================

func BenchmarkHub_BroadcastPositions(b *testing.B) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	positions := []bot.PositionSnapshot{
		{Symbol: "BTCUSDT", Side: "long", EntryPrice: 50000, Amount: 0.1, Leverage: 10},
		{Symbol: "ETHUSDT", Side: "short", EntryPrice: 3000, Amount: 1, Leverage: 5},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.BroadcastPositions(positions)
	}
}

func BenchmarkOriginChecker_Check(b *testing.B) {
	checker := NewOriginChecker("http://localhost:3000")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		checker.Check("http://localhost:3000")
	}
}
