package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"futuresbot/pkg/crypto"
)

var envKeys = []string{
	"SERVER_PORT", "SERVER_HOST", "CORS_ORIGINS", "API_RATE_LIMIT", "API_RATE_BURST", "SHUTDOWN_TIMEOUT",
	"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD", "DB_SSL_MODE", "DB_PATH", "STATE_FILE",
	"API_TOKEN_HASH", "EXCHANGE", "SYMBOLS", "PAPER_BALANCE", "MONITOR_INTERVAL", "SCAN_INTERVAL", "SCANNER_START_DELAY",
	"GATEWAY_TIMEOUT", "EXCHANGE_RATE_LIMIT", "EXCHANGE_RATE_BURST", "MIN_CONFIDENCE", "RISK_REWARD_RATIO",
	"TRAILING_PCT", "SIGNAL_TTL", "RISK_CONFIG_FILE", "LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT",
	"MUTED_NOTIFICATIONS", "NOTIFICATION_RETENTION",
}

// clearEnv сбрасывает переменные окружения на время теста
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Driver != DriverFile {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, DriverFile)
	}
	if len(cfg.Bot.Symbols) != 2 || cfg.Bot.Symbols[0] != "BTCUSDT" {
		t.Errorf("Bot.Symbols = %v", cfg.Bot.Symbols)
	}
	if cfg.Bot.Risk.MaxOpenPositions != 10 {
		t.Errorf("Risk.MaxOpenPositions = %d, want 10", cfg.Bot.Risk.MaxOpenPositions)
	}
	if cfg.Notifications.Retention != 30*24*time.Hour {
		t.Errorf("Notifications.Retention = %v", cfg.Notifications.Retention)
	}

	ec := cfg.Bot.EngineConfig()
	if ec.ScanInterval != 30*time.Second || ec.MinConfidence != 0.55 {
		t.Errorf("EngineConfig() = %+v", ec)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_PATH", "/tmp/bot.sqlite")
	t.Setenv("SYMBOLS", " solusdt, ,xrpusdt ")
	t.Setenv("MUTED_NOTIFICATIONS", "stale,open")
	t.Setenv("SCAN_INTERVAL", "5s")
	t.Setenv("PAPER_BALANCE", "2500.5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if got := cfg.Database.DSN(); got != "/tmp/bot.sqlite" {
		t.Errorf("DSN() = %q", got)
	}
	want := []string{"SOLUSDT", "XRPUSDT"}
	if len(cfg.Bot.Symbols) != len(want) {
		t.Fatalf("Symbols = %v, want %v", cfg.Bot.Symbols, want)
	}
	for i := range want {
		if cfg.Bot.Symbols[i] != want[i] {
			t.Errorf("Symbols[%d] = %q, want %q", i, cfg.Bot.Symbols[i], want[i])
		}
	}
	if len(cfg.Notifications.Muted) != 2 || cfg.Notifications.Muted[0] != "STALE" {
		t.Errorf("Muted = %v", cfg.Notifications.Muted)
	}
	if cfg.Bot.ScanInterval != 5*time.Second {
		t.Errorf("ScanInterval = %v", cfg.Bot.ScanInterval)
	}
	if cfg.Bot.PaperBalance != 2500.5 {
		t.Errorf("PaperBalance = %v", cfg.Bot.PaperBalance)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"port out of range", map[string]string{"SERVER_PORT": "70000"}},
		{"unknown driver", map[string]string{"DB_DRIVER": "mongo"}},
		{"zero balance", map[string]string{"PAPER_BALANCE": "0"}},
		{"confidence above one", map[string]string{"MIN_CONFIDENCE": "1.5"}},
		{"negative rate limit", map[string]string{"API_RATE_LIMIT": "-1"}},
		{"zero monitor interval", map[string]string{"MONITOR_INTERVAL": "0s"}},
		{"trailing too wide", map[string]string{"TRAILING_PCT": "1"}},
		{"unsupported exchange", map[string]string{"EXCHANGE": "binance"}},
		{"token hash not bcrypt", map[string]string{"API_TOKEN_HASH": "plain-token"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load() expected error, got nil")
			}
		})
	}
}

func TestLoad_TokenHash(t *testing.T) {
	clearEnv(t)
	hash, err := crypto.HashTokenWithCost("secret", bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("API_TOKEN_HASH", hash)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Security.APITokenHash != hash {
		t.Error("APITokenHash not loaded")
	}
}

func TestLoad_RiskFile(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "risk.yaml")
	content := `
risk:
  max_open_positions: 4
  max_leverage: 10
  correlation_groups:
    memes: [DOGEUSDT, PEPEUSDT]
position:
  emergency_loss_pct: 0.5
  stale_rules:
    - age: 6h
      min_pnl: -0.01
      max_pnl: 0.01
engine:
  symbols: [dogeusdt]
  min_confidence: 0.7
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RISK_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	r := cfg.Bot.Risk
	if r.MaxOpenPositions != 4 || r.MaxLeverage != 10 {
		t.Errorf("risk overrides not applied: %+v", r)
	}
	// ключи, которых нет в файле, сохраняют значения по умолчанию
	if r.RiskPerTrade != 0.02 || r.MinLeverage != 3 {
		t.Errorf("defaults lost: risk_per_trade=%v min_leverage=%d", r.RiskPerTrade, r.MinLeverage)
	}
	if got := r.CorrelationGroups["memes"]; len(got) != 2 {
		t.Errorf("correlation group memes = %v", got)
	}

	p := cfg.Bot.Position
	if p.EmergencyLossPct != 0.5 {
		t.Errorf("EmergencyLossPct = %v", p.EmergencyLossPct)
	}
	if len(p.StaleRules) != 1 || p.StaleRules[0].Age != 6*time.Hour {
		t.Errorf("StaleRules = %+v", p.StaleRules)
	}
	if p.DefaultTrailingPct != 0.02 {
		t.Errorf("DefaultTrailingPct = %v", p.DefaultTrailingPct)
	}

	if len(cfg.Bot.Symbols) != 1 || cfg.Bot.Symbols[0] != "DOGEUSDT" {
		t.Errorf("Symbols = %v", cfg.Bot.Symbols)
	}
	if cfg.Bot.MinConfidence != 0.7 {
		t.Errorf("MinConfidence = %v", cfg.Bot.MinConfidence)
	}
}

func TestLoad_RiskFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("RISK_CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yaml"))
		if _, err := Load(); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("invalid risk values", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "risk.yaml")
		if err := os.WriteFile(path, []byte("risk:\n  risk_per_trade: 2\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("RISK_CONFIG_FILE", path)
		if _, err := Load(); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "risk.yaml")
		if err := os.WriteFile(path, []byte("risk: [unclosed\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("RISK_CONFIG_FILE", path)
		if _, err := Load(); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{
		Driver: DriverPostgres, Host: "db", Port: 5432, Name: "bot",
		User: "u", Password: "p", SSLMode: "disable",
	}
	if got := d.DSN(); got != "host=db port=5432 user=u password=p dbname=bot sslmode=disable" {
		t.Errorf("DSN() = %q", got)
	}
	if got := d.DSNWithoutPassword(); got != "host=db port=5432 user=u dbname=bot sslmode=disable" {
		t.Errorf("DSNWithoutPassword() = %q", got)
	}
}
