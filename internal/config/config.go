package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"futuresbot/internal/bot"
	"futuresbot/internal/exchange"
	"futuresbot/pkg/crypto"
)

// Драйверы хранилища
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
	DriverFile     = "file" // только состояние риска в JSON, без журнала сделок
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Security      SecurityConfig
	Bot           BotConfig
	Logging       LoggingConfig
	Notifications NotificationConfig
}

// ServerConfig - настройки HTTP API
type ServerConfig struct {
	Port            int
	Host            string
	CORSOrigins     string  // через запятую; пусто = только dev-адреса
	RateLimit       float64 // запросов в секунду на IP, 0 = без лимита
	RateBurst       float64
	ShutdownTimeout time.Duration
}

// DatabaseConfig - настройки хранилища
type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      int
	Name      string
	User      string
	Password  string
	SSLMode   string
	Path      string // файл sqlite
	StateFile string // файл состояния для DB_DRIVER=file
}

// SecurityConfig - доступ к API
type SecurityConfig struct {
	APITokenHash string // bcrypt хеш токена; пусто = без авторизации
}

// BotConfig - параметры торгового движка
type BotConfig struct {
	Exchange     string
	Symbols      []string
	PaperBalance float64

	MonitorInterval   time.Duration
	ScanInterval      time.Duration
	ScannerStartDelay time.Duration
	GatewayTimeout    time.Duration

	// лимит запросов к бирже
	ExchangeRate  float64
	ExchangeBurst float64

	MinConfidence   float64
	RiskRewardRatio float64
	TrailingPct     float64
	SignalTTL       time.Duration

	// YAML с параметрами риска и выхода
	RiskFile string
	Risk     bot.RiskConfig
	Position bot.PositionConfig
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// NotificationConfig - журнал событий
type NotificationConfig struct {
	Muted     []string      // типы, которые не сохраняются и не рассылаются
	Retention time.Duration // 0 = хранить всегда
}

// Load загружает конфигурацию из переменных окружения
// и, если задан RISK_CONFIG_FILE, из YAML файла
func Load() (*Config, error) {
	defaults := bot.DefaultEngineConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			CORSOrigins:     getEnv("CORS_ORIGINS", ""),
			RateLimit:       getEnvAsFloat("API_RATE_LIMIT", 10),
			RateBurst:       getEnvAsFloat("API_RATE_BURST", 20),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Driver:    getEnv("DB_DRIVER", DriverFile),
			Host:      getEnv("DB_HOST", "localhost"),
			Port:      getEnvAsInt("DB_PORT", 5432),
			Name:      getEnv("DB_NAME", "futuresbot"),
			User:      getEnv("DB_USER", "user"),
			Password:  getEnv("DB_PASSWORD", "password"),
			SSLMode:   getEnv("DB_SSL_MODE", "disable"),
			Path:      getEnv("DB_PATH", "./futuresbot.sqlite"),
			StateFile: getEnv("STATE_FILE", "./data/risk_state.json"),
		},
		Security: SecurityConfig{
			APITokenHash: getEnv("API_TOKEN_HASH", ""),
		},
		Bot: BotConfig{
			Exchange:     getEnv("EXCHANGE", "paper"),
			Symbols:      getEnvAsList("SYMBOLS", []string{"BTCUSDT", "ETHUSDT"}),
			PaperBalance: getEnvAsFloat("PAPER_BALANCE", 10000),

			MonitorInterval:   getEnvAsDuration("MONITOR_INTERVAL", defaults.MonitorInterval),
			ScanInterval:      getEnvAsDuration("SCAN_INTERVAL", defaults.ScanInterval),
			ScannerStartDelay: getEnvAsDuration("SCANNER_START_DELAY", defaults.ScannerStartDelay),
			GatewayTimeout:    getEnvAsDuration("GATEWAY_TIMEOUT", defaults.GatewayTimeout),

			ExchangeRate:  getEnvAsFloat("EXCHANGE_RATE_LIMIT", 10),
			ExchangeBurst: getEnvAsFloat("EXCHANGE_RATE_BURST", 20),

			MinConfidence:   getEnvAsFloat("MIN_CONFIDENCE", defaults.MinConfidence),
			RiskRewardRatio: getEnvAsFloat("RISK_REWARD_RATIO", defaults.RiskRewardRatio),
			TrailingPct:     getEnvAsFloat("TRAILING_PCT", defaults.TrailingPct),
			SignalTTL:       getEnvAsDuration("SIGNAL_TTL", time.Minute),

			RiskFile: getEnv("RISK_CONFIG_FILE", ""),
			Risk:     bot.DefaultRiskConfig(),
			Position: bot.DefaultPositionConfig(),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", ""),
		},
		Notifications: NotificationConfig{
			Muted:     getEnvAsList("MUTED_NOTIFICATIONS", nil),
			Retention: getEnvAsDuration("NOTIFICATION_RETENTION", 30*24*time.Hour),
		},
	}

	if cfg.Bot.RiskFile != "" {
		if err := cfg.loadRiskFile(cfg.Bot.RiskFile); err != nil {
			return nil, err
		}
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// riskFile - структура YAML файла параметров
type riskFile struct {
	Risk     *bot.RiskConfig     `yaml:"risk"`
	Position *bot.PositionConfig `yaml:"position"`
	Engine   *struct {
		Symbols         []string `yaml:"symbols"`
		MinConfidence   *float64 `yaml:"min_confidence"`
		RiskRewardRatio *float64 `yaml:"risk_reward_ratio"`
		TrailingPct     *float64 `yaml:"trailing_pct"`
	} `yaml:"engine"`
}

// loadRiskFile накладывает YAML поверх значений по умолчанию:
// отсутствующие в файле ключи сохраняют текущие значения
func (c *Config) loadRiskFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read risk config %s: %w", path, err)
	}

	f := riskFile{Risk: &c.Bot.Risk, Position: &c.Bot.Position}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse risk config %s: %w", path, err)
	}

	if e := f.Engine; e != nil {
		if len(e.Symbols) > 0 {
			c.Bot.Symbols = normalizeSymbols(e.Symbols)
		}
		if e.MinConfidence != nil {
			c.Bot.MinConfidence = *e.MinConfidence
		}
		if e.RiskRewardRatio != nil {
			c.Bot.RiskRewardRatio = *e.RiskRewardRatio
		}
		if e.TrailingPct != nil {
			c.Bot.TrailingPct = *e.TrailingPct
		}
	}
	return nil
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	if c.Security.APITokenHash == "" {
		return nil
	}
	if err := crypto.ValidateHash(c.Security.APITokenHash); err != nil {
		return fmt.Errorf("API_TOKEN_HASH must be a bcrypt hash (use `futuresbot hash-token`): %w", err)
	}
	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
		}
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for sqlite3")
		}
	case DriverFile:
		if c.Database.StateFile == "" {
			return fmt.Errorf("STATE_FILE is required for file storage")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of postgres, sqlite3, file; got %q", c.Database.Driver)
	}

	if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
		return fmt.Errorf("API_RATE_LIMIT and API_RATE_BURST cannot be negative")
	}

	if !exchange.IsSupported(c.Bot.Exchange) {
		return fmt.Errorf("EXCHANGE %q is not supported (available: %s)",
			c.Bot.Exchange, strings.Join(exchange.SupportedGateways, ", "))
	}

	if len(c.Bot.Symbols) == 0 {
		return fmt.Errorf("SYMBOLS must list at least one symbol")
	}

	if c.Bot.PaperBalance <= 0 {
		return fmt.Errorf("PAPER_BALANCE must be positive, got %v", c.Bot.PaperBalance)
	}

	// таймауты и интервалы должны быть положительными
	for name, d := range map[string]time.Duration{
		"MONITOR_INTERVAL": c.Bot.MonitorInterval,
		"SCAN_INTERVAL":    c.Bot.ScanInterval,
		"GATEWAY_TIMEOUT":  c.Bot.GatewayTimeout,
		"SHUTDOWN_TIMEOUT": c.Server.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}

	if c.Bot.ScannerStartDelay < 0 {
		return fmt.Errorf("SCANNER_START_DELAY cannot be negative, got %v", c.Bot.ScannerStartDelay)
	}

	if c.Bot.ExchangeRate < 0 || c.Bot.ExchangeBurst < 0 {
		return fmt.Errorf("EXCHANGE_RATE_LIMIT and EXCHANGE_RATE_BURST cannot be negative")
	}

	if c.Bot.MinConfidence < 0 || c.Bot.MinConfidence > 1 {
		return fmt.Errorf("MIN_CONFIDENCE must be between 0 and 1, got %v", c.Bot.MinConfidence)
	}

	if c.Bot.RiskRewardRatio <= 0 {
		return fmt.Errorf("RISK_REWARD_RATIO must be positive, got %v", c.Bot.RiskRewardRatio)
	}

	if c.Bot.TrailingPct <= 0 || c.Bot.TrailingPct >= 1 {
		return fmt.Errorf("TRAILING_PCT must be between 0 and 1, got %v", c.Bot.TrailingPct)
	}

	if c.Notifications.Retention < 0 {
		return fmt.Errorf("NOTIFICATION_RETENTION cannot be negative, got %v", c.Notifications.Retention)
	}

	if err := c.Bot.Risk.Validate(); err != nil {
		return fmt.Errorf("risk config: %w", err)
	}

	return nil
}

// EngineConfig собирает параметры циклов движка
func (b BotConfig) EngineConfig() bot.EngineConfig {
	return bot.EngineConfig{
		Symbols:           b.Symbols,
		MonitorInterval:   b.MonitorInterval,
		ScanInterval:      b.ScanInterval,
		ScannerStartDelay: b.ScannerStartDelay,
		GatewayTimeout:    b.GatewayTimeout,
		TrailingPct:       b.TrailingPct,
		MinConfidence:     b.MinConfidence,
		RiskRewardRatio:   b.RiskRewardRatio,
	}
}

// DSN возвращает строку подключения для драйвера
func (d DatabaseConfig) DSN() string {
	if d.Driver == DriverSQLite {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	if d.Driver == DriverSQLite {
		return d.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList читает список через запятую
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	return normalizeSymbols(strings.Split(valueStr, ","))
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
