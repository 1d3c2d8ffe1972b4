package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"futuresbot/internal/bot"
	"futuresbot/internal/models"
)

// Ошибки сервиса
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNoTradeStore   = errors.New("trade journal not configured")
)

// RiskService - операции оператора над риск-движком и реестром позиций.
//
// Вся логика риска живет в пакете bot; сервис только валидирует
// запросы API/CLI и сохраняет состояние после ручных изменений.
type RiskService struct {
	engine *bot.Engine
	trades TradeStore
}

// NewRiskService создает сервис. trades может быть nil.
func NewRiskService(engine *bot.Engine, trades TradeStore) *RiskService {
	return &RiskService{engine: engine, trades: trades}
}

// RiskOverview - ответ GET /api/v1/risk
type RiskOverview struct {
	State         models.RiskState `json:"state"`
	WinRate       float64          `json:"win_rate"`
	OpenPositions int              `json:"open_positions"`
	MaxPositions  int              `json:"max_positions"`
	MaxLeverage   int              `json:"max_leverage"`
	Running       bool             `json:"running"`
}

// GetOverview возвращает снимок состояния риска
func (s *RiskService) GetOverview() RiskOverview {
	state := s.engine.Risk().Snapshot()
	cfg := s.engine.Risk().Config()
	return RiskOverview{
		State:         state,
		WinRate:       state.WinRate(),
		OpenPositions: s.engine.Ledger().Count(),
		MaxPositions:  cfg.MaxOpenPositions,
		MaxLeverage:   cfg.MaxLeverage,
		Running:       s.engine.Running(),
	}
}

// ActivateKillSwitch включает kill switch вручную и сохраняет состояние
func (s *RiskService) ActivateKillSwitch(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "manual"
	}
	s.engine.Risk().ActivateKillSwitch(reason)
	return s.engine.SaveState(ctx)
}

// DeactivateKillSwitch выключает kill switch и сохраняет состояние
func (s *RiskService) DeactivateKillSwitch(ctx context.Context) error {
	s.engine.Risk().DeactivateKillSwitch()
	return s.engine.SaveState(ctx)
}

// GetPositions возвращает позиции реестра, отсортированные по символу
func (s *RiskService) GetPositions() []bot.PositionSnapshot {
	return s.engine.Ledger().Positions()
}

// GetPosition возвращает позицию по символу
func (s *RiskService) GetPosition(symbol string) (bot.PositionSnapshot, error) {
	p, ok := s.engine.Ledger().Get(normalizeSymbol(symbol))
	if !ok {
		return bot.PositionSnapshot{}, bot.ErrPositionNotFound
	}
	return p, nil
}

// ManualTradeRequest - ручное открытие позиции (POST /api/v1/positions).
// Проходит те же гардрейлы, что и сделки сканера.
type ManualTradeRequest struct {
	Symbol     string             `json:"symbol"`
	Side       string             `json:"side"`
	Confidence float64            `json:"confidence"`
	Leverage   int                `json:"leverage,omitempty"`
	StopLoss   float64            `json:"stop_loss,omitempty"`
	TakeProfit float64            `json:"take_profit,omitempty"`
	Indicators *models.Indicators `json:"indicators,omitempty"`
}

// Validate проверяет запрос
func (r *ManualTradeRequest) Validate() error {
	r.Symbol = normalizeSymbol(r.Symbol)
	r.Side = strings.ToLower(strings.TrimSpace(r.Side))
	switch {
	case r.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	case !models.IsValidSide(r.Side):
		return fmt.Errorf("%w: side must be long or short", ErrInvalidRequest)
	case r.Confidence < 0 || r.Confidence > 1:
		return fmt.Errorf("%w: confidence must be in [0, 1]", ErrInvalidRequest)
	case r.Leverage < 0 || r.StopLoss < 0 || r.TakeProfit < 0:
		return fmt.Errorf("%w: leverage and price levels must not be negative", ErrInvalidRequest)
	}
	return nil
}

// OpenPosition открывает позицию через движок.
// Отказ гардрейла возвращается в Decision, не в error.
func (s *RiskService) OpenPosition(ctx context.Context, req ManualTradeRequest) (bot.PositionSnapshot, bot.Decision, error) {
	if err := req.Validate(); err != nil {
		return bot.PositionSnapshot{}, bot.Decision{}, err
	}
	confidence := req.Confidence
	if confidence == 0 {
		confidence = 0.5
	}
	return s.engine.OpenTrade(ctx, bot.TradeIntent{
		Symbol:     req.Symbol,
		Side:       req.Side,
		Confidence: confidence,
		Indicators: req.Indicators,
		Leverage:   req.Leverage,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	})
}

// ClosePosition закрывает позицию вручную
func (s *RiskService) ClosePosition(ctx context.Context, symbol string) (*models.TradeRecord, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	return s.engine.ClosePosition(ctx, symbol, bot.CloseManual)
}

// GetTrades возвращает последние закрытые сделки
func (s *RiskService) GetTrades(ctx context.Context, limit int) ([]*models.TradeRecord, error) {
	if s.trades == nil {
		return nil, ErrNoTradeStore
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	return s.trades.GetRecent(ctx, limit)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
