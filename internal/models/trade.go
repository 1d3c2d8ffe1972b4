package models

import "time"

// TradeRecord - запись журнала закрытых сделок
type TradeRecord struct {
	ID           string    `json:"id" db:"id"` // ULID позиции
	Symbol       string    `json:"symbol" db:"symbol"`
	Side         string    `json:"side" db:"side"` // long, short
	EntryPrice   float64   `json:"entry_price" db:"entry_price"`
	ExitPrice    float64   `json:"exit_price" db:"exit_price"`
	Amount       float64   `json:"amount" db:"amount"`
	Leverage     int       `json:"leverage" db:"leverage"`
	PnLPct       float64   `json:"pnl_pct" db:"pnl_pct"`             // изменение цены, без плеча
	LeveragedPnL float64   `json:"leveraged_pnl" db:"leveraged_pnl"` // с учетом плеча (ROI на маржу)
	PnL          float64   `json:"pnl" db:"pnl"`                     // в валюте котировки
	CloseReason  string    `json:"close_reason" db:"close_reason"`
	OpenedAt     time.Time `json:"opened_at" db:"opened_at"`
	ClosedAt     time.Time `json:"closed_at" db:"closed_at"`
}

// Position sides
const (
	SideLong  = "long"
	SideShort = "short"
)

// IsValidSide проверяет сторону позиции
func IsValidSide(side string) bool {
	return side == SideLong || side == SideShort
}
