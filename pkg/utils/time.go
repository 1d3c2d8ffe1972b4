package utils

import (
	"time"
)

// time.go - утилиты для работы со временем
//
// Торговый день считается по UTC. Дневные счетчики убытка
// сбрасываются при смене даты (см. bot.RiskEngine).

// TradingDateLayout - формат хранения торговой даты
const TradingDateLayout = "2006-01-02"

// TradingDate возвращает торговую дату (UTC) в формате YYYY-MM-DD
func TradingDate(t time.Time) string {
	return t.UTC().Format(TradingDateLayout)
}
