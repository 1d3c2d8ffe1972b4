package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// math.go - математические утилиты для риск-движка и позиций
//
// Все функции чистые и не паникуют: при некорректном входе
// возвращают безопасное значение (0 или исходное значение).

// RoundToLotSize округляет объём ВНИЗ до ближайшего кратного lotSize.
//
// Считается в decimal, чтобы не ловить артефакты float:
// math.Floor(0.3/0.1) даёт 2, а не 3.
//
// Примеры:
//   - RoundToLotSize(0.123456, 0.001) = 0.123
//   - RoundToLotSize(40.0, 0.1) = 40.0
//   - RoundToLotSize(100.5, 1.0) = 100.0
func RoundToLotSize(value, lotSize float64) float64 {
	if lotSize <= 0 || value <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	step := decimal.NewFromFloat(lotSize)
	steps := v.Div(step).Floor()
	out, _ := steps.Mul(step).Float64()
	return out
}

// RoundPrice округляет цену к ближайшему шагу tickSize
func RoundPrice(price, tickSize float64) float64 {
	if tickSize <= 0 || price <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	step := decimal.NewFromFloat(tickSize)
	out, _ := p.Div(step).Round(0).Mul(step).Float64()
	return out
}

// CalculatePNL расчитывает PNL позиции в валюте котировки.
//   - Long PNL = (P_close - P_open) × qty
//   - Short PNL = (P_open - P_close) × qty
func CalculatePNL(side string, entryPrice, currentPrice, quantity float64) float64 {
	if quantity <= 0 {
		return 0
	}

	switch side {
	case "long":
		return (currentPrice - entryPrice) * quantity
	case "short":
		return (entryPrice - currentPrice) * quantity
	default:
		return 0
	}
}

// StdDev возвращает выборочное стандартное отклонение.
// Для меньше чем двух значений возвращает 0.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(n-1))
}

// IsFinite проверяет что число не NaN и не Inf
func IsFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// Clamp ограничивает значение диапазоном [min, max].
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// ClampInt ограничивает целое значение диапазоном [min, max].
func ClampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
