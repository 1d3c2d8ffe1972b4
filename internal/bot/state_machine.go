package bot

import (
	"errors"
	"fmt"
)

// PositionState - состояние позиции в реестре
type PositionState string

// Состояния позиции (state machine)
const (
	StatePending   PositionState = "PENDING"   // место зарезервировано, ордер еще не исполнен
	StateOpen      PositionState = "OPEN"      // позиция открыта, трейлинг не активен
	StateTrailing  PositionState = "TRAILING"  // трейлинг-стоп активирован
	StateClosed    PositionState = "CLOSED"    // позиция закрыта (причина в CloseReason)
	StateCancelled PositionState = "CANCELLED" // ордер не прошел, резерв снят
)

// ErrInvalidTransition - недопустимый переход состояния
var ErrInvalidTransition = errors.New("invalid position state transition")

// ValidTransitions определяет допустимые переходы между состояниями
var ValidTransitions = map[PositionState][]PositionState{
	StatePending:  {StateOpen, StateCancelled},
	StateOpen:     {StateTrailing, StateClosed},
	StateTrailing: {StateClosed}, // трейлинг не выключается
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to PositionState) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to PositionState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}
	return nil
}

// StateInfo возвращает описание состояния для UI
func StateInfo(s PositionState) string {
	switch s {
	case StatePending:
		return "Ожидание исполнения ордера"
	case StateOpen:
		return "Позиция открыта"
	case StateTrailing:
		return "Позиция открыта, трейлинг-стоп активен"
	case StateClosed:
		return "Позиция закрыта"
	case StateCancelled:
		return "Открытие отменено"
	default:
		return "Неизвестное состояние"
	}
}

// IsLive возвращает true если позиция открыта на бирже
func IsLive(s PositionState) bool {
	return s == StateOpen || s == StateTrailing
}

// IsTerminal возвращает true для конечных состояний
func IsTerminal(s PositionState) bool {
	return s == StateClosed || s == StateCancelled
}
