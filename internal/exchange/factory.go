package exchange

import (
	"fmt"
	"strings"
)

// SupportedGateways - список поддерживаемых шлюзов
var SupportedGateways = []string{
	"paper",
}

// NewGateway создает шлюз по имени
func NewGateway(name string, startBalance float64) (Gateway, error) {
	name = strings.ToLower(strings.TrimSpace(name))

	switch name {
	case "paper", "":
		return NewPaperGateway(startBalance), nil
	default:
		return nil, fmt.Errorf("unsupported gateway: %s", name)
	}
}

// IsSupported проверяет, поддерживается ли шлюз
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedGateways {
		if name == supported {
			return true
		}
	}
	return false
}
