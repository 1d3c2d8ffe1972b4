package bot

import (
	"math"
	"strings"
)

// groupOther - группа для активов вне определенных групп корреляции
const groupOther = "other"

// DefaultCorrelationGroups возвращает группы корреляции по умолчанию
func DefaultCorrelationGroups() map[string][]string {
	return map[string][]string{
		"majors":   {"BTC", "ETH"},
		"layer1":   {"SOL", "AVAX", "ADA", "DOT", "NEAR", "ATOM", "APT", "SUI"},
		"layer2":   {"ARB", "OP", "MATIC", "POL", "STRK", "IMX"},
		"defi":     {"UNI", "AAVE", "LINK", "MKR", "CRV", "LDO", "SNX"},
		"meme":     {"DOGE", "SHIB", "PEPE", "WIF", "BONK", "FLOKI"},
		"exchange": {"BNB", "OKB", "CRO", "GT"},
	}
}

func indexGroups(groups map[string][]string) map[string]string {
	idx := make(map[string]string)
	for name, assets := range groups {
		for _, a := range assets {
			idx[strings.ToUpper(strings.TrimSpace(a))] = name
		}
	}
	return idx
}

// котируемые валюты, которые срезаются с конца символа
var quoteSuffixes = []string{"USDT", "USDC", "BUSD", "USD"}

// BaseAsset извлекает базовый актив из символа:
// "BTC/USDT:USDT" -> BTC, "ETHUSDT" -> ETH, "sol-usdt" -> SOL, "1000PEPEUSDT" -> PEPE
func BaseAsset(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, "/-_:"); i > 0 {
		s = s[:i]
	} else {
		if len(s) > 4 {
			s = strings.TrimSuffix(s, "PERP")
		}
		for _, q := range quoteSuffixes {
			if len(s) > len(q) && strings.HasSuffix(s, q) {
				s = strings.TrimSuffix(s, q)
				break
			}
		}
	}
	// контракты с множителем: 1000PEPE, 1000000BONK
	if strings.HasPrefix(s, "1000") {
		trimmed := strings.TrimLeft(strings.TrimPrefix(s, "1"), "0")
		if trimmed != "" {
			s = trimmed
		}
	}
	return s
}

// CorrelationGroup возвращает группу корреляции символа или "other"
func (e *RiskEngine) CorrelationGroup(symbol string) string {
	if g, ok := e.groupOf[BaseAsset(symbol)]; ok {
		return g
	}
	return groupOther
}

// CheckPortfolioDiversification отклоняет символ, если в его группе уже
// max(MinGroupPositions, floor(len(open)×limit)) позиций или больше.
// Лимит считается от фактического числа открытых позиций, не от максимума.
func (e *RiskEngine) CheckPortfolioDiversification(newSymbol string, openSymbols []string) Decision {
	group := e.CorrelationGroup(newSymbol)

	count := 0
	for _, s := range openSymbols {
		if e.CorrelationGroup(s) == group {
			count++
		}
	}

	limit := e.config.ConcentrationLimit
	if group == groupOther {
		limit = e.config.OtherConcentrationLimit
	}
	maxInGroup := int(math.Floor(float64(len(openSymbols)) * limit))
	if maxInGroup < e.config.MinGroupPositions {
		maxInGroup = e.config.MinGroupPositions
	}

	if count >= maxInGroup {
		return block(ReasonConcentration,
			"group %s already has %d of %d open positions (max %d at %s)",
			group, count, len(openSymbols), maxInGroup, formatPct(limit))
	}
	return allow(ReasonAllowed, "group "+group)
}
