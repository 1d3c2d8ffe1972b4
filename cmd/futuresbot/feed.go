package main

import (
	"futuresbot/internal/exchange"
	"futuresbot/internal/models"
	"futuresbot/internal/service"
)

// paperFeed публикует сигнал и переносит цену закрытия из индикаторов
// в бумажную биржу: без внешней биржи это единственный источник цен
type paperFeed struct {
	*service.SignalBoard
	gw *exchange.PaperGateway
}

func (f paperFeed) Post(symbol string, ind *models.Indicators, res models.SignalResult) {
	if ind != nil && ind.Close > 0 {
		f.gw.SetPrice(symbol, ind.Close)
	}
	f.SignalBoard.Post(symbol, ind, res)
}
