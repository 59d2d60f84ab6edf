package exchange

import (
	"context"
	"time"

	"crossbot/internal/models"
)

// Meta — биржевые особенности, вынесенные из управляющей логики в
// конфигурацию адаптера: маржа, исключённые активы, регистр типа ордера.
type Meta struct {
	Title    string
	Quote    string   // котировочная валюта: USDT, USD
	Excluded []string // активы вне аллокации (fee-rebate и т.п.)
	Margin   float64  // доля общего баланса, не участвующая в аллокации

	OrderType string // "MARKET" у binance, "market" у остальных
	SymbolSep string // разделитель пары: "" у binance/hitbtc, "-" у gdax

	// задержка между последовательными запросами в рамках одного
	// refresh-цикла, умножается на индекс инструмента
	FetchStagger time.Duration
}

// Adapter — единый набор операций против одной биржи. Одна реализация на
// биржу; ядро не знает про подписи и wire-форматы.
type Adapter interface {
	Meta() Meta

	GetBalances(ctx context.Context) ([]models.Balance, error)
	GetTicker(ctx context.Context, symbol string) (models.PriceQuote, error)
	GetTickers(ctx context.Context) ([]models.PriceQuote, error)
	GetCandles(ctx context.Context, symbol, period string) ([]models.Candle, error)
	GetSymbol(ctx context.Context, symbol string) (models.SymbolMeta, error)

	SubmitOrder(ctx context.Context, symbol, side, orderType string, qty float64) (models.Order, error)
	GetOrder(ctx context.Context, symbol, orderID string) (models.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (models.Order, error)

	GetTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error)

	// SubscribePriceFeed — push-поток ask/bid, живёт до отмены контекста,
	// сам переподключается.
	SubscribePriceFeed(ctx context.Context, symbols []string) (<-chan models.PriceQuote, error)
}

// Pair собирает имя пары из базового актива в нотации биржи:
// "BTC" -> "BTCUSDT" у binance, "BTC-USD" у gdax.
func (m Meta) Pair(base string) string {
	return base + m.SymbolSep + m.Quote
}

func (m Meta) IsExcluded(asset string) bool {
	for _, e := range m.Excluded {
		if e == asset {
			return true
		}
	}
	return false
}
