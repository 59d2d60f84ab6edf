package models

const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Instrument — торгуемая пара на одной бирже. Пересобирается целиком на
// каждом полном цикле; Side/Qty считаются от живого баланса и никогда не
// персистятся.
type Instrument struct {
	Symbol   string
	Ask      float64
	Bid      float64
	MinQty   string // шаг количества как строка биржи, знаки после точки значимы
	TickSize string

	Side string // SideBuy: плоская позиция, ждём вход; SideSell: держим, ждём выход
	Qty  float64

	// последние закрытия свечей под быстрое и медленное окно
	FastCloses []float64
	SlowCloses []float64
}

type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

type PriceQuote struct {
	Symbol string
	Ask    float64
	Bid    float64
}

type Candle struct {
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// SymbolMeta — ограничения символа с биржи (шаг количества, шаг цены).
type SymbolMeta struct {
	Symbol   string
	MinQty   string
	TickSize string
}
