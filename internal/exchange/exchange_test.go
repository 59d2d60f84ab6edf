package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossbot/internal/models"
)

func TestNormStatus(t *testing.T) {
	assert.Equal(t, "partiallyfilled", normStatus("PARTIALLY_FILLED"))
	assert.Equal(t, "partiallyfilled", normStatus("partiallyFilled"))
	assert.Equal(t, "filled", normStatus("FILLED"))
	assert.Equal(t, "canceled", normStatus("canceled"))
}

func TestParseNum(t *testing.T) {
	v, err := parseNum("qty", " 0.123 ")
	require.NoError(t, err)
	assert.Equal(t, 0.123, v)

	_, err = parseNum("qty", "abc")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `parse qty "abc"`)
}

func TestHitbtcPeriod(t *testing.T) {
	assert.Equal(t, "H1", hitbtcPeriod("1h"))
	assert.Equal(t, "M15", hitbtcPeriod("15m"))
	assert.Equal(t, "D1", hitbtcPeriod("1d"))
	// неизвестный таймфрейм уходит на биржу как есть
	assert.Equal(t, "H6", hitbtcPeriod("H6"))
}

func TestGdaxGranularity(t *testing.T) {
	assert.Equal(t, 3600, gdaxGranularity("1h"))
	assert.Equal(t, 900, gdaxGranularity("15m"))
	assert.Equal(t, 86400, gdaxGranularity("1d"))
	// неподдерживаемый таймфрейм откатывается на час
	assert.Equal(t, 3600, gdaxGranularity("4h"))
}

func TestMetaPair(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Meta{Quote: "USDT"}.Pair("BTC"))
	assert.Equal(t, "BTC-USD", Meta{Quote: "USD", SymbolSep: "-"}.Pair("BTC"))
}

func TestMetaIsExcluded(t *testing.T) {
	m := Meta{Excluded: []string{"BNB"}}
	assert.True(t, m.IsExcluded("BNB"))
	assert.False(t, m.IsExcluded("BTC"))
	assert.False(t, Meta{}.IsExcluded("BNB"))
}

func TestBinanceOrderNormalization(t *testing.T) {
	raw := binanceOrder{
		OrderID:       123456,
		ClientOrderID: "abc",
		Symbol:        "BTCUSDT",
		Status:        "PARTIALLY_FILLED",
		Side:          "BUY",
		Type:          "MARKET",
		OrigQty:       "0.1",
		ExecutedQty:   "0.02",
	}
	o, err := raw.order()
	require.NoError(t, err)
	assert.Equal(t, "123456", o.OrderID)
	assert.Equal(t, models.SideBuy, o.Side)
	assert.Equal(t, "partiallyfilled", o.Status)
	assert.Equal(t, 0.1, o.Quantity)
	assert.Equal(t, 0.02, o.Filled)
	assert.False(t, o.IsFilled())
}

func TestHitbtcOrderSumsFees(t *testing.T) {
	raw := hitbtcOrder{
		ID:            77,
		ClientOrderID: "xyz",
		Symbol:        "BTCUSD",
		Side:          "SELL",
		Type:          "market",
		Status:        "filled",
		Quantity:      "0.5",
		CumQuantity:   "0.5",
	}
	raw.TradesReport = []struct {
		Price string `json:"price"`
		Fee   string `json:"fee"`
	}{
		{Price: "10000", Fee: "0.1"},
		{Price: "10001", Fee: "0.25"},
	}

	o, err := raw.order()
	require.NoError(t, err)
	assert.Equal(t, models.SideSell, o.Side)
	assert.True(t, o.IsFilled())
	assert.InDelta(t, 0.35, o.Fee, 1e-9)
}

func TestGdaxOrderNormalization(t *testing.T) {
	raw := gdaxOrder{
		ID:         "d0c5340b",
		ProductID:  "BTC-USD",
		Side:       "BUY",
		Type:       "market",
		Status:     "done",
		DoneReason: "filled",
		Size:       "0.5",
		FilledSize: "0.5",
		FillFees:   "0.25",
	}
	o, err := raw.order()
	require.NoError(t, err)
	assert.Equal(t, "d0c5340b", o.OrderID)
	assert.Equal(t, "BTC-USD", o.Symbol)
	assert.Equal(t, models.SideBuy, o.Side)
	assert.True(t, o.IsFilled())
	assert.Equal(t, 0.25, o.Fee)

	raw.DoneReason = "canceled"
	o, err = raw.order()
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, o.Status)

	raw.Status = "open"
	raw.DoneReason = ""
	raw.FilledSize = "0.1"
	o, err = raw.order()
	require.NoError(t, err)
	assert.Equal(t, "open", o.Status)
	assert.False(t, o.IsFilled())
	assert.Equal(t, 0.1, o.Filled)
}

func TestFactory(t *testing.T) {
	b, err := New("binance", "k", "s", "")
	require.NoError(t, err)
	assert.Equal(t, "USDT", b.Meta().Quote)
	assert.Equal(t, "MARKET", b.Meta().OrderType)
	assert.True(t, b.Meta().IsExcluded("BNB"))

	h, err := New("hitbtc", "k", "s", "")
	require.NoError(t, err)
	assert.Equal(t, "USD", h.Meta().Quote)
	assert.Equal(t, "market", h.Meta().OrderType)

	g, err := New("gdax", "k", "s", "p")
	require.NoError(t, err)
	assert.Equal(t, "USD", g.Meta().Quote)
	assert.Equal(t, "-", g.Meta().SymbolSep)
	assert.Equal(t, 0.10, g.Meta().Margin)

	_, err = New("kraken", "k", "s", "")
	assert.Error(t, err)
}
