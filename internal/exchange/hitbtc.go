package exchange

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"crossbot/internal/models"
)

const (
	hitbtcRestURL = "https://api.hitbtc.com/api/2"
	hitbtcWSURL   = "wss://api.hitbtc.com/api/2/ws"
)

type HitBTC struct {
	restClient
	apiKey    string
	apiSecret string
	meta      Meta
}

func NewHitBTC(key, secret string) *HitBTC {
	return &HitBTC{
		restClient: newRestClient(),
		apiKey:     key,
		apiSecret:  secret,
		meta: Meta{
			Title:        "hitbtc",
			Quote:        "USD",
			Margin:       0.12, // у hitbtc запас больше: комиссии списываются с кошелька
			OrderType:    "market",
			FetchStagger: 603 * time.Millisecond,
		},
	}
}

func (h *HitBTC) Meta() Meta { return h.meta }

func (h *HitBTC) request(ctx context.Context, method, path string, form url.Values) (*http.Request, error) {
	var req *http.Request
	var err error
	if form != nil {
		req, err = http.NewRequestWithContext(ctx, method, hitbtcRestURL+path,
			strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, hitbtcRestURL+path, nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.SetBasicAuth(h.apiKey, h.apiSecret)
	return req, nil
}

func (h *HitBTC) GetBalances(ctx context.Context) ([]models.Balance, error) {
	req, err := h.request(ctx, http.MethodGet, "/trading/balance", nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
		Reserved  string `json:"reserved"`
	}
	if err := h.doJSON(req, &raw); err != nil {
		return nil, errors.Wrap(err, "hitbtc trading balance")
	}

	out := make([]models.Balance, 0, len(raw))
	for _, b := range raw {
		free, err := parseNum("available", b.Available)
		if err != nil {
			return nil, err
		}
		locked, err := parseNum("reserved", b.Reserved)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Balance{Asset: b.Currency, Free: free, Locked: locked})
	}
	return out, nil
}

type hitbtcTicker struct {
	Symbol string `json:"symbol"`
	Ask    string `json:"ask"`
	Bid    string `json:"bid"`
}

func (t hitbtcTicker) quote() (models.PriceQuote, error) {
	ask, err := parseNum("ask", t.Ask)
	if err != nil {
		return models.PriceQuote{}, err
	}
	bid, err := parseNum("bid", t.Bid)
	if err != nil {
		return models.PriceQuote{}, err
	}
	return models.PriceQuote{Symbol: t.Symbol, Ask: ask, Bid: bid}, nil
}

func (h *HitBTC) GetTicker(ctx context.Context, symbol string) (models.PriceQuote, error) {
	req, err := h.request(ctx, http.MethodGet, "/public/ticker/"+url.PathEscape(symbol), nil)
	if err != nil {
		return models.PriceQuote{}, err
	}
	var raw hitbtcTicker
	if err := h.doJSON(req, &raw); err != nil {
		return models.PriceQuote{}, errors.Wrap(err, "hitbtc ticker")
	}
	if raw.Symbol == "" {
		raw.Symbol = symbol
	}
	return raw.quote()
}

func (h *HitBTC) GetTickers(ctx context.Context) ([]models.PriceQuote, error) {
	req, err := h.request(ctx, http.MethodGet, "/public/ticker", nil)
	if err != nil {
		return nil, err
	}
	var raw []hitbtcTicker
	if err := h.doJSON(req, &raw); err != nil {
		return nil, errors.Wrap(err, "hitbtc tickers")
	}
	out := make([]models.PriceQuote, 0, len(raw))
	for _, t := range raw {
		q, err := t.quote()
		if err != nil {
			continue // пары без котировок (ask/bid == null) пропускаем
		}
		out = append(out, q)
	}
	return out, nil
}

// hitbtcPeriod переводит общий таймфрейм в нотацию hitbtc ("1h" -> "H1").
func hitbtcPeriod(period string) string {
	switch period {
	case "1m":
		return "M1"
	case "15m":
		return "M15"
	case "30m":
		return "M30"
	case "1h":
		return "H1"
	case "4h":
		return "H4"
	case "1d":
		return "D1"
	}
	return period
}

func (h *HitBTC) GetCandles(ctx context.Context, symbol, period string) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("period", hitbtcPeriod(period))
	q.Set("limit", "500")
	req, err := h.request(ctx, http.MethodGet,
		"/public/candles/"+url.PathEscape(symbol)+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Open  string `json:"open"`
		Max   string `json:"max"`
		Min   string `json:"min"`
		Close string `json:"close"`
	}
	if err := h.doJSON(req, &raw); err != nil {
		return nil, errors.Wrap(err, "hitbtc candles")
	}

	out := make([]models.Candle, 0, len(raw))
	for _, c := range raw {
		candle := models.Candle{}
		for _, f := range []struct {
			name string
			src  string
			dst  *float64
		}{
			{"open", c.Open, &candle.Open},
			{"max", c.Max, &candle.High},
			{"min", c.Min, &candle.Low},
			{"close", c.Close, &candle.Close},
		} {
			v, err := parseNum(f.name, f.src)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}
		out = append(out, candle)
	}
	return out, nil
}

func (h *HitBTC) GetSymbol(ctx context.Context, symbol string) (models.SymbolMeta, error) {
	req, err := h.request(ctx, http.MethodGet, "/public/symbol/"+url.PathEscape(symbol), nil)
	if err != nil {
		return models.SymbolMeta{}, err
	}
	var raw struct {
		ID                string `json:"id"`
		QuantityIncrement string `json:"quantityIncrement"`
		TickSize          string `json:"tickSize"`
	}
	if err := h.doJSON(req, &raw); err != nil {
		return models.SymbolMeta{}, errors.Wrap(err, "hitbtc symbol")
	}
	if raw.QuantityIncrement == "" {
		return models.SymbolMeta{}, errors.Errorf("symbol %s: empty quantityIncrement", symbol)
	}
	return models.SymbolMeta{
		Symbol:   symbol,
		MinQty:   raw.QuantityIncrement,
		TickSize: raw.TickSize,
	}, nil
}

type hitbtcOrder struct {
	ID            int64  `json:"id"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Quantity      string `json:"quantity"`
	CumQuantity   string `json:"cumQuantity"`
	TradesReport  []struct {
		Price string `json:"price"`
		Fee   string `json:"fee"`
	} `json:"tradesReport"`
}

func (o hitbtcOrder) order() (models.Order, error) {
	qty, err := parseNum("quantity", o.Quantity)
	if err != nil {
		qty = 0
	}
	filled := 0.0
	if o.CumQuantity != "" {
		filled, err = parseNum("cumQuantity", o.CumQuantity)
		if err != nil {
			return models.Order{}, err
		}
	}
	fee := 0.0
	for _, tr := range o.TradesReport {
		v, err := parseNum("fee", tr.Fee)
		if err != nil {
			return models.Order{}, err
		}
		fee += v
	}
	return models.Order{
		OrderID:       strconv.FormatInt(o.ID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          strings.ToLower(o.Side),
		Type:          o.Type,
		Status:        normStatus(o.Status),
		Quantity:      qty,
		Filled:        filled,
		Fee:           fee,
	}, nil
}

func (h *HitBTC) SubmitOrder(ctx context.Context, symbol, side, orderType string, qty float64) (models.Order, error) {
	form := url.Values{}
	form.Set("symbol", symbol)
	form.Set("side", side)
	form.Set("type", orderType)
	form.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))

	req, err := h.request(ctx, http.MethodPost, "/order", form)
	if err != nil {
		return models.Order{}, err
	}
	var raw hitbtcOrder
	if err := h.doJSON(req, &raw); err != nil {
		return models.Order{}, errors.Wrap(err, "hitbtc submit order")
	}
	return raw.order()
}

// hitbtc адресует активные ордера clientOrderId, а не биржевым id —
// поэтому адаптер кладёт clientOrderId в OrderID при необходимости.
func (h *HitBTC) GetOrder(ctx context.Context, _, orderID string) (models.Order, error) {
	req, err := h.request(ctx, http.MethodGet, "/order/"+url.PathEscape(orderID), nil)
	if err != nil {
		return models.Order{}, err
	}
	var raw hitbtcOrder
	if err := h.doJSON(req, &raw); err != nil {
		return models.Order{}, errors.Wrap(err, "hitbtc get order")
	}
	return raw.order()
}

func (h *HitBTC) CancelOrder(ctx context.Context, _, orderID string) (models.Order, error) {
	req, err := h.request(ctx, http.MethodDelete, "/order/"+url.PathEscape(orderID), nil)
	if err != nil {
		return models.Order{}, err
	}
	var raw hitbtcOrder
	if err := h.doJSON(req, &raw); err != nil {
		return models.Order{}, errors.Wrap(err, "hitbtc cancel order")
	}
	o, err := raw.order()
	if err != nil {
		return models.Order{}, err
	}
	o.Status = models.OrderStatusCanceled
	return o, nil
}

func (h *HitBTC) GetTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	q := url.Values{}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	req, err := h.request(ctx, http.MethodGet, "/history/trades?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol    string `json:"symbol"`
		Side      string `json:"side"`
		Quantity  string `json:"quantity"`
		Price     string `json:"price"`
		Fee       string `json:"fee"`
		Timestamp string `json:"timestamp"`
	}
	if err := h.doJSON(req, &raw); err != nil {
		return nil, errors.Wrap(err, "hitbtc trades history")
	}

	out := make([]models.Trade, 0, len(raw))
	for _, t := range raw {
		price, err := parseNum("price", t.Price)
		if err != nil {
			return nil, err
		}
		qty, err := parseNum("quantity", t.Quantity)
		if err != nil {
			return nil, err
		}
		fee, err := parseNum("fee", t.Fee)
		if err != nil {
			return nil, err
		}
		ts, _ := time.Parse(time.RFC3339, t.Timestamp)
		out = append(out, models.Trade{
			Symbol: t.Symbol,
			Side:   strings.ToLower(t.Side),
			Price:  price,
			Qty:    qty,
			Fee:    fee,
			Time:   ts,
		})
	}
	return out, nil
}

func (h *HitBTC) SubscribePriceFeed(ctx context.Context, symbols []string) (<-chan models.PriceQuote, error) {
	if len(symbols) == 0 {
		return nil, errors.New("no symbols to subscribe")
	}
	ch := make(chan models.PriceQuote)
	go h.runFeed(ctx, symbols, ch)
	return ch, nil
}

func (h *HitBTC) runFeed(ctx context.Context, symbols []string, ch chan<- models.PriceQuote) {
	defer close(ch)
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := h.wsDialer.DialContext(ctx, hitbtcWSURL, nil)
		if err != nil {
			if !sleepFeed(ctx) {
				return
			}
			continue
		}

		subOK := true
		for _, s := range symbols {
			sub := map[string]any{
				"method": "subscribeTicker",
				"params": map[string]string{"symbol": s},
				"id":     time.Now().UnixNano(),
			}
			if err := conn.WriteJSON(sub); err != nil {
				subOK = false
				break
			}
		}
		if !subOK {
			_ = conn.Close()
			if !sleepFeed(ctx) {
				return
			}
			continue
		}

		stop := make(chan struct{})
		go keepAlive(ctx, conn, 20*time.Second, stop)

		for {
			var frame struct {
				Method string       `json:"method"`
				Params hitbtcTicker `json:"params"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				close(stop)
				_ = conn.Close()
				break
			}
			if frame.Method != "ticker" {
				continue
			}
			q, err := frame.Params.quote()
			if err != nil {
				continue
			}
			select {
			case <-ctx.Done():
				close(stop)
				_ = conn.Close()
				return
			case ch <- q:
			}
		}

		if !sleepFeed(ctx) {
			return
		}
	}
}
