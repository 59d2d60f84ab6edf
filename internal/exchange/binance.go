package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"crossbot/internal/models"
)

const (
	binanceRestURL = "https://api.binance.com"
	binanceWSURL   = "wss://stream.binance.com:9443/stream"
)

type Binance struct {
	restClient
	apiKey    string
	apiSecret string
	meta      Meta
}

func NewBinance(key, secret string) *Binance {
	return &Binance{
		restClient: newRestClient(),
		apiKey:     key,
		apiSecret:  secret,
		meta: Meta{
			Title:        "binance",
			Quote:        "USDT",
			Excluded:     []string{"BNB"}, // комиссии платятся BNB, в аллокацию не идёт
			Margin:       0.10,
			OrderType:    "MARKET",
			FetchStagger: time.Second,
		},
	}
}

func (b *Binance) Meta() Meta { return b.meta }

// sign — HMAC-SHA256 подпись query-строки плюс timestamp.
func (b *Binance) sign(q url.Values) string {
	q.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	mac := hmac.New(sha256.New, []byte(b.apiSecret))
	mac.Write([]byte(q.Encode()))
	q.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return q.Encode()
}

func (b *Binance) signedRequest(ctx context.Context, method, path string, q url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, binanceRestURL+path+"?"+b.sign(q), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("X-MBX-APIKEY", b.apiKey)
	return req, nil
}

func (b *Binance) GetBalances(ctx context.Context) ([]models.Balance, error) {
	req, err := b.signedRequest(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := b.doJSON(req, &payload); err != nil {
		return nil, errors.Wrap(err, "binance account")
	}

	out := make([]models.Balance, 0, len(payload.Balances))
	for _, raw := range payload.Balances {
		free, err := parseNum("free", raw.Free)
		if err != nil {
			return nil, err
		}
		locked, err := parseNum("locked", raw.Locked)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Balance{Asset: raw.Asset, Free: free, Locked: locked})
	}
	return out, nil
}

type binanceBookTicker struct {
	Symbol string `json:"symbol"`
	Bid    string `json:"bidPrice"`
	Ask    string `json:"askPrice"`
}

func (t binanceBookTicker) quote() (models.PriceQuote, error) {
	ask, err := parseNum("askPrice", t.Ask)
	if err != nil {
		return models.PriceQuote{}, err
	}
	bid, err := parseNum("bidPrice", t.Bid)
	if err != nil {
		return models.PriceQuote{}, err
	}
	return models.PriceQuote{Symbol: t.Symbol, Ask: ask, Bid: bid}, nil
}

func (b *Binance) GetTicker(ctx context.Context, symbol string) (models.PriceQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		binanceRestURL+"/api/v3/ticker/bookTicker?symbol="+url.QueryEscape(symbol), nil)
	if err != nil {
		return models.PriceQuote{}, errors.Wrap(err, "build request")
	}
	var raw binanceBookTicker
	if err := b.doJSON(req, &raw); err != nil {
		return models.PriceQuote{}, errors.Wrap(err, "binance ticker")
	}
	return raw.quote()
}

func (b *Binance) GetTickers(ctx context.Context) ([]models.PriceQuote, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		binanceRestURL+"/api/v3/ticker/bookTicker", nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	var raw []binanceBookTicker
	if err := b.doJSON(req, &raw); err != nil {
		return nil, errors.Wrap(err, "binance tickers")
	}
	out := make([]models.PriceQuote, 0, len(raw))
	for _, t := range raw {
		q, err := t.quote()
		if err != nil {
			// одна битая котировка не должна валить весь снимок
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (b *Binance) GetCandles(ctx context.Context, symbol, period string) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", period)
	q.Set("limit", "500")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		binanceRestURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	// kline: [openTime, open, high, low, close, volume, ...]
	var raw [][]any
	if err := b.doJSON(req, &raw); err != nil {
		return nil, errors.Wrap(err, "binance klines")
	}

	out := make([]models.Candle, 0, len(raw))
	for _, k := range raw {
		if len(k) < 5 {
			return nil, errors.Errorf("kline too short: %v", k)
		}
		c := models.Candle{}
		for i, dst := range []*float64{&c.Open, &c.High, &c.Low, &c.Close} {
			s, ok := k[i+1].(string)
			if !ok {
				return nil, errors.Errorf("kline field %d not a string: %v", i+1, k[i+1])
			}
			v, err := parseNum("kline", s)
			if err != nil {
				return nil, err
			}
			*dst = v
		}
		out = append(out, c)
	}
	return out, nil
}

func (b *Binance) GetSymbol(ctx context.Context, symbol string) (models.SymbolMeta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		binanceRestURL+"/api/v3/exchangeInfo?symbol="+url.QueryEscape(symbol), nil)
	if err != nil {
		return models.SymbolMeta{}, errors.Wrap(err, "build request")
	}

	var payload struct {
		Symbols []struct {
			Symbol  string `json:"symbol"`
			Filters []struct {
				FilterType string `json:"filterType"`
				StepSize   string `json:"stepSize"`
				TickSize   string `json:"tickSize"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := b.doJSON(req, &payload); err != nil {
		return models.SymbolMeta{}, errors.Wrap(err, "binance exchangeInfo")
	}
	if len(payload.Symbols) == 0 {
		return models.SymbolMeta{}, errors.Errorf("symbol %s not found", symbol)
	}

	// фильтры ищем по типу, не по индексу: binance переставляет их местами
	meta := models.SymbolMeta{Symbol: symbol}
	for _, f := range payload.Symbols[0].Filters {
		switch f.FilterType {
		case "LOT_SIZE":
			meta.MinQty = f.StepSize
		case "PRICE_FILTER":
			meta.TickSize = f.TickSize
		}
	}
	if meta.MinQty == "" || meta.TickSize == "" {
		return models.SymbolMeta{}, errors.Errorf("symbol %s: no LOT_SIZE/PRICE_FILTER", symbol)
	}
	return meta, nil
}

type binanceOrder struct {
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Symbol        string `json:"symbol"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
}

func (o binanceOrder) order() (models.Order, error) {
	qty, err := parseNum("origQty", o.OrigQty)
	if err != nil {
		qty = 0 // cancel-ответ может не содержать origQty
	}
	filled, err := parseNum("executedQty", o.ExecutedQty)
	if err != nil {
		return models.Order{}, err
	}
	return models.Order{
		OrderID:       strconv.FormatInt(o.OrderID, 10),
		ClientOrderID: o.ClientOrderID,
		Symbol:        o.Symbol,
		Side:          strings.ToLower(o.Side),
		Type:          o.Type,
		Status:        normStatus(o.Status),
		Quantity:      qty,
		Filled:        filled,
	}, nil
}

func (b *Binance) SubmitOrder(ctx context.Context, symbol, side, orderType string, qty float64) (models.Order, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("side", strings.ToUpper(side))
	q.Set("type", orderType)
	q.Set("quantity", strconv.FormatFloat(qty, 'f', -1, 64))

	req, err := b.signedRequest(ctx, http.MethodPost, "/api/v3/order", q)
	if err != nil {
		return models.Order{}, err
	}
	var raw binanceOrder
	if err := b.doJSON(req, &raw); err != nil {
		return models.Order{}, errors.Wrap(err, "binance submit order")
	}
	return raw.order()
}

func (b *Binance) GetOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("orderId", orderID)

	req, err := b.signedRequest(ctx, http.MethodGet, "/api/v3/order", q)
	if err != nil {
		return models.Order{}, err
	}
	var raw binanceOrder
	if err := b.doJSON(req, &raw); err != nil {
		return models.Order{}, errors.Wrap(err, "binance get order")
	}
	return raw.order()
}

func (b *Binance) CancelOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("orderId", orderID)

	req, err := b.signedRequest(ctx, http.MethodDelete, "/api/v3/order", q)
	if err != nil {
		return models.Order{}, err
	}
	var raw binanceOrder
	if err := b.doJSON(req, &raw); err != nil {
		return models.Order{}, errors.Wrap(err, "binance cancel order")
	}
	o, err := raw.order()
	if err != nil {
		return models.Order{}, err
	}
	o.Status = models.OrderStatusCanceled
	return o, nil
}

func (b *Binance) GetTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	req, err := b.signedRequest(ctx, http.MethodGet, "/api/v3/myTrades", q)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Price      string `json:"price"`
		Qty        string `json:"qty"`
		Commission string `json:"commission"`
		Time       int64  `json:"time"`
		IsBuyer    bool   `json:"isBuyer"`
	}
	if err := b.doJSON(req, &raw); err != nil {
		return nil, errors.Wrap(err, "binance myTrades")
	}

	out := make([]models.Trade, 0, len(raw))
	for _, t := range raw {
		price, err := parseNum("price", t.Price)
		if err != nil {
			return nil, err
		}
		qty, err := parseNum("qty", t.Qty)
		if err != nil {
			return nil, err
		}
		fee, err := parseNum("commission", t.Commission)
		if err != nil {
			return nil, err
		}
		side := models.SideSell
		if t.IsBuyer {
			side = models.SideBuy
		}
		out = append(out, models.Trade{
			Symbol: symbol,
			Side:   side,
			Price:  price,
			Qty:    qty,
			Fee:    fee,
			Time:   time.UnixMilli(t.Time),
		})
	}
	return out, nil
}

// SubscribePriceFeed — combined-stream bookTicker по всем символам.
func (b *Binance) SubscribePriceFeed(ctx context.Context, symbols []string) (<-chan models.PriceQuote, error) {
	if len(symbols) == 0 {
		return nil, errors.New("no symbols to subscribe")
	}
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@bookTicker")
	}
	feedURL := fmt.Sprintf("%s?streams=%s", binanceWSURL, strings.Join(streams, "/"))

	ch := make(chan models.PriceQuote)
	go b.runFeed(ctx, feedURL, ch)
	return ch, nil
}

func (b *Binance) runFeed(ctx context.Context, feedURL string, ch chan<- models.PriceQuote) {
	defer close(ch)
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := b.wsDialer.DialContext(ctx, feedURL, nil)
		if err != nil {
			if !sleepFeed(ctx) {
				return
			}
			continue
		}

		for {
			var frame struct {
				Data struct {
					Symbol string `json:"s"`
					Bid    string `json:"b"`
					Ask    string `json:"a"`
				} `json:"data"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				_ = conn.Close()
				break
			}
			q, err := binanceBookTicker{
				Symbol: frame.Data.Symbol,
				Bid:    frame.Data.Bid,
				Ask:    frame.Data.Ask,
			}.quote()
			if err != nil || q.Symbol == "" {
				continue
			}
			select {
			case <-ctx.Done():
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
