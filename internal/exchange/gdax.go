package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"crossbot/internal/models"
)

const (
	gdaxRestURL = "https://api.pro.coinbase.com"
	gdaxWSURL   = "wss://ws-feed.pro.coinbase.com"
)

// Gdax (coinbase pro) — пары с дефисом ("BTC-USD"), свечи массивами
// от новых к старым, терминальность ордера в done_reason.
type Gdax struct {
	restClient
	apiKey     string
	apiSecret  string
	passphrase string
	meta       Meta
}

func NewGdax(key, secret, passphrase string) *Gdax {
	return &Gdax{
		restClient: newRestClient(),
		apiKey:     key,
		apiSecret:  secret,
		passphrase: passphrase,
		meta: Meta{
			Title:        "gdax",
			Quote:        "USD",
			Margin:       0.10,
			OrderType:    "market",
			SymbolSep:    "-",
			FetchStagger: time.Second,
		},
	}
}

func (g *Gdax) Meta() Meta { return g.meta }

// request подписывает запрос по схеме coinbase: base64-HMAC-SHA256 от
// timestamp+method+path+body ключом из base64-секрета. path — вместе с
// query-строкой, она входит в подпись.
func (g *Gdax) request(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, gdaxRestURL+path, rd)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	key, err := base64.StdEncoding.DecodeString(g.apiSecret)
	if err != nil {
		return nil, errors.Wrap(err, "decode api secret")
	}
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(ts + method + path))
	mac.Write(body)

	req.Header.Set("CB-ACCESS-KEY", g.apiKey)
	req.Header.Set("CB-ACCESS-SIGN", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	req.Header.Set("CB-ACCESS-TIMESTAMP", ts)
	req.Header.Set("CB-ACCESS-PASSPHRASE", g.passphrase)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (g *Gdax) GetBalances(ctx context.Context) ([]models.Balance, error) {
	req, err := g.request(ctx, http.MethodGet, "/accounts", nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Currency  string `json:"currency"`
		Available string `json:"available"`
		Hold      string `json:"hold"`
	}
	if err := g.doJSON(req, &raw); err != nil {
		return nil, errors.Wrap(err, "gdax accounts")
	}

	out := make([]models.Balance, 0, len(raw))
	for _, b := range raw {
		free, err := parseNum("available", b.Available)
		if err != nil {
			return nil, err
		}
		locked, err := parseNum("hold", b.Hold)
		if err != nil {
			return nil, err
		}
		out = append(out, models.Balance{Asset: b.Currency, Free: free, Locked: locked})
	}
	return out, nil
}

type gdaxTicker struct {
	ProductID string `json:"product_id"`
	Bid       string `json:"bid"`
	Ask       string `json:"ask"`
}

func (t gdaxTicker) quote() (models.PriceQuote, error) {
	ask, err := parseNum("ask", t.Ask)
	if err != nil {
		return models.PriceQuote{}, err
	}
	bid, err := parseNum("bid", t.Bid)
	if err != nil {
		return models.PriceQuote{}, err
	}
	return models.PriceQuote{Symbol: t.ProductID, Ask: ask, Bid: bid}, nil
}

func (g *Gdax) GetTicker(ctx context.Context, symbol string) (models.PriceQuote, error) {
	req, err := g.request(ctx, http.MethodGet, "/products/"+url.PathEscape(symbol)+"/ticker", nil)
	if err != nil {
		return models.PriceQuote{}, err
	}
	var raw gdaxTicker
	if err := g.doJSON(req, &raw); err != nil {
		return models.PriceQuote{}, errors.Wrap(err, "gdax ticker")
	}
	raw.ProductID = symbol // в ответе тикера product_id не приходит
	return raw.quote()
}

// GetTickers: сводного тикера у gdax нет, обходим все пары против
// котировочной валюты по одной.
func (g *Gdax) GetTickers(ctx context.Context) ([]models.PriceQuote, error) {
	req, err := g.request(ctx, http.MethodGet, "/products", nil)
	if err != nil {
		return nil, err
	}
	var products []struct {
		ID            string `json:"id"`
		QuoteCurrency string `json:"quote_currency"`
	}
	if err := g.doJSON(req, &products); err != nil {
		return nil, errors.Wrap(err, "gdax products")
	}

	out := make([]models.PriceQuote, 0, len(products))
	for _, p := range products {
		if p.QuoteCurrency != g.meta.Quote {
			continue
		}
		q, err := g.GetTicker(ctx, p.ID)
		if err != nil {
			continue // неликвидные пары без котировок пропускаем
		}
		out = append(out, q)
	}
	return out, nil
}

// gdaxGranularity переводит общий таймфрейм в секунды gdax
// (поддерживаются только 60/300/900/3600/21600/86400).
func gdaxGranularity(period string) int {
	switch period {
	case "1m":
		return 60
	case "5m":
		return 300
	case "15m":
		return 900
	case "1h":
		return 3600
	case "6h":
		return 21600
	case "1d":
		return 86400
	}
	return 3600
}

func (g *Gdax) GetCandles(ctx context.Context, symbol, period string) ([]models.Candle, error) {
	q := url.Values{}
	q.Set("granularity", strconv.Itoa(gdaxGranularity(period)))
	req, err := g.request(ctx, http.MethodGet,
		"/products/"+url.PathEscape(symbol)+"/candles?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	// массивы [time, low, high, open, close, volume], новые первыми
	var raw [][]float64
	if err := g.doJSON(req, &raw); err != nil {
		return nil, errors.Wrap(err, "gdax candles")
	}

	out := make([]models.Candle, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- { // разворот к порядку старые -> новые
		c := raw[i]
		if len(c) < 5 {
			return nil, errors.Errorf("gdax candle %s: short row %v", symbol, c)
		}
		out = append(out, models.Candle{
			Low:   c[1],
			High:  c[2],
			Open:  c[3],
			Close: c[4],
		})
	}
	return out, nil
}

func (g *Gdax) GetSymbol(ctx context.Context, symbol string) (models.SymbolMeta, error) {
	req, err := g.request(ctx, http.MethodGet, "/products/"+url.PathEscape(symbol), nil)
	if err != nil {
		return models.SymbolMeta{}, err
	}
	var raw struct {
		ID             string `json:"id"`
		BaseIncrement  string `json:"base_increment"`
		QuoteIncrement string `json:"quote_increment"`
	}
	if err := g.doJSON(req, &raw); err != nil {
		return models.SymbolMeta{}, errors.Wrap(err, "gdax product")
	}
	if raw.BaseIncrement == "" {
		return models.SymbolMeta{}, errors.Errorf("product %s: empty base_increment", symbol)
	}
	return models.SymbolMeta{
		Symbol:   symbol,
		MinQty:   raw.BaseIncrement,
		TickSize: raw.QuoteIncrement,
	}, nil
}

type gdaxOrder struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Side       string `json:"side"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	DoneReason string `json:"done_reason"`
	Size       string `json:"size"`
	FilledSize string `json:"filled_size"`
	FillFees   string `json:"fill_fees"`
}

// order: терминальный статус gdax — всегда "done", исход в done_reason.
func (o gdaxOrder) order() (models.Order, error) {
	qty, err := parseNum("size", o.Size)
	if err != nil {
		qty = 0
	}
	filled := 0.0
	if o.FilledSize != "" {
		filled, err = parseNum("filled_size", o.FilledSize)
		if err != nil {
			return models.Order{}, err
		}
	}
	fee := 0.0
	if o.FillFees != "" {
		fee, err = parseNum("fill_fees", o.FillFees)
		if err != nil {
			return models.Order{}, err
		}
	}

	status := normStatus(o.Status)
	if o.Status == "done" {
		if o.DoneReason == "canceled" {
			status = models.OrderStatusCanceled
		} else {
			status = models.OrderStatusFilled
		}
	}

	return models.Order{
		OrderID:  o.ID,
		Symbol:   o.ProductID,
		Side:     strings.ToLower(o.Side),
		Type:     o.Type,
		Status:   status,
		Quantity: qty,
		Filled:   filled,
		Fee:      fee,
	}, nil
}

func (g *Gdax) SubmitOrder(ctx context.Context, symbol, side, orderType string, qty float64) (models.Order, error) {
	body, err := json.Marshal(map[string]string{
		"product_id": symbol,
		"side":       side,
		"type":       orderType,
		"size":       strconv.FormatFloat(qty, 'f', -1, 64),
	})
	if err != nil {
		return models.Order{}, errors.Wrap(err, "marshal order")
	}

	req, err := g.request(ctx, http.MethodPost, "/orders", body)
	if err != nil {
		return models.Order{}, err
	}
	var raw gdaxOrder
	if err := g.doJSON(req, &raw); err != nil {
		return models.Order{}, errors.Wrap(err, "gdax submit order")
	}
	return raw.order()
}

func (g *Gdax) GetOrder(ctx context.Context, _, orderID string) (models.Order, error) {
	req, err := g.request(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return models.Order{}, err
	}
	var raw gdaxOrder
	if err := g.doJSON(req, &raw); err != nil {
		return models.Order{}, errors.Wrap(err, "gdax get order")
	}
	return raw.order()
}

// CancelOrder: gdax на DELETE отдаёт только id, собираем результат сами.
func (g *Gdax) CancelOrder(ctx context.Context, symbol, orderID string) (models.Order, error) {
	req, err := g.request(ctx, http.MethodDelete, "/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return models.Order{}, err
	}
	if err := g.doJSON(req, nil); err != nil {
		return models.Order{}, errors.Wrap(err, "gdax cancel order")
	}
	return models.Order{
		OrderID: orderID,
		Symbol:  symbol,
		Status:  models.OrderStatusCanceled,
	}, nil
}

func (g *Gdax) GetTrades(ctx context.Context, symbol string, limit int) ([]models.Trade, error) {
	q := url.Values{}
	q.Set("product_id", symbol)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	req, err := g.request(ctx, http.MethodGet, "/fills?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		ProductID string `json:"product_id"`
		Side      string `json:"side"`
		Price     string `json:"price"`
		Size      string `json:"size"`
		Fee       string `json:"fee"`
		CreatedAt string `json:"created_at"`
	}
	if err := g.doJSON(req, &raw); err != nil {
		return nil, errors.Wrap(err, "gdax fills")
	}

	out := make([]models.Trade, 0, len(raw))
	for _, t := range raw {
		price, err := parseNum("price", t.Price)
		if err != nil {
			return nil, err
		}
		qty, err := parseNum("size", t.Size)
		if err != nil {
			return nil, err
		}
		fee, err := parseNum("fee", t.Fee)
		if err != nil {
			return nil, err
		}
		ts, _ := time.Parse(time.RFC3339, t.CreatedAt)
		out = append(out, models.Trade{
			Symbol: t.ProductID,
			Side:   strings.ToLower(t.Side),
			Price:  price,
			Qty:    qty,
			Fee:    fee,
			Time:   ts,
		})
	}
	return out, nil
}

func (g *Gdax) SubscribePriceFeed(ctx context.Context, symbols []string) (<-chan models.PriceQuote, error) {
	if len(symbols) == 0 {
		return nil, errors.New("no symbols to subscribe")
	}
	ch := make(chan models.PriceQuote)
	go g.runFeed(ctx, symbols, ch)
	return ch, nil
}

func (g *Gdax) runFeed(ctx context.Context, symbols []string, ch chan<- models.PriceQuote) {
	defer close(ch)
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := g.wsDialer.DialContext(ctx, gdaxWSURL, nil)
		if err != nil {
			if !sleepFeed(ctx) {
				return
			}
			continue
		}

		sub := map[string]any{
			"type":        "subscribe",
			"product_ids": symbols,
			"channels":    []string{"ticker"},
		}
		if err := conn.WriteJSON(sub); err != nil {
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
				Type      string `json:"type"`
				ProductID string `json:"product_id"`
				BestBid   string `json:"best_bid"`
				BestAsk   string `json:"best_ask"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				close(stop)
				_ = conn.Close()
				break
			}
			if frame.Type != "ticker" {
				continue
			}
			q, err := gdaxTicker{
				ProductID: frame.ProductID,
				Bid:       frame.BestBid,
				Ask:       frame.BestAsk,
			}.quote()
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
