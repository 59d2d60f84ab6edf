package robot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossbot/internal/exchange"
	"crossbot/internal/models"
	"crossbot/internal/signal"
)

type fakeAdapter struct {
	mu sync.Mutex

	meta     exchange.Meta
	balances []models.Balance
	quotes   map[string]models.PriceQuote
	closes   []float64
	symMeta  models.SymbolMeta
	trades   []models.Trade

	failSubmit map[string]bool // символы с ошибкой отправки
	submitted  []models.Order
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		meta: exchange.Meta{
			Title:     "testex",
			Quote:     "USDT",
			Margin:    0.10,
			OrderType: "MARKET",
		},
		balances: []models.Balance{
			{Asset: "USDT", Free: 1000},
			{Asset: "BTC", Free: 0.0001},
		},
		quotes: map[string]models.PriceQuote{
			"BTCUSDT": {Symbol: "BTCUSDT", Ask: 10100, Bid: 10000},
		},
		closes:     ascending(40),
		symMeta:    models.SymbolMeta{Symbol: "BTCUSDT", MinQty: "0.001", TickSize: "0.01"},
		failSubmit: map[string]bool{},
	}
}

func ascending(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func (f *fakeAdapter) Meta() exchange.Meta { return f.meta }

func (f *fakeAdapter) GetBalances(context.Context) ([]models.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Balance(nil), f.balances...), nil
}

func (f *fakeAdapter) GetTicker(_ context.Context, symbol string) (models.PriceQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.quotes[symbol]
	if !ok {
		return models.PriceQuote{}, errors.New("unknown symbol")
	}
	return q, nil
}

func (f *fakeAdapter) GetTickers(ctx context.Context) ([]models.PriceQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.PriceQuote, 0, len(f.quotes))
	for _, q := range f.quotes {
		out = append(out, q)
	}
	return out, nil
}

func (f *fakeAdapter) GetCandles(_ context.Context, _, _ string) ([]models.Candle, error) {
	out := make([]models.Candle, 0, len(f.closes))
	for _, c := range f.closes {
		out = append(out, models.Candle{Close: c})
	}
	return out, nil
}

func (f *fakeAdapter) GetSymbol(_ context.Context, symbol string) (models.SymbolMeta, error) {
	m := f.symMeta
	m.Symbol = symbol
	return m, nil
}

func (f *fakeAdapter) SubmitOrder(_ context.Context, symbol, side, orderType string, qty float64) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSubmit[symbol] {
		return models.Order{}, errors.New("submit rejected")
	}
	o := models.Order{
		OrderID:  "1",
		Symbol:   symbol,
		Side:     side,
		Type:     orderType,
		Status:   models.OrderStatusFilled,
		Quantity: qty,
		Filled:   qty,
	}
	f.submitted = append(f.submitted, o)
	return o, nil
}

func (f *fakeAdapter) GetOrder(_ context.Context, _, orderID string) (models.Order, error) {
	return models.Order{OrderID: orderID, Status: models.OrderStatusFilled}, nil
}

func (f *fakeAdapter) CancelOrder(_ context.Context, _, orderID string) (models.Order, error) {
	return models.Order{OrderID: orderID, Status: models.OrderStatusCanceled}, nil
}

func (f *fakeAdapter) GetTrades(_ context.Context, symbol string, _ int) ([]models.Trade, error) {
	out := make([]models.Trade, 0, len(f.trades))
	for _, t := range f.trades {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeAdapter) SubscribePriceFeed(ctx context.Context, symbols []string) (<-chan models.PriceQuote, error) {
	ch := make(chan models.PriceQuote, len(symbols))
	f.mu.Lock()
	for _, sym := range symbols {
		if q, ok := f.quotes[sym]; ok {
			ch <- q
		}
	}
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (f *fakeAdapter) submittedOrders() []models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Order(nil), f.submitted...)
}

type fakeRobotStore struct {
	mu         sync.Mutex
	fast, slow []float64
	appended   int
	orders     []models.Order
}

func (s *fakeRobotStore) FindLatestAverages(_ context.Context, _, _ string) ([]float64, []float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fast, s.slow, nil
}

func (s *fakeRobotStore) AppendAverages(_ context.Context, _, _ string, fast, slow float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appended++
	return nil
}

func (s *fakeRobotStore) CreateOrder(_ context.Context, o *models.Order, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, *o)
	return true, nil
}

func (s *fakeRobotStore) createdOrders() []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Order(nil), s.orders...)
}

func newTestRobot(t *testing.T, mx exchange.Adapter, store Store, symbols []string) *Robot {
	t.Helper()
	r := New(Config{
		Symbols:      symbols,
		LoopInterval: time.Hour,
		EvalStagger:  time.Millisecond,
	}, mx, store, nil, nil)
	r.ctx, r.cancel = context.WithCancel(context.Background())
	t.Cleanup(r.Stop)
	return r
}

// seedState кладёт готовый инструментный стейт в робота; points — пары
// (fast, slow) живой истории.
func seedState(r *Robot, inst models.Instrument, points [][2]float64) *state {
	st := &state{inst: inst, history: signal.NewHistory(10)}
	for _, p := range points {
		st.history.Append(p[0], p[1])
	}
	r.mu.Lock()
	r.instruments[inst.Symbol] = st
	r.mu.Unlock()
	return st
}

func TestToggleIdempotent(t *testing.T) {
	r := newTestRobot(t, newFakeAdapter(), &fakeRobotStore{}, []string{"BTCUSDT"})

	r.Toggle(true)
	r.Toggle(true)
	assert.Equal(t, 1, r.activeLoops())

	r.Toggle(false)
	r.Toggle(false)
	require.Eventually(t, func() bool { return r.activeLoops() == 0 },
		time.Second, 10*time.Millisecond)
}

func TestToggleBeforeStartIsNoop(t *testing.T) {
	r := New(Config{
		Symbols:      []string{"BTCUSDT"},
		LoopInterval: time.Hour,
	}, newFakeAdapter(), &fakeRobotStore{}, nil, nil)

	// до Start родительского контекста нет, таймер запускать не из чего
	require.NotPanics(t, func() { r.Toggle(true) })
	assert.Equal(t, 0, r.activeLoops())

	require.NotPanics(t, func() { r.Toggle(false) })
}

func TestStartCrossUpBuys(t *testing.T) {
	mx := newFakeAdapter()
	store := &fakeRobotStore{
		// последняя сохранённая точка: быстрая ниже медленной, живая
		// история после подсева ждёт пересечения
		fast: []float64{10},
		slow: []float64{20},
	}
	r := newTestRobot(t, mx, store, []string{"BTCUSDT"})

	require.NoError(t, r.Start(context.Background()))

	// восходящие свечи дают fast > slow на первом же тике
	require.Eventually(t, func() bool { return len(store.createdOrders()) == 1 },
		2*time.Second, 10*time.Millisecond)

	rec := store.createdOrders()[0]
	assert.Equal(t, models.SideBuy, rec.Side)
	assert.Equal(t, models.OrderStatusExecuted, rec.Status)
	assert.Equal(t, "BTCUSDT", rec.Symbol)
	assert.InDelta(t, 0.089, rec.Quantity, 1e-9)

	require.Eventually(t, func() bool {
		sts := r.states()
		if len(sts) != 1 {
			return false
		}
		sts[0].mu.Lock()
		defer sts[0].mu.Unlock()
		return sts[0].inst.Side == models.SideSell && sts[0].stop > 0
	}, time.Second, 10*time.Millisecond)
}

func TestEvaluateSiblingIsolation(t *testing.T) {
	mx := newFakeAdapter()
	mx.quotes["AAAUSDT"] = models.PriceQuote{Symbol: "AAAUSDT", Ask: 50, Bid: 49}
	mx.quotes["BBBUSDT"] = models.PriceQuote{Symbol: "BBBUSDT", Ask: 50, Bid: 49}
	mx.failSubmit["AAAUSDT"] = true
	store := &fakeRobotStore{}
	r := newTestRobot(t, mx, store, []string{"AAAUSDT", "BBBUSDT"})

	crossedUp := [][2]float64{{10, 20}, {30, 25}}
	stA := seedState(r, models.Instrument{Symbol: "AAAUSDT", Side: models.SideBuy, Qty: 1, Ask: 50, Bid: 49}, crossedUp)
	stB := seedState(r, models.Instrument{Symbol: "BBBUSDT", Side: models.SideBuy, Qty: 1, Ask: 50, Bid: 49}, crossedUp)

	r.evaluate(context.Background(), stA)
	r.evaluate(context.Background(), stB)

	// сбой отправки по A не трогает B и не переворачивает сторону A
	assert.Equal(t, models.SideBuy, stA.inst.Side)
	assert.Equal(t, models.SideSell, stB.inst.Side)
	require.Len(t, store.createdOrders(), 1)
	assert.Equal(t, "BBBUSDT", store.createdOrders()[0].Symbol)
}

func TestEvaluateCrossDownSells(t *testing.T) {
	mx := newFakeAdapter()
	store := &fakeRobotStore{}
	r := newTestRobot(t, mx, store, []string{"BTCUSDT"})

	crossedDown := [][2]float64{{30, 25}, {10, 20}}
	st := seedState(r, models.Instrument{Symbol: "BTCUSDT", Side: models.SideSell, Qty: 0.1, Ask: 10100, Bid: 10000}, crossedDown)
	st.stop = 10100 // был взведён при входе

	r.evaluate(context.Background(), st)

	assert.Equal(t, models.SideBuy, st.inst.Side)
	assert.Zero(t, st.stop)
	require.Len(t, store.createdOrders(), 1)
	assert.Equal(t, models.SideSell, store.createdOrders()[0].Side)
}

func TestScalpRatchetAndTrigger(t *testing.T) {
	mx := newFakeAdapter()
	// держим позицию: 0.1 BTC на балансе, сторона sell
	mx.balances = []models.Balance{
		{Asset: "USDT", Free: 100},
		{Asset: "BTC", Free: 0.1},
	}
	store := &fakeRobotStore{}
	r := newTestRobot(t, mx, store, []string{"BTCUSDT"})

	st := seedState(r, models.Instrument{
		Symbol: "BTCUSDT", Side: models.SideSell, Qty: 0.1,
		Ask: 10100, Bid: 10000, MinQty: "0.001",
	}, nil)
	st.stop = 10100

	// цена выросла — якорь подтягивается, продажи нет
	r.pricesMu.Lock()
	r.prices["BTCUSDT"] = models.PriceQuote{Symbol: "BTCUSDT", Ask: 10300, Bid: 10200}
	r.pricesMu.Unlock()
	r.scalpOne(context.Background(), st, mx.balances, 100)

	assert.Equal(t, 10300.0, st.stop)
	assert.Empty(t, store.createdOrders())

	// откат ниже якоря на зазор — выход по стоп-лоссу
	r.pricesMu.Lock()
	r.prices["BTCUSDT"] = models.PriceQuote{Symbol: "BTCUSDT", Ask: 10200, Bid: 10150}
	r.pricesMu.Unlock()
	r.scalpOne(context.Background(), st, mx.balances, 100)

	assert.Equal(t, models.SideBuy, st.inst.Side)
	assert.Zero(t, st.stop)
	require.Len(t, store.createdOrders(), 1)
	assert.Equal(t, models.SideSell, store.createdOrders()[0].Side)
}

func TestScalpReactiveEntry(t *testing.T) {
	mx := newFakeAdapter()
	store := &fakeRobotStore{}
	r := newTestRobot(t, mx, store, []string{"BTCUSDT"})

	// плоская позиция с взведённым якорем: цена вернулась к зоне входа
	st := seedState(r, models.Instrument{
		Symbol: "BTCUSDT", Side: models.SideBuy, Qty: 0.05,
		Ask: 10100, Bid: 10000, MinQty: "0.001",
	}, nil)
	st.stop = 10150

	r.pricesMu.Lock()
	r.prices["BTCUSDT"] = models.PriceQuote{Symbol: "BTCUSDT", Ask: 10100, Bid: 10000}
	r.pricesMu.Unlock()
	r.scalpOne(context.Background(), st, mx.balances, 900)

	assert.Equal(t, models.SideSell, st.inst.Side)
	assert.Equal(t, 10100.0, st.stop) // bid + зазор
	require.Len(t, store.createdOrders(), 1)
	assert.Equal(t, models.SideBuy, store.createdOrders()[0].Side)
}

func TestCalculateProfit(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mx := newFakeAdapter()
	mx.trades = []models.Trade{
		{Symbol: "BTCUSDT", Side: models.SideBuy, Price: 100, Qty: 2, Fee: 1, Time: base},
		{Symbol: "BTCUSDT", Side: models.SideSell, Price: 110, Qty: 2, Fee: 1, Time: base.Add(time.Hour)},
		// незакрытая покупка после последней продажи не учитывается
		{Symbol: "BTCUSDT", Side: models.SideBuy, Price: 105, Qty: 1, Fee: 1, Time: base.Add(2 * time.Hour)},
	}
	r := newTestRobot(t, mx, &fakeRobotStore{}, []string{"BTCUSDT"})

	got, err := r.CalculateProfit(context.Background(), base.Add(-time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	// (110*2 - 1) - (100*2 - 1) = 20
	assert.InDelta(t, 20.0, got, 1e-9)
}

func TestCalculateProfitNoSells(t *testing.T) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	mx := newFakeAdapter()
	mx.trades = []models.Trade{
		{Symbol: "BTCUSDT", Side: models.SideBuy, Price: 100, Qty: 1, Fee: 1, Time: base},
	}
	r := newTestRobot(t, mx, &fakeRobotStore{}, []string{"BTCUSDT"})

	got, err := r.CalculateProfit(context.Background(), base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, got)
}
