package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crossbot/internal/exchange"
	"crossbot/internal/models"
)

type fakeExchange struct {
	submitResp models.Order
	submitErr  error
	pollResp   models.Order
	pollErr    error
	cancelResp models.Order

	submits int
	polls   int
	cancels int
}

func (f *fakeExchange) Meta() exchange.Meta {
	return exchange.Meta{Title: "binance", Quote: "USDT", OrderType: "MARKET"}
}

func (f *fakeExchange) SubmitOrder(_ context.Context, _, side, _ string, qty float64) (models.Order, error) {
	f.submits++
	return f.submitResp, f.submitErr
}

func (f *fakeExchange) GetOrder(context.Context, string, string) (models.Order, error) {
	f.polls++
	return f.pollResp, f.pollErr
}

func (f *fakeExchange) CancelOrder(context.Context, string, string) (models.Order, error) {
	f.cancels++
	return f.cancelResp, nil
}

type fakeStore struct {
	created bool
	err     error
	last    *models.Order
	calls   int
}

func (f *fakeStore) CreateOrder(_ context.Context, o *models.Order, _ string) (bool, error) {
	f.calls++
	f.last = o
	return f.created, f.err
}

func snapshotOf(ask, bid float64) Snapshot {
	return func(string) (models.PriceQuote, bool) {
		return models.PriceQuote{Ask: ask, Bid: bid}, true
	}
}

func newTestExecutor(mx Exchange, store Store, snap Snapshot) *Executor {
	e := NewExecutor(mx, store, snap, nil)
	e.pollDelay = time.Millisecond
	return e
}

func inst() *models.Instrument {
	return &models.Instrument{Symbol: "BTCUSDT", MinQty: "0.001", Qty: 0.05}
}

func TestExecuteImmediateFillSkipsPoll(t *testing.T) {
	mx := &fakeExchange{
		submitResp: models.Order{OrderID: "1", Status: models.OrderStatusFilled, Filled: 0.05},
	}
	store := &fakeStore{created: true}
	e := newTestExecutor(mx, store, snapshotOf(10100, 10000))

	ok, err := e.Execute(context.Background(), inst(), models.SideBuy, 0.05)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 0, mx.polls, "при мгновенном исполнении опроса быть не должно")
	assert.Equal(t, 0, mx.cancels)
	assert.Equal(t, 1, store.calls)
}

func TestExecuteOpenOrderSinglePoll(t *testing.T) {
	mx := &fakeExchange{
		submitResp: models.Order{OrderID: "1", Status: models.OrderStatusNew},
		pollResp:   models.Order{OrderID: "1", Status: models.OrderStatusFilled, Filled: 0.05},
	}
	store := &fakeStore{created: true}
	e := newTestExecutor(mx, store, snapshotOf(10100, 10000))

	ok, err := e.Execute(context.Background(), inst(), models.SideBuy, 0.05)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, mx.polls, "ровно один опрос на отправку")
	assert.Equal(t, 0, mx.cancels, "добитый ордер не отменяем")
}

func TestExecutePartialFillCancelsRemainder(t *testing.T) {
	mx := &fakeExchange{
		submitResp: models.Order{OrderID: "1", Status: models.OrderStatusNew},
		pollResp:   models.Order{OrderID: "1", Status: models.OrderStatusPartially, Filled: 0.02},
		cancelResp: models.Order{OrderID: "1", Status: models.OrderStatusCanceled, Filled: 0.02},
	}
	store := &fakeStore{created: true}
	e := newTestExecutor(mx, store, snapshotOf(10100, 10000))

	ok, err := e.Execute(context.Background(), inst(), models.SideBuy, 0.05)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, 1, mx.polls)
	assert.Equal(t, 1, mx.cancels, "частичное исполнение — ровно одна отмена остатка")

	require.NotNil(t, store.last)
	assert.Equal(t, models.OrderStatusExecuted, store.last.Status)
	assert.Equal(t, 0.02, store.last.Filled, "в запись идёт исполненное количество")
}

func TestExecuteRecordPriceSides(t *testing.T) {
	for _, c := range []struct {
		side string
		want float64
	}{
		{models.SideBuy, 10100},  // покупка по ask
		{models.SideSell, 10000}, // продажа по bid
	} {
		mx := &fakeExchange{
			submitResp: models.Order{OrderID: "1", Status: models.OrderStatusFilled, Filled: 0.05},
		}
		store := &fakeStore{created: true}
		e := newTestExecutor(mx, store, snapshotOf(10100, 10000))

		_, err := e.Execute(context.Background(), inst(), c.side, 0.05)
		require.NoError(t, err)
		require.NotNil(t, store.last)
		assert.Equal(t, c.want, store.last.Price, "side=%s", c.side)
	}
}

func TestExecuteSubmitFailure(t *testing.T) {
	mx := &fakeExchange{submitErr: assert.AnError}
	store := &fakeStore{created: true}
	e := newTestExecutor(mx, store, snapshotOf(10100, 10000))

	ok, err := e.Execute(context.Background(), inst(), models.SideBuy, 0.05)
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Equal(t, 0, store.calls, "без подтверждённой сделки записи нет")
}

func TestExecutePollFailureDoesNotPersist(t *testing.T) {
	mx := &fakeExchange{
		submitResp: models.Order{OrderID: "1", Status: models.OrderStatusNew},
		pollErr:    assert.AnError,
	}
	store := &fakeStore{created: true}
	e := newTestExecutor(mx, store, snapshotOf(10100, 10000))

	ok, err := e.Execute(context.Background(), inst(), models.SideBuy, 0.05)
	assert.False(t, ok)
	assert.Error(t, err)

	assert.Equal(t, 1, mx.polls)
	assert.Equal(t, 0, mx.cancels)
	// терминальный статус неизвестен — записи "executed" быть не должно
	assert.Equal(t, 0, store.calls)
}

func TestExecutePersistenceMissIsNotFatal(t *testing.T) {
	mx := &fakeExchange{
		submitResp: models.Order{OrderID: "1", Status: models.OrderStatusFilled, Filled: 0.05},
	}
	store := &fakeStore{created: false}
	e := newTestExecutor(mx, store, snapshotOf(10100, 10000))

	ok, err := e.Execute(context.Background(), inst(), models.SideSell, 0.05)
	assert.False(t, ok)
	assert.NoError(t, err, "сделка состоялась, отсутствие записи — не ошибка исполнения")
}
