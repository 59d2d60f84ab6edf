package order

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"crossbot/internal/exchange"
	"crossbot/internal/models"
	"crossbot/internal/notify"
	"crossbot/pkg/logger"
)

// Exchange — пишущая часть адаптера для жизненного цикла ордера.
type Exchange interface {
	Meta() exchange.Meta
	SubmitOrder(ctx context.Context, symbol, side, orderType string, qty float64) (models.Order, error)
	GetOrder(ctx context.Context, symbol, orderID string) (models.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (models.Order, error)
}

// Store — персистентность терминального ордера. created=false означает,
// что запись не создана.
type Store interface {
	CreateOrder(ctx context.Context, o *models.Order, exchange string) (bool, error)
}

// Snapshot отдаёт живой ask/bid по символу (лента цен).
type Snapshot func(symbol string) (models.PriceQuote, bool)

// Executor гонит ордер по машине состояний:
// Submitted -> Filled, либо Submitted -> один опрос -> {Filled |
// не добит -> Cancel -> Canceled}. Ровно одна попытка опроса на ордер;
// маркет-ордера оседают почти мгновенно, бесконечный цикл не нужен.
type Executor struct {
	mx        Exchange
	store     Store
	snapshot  Snapshot
	n         notify.Notifier
	pollDelay time.Duration
}

func NewExecutor(mx Exchange, store Store, snapshot Snapshot, n notify.Notifier) *Executor {
	if n == nil {
		n = notify.Nop{}
	}
	return &Executor{
		mx:        mx,
		store:     store,
		snapshot:  snapshot,
		n:         n,
		pollDelay: time.Second,
	}
}

// Execute отправляет ордер и доводит его до терминального состояния.
// false без ошибки — сделка прошла, но запись в БД не создана: биржевую
// сторону уже не откатить, наверх уходит только предупреждение.
func (e *Executor) Execute(ctx context.Context, inst *models.Instrument, side string, qty float64) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "order.execute")
	defer span.Finish()

	meta := e.mx.Meta()

	ack, err := e.mx.SubmitOrder(ctx, inst.Symbol, side, meta.OrderType, qty)
	if err != nil {
		// самая серьёзная ошибка движка; повторная отправка маркет-ордера
		// вслепую грозит дублем исполнения
		logger.Error("[%s] %s order submit failed %s: %v", meta.Title, side, inst.Symbol, err)
		e.n.Sendf("❗️ [%s] %s %s: ордер не отправлен: %v", meta.Title, side, inst.Symbol, err)
		return false, errors.Wrap(err, "submit order")
	}

	final := ack
	if !ack.IsFilled() {
		if !e.wait(ctx) {
			logger.Warn("[%s] shutdown mid-poll, order %s %s abandoned", meta.Title, ack.OrderID, inst.Symbol)
			return false, ctx.Err()
		}

		// ровно один опрос; частично исполненный остаток снимаем
		polled, perr := e.mx.GetOrder(ctx, inst.Symbol, e.pollID(ack))
		if perr != nil {
			// терминальное состояние неизвестно: ордер мог остаться
			// открытым, писать "executed" по одному ack нельзя
			logger.Error("[%s] poll order %s %s: %v", meta.Title, ack.OrderID, inst.Symbol, perr)
			e.n.Sendf("❗️ [%s] %s %s: статус ордера не получен: %v", meta.Title, side, inst.Symbol, perr)
			return false, errors.Wrap(perr, "poll order")
		}
		final = polled
		if !polled.IsFilled() {
			canceled, cerr := e.mx.CancelOrder(ctx, inst.Symbol, e.pollID(ack))
			if cerr != nil {
				logger.Error("[%s] cancel order %s: %v", meta.Title, ack.OrderID, cerr)
			} else {
				final = canceled
			}
		}
	}

	rec := e.buildRecord(inst, side, final)
	created, err := e.store.CreateOrder(ctx, &rec, meta.Title)
	if err != nil || !created {
		// сделка на бирже уже состоялась — компенсаций нет, только warning
		logger.Warn("[%s] order %s executed but not persisted: %v", meta.Title, rec.OrderID, err)
		return false, nil
	}

	e.n.Sendf("✅ [%s] %s %s qty=%.8f px=%.2f", meta.Title, side, inst.Symbol, rec.Filled, rec.Price)
	return true, nil
}

// pollID: hitbtc адресует ордера clientOrderId, binance — orderId.
func (e *Executor) pollID(ack models.Order) string {
	if ack.OrderID == "" || ack.OrderID == "0" {
		return ack.ClientOrderID
	}
	return ack.OrderID
}

func (e *Executor) buildRecord(inst *models.Instrument, side string, final models.Order) models.Order {
	// цена — из живого снимка: bid при продаже, ask при покупке
	px := 0.0
	if q, ok := e.snapshot(inst.Symbol); ok {
		if side == models.SideSell {
			px = q.Bid
		} else {
			px = q.Ask
		}
	}

	return models.Order{
		OrderID:       final.OrderID,
		ClientOrderID: final.ClientOrderID,
		Symbol:        inst.Symbol,
		Side:          side,
		Type:          e.mx.Meta().OrderType,
		Status:        models.OrderStatusExecuted,
		Quantity:      final.Quantity,
		Filled:        final.Filled,
		Price:         px,
		Fee:           final.Fee,
	}
}

func (e *Executor) wait(ctx context.Context) bool {
	t := time.NewTimer(e.pollDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
