package robot

import (
	"context"

	"github.com/pkg/errors"

	"crossbot/internal/helper"
	"crossbot/internal/models"
	"crossbot/internal/signal"
	"crossbot/pkg/logger"
)

// refresh — полный цикл: аллокация от живого баланса, пересборка
// инструментов (мета символа, тикер, свечи), классификация стороны.
// Любой сбой чтения отменяет цикл целиком, прежний снимок остаётся.
func (r *Robot) refresh(ctx context.Context) error {
	meta := r.mx.Meta()

	amount, balances, err := r.alloc.ComputeAllocation(ctx, len(r.cfg.Symbols))
	if err != nil {
		return err
	}

	fresh := make([]models.Instrument, 0, len(r.cfg.Symbols))
	for i, sym := range r.cfg.Symbols {
		if i > 0 && !helper.Stagger(ctx, meta.FetchStagger) {
			return ctx.Err()
		}

		symMeta, err := r.mx.GetSymbol(ctx, sym)
		if err != nil {
			return errors.Wrapf(err, "symbol %s", sym)
		}
		quote, err := r.mx.GetTicker(ctx, sym)
		if err != nil {
			return errors.Wrapf(err, "ticker %s", sym)
		}
		candles, err := r.mx.GetCandles(ctx, sym, r.cfg.CandlePeriod)
		if err != nil {
			return errors.Wrapf(err, "candles %s", sym)
		}

		closes := make([]float64, 0, len(candles))
		for _, c := range candles {
			closes = append(closes, c.Close)
		}

		inst := models.Instrument{
			Symbol:     sym,
			Ask:        quote.Ask,
			Bid:        quote.Bid,
			MinQty:     symMeta.MinQty,
			TickSize:   symMeta.TickSize,
			FastCloses: helper.LastN(closes, r.cfg.FastWindow),
			SlowCloses: helper.LastN(closes, r.cfg.SlowWindow),
		}
		if err := r.alloc.ClassifySide(&inst, balances, amount); err != nil {
			return errors.Wrapf(err, "classify %s", sym)
		}
		fresh = append(fresh, inst)
	}

	// коммит снимка: история и стоп-якорь переживают пересборку
	r.mu.Lock()
	for _, inst := range fresh {
		st := r.instruments[inst.Symbol]
		if st == nil {
			st = &state{history: signal.NewHistory(r.cfg.LiveHistory)}
			r.instruments[inst.Symbol] = st
		}
		st.mu.Lock()
		st.inst = inst
		st.mu.Unlock()
	}
	r.amount = amount
	r.balances = balances
	r.mu.Unlock()

	return nil
}

// seedAverages заливает живую историю хвостом персистентного ряда, чтобы
// детектор пересечений работал сразу после рестарта.
func (r *Robot) seedAverages(ctx context.Context) {
	for _, sym := range r.cfg.Symbols {
		fast, slow, err := r.store.FindLatestAverages(ctx, r.title(), sym)
		if err != nil {
			logger.Warn("[%s] seed averages %s: %v", r.title(), sym, err)
			continue
		}
		if len(fast) == 0 {
			continue
		}

		r.mu.Lock()
		st := r.instruments[sym]
		r.mu.Unlock()
		if st == nil {
			continue
		}

		st.mu.Lock()
		st.history.Seed(
			helper.LastN(fast, r.cfg.SeedPoints),
			helper.LastN(slow, r.cfg.SeedPoints),
		)
		st.mu.Unlock()
	}
}

// startFeed поднимает ленту цен; слушатель только пишет снимок и никогда
// не блокирует читателей надолго.
func (r *Robot) startFeed(ctx context.Context) error {
	ch, err := r.mx.SubscribePriceFeed(ctx, r.cfg.Symbols)
	if err != nil {
		return err
	}
	go func() {
		for q := range ch {
			r.pricesMu.Lock()
			r.prices[q.Symbol] = q
			r.pricesMu.Unlock()
			r.health.SetWSConnected(true)
		}
		r.health.SetWSConnected(false)
	}()
	return nil
}

// Quote — последний живой ask/bid; может отставать от ленты на тик,
// строгой согласованности с историей сигналов не требуется.
func (r *Robot) Quote(symbol string) (models.PriceQuote, bool) {
	r.pricesMu.RLock()
	defer r.pricesMu.RUnlock()
	q, ok := r.prices[symbol]
	return q, ok
}
