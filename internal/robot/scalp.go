package robot

import (
	"context"
	"time"

	"crossbot/internal/helper"
	"crossbot/internal/models"
	"crossbot/pkg/logger"
)

// Реактивный контур: между плановыми тиками следим за живой ценой и
// выходим/входим по якорю стоп-цены. Якорь — храповик: для удержания
// двигается только вверх вслед за ценой.

// armStopLocked взводит якорь; вызывается под st.mu.
func (r *Robot) armStopLocked(st *state) {
	bid := st.inst.Bid
	if q, ok := r.Quote(st.inst.Symbol); ok {
		bid = q.Bid
	}
	st.stop = bid + r.cfg.StopGap
	logger.Info("[%s] стоп-якорь %s взведён: %.2f", r.title(), st.inst.Symbol, st.stop)
}

// startScalp поднимает реактивный таймер, если он ещё не крутится.
func (r *Robot) startScalp() {
	r.scalpMu.Lock()
	defer r.scalpMu.Unlock()
	if r.scalpStop != nil {
		return
	}
	ctx, cancel := context.WithCancel(r.ctx)
	r.scalpStop = cancel
	go r.scalpLoop(ctx)
}

func (r *Robot) stopScalp() {
	r.scalpMu.Lock()
	defer r.scalpMu.Unlock()
	if r.scalpStop != nil {
		r.scalpStop()
		r.scalpStop = nil
	}
}

func (r *Robot) scalpLoop(ctx context.Context) {
	t := time.NewTicker(r.cfg.ScalpInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !r.anyArmed() {
				// все якоря сняты — контур больше не нужен
				r.stopScalp()
				return
			}
			r.doScalping(ctx)
		}
	}
}

func (r *Robot) anyArmed() bool {
	for _, st := range r.states() {
		st.mu.Lock()
		armed := st.stop != 0
		st.mu.Unlock()
		if armed {
			return true
		}
	}
	return false
}

// doScalping — быстрый проход: side/qty пересчитываются от живого
// баланса и снимка цен (без похода за свечами), затем решение по якорю.
func (r *Robot) doScalping(ctx context.Context) {
	balances, err := r.mx.GetBalances(ctx)
	if err != nil {
		logger.Error("[%s] scalp balances: %v", r.title(), err)
		return
	}
	amount := r.alloc.AllocationFromSnapshot(balances, r.Quote, len(r.cfg.Symbols))

	r.mu.Lock()
	r.balances = balances
	r.amount = amount
	r.mu.Unlock()

	for i, st := range r.states() {
		if i > 0 && !helper.Stagger(ctx, time.Second) {
			return
		}
		r.scalpOne(ctx, st, balances, amount)
	}
}

func (r *Robot) scalpOne(ctx context.Context, st *state, balances []models.Balance, amount float64) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if q, ok := r.Quote(st.inst.Symbol); ok {
		st.inst.Ask = q.Ask
		st.inst.Bid = q.Bid
	}
	if err := r.alloc.ClassifySide(&st.inst, balances, amount); err != nil {
		logger.Warn("[%s] scalp classify %s: %v", r.title(), st.inst.Symbol, err)
		return
	}
	if st.stop == 0 {
		return
	}

	inst := st.inst
	switch inst.Side {
	case models.SideSell:
		if inst.Ask > st.stop {
			// цена выросла — фиксируем якорь выше
			st.stop = inst.Ask
			logger.Info("[%s] якорь %s подтянут: %.2f", r.title(), inst.Symbol, st.stop)
			return
		}
		if inst.Ask <= st.stop-r.cfg.StopGap {
			logger.Info("[%s] стоп-лосс %s: продаю %.8f по %.2f", r.title(), inst.Symbol, inst.Qty, inst.Bid)
			if _, err := r.exec.Execute(ctx, &inst, models.SideSell, inst.Qty); err != nil {
				return
			}
			st.inst.Side = models.SideBuy
			st.stop = 0
			r.n.Sendf("🛑 [%s] стоп-лосс: %s продан", r.title(), inst.Symbol)
		}

	case models.SideBuy:
		if inst.Ask >= st.stop-r.cfg.StopGap {
			logger.Info("[%s] реактивный вход %s: покупаю %.8f по %.2f", r.title(), inst.Symbol, inst.Qty, inst.Ask)
			if _, err := r.exec.Execute(ctx, &inst, models.SideBuy, inst.Qty); err != nil {
				return
			}
			st.inst.Side = models.SideSell
			st.stop = inst.Bid + r.cfg.StopGap // перевзводим на новую позицию
		}
	}
}
