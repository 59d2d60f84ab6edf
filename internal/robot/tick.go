package robot

import (
	"context"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"crossbot/internal/helper"
	"crossbot/internal/models"
	"crossbot/pkg/logger"
)

// runTick — один проход периодического контура: обновить сигналы всех
// инструментов, затем независимо оценить каждый. Падение одного
// инструмента не мешает соседям.
func (r *Robot) runTick(ctx context.Context) {
	span := opentracing.StartSpan("robot.tick")
	span.SetTag("exchange", r.title())
	defer span.Finish()

	r.health.TouchTick(time.Now())

	states := r.states()
	for _, st := range states {
		r.refreshSignal(ctx, st)
	}

	var wg sync.WaitGroup
	for i, st := range states {
		wg.Add(1)
		go func(i int, st *state) {
			defer wg.Done()
			// ступенчатый старт по индексу, чтобы не упереться в rate limit
			if !helper.Stagger(ctx, time.Duration(i)*r.cfg.EvalStagger) {
				return
			}
			r.evaluate(ctx, st)
		}(i, st)
	}
	wg.Wait()
}

// refreshSignal добавляет свежую пару (fast, slow) в живую историю и в
// персистентный ряд. Сбой записи в БД не прерывает тик.
func (r *Robot) refreshSignal(ctx context.Context, st *state) {
	st.mu.Lock()
	inst := st.inst
	st.mu.Unlock()

	fast, slow, ok := r.signals.Refresh(&inst)
	if !ok {
		return
	}

	st.mu.Lock()
	st.history.Append(fast, slow)
	st.mu.Unlock()

	if err := r.store.AppendAverages(ctx, r.title(), inst.Symbol, fast, slow); err != nil {
		logger.Warn("[%s] append averages %s: %v", r.title(), inst.Symbol, err)
	}
}

// evaluate решает по одному инструменту под его замком: пересечение
// вверх на плоской позиции — вход, пересечение вниз на удержании —
// выход. Замок держится на время отправки, чтобы реактивный контур не
// продал ту же позицию параллельно.
func (r *Robot) evaluate(ctx context.Context, st *state) {
	st.mu.Lock()
	defer st.mu.Unlock()

	inst := st.inst
	switch inst.Side {
	case models.SideBuy:
		if !st.history.CrossedUp() {
			return
		}
		logger.Info("[%s] cross-up %s: покупаю %.8f по %.2f", r.title(), inst.Symbol, inst.Qty, inst.Ask)
		if _, err := r.exec.Execute(ctx, &inst, models.SideBuy, inst.Qty); err != nil {
			return
		}
		st.inst.Side = models.SideSell
		r.armStopLocked(st)
		r.startScalp()

	case models.SideSell:
		if !st.history.CrossedDown() {
			return
		}
		logger.Info("[%s] cross-down %s: продаю %.8f по %.2f", r.title(), inst.Symbol, inst.Qty, inst.Bid)
		if _, err := r.exec.Execute(ctx, &inst, models.SideSell, inst.Qty); err != nil {
			return
		}
		st.inst.Side = models.SideBuy
		st.stop = 0 // разоружаем якорь вышедшей позиции
		go r.reportProfit(r.ctx)
	}
}
