package robot

import (
	"context"
	"sort"
	"time"

	"crossbot/internal/helper"
	"crossbot/internal/models"
	"crossbot/pkg/logger"
)

const profitTradeLimit = 1000

// reportProfit шлёт реализованный результат за последний месяц после
// закрытия позиции; сбой чтения истории сделок не критичен.
func (r *Robot) reportProfit(ctx context.Context) {
	end := time.Now()
	p, err := r.CalculateProfit(ctx, end.AddDate(0, -1, 0), end)
	if err != nil {
		logger.Warn("[%s] profit report: %v", r.title(), err)
		return
	}
	r.n.Sendf("📈 [%s] результат за месяц: %.2f", r.title(), p)
}

// CalculateProfit — реализованный результат за окно: выручка продаж
// минус затраты покупок, комиссии вычтены с обеих сторон. Хвост новее
// последней продажи (незакрытый цикл покупки) не учитывается.
func (r *Robot) CalculateProfit(ctx context.Context, start, end time.Time) (float64, error) {
	all := make([]models.Trade, 0, profitTradeLimit)
	for i, sym := range r.cfg.Symbols {
		if i > 0 && !helper.Stagger(ctx, time.Second) {
			return 0, ctx.Err()
		}
		trades, err := r.mx.GetTrades(ctx, sym, profitTradeLimit)
		if err != nil {
			return 0, err
		}
		for _, t := range trades {
			if t.Time.Before(start) || t.Time.After(end) {
				continue
			}
			all = append(all, t)
		}
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })

	// отрезаем всё новее последней продажи
	lastSell := -1
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].Side == models.SideSell {
			lastSell = i
			break
		}
	}
	if lastSell < 0 {
		return 0, nil
	}

	var buy, sell float64
	for _, t := range all[:lastSell+1] {
		amount := t.Price*t.Qty - t.Fee
		if t.Side == models.SideBuy {
			buy += amount
		} else {
			sell += amount
		}
	}
	return sell - buy, nil
}
