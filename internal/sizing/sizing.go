package sizing

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"crossbot/internal/exchange"
	"crossbot/internal/helper"
	"crossbot/internal/models"
)

// Exchange — читающая часть адаптера, нужная сайзингу.
type Exchange interface {
	Meta() exchange.Meta
	GetBalances(ctx context.Context) ([]models.Balance, error)
	GetTickers(ctx context.Context) ([]models.PriceQuote, error)
}

// Allocator переводит сырые балансы в сумму на инструмент и стартовую
// сторону позиции.
type Allocator struct {
	mx Exchange
}

func NewAllocator(mx Exchange) *Allocator {
	return &Allocator{mx: mx}
}

// ComputeAllocation: ценим все не-котировочные балансы по лучшему bid,
// складываем со свободной котировочной валютой, удерживаем маржу и делим
// поровну на инструменты. Возвращает также балансы, вошедшие в оценку.
func (a *Allocator) ComputeAllocation(ctx context.Context, instrumentCount int) (float64, []models.Balance, error) {
	if instrumentCount <= 0 {
		return 0, nil, errors.New("instrument count must be positive")
	}
	meta := a.mx.Meta()

	balances, err := a.mx.GetBalances(ctx)
	if err != nil {
		return 0, nil, errors.Wrap(err, "balance unavailable")
	}
	tickers, err := a.mx.GetTickers(ctx)
	if err != nil {
		return 0, nil, errors.Wrap(err, "balance unavailable")
	}
	bids := make(map[string]float64, len(tickers))
	for _, t := range tickers {
		bids[t.Symbol] = t.Bid
	}

	total := 0.0
	eligible := make([]models.Balance, 0, len(balances))
	for _, b := range balances {
		if b.Asset == meta.Quote {
			total += b.Free
			continue
		}
		if b.Free <= 0 || meta.IsExcluded(b.Asset) {
			continue
		}
		bid, ok := bids[meta.Pair(b.Asset)]
		if !ok || bid <= 0 {
			// актив без рынка против котировочной валюты не ценим
			continue
		}
		total += b.Free * bid
		eligible = append(eligible, b)
	}

	amount := total * (1 - meta.Margin) / float64(instrumentCount)
	return amount, eligible, nil
}

// AllocationFromSnapshot — быстрый пересчёт суммы по живому снимку цен,
// без похода за тикерами (реактивный контур).
func (a *Allocator) AllocationFromSnapshot(
	balances []models.Balance,
	snapshot func(symbol string) (models.PriceQuote, bool),
	instrumentCount int,
) float64 {
	if instrumentCount <= 0 {
		return 0
	}
	meta := a.mx.Meta()
	total := 0.0
	for _, b := range balances {
		if b.Asset == meta.Quote {
			total += b.Free
			continue
		}
		if b.Free <= 0 || meta.IsExcluded(b.Asset) {
			continue
		}
		if q, ok := snapshot(meta.Pair(b.Asset)); ok && q.Bid > 0 {
			total += b.Free * q.Bid
		}
	}
	return total * (1 - meta.Margin) / float64(instrumentCount)
}

// ClassifySide: удержание базового актива меньше минимального шага —
// позиция плоская (buy), количество от аллокации; иначе держим (sell),
// количество — весь доступный остаток, прижатый к шагу.
func (a *Allocator) ClassifySide(inst *models.Instrument, balances []models.Balance, amount float64) error {
	base := helper.BaseAsset(inst.Symbol, a.mx.Meta().Quote)
	available := 0.0
	for _, b := range balances {
		if b.Asset == base {
			available = b.Free
			break
		}
	}

	minQty, err := strconv.ParseFloat(inst.MinQty, 64)
	if err != nil {
		return errors.Wrapf(err, "parse minQty %q", inst.MinQty)
	}

	if available <= minQty {
		inst.Side = models.SideBuy
		if inst.Ask > 0 {
			qty, err := FilterQuantity(amount/inst.Ask, inst.MinQty)
			if err != nil {
				return err
			}
			inst.Qty = qty
		}
		return nil
	}

	qty, err := FilterQuantity(available, inst.MinQty)
	if err != nil {
		return err
	}
	inst.Side = models.SideSell
	inst.Qty = qty
	return nil
}

// FilterQuantity прижимает количество вниз к точному кратному шага биржи
// и округляет до знаков, которые шаг диктует (0 знаков при шаге >= 1).
// Некратное количество биржа отклонит.
func FilterQuantity(qty float64, minStep string) (float64, error) {
	step, err := strconv.ParseFloat(minStep, 64)
	if err != nil || step <= 0 {
		return 0, errors.Errorf("bad quantity step %q", minStep)
	}

	decimals := 0
	if step < 1 {
		if i := strings.IndexByte(minStep, '.'); i >= 0 {
			decimals = len(minStep) - i - 1
		}
	}

	steps := math.Floor(qty/step + 1e-9)
	out := steps * step
	pow := math.Pow(10, float64(decimals))
	return math.Round(out*pow) / pow, nil
}
