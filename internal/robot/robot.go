package robot

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"crossbot/internal/exchange"
	"crossbot/internal/models"
	"crossbot/internal/notify"
	"crossbot/internal/order"
	"crossbot/internal/signal"
	"crossbot/internal/sizing"
	"crossbot/pkg/logger"
)

// Store — персистентность движка: долгие ряды средних и записи ордеров.
type Store interface {
	FindLatestAverages(ctx context.Context, exchange, symbol string) (fast, slow []float64, err error)
	AppendAverages(ctx context.Context, exchange, symbol string, fast, slow float64) error
	CreateOrder(ctx context.Context, o *models.Order, exchange string) (bool, error)
}

// Executor — жизненный цикл одного ордера (см. internal/order).
type Executor interface {
	Execute(ctx context.Context, inst *models.Instrument, side string, qty float64) (bool, error)
}

// Health — крючки для health-модуля; nil допустим.
type Health interface {
	SetReady(v bool)
	SetWSConnected(v bool)
	TouchTick(t time.Time)
}

type Config struct {
	Symbols      []string
	CandlePeriod string // таймфрейм свечей: "1h" binance, "H1" hitbtc

	FastWindow int // точек в быстром окне
	SlowWindow int

	LoopInterval  time.Duration // периодический цикл
	ScalpInterval time.Duration // реактивный стоп-лосс контур
	EvalStagger   time.Duration // пауза между инструментами в fan-out

	StopGap     float64 // абсолютный зазор стоп-цены в котировочной валюте
	LiveHistory int     // ёмкость живой истории пар (fast, slow)
	SeedPoints  int     // сколько персистентных точек заливать на старте
}

func (c *Config) applyDefaults() {
	if c.CandlePeriod == "" {
		c.CandlePeriod = "1h"
	}
	if c.FastWindow <= 0 {
		c.FastWindow = 9
	}
	if c.SlowWindow <= 0 {
		c.SlowWindow = 34
	}
	if c.LoopInterval <= 0 {
		c.LoopInterval = 3600 * time.Second
	}
	if c.ScalpInterval <= 0 {
		c.ScalpInterval = 420 * time.Second
	}
	if c.EvalStagger <= 0 {
		c.EvalStagger = time.Second
	}
	if c.StopGap <= 0 {
		c.StopGap = 100
	}
	if c.LiveHistory <= 0 {
		c.LiveHistory = 10
	}
	if c.SeedPoints <= 0 {
		c.SeedPoints = 4
	}
}

// state — всё изменяемое по одному инструменту. Мьютекс сериализует
// периодический и реактивный контуры: оба решают по side/stop, и без
// замка возможна двойная отправка выхода из одной позиции.
type state struct {
	mu      sync.Mutex
	inst    models.Instrument
	history *signal.History
	stop    float64 // якорь стоп-цены; 0 — не взведён
}

// Robot — стратегический движок одной биржи: владеет расписанием,
// реактивным контуром и состоянием инструментов. Экземпляры разных бирж
// полностью независимы.
type Robot struct {
	cfg     Config
	mx      exchange.Adapter
	store   Store
	signals *signal.Service
	alloc   *sizing.Allocator
	exec    Executor
	n       notify.Notifier
	health  Health

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	instruments map[string]*state
	amount      float64
	balances    []models.Balance

	loopMu sync.Mutex
	loopN  int
	stop   context.CancelFunc // периодический таймер

	scalpMu   sync.Mutex
	scalpStop context.CancelFunc

	pricesMu sync.RWMutex
	prices   map[string]models.PriceQuote
}

func New(cfg Config, mx exchange.Adapter, store Store, n notify.Notifier, health Health) *Robot {
	cfg.applyDefaults()
	if n == nil {
		n = notify.Nop{}
	}
	if health == nil {
		health = noopHealth{}
	}

	r := &Robot{
		cfg:         cfg,
		mx:          mx,
		store:       store,
		signals:     signal.NewService(nil),
		alloc:       sizing.NewAllocator(mx),
		n:           n,
		health:      health,
		instruments: make(map[string]*state),
		prices:      make(map[string]models.PriceQuote),
	}
	r.exec = order.NewExecutor(mx, store, r.Quote, n)
	return r
}

// Start: начальный цикл баланса и сигналов, подсев истории из БД, лента
// цен, периодический таймер и один немедленный прогон.
func (r *Robot) Start(parent context.Context) error {
	r.ctx, r.cancel = context.WithCancel(parent)

	if err := r.refresh(r.ctx); err != nil {
		return errors.Wrap(err, "initial refresh")
	}
	r.seedAverages(r.ctx)

	if err := r.startFeed(r.ctx); err != nil {
		return errors.Wrap(err, "price feed")
	}

	r.Toggle(true)
	go r.runTick(r.ctx)

	r.health.SetReady(true)
	logger.Info("[%s] robot started: %d instruments", r.title(), len(r.cfg.Symbols))
	return nil
}

// Toggle включает/выключает периодический таймер, не трогая накопленную
// историю сигналов. Идемпотентен в обе стороны.
func (r *Robot) Toggle(enabled bool) {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()

	if enabled {
		if r.stop != nil {
			return // уже тикает
		}
		if r.ctx == nil {
			return // Start ещё не вызывали, таймеру не от чего наследоваться
		}
		ctx, cancel := context.WithCancel(r.ctx)
		r.stop = cancel
		r.loopN++
		go r.loop(ctx)
		return
	}

	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
}

// Stop мягко гасит движок; уже отправленный ордер доводится исполнителем
// или бросается с warning при обрыве посреди опроса.
func (r *Robot) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.health.SetReady(false)
}

func (r *Robot) title() string { return r.mx.Meta().Title }

func (r *Robot) loop(ctx context.Context) {
	defer func() {
		r.loopMu.Lock()
		r.loopN--
		r.loopMu.Unlock()
	}()

	t := time.NewTicker(r.cfg.LoopInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			// позиции могли поменяться извне — пересчитываем балансы
			if err := r.refresh(ctx); err != nil {
				// транзиентный сбой чтения: цикл пропускаем, прежний
				// снимок инструментов остаётся, повтор на следующем тике
				logger.Error("[%s] refresh cycle aborted: %v", r.title(), err)
				continue
			}
			r.runTick(ctx)
		}
	}
}

// activeLoops — количество живых периодических таймеров.
func (r *Robot) activeLoops() int {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	return r.loopN
}

// states — срез инструментных стейтов в порядке конфига.
func (r *Robot) states() []*state {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*state, 0, len(r.cfg.Symbols))
	for _, sym := range r.cfg.Symbols {
		if st, ok := r.instruments[sym]; ok {
			out = append(out, st)
		}
	}
	return out
}

type noopHealth struct{}

func (noopHealth) SetReady(bool)       {}
func (noopHealth) SetWSConnected(bool) {}
func (noopHealth) TouchTick(time.Time) {}
