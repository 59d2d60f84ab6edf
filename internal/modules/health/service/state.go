package service

import (
	"sync/atomic"
	"time"
)

// State — агрегированное здоровье процесса: готовность роботов, живость
// ценовой ленты и момент последнего стратегического тика.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected  atomic.Bool
	lastTickUnix atomic.Int64 // unix seconds
	tickCount    atomic.Int64
}

func NewState() *State {
	s := &State{startedAt: time.Now()}
	s.ready.Store(false)
	return s
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) TouchTick(t time.Time) {
	s.lastTickUnix.Store(t.Unix())
	s.tickCount.Add(1)
}

func (s *State) LastTick() time.Time {
	u := s.lastTickUnix.Load()
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}

func (s *State) TickCount() int64 { return s.tickCount.Load() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }
