package robot

import (
	"context"
	"fmt"
	"sync"
)

// Manager управляет роботами для разных бирж.
type Manager struct {
	mu     sync.Mutex
	robots map[string]*Robot
}

func NewManager() *Manager {
	return &Manager{
		robots: make(map[string]*Robot),
	}
}

// Run стартует робота (если ещё не запущен) и регистрирует его по названию биржи.
func (m *Manager) Run(ctx context.Context, r *Robot) error {
	title := r.mx.Meta().Title

	m.mu.Lock()
	if _, running := m.robots[title]; running {
		m.mu.Unlock()
		return fmt.Errorf("robot already running for %s", title)
	}
	m.robots[title] = r
	m.mu.Unlock()

	if err := r.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.robots, title)
		m.mu.Unlock()
		return fmt.Errorf("start robot %s: %w", title, err)
	}
	return nil
}

// Stop останавливает робота конкретной биржи (если запущен).
func (m *Manager) Stop(title string) error {
	m.mu.Lock()
	r, ok := m.robots[title]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("robot not running for %s", title)
	}
	delete(m.robots, title)
	m.mu.Unlock()

	// гасим вне мьютекса
	r.Stop()
	return nil
}

// StopAll гасит всех — используется при завершении процесса.
func (m *Manager) StopAll() {
	m.mu.Lock()
	robots := make([]*Robot, 0, len(m.robots))
	for title, r := range m.robots {
		robots = append(robots, r)
		delete(m.robots, title)
	}
	m.mu.Unlock()

	for _, r := range robots {
		r.Stop()
	}
}

// Get возвращает запущенного робота по названию биржи.
func (m *Manager) Get(title string) (*Robot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.robots[title]
	return r, ok
}
