package robot

import (
	"context"

	"go.uber.org/fx"

	"crossbot/internal/exchange"
	"crossbot/internal/modules/config"
	healthsvc "crossbot/internal/modules/health/service"
	"crossbot/internal/notify"
	"crossbot/pkg/logger"
)

func asHealth(s *healthsvc.State) Health { return s }

// NewRobots собирает по роботу на каждую биржу из конфига.
func NewRobots(cfg *config.Config, store Store, n notify.Notifier, health Health) ([]*Robot, error) {
	robots := make([]*Robot, 0, len(cfg.Exchanges))
	for _, ex := range cfg.Exchanges {
		mx, err := exchange.New(ex.Title, ex.Key, ex.Secret, ex.Passphrase)
		if err != nil {
			return nil, err
		}
		robots = append(robots, New(Config{
			Symbols:       ex.Symbols,
			CandlePeriod:  cfg.Robot.CandlePeriod,
			FastWindow:    cfg.Robot.FastWindow,
			SlowWindow:    cfg.Robot.SlowWindow,
			LoopInterval:  cfg.Robot.LoopInterval,
			ScalpInterval: cfg.Robot.ScalpInterval,
			StopGap:       cfg.Robot.StopGap,
		}, mx, store, n, health))
	}
	return robots, nil
}

func Module() fx.Option {
	return fx.Module("robot",
		fx.Provide(
			NewManager,
			NewRobots,
			asHealth,
		),
		fx.Invoke(func(lc fx.Lifecycle, m *Manager, robots []*Robot) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					for _, r := range robots {
						if err := m.Run(context.Background(), r); err != nil {
							m.StopAll()
							return err
						}
						logger.Info("robot started: %s", r.mx.Meta().Title)
					}
					return nil
				},
				OnStop: func(ctx context.Context) error {
					m.StopAll()
					return nil
				},
			})
		}),
	)
}
