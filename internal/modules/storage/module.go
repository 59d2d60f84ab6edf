package storage

import (
	"go.uber.org/fx"

	"crossbot/internal/robot"
)

func asRobotStore(s *Store) robot.Store { return s }

func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(
			New,
			asRobotStore,
		),
	)
}
