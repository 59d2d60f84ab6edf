package postgres

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	"crossbot/internal/modules/config"
	"crossbot/pkg/db"
)

func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster), nil
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, m *db.PgTxManager) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					m.Close()
					return nil
				},
			})
		}),
	)
}
