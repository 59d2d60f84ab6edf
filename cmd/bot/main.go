package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"crossbot/internal/modules/config"
	"crossbot/internal/modules/health"
	"crossbot/internal/modules/postgres"
	"crossbot/internal/modules/storage"
	"crossbot/internal/notify"
	"crossbot/internal/robot"
	"crossbot/pkg/logger"
	"crossbot/pkg/tracing"
)

const serviceName = "crossbot"

func main() {
	logger.SetServiceName(serviceName)
	logger.Init()
	tracing.SetServiceName(serviceName)

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		storage.Module(),
		health.Module(),
		notify.Module(),
		robot.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					closeTracer()
					return nil
				},
			})
			return nil
		}),
	)
	if err := app.Start(context.Background()); err != nil {
		log.Fatal(err)
	}

	<-app.Done()

	if err := app.Stop(context.Background()); err != nil {
		log.Fatal(err)
	}
}
