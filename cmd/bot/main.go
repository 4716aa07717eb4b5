package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"scanner_bot/internal/modules/config"
	"scanner_bot/internal/modules/postgres"
	"scanner_bot/internal/notify"
	"scanner_bot/internal/scanner"
	"scanner_bot/pkg/logger"
	"scanner_bot/pkg/tracing"
)

func main() {
	logger.SetServiceName("scanner_bot")
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	tracing.SetServiceName("scanner_bot")

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		notify.Module(),
		scanner.Module(),
		fx.Invoke(
			func(lc fx.Lifecycle, cfg *config.Config) {
				closer := func() {}
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						_, c, err := tracing.InitTracer(tracing.Config{
							Host: cfg.Jaeger.Host,
							Port: cfg.Jaeger.Port,
						})
						if err != nil {
							// без трейсинга жить можно
							logger.Error("jaeger init: %v", err)
							return nil
						}
						closer = c
						return nil
					},
					OnStop: func(context.Context) error {
						closer()
						return nil
					},
				})
			},
		),
	)
	app.Run()
}
