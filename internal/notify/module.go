package notify

import (
	"context"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			New,
		),
		// цикл long polling живёт отдельной горутиной до остановки
		fx.Invoke(
			func(lc fx.Lifecycle, s *Service) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						go func() { _ = s.Start(context.Background()) }()
						return nil
					},
					OnStop: func(ctx context.Context) error {
						s.Stop()
						return nil
					},
				})
			},
		),
	)
}
