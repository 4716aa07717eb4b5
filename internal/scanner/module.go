package scanner

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"

	"scanner_bot/internal/exchange"
	"scanner_bot/internal/modules/config"
	"scanner_bot/internal/notify"
	"scanner_bot/internal/storage"
	"scanner_bot/internal/tracker"
	"scanner_bot/internal/validator"
	"scanner_bot/pkg/db"
	"scanner_bot/pkg/logger"
)

func Module() fx.Option {
	return fx.Module("scanner",
		fx.Provide(
			exchange.NewClient,
			func(c *exchange.Client) Market { return c },
			func(c *exchange.Client, cfg *config.Config) *validator.Pool {
				vc := validator.DefaultConfig()
				vc.Timeframe = cfg.TFValidation
				return validator.NewPool(c, vc)
			},
			func(c *exchange.Client, cfg *config.Config) *tracker.Tracker {
				return tracker.New(c, c, cfg.TFValidation)
			},
			func(tx *db.PgTxManager) *storage.Repo {
				return storage.New(tx)
			},
			func(cfg *config.Config, market Market, notif *notify.Service, repo *storage.Repo, pool *validator.Pool, trk *tracker.Tracker) *Service {
				return NewService(cfg, market, notif, repo, pool, trk)
			},
		),
		fx.Invoke(
			// сканер — источник операций для команд телеграма
			func(s *Service, notif *notify.Service) {
				notif.SetOperator(s)
			},
			// главный цикл + WS-поток цен + дневной отчёт
			func(lc fx.Lifecycle, s *Service, c *exchange.Client, notif *notify.Service) {
				ctx, cancel := context.WithCancel(context.Background())
				cr := cron.New()
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go s.Run(ctx)
						go s.streamPrices(ctx, c)
						if _, err := cr.AddFunc("0 9 * * *", func() {
							_ = notif.SendText("🗓 Дневной отчёт\n\n" + s.StatusText())
						}); err != nil {
							return err
						}
						cr.Start()
						return nil
					},
					OnStop: func(context.Context) error {
						cancel()
						<-cr.Stop().Done()
						return nil
					},
				})
			},
		),
	)
}

// streamPrices подписывает WS на символы вселенной сканера.
func (s *Service) streamPrices(ctx context.Context, c *exchange.Client) {
	syms, err := c.TopSymbols(ctx, s.currentPreset().MinVolValueUSDT)
	if err != nil {
		logger.Error("ws universe: %v", err)
		return
	}
	names := make([]string, 0, len(syms))
	for _, t := range syms {
		names = append(names, t.Symbol)
	}
	c.StreamPrices(ctx, names)
}
