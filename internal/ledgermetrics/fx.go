package ledgermetrics

import (
	"context"

	"github.com/smallbiznis/feeledger/internal/config"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Ledger domain.Service
	Pusher Pusher `optional:"true"`
}

var Module = fx.Module("ledger.metrics",
	fx.Provide(NewPusher),
	fx.Invoke(register),
)

func register(lc fx.Lifecycle, p Params) error {
	if p.Pusher == nil {
		return nil
	}
	worker, err := NewWorker(p.Ledger, p.Pusher, p.Config.MetricsPush.Interval, p.Log)
	if err != nil {
		return err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			worker.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return worker.Stop(ctx)
		},
	})
	return nil
}
