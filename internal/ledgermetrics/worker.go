package ledgermetrics

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/feeledger/internal/feeledger/domain"
	"go.uber.org/zap"
)

const (
	defaultInterval = 5 * time.Minute
	runTimeout      = 30 * time.Second
)

// SnapshotSource returns the current per-status ledger totals.
type SnapshotSource interface {
	Snapshot(ctx context.Context) ([]domain.StatusTotal, error)
}

// Worker periodically refreshes the ledger gauges and pushes them.
type Worker struct {
	source   SnapshotSource
	registry *prometheus.Registry
	gauges   *Gauges
	pusher   Pusher
	interval time.Duration
	log      *zap.Logger

	failing atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewWorker(source SnapshotSource, pusher Pusher, interval time.Duration, log *zap.Logger) (*Worker, error) {
	if source == nil {
		return nil, errors.New("ledger snapshot source is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = defaultInterval
	}
	registry := prometheus.NewRegistry()
	gauges, err := NewGauges(registry)
	if err != nil {
		return nil, err
	}
	return &Worker{
		source:   source,
		registry: registry,
		gauges:   gauges,
		pusher:   pusher,
		interval: interval,
		log:      log.Named("ledger.metrics"),
	}, nil
}

// Registry exposes the registry the gauges live in.
func (w *Worker) Registry() *prometheus.Registry {
	return w.registry
}

// RunOnce refreshes the gauges from a fresh snapshot and pushes them.
func (w *Worker) RunOnce(ctx context.Context) error {
	totals, err := w.source.Snapshot(ctx)
	if err != nil {
		return err
	}
	w.gauges.Update(totals)
	if w.pusher == nil {
		return nil
	}
	return w.pusher.Push(ctx, w.registry)
}

func (w *Worker) Start() {
	if w == nil || w.stopCh != nil {
		return
	}
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})

	go func() {
		defer close(w.doneCh)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.tick()
		for {
			select {
			case <-ticker.C:
				w.tick()
			case <-w.stopCh:
				return
			}
		}
	}()
}

func (w *Worker) Stop(ctx context.Context) error {
	if w == nil || w.stopCh == nil {
		return nil
	}
	close(w.stopCh)
	select {
	case <-w.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	if closer, ok := w.pusher.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// tick logs only the first failure of a streak.
func (w *Worker) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := w.RunOnce(ctx); err != nil {
		if w.failing.CompareAndSwap(false, true) {
			w.log.Warn("ledger metrics push failed", zap.Error(err))
		}
		return
	}
	if w.failing.CompareAndSwap(true, false) {
		w.log.Info("ledger metrics push recovered")
	}
}
