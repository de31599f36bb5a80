package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"intelterm/internal/core"
)

// Source - один источник данных для сборщика.
type Source interface {
	Name() string
	Fetch(ctx context.Context, query string) ([]core.Item, error)
}

// Collector опрашивает источники параллельно и склеивает результат.
// Отказ части источников фиксируется в Dataset.Failures; ошибка
// возвращается, только если отказали все.
type Collector struct {
	sources []Source
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// New создает сборщик. timeout <= 0 отключает собственный таймаут.
func New(timeout time.Duration, logger *zap.Logger, sources ...Source) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{
		sources: sources,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// CollectAll реализует core.DataCollector.
func (c *Collector) CollectAll(ctx context.Context, opts core.CollectOptions) (core.Dataset, error) {
	ds := core.Dataset{Query: opts.Query, CollectedAt: c.now().UTC()}
	if len(c.sources) == 0 {
		return ds, nil
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	items := make([][]core.Item, len(c.sources))
	errs := make([]error, len(c.sources))
	var g errgroup.Group
	for i, src := range c.sources {
		g.Go(func() error {
			items[i], errs[i] = src.Fetch(ctx, opts.Query)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for i, src := range c.sources {
		if errs[i] != nil {
			if ds.Failures == nil {
				ds.Failures = make(map[string]string)
			}
			ds.Failures[src.Name()] = errs[i].Error()
			failed = append(failed, fmt.Errorf("%s: %w", src.Name(), errs[i]))
			c.logger.Warn("source failed", zap.String("source", src.Name()), zap.Error(errs[i]))
			continue
		}
		ds.Sources = append(ds.Sources, src.Name())
		ds.Items = append(ds.Items, items[i]...)
	}
	if len(failed) == len(c.sources) {
		return ds, fmt.Errorf("all sources failed: %w", errors.Join(failed...))
	}
	return ds, nil
}
