package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/vietddude/fundwatch/internal/core/domain"
	"github.com/vietddude/fundwatch/internal/indexing/metrics"
)

// Fanout delivers every batch to all emitters concurrently on a bounded
// goroutine pool. A failing emitter is logged and counted; it never fails the batch.
type Fanout struct {
	emitters []Emitter
	pool     *ants.Pool
	logger   *slog.Logger
}

func NewFanout(logger *slog.Logger, emitters ...Emitter) (*Fanout, error) {
	size := len(emitters)
	if size == 0 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create emitter pool: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{emitters: emitters, pool: pool, logger: logger.With("component", "fanout")}, nil
}

func (f *Fanout) Name() string { return "fanout" }

// Emit blocks until every emitter has finished with findings.
func (f *Fanout) Emit(ctx context.Context, findings []domain.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, e := range f.emitters {
		wg.Add(1)
		err := f.pool.Submit(func() {
			defer wg.Done()
			if err := e.Emit(ctx, findings); err != nil {
				f.fail(e.Name(), len(findings), err)
			}
		})
		if err != nil {
			wg.Done()
			f.fail(e.Name(), len(findings), err)
		}
	}
	wg.Wait()
	return nil
}

func (f *Fanout) fail(name string, n int, err error) {
	metrics.SinkFailures.WithLabelValues(name).Add(float64(n))
	f.logger.Error("Failed to deliver findings", "emitter", name, "count", n, "error", err)
}

// Close closes every emitter and releases the pool.
func (f *Fanout) Close() error {
	var errs []error
	for _, e := range f.emitters {
		if err := e.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), err))
		}
	}
	f.pool.Release()
	return errors.Join(errs...)
}
