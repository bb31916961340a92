package control

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vietddude/fundwatch/internal/core/domain"
	"github.com/vietddude/fundwatch/internal/detection/analytics"
	"github.com/vietddude/fundwatch/internal/detection/engine"
	"github.com/vietddude/fundwatch/internal/indexing/indexer"
	"github.com/vietddude/fundwatch/internal/indexing/metrics"
)

// chainRuntime is everything running for one chain.
type chainRuntime struct {
	id        domain.ChainID
	name      string
	engine    *engine.Engine
	window    *analytics.Window
	processor *indexer.Processor
	pipeline  *indexer.Pipeline // rpc source
	stream    *streamStatus     // kafka source
	lost      atomic.Bool       // another instance took the chain lock
}

func (rt *chainRuntime) flush(ctx context.Context) error {
	if rt.pipeline != nil {
		return rt.pipeline.Flush(ctx)
	}
	return rt.processor.FlushAll(ctx)
}

// streamStatus reports health for a chain fed by the Kafka consumer.
type streamStatus struct {
	chainID domain.ChainID
	engine  *engine.Engine
	running atomic.Bool
	errors  atomic.Int64
	last    atomic.Uint64
}

func (s *streamStatus) GetStatus() indexer.Status {
	return indexer.Status{
		ChainID:           s.chainID,
		Running:           s.running.Load(),
		CurrentBlock:      s.last.Load(),
		LatestBlock:       s.last.Load(),
		ConsecutiveErrors: int(s.errors.Load()),
		PendingFindings:   s.engine.Pending(),
		TrackedAddresses:  s.engine.TrackedCount(),
	}
}

// handleTransaction routes a consumed transaction to its chain's engine.
// Transactions for chains this instance does not watch are skipped.
func (d *Detector) handleTransaction(ctx context.Context, tx *domain.Transaction) error {
	rt := d.chainFor(tx.ChainID)
	if rt == nil {
		metrics.MalformedMessages.WithLabelValues(d.cfg.Kafka.TransactionTopic).Inc()
		d.log.Warn("Skipping transaction for unwatched chain", "chain_id", tx.ChainID, "tx", tx.Hash)
		return nil
	}
	if rt.lost.Load() {
		d.log.Debug("Skipping transaction for chain owned elsewhere", "chain", rt.name, "tx", tx.Hash)
		return nil
	}
	if err := rt.processor.ProcessTransaction(ctx, tx); err != nil {
		rt.stream.errors.Add(1)
		return err
	}
	rt.stream.errors.Store(0)
	rt.stream.last.Store(tx.BlockNumber)
	return nil
}

func (d *Detector) chainFor(id domain.ChainID) *chainRuntime {
	for _, rt := range d.chains {
		if rt.id == id {
			return rt
		}
	}
	return nil
}

func (d *Detector) runConsumer(ctx context.Context) {
	for _, rt := range d.chains {
		rt.stream.running.Store(!rt.lost.Load())
	}
	defer func() {
		for _, rt := range d.chains {
			rt.stream.running.Store(false)
		}
	}()

	if err := d.consumer.Run(ctx, d.handleTransaction); err != nil && ctx.Err() == nil {
		d.log.Error("Kafka source stopped", "error", err)
	}
}

func (d *Detector) runSnapshots(ctx context.Context) {
	interval := d.cfg.Detector.Analytics.SnapshotInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.persistSnapshots(ctx)
		}
	}
}

func (d *Detector) persistSnapshots(ctx context.Context) {
	if d.redis == nil {
		return
	}
	for _, rt := range d.chains {
		if err := rt.window.Persist(ctx, d.redis, rt.id); err != nil {
			d.log.Warn("Failed to persist analytics snapshot", "chain", rt.name, "error", err)
		}
	}
}

// runLockRefresh keeps chain ownership alive. A chain whose lock was taken
// over is stopped.
func (d *Detector) runLockRefresh(ctx context.Context) {
	ticker := time.NewTicker(lockRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, rt := range d.chains {
				if rt.lost.Load() {
					continue
				}
				if err := d.redis.RefreshLock(ctx, rt.id, d.owner, lockTTL); err != nil {
					if ctx.Err() != nil {
						return
					}
					d.loseChain(rt, err)
				}
			}
		}
	}
}

// loseChain stops all work on a chain whose lock is no longer ours.
func (d *Detector) loseChain(rt *chainRuntime, err error) {
	rt.lost.Store(true)
	d.log.Error("Lost chain ownership", "chain", rt.name, "error", err)
	if rt.pipeline != nil {
		_ = rt.pipeline.Stop()
	}
	if rt.stream != nil {
		rt.stream.running.Store(false)
	}
}

func (d *Detector) releaseLocks(ctx context.Context) {
	if d.redis == nil {
		return
	}
	for _, chainCfg := range d.cfg.Chains {
		if err := d.redis.ReleaseLock(ctx, chainCfg.ChainID, d.owner); err != nil {
			d.log.Warn("Failed to release chain lock", "chain", chainCfg.ChainID, "error", err)
		}
	}
}
