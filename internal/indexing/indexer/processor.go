package indexer

import (
	"context"
	"log/slog"

	"github.com/vietddude/fundwatch/internal/core/domain"
	"github.com/vietddude/fundwatch/internal/indexing/emitter"
	"github.com/vietddude/fundwatch/internal/indexing/metrics"
)

// Processor runs single transactions through a detector and hands the released
// findings to an emitter. Both the block pipeline and the Kafka source use it.
type Processor struct {
	chain    string
	detector Detector
	emitter  emitter.Emitter
	logger   *slog.Logger
}

func NewProcessor(chainID domain.ChainID, detector Detector, em emitter.Emitter, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		chain:    chainID.Name(),
		detector: detector,
		emitter:  em,
		logger:   logger,
	}
}

// ProcessTransaction handles tx and emits whatever batch the detector released.
func (p *Processor) ProcessTransaction(ctx context.Context, tx *domain.Transaction) error {
	findings, err := p.detector.HandleTransaction(ctx, tx)
	if err != nil {
		metrics.TransactionsProcessed.WithLabelValues(p.chain, "error").Inc()
		return err
	}
	metrics.TransactionsProcessed.WithLabelValues(p.chain, "ok").Inc()
	p.emit(ctx, findings)
	return nil
}

// Flush emits one batch of queued findings without processing a transaction.
func (p *Processor) Flush(ctx context.Context) error {
	findings, err := p.detector.Drain()
	if err != nil {
		return err
	}
	p.emit(ctx, findings)
	return nil
}

// FlushAll drains the queue completely.
func (p *Processor) FlushAll(ctx context.Context) error {
	for p.detector.Pending() > 0 {
		if err := p.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) emit(ctx context.Context, findings []domain.Finding) {
	metrics.FindingsPending.WithLabelValues(p.chain).Set(float64(p.detector.Pending()))
	metrics.TrackedAddresses.WithLabelValues(p.chain).Set(float64(p.detector.TrackedCount()))
	if len(findings) == 0 {
		return
	}
	for _, f := range findings {
		metrics.FindingsEmitted.WithLabelValues(p.chain, string(f.Category)).Inc()
	}
	if err := p.emitter.Emit(ctx, findings); err != nil {
		p.logger.Error("Failed to emit findings", "count", len(findings), "error", err)
	}
}
