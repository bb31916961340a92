package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/fundwatch/internal/indexing/metrics"
)

// Pipeline implements the Indexer interface by polling a chain for new blocks.
type Pipeline struct {
	cfg       Config
	processor *Processor
	logger    *slog.Logger

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once

	mu          sync.Mutex
	nextBlock   uint64
	nextTx      int // index of the first unprocessed tx in nextBlock
	latestBlock uint64
	errorStreak int
	initialized bool
}

// NewPipeline creates a new block pipeline
func NewPipeline(cfg Config) *Pipeline {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 10 * time.Second
	}
	if cfg.Backoff.InitialDelay <= 0 {
		cfg.Backoff = DefaultBackoff()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "pipeline", "chain", cfg.ChainID.Name())
	return &Pipeline{
		cfg:       cfg,
		processor: NewProcessor(cfg.ChainID, cfg.Detector, cfg.Emitter, logger),
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Start begins the polling loop
func (p *Pipeline) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline already running")
	}
	defer p.running.Store(false)

	timer := time.NewTimer(p.cfg.ScanInterval)
	defer timer.Stop()

	for {
		if err := p.catchUp(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("Block processing failed", "block", p.position(), "error", err)
		}

		p.mu.Lock()
		wait := nextWait(p.cfg.ScanInterval, p.cfg.Backoff, p.errorStreak)
		p.mu.Unlock()
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		case <-timer.C:
		}
	}
}

// Stop stops the pipeline
func (p *Pipeline) Stop() error {
	p.stopOnce.Do(func() { close(p.stop) })
	return nil
}

// GetStatus returns the current status
func (p *Pipeline) GetStatus() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	var current uint64
	if p.nextBlock > 0 {
		current = p.nextBlock - 1
	}
	return Status{
		ChainID:           p.cfg.ChainID,
		Running:           p.running.Load(),
		CurrentBlock:      current,
		LatestBlock:       p.latestBlock,
		Lag:               int64(p.latestBlock) - int64(current),
		ConsecutiveErrors: p.errorStreak,
		PendingFindings:   p.cfg.Detector.Pending(),
		TrackedAddresses:  p.cfg.Detector.TrackedCount(),
	}
}

// Flush drains every queued finding to the emitter.
func (p *Pipeline) Flush(ctx context.Context) error {
	return p.processor.FlushAll(ctx)
}

// catchUp processes blocks up to the current chain head.
func (p *Pipeline) catchUp(ctx context.Context) error {
	latest, err := p.cfg.Source.GetLatestBlock(ctx)
	if err != nil {
		p.recordError()
		return fmt.Errorf("failed to get latest block: %w", err)
	}
	metrics.ChainLatestBlock.WithLabelValues(p.cfg.ChainID.Name()).Set(float64(latest))

	p.mu.Lock()
	p.latestBlock = latest
	if !p.initialized {
		p.nextBlock = p.cfg.StartBlock
		if p.nextBlock == 0 {
			p.nextBlock = latest
		}
		p.initialized = true
		p.logger.Info("Starting block scan", "from", p.nextBlock, "head", latest)
	}
	p.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		default:
		}

		p.mu.Lock()
		next := p.nextBlock
		p.mu.Unlock()
		if next > latest {
			return nil
		}

		done, err := p.processBlock(ctx, next)
		if err != nil {
			p.recordError()
			return err
		}
		if !done {
			return nil
		}
	}
}

// processBlock runs every not yet processed transaction of a block. It returns
// false when the block is not available yet. On error the position inside the
// block is kept so the next attempt resumes at the failing transaction.
func (p *Pipeline) processBlock(ctx context.Context, number uint64) (bool, error) {
	// release at least one queued batch per block
	if err := p.processor.Flush(ctx); err != nil {
		return false, err
	}

	block, err := p.cfg.Source.GetBlock(ctx, number)
	if err != nil {
		return false, fmt.Errorf("fetch block %d: %w", number, err)
	}
	if block == nil {
		return false, nil
	}

	p.mu.Lock()
	start := p.nextTx
	p.mu.Unlock()

	for i := start; i < len(block.Transactions); i++ {
		tx := block.Transactions[i]
		if err := p.processor.ProcessTransaction(ctx, tx); err != nil {
			return false, fmt.Errorf("block %d tx %s: %w", number, tx.Hash, err)
		}
		p.mu.Lock()
		p.nextTx = i + 1
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.nextBlock = number + 1
	p.nextTx = 0
	p.errorStreak = 0
	p.mu.Unlock()

	metrics.BlocksProcessed.WithLabelValues(p.cfg.ChainID.Name()).Inc()
	metrics.IndexerLatestBlock.WithLabelValues(p.cfg.ChainID.Name()).Set(float64(number))
	return true, nil
}

func (p *Pipeline) recordError() {
	p.mu.Lock()
	p.errorStreak++
	p.mu.Unlock()
}

func (p *Pipeline) position() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextBlock
}
