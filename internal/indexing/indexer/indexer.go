package indexer

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/fundwatch/internal/core/domain"
	"github.com/vietddude/fundwatch/internal/indexing/emitter"
)

// Indexer drives transactions of one chain through detection.
type Indexer interface {
	// Start runs until ctx is cancelled or Stop is called
	Start(ctx context.Context) error

	// Stop gracefully stops the indexer
	Stop() error

	// GetStatus returns current indexing status
	GetStatus() Status
}

type Status struct {
	ChainID           domain.ChainID
	Running           bool
	CurrentBlock      uint64
	LatestBlock       uint64
	Lag               int64
	ConsecutiveErrors int
	PendingFindings   int
	TrackedAddresses  int
}

// BlockSource provides blocks with their transactions and traces.
type BlockSource interface {
	GetLatestBlock(ctx context.Context) (uint64, error)
	// GetBlock returns nil when the block is not available yet.
	GetBlock(ctx context.Context, number uint64) (*domain.Block, error)
}

// Detector is the per-chain detection engine.
type Detector interface {
	HandleTransaction(ctx context.Context, tx *domain.Transaction) ([]domain.Finding, error)
	Drain() ([]domain.Finding, error)
	Pending() int
	TrackedCount() int
}

// Config holds indexer configuration
type Config struct {
	ChainID      domain.ChainID
	Source       BlockSource
	Detector     Detector
	Emitter      emitter.Emitter
	ScanInterval time.Duration
	StartBlock   uint64 // 0 = chain head at start
	// Backoff stretches the poll interval while a block keeps failing.
	Backoff Backoff
	Logger  *slog.Logger
}
