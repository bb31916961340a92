// Package engine implements the per-transaction detection of protocol-funded
// accounts: funding, funded-account contract interaction and funded-account
// contract deployment.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/fundwatch/internal/core/domain"
	"github.com/vietddude/fundwatch/internal/detection/tracker"
)

// DefaultMaxFindingsPerRequest bounds the findings returned by one invocation.
const DefaultMaxFindingsPerRequest = 50

// CodeClassifier answers chain queries needed by the engine.
type CodeClassifier interface {
	ChainID(ctx context.Context) (domain.ChainID, error)
	IsContract(ctx context.Context, address domain.Address) (bool, error)
}

// AddressExtractor finds addresses referenced by a deployed contract.
type AddressExtractor interface {
	StorageAddresses(ctx context.Context, contract domain.Address) ([]domain.Address, error)
	OpcodeAddresses(ctx context.Context, contract domain.Address) ([]domain.Address, error)
}

// Analytics tallies triggers and supplies anomaly scores.
type Analytics interface {
	Sync(ts int64)
	IncrementBotTriggers(ts int64, category domain.AlertCategory)
	IncrementAlertTriggers(ts int64, category domain.AlertCategory)
	AnomalyScore(category domain.AlertCategory) float64
}

// Config holds the static engine settings.
type Config struct {
	AddressLimit          int
	MaxFindingsPerRequest int
	DeveloperAbbreviation string
	ProtocolName          string
	ProtocolAddresses     map[domain.ChainID][]string
}

// Deps are the engine collaborators.
type Deps struct {
	Chain     CodeClassifier
	Extractor AddressExtractor
	Analytics Analytics
	Logger    *slog.Logger
	// OnEvict is called with every address dropped from the funded set.
	OnEvict func(domain.Address)
	// Now overrides the finding timestamp clock.
	Now func() time.Time
}

// Engine holds the funded-address set and the pending findings of one chain.
// The zero value is not usable; create engines with Build.
type Engine struct {
	cfg       Config
	chainID   domain.ChainID
	protocol  map[domain.Address]struct{}
	alerts    alertIDs
	chain     CodeClassifier
	extractor AddressExtractor
	analytics Analytics
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	tracker *tracker.Tracker
	queue   Queue
	pending *txProgress // last transaction that failed part way
}

// Build validates cfg, resolves the chain id once and returns a ready engine.
func Build(ctx context.Context, cfg Config, deps Deps) (*Engine, error) {
	if deps.Chain == nil || deps.Extractor == nil || deps.Analytics == nil {
		return nil, fmt.Errorf("%w: chain, extractor and analytics are required", ErrInvalidConfig)
	}
	if cfg.MaxFindingsPerRequest == 0 {
		cfg.MaxFindingsPerRequest = DefaultMaxFindingsPerRequest
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}

	chainID, err := deps.Chain.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: chain id: %w", ErrUpstreamQuery, err)
	}

	addrs := domain.NormalizeAddresses(cfg.ProtocolAddresses[chainID])
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: no protocol addresses for chain %s", ErrUnsupportedChain, chainID)
	}
	protocol := make(map[domain.Address]struct{}, len(addrs))
	for _, a := range addrs {
		protocol[a] = struct{}{}
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine", "chain", chainID.Name())

	var opts []tracker.Option
	if deps.OnEvict != nil {
		opts = append(opts, tracker.WithEvictHook(deps.OnEvict))
	}
	t, err := tracker.New(cfg.AddressLimit, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	now := deps.Now
	if now == nil {
		now = defaultNow
	}

	logger.Info("Engine initialized",
		"protocol_addresses", len(protocol),
		"address_limit", cfg.AddressLimit,
		"max_findings", cfg.MaxFindingsPerRequest,
	)

	return &Engine{
		cfg:       cfg,
		chainID:   chainID,
		protocol:  protocol,
		alerts:    newAlertIDs(cfg.DeveloperAbbreviation, cfg.ProtocolName),
		chain:     deps.Chain,
		extractor: deps.Extractor,
		analytics: deps.Analytics,
		logger:    logger,
		now:       now,
		tracker:   t,
	}, nil
}

func validate(cfg Config) error {
	if cfg.AddressLimit < 1 {
		return fmt.Errorf("%w: address limit must be >= 1, got %d", ErrInvalidConfig, cfg.AddressLimit)
	}
	if cfg.MaxFindingsPerRequest < 1 {
		return fmt.Errorf("%w: max findings per request must be >= 1, got %d", ErrInvalidConfig, cfg.MaxFindingsPerRequest)
	}
	return nil
}

// ChainID returns the chain the engine was built for.
func (e *Engine) ChainID() domain.ChainID {
	return e.chainID
}

// IsTracked reports whether address is currently in the funded set.
func (e *Engine) IsTracked(address domain.Address) bool {
	if e.tracker == nil {
		return false
	}
	return e.tracker.Contains(address)
}

// TrackedCount returns the size of the funded set.
func (e *Engine) TrackedCount() int {
	if e.tracker == nil {
		return 0
	}
	return e.tracker.Size()
}

// Pending returns the number of queued findings.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len()
}

// Drain releases the next batch of queued findings without processing a transaction.
func (e *Engine) Drain() ([]domain.Finding, error) {
	if e.tracker == nil {
		return nil, ErrNotInitialized
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Release(e.cfg.MaxFindingsPerRequest), nil
}

func (e *Engine) isProtocol(a domain.Address) bool {
	_, ok := e.protocol[domain.NormalizeAddress(a.String())]
	return ok
}
