package engine

import "errors"

var (
	// ErrNotInitialized is returned by an Engine that was not created with Build.
	ErrNotInitialized = errors.New("engine not initialized")
	// ErrUpstreamQuery wraps failures of the chain reader or the address extractor.
	ErrUpstreamQuery = errors.New("upstream query failed")
	// ErrUnsupportedChain is returned by Build when no protocol addresses are configured for the chain.
	ErrUnsupportedChain = errors.New("unsupported chain")
	// ErrInvalidConfig is returned by Build for out-of-range settings.
	ErrInvalidConfig = errors.New("invalid engine config")
)
