// Package emitter delivers released findings to their destinations.
package emitter

import (
	"context"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

// Emitter defines the interface for delivering findings.
type Emitter interface {
	// Name identifies the emitter in logs and metrics.
	Name() string

	// Emit delivers findings in release order
	Emit(ctx context.Context, findings []domain.Finding) error

	// Close releases the emitter's connections
	Close() error
}
