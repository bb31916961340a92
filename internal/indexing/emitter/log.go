package emitter

import (
	"context"
	"log/slog"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

// LogEmitter writes every finding as a structured log record.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger.With("component", "findings")}
}

func (e *LogEmitter) Name() string { return "log" }

func (e *LogEmitter) Emit(ctx context.Context, findings []domain.Finding) error {
	for _, f := range findings {
		e.logger.InfoContext(ctx, "Finding",
			"alert_id", f.AlertID,
			"severity", f.Severity,
			"chain", f.ChainID.Name(),
			"tx", f.TxHash,
			"description", f.Description,
			"anomaly_score", f.AnomalyScore,
		)
	}
	return nil
}

func (e *LogEmitter) Close() error { return nil }
