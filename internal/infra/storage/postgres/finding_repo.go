package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/vietddude/fundwatch/internal/core/domain"
)

// FindingRepo archives findings. It doubles as a finding sink.
type FindingRepo struct {
	db *DB
}

// NewFindingRepo creates a new PostgreSQL finding repository.
func NewFindingRepo(db *DB) *FindingRepo {
	return &FindingRepo{db: db}
}

type findingRow struct {
	ID           string         `db:"id"`
	AlertID      string         `db:"alert_id"`
	Category     string         `db:"category"`
	Name         string         `db:"name"`
	Description  string         `db:"description"`
	Severity     string         `db:"severity"`
	FindingType  string         `db:"finding_type"`
	ChainID      string         `db:"chain_id"`
	BlockNumber  int64          `db:"block_number"`
	TxHash       string         `db:"tx_hash"`
	Addresses    pq.StringArray `db:"addresses"`
	Contained    pq.StringArray `db:"contained"`
	Labels       []byte         `db:"labels"`
	Metadata     []byte         `db:"metadata"`
	AnomalyScore float64        `db:"anomaly_score"`
	CreatedAt    time.Time      `db:"created_at"`
}

func addressStrings(in []domain.Address) pq.StringArray {
	out := make(pq.StringArray, len(in))
	for i, a := range in {
		out[i] = a.String()
	}
	return out
}

func toRow(f domain.Finding) (findingRow, error) {
	labels := f.Labels
	if labels == nil {
		labels = []domain.Label{}
	}
	labelJSON, err := json.Marshal(labels)
	if err != nil {
		return findingRow{}, fmt.Errorf("marshal labels: %w", err)
	}
	meta := f.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return findingRow{}, fmt.Errorf("marshal metadata: %w", err)
	}

	return findingRow{
		ID:           f.ID,
		AlertID:      f.AlertID,
		Category:     string(f.Category),
		Name:         f.Name,
		Description:  f.Description,
		Severity:     string(f.Severity),
		FindingType:  string(f.Type),
		ChainID:      string(f.ChainID),
		BlockNumber:  int64(f.BlockNumber),
		TxHash:       f.TxHash,
		Addresses:    addressStrings(f.Addresses),
		Contained:    addressStrings(f.Contained),
		Labels:       labelJSON,
		Metadata:     metaJSON,
		AnomalyScore: f.AnomalyScore,
		CreatedAt:    f.CreatedAt,
	}, nil
}

func (r findingRow) toDomain() (domain.Finding, error) {
	f := domain.Finding{
		ID:           r.ID,
		AlertID:      r.AlertID,
		Category:     domain.AlertCategory(r.Category),
		Name:         r.Name,
		Description:  r.Description,
		Severity:     domain.Severity(r.Severity),
		Type:         domain.FindingType(r.FindingType),
		ChainID:      domain.ChainID(r.ChainID),
		BlockNumber:  uint64(r.BlockNumber),
		TxHash:       r.TxHash,
		Addresses:    domain.NormalizeAddresses(r.Addresses),
		Contained:    domain.NormalizeAddresses(r.Contained),
		AnomalyScore: r.AnomalyScore,
		CreatedAt:    r.CreatedAt,
	}
	if len(r.Labels) > 0 {
		if err := json.Unmarshal(r.Labels, &f.Labels); err != nil {
			return domain.Finding{}, fmt.Errorf("unmarshal labels: %w", err)
		}
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &f.Metadata); err != nil {
			return domain.Finding{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return f, nil
}

const insertFinding = `
	INSERT INTO findings (
		id, alert_id, category, name, description, severity, finding_type,
		chain_id, block_number, tx_hash, addresses, contained, labels, metadata,
		anomaly_score, created_at
	) VALUES (
		:id, :alert_id, :category, :name, :description, :severity, :finding_type,
		:chain_id, :block_number, :tx_hash, :addresses, :contained, :labels, :metadata,
		:anomaly_score, :created_at
	)
	ON CONFLICT (id) DO NOTHING
`

// Name implements emitter.Emitter.
func (r *FindingRepo) Name() string { return "postgres" }

// Emit implements emitter.Emitter by saving the batch.
func (r *FindingRepo) Emit(ctx context.Context, findings []domain.Finding) error {
	return r.SaveBatch(ctx, findings)
}

// Close is a no-op; the DB is owned by the caller.
func (r *FindingRepo) Close() error { return nil }

// SaveBatch saves findings in one transaction.
func (r *FindingRepo) SaveBatch(ctx context.Context, findings []domain.Finding) error {
	if len(findings) == 0 {
		return nil
	}

	rows := make([]findingRow, len(findings))
	for i, f := range findings {
		row, err := toRow(f)
		if err != nil {
			return fmt.Errorf("finding %s: %w", f.ID, err)
		}
		rows[i] = row
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, insertFinding)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			return fmt.Errorf("failed to save finding %s: %w", row.ID, err)
		}
	}

	return tx.Commit()
}

// ListByTx returns archived findings for a transaction, oldest first.
func (r *FindingRepo) ListByTx(ctx context.Context, chainID domain.ChainID, txHash string) ([]domain.Finding, error) {
	query := `
		SELECT id, alert_id, category, name, description, severity, finding_type,
			chain_id, block_number, tx_hash, addresses, contained, labels, metadata,
			anomaly_score, created_at
		FROM findings
		WHERE chain_id = $1 AND tx_hash = $2
		ORDER BY created_at
	`

	var rows []findingRow
	if err := r.db.SelectContext(ctx, &rows, query, string(chainID), txHash); err != nil {
		return nil, fmt.Errorf("failed to get findings: %w", err)
	}

	out := make([]domain.Finding, 0, len(rows))
	for _, row := range rows {
		f, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}
