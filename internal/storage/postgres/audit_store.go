package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/rebalancer/internal/domain"
)

// AuditStore persists audit records in the audit_records table.
type AuditStore struct {
	pool *Pool
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(pool *Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Record inserts rec. Returns ErrDuplicateKey if the id and stage exist.
func (s *AuditStore) Record(ctx context.Context, rec domain.AuditRecord) error {
	query := `
		INSERT INTO audit_records (id, stage, ts, kind, symbols, amount, reason, success)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.ID,
		string(rec.Stage),
		rec.Timestamp,
		rec.Kind,
		rec.Symbols,
		rec.Amount.String(),
		rec.Reason,
		rec.Success,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return errors.Wrap(err, "insert audit record")
	}
	return nil
}

// GetByTimeRange returns records with timestamps within [start, end], oldest first.
func (s *AuditStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]domain.AuditRecord, error) {
	query := `
		SELECT id, stage, ts, kind, symbols, amount::text, reason, success
		FROM audit_records
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts ASC, id ASC, stage DESC
	`

	rows, err := s.pool.Query(ctx, query, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "get audit records by time range")
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]domain.AuditRecord, error) {
	var out []domain.AuditRecord
	for rows.Next() {
		var (
			rec    domain.AuditRecord
			stage  string
			amount string
		)
		if err := rows.Scan(&rec.ID, &stage, &rec.Timestamp, &rec.Kind, &rec.Symbols, &amount, &rec.Reason, &rec.Success); err != nil {
			return nil, errors.Wrap(err, "scan audit record")
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, errors.Wrap(err, "parse audit amount")
		}
		rec.Amount = parsed
		rec.Stage = domain.AuditStage(stage)
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate audit records")
}
