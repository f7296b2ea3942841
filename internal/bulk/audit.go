package bulk

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditEntry represents a record stored in grant_audit_log.
type AuditEntry struct {
	BatchID    string
	Processed  int
	Successful int
	Failures   []Failure
	At         time.Time
}

// Auditor persists a durable trail of applied batches.
type Auditor interface {
	RecordBatch(ctx context.Context, entry AuditEntry) error
}

// PGAuditor writes batch records into grant_audit_log.
type PGAuditor struct {
	pool *pgxpool.Pool
}

// NewAuditor returns a new PGAuditor.
func NewAuditor(pool *pgxpool.Pool) *PGAuditor {
	return &PGAuditor{pool: pool}
}

// RecordBatch persists the batch outcome. Failures are stored as JSON so the
// trail keeps the per-operation detail the report carried.
func (a *PGAuditor) RecordBatch(ctx context.Context, entry AuditEntry) error {
	if a == nil {
		return errors.New("auditor not initialised")
	}
	if entry.BatchID == "" {
		return errors.New("audit entry requires batch_id")
	}
	failuresJSON, err := json.Marshal(entry.Failures)
	if err != nil {
		return err
	}
	_, err = a.pool.Exec(ctx, `
		INSERT INTO grant_audit_log (batch_id, processed, successful, failures, applied_at)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, '0001-01-01'::timestamptz), NOW()))`,
		entry.BatchID, entry.Processed, entry.Successful, failuresJSON, entry.At)
	return err
}
