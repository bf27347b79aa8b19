package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const defaultAuditTable = "audit_logs"

type auditRow struct {
	ID            string    `db:"id"`
	TenantID      string    `db:"tenant_id"`
	Actor         string    `db:"actor"`
	Role          string    `db:"role"`
	Action        string    `db:"action"`
	ResourceType  string    `db:"resource_type"`
	ResourceID    string    `db:"resource_id"`
	StationID     string    `db:"station_id"`
	FromState     string    `db:"from_state"`
	ToState       string    `db:"to_state"`
	Metadata      []byte    `db:"metadata"`
	PayloadDigest string    `db:"payload_digest"`
	CreatedAt     time.Time `db:"created_at"`
}

// Repository appends audit entries to a Postgres table.
type Repository struct {
	db    sqlx.ExtContext
	table string
	now   func() time.Time
}

// RepositoryOption configures the repository.
type RepositoryOption func(*Repository)

// WithTable overrides the audit table name.
func WithTable(table string) RepositoryOption {
	return func(r *Repository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewRepository constructs an audit repository over a sqlx handle or transaction.
func NewRepository(db sqlx.ExtContext, opts ...RepositoryOption) *Repository {
	r := &Repository{db: db, table: defaultAuditTable, now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Log appends entry, filling its id, timestamp and payload digest when unset.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	row := auditRow{
		ID:            entry.ID,
		TenantID:      entry.TenantID,
		Actor:         entry.Actor,
		Role:          entry.Role,
		Action:        entry.Action,
		ResourceType:  entry.ResourceType,
		ResourceID:    entry.ResourceID,
		StationID:     entry.StationID,
		FromState:     entry.FromState,
		ToState:       entry.ToState,
		PayloadDigest: entry.PayloadDigest,
		CreatedAt:     entry.CreatedAt,
	}
	if len(entry.Metadata) > 0 {
		if !json.Valid(entry.Metadata) {
			return fmt.Errorf("audit repo: metadata of %s is not JSON", entry.Action)
		}
		row.Metadata = entry.Metadata
	}
	if row.ID == "" {
		row.ID = NewID()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = r.now()
	}
	if row.PayloadDigest == "" {
		row.PayloadDigest = DigestJSON(row.Metadata)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, tenant_id, actor, role, action, resource_type, resource_id, station_id,
	from_state, to_state, metadata, payload_digest, created_at
) VALUES (
	:id, :tenant_id, :actor, :role, :action, :resource_type, :resource_id, :station_id,
	:from_state, :to_state, :metadata, :payload_digest, :created_at
)`, r.table)
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, row); err != nil {
		return fmt.Errorf("audit insert %s: %w", row.Action, err)
	}
	return nil
}
