package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"omc-erp/internal/apperrors"
	uppf "omc-erp/internal/uppf/domain"
)

const defaultSubmissionsTable = "npa_submissions"

// SubmissionRepository persists NPA submissions and commits claim moves with them.
type SubmissionRepository struct {
	db          *sqlx.DB
	table       string
	claimsTable string
}

// SubmissionOption configures the repository.
type SubmissionOption func(*SubmissionRepository)

// WithSubmissionsTable overrides the submissions table name.
func WithSubmissionsTable(table string) SubmissionOption {
	return func(r *SubmissionRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// WithSubmissionClaimsTable overrides the claims table updated by Commit.
func WithSubmissionClaimsTable(table string) SubmissionOption {
	return func(r *SubmissionRepository) {
		if table != "" {
			r.claimsTable = table
		}
	}
}

// NewSubmissionRepository constructs a repository.
func NewSubmissionRepository(db *sqlx.DB, opts ...SubmissionOption) *SubmissionRepository {
	r := &SubmissionRepository{db: db, table: defaultSubmissionsTable, claimsTable: defaultClaimsTable}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns a submission by id.
func (r *SubmissionRepository) Get(ctx context.Context, id string) (*uppf.Submission, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("submission repo: nil db")
	}
	var row submissionRow
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, submissionColumns, r.table)
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("npa submission", id)
		}
		return nil, fmt.Errorf("get npa submission: %w", err)
	}
	return row.toDomain()
}

// ListByWindow returns the window's submissions oldest first.
func (r *SubmissionRepository) ListByWindow(ctx context.Context, windowID string) ([]*uppf.Submission, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("submission repo: nil db")
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE window_id = $1 ORDER BY created_at, reference`, submissionColumns, r.table)
	var rows []submissionRow
	if err := r.db.SelectContext(ctx, &rows, query, windowID); err != nil {
		return nil, fmt.Errorf("list npa submissions: %w", err)
	}
	out := make([]*uppf.Submission, 0, len(rows))
	for _, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Commit inserts (expectedVersion 0) or updates the submission and applies
// every claim write in one transaction.
func (r *SubmissionRepository) Commit(ctx context.Context, s *uppf.Submission, expectedVersion int, claims []uppf.ClaimWrite) (err error) {
	if r == nil || r.db == nil {
		return errors.New("submission repo: nil db")
	}
	if s == nil {
		return uppf.ErrNilSubmission
	}
	row, err := toSubmissionRow(s, expectedVersion+1)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin submission commit: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var query string
	if expectedVersion == 0 {
		query = fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES (:id, :tenant_id, :reference, :window_id, :claim_ids, :total_amount, :total_litres, :status,
	:validation_results, :documents, :decisions, :npa_reference, :version, :created_at, :submitted_at,
	:acknowledged_at, :responded_at, :history)
ON CONFLICT (reference) DO NOTHING`, r.table, submissionColumns)
	} else {
		query = fmt.Sprintf(`
UPDATE %s SET
	status = :status, validation_results = :validation_results, documents = :documents,
	decisions = :decisions, npa_reference = :npa_reference, version = :version,
	submitted_at = :submitted_at, acknowledged_at = :acknowledged_at, responded_at = :responded_at,
	history = :history
WHERE id = :id AND version = :expected_version`, r.table)
	}
	res, err := tx.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("write npa submission: %w", err)
	}
	if err = expectOne(res, "npa submission", s.Reference); err != nil {
		return err
	}

	previous := make([]int, len(claims))
	for i, w := range claims {
		if w.Claim == nil {
			return uppf.ErrNilClaim
		}
		previous[i] = w.Claim.Version
	}
	defer func() {
		if err != nil {
			for i, w := range claims {
				if w.Claim != nil {
					w.Claim.Version = previous[i]
				}
			}
		}
	}()
	for _, w := range claims {
		if err = updateClaim(ctx, tx, r.claimsTable, w.Claim, w.ExpectedVersion); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit npa submission: %w", err)
	}
	s.Version = expectedVersion + 1
	return nil
}
