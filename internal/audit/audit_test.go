package audit

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/auth"
)

func TestRecordUsesContextIdentity(t *testing.T) {
	logger := &MemoryLogger{}
	ctx := auth.WithIdentity(context.Background(), "omc-gh", auth.RoleApprover, "kofi")

	err := Record(ctx, logger, Transition{
		Action:       "settlement.approve",
		ResourceType: "settlement",
		ResourceID:   "SETT-S1-2025-W05-1",
		StationID:    "S1",
		From:         "calculated",
		To:           "approved",
		Metadata:     map[string]string{"net_payable": "250.0000"},
	})
	require.NoError(t, err)

	entries := logger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "kofi", entries[0].Actor)
	assert.Equal(t, "approver", entries[0].Role)
	assert.Equal(t, "omc-gh", entries[0].TenantID)
	assert.JSONEq(t, `{"net_payable":"250.0000"}`, string(entries[0].Metadata))
	assert.NotEmpty(t, entries[0].ID)
}

func TestRecordDefaultsToSystemActor(t *testing.T) {
	logger := &MemoryLogger{}
	require.NoError(t, Record(context.Background(), logger, Transition{Action: "claim.submit"}))
	assert.Equal(t, "system", logger.Entries()[0].Actor)
	assert.NoError(t, Record(context.Background(), nil, Transition{}))
}

func TestRepositoryLogWritesDigest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	meta := []byte(`{"a":1}`)
	at := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "omc-gh", "kofi", "approver", "settlement.pay", "settlement", "SETT-1", "S1",
			"approved", "paid", meta, DigestJSON(meta), at).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewRepository(sqlx.NewDb(db, "postgres"))
	repo.now = func() time.Time { return at }
	err = repo.Log(context.Background(), Entry{
		TenantID: "omc-gh", Actor: "kofi", Role: "approver", Action: "settlement.pay",
		ResourceType: "settlement", ResourceID: "SETT-1", StationID: "S1",
		FromState: "approved", ToState: "paid", Metadata: meta,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryCustomTableAndBadMetadata(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO uppf_audit").
		WithArgs("audit-1", "", "system", "", "claim.submitted", "uppf_claim", "c1", "",
			"ready_to_submit", "submitted", sqlmock.AnyArg(), "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	repo := NewRepository(sqlx.NewDb(db, "postgres"), WithTable("uppf_audit"))
	require.NoError(t, repo.Log(context.Background(), Entry{
		ID: "audit-1", Actor: "system", Action: "claim.submitted", ResourceType: "uppf_claim", ResourceID: "c1",
		FromState: "ready_to_submit", ToState: "submitted",
	}))
	assert.NoError(t, mock.ExpectationsWereMet())

	err = repo.Log(context.Background(), Entry{Action: "claim.submitted", Metadata: []byte("{oops")})
	assert.Error(t, err)
}
