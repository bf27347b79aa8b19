package interfaces

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"omc-erp/internal/apperrors"
	"omc-erp/internal/auth"
	pricing "omc-erp/internal/pricing/domain"
	pmemory "omc-erp/internal/pricing/infrastructure/memory"
	"omc-erp/internal/uppf/application"
	uppf "omc-erp/internal/uppf/domain"
	"omc-erp/internal/uppf/infrastructure/memory"
	"omc-erp/internal/uppf/infrastructure/storage"
)

var now = time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

func sampleBatch(t *testing.T) (*uppf.Submission, []*uppf.Claim) {
	t.Helper()
	route := &uppf.Route{ID: "R1", DepotID: "TEMA", StationID: "S1", KmThreshold: decimal.NewFromInt(100)}
	c, err := uppf.NewClaim("omc-gh", uppf.ClaimDetails{
		DeliveryID:  "DEL-1",
		WindowID:    "2025-W05",
		KmActual:    decimal.NewFromInt(150),
		LitresMoved: decimal.NewFromInt(30000),
		Evidence:    []string{"waybill.pdf"},
	}, route, uppf.DefaultPolicy().DefaultTariff, now)
	require.NoError(t, err)
	sub, err := uppf.NewSubmission("omc-gh", "2025-W05", []*uppf.Claim{c}, []apperrors.Violation{
		{Rule: uppf.RuleNPALargeClaim, Field: c.ClaimNumber, Message: "large", Severity: apperrors.SeverityWarning},
	}, now)
	require.NoError(t, err)
	return sub, []*uppf.Claim{c}
}

func TestRenderSubmissionPack(t *testing.T) {
	sub, claims := sampleBatch(t)
	gen := NPADocumentGenerator{Company: "Star Oil Ltd"}

	for _, docType := range []uppf.DocumentType{uppf.DocSummaryReport, uppf.DocComplianceCertificate} {
		doc, err := gen.Render(context.Background(), docType, sub, claims)
		require.NoError(t, err)
		assert.Equal(t, "pdf", doc.Format)
		assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF")))
	}

	doc, err := gen.Render(context.Background(), uppf.DocDetailedClaims, sub, claims)
	require.NoError(t, err)
	assert.Equal(t, "detailed-claims.xlsx", doc.Filename)

	f, err := excelize.OpenReader(bytes.NewReader(doc.Data))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("claims")
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 2)
	assert.Equal(t, "Claim number", rows[0][0])
	assert.Equal(t, claims[0].ClaimNumber, rows[1][0])
	assert.Equal(t, "1800", rows[1][9])
}

func TestRenderRejectsUnknownType(t *testing.T) {
	sub, claims := sampleBatch(t)
	_, err := NPADocumentGenerator{}.Render(context.Background(), "RECEIPT", sub, claims)
	assert.Error(t, err)
	_, err = NPADocumentGenerator{}.Render(context.Background(), uppf.DocSummaryReport, nil, claims)
	assert.ErrorIs(t, err, uppf.ErrNilSubmission)
}

type clock struct{}

func (clock) Now() time.Time { return now }

func TestSubmitWindowWritesDocumentsToDisk(t *testing.T) {
	ctx := auth.WithIdentity(context.Background(), "omc-gh", auth.RoleApprover, "kofi")
	window, err := pricing.NewPricingWindow(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), time.Time{}, "", now)
	require.NoError(t, err)
	require.NoError(t, window.Activate(now))
	windows := pmemory.NewWindowRepository()
	require.NoError(t, windows.Save(ctx, window))

	store := memory.NewStore()
	_, claims := sampleBatch(t)
	claim := claims[0]
	claim.WindowID = window.ID
	rec, err := uppf.ReconcileVolumes(claim.LitresMoved, claim.LitresMoved, claim.LitresMoved, uppf.DefaultPolicy().ReconciliationTolerance)
	require.NoError(t, err)
	require.NoError(t, claim.Reconcile(rec, now))
	require.NoError(t, claim.ApplyValidation(nil, 150, now))
	require.NoError(t, store.Claims().Create(ctx, claim))

	docs, err := storage.NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)
	batcher, err := application.NewBatcher(windows, store.Claims(), store.Submissions(), NPADocumentGenerator{}, docs, application.WithClock(clock{}))
	require.NoError(t, err)

	submitted, _, err := batcher.SubmitWindow(ctx, window.ID)
	require.NoError(t, err)
	require.Len(t, submitted.Documents, 3)
	for _, doc := range submitted.Documents {
		info, err := os.Stat(doc.Location)
		require.NoError(t, err)
		assert.Equal(t, doc.Size, info.Size())
		assert.Len(t, doc.Checksum, 64)
	}
}
