package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/apperrors"
	"omc-erp/internal/auth"
	uppf "omc-erp/internal/uppf/domain"
)

func approver() context.Context {
	return auth.WithIdentity(context.Background(), "omc-gh", auth.RoleApprover, "kofi")
}

func violationRules(err error) []string {
	var out []string
	for _, v := range apperrors.ViolationsOf(err) {
		out = append(out, v.Rule)
	}
	return out
}

func TestSubmitWindowBatchesReadyClaims(t *testing.T) {
	h := newHarness(t)
	a := h.readyClaim(t, "DEL-1")
	b := h.readyClaim(t, "DEL-2")

	sub, events, err := h.batcher.SubmitWindow(approver(), h.window.ID)
	require.NoError(t, err)

	assert.Equal(t, uppf.SubmissionDraft, sub.Status)
	assert.Equal(t, 1, sub.Version)
	assert.Equal(t, "UPP-"+h.window.ID+"-1741770000", sub.Reference)
	assert.Equal(t, "3600", sub.TotalAmount.String())
	assert.ElementsMatch(t, []string{a.ID, b.ID}, sub.ClaimIDs)
	assert.Equal(t, "omc-gh", sub.TenantID)

	require.Len(t, sub.Documents, 3)
	for i, doc := range sub.Documents {
		assert.Equal(t, uppf.RequiredDocuments[i], doc.Type)
		data := h.docs.objs[doc.Location[len("mem://"):]]
		sum := sha256.Sum256(data)
		assert.Equal(t, hex.EncodeToString(sum[:]), doc.Checksum)
		assert.Equal(t, int64(len(data)), doc.Size)
	}

	for _, id := range sub.ClaimIDs {
		c, err := h.store.Claims().Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, uppf.ClaimSubmitted, c.Status)
		assert.Equal(t, sub.ID, c.SubmissionID)
		assert.Equal(t, 4, c.Version)
	}

	require.Len(t, events, 3)
	assert.IsType(t, uppf.SubmissionCreated{}, events[0])
	assert.IsType(t, uppf.ClaimStatusChanged{}, events[1])
}

func TestSubmitWindowCollectsRuleFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.readyClaim(t, "DEL-1")

	in := h.input("DEL-2")
	in.Evidence = nil
	unreconciled, _, err := h.claims.CreateClaim(ctx, in)
	require.NoError(t, err)
	_, _, err = h.claims.ValidateClaim(ctx, unreconciled.ID)
	require.NoError(t, err)

	sub, _, err := h.batcher.SubmitWindow(approver(), h.window.ID)
	require.True(t, errors.Is(err, apperrors.ErrValidationFailed))
	assert.Equal(t, []string{uppf.RuleNPAEvidence, uppf.RuleNPAReconciliation}, violationRules(err))

	require.NotNil(t, sub)
	assert.Equal(t, uppf.SubmissionDraft, sub.Status)
	assert.False(t, sub.ValidationPassed())
	assert.Empty(t, sub.Documents)

	stored, err := h.store.Submissions().ListByWindow(ctx, h.window.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Len(t, stored[0].ValidationResults, 2)

	ready, err := h.store.Claims().ListByWindow(ctx, h.window.ID, uppf.ClaimReady)
	require.NoError(t, err)
	assert.Len(t, ready, 2)
	assert.Empty(t, h.docs.objs)

	_, _, err = h.batcher.MarkSubmitted(approver(), sub.ID, sub.Version)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
}

func TestSubmitWindowLargeClaimIsWarningOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := h.input("DEL-1")
	in.LitresMoved = d("1000000")
	c, _, err := h.claims.CreateClaim(ctx, in)
	require.NoError(t, err)
	_, _, err = h.claims.Reconcile(ctx, c.ID, d("1000000"), d("1000000"), d("1000000"))
	require.NoError(t, err)
	_, _, err = h.claims.ValidateClaim(ctx, c.ID)
	require.NoError(t, err)

	sub, _, err := h.batcher.SubmitWindow(approver(), h.window.ID)
	require.NoError(t, err)
	require.Len(t, sub.ValidationResults, 1)
	assert.Equal(t, uppf.RuleNPALargeClaim, sub.ValidationResults[0].Rule)
	assert.True(t, sub.ValidationPassed())
}

func TestSubmitWindowDocumentFailureAbortsBatch(t *testing.T) {
	for name, setup := range map[string]func(h *harness){
		"render": func(h *harness) { h.generator.fail = uppf.DocComplianceCertificate },
		"store":  func(h *harness) { h.docs.err = errors.New("bucket unavailable") },
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			h.readyClaim(t, "DEL-1")
			setup(h)

			sub, events, err := h.batcher.SubmitWindow(approver(), h.window.ID)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrDocumentGeneration))
			assert.Nil(t, sub)
			assert.Nil(t, events)

			ctx := context.Background()
			stored, err := h.store.Submissions().ListByWindow(ctx, h.window.ID)
			require.NoError(t, err)
			assert.Empty(t, stored)
			ready, err := h.store.Claims().ListByWindow(ctx, h.window.ID, uppf.ClaimReady)
			require.NoError(t, err)
			assert.Len(t, ready, 1)
		})
	}
}

func TestSubmitWindowPreconditions(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.batcher.SubmitWindow(approver(), h.window.ID)
	assert.ErrorIs(t, err, uppf.ErrNoClaimsReady)

	_, _, err = h.batcher.SubmitWindow(approver(), "2031-W01")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	operator := auth.WithIdentity(context.Background(), "omc-gh", auth.RoleOperator, "ama")
	_, _, err = h.batcher.SubmitWindow(operator, h.window.ID)
	assert.True(t, errors.Is(err, apperrors.ErrForbidden))

	h.readyClaim(t, "DEL-1")
	require.NoError(t, h.window.Close(fixedNow))
	require.NoError(t, h.windows.Save(context.Background(), h.window))
	_, _, err = h.batcher.SubmitWindow(approver(), h.window.ID)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidWindow))
}

func TestSubmissionLifecycleWithNPAResponse(t *testing.T) {
	h := newHarness(t)
	a := h.readyClaim(t, "DEL-1")
	b := h.readyClaim(t, "DEL-2")
	ctx := approver()

	sub, _, err := h.batcher.SubmitWindow(ctx, h.window.ID)
	require.NoError(t, err)

	_, _, err = h.batcher.MarkSubmitted(ctx, sub.ID, sub.Version+1)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))

	sub, _, err = h.batcher.MarkSubmitted(ctx, sub.ID, sub.Version)
	require.NoError(t, err)
	assert.Equal(t, uppf.SubmissionSubmitted, sub.Status)

	sub, _, err = h.batcher.RecordAcknowledgement(ctx, sub.ID, sub.Version, "NPA-2025-0042")
	require.NoError(t, err)
	assert.Equal(t, "NPA-2025-0042", sub.NPAReference)

	partial := d("1500")
	sub, events, err := h.batcher.ProcessNPAResponse(ctx, sub.ID, sub.Version, NPAResponse{
		Decisions: []uppf.ClaimDecision{
			{ClaimID: a.ID, Status: uppf.ClaimApproved, ApprovedAmount: &partial},
			{ClaimID: b.ID, Status: uppf.ClaimRejected, Reason: "waybill illegible"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, uppf.SubmissionApproved, sub.Status)
	assert.Len(t, sub.Decisions, 2)
	assert.Len(t, events, 3)

	approved, err := h.store.Claims().Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, uppf.ClaimApproved, approved.Status)
	assert.Equal(t, "300", approved.Variance.String())

	rejected, err := h.store.Claims().Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "waybill illegible", rejected.RejectionReason)

	reopened, _, err := h.claims.ReopenClaim(context.Background(), b.ID, rejected.Version, ClaimEdit{
		KmActual: d("150"), LitresMoved: d("30000"), Evidence: []string{"waybill-rescan.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, uppf.ClaimDraft, reopened.Status)

	var to []string
	for _, entry := range sub.History {
		to = append(to, entry.To)
	}
	assert.Equal(t, []string{"DRAFT", "SUBMITTED", "ACKNOWLEDGED", "APPROVED"}, to)
}

func TestProcessNPAResponseIsAllOrNothing(t *testing.T) {
	h := newHarness(t)
	a := h.readyClaim(t, "DEL-1")
	ctx := approver()
	sub, _, err := h.batcher.SubmitWindow(ctx, h.window.ID)
	require.NoError(t, err)
	sub, _, err = h.batcher.MarkSubmitted(ctx, sub.ID, sub.Version)
	require.NoError(t, err)

	_, _, err = h.batcher.ProcessNPAResponse(ctx, sub.ID, sub.Version, NPAResponse{
		Decisions: []uppf.ClaimDecision{
			{ClaimID: a.ID, Status: uppf.ClaimApproved},
			{ClaimID: "not-in-batch", Status: uppf.ClaimApproved},
		},
	})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	stored, err := h.store.Claims().Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, uppf.ClaimSubmitted, stored.Status)
	current, err := h.store.Submissions().Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, uppf.SubmissionSubmitted, current.Status)
}

func TestSubmissionSchedule(t *testing.T) {
	h := newHarness(t)
	actions, err := h.batcher.SubmissionSchedule(context.Background(), h.window.ID)
	require.NoError(t, err)
	require.Len(t, actions, 5)
	assert.Equal(t, h.window.SubmissionDeadline.AddDate(0, 0, -7), actions[0].At)
	assert.Equal(t, uppf.ActionEscalation, actions[4].Kind)
}

func TestDeriveStatus(t *testing.T) {
	assert.Equal(t, uppf.SubmissionUnderReview, deriveStatus(nil))
	assert.Equal(t, uppf.SubmissionRejected, deriveStatus([]uppf.ClaimDecision{{Status: uppf.ClaimRejected}}))
	assert.Equal(t, uppf.SubmissionUnderReview, deriveStatus([]uppf.ClaimDecision{{Status: uppf.ClaimApproved}, {Status: uppf.ClaimUnderReview}}))
	assert.Equal(t, uppf.SubmissionApproved, deriveStatus([]uppf.ClaimDecision{{Status: uppf.ClaimApproved}, {Status: uppf.ClaimRejected}}))
}

func TestDueActionsStopOnceSubmitted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	status, err := h.batcher.DueActions(ctx, h.window.ID, fixedNow.Add(-72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, h.window.SubmissionDeadline, status.Deadline)
	require.Len(t, status.Due, 1)
	assert.Equal(t, -3, status.Due[0].OffsetDays)

	status, err = h.batcher.DueActions(ctx, h.window.ID, h.window.StartDate)
	require.NoError(t, err)
	assert.Len(t, status.Due, 2)

	h.readyClaim(t, "DEL-1")
	sub, _, err := h.batcher.SubmitWindow(approver(), h.window.ID)
	require.NoError(t, err)
	status, err = h.batcher.DueActions(ctx, h.window.ID, h.window.StartDate)
	require.NoError(t, err)
	assert.Len(t, status.Due, 2, "a draft batch still needs reminders")

	_, _, err = h.batcher.MarkSubmitted(approver(), sub.ID, sub.Version)
	require.NoError(t, err)
	status, err = h.batcher.DueActions(ctx, h.window.ID, h.window.StartDate)
	require.NoError(t, err)
	assert.Empty(t, status.Due)

	_, err = h.batcher.DueActions(ctx, "2025-W99", fixedNow)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
