package uppf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omc-erp/internal/apperrors"
)

func readyClaim(t *testing.T) *Claim {
	t.Helper()
	c := newClaim(t)
	rec, err := ReconcileVolumes(d("30000"), d("30000"), d("30000"), DefaultPolicy().ReconciliationTolerance)
	require.NoError(t, err)
	require.NoError(t, c.Reconcile(rec, now))
	require.NoError(t, c.ApplyValidation(nil, 150, now))
	return c
}

func TestSubmissionRulesCollectEveryViolation(t *testing.T) {
	clean := readyClaim(t)

	bad := newClaim(t)
	bad.Evidence = nil
	bad.KmBeyondEqualisation = d("0")
	bad.ClaimAmount = d("75000")

	violations := SubmissionRules([]*Claim{clean, bad}, DefaultPolicy())
	got := rules(violations)
	assert.Equal(t, []string{RuleNPAEvidence, RuleNPAReconciliation, RuleNPALargeClaim, RuleNPAKmBeyond, RuleNPAValidation}, got)
	for _, v := range violations {
		assert.Equal(t, bad.ClaimNumber, v.Field)
	}
	assert.Equal(t, apperrors.SeverityWarning, violations[2].Severity)
	assert.Empty(t, SubmissionRules([]*Claim{clean}, DefaultPolicy()))
}

func TestLargeClaimIsOnlyAWarning(t *testing.T) {
	c := readyClaim(t)
	c.ClaimAmount = d("50000.01")
	violations := SubmissionRules([]*Claim{c}, DefaultPolicy())
	require.Len(t, violations, 1)
	assert.False(t, apperrors.HasFailures(violations))
}

func TestNewSubmissionTotalsAndReference(t *testing.T) {
	a, b := readyClaim(t), readyClaim(t)
	b.LitresMoved = d("12000")
	b.ClaimAmount = d("720")

	s, err := NewSubmission("omc-gh", "2025-W05", []*Claim{a, b}, nil, now)
	require.NoError(t, err)
	assert.Equal(t, "UPP-2025-W05-1741770000", s.Reference)
	assert.Equal(t, "2520", s.TotalAmount.String())
	assert.Equal(t, "42000", s.TotalLitres.String())
	assert.Len(t, s.ClaimIDs, 2)
	assert.Equal(t, SubmissionDraft, s.Status)
	assert.True(t, s.ValidationPassed())
}

func TestSubmissionMarkSubmittedNeedsDocuments(t *testing.T) {
	s, err := NewSubmission("", "2025-W05", []*Claim{readyClaim(t)}, nil, now)
	require.NoError(t, err)
	assert.ErrorIs(t, s.MarkSubmitted("ama", now), ErrSubmissionIncomplete)

	s.AttachDocuments([]Document{
		{Type: DocSummaryReport, Location: "a", Checksum: "x"},
		{Type: DocDetailedClaims, Location: "b", Checksum: "y"},
	})
	assert.ErrorIs(t, s.MarkSubmitted("ama", now), ErrSubmissionIncomplete)

	s.AttachDocuments(append(s.Documents, Document{Type: DocComplianceCertificate, Location: "c", Checksum: "z"}))
	require.NoError(t, s.MarkSubmitted("ama", now))
	assert.Equal(t, SubmissionSubmitted, s.Status)
}

func TestSubmissionFailedValidationCannotBeSubmitted(t *testing.T) {
	s, err := NewSubmission("", "2025-W05", nil, []apperrors.Violation{{Rule: RuleNPAEvidence, Severity: apperrors.SeverityFail}}, now)
	require.NoError(t, err)
	assert.False(t, s.ValidationPassed())
	assert.ErrorIs(t, s.MarkSubmitted("ama", now), ErrSubmissionIncomplete)
}

func TestSubmissionResponseLifecycle(t *testing.T) {
	s, err := NewSubmission("", "2025-W05", []*Claim{readyClaim(t)}, nil, now)
	require.NoError(t, err)
	s.AttachDocuments([]Document{
		{Type: DocSummaryReport, Location: "a", Checksum: "x"},
		{Type: DocDetailedClaims, Location: "b", Checksum: "y"},
		{Type: DocComplianceCertificate, Location: "c", Checksum: "z"},
	})
	require.NoError(t, s.MarkSubmitted("ama", now))

	assert.ErrorIs(t, s.Acknowledge("", "npa", now), ErrNPAReferenceRequired)
	require.NoError(t, s.Acknowledge("NPA-778", "npa", now.Add(time.Hour)))
	assert.Equal(t, "NPA-778", s.NPAReference)

	assert.ErrorIs(t, s.ApplyResponse(SubmissionDraft, nil, "npa", "", now), apperrors.ErrInvalidTransition)
	require.NoError(t, s.ApplyResponse(SubmissionUnderReview, nil, "npa", "", now))
	require.NoError(t, s.ApplyResponse(SubmissionApproved, []ClaimDecision{{ClaimID: s.ClaimIDs[0], Status: ClaimApproved}}, "npa", "", now))
	assert.ErrorIs(t, s.ApplyResponse(SubmissionRejected, nil, "npa", "", now), apperrors.ErrInvalidTransition)

	var to []string
	for _, h := range s.History {
		to = append(to, h.To)
	}
	assert.Equal(t, []string{"DRAFT", "SUBMITTED", "ACKNOWLEDGED", "UNDER_REVIEW", "APPROVED"}, to)
	assert.Len(t, s.PullEvents(), 4)
}

func TestBuildSubmissionSchedule(t *testing.T) {
	deadline := time.Date(2025, 3, 20, 17, 0, 0, 0, time.UTC)
	actions := BuildSubmissionSchedule(deadline)
	require.Len(t, actions, 5)
	assert.Equal(t, ActionReminder, actions[0].Kind)
	assert.Equal(t, time.Date(2025, 3, 13, 17, 0, 0, 0, time.UTC), actions[0].At)
	assert.Equal(t, -1, actions[2].OffsetDays)
	assert.Equal(t, ActionEscalation, actions[3].Kind)
	assert.Equal(t, time.Date(2025, 3, 23, 17, 0, 0, 0, time.UTC), actions[4].At)
}
