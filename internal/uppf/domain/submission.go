package uppf

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"omc-erp/internal/apperrors"
)

// SubmissionStatus is the lifecycle state of an NPA submission batch.
type SubmissionStatus string

const (
	SubmissionDraft        SubmissionStatus = "DRAFT"
	SubmissionSubmitted    SubmissionStatus = "SUBMITTED"
	SubmissionAcknowledged SubmissionStatus = "ACKNOWLEDGED"
	SubmissionUnderReview  SubmissionStatus = "UNDER_REVIEW"
	SubmissionApproved     SubmissionStatus = "APPROVED"
	SubmissionRejected     SubmissionStatus = "REJECTED"
)

const submissionEntity = "npa submission"

var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionDraft:        {SubmissionSubmitted},
	SubmissionSubmitted:    {SubmissionAcknowledged, SubmissionUnderReview, SubmissionApproved, SubmissionRejected},
	SubmissionAcknowledged: {SubmissionUnderReview, SubmissionApproved, SubmissionRejected},
	SubmissionUnderReview:  {SubmissionApproved, SubmissionRejected},
}

// DocumentType names a generated submission document.
type DocumentType string

const (
	DocSummaryReport         DocumentType = "SUMMARY_REPORT"
	DocDetailedClaims        DocumentType = "DETAILED_CLAIMS"
	DocComplianceCertificate DocumentType = "COMPLIANCE_CERTIFICATE"
)

// RequiredDocuments lists the documents every submission carries.
var RequiredDocuments = []DocumentType{DocSummaryReport, DocDetailedClaims, DocComplianceCertificate}

// Document is a stored submission attachment.
type Document struct {
	Type     DocumentType `json:"type"`
	Format   string       `json:"format"`
	Filename string       `json:"filename"`
	Location string       `json:"location"`
	Checksum string       `json:"checksum"`
	Size     int64        `json:"size"`
}

// Submission is a batch of claims sent to the NPA for one window.
type Submission struct {
	ID                string
	Reference         string
	TenantID          string
	WindowID          string
	ClaimIDs          []string
	TotalAmount       decimal.Decimal
	TotalLitres       decimal.Decimal
	Status            SubmissionStatus
	ValidationResults []apperrors.Violation
	Documents         []Document
	Decisions         []ClaimDecision
	NPAReference      string
	Version           int
	CreatedAt         time.Time
	SubmittedAt       time.Time
	AcknowledgedAt    time.Time
	RespondedAt       time.Time
	History           []HistoryEntry

	events []any
}

// BuildSubmissionReference formats UPP-{windowID}-{unix}.
func BuildSubmissionReference(windowID string, at time.Time) string {
	return fmt.Sprintf("UPP-%s-%d", windowID, at.Unix())
}

// NewSubmission builds a DRAFT batch with totals over claims.
func NewSubmission(tenantID, windowID string, claims []*Claim, violations []apperrors.Violation, now time.Time) (*Submission, error) {
	if windowID == "" {
		return nil, ErrEmptyWindowID
	}
	now = now.UTC()
	s := &Submission{
		ID:                uuid.NewString(),
		Reference:         BuildSubmissionReference(windowID, now),
		TenantID:          tenantID,
		WindowID:          windowID,
		Status:            SubmissionDraft,
		ValidationResults: append([]apperrors.Violation(nil), violations...),
		CreatedAt:         now,
		History:           []HistoryEntry{{To: string(SubmissionDraft), At: now}},
	}
	for _, c := range claims {
		s.ClaimIDs = append(s.ClaimIDs, c.ID)
		s.TotalAmount = s.TotalAmount.Add(c.ClaimAmount)
		s.TotalLitres = s.TotalLitres.Add(c.LitresMoved)
	}
	sort.Strings(s.ClaimIDs)
	return s, nil
}

// ValidationPassed reports whether the batch rules found no FAIL.
func (s *Submission) ValidationPassed() bool { return !apperrors.HasFailures(s.ValidationResults) }

// HasRequiredDocuments reports whether every required document is attached.
func (s *Submission) HasRequiredDocuments() bool {
	have := make(map[DocumentType]bool, len(s.Documents))
	for _, d := range s.Documents {
		have[d.Type] = d.Location != "" && d.Checksum != ""
	}
	for _, t := range RequiredDocuments {
		if !have[t] {
			return false
		}
	}
	return true
}

// AttachDocuments records the stored documents of the batch.
func (s *Submission) AttachDocuments(docs []Document) {
	s.Documents = append([]Document(nil), docs...)
}

// Created records the creation event once the batch is persisted with its claims.
func (s *Submission) Created() {
	s.events = append(s.events, SubmissionCreated{
		SubmissionID: s.ID,
		Reference:    s.Reference,
		WindowID:     s.WindowID,
		ClaimCount:   len(s.ClaimIDs),
		TotalAmount:  s.TotalAmount,
		OccurredAt:   s.CreatedAt,
	})
}

// MarkSubmitted moves DRAFT to SUBMITTED once validation passed and documents exist.
func (s *Submission) MarkSubmitted(actor string, now time.Time) error {
	if s.Status == SubmissionDraft && (!s.ValidationPassed() || !s.HasRequiredDocuments()) {
		return ErrSubmissionIncomplete
	}
	if err := s.transition(SubmissionSubmitted, actor, "", now); err != nil {
		return err
	}
	s.SubmittedAt = s.History[len(s.History)-1].At
	return nil
}

// Acknowledge records the NPA receipt reference.
func (s *Submission) Acknowledge(npaReference, actor string, now time.Time) error {
	if npaReference == "" {
		return ErrNPAReferenceRequired
	}
	if err := s.transition(SubmissionAcknowledged, actor, npaReference, now); err != nil {
		return err
	}
	s.NPAReference = npaReference
	s.AcknowledgedAt = s.History[len(s.History)-1].At
	return nil
}

// ApplyResponse records the NPA outcome for the batch.
func (s *Submission) ApplyResponse(status SubmissionStatus, decisions []ClaimDecision, actor, note string, now time.Time) error {
	switch status {
	case SubmissionApproved, SubmissionRejected, SubmissionUnderReview:
	default:
		return apperrors.InvalidTransition(submissionEntity, string(s.Status), string(status))
	}
	if err := s.transition(status, actor, note, now); err != nil {
		return err
	}
	s.Decisions = append(s.Decisions, decisions...)
	s.RespondedAt = s.History[len(s.History)-1].At
	return nil
}

func (s *Submission) transition(to SubmissionStatus, actor, note string, now time.Time) error {
	allowed := false
	for _, next := range submissionTransitions[s.Status] {
		if next == to {
			allowed = true
			break
		}
	}
	if !allowed {
		return apperrors.InvalidTransition(submissionEntity, string(s.Status), string(to))
	}
	now = now.UTC()
	from := s.Status
	s.Status = to
	s.History = append(s.History, HistoryEntry{From: string(from), To: string(to), At: now, Actor: actor, Note: note})
	s.events = append(s.events, SubmissionStatusChanged{
		SubmissionID: s.ID,
		WindowID:     s.WindowID,
		From:         from,
		To:           to,
		Actor:        actor,
		OccurredAt:   now,
	})
	return nil
}

// PullEvents returns and clears the pending domain events.
func (s *Submission) PullEvents() []any {
	events := s.events
	s.events = nil
	return events
}

// Clone returns a deep copy without pending events.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	out := *s
	out.ClaimIDs = append([]string(nil), s.ClaimIDs...)
	out.ValidationResults = append([]apperrors.Violation(nil), s.ValidationResults...)
	out.Documents = append([]Document(nil), s.Documents...)
	out.Decisions = append([]ClaimDecision(nil), s.Decisions...)
	out.History = append([]HistoryEntry(nil), s.History...)
	out.events = nil
	return &out
}
