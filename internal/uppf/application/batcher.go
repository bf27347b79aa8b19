package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"omc-erp/internal/apperrors"
	"omc-erp/internal/audit"
	"omc-erp/internal/auth"
	"omc-erp/internal/observability/metrics"
	pricing "omc-erp/internal/pricing/domain"
	uppf "omc-erp/internal/uppf/domain"
)

// RenderedDocument is a generated document before storage.
type RenderedDocument struct {
	Type        uppf.DocumentType
	Format      string
	Filename    string
	ContentType string
	Data        []byte
}

// DocumentGenerator renders one submission document.
type DocumentGenerator interface {
	Render(ctx context.Context, docType uppf.DocumentType, sub *uppf.Submission, claims []*uppf.Claim) (RenderedDocument, error)
}

// DocumentStore stores generated documents and returns their location.
type DocumentStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

// NPAResponse is the NPA outcome for a submission. An empty Status is derived
// from the claim decisions.
type NPAResponse struct {
	Status    uppf.SubmissionStatus
	Decisions []uppf.ClaimDecision
	Note      string
}

// Batcher assembles ready claims into NPA submissions and tracks their lifecycle.
type Batcher struct {
	windows     WindowReader
	claims      uppf.ClaimRepository
	submissions uppf.SubmissionRepository
	generator   DocumentGenerator
	store       DocumentStore
	settings
}

// NewBatcher constructs the submission batcher.
func NewBatcher(
	windows WindowReader,
	claims uppf.ClaimRepository,
	submissions uppf.SubmissionRepository,
	generator DocumentGenerator,
	store DocumentStore,
	opts ...Option,
) (*Batcher, error) {
	switch {
	case windows == nil:
		return nil, errors.New("batcher: nil window reader")
	case claims == nil:
		return nil, errors.New("batcher: nil claim repository")
	case submissions == nil:
		return nil, errors.New("batcher: nil submission repository")
	case generator == nil:
		return nil, errors.New("batcher: nil document generator")
	case store == nil:
		return nil, errors.New("batcher: nil document store")
	}
	return &Batcher{
		windows:     windows,
		claims:      claims,
		submissions: submissions,
		generator:   generator,
		store:       store,
		settings:    newSettings(opts),
	}, nil
}

// SubmitWindow batches every ready_to_submit claim of a draft or active window.
//
// A FAIL rule persists the submission as DRAFT with its violations, leaves the
// claims untouched and returns that submission together with a ValidationFailed
// error. A document failure persists nothing. Otherwise the submission is saved
// with its documents and every claim moves to submitted in one commit.
func (b *Batcher) SubmitWindow(ctx context.Context, windowID string) (*uppf.Submission, []any, error) {
	start := time.Now()
	sub, events, err := b.submitWindow(ctx, windowID)
	result := metrics.ResultSuccess
	switch {
	case errors.Is(err, apperrors.ErrValidationFailed):
		result = metrics.ResultInvalid
	case err != nil:
		result = metrics.ResultError
	}
	metrics.ObserveSubmission(result, time.Since(start))
	return sub, events, err
}

func (b *Batcher) submitWindow(ctx context.Context, windowID string) (*uppf.Submission, []any, error) {
	if err := auth.Authorize(ctx, auth.OpSubmitClaims); err != nil {
		return nil, nil, err
	}
	window, err := b.windows.Get(ctx, windowID)
	if err != nil {
		return nil, nil, err
	}
	if window == nil {
		return nil, nil, apperrors.NotFound("pricing window", windowID)
	}
	if window.Status != pricing.WindowDraft && window.Status != pricing.WindowActive {
		return nil, nil, apperrors.InvalidWindow(window.ID, string(window.Status))
	}

	claims, err := b.claims.ListByWindow(ctx, windowID, uppf.ClaimReady)
	if err != nil {
		return nil, nil, err
	}
	if len(claims) == 0 {
		return nil, nil, noClaimsReady(windowID)
	}

	now := b.clock.Now()
	violations := uppf.SubmissionRules(claims, b.policy)
	sub, err := uppf.NewSubmission(auth.TenantIDFromContext(ctx), windowID, claims, violations, now)
	if err != nil {
		return nil, nil, err
	}
	if apperrors.HasFailures(violations) {
		if err := b.submissions.Commit(ctx, sub, 0, nil); err != nil {
			return nil, nil, err
		}
		b.logger.Warn("npa submission failed validation",
			zap.String("reference", sub.Reference),
			zap.String("window_id", windowID),
			zap.Int("violations", len(violations)))
		return sub, sub.PullEvents(), apperrors.ValidationFailed(violations)
	}

	docs, err := b.documents(ctx, sub, claims)
	if err != nil {
		return nil, nil, err
	}
	sub.AttachDocuments(docs)

	actor := actorOf(ctx)
	writes := make([]uppf.ClaimWrite, 0, len(claims))
	for _, c := range claims {
		expected := c.Version
		if err := c.Submit(sub.ID, actor, now); err != nil {
			return nil, nil, err
		}
		writes = append(writes, uppf.ClaimWrite{Claim: c, ExpectedVersion: expected})
	}
	sub.Created()
	if err := b.submissions.Commit(ctx, sub, 0, writes); err != nil {
		return nil, nil, err
	}

	events := sub.PullEvents()
	for _, c := range claims {
		events = append(events, c.PullEvents()...)
	}
	b.record(ctx, "submission.created", sub, "", map[string]any{
		"reference":    sub.Reference,
		"claims":       len(sub.ClaimIDs),
		"total_amount": sub.TotalAmount.StringFixed(uppf.MoneyPlaces),
	})
	b.logger.Info("npa submission created",
		zap.String("reference", sub.Reference),
		zap.String("window_id", windowID),
		zap.Int("claims", len(sub.ClaimIDs)),
		zap.Int("warnings", len(violations)),
		zap.String("total_amount", sub.TotalAmount.StringFixed(uppf.MoneyPlaces)))
	return sub, events, nil
}

func noClaimsReady(windowID string) error {
	return apperrors.Wrap(uppf.ErrNoClaimsReady, apperrors.CodeValidationFailed, apperrors.ErrValidationFailed.Status,
		fmt.Sprintf("window %s", windowID))
}

func (b *Batcher) documents(ctx context.Context, sub *uppf.Submission, claims []*uppf.Claim) ([]uppf.Document, error) {
	docs := make([]uppf.Document, 0, len(uppf.RequiredDocuments))
	for _, docType := range uppf.RequiredDocuments {
		rendered, err := b.generator.Render(ctx, docType, sub, claims)
		if err != nil {
			return nil, apperrors.DocumentGeneration(string(docType), err)
		}
		if len(rendered.Data) == 0 {
			return nil, apperrors.DocumentGeneration(string(docType), errors.New("empty document"))
		}
		key := path.Join(sub.WindowID, sub.Reference, rendered.Filename)
		location, err := b.store.Put(ctx, key, rendered.ContentType, rendered.Data)
		if err != nil {
			return nil, apperrors.DocumentGeneration(string(docType), err)
		}
		sum := sha256.Sum256(rendered.Data)
		docs = append(docs, uppf.Document{
			Type:     docType,
			Format:   rendered.Format,
			Filename: rendered.Filename,
			Location: location,
			Checksum: hex.EncodeToString(sum[:]),
			Size:     int64(len(rendered.Data)),
		})
	}
	return docs, nil
}

// MarkSubmitted moves a DRAFT submission with passed validation and documents to SUBMITTED.
func (b *Batcher) MarkSubmitted(ctx context.Context, id string, expectedVersion int) (*uppf.Submission, []any, error) {
	return b.transition(ctx, id, expectedVersion, auth.OpSubmitClaims, func(sub *uppf.Submission, actor string, now time.Time) ([]uppf.ClaimWrite, error) {
		if err := sub.MarkSubmitted(actor, now); err != nil {
			if errors.Is(err, uppf.ErrSubmissionIncomplete) {
				return nil, apperrors.Wrap(err, apperrors.CodeInvalidTransition, apperrors.ErrInvalidTransition.Status, sub.Reference)
			}
			return nil, err
		}
		return nil, nil
	})
}

// RecordAcknowledgement stores the NPA receipt reference.
func (b *Batcher) RecordAcknowledgement(ctx context.Context, id string, expectedVersion int, npaReference string) (*uppf.Submission, []any, error) {
	return b.transition(ctx, id, expectedVersion, auth.OpSubmitClaims, func(sub *uppf.Submission, actor string, now time.Time) ([]uppf.ClaimWrite, error) {
		return nil, sub.Acknowledge(npaReference, actor, now)
	})
}

// ProcessNPAResponse applies the NPA outcome to the submission and each decided
// claim in one commit.
func (b *Batcher) ProcessNPAResponse(ctx context.Context, id string, expectedVersion int, resp NPAResponse) (*uppf.Submission, []any, error) {
	var decided []*uppf.Claim
	sub, events, err := b.transition(ctx, id, expectedVersion, auth.OpRecordNPADecision, func(sub *uppf.Submission, actor string, now time.Time) ([]uppf.ClaimWrite, error) {
		members := make(map[string]bool, len(sub.ClaimIDs))
		for _, cid := range sub.ClaimIDs {
			members[cid] = true
		}
		writes := make([]uppf.ClaimWrite, 0, len(resp.Decisions))
		for _, decision := range resp.Decisions {
			if !members[decision.ClaimID] {
				return nil, apperrors.NotFound("claim in submission "+sub.Reference, decision.ClaimID)
			}
			claim, err := b.claims.Get(ctx, decision.ClaimID)
			if err != nil {
				return nil, err
			}
			expected := claim.Version
			if err := claim.Decide(decision, actor, now); err != nil {
				return nil, err
			}
			writes = append(writes, uppf.ClaimWrite{Claim: claim, ExpectedVersion: expected})
			decided = append(decided, claim)
		}
		status := resp.Status
		if status == "" {
			status = deriveStatus(resp.Decisions)
		}
		return writes, sub.ApplyResponse(status, resp.Decisions, actor, resp.Note, now)
	})
	if err != nil {
		return nil, nil, err
	}
	for _, c := range decided {
		events = append(events, c.PullEvents()...)
	}
	return sub, events, nil
}

// deriveStatus is UNDER_REVIEW while any claim is pending, REJECTED when every
// claim is rejected and APPROVED otherwise.
func deriveStatus(decisions []uppf.ClaimDecision) uppf.SubmissionStatus {
	if len(decisions) == 0 {
		return uppf.SubmissionUnderReview
	}
	rejected := 0
	for _, d := range decisions {
		switch d.Status {
		case uppf.ClaimUnderReview:
			return uppf.SubmissionUnderReview
		case uppf.ClaimRejected:
			rejected++
		}
	}
	if rejected == len(decisions) {
		return uppf.SubmissionRejected
	}
	return uppf.SubmissionApproved
}

// SubmissionSchedule returns the reminders and escalations for a window's deadline.
func (b *Batcher) SubmissionSchedule(ctx context.Context, windowID string) ([]uppf.ScheduledAction, error) {
	window, err := b.windows.Get(ctx, windowID)
	if err != nil {
		return nil, err
	}
	if window == nil {
		return nil, apperrors.NotFound("pricing window", windowID)
	}
	return uppf.BuildSubmissionSchedule(window.SubmissionDeadline), nil
}

// DeadlineStatus lists the schedule actions of a window that fell due.
type DeadlineStatus struct {
	WindowID string
	Deadline time.Time
	Due      []uppf.ScheduledAction
}

// DueActions returns the actions scheduled in (since, now]. A window with a
// submission beyond DRAFT needs no reminders and yields none.
func (b *Batcher) DueActions(ctx context.Context, windowID string, since time.Time) (DeadlineStatus, error) {
	status := DeadlineStatus{WindowID: windowID}
	window, err := b.windows.Get(ctx, windowID)
	if err != nil {
		return status, err
	}
	if window == nil {
		return status, apperrors.NotFound("pricing window", windowID)
	}
	status.Deadline = window.SubmissionDeadline

	subs, err := b.submissions.ListByWindow(ctx, windowID)
	if err != nil {
		return status, err
	}
	for _, sub := range subs {
		if sub.Status != uppf.SubmissionDraft {
			return status, nil
		}
	}
	now := b.clock.Now()
	for _, action := range uppf.BuildSubmissionSchedule(window.SubmissionDeadline) {
		if action.At.After(since) && !action.At.After(now) {
			status.Due = append(status.Due, action)
		}
	}
	return status, nil
}

func (b *Batcher) transition(
	ctx context.Context,
	id string,
	expectedVersion int,
	op string,
	apply func(sub *uppf.Submission, actor string, now time.Time) ([]uppf.ClaimWrite, error),
) (*uppf.Submission, []any, error) {
	if err := auth.Authorize(ctx, op); err != nil {
		return nil, nil, err
	}
	sub, err := b.submissions.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if sub.Version != expectedVersion {
		return nil, nil, apperrors.Conflict("npa submission", sub.Reference)
	}
	from := sub.Status
	writes, err := apply(sub, actorOf(ctx), b.clock.Now())
	if err != nil {
		return nil, nil, err
	}
	if err := b.submissions.Commit(ctx, sub, expectedVersion, writes); err != nil {
		return nil, nil, err
	}
	b.record(ctx, "submission."+string(sub.Status), sub, from, map[string]any{
		"reference":     sub.Reference,
		"npa_reference": sub.NPAReference,
		"decisions":     len(writes),
	})
	b.logger.Info("npa submission transition",
		zap.String("reference", sub.Reference),
		zap.String("from", string(from)),
		zap.String("to", string(sub.Status)))
	return sub, sub.PullEvents(), nil
}

func (b *Batcher) record(ctx context.Context, action string, sub *uppf.Submission, from uppf.SubmissionStatus, metadata map[string]any) {
	if err := audit.Record(ctx, b.audit, audit.Transition{
		Action:       action,
		ResourceType: "npa_submission",
		ResourceID:   sub.ID,
		From:         string(from),
		To:           string(sub.Status),
		Metadata:     metadata,
	}); err != nil {
		b.logger.Warn("audit write failed", zap.String("submission_id", sub.ID), zap.Error(err))
	}
}
