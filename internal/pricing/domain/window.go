package pricing

import (
	"fmt"
	"time"

	"omc-erp/internal/apperrors"
)

// WindowStatus is the lifecycle state of a pricing window.
type WindowStatus string

const (
	WindowDraft    WindowStatus = "draft"
	WindowActive   WindowStatus = "active"
	WindowClosed   WindowStatus = "closed"
	WindowArchived WindowStatus = "archived"
)

// DefaultWindowLength is the NPA pricing window length.
const DefaultWindowLength = 14 * 24 * time.Hour

// PricingWindow is a validity period for component rates and station prices.
type PricingWindow struct {
	ID                 string       `json:"id"`
	Status             WindowStatus `json:"status"`
	StartDate          time.Time    `json:"start_date"`
	EndDate            time.Time    `json:"end_date"`
	SubmissionDeadline time.Time    `json:"submission_deadline"`
	GuidelineRef       string       `json:"guideline_ref,omitempty"`
	CreatedAt          time.Time    `json:"created_at"`
	ActivatedAt        time.Time    `json:"activated_at,omitempty"`
	ClosedAt           time.Time    `json:"closed_at,omitempty"`
	ArchivedAt         time.Time    `json:"archived_at,omitempty"`
}

// BuildWindowID derives the YYYY-Wnn identifier from the window start.
func BuildWindowID(start time.Time) string {
	start = start.UTC()
	n := (start.YearDay() + 13) / 14
	return fmt.Sprintf("%d-W%02d", start.Year(), n)
}

// SubmissionDeadlineFor returns 17:00 UTC two days before the window ends.
func SubmissionDeadlineFor(end time.Time) time.Time {
	d := end.UTC().AddDate(0, 0, -2)
	return time.Date(d.Year(), d.Month(), d.Day(), 17, 0, 0, 0, time.UTC)
}

// NewPricingWindow creates a draft window. A zero end uses the default length.
func NewPricingWindow(start, end time.Time, guidelineRef string, now time.Time) (*PricingWindow, error) {
	if start.IsZero() {
		return nil, ErrInvalidWindowDates
	}
	start = truncateDay(start)
	if end.IsZero() {
		end = start.Add(DefaultWindowLength)
	}
	end = end.UTC()
	if !end.After(start) {
		return nil, ErrInvalidWindowDates
	}
	return &PricingWindow{
		ID:                 BuildWindowID(start),
		Status:             WindowDraft,
		StartDate:          start,
		EndDate:            end,
		SubmissionDeadline: SubmissionDeadlineFor(end),
		GuidelineRef:       guidelineRef,
		CreatedAt:          now.UTC(),
	}, nil
}

// EffectiveDate is the instant component rates are resolved at.
func (w *PricingWindow) EffectiveDate() time.Time { return w.StartDate }

// IsComputable reports whether prices may be calculated for the window.
func (w *PricingWindow) IsComputable() bool {
	return w != nil && (w.Status == WindowActive || w.Status == WindowClosed)
}

// Overlaps reports whether two windows share any instant.
func (w *PricingWindow) Overlaps(other *PricingWindow) bool {
	if w == nil || other == nil {
		return false
	}
	return w.StartDate.Before(other.EndDate) && other.StartDate.Before(w.EndDate)
}

// Activate moves draft to active.
func (w *PricingWindow) Activate(now time.Time) error {
	if w.Status != WindowDraft {
		return apperrors.InvalidTransition("pricing window", string(w.Status), string(WindowActive))
	}
	w.Status = WindowActive
	w.ActivatedAt = now.UTC()
	return nil
}

// Close moves active to closed.
func (w *PricingWindow) Close(now time.Time) error {
	if w.Status != WindowActive {
		return apperrors.InvalidTransition("pricing window", string(w.Status), string(WindowClosed))
	}
	w.Status = WindowClosed
	w.ClosedAt = now.UTC()
	return nil
}

// Archive moves closed to archived.
func (w *PricingWindow) Archive(now time.Time) error {
	if w.Status != WindowClosed {
		return apperrors.InvalidTransition("pricing window", string(w.Status), string(WindowArchived))
	}
	w.Status = WindowArchived
	w.ArchivedAt = now.UTC()
	return nil
}

// Clone returns a detached copy.
func (w *PricingWindow) Clone() *PricingWindow {
	if w == nil {
		return nil
	}
	copy := *w
	return &copy
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
