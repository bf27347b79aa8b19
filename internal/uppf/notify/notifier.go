package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	uppf "omc-erp/internal/uppf/domain"
)

// Clock provides time for cooldown checks.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier tells the UPPF desk about submission deadlines and NPA responses.
type Notifier struct {
	channel  Channel
	template *Template
	clock    Clock
	cooldown time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	sent map[string]sendRecord
}

// Option configures the notifier.
type Option func(*Notifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown suppresses identical notifications for the same key within interval.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// NewNotifier constructs a notifier. A nil template uses DefaultTemplate.
func NewNotifier(channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if channel == nil {
		return nil, errors.New("npa notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		logger:   zap.NewNop(),
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// NotifyDeadline sends one reminder or escalation of a window's submission deadline.
func (n *Notifier) NotifyDeadline(ctx context.Context, windowID string, deadline time.Time, action uppf.ScheduledAction) error {
	data := TemplateData{
		WindowID:   windowID,
		Deadline:   deadline.UTC().Format(time.RFC3339),
		OffsetDays: action.OffsetDays,
		Status:     deadlineStatus(action),
		Event:      string(action.Kind),
		EventLabel: eventLabel(string(action.Kind)),
		Suggestion: deadlineSuggestion(action),
	}
	key := fmt.Sprintf("%s|%s|%d", windowID, action.Kind, action.OffsetDays)
	return n.dispatch(ctx, key, data)
}

// HandleEvent notifies NPA responses to a submission. It is an eventing handler
// for uppf.SubmissionStatusChanged; other events are ignored.
func (n *Notifier) HandleEvent(ctx context.Context, event any) error {
	evt, ok := event.(uppf.SubmissionStatusChanged)
	if !ok {
		return nil
	}
	switch evt.To {
	case uppf.SubmissionAcknowledged, uppf.SubmissionUnderReview, uppf.SubmissionApproved, uppf.SubmissionRejected:
	default:
		return nil
	}
	data := TemplateData{
		WindowID:   evt.WindowID,
		Reference:  evt.SubmissionID,
		Deadline:   "-",
		Status:     string(evt.To),
		Event:      string(evt.To),
		EventLabel: eventLabel(string(evt.To)),
		Suggestion: responseSuggestion(evt.To),
	}
	return n.dispatch(ctx, evt.SubmissionID+"|"+string(evt.To), data)
}

func (n *Notifier) dispatch(ctx context.Context, key string, data TemplateData) error {
	if n == nil || n.channel == nil {
		return nil
	}
	content, err := n.template.Render(data)
	if err != nil {
		return err
	}
	if !n.shouldSend(key, content) {
		n.logger.Debug("npa notification suppressed", zap.String("key", key))
		return nil
	}
	if err := n.channel.Send(ctx, content); err != nil {
		n.logger.Warn("npa notification failed", zap.String("key", key), zap.Error(err))
		return err
	}
	n.markSent(key, content)
	return nil
}

func (n *Notifier) shouldSend(key, content string) bool {
	if n.cooldown <= 0 {
		return true
	}
	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	return record.hash != hashContent(content) || n.clock.Now().UTC().Sub(record.at) >= n.cooldown
}

func (n *Notifier) markSent(key, content string) {
	n.mu.Lock()
	n.sent[key] = sendRecord{at: n.clock.Now().UTC(), hash: hashContent(content)}
	n.mu.Unlock()
}

func deadlineStatus(action uppf.ScheduledAction) string {
	days := action.OffsetDays
	if days < 0 {
		return fmt.Sprintf("due in %d day(s)", -days)
	}
	return fmt.Sprintf("overdue by %d day(s)", days)
}

func eventLabel(event string) string {
	switch event {
	case string(uppf.ActionReminder):
		return "Submission Reminder"
	case string(uppf.ActionEscalation):
		return "Submission Overdue"
	case string(uppf.SubmissionAcknowledged):
		return "Submission Acknowledged"
	case string(uppf.SubmissionUnderReview):
		return "Submission Under Review"
	case string(uppf.SubmissionApproved):
		return "Submission Approved"
	case string(uppf.SubmissionRejected):
		return "Submission Rejected"
	default:
		return event
	}
}

func deadlineSuggestion(action uppf.ScheduledAction) string {
	if action.Kind == uppf.ActionEscalation {
		return "Submit the window's ready claims to the NPA immediately."
	}
	return "Validate and reconcile outstanding claims before the deadline."
}

func responseSuggestion(status uppf.SubmissionStatus) string {
	switch status {
	case uppf.SubmissionRejected:
		return "Review the rejection reasons and reopen the affected claims."
	case uppf.SubmissionApproved:
		return "Reconcile approved amounts against the claims and await payment."
	default:
		return "No action needed."
	}
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
