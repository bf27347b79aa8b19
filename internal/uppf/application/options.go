package application

import (
	"context"
	"time"

	"go.uber.org/zap"

	"omc-erp/internal/audit"
	pricing "omc-erp/internal/pricing/domain"
	uppf "omc-erp/internal/uppf/domain"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// WindowReader resolves pricing windows; a missing window is (nil, nil).
type WindowReader interface {
	Get(ctx context.Context, id string) (*pricing.PricingWindow, error)
}

type settings struct {
	policy uppf.Policy
	audit  audit.Logger
	clock  Clock
	logger *zap.Logger
}

func newSettings(opts []Option) settings {
	s := settings{
		policy: uppf.DefaultPolicy(),
		clock:  SystemClock{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// Option configures the claim service and the submission batcher.
type Option func(*settings)

// WithPolicy overrides the UPPF policy.
func WithPolicy(policy uppf.Policy) Option {
	return func(s *settings) { s.policy = policy }
}

// WithAuditLogger records claim and submission transitions.
func WithAuditLogger(logger audit.Logger) Option {
	return func(s *settings) { s.audit = logger }
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}
