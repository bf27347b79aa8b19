package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"omc-erp/internal/auth"
)

// Entry represents an audit log entry for a state transition.
type Entry struct {
	ID            string
	TenantID      string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	StationID     string
	FromState     string
	ToState       string
	Metadata      json.RawMessage
	PayloadDigest string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Transition describes a state change to be audited.
type Transition struct {
	Action       string
	ResourceType string
	ResourceID   string
	StationID    string
	From         string
	To           string
	Metadata     any
}

// Record builds an entry from the identity in ctx and writes it.
// A nil logger drops the entry.
func Record(ctx context.Context, logger Logger, tr Transition) error {
	if logger == nil {
		return nil
	}
	entry := Entry{
		TenantID:     auth.TenantIDFromContext(ctx),
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       tr.Action,
		ResourceType: tr.ResourceType,
		ResourceID:   tr.ResourceID,
		StationID:    tr.StationID,
		FromState:    tr.From,
		ToState:      tr.To,
	}
	if entry.Actor == "" {
		entry.Actor = "system"
	}
	if tr.Metadata != nil {
		data, err := json.Marshal(tr.Metadata)
		if err != nil {
			return err
		}
		entry.Metadata = data
	}
	return logger.Log(ctx, entry)
}

// MemoryLogger keeps entries in memory.
type MemoryLogger struct {
	mu      sync.Mutex
	entries []Entry
}

// Log appends the entry.
func (m *MemoryLogger) Log(_ context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.mu.Lock()
	m.entries = append(m.entries, entry)
	m.mu.Unlock()
	return nil
}

// Entries returns a copy of the recorded entries.
func (m *MemoryLogger) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}
