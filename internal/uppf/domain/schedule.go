package uppf

import (
	"sort"
	"time"
)

// ActionKind distinguishes reminders before a deadline from escalations after it.
type ActionKind string

const (
	ActionReminder   ActionKind = "reminder"
	ActionEscalation ActionKind = "escalation"
)

// ScheduledAction is one notification relative to the submission deadline.
type ScheduledAction struct {
	Kind       ActionKind `json:"kind"`
	OffsetDays int        `json:"offset_days"`
	At         time.Time  `json:"at"`
}

var scheduleOffsets = []struct {
	kind ActionKind
	days int
}{
	{ActionReminder, -7},
	{ActionReminder, -3},
	{ActionReminder, -1},
	{ActionEscalation, 1},
	{ActionEscalation, 3},
}

// BuildSubmissionSchedule returns the reminders and escalations for a deadline in time order.
func BuildSubmissionSchedule(deadline time.Time) []ScheduledAction {
	out := make([]ScheduledAction, 0, len(scheduleOffsets))
	for _, o := range scheduleOffsets {
		out = append(out, ScheduledAction{Kind: o.kind, OffsetDays: o.days, At: deadline.UTC().AddDate(0, 0, o.days)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
