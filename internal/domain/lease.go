package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultStaleAfter is how long a lease may go without a heartbeat before it is
// considered abandoned.
const DefaultStaleAfter = 30 * time.Minute

// SummaryMaxRunes bounds Lease.Summary.
const SummaryMaxRunes = 50

// Lease is the exclusive right to execute one unit of work.
// Fields are ordered to minimize memory padding.
type Lease struct {
	AcquiredAt      time.Time `json:"acquired_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	Summary         string    `json:"instruction_summary"`
	RunID           string    `json:"run_id"`
	MessageIDs      []int64   `json:"message_ids"`
}

// NewLease creates a lease for the given unit of work.
func NewLease(messageIDs []int64, instruction, runID string, now time.Time) Lease {
	now = now.Truncate(time.Second)
	return Lease{
		MessageIDs:      append([]int64(nil), messageIDs...),
		Summary:         Summarize(instruction, SummaryMaxRunes),
		RunID:           runID,
		AcquiredAt:      now,
		LastHeartbeatAt: now,
	}
}

// Owns returns true if id belongs to the unit of work bound to the lease.
func (l *Lease) Owns(id int64) bool {
	for _, owned := range l.MessageIDs {
		if owned == id {
			return true
		}
	}
	return false
}

// Same reports whether other is the same lease at the same heartbeat.
func (l *Lease) Same(other *Lease) bool {
	if l == nil || other == nil {
		return l == other
	}
	return l.RunID == other.RunID &&
		l.AcquiredAt.Equal(other.AcquiredAt) &&
		l.LastHeartbeatAt.Equal(other.LastHeartbeatAt)
}

// LeaseState is the state of the singleton lease.
type LeaseState string

// Lease states.
const (
	LeaseFree  LeaseState = "free"
	LeaseHeld  LeaseState = "held"
	LeaseStale LeaseState = "stale"
)

// LeaseStatus is the result of inspecting the lease.
type LeaseStatus struct {
	Lease *Lease
	State LeaseState
	Idle  time.Duration // Time since the last heartbeat
}

// InspectLease classifies lease at time now. It never mutates anything.
// A lease is stale only when idle strictly longer than staleAfter.
func InspectLease(lease *Lease, now time.Time, staleAfter time.Duration) LeaseStatus {
	if lease == nil {
		return LeaseStatus{State: LeaseFree}
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	idle := now.Sub(lease.LastHeartbeatAt)
	if idle > staleAfter {
		return LeaseStatus{State: LeaseStale, Lease: lease, Idle: idle}
	}
	return LeaseStatus{State: LeaseHeld, Lease: lease, Idle: idle}
}

// Summarize flattens newlines and cuts text to at most max runes.
func Summarize(text string, max int) string {
	flat := strings.ReplaceAll(text, "\n", " ")
	if utf8.RuneCountInString(flat) <= max {
		return flat
	}
	return string([]rune(flat)[:max])
}
