package domain

import "time"

// DefaultProcessedTTL is how long processed records are kept for reference.
const DefaultProcessedTTL = 30 * 24 * time.Hour

// RetentionPolicy decides which message records may be purged.
type RetentionPolicy struct {
	ProcessedTTL  time.Duration // Processed records older than this are purged
	ContextWindow time.Duration // Records younger than this are always kept
}

// DefaultRetention returns the 30 day / 24 hour policy.
func DefaultRetention() RetentionPolicy {
	return RetentionPolicy{ProcessedTTL: DefaultProcessedTTL, ContextWindow: DefaultContextWindow}
}

// Expired returns true if rec may be removed at time now.
// Unprocessed records are never expired.
func (p RetentionPolicy) Expired(rec *MessageRecord, now time.Time) bool {
	if !rec.Processed {
		return false
	}
	ttl := p.ProcessedTTL
	if ttl <= 0 {
		ttl = DefaultProcessedTTL
	}
	window := p.ContextWindow
	if window <= 0 {
		window = DefaultContextWindow
	}
	if !rec.Timestamp.Before(now.Add(-window)) {
		return false
	}
	return rec.Timestamp.Before(now.Add(-ttl))
}
