package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetentionPolicy_Expired(t *testing.T) {
	now := baseTime
	policy := DefaultRetention()
	day := 24 * time.Hour

	tests := []struct {
		name      string
		age       time.Duration
		processed bool
		want      bool
	}{
		{name: "processed 29 days", age: 29 * day, processed: true, want: false},
		{name: "processed 31 days", age: 31 * day, processed: true, want: true},
		{name: "unprocessed 90 days", age: 90 * day, processed: false, want: false},
		{name: "processed within window", age: time.Hour, processed: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &MessageRecord{Timestamp: now.Add(-tt.age), Processed: tt.processed}
			assert.Equal(t, tt.want, policy.Expired(rec, now))
		})
	}
}

func TestRetentionPolicy_WindowWinsOverShortTTL(t *testing.T) {
	policy := RetentionPolicy{ProcessedTTL: time.Hour, ContextWindow: 24 * time.Hour}
	rec := &MessageRecord{Timestamp: baseTime.Add(-2 * time.Hour), Processed: true}
	assert.False(t, policy.Expired(rec, baseTime))
}
