package store

import "time"

// Source tags where an event came from.
type Source string

const (
	SourceLocal   Source = "local"
	SourceGoogle  Source = "google"
	SourceOutlook Source = "outlook"
)

// ParseSource validates a source tag.
func ParseSource(s string) (Source, bool) {
	switch Source(s) {
	case SourceLocal, SourceGoogle, SourceOutlook:
		return Source(s), true
	}
	return "", false
}

// External reports whether rows with this source are owned by reconciliation.
func (s Source) External() bool {
	return s == SourceGoogle || s == SourceOutlook
}

// Priority of an event. Providers carry no equivalent, so synced events are medium.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Event is the canonical, provider-agnostic calendar entry.
type Event struct {
	ID            string
	Title         string
	Description   string
	Location      string
	Start         time.Time
	End           *time.Time
	AllDay        bool
	Priority      Priority
	Source        Source
	SourceEventID string
	CreatedBy     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Handoff is a sealed, one-shot token bundle waiting to be redeemed by the client.
type Handoff struct {
	CodeHash  string
	Provider  Source
	Sealed    []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}
