package models

import (
	"time"
)

// TimelineEventType identifies the kind of state-affecting event recorded
// for a bet
type TimelineEventType string

const (
	TimelineEventCreated        TimelineEventType = "created"
	TimelineEventConfirmed      TimelineEventType = "confirmed"
	TimelineEventDeclined       TimelineEventType = "declined"
	TimelineEventDoubleProposed TimelineEventType = "double_proposed"
	TimelineEventDoubleAccepted TimelineEventType = "double_accepted"
	TimelineEventDoubleDeclined TimelineEventType = "double_declined"
	TimelineEventResolved       TimelineEventType = "resolved"
	TimelineEventVotingStarted  TimelineEventType = "voting_started"
	TimelineEventVoteCast       TimelineEventType = "vote_cast"
	TimelineEventExpired        TimelineEventType = "expired"
)

// TimelineEntry is one immutable record in a bet's append-only audit log
type TimelineEntry struct {
	ID    int64             `db:"id"`
	BetID int64             `db:"bet_id"`
	At    time.Time         `db:"at"`
	By    int64             `db:"by_id"` // SystemActorID for engine-driven entries
	Type  TimelineEventType `db:"type"`
	Notes *string           `db:"notes"`
}
