package events

import (
	"context"
	"sync"

	"betmates/models"
	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBetCreated     EventType = "bet_created"
	EventTypeBetConfirmed   EventType = "bet_confirmed"
	EventTypeBetDeclined    EventType = "bet_declined"
	EventTypeBetActivated   EventType = "bet_activated"
	EventTypeDoubleProposed EventType = "double_proposed"
	EventTypeDoubleApproved EventType = "double_approved"
	EventTypeDoubleDeclined EventType = "double_declined"
	EventTypeVotingStarted  EventType = "voting_started"
	EventTypeVoteCast       EventType = "vote_cast"
	EventTypeBetResolved    EventType = "bet_resolved"
	EventTypeBetExpired     EventType = "bet_expired"
	EventTypeBetDeleted     EventType = "bet_deleted"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BetCreatedEvent is emitted when a new bet is proposed
type BetCreatedEvent struct {
	BetID          int64
	CreatorID      int64
	ParticipantIDs []int64
	BetType        models.BetType
	Status         models.BetStatus
}

func (e BetCreatedEvent) Type() EventType {
	return EventTypeBetCreated
}

// BetConfirmedEvent is emitted when a participant accepts a proposed bet
type BetConfirmedEvent struct {
	BetID         int64
	ParticipantID int64
	AllConfirmed  bool
}

func (e BetConfirmedEvent) Type() EventType {
	return EventTypeBetConfirmed
}

// BetDeclinedEvent is emitted when a participant declines, cancelling the bet
type BetDeclinedEvent struct {
	BetID         int64
	ParticipantID int64
}

func (e BetDeclinedEvent) Type() EventType {
	return EventTypeBetDeclined
}

// BetActivatedEvent is emitted when a bet transitions from pending to active
type BetActivatedEvent struct {
	BetID          int64
	ParticipantIDs []int64
}

func (e BetActivatedEvent) Type() EventType {
	return EventTypeBetActivated
}

// DoubleProposedEvent is emitted when a stake-doubling proposal is opened
type DoubleProposedEvent struct {
	BetID      int64
	ProposedBy int64
	Factor     int64
}

func (e DoubleProposedEvent) Type() EventType {
	return EventTypeDoubleProposed
}

// DoubleApprovedEvent is emitted when a doubling proposal passes unanimously
type DoubleApprovedEvent struct {
	BetID      int64
	Factor     int64
	StakeMoney int64
}

func (e DoubleApprovedEvent) Type() EventType {
	return EventTypeDoubleApproved
}

// DoubleDeclinedEvent is emitted when a doubling proposal is rejected
type DoubleDeclinedEvent struct {
	BetID      int64
	DeclinedBy int64
}

func (e DoubleDeclinedEvent) Type() EventType {
	return EventTypeDoubleDeclined
}

// VotingStartedEvent is emitted when quorum voting opens on a group bet
type VotingStartedEvent struct {
	BetID            int64
	EligibleVoterIDs []int64
	RequiredVotes    int
}

func (e VotingStartedEvent) Type() EventType {
	return EventTypeVotingStarted
}

// VoteCastEvent is emitted for every recorded vote
type VoteCastEvent struct {
	BetID       int64
	VoterID     int64
	CandidateID int64
}

func (e VoteCastEvent) Type() EventType {
	return EventTypeVoteCast
}

// BetResolvedEvent is emitted when a bet reaches the resolved status
type BetResolvedEvent struct {
	BetID          int64
	WinnerID       int64
	ResolvedBy     int64
	ParticipantIDs []int64
	ByVote         bool
}

func (e BetResolvedEvent) Type() EventType {
	return EventTypeBetResolved
}

// BetExpiredEvent is emitted when a bet's deadline forces expiry
type BetExpiredEvent struct {
	BetID          int64
	ParticipantIDs []int64
}

func (e BetExpiredEvent) Type() EventType {
	return EventTypeBetExpired
}

// BetDeletedEvent is emitted when a bet record is destroyed
type BetDeletedEvent struct {
	BetID     int64
	DeletedBy int64
}

func (e BetDeletedEvent) Type() EventType {
	return EventTypeBetDeleted
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers")

	// Call handlers asynchronously to avoid blocking the committer
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds pending events coupled to a unit of work and
// flushes them to the underlying bus only after a successful commit.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

// NewTransactionalBus creates a transactional wrapper around the main bus
func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

// Publish stashes an event until Flush
func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush emits all pending events; called after a successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	// Events outlive the transaction, so emission uses a fresh context
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// Discard drops pending events; called after rollback
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
