package service

import (
	"context"
	"time"

	"betmates/events"
	"betmates/models"
)

// UserRepository defines the interface for the participant directory
type UserRepository interface {
	// GetByID retrieves a user by their stable participant ID
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetByUsername resolves a human-readable handle to a participant.
	// Returns nil without error when the handle is unknown.
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// Create registers a new user
	Create(ctx context.Context, username, displayName string) (*models.User, error)
}

// BetRepository defines the interface for bet data access
type BetRepository interface {
	// Create persists a new bet record and assigns its ID
	Create(ctx context.Context, bet *models.Bet) error

	// GetByID retrieves a bet by its ID. Returns nil without error when
	// the bet does not exist.
	GetByID(ctx context.Context, id int64) (*models.Bet, error)

	// GetByIDForUpdate retrieves a bet and locks its row for the duration
	// of the surrounding transaction, serializing mutations per bet
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Bet, error)

	// Update persists a mutated bet. The write compares and bumps the
	// version counter and fails with ErrConcurrentUpdate when the row
	// moved underneath the caller.
	Update(ctx context.Context, bet *models.Bet) error

	// Delete destroys a bet record and its timeline
	Delete(ctx context.Context, id int64) error

	// GetByParticipant returns bets a user participates in, newest first
	GetByParticipant(ctx context.Context, participantID int64, limit int) ([]*models.Bet, error)

	// GetActiveByParticipant returns pending, active and double_proposed
	// bets for a user
	GetActiveByParticipant(ctx context.Context, participantID int64) ([]*models.Bet, error)

	// GetResolvedByParticipant returns resolved bets for a user
	GetResolvedByParticipant(ctx context.Context, participantID int64, limit int) ([]*models.Bet, error)

	// GetByStatus returns all bets with the given status
	GetByStatus(ctx context.Context, status models.BetStatus) ([]*models.Bet, error)

	// GetExpiredActive returns active bets whose deadline has elapsed
	GetExpiredActive(ctx context.Context, now time.Time) ([]*models.Bet, error)

	// GetStats returns aggregate statistics for a participant
	GetStats(ctx context.Context, participantID int64) (*models.BetStats, error)
}

// TimelineRepository defines the interface for the append-only audit log.
// No operation removes or edits existing entries.
type TimelineRepository interface {
	// Append adds one immutable entry with a capture-time timestamp
	Append(ctx context.Context, entry *models.TimelineEntry) error

	// GetByBet returns a bet's timeline in append order
	GetByBet(ctx context.Context, betID int64) ([]*models.TimelineEntry, error)
}

// NotificationRepository defines the interface for notification persistence
type NotificationRepository interface {
	// Create persists a new notification
	Create(ctx context.Context, notification *models.Notification) error

	// GetByUser returns a user's notifications, newest first
	GetByUser(ctx context.Context, userID int64, limit int) ([]*models.Notification, error)

	// MarkRead flags a notification as read
	MarkRead(ctx context.Context, notificationID int64) error
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// CreateBetParams carries the inputs to bet creation. Either ParticipantIDs
// or OpponentUsername names the counterparties; a handle is resolved through
// the directory.
type CreateBetParams struct {
	CreatorID              int64
	Description            string
	Type                   models.BetType
	StakeMoney             int64
	StakeText              string
	ParticipantIDs         []int64
	OpponentUsername       string
	IndividualParticipants []int64
	GroupID                *int64
	Deadline               *time.Time
}

// BetService drives bet creation and the confirmation protocol
type BetService interface {
	// CreateBet proposes a new bet with the creator pre-accepted
	CreateBet(ctx context.Context, params CreateBetParams) (*models.Bet, error)

	// Confirm records a participant's acceptance; activates the bet once
	// all participants have accepted. Confirming twice is a no-op.
	Confirm(ctx context.Context, betID, participantID int64) (*models.Bet, error)

	// Decline records a participant's refusal and cancels the bet
	Decline(ctx context.Context, betID, participantID int64) (*models.Bet, error)

	// JoinBet adds a new accepted participant to an open group bet
	JoinBet(ctx context.Context, betID, participantID int64) (*models.Bet, error)

	// DeleteBet destroys a non-terminal bet at a participant's request
	DeleteBet(ctx context.Context, betID, actingParticipantID int64) error

	// GetBetByID retrieves a bet by ID
	GetBetByID(ctx context.Context, betID int64) (*models.Bet, error)

	// GetTimeline returns a bet's audit log in append order
	GetTimeline(ctx context.Context, betID int64) ([]*models.TimelineEntry, error)

	// GetBetsByParticipant returns a user's bets in any status, newest first
	GetBetsByParticipant(ctx context.Context, participantID int64, limit int) ([]*models.Bet, error)

	// GetActiveBetsByParticipant returns live bets for a user
	GetActiveBetsByParticipant(ctx context.Context, participantID int64) ([]*models.Bet, error)

	// GetResolvedBetsByParticipant returns settled bets for a user
	GetResolvedBetsByParticipant(ctx context.Context, participantID int64, limit int) ([]*models.Bet, error)

	// GetBetsByStatus returns all bets with the given status
	GetBetsByStatus(ctx context.Context, status models.BetStatus) ([]*models.Bet, error)

	// GetStats returns aggregate statistics for a participant
	GetStats(ctx context.Context, participantID int64) (*models.BetStats, error)
}

// DoubleService drives the stake-doubling protocol
type DoubleService interface {
	// ProposeDouble opens a doubling proposal on an active bet
	ProposeDouble(ctx context.Context, betID, proposerID, factor int64) (*models.Bet, error)

	// ApproveDouble records approval; unanimous approval multiplies the
	// stake and returns the bet to active
	ApproveDouble(ctx context.Context, betID, participantID int64) (*models.Bet, error)

	// DeclineDouble rejects the proposal and returns the bet to active
	// with the stake unchanged
	DeclineDouble(ctx context.Context, betID, participantID int64) (*models.Bet, error)
}

// VotingService drives quorum voting for group winner-takes-all bets
type VotingService interface {
	// StartVoting opens voting among the eligible voters
	StartVoting(ctx context.Context, betID int64, eligibleVoterIDs []int64) (*models.Bet, error)

	// CastVote records or replaces a voter's vote and resolves the bet on
	// the first tally where a candidate reaches the quorum threshold
	CastVote(ctx context.Context, betID, voterID, candidateID int64) (*models.Bet, error)
}

// ResolutionService drives direct resolution and deadline expiry
type ResolutionService interface {
	// Resolve settles a bet by selecting a winner directly
	Resolve(ctx context.Context, betID, winnerID, actingParticipantID int64) (*models.Bet, error)

	// CheckExpiry forces an active bet past its deadline to expired.
	// Re-checking an already expired bet is a no-op.
	CheckExpiry(ctx context.Context, betID int64, now time.Time) (*models.Bet, error)

	// TransitionExpiredBets finds and expires all active bets whose
	// deadline has elapsed
	TransitionExpiredBets(ctx context.Context) error
}

// NotificationService exposes the notification inbox
type NotificationService interface {
	// GetUserNotifications returns a user's notifications, newest first
	GetUserNotifications(ctx context.Context, userID int64, limit int) ([]*models.Notification, error)

	// MarkRead flags a notification as read
	MarkRead(ctx context.Context, notificationID int64) error
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction
	Rollback() error

	// Repository getters
	UserRepository() UserRepository
	BetRepository() BetRepository
	TimelineRepository() TimelineRepository
	NotificationRepository() NotificationRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	// Create creates a new UnitOfWork instance
	Create() UnitOfWork
}
