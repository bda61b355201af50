package service

import (
	"context"
	"fmt"
	"time"

	"betmates/config"
	"betmates/events"
	"betmates/models"

	log "github.com/sirupsen/logrus"
)

type betService struct {
	uowFactory UnitOfWorkFactory
	cfg        *config.Config
}

// NewBetService creates a new bet service
func NewBetService(uowFactory UnitOfWorkFactory, cfg *config.Config) BetService {
	return &betService{
		uowFactory: uowFactory,
		cfg:        cfg,
	}
}

// transition moves a bet to the target status, failing when the state
// machine's table does not permit it. This is the single place a status
// value is ever assigned.
func transition(bet *models.Bet, target models.BetStatus) error {
	if !bet.Status.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, bet.Status, target)
	}
	bet.Status = target
	return nil
}

// appendEntry adds one record to a bet's audit log inside the current
// unit of work
func appendEntry(ctx context.Context, uow UnitOfWork, betID, by int64, eventType models.TimelineEventType, notes string) error {
	entry := &models.TimelineEntry{
		BetID: betID,
		At:    time.Now(),
		By:    by,
		Type:  eventType,
	}
	if notes != "" {
		entry.Notes = &notes
	}
	if err := uow.TimelineRepository().Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append timeline entry: %w", err)
	}
	return nil
}

// validateStake checks that exactly one stake field is populated and that
// it is the one the bet type calls for
func validateStake(betType models.BetType, stakeMoney int64, stakeText string) error {
	switch betType {
	case models.BetTypeMoney, models.BetTypeGroupWinnerTakeAll:
		if stakeMoney <= 0 {
			return fmt.Errorf("%w: %s bets require a positive money stake", ErrValidation, betType)
		}
		if stakeText != "" {
			return fmt.Errorf("%w: %s bets cannot carry a text stake", ErrValidation, betType)
		}
	case models.BetTypeChallenge:
		if stakeText == "" {
			return fmt.Errorf("%w: challenge bets require a text stake", ErrValidation)
		}
		if stakeMoney != 0 {
			return fmt.Errorf("%w: challenge bets cannot carry a money stake", ErrValidation)
		}
	case models.BetTypeIndividualGroup:
		// Either stake works for individual group bets, but only one
		if (stakeMoney > 0) == (stakeText != "") {
			return fmt.Errorf("%w: individual group bets require exactly one stake", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown bet type %q", ErrValidation, betType)
	}
	return nil
}

// CreateBet proposes a new bet. The creator's confirmation is pre-accepted;
// everyone else starts pending unless the auto-accept policy is enabled.
func (s *betService) CreateBet(ctx context.Context, params CreateBetParams) (*models.Bet, error) {
	if params.Description == "" {
		return nil, fmt.Errorf("%w: description cannot be empty", ErrValidation)
	}
	if err := validateStake(params.Type, params.StakeMoney, params.StakeText); err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	creator, err := uow.UserRepository().GetByID(ctx, params.CreatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get creator: %w", err)
	}
	if creator == nil {
		return nil, fmt.Errorf("%w: creator %d", ErrNotFound, params.CreatorID)
	}

	participantIDs, err := s.resolveParticipants(ctx, uow, params)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	bet := &models.Bet{
		CreatorID:      params.CreatorID,
		ParticipantIDs: participantIDs,
		Type:           params.Type,
		StakeMoney:     params.StakeMoney,
		StakeText:      params.StakeText,
		Description:    params.Description,
		GroupID:        params.GroupID,
		Deadline:       params.Deadline,
		Confirmations:  make(map[int64]models.ConfirmationStatus),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if params.Type == models.BetTypeIndividualGroup {
		bet.IndividualParticipants = append([]int64(nil), params.IndividualParticipants...)
	}

	autoAccepted := s.initialConfirmations(bet)
	if bet.AllConfirmed() && len(bet.ParticipantIDs) >= 2 {
		bet.Status = models.BetStatusActive
	} else {
		bet.Status = models.BetStatusPending
	}

	if err := uow.BetRepository().Create(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to create bet: %w", err)
	}

	if err := appendEntry(ctx, uow, bet.ID, bet.CreatorID, models.TimelineEventCreated, ""); err != nil {
		return nil, err
	}
	for _, id := range autoAccepted {
		if err := appendEntry(ctx, uow, bet.ID, id, models.TimelineEventConfirmed, "auto-accepted by policy"); err != nil {
			return nil, err
		}
	}

	uow.EventBus().Publish(events.BetCreatedEvent{
		BetID:          bet.ID,
		CreatorID:      bet.CreatorID,
		ParticipantIDs: bet.ParticipantIDs,
		BetType:        bet.Type,
		Status:         bet.Status,
	})
	if bet.Status == models.BetStatusActive {
		uow.EventBus().Publish(events.BetActivatedEvent{
			BetID:          bet.ID,
			ParticipantIDs: bet.ParticipantIDs,
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betId":   bet.ID,
		"type":    bet.Type,
		"status":  bet.Status,
		"creator": bet.CreatorID,
	}).Info("Bet created")

	return bet, nil
}

// resolveParticipants turns the creation params into the ordered unique
// participant set, resolving an opponent handle through the directory when
// no explicit IDs were given
func (s *betService) resolveParticipants(ctx context.Context, uow UnitOfWork, params CreateBetParams) ([]int64, error) {
	if params.Type == models.BetTypeIndividualGroup {
		if len(params.IndividualParticipants) != 2 || params.IndividualParticipants[0] == params.IndividualParticipants[1] {
			return nil, fmt.Errorf("%w: individual group bets require exactly two distinct participants", ErrValidation)
		}
		return append([]int64(nil), params.IndividualParticipants...), nil
	}

	participantIDs := append([]int64(nil), params.ParticipantIDs...)
	if len(participantIDs) == 0 && params.OpponentUsername != "" {
		opponent, err := uow.UserRepository().GetByUsername(ctx, params.OpponentUsername)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve opponent handle: %w", err)
		}
		if opponent == nil {
			return nil, fmt.Errorf("%w: no user with handle %q", ErrNotFound, params.OpponentUsername)
		}
		participantIDs = []int64{params.CreatorID, opponent.ID}
	}

	if len(participantIDs) == 0 {
		// Group bets may start with only the creator and grow
		if params.Type == models.BetTypeGroupWinnerTakeAll {
			participantIDs = []int64{params.CreatorID}
		} else {
			return nil, fmt.Errorf("%w: no participants named", ErrValidation)
		}
	}

	seen := make(map[int64]bool)
	hasCreator := false
	for _, id := range participantIDs {
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate participant %d", ErrValidation, id)
		}
		seen[id] = true
		if id == params.CreatorID {
			hasCreator = true
		}
	}
	if !hasCreator {
		return nil, fmt.Errorf("%w: creator must be a participant", ErrValidation)
	}
	if params.Type != models.BetTypeGroupWinnerTakeAll && len(participantIDs) < 2 {
		return nil, fmt.Errorf("%w: cannot create a bet with yourself only", ErrValidation)
	}

	return participantIDs, nil
}

// initialConfirmations fills the confirmation map per the configured policy
// and returns the IDs auto-accepted beyond the creator
func (s *betService) initialConfirmations(bet *models.Bet) []int64 {
	var autoAccepted []int64
	allAccepted := s.cfg.AutoAcceptConfirmations || bet.Type == models.BetTypeIndividualGroup

	for _, id := range bet.ParticipantIDs {
		switch {
		case id == bet.CreatorID:
			bet.Confirmations[id] = models.ConfirmationAccepted
		case allAccepted:
			bet.Confirmations[id] = models.ConfirmationAccepted
			autoAccepted = append(autoAccepted, id)
		default:
			bet.Confirmations[id] = models.ConfirmationPending
		}
	}
	return autoAccepted
}

// Confirm records a participant's acceptance of a proposed bet
func (s *betService) Confirm(ctx context.Context, betID, participantID int64) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByIDForUpdate(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, fmt.Errorf("%w: bet %d", ErrNotFound, betID)
	}
	if !bet.IsParticipant(participantID) {
		return nil, fmt.Errorf("%w: user %d is not a participant of bet %d", ErrInvalidActor, participantID, betID)
	}

	// Confirming twice is a no-op: same state, no new timeline entry
	if bet.Confirmations[participantID] == models.ConfirmationAccepted {
		return bet, nil
	}
	if bet.Status != models.BetStatusPending {
		return nil, fmt.Errorf("%w: cannot confirm a %s bet", ErrInvalidTransition, bet.Status)
	}
	if bet.Confirmations[participantID] == models.ConfirmationDeclined {
		return nil, fmt.Errorf("%w: declines are not reversible", ErrInvalidTransition)
	}

	bet.Confirmations[participantID] = models.ConfirmationAccepted
	if err := appendEntry(ctx, uow, bet.ID, participantID, models.TimelineEventConfirmed, ""); err != nil {
		return nil, err
	}

	allConfirmed := bet.AllConfirmed() && len(bet.ParticipantIDs) >= 2
	if allConfirmed {
		if err := transition(bet, models.BetStatusActive); err != nil {
			return nil, err
		}
	}

	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.BetConfirmedEvent{
		BetID:         bet.ID,
		ParticipantID: participantID,
		AllConfirmed:  allConfirmed,
	})
	if allConfirmed {
		uow.EventBus().Publish(events.BetActivatedEvent{
			BetID:          bet.ID,
			ParticipantIDs: bet.ParticipantIDs,
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return bet, nil
}

// Decline records a participant's refusal; a single decline cancels the bet
func (s *betService) Decline(ctx context.Context, betID, participantID int64) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByIDForUpdate(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, fmt.Errorf("%w: bet %d", ErrNotFound, betID)
	}
	if !bet.IsParticipant(participantID) {
		return nil, fmt.Errorf("%w: user %d is not a participant of bet %d", ErrInvalidActor, participantID, betID)
	}
	if bet.Status != models.BetStatusPending {
		return nil, fmt.Errorf("%w: cannot decline a %s bet", ErrInvalidTransition, bet.Status)
	}

	bet.Confirmations[participantID] = models.ConfirmationDeclined
	if err := transition(bet, models.BetStatusCancelled); err != nil {
		return nil, err
	}
	if err := appendEntry(ctx, uow, bet.ID, participantID, models.TimelineEventDeclined, ""); err != nil {
		return nil, err
	}

	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.BetDeclinedEvent{
		BetID:         bet.ID,
		ParticipantID: participantID,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return bet, nil
}

// JoinBet adds a new accepted participant to an open group bet
func (s *betService) JoinBet(ctx context.Context, betID, participantID int64) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByIDForUpdate(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, fmt.Errorf("%w: bet %d", ErrNotFound, betID)
	}
	if bet.Type != models.BetTypeGroupWinnerTakeAll {
		return nil, fmt.Errorf("%w: only group winner-takes-all bets accept new participants", ErrValidation)
	}
	if bet.IsParticipant(participantID) {
		return bet, nil
	}
	if bet.Status != models.BetStatusPending && bet.Status != models.BetStatusActive {
		return nil, fmt.Errorf("%w: cannot join a %s bet", ErrInvalidTransition, bet.Status)
	}
	if bet.Voting != nil {
		return nil, fmt.Errorf("%w: voting has already started", ErrProtocolBusy)
	}

	user, err := uow.UserRepository().GetByID(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, participantID)
	}

	bet.AddParticipant(participantID, models.ConfirmationAccepted)
	if err := appendEntry(ctx, uow, bet.ID, participantID, models.TimelineEventConfirmed, "joined group bet"); err != nil {
		return nil, err
	}

	activated := false
	if bet.Status == models.BetStatusPending && len(bet.ParticipantIDs) >= 2 && bet.AllConfirmed() {
		if err := transition(bet, models.BetStatusActive); err != nil {
			return nil, err
		}
		activated = true
	}

	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.BetConfirmedEvent{
		BetID:         bet.ID,
		ParticipantID: participantID,
		AllConfirmed:  activated,
	})
	if activated {
		uow.EventBus().Publish(events.BetActivatedEvent{
			BetID:          bet.ID,
			ParticipantIDs: bet.ParticipantIDs,
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return bet, nil
}

// DeleteBet destroys a non-terminal bet at a participant's request.
// Deletion removes the record entirely; it is not a status transition.
func (s *betService) DeleteBet(ctx context.Context, betID, actingParticipantID int64) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByIDForUpdate(ctx, betID)
	if err != nil {
		return fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return fmt.Errorf("%w: bet %d", ErrNotFound, betID)
	}
	if !bet.IsParticipant(actingParticipantID) {
		return fmt.Errorf("%w: user %d is not a participant of bet %d", ErrInvalidActor, actingParticipantID, betID)
	}
	if bet.Status.IsTerminal() {
		return fmt.Errorf("%w: cannot delete a %s bet", ErrInvalidTransition, bet.Status)
	}

	if err := uow.BetRepository().Delete(ctx, betID); err != nil {
		return fmt.Errorf("failed to delete bet: %w", err)
	}

	uow.EventBus().Publish(events.BetDeletedEvent{
		BetID:     betID,
		DeletedBy: actingParticipantID,
	})

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betId":     betID,
		"deletedBy": actingParticipantID,
	}).Info("Bet deleted")

	return nil
}

// GetBetByID retrieves a bet by ID
func (s *betService) GetBetByID(ctx context.Context, betID int64) (*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, fmt.Errorf("%w: bet %d", ErrNotFound, betID)
	}

	return bet, nil
}

// GetTimeline returns a bet's audit log in append order
func (s *betService) GetTimeline(ctx context.Context, betID int64) ([]*models.TimelineEntry, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet: %w", err)
	}
	if bet == nil {
		return nil, fmt.Errorf("%w: bet %d", ErrNotFound, betID)
	}

	entries, err := uow.TimelineRepository().GetByBet(ctx, betID)
	if err != nil {
		return nil, fmt.Errorf("failed to get timeline: %w", err)
	}

	return entries, nil
}

// GetBetsByParticipant returns a user's bets in any status, newest first
func (s *betService) GetBetsByParticipant(ctx context.Context, participantID int64, limit int) ([]*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().GetByParticipant(ctx, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets: %w", err)
	}

	return bets, nil
}

// GetActiveBetsByParticipant returns pending, active and double_proposed
// bets for a user
func (s *betService) GetActiveBetsByParticipant(ctx context.Context, participantID int64) ([]*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().GetActiveByParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active bets: %w", err)
	}

	return bets, nil
}

// GetResolvedBetsByParticipant returns settled bets for a user
func (s *betService) GetResolvedBetsByParticipant(ctx context.Context, participantID int64, limit int) ([]*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().GetResolvedByParticipant(ctx, participantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get resolved bets: %w", err)
	}

	return bets, nil
}

// GetBetsByStatus returns all bets with the given status
func (s *betService) GetBetsByStatus(ctx context.Context, status models.BetStatus) ([]*models.Bet, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().GetByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get bets by status: %w", err)
	}

	return bets, nil
}

// GetStats returns aggregate statistics for a participant
func (s *betService) GetStats(ctx context.Context, participantID int64) (*models.BetStats, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	stats, err := uow.BetRepository().GetStats(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	return stats, nil
}
