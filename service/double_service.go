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

type doubleService struct {
	uowFactory UnitOfWorkFactory
	cfg        *config.Config
}

// NewDoubleService creates a new stake-doubling service
func NewDoubleService(uowFactory UnitOfWorkFactory, cfg *config.Config) DoubleService {
	return &doubleService{
		uowFactory: uowFactory,
		cfg:        cfg,
	}
}

// ProposeDouble opens a stake-doubling proposal on an active bet. The
// proposer is pre-approved; every other participant starts pending.
func (s *doubleService) ProposeDouble(ctx context.Context, betID, proposerID, factor int64) (*models.Bet, error) {
	if factor < 2 {
		return nil, fmt.Errorf("%w: doubling factor must be at least 2", ErrValidation)
	}
	if factor > s.cfg.MaxDoubleFactor {
		return nil, fmt.Errorf("%w: doubling factor %d exceeds maximum %d", ErrValidation, factor, s.cfg.MaxDoubleFactor)
	}

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
	if !bet.IsParticipant(proposerID) {
		return nil, fmt.Errorf("%w: user %d is not a participant of bet %d", ErrInvalidActor, proposerID, betID)
	}
	if bet.DoubleProposal != nil {
		return nil, fmt.Errorf("%w: a doubling proposal is already outstanding", ErrProtocolBusy)
	}
	if bet.Status != models.BetStatusActive {
		return nil, fmt.Errorf("%w: cannot propose doubling on a %s bet", ErrInvalidTransition, bet.Status)
	}
	if !bet.UsesMoneyStake() {
		return nil, fmt.Errorf("%w: only money stakes can be doubled", ErrValidation)
	}

	approvals := make(map[int64]models.ConfirmationStatus, len(bet.ParticipantIDs))
	for _, id := range bet.ParticipantIDs {
		if id == proposerID {
			approvals[id] = models.ConfirmationAccepted
		} else {
			approvals[id] = models.ConfirmationPending
		}
	}
	bet.DoubleProposal = &models.DoubleProposal{
		ProposedBy: proposerID,
		Factor:     factor,
		ProposedAt: time.Now(),
		Approvals:  approvals,
	}
	if err := transition(bet, models.BetStatusDoubleProposed); err != nil {
		return nil, err
	}

	notes := fmt.Sprintf("factor %dx", factor)
	if err := appendEntry(ctx, uow, bet.ID, proposerID, models.TimelineEventDoubleProposed, notes); err != nil {
		return nil, err
	}

	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.DoubleProposedEvent{
		BetID:      bet.ID,
		ProposedBy: proposerID,
		Factor:     factor,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betId":    bet.ID,
		"proposer": proposerID,
		"factor":   factor,
	}).Info("Stake doubling proposed")

	return bet, nil
}

// ApproveDouble records a participant's approval. Unanimous approval
// multiplies the stake, clears the proposal and returns the bet to active.
func (s *doubleService) ApproveDouble(ctx context.Context, betID, participantID int64) (*models.Bet, error) {
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
	if bet.Status != models.BetStatusDoubleProposed || bet.DoubleProposal == nil {
		return nil, fmt.Errorf("%w: no doubling proposal outstanding", ErrInvalidTransition)
	}

	// Approving twice is a no-op
	if bet.DoubleProposal.Approvals[participantID] == models.ConfirmationAccepted {
		return bet, nil
	}

	bet.DoubleProposal.Approvals[participantID] = models.ConfirmationAccepted
	factor := bet.DoubleProposal.Factor

	unanimous := bet.DoubleProposal.AllApproved()
	notes := ""
	if unanimous {
		bet.StakeMoney *= factor
		bet.DoubleProposal = nil
		if err := transition(bet, models.BetStatusActive); err != nil {
			return nil, err
		}
		notes = fmt.Sprintf("stake multiplied by %d", factor)
	}

	if err := appendEntry(ctx, uow, bet.ID, participantID, models.TimelineEventDoubleAccepted, notes); err != nil {
		return nil, err
	}

	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	if unanimous {
		uow.EventBus().Publish(events.DoubleApprovedEvent{
			BetID:      bet.ID,
			Factor:     factor,
			StakeMoney: bet.StakeMoney,
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return bet, nil
}

// DeclineDouble rejects the outstanding proposal. The proposal is dropped
// and the bet returns to active with its stake unchanged; the bet itself
// is never cancelled by a doubling decline.
func (s *doubleService) DeclineDouble(ctx context.Context, betID, participantID int64) (*models.Bet, error) {
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
	if bet.Status != models.BetStatusDoubleProposed || bet.DoubleProposal == nil {
		return nil, fmt.Errorf("%w: no doubling proposal outstanding", ErrInvalidTransition)
	}

	bet.DoubleProposal = nil
	if err := transition(bet, models.BetStatusActive); err != nil {
		return nil, err
	}

	if err := appendEntry(ctx, uow, bet.ID, participantID, models.TimelineEventDoubleDeclined, ""); err != nil {
		return nil, err
	}

	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.DoubleDeclinedEvent{
		BetID:      bet.ID,
		DeclinedBy: participantID,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return bet, nil
}
