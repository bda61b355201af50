package service

import (
	"context"
	"fmt"
	"time"

	"betmates/events"
	"betmates/models"

	log "github.com/sirupsen/logrus"
)

type resolutionService struct {
	uowFactory UnitOfWorkFactory
}

// NewResolutionService creates a new resolution service
func NewResolutionService(uowFactory UnitOfWorkFactory) ResolutionService {
	return &resolutionService{
		uowFactory: uowFactory,
	}
}

// Resolve settles a bet by selecting a winner directly. Both active and
// expired bets can be resolved this way; expiry blocks further play but
// never blocks settlement.
func (s *resolutionService) Resolve(ctx context.Context, betID, winnerID, actingParticipantID int64) (*models.Bet, error) {
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
	if !bet.IsParticipant(actingParticipantID) {
		return nil, fmt.Errorf("%w: user %d is not a participant of bet %d", ErrInvalidActor, actingParticipantID, betID)
	}
	if bet.Status != models.BetStatusActive && bet.Status != models.BetStatusExpired {
		return nil, fmt.Errorf("%w: cannot resolve a %s bet", ErrInvalidTransition, bet.Status)
	}
	if !bet.IsParticipant(winnerID) {
		return nil, fmt.Errorf("%w: winner %d is not a participant", ErrValidation, winnerID)
	}

	now := time.Now()
	if bet.Voting != nil && bet.Voting.IsActive {
		bet.Voting.IsActive = false
		bet.Voting.EndedAt = &now
	}
	bet.WinnerID = &winnerID
	bet.ResolvedAt = &now
	if err := transition(bet, models.BetStatusResolved); err != nil {
		return nil, err
	}

	if err := appendEntry(ctx, uow, bet.ID, actingParticipantID, models.TimelineEventResolved, fmt.Sprintf("winner %d", winnerID)); err != nil {
		return nil, err
	}

	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.BetResolvedEvent{
		BetID:          bet.ID,
		WinnerID:       winnerID,
		ResolvedBy:     actingParticipantID,
		ParticipantIDs: bet.ParticipantIDs,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betId":    bet.ID,
		"winnerId": winnerID,
		"actorId":  actingParticipantID,
	}).Info("Bet resolved")

	return bet, nil
}

// CheckExpiry forces an active bet past its deadline into expired. The
// check is caller-driven and idempotent; a bet without a deadline or one
// not yet past it is returned unchanged.
func (s *resolutionService) CheckExpiry(ctx context.Context, betID int64, now time.Time) (*models.Bet, error) {
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

	if bet.Status != models.BetStatusActive || !bet.IsPastDeadline(now) {
		return bet, nil
	}

	if err := s.expire(ctx, uow, bet); err != nil {
		return nil, err
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return bet, nil
}

// TransitionExpiredBets finds all active bets whose deadline has elapsed
// and expires each one. Meant to be called from a periodic sweep.
func (s *resolutionService) TransitionExpiredBets(ctx context.Context) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bets, err := uow.BetRepository().GetExpiredActive(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to get expired bets: %w", err)
	}

	for _, bet := range bets {
		if err := s.expire(ctx, uow, bet); err != nil {
			return err
		}
	}

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if len(bets) > 0 {
		log.WithField("count", len(bets)).Info("Expired bets past deadline")
	}

	return nil
}

func (s *resolutionService) expire(ctx context.Context, uow UnitOfWork, bet *models.Bet) error {
	if err := transition(bet, models.BetStatusExpired); err != nil {
		return err
	}

	if err := appendEntry(ctx, uow, bet.ID, models.SystemActorID, models.TimelineEventExpired, "deadline reached"); err != nil {
		return err
	}

	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.BetExpiredEvent{
		BetID:          bet.ID,
		ParticipantIDs: bet.ParticipantIDs,
	})

	return nil
}
