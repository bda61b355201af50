package service

import (
	"context"
	"fmt"
	"time"

	"betmates/events"
	"betmates/models"

	log "github.com/sirupsen/logrus"
)

type votingService struct {
	uowFactory UnitOfWorkFactory
}

// NewVotingService creates a new quorum voting service
func NewVotingService(uowFactory UnitOfWorkFactory) VotingService {
	return &votingService{
		uowFactory: uowFactory,
	}
}

// StartVoting opens quorum voting on an active group winner-takes-all bet.
// The majority threshold is ceil(n/2) over the eligible voters.
func (s *votingService) StartVoting(ctx context.Context, betID int64, eligibleVoterIDs []int64) (*models.Bet, error) {
	if len(eligibleVoterIDs) == 0 {
		return nil, fmt.Errorf("%w: no eligible voters", ErrValidation)
	}
	seen := make(map[int64]bool, len(eligibleVoterIDs))
	for _, id := range eligibleVoterIDs {
		if seen[id] {
			return nil, fmt.Errorf("%w: duplicate eligible voter %d", ErrValidation, id)
		}
		seen[id] = true
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
	if !bet.UsesQuorumResolution() {
		return nil, fmt.Errorf("%w: %s bets do not resolve by vote", ErrValidation, bet.Type)
	}
	if bet.Voting != nil && bet.Voting.IsActive {
		return nil, fmt.Errorf("%w: voting is already active", ErrInvalidTransition)
	}
	if bet.Status != models.BetStatusActive {
		return nil, fmt.Errorf("%w: cannot start voting on a %s bet", ErrInvalidTransition, bet.Status)
	}

	requiredVotes := models.RequiredVotesFor(len(eligibleVoterIDs))
	bet.Voting = &models.Voting{
		IsActive:         true,
		Votes:            make(map[int64]int64),
		RequiredVotes:    requiredVotes,
		EligibleVoterIDs: append([]int64(nil), eligibleVoterIDs...),
		StartedAt:        time.Now(),
	}

	if err := appendEntry(ctx, uow, bet.ID, models.SystemActorID, models.TimelineEventVotingStarted, "voting opened"); err != nil {
		return nil, err
	}

	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.VotingStartedEvent{
		BetID:            bet.ID,
		EligibleVoterIDs: bet.Voting.EligibleVoterIDs,
		RequiredVotes:    requiredVotes,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"betId":         bet.ID,
		"voters":        len(eligibleVoterIDs),
		"requiredVotes": requiredVotes,
	}).Info("Voting started")

	return bet, nil
}

// CastVote records or replaces a voter's vote. A voter may change their
// mind until quorum is reached but never holds more than one vote. The bet
// resolves on the first tally where a candidate's count reaches the
// threshold.
func (s *votingService) CastVote(ctx context.Context, betID, voterID, candidateID int64) (*models.Bet, error) {
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
	if bet.Voting == nil || !bet.Voting.IsActive {
		return nil, fmt.Errorf("%w: bet %d is not open for voting", ErrInvalidTransition, betID)
	}
	if !bet.Voting.IsEligibleVoter(voterID) {
		return nil, fmt.Errorf("%w: user %d is not an eligible voter", ErrInvalidActor, voterID)
	}
	if !bet.IsParticipant(candidateID) {
		return nil, fmt.Errorf("%w: candidate %d is not a participant", ErrValidation, candidateID)
	}

	// Re-casting the identical vote changes nothing and records nothing
	if prior, ok := bet.Voting.Votes[voterID]; ok && prior == candidateID {
		return bet, nil
	}

	bet.Voting.Votes[voterID] = candidateID
	if err := appendEntry(ctx, uow, bet.ID, voterID, models.TimelineEventVoteCast, fmt.Sprintf("voted for %d", candidateID)); err != nil {
		return nil, err
	}

	winnerID, hasWinner := bet.Voting.QuorumWinner()
	if hasWinner {
		now := time.Now()
		bet.Voting.IsActive = false
		bet.Voting.EndedAt = &now
		bet.WinnerID = &winnerID
		bet.ResolvedAt = &now
		if err := transition(bet, models.BetStatusResolved); err != nil {
			return nil, err
		}
		if err := appendEntry(ctx, uow, bet.ID, models.SystemActorID, models.TimelineEventResolved, fmt.Sprintf("%d won by majority vote", winnerID)); err != nil {
			return nil, err
		}
	}

	if err := uow.BetRepository().Update(ctx, bet); err != nil {
		return nil, fmt.Errorf("failed to update bet: %w", err)
	}

	uow.EventBus().Publish(events.VoteCastEvent{
		BetID:       bet.ID,
		VoterID:     voterID,
		CandidateID: candidateID,
	})
	if hasWinner {
		uow.EventBus().Publish(events.BetResolvedEvent{
			BetID:          bet.ID,
			WinnerID:       winnerID,
			ResolvedBy:     models.SystemActorID,
			ParticipantIDs: bet.ParticipantIDs,
			ByVote:         true,
		})
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return bet, nil
}
