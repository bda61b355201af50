package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"betmates/events"
	"betmates/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestResolutionService_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("participant resolves active bet", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		bet := activeBet(10, 1, []int64{1, 2})

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Commit").Return(nil)
		m.uow.On("Rollback").Return(nil)

		m.betRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(bet, nil)
		m.betRepo.On("Update", ctx, bet).Return(nil)
		m.timelineRepo.On("Append", ctx, mock.MatchedBy(func(e *models.TimelineEntry) bool {
			return e.By == 1 && e.Type == models.TimelineEventResolved
		})).Return(nil)

		result, err := service.Resolve(ctx, 10, 2, 1)

		require.NoError(t, err)
		assert.Equal(t, models.BetStatusResolved, result.Status)
		require.NotNil(t, result.WinnerID)
		assert.Equal(t, int64(2), *result.WinnerID)
		require.NotNil(t, result.ResolvedAt)

		require.Len(t, m.publisher.Events, 1)
		resolved := m.publisher.Events[0].(events.BetResolvedEvent)
		assert.Equal(t, int64(2), resolved.WinnerID)
		assert.Equal(t, int64(1), resolved.ResolvedBy)
		assert.False(t, resolved.ByVote)
	})

	t.Run("expired bet can still be resolved", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		bet := activeBet(10, 1, []int64{1, 2})
		bet.Status = models.BetStatusExpired

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Commit").Return(nil)
		m.uow.On("Rollback").Return(nil)

		m.betRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(bet, nil)
		m.betRepo.On("Update", ctx, bet).Return(nil)
		m.timelineRepo.On("Append", ctx, mock.AnythingOfType("*models.TimelineEntry")).Return(nil)

		result, err := service.Resolve(ctx, 10, 1, 2)

		require.NoError(t, err)
		assert.Equal(t, models.BetStatusResolved, result.Status)
		assert.Equal(t, int64(1), *result.WinnerID)
	})

	t.Run("resolution closes open voting", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		bet := votingBet(10, 1, []int64{1, 2, 3})

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Commit").Return(nil)
		m.uow.On("Rollback").Return(nil)

		m.betRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(bet, nil)
		m.betRepo.On("Update", ctx, bet).Return(nil)
		m.timelineRepo.On("Append", ctx, mock.AnythingOfType("*models.TimelineEntry")).Return(nil)

		result, err := service.Resolve(ctx, 10, 3, 1)

		require.NoError(t, err)
		assert.Equal(t, models.BetStatusResolved, result.Status)
		assert.False(t, result.Voting.IsActive)
		require.NotNil(t, result.Voting.EndedAt)
	})

	t.Run("winner must be a participant", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		bet := activeBet(10, 1, []int64{1, 2})

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Rollback").Return(nil)
		m.betRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(bet, nil)

		_, err := service.Resolve(ctx, 10, 99, 1)
		assert.True(t, errors.Is(err, ErrValidation))
		m.betRepo.AssertNotCalled(t, "Update")
	})

	t.Run("outsider cannot resolve", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		bet := activeBet(10, 1, []int64{1, 2})

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Rollback").Return(nil)
		m.betRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(bet, nil)

		_, err := service.Resolve(ctx, 10, 1, 99)
		assert.True(t, errors.Is(err, ErrInvalidActor))
	})

	t.Run("pending bet refused", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		bet := pendingBet(10, 1, []int64{1, 2})

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Rollback").Return(nil)
		m.betRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(bet, nil)

		_, err := service.Resolve(ctx, 10, 1, 1)
		assert.True(t, errors.Is(err, ErrInvalidTransition))
	})
}

func TestResolutionService_CheckExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	t.Run("past deadline expires the bet", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		deadline := now.Add(-time.Hour)
		bet := activeBet(10, 1, []int64{1, 2})
		bet.Deadline = &deadline

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Commit").Return(nil)
		m.uow.On("Rollback").Return(nil)

		m.betRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(bet, nil)
		m.betRepo.On("Update", ctx, bet).Return(nil)
		m.timelineRepo.On("Append", ctx, mock.MatchedBy(func(e *models.TimelineEntry) bool {
			return e.By == models.SystemActorID &&
				e.Type == models.TimelineEventExpired &&
				e.Notes != nil && *e.Notes == "deadline reached"
		})).Return(nil)

		result, err := service.CheckExpiry(ctx, 10, now)

		require.NoError(t, err)
		assert.Equal(t, models.BetStatusExpired, result.Status)
		assert.Nil(t, result.WinnerID)

		require.Len(t, m.publisher.Events, 1)
		expired := m.publisher.Events[0].(events.BetExpiredEvent)
		assert.Equal(t, int64(10), expired.BetID)
	})

	t.Run("future deadline is a no-op", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		deadline := now.Add(time.Hour)
		bet := activeBet(10, 1, []int64{1, 2})
		bet.Deadline = &deadline

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Commit").Return(nil)
		m.uow.On("Rollback").Return(nil)
		m.betRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(bet, nil)

		result, err := service.CheckExpiry(ctx, 10, now)

		require.NoError(t, err)
		assert.Equal(t, models.BetStatusActive, result.Status)
		m.betRepo.AssertNotCalled(t, "Update")
		m.timelineRepo.AssertNotCalled(t, "Append")
		assert.Empty(t, m.publisher.Events)
	})

	t.Run("already expired is a no-op", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		deadline := now.Add(-time.Hour)
		bet := activeBet(10, 1, []int64{1, 2})
		bet.Deadline = &deadline
		bet.Status = models.BetStatusExpired

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Commit").Return(nil)
		m.uow.On("Rollback").Return(nil)
		m.betRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(bet, nil)

		result, err := service.CheckExpiry(ctx, 10, now)

		require.NoError(t, err)
		assert.Equal(t, models.BetStatusExpired, result.Status)
		m.betRepo.AssertNotCalled(t, "Update")
	})

	t.Run("no deadline is a no-op", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		bet := activeBet(10, 1, []int64{1, 2})

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Commit").Return(nil)
		m.uow.On("Rollback").Return(nil)
		m.betRepo.On("GetByIDForUpdate", ctx, int64(10)).Return(bet, nil)

		result, err := service.CheckExpiry(ctx, 10, now)

		require.NoError(t, err)
		assert.Equal(t, models.BetStatusActive, result.Status)
		m.betRepo.AssertNotCalled(t, "Update")
	})
}

func TestResolutionService_TransitionExpiredBets(t *testing.T) {
	ctx := context.Background()

	t.Run("expires every overdue bet", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		deadline := time.Now().Add(-time.Hour)
		first := activeBet(10, 1, []int64{1, 2})
		first.Deadline = &deadline
		second := activeBet(11, 3, []int64{3, 4})
		second.Deadline = &deadline

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Commit").Return(nil)
		m.uow.On("Rollback").Return(nil)

		m.betRepo.On("GetExpiredActive", ctx, mock.AnythingOfType("time.Time")).Return([]*models.Bet{first, second}, nil)
		m.betRepo.On("Update", ctx, mock.AnythingOfType("*models.Bet")).Return(nil)
		m.timelineRepo.On("Append", ctx, mock.MatchedBy(func(e *models.TimelineEntry) bool {
			return e.Type == models.TimelineEventExpired
		})).Return(nil)

		err := service.TransitionExpiredBets(ctx)

		require.NoError(t, err)
		assert.Equal(t, models.BetStatusExpired, first.Status)
		assert.Equal(t, models.BetStatusExpired, second.Status)
		m.betRepo.AssertNumberOfCalls(t, "Update", 2)
		assert.Len(t, m.publisher.Events, 2)
	})

	t.Run("no overdue bets", func(t *testing.T) {
		m := setupBetServiceMocks()
		service := NewResolutionService(m.factory)

		m.uow.On("Begin", ctx).Return(nil)
		m.uow.On("Commit").Return(nil)
		m.uow.On("Rollback").Return(nil)
		m.betRepo.On("GetExpiredActive", ctx, mock.AnythingOfType("time.Time")).Return([]*models.Bet{}, nil)

		err := service.TransitionExpiredBets(ctx)

		require.NoError(t, err)
		m.betRepo.AssertNotCalled(t, "Update")
	})
}
