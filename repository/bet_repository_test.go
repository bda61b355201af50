package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"betmates/models"
	"betmates/repository/testutil"
	"betmates/service"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createUsers(t *testing.T, userRepo *UserRepository, count int) []int64 {
	t.Helper()
	ctx := context.Background()

	ids := make([]int64, 0, count)
	for i := 0; i < count; i++ {
		username := fmt.Sprintf("%s-user%d", t.Name(), i)
		user, err := userRepo.Create(ctx, username, fmt.Sprintf("User %d", i))
		require.NoError(t, err)
		ids = append(ids, user.ID)
	}
	return ids
}

func TestBetRepository_CreateAndGet(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	userRepo := NewUserRepository(testDB.DB)
	repo := NewBetRepository(testDB.DB)
	ctx := context.Background()

	users := createUsers(t, userRepo, 2)

	t.Run("not found returns nil", func(t *testing.T) {
		bet, err := repo.GetByID(ctx, 999999)
		require.NoError(t, err)
		assert.Nil(t, bet)
	})

	t.Run("round trip", func(t *testing.T) {
		original := testutil.CreateTestBet(users[0], users)
		err := repo.Create(ctx, original)
		require.NoError(t, err)
		assert.NotZero(t, original.ID)
		assert.Equal(t, int32(1), original.Version)
		assert.False(t, original.CreatedAt.IsZero())

		bet, err := repo.GetByID(ctx, original.ID)
		require.NoError(t, err)
		require.NotNil(t, bet)

		assert.Equal(t, original.CreatorID, bet.CreatorID)
		assert.Equal(t, users, bet.ParticipantIDs)
		assert.Equal(t, models.BetTypeMoney, bet.Type)
		assert.Equal(t, int64(5000), bet.StakeMoney)
		assert.Equal(t, models.BetStatusPending, bet.Status)
		assert.Equal(t, models.ConfirmationAccepted, bet.Confirmations[users[0]])
		assert.Equal(t, models.ConfirmationPending, bet.Confirmations[users[1]])
		assert.Nil(t, bet.DoubleProposal)
		assert.Nil(t, bet.Voting)
		assert.Nil(t, bet.WinnerID)
	})

	t.Run("jsonb state round trip", func(t *testing.T) {
		original := testutil.CreateTestGroupBet(users[0], users, 42)
		original.Voting = &models.Voting{
			IsActive:         true,
			Votes:            map[int64]int64{users[0]: users[1]},
			RequiredVotes:    1,
			EligibleVoterIDs: users,
			StartedAt:        time.Now().UTC(),
		}
		err := repo.Create(ctx, original)
		require.NoError(t, err)

		bet, err := repo.GetByID(ctx, original.ID)
		require.NoError(t, err)
		require.NotNil(t, bet)
		require.NotNil(t, bet.Voting)

		assert.True(t, bet.Voting.IsActive)
		assert.Equal(t, users[1], bet.Voting.Votes[users[0]])
		assert.Equal(t, 1, bet.Voting.RequiredVotes)
		assert.Equal(t, users, bet.Voting.EligibleVoterIDs)
		require.NotNil(t, bet.GroupID)
		assert.Equal(t, int64(42), *bet.GroupID)
	})
}

func TestBetRepository_Update(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	userRepo := NewUserRepository(testDB.DB)
	repo := NewBetRepository(testDB.DB)
	ctx := context.Background()

	users := createUsers(t, userRepo, 2)

	t.Run("bumps version", func(t *testing.T) {
		bet := testutil.CreateTestBet(users[0], users)
		require.NoError(t, repo.Create(ctx, bet))

		bet.Confirmations[users[1]] = models.ConfirmationAccepted
		bet.Status = models.BetStatusActive
		require.NoError(t, repo.Update(ctx, bet))
		assert.Equal(t, int32(2), bet.Version)

		reloaded, err := repo.GetByID(ctx, bet.ID)
		require.NoError(t, err)
		assert.Equal(t, models.BetStatusActive, reloaded.Status)
		assert.Equal(t, models.ConfirmationAccepted, reloaded.Confirmations[users[1]])
	})

	t.Run("stale version fails", func(t *testing.T) {
		bet := testutil.CreateTestActiveBet(users[0], users)
		require.NoError(t, repo.Create(ctx, bet))

		stale := *bet
		bet.StakeMoney = 10000
		require.NoError(t, repo.Update(ctx, bet))

		stale.StakeMoney = 20000
		err := repo.Update(ctx, &stale)
		require.Error(t, err)
		assert.True(t, errors.Is(err, service.ErrConcurrentUpdate))
	})

	t.Run("resolved bet stores winner", func(t *testing.T) {
		bet := testutil.CreateTestActiveBet(users[0], users)
		require.NoError(t, repo.Create(ctx, bet))

		now := time.Now()
		bet.Status = models.BetStatusResolved
		bet.WinnerID = &users[1]
		bet.ResolvedAt = &now
		require.NoError(t, repo.Update(ctx, bet))

		reloaded, err := repo.GetByID(ctx, bet.ID)
		require.NoError(t, err)
		require.NotNil(t, reloaded.WinnerID)
		assert.Equal(t, users[1], *reloaded.WinnerID)
		require.NotNil(t, reloaded.ResolvedAt)
	})
}

func TestBetRepository_Queries(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	userRepo := NewUserRepository(testDB.DB)
	repo := NewBetRepository(testDB.DB)
	ctx := context.Background()

	users := createUsers(t, userRepo, 3)

	pending := testutil.CreateTestBet(users[0], users[:2])
	require.NoError(t, repo.Create(ctx, pending))

	active := testutil.CreateTestActiveBet(users[0], users[:2])
	require.NoError(t, repo.Create(ctx, active))

	now := time.Now()
	resolved := testutil.CreateTestActiveBet(users[0], users[:2])
	resolved.Status = models.BetStatusResolved
	resolved.WinnerID = &users[0]
	resolved.ResolvedAt = &now
	require.NoError(t, repo.Create(ctx, resolved))

	overdue := testutil.CreateTestBetWithDeadline(users[0], users[:2], now.Add(-time.Hour))
	require.NoError(t, repo.Create(ctx, overdue))

	other := testutil.CreateTestActiveBet(users[2], []int64{users[2], users[1]})
	require.NoError(t, repo.Create(ctx, other))

	t.Run("by participant", func(t *testing.T) {
		bets, err := repo.GetByParticipant(ctx, users[0], 10)
		require.NoError(t, err)
		assert.Len(t, bets, 4) // pending, active, resolved, overdue

		bets, err = repo.GetByParticipant(ctx, users[0], 2)
		require.NoError(t, err)
		assert.Len(t, bets, 2)
	})

	t.Run("active by participant", func(t *testing.T) {
		bets, err := repo.GetActiveByParticipant(ctx, users[0])
		require.NoError(t, err)
		assert.Len(t, bets, 3) // pending, active, overdue
		for _, b := range bets {
			assert.True(t, b.IsActive())
		}
	})

	t.Run("resolved by participant", func(t *testing.T) {
		bets, err := repo.GetResolvedByParticipant(ctx, users[0], 10)
		require.NoError(t, err)
		require.Len(t, bets, 1)
		assert.Equal(t, resolved.ID, bets[0].ID)
	})

	t.Run("by status", func(t *testing.T) {
		bets, err := repo.GetByStatus(ctx, models.BetStatusPending)
		require.NoError(t, err)
		require.Len(t, bets, 1)
		assert.Equal(t, pending.ID, bets[0].ID)
	})

	t.Run("expired active", func(t *testing.T) {
		bets, err := repo.GetExpiredActive(ctx, now)
		require.NoError(t, err)
		require.Len(t, bets, 1)
		assert.Equal(t, overdue.ID, bets[0].ID)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := repo.GetStats(ctx, users[0])
		require.NoError(t, err)
		assert.Equal(t, 4, stats.TotalBets)
		assert.Equal(t, 1, stats.Wins)
		assert.Equal(t, 0, stats.Losses)
		assert.Equal(t, 3, stats.Open)

		stats, err = repo.GetStats(ctx, users[1])
		require.NoError(t, err)
		assert.Equal(t, 5, stats.TotalBets)
		assert.Equal(t, 0, stats.Wins)
		assert.Equal(t, 1, stats.Losses)
	})
}

func TestBetRepository_Delete(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	userRepo := NewUserRepository(testDB.DB)
	repo := NewBetRepository(testDB.DB)
	timelineRepo := NewTimelineRepository(testDB.DB)
	ctx := context.Background()

	users := createUsers(t, userRepo, 2)

	t.Run("cascades to timeline", func(t *testing.T) {
		bet := testutil.CreateTestBet(users[0], users)
		require.NoError(t, repo.Create(ctx, bet))

		entry := testutil.CreateTestTimelineEntry(bet.ID, users[0], models.TimelineEventCreated)
		require.NoError(t, timelineRepo.Append(ctx, entry))

		require.NoError(t, repo.Delete(ctx, bet.ID))

		gone, err := repo.GetByID(ctx, bet.ID)
		require.NoError(t, err)
		assert.Nil(t, gone)

		entries, err := timelineRepo.GetByBet(ctx, bet.ID)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("missing bet", func(t *testing.T) {
		err := repo.Delete(ctx, 999999)
		require.Error(t, err)
		assert.True(t, errors.Is(err, service.ErrNotFound))
	})
}

func TestTimelineRepository_AppendOrder(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	userRepo := NewUserRepository(testDB.DB)
	betRepo := NewBetRepository(testDB.DB)
	repo := NewTimelineRepository(testDB.DB)
	ctx := context.Background()

	users := createUsers(t, userRepo, 2)

	bet := testutil.CreateTestBet(users[0], users)
	require.NoError(t, betRepo.Create(ctx, bet))

	types := []models.TimelineEventType{
		models.TimelineEventCreated,
		models.TimelineEventConfirmed,
		models.TimelineEventDoubleProposed,
		models.TimelineEventDoubleAccepted,
		models.TimelineEventResolved,
	}
	for _, eventType := range types {
		entry := testutil.CreateTestTimelineEntry(bet.ID, users[0], eventType)
		require.NoError(t, repo.Append(ctx, entry))
		assert.NotZero(t, entry.ID)
		assert.False(t, entry.At.IsZero())
	}

	entries, err := repo.GetByBet(ctx, bet.ID)
	require.NoError(t, err)
	require.Len(t, entries, len(types))
	for i, entry := range entries {
		assert.Equal(t, types[i], entry.Type)
	}
}

func TestNotificationRepository(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	userRepo := NewUserRepository(testDB.DB)
	betRepo := NewBetRepository(testDB.DB)
	repo := NewNotificationRepository(testDB.DB)
	ctx := context.Background()

	users := createUsers(t, userRepo, 2)

	bet := testutil.CreateTestBet(users[0], users)
	require.NoError(t, betRepo.Create(ctx, bet))

	t.Run("create and list", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			n := testutil.CreateTestNotification(users[1], bet.ID)
			require.NoError(t, repo.Create(ctx, n))
			assert.NotZero(t, n.ID)
			assert.False(t, n.Read)
		}

		notifications, err := repo.GetByUser(ctx, users[1], 10)
		require.NoError(t, err)
		assert.Len(t, notifications, 3)
	})

	t.Run("mark read", func(t *testing.T) {
		n := testutil.CreateTestNotification(users[0], bet.ID)
		require.NoError(t, repo.Create(ctx, n))

		require.NoError(t, repo.MarkRead(ctx, n.ID))

		notifications, err := repo.GetByUser(ctx, users[0], 10)
		require.NoError(t, err)
		require.Len(t, notifications, 1)
		assert.True(t, notifications[0].Read)
	})

	t.Run("mark read missing", func(t *testing.T) {
		err := repo.MarkRead(ctx, 999999)
		require.Error(t, err)
		assert.True(t, errors.Is(err, service.ErrNotFound))
	})
}

func TestWithTransaction_RollbackDiscardsWrites(t *testing.T) {
	testDB := testutil.SetupTestDatabase(t)

	userRepo := NewUserRepository(testDB.DB)
	betRepo := NewBetRepository(testDB.DB)
	ctx := context.Background()

	users := createUsers(t, userRepo, 2)
	failure := errors.New("boom")

	var betID int64
	err := testDB.DB.WithTransaction(ctx, func(tx pgx.Tx) error {
		txRepo := newBetRepositoryWithTx(tx)
		bet := testutil.CreateTestBet(users[0], users)
		if err := txRepo.Create(ctx, bet); err != nil {
			return err
		}
		betID = bet.ID
		return failure
	})
	require.ErrorIs(t, err, failure)

	bet, err := betRepo.GetByID(ctx, betID)
	require.NoError(t, err)
	assert.Nil(t, bet)
}
