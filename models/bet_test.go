package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBetStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    BetStatus
		to      BetStatus
		allowed bool
	}{
		{BetStatusPending, BetStatusActive, true},
		{BetStatusPending, BetStatusCancelled, true},
		{BetStatusPending, BetStatusResolved, false},
		{BetStatusPending, BetStatusExpired, false},
		{BetStatusActive, BetStatusDoubleProposed, true},
		{BetStatusActive, BetStatusResolved, true},
		{BetStatusActive, BetStatusExpired, true},
		{BetStatusActive, BetStatusCancelled, false},
		{BetStatusActive, BetStatusPending, false},
		{BetStatusDoubleProposed, BetStatusActive, true},
		{BetStatusDoubleProposed, BetStatusResolved, false},
		{BetStatusDoubleProposed, BetStatusCancelled, false},
		{BetStatusExpired, BetStatusResolved, true},
		{BetStatusExpired, BetStatusActive, false},
		{BetStatusResolved, BetStatusActive, false},
		{BetStatusResolved, BetStatusExpired, false},
		{BetStatusCancelled, BetStatusActive, false},
		{BetStatusCancelled, BetStatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestBetStatus_IsTerminal(t *testing.T) {
	assert.True(t, BetStatusResolved.IsTerminal())
	assert.True(t, BetStatusCancelled.IsTerminal())
	assert.False(t, BetStatusPending.IsTerminal())
	assert.False(t, BetStatusActive.IsTerminal())
	assert.False(t, BetStatusDoubleProposed.IsTerminal())
	// Expired still admits resolution
	assert.False(t, BetStatusExpired.IsTerminal())
}

func TestRequiredVotesFor(t *testing.T) {
	tests := []struct {
		voters   int
		required int
	}{
		{1, 1},
		{2, 1},
		{3, 2},
		{4, 2},
		{5, 3},
		{6, 3},
		{7, 4},
		{10, 5},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.required, RequiredVotesFor(tt.voters), "n=%d", tt.voters)
	}
}

func TestVoting_QuorumWinner(t *testing.T) {
	t.Run("no votes", func(t *testing.T) {
		v := &Voting{Votes: map[int64]int64{}, RequiredVotes: 2}
		_, ok := v.QuorumWinner()
		assert.False(t, ok)
	})

	t.Run("below threshold", func(t *testing.T) {
		v := &Voting{Votes: map[int64]int64{1: 5}, RequiredVotes: 2}
		_, ok := v.QuorumWinner()
		assert.False(t, ok)
	})

	t.Run("at threshold", func(t *testing.T) {
		v := &Voting{Votes: map[int64]int64{1: 5, 2: 5, 3: 6}, RequiredVotes: 2}
		winner, ok := v.QuorumWinner()
		assert.True(t, ok)
		assert.Equal(t, int64(5), winner)
	})

	t.Run("split votes reach no quorum", func(t *testing.T) {
		v := &Voting{Votes: map[int64]int64{1: 5, 2: 6}, RequiredVotes: 2}
		_, ok := v.QuorumWinner()
		assert.False(t, ok)
	})
}

func TestVoting_Tally(t *testing.T) {
	v := &Voting{Votes: map[int64]int64{1: 5, 2: 5, 3: 6}}
	tally := v.Tally()
	assert.Equal(t, 2, tally[5])
	assert.Equal(t, 1, tally[6])
}

func TestDoubleProposal_AllApproved(t *testing.T) {
	dp := &DoubleProposal{Approvals: map[int64]ConfirmationStatus{
		1: ConfirmationAccepted,
		2: ConfirmationPending,
	}}
	assert.False(t, dp.AllApproved())

	dp.Approvals[2] = ConfirmationAccepted
	assert.True(t, dp.AllApproved())

	empty := &DoubleProposal{Approvals: map[int64]ConfirmationStatus{}}
	assert.False(t, empty.AllApproved())
}

func TestBet_Confirmations(t *testing.T) {
	bet := &Bet{
		ParticipantIDs: []int64{1, 2, 3},
		Confirmations: map[int64]ConfirmationStatus{
			1: ConfirmationAccepted,
			2: ConfirmationPending,
			3: ConfirmationPending,
		},
	}

	assert.False(t, bet.AllConfirmed())
	assert.False(t, bet.AnyDeclined())

	bet.Confirmations[2] = ConfirmationAccepted
	bet.Confirmations[3] = ConfirmationAccepted
	assert.True(t, bet.AllConfirmed())

	bet.Confirmations[3] = ConfirmationDeclined
	assert.False(t, bet.AllConfirmed())
	assert.True(t, bet.AnyDeclined())
}

func TestBet_AddParticipant(t *testing.T) {
	bet := &Bet{
		ParticipantIDs: []int64{1},
		Confirmations:  map[int64]ConfirmationStatus{1: ConfirmationAccepted},
	}

	bet.AddParticipant(2, ConfirmationAccepted)
	assert.Equal(t, []int64{1, 2}, bet.ParticipantIDs)
	assert.Equal(t, ConfirmationAccepted, bet.Confirmations[2])

	// Adding again changes nothing
	bet.AddParticipant(2, ConfirmationPending)
	assert.Len(t, bet.ParticipantIDs, 2)
	assert.Equal(t, ConfirmationAccepted, bet.Confirmations[2])
}

func TestBet_IsPastDeadline(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	bet := &Bet{Status: BetStatusActive, Deadline: &past}
	assert.True(t, bet.IsPastDeadline(now))

	bet.Deadline = &future
	assert.False(t, bet.IsPastDeadline(now))

	bet.Deadline = nil
	assert.False(t, bet.IsPastDeadline(now))

	bet.Deadline = &past
	bet.Status = BetStatusExpired
	assert.False(t, bet.IsPastDeadline(now))
}

func TestBet_CanBeResolvedBy(t *testing.T) {
	bet := &Bet{
		Status:         BetStatusActive,
		ParticipantIDs: []int64{1, 2},
	}

	assert.True(t, bet.CanBeResolvedBy(1))
	assert.False(t, bet.CanBeResolvedBy(99))

	bet.Status = BetStatusExpired
	assert.True(t, bet.CanBeResolvedBy(2))

	bet.Status = BetStatusPending
	assert.False(t, bet.CanBeResolvedBy(1))

	bet.Status = BetStatusResolved
	assert.False(t, bet.CanBeResolvedBy(1))
}

func TestBet_StakeAndResolutionModes(t *testing.T) {
	money := &Bet{Type: BetTypeMoney}
	challenge := &Bet{Type: BetTypeChallenge}
	group := &Bet{Type: BetTypeGroupWinnerTakeAll}
	individual := &Bet{Type: BetTypeIndividualGroup}

	assert.True(t, money.UsesMoneyStake())
	assert.True(t, group.UsesMoneyStake())
	assert.False(t, challenge.UsesMoneyStake())
	assert.False(t, individual.UsesMoneyStake())

	assert.True(t, group.UsesQuorumResolution())
	assert.False(t, money.UsesQuorumResolution())
	assert.False(t, challenge.UsesQuorumResolution())
	assert.False(t, individual.UsesQuorumResolution())
}
