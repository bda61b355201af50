package models

import (
	"time"
)

// BetType determines which stake field applies and how the bet resolves
type BetType string

const (
	BetTypeMoney              BetType = "money"
	BetTypeChallenge          BetType = "challenge"
	BetTypeGroupWinnerTakeAll BetType = "group_winner_takes_all"
	BetTypeIndividualGroup    BetType = "individual_group_bet"
)

// BetStatus represents the lifecycle state of a bet
type BetStatus string

const (
	BetStatusPending        BetStatus = "pending"
	BetStatusActive         BetStatus = "active"
	BetStatusDoubleProposed BetStatus = "double_proposed"
	BetStatusResolved       BetStatus = "resolved"
	BetStatusCancelled      BetStatus = "cancelled"
	BetStatusExpired        BetStatus = "expired"
)

// ConfirmationStatus represents a participant's response to a proposal
type ConfirmationStatus string

const (
	ConfirmationPending  ConfirmationStatus = "pending"
	ConfirmationAccepted ConfirmationStatus = "accepted"
	ConfirmationDeclined ConfirmationStatus = "declined"
)

// SystemActorID is the synthetic actor used for engine-driven timeline entries
const SystemActorID int64 = 0

// statusTransitions is the authoritative transition table. Services never set
// a status without consulting it.
var statusTransitions = map[BetStatus][]BetStatus{
	BetStatusPending:        {BetStatusActive, BetStatusCancelled},
	BetStatusActive:         {BetStatusDoubleProposed, BetStatusResolved, BetStatusExpired},
	BetStatusDoubleProposed: {BetStatusActive},
	BetStatusExpired:        {BetStatusResolved},
}

// CanTransitionTo reports whether the status lattice permits moving to the target status
func (s BetStatus) CanTransitionTo(target BetStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
// Expired is semi-terminal: it still allows direct resolution.
func (s BetStatus) IsTerminal() bool {
	return s == BetStatusResolved || s == BetStatusCancelled
}

// DoubleProposal tracks an outstanding stake-doubling proposal
type DoubleProposal struct {
	ProposedBy int64                        `json:"proposedBy"`
	Factor     int64                        `json:"factor"`
	ProposedAt time.Time                    `json:"proposedAt"`
	Approvals  map[int64]ConfirmationStatus `json:"approvals"`
}

// AllApproved reports whether every participant has approved the proposal
func (dp *DoubleProposal) AllApproved() bool {
	for _, status := range dp.Approvals {
		if status != ConfirmationAccepted {
			return false
		}
	}
	return len(dp.Approvals) > 0
}

// AnyDeclined reports whether any participant has declined the proposal
func (dp *DoubleProposal) AnyDeclined() bool {
	for _, status := range dp.Approvals {
		if status == ConfirmationDeclined {
			return true
		}
	}
	return false
}

// Voting tracks quorum-based winner selection for group bets
type Voting struct {
	IsActive         bool            `json:"isActive"`
	Votes            map[int64]int64 `json:"votes"` // voter ID -> candidate winner ID
	RequiredVotes    int             `json:"requiredVotes"`
	EligibleVoterIDs []int64         `json:"eligibleVoterIds"`
	StartedAt        time.Time       `json:"startedAt"`
	EndedAt          *time.Time      `json:"endedAt,omitempty"`
}

// RequiredVotesFor returns the majority threshold for n eligible voters
func RequiredVotesFor(n int) int {
	return (n + 1) / 2
}

// IsEligibleVoter reports whether the voter belongs to the eligible set
func (v *Voting) IsEligibleVoter(voterID int64) bool {
	for _, id := range v.EligibleVoterIDs {
		if id == voterID {
			return true
		}
	}
	return false
}

// Tally counts current votes per candidate
func (v *Voting) Tally() map[int64]int {
	counts := make(map[int64]int)
	for _, candidateID := range v.Votes {
		counts[candidateID]++
	}
	return counts
}

// QuorumWinner returns the candidate whose vote count has reached the
// required threshold, if any
func (v *Voting) QuorumWinner() (int64, bool) {
	for candidateID, count := range v.Tally() {
		if count >= v.RequiredVotes {
			return candidateID, true
		}
	}
	return 0, false
}

// Bet represents a peer wager between two or more participants
type Bet struct {
	ID                     int64                        `db:"id"`
	CreatorID              int64                        `db:"creator_id"`
	ParticipantIDs         []int64                      `db:"participant_ids"`
	Type                   BetType                      `db:"type"`
	StakeMoney             int64                        `db:"stake_money"` // cents; zero unless Type uses money
	StakeText              string                       `db:"stake_text"`
	Description            string                       `db:"description"`
	GroupID                *int64                       `db:"group_id"`
	Status                 BetStatus                    `db:"status"`
	Confirmations          map[int64]ConfirmationStatus `db:"confirmations"`
	DoubleProposal         *DoubleProposal              `db:"double_proposal"`
	Voting                 *Voting                      `db:"voting"`
	IndividualParticipants []int64                      `db:"individual_participants"` // fixed pair for individual group bets
	Deadline               *time.Time                   `db:"deadline"`
	WinnerID               *int64                       `db:"winner_id"`
	Version                int32                        `db:"version"`
	CreatedAt              time.Time                    `db:"created_at"`
	UpdatedAt              time.Time                    `db:"updated_at"`
	ResolvedAt             *time.Time                   `db:"resolved_at"`
}

// IsParticipant checks if a user is a current participant of the bet
func (b *Bet) IsParticipant(userID int64) bool {
	for _, id := range b.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AddParticipant appends a participant and the matching confirmation entry.
// Adding an existing participant is a no-op.
func (b *Bet) AddParticipant(userID int64, status ConfirmationStatus) {
	if b.IsParticipant(userID) {
		return
	}
	b.ParticipantIDs = append(b.ParticipantIDs, userID)
	if b.Confirmations == nil {
		b.Confirmations = make(map[int64]ConfirmationStatus)
	}
	b.Confirmations[userID] = status
}

// AllConfirmed reports whether every participant has accepted
func (b *Bet) AllConfirmed() bool {
	for _, id := range b.ParticipantIDs {
		if b.Confirmations[id] != ConfirmationAccepted {
			return false
		}
	}
	return true
}

// AnyDeclined reports whether any participant has declined
func (b *Bet) AnyDeclined() bool {
	for _, id := range b.ParticipantIDs {
		if b.Confirmations[id] == ConfirmationDeclined {
			return true
		}
	}
	return false
}

// UsesQuorumResolution reports whether the bet resolves by majority vote
// rather than direct winner selection
func (b *Bet) UsesQuorumResolution() bool {
	return b.Type == BetTypeGroupWinnerTakeAll
}

// UsesMoneyStake reports whether StakeMoney is the populated stake field
func (b *Bet) UsesMoneyStake() bool {
	return b.Type == BetTypeMoney || b.Type == BetTypeGroupWinnerTakeAll
}

// CanBeResolvedBy checks if a user may select a winner right now
func (b *Bet) CanBeResolvedBy(userID int64) bool {
	if b.Status != BetStatusActive && b.Status != BetStatusExpired {
		return false
	}
	return b.IsParticipant(userID)
}

// IsPastDeadline reports whether an active bet's deadline has elapsed
func (b *Bet) IsPastDeadline(now time.Time) bool {
	if b.Deadline == nil || b.Status != BetStatusActive {
		return false
	}
	return !now.Before(*b.Deadline)
}

// IsActive checks if the bet is in a live, unresolved state
func (b *Bet) IsActive() bool {
	return b.Status == BetStatusPending || b.Status == BetStatusActive || b.Status == BetStatusDoubleProposed
}
