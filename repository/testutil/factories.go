package testutil

import (
	"time"

	"betmates/models"
)

// CreateTestBet creates a pending money bet between the given participants.
// The creator is pre-accepted; everyone else starts pending.
func CreateTestBet(creatorID int64, participantIDs []int64) *models.Bet {
	confirmations := make(map[int64]models.ConfirmationStatus, len(participantIDs))
	for _, id := range participantIDs {
		if id == creatorID {
			confirmations[id] = models.ConfirmationAccepted
		} else {
			confirmations[id] = models.ConfirmationPending
		}
	}
	return &models.Bet{
		CreatorID:      creatorID,
		ParticipantIDs: participantIDs,
		Type:           models.BetTypeMoney,
		StakeMoney:     5000,
		Description:    "test bet",
		Status:         models.BetStatusPending,
		Confirmations:  confirmations,
	}
}

// CreateTestActiveBet creates an active money bet with all participants accepted
func CreateTestActiveBet(creatorID int64, participantIDs []int64) *models.Bet {
	bet := CreateTestBet(creatorID, participantIDs)
	for _, id := range participantIDs {
		bet.Confirmations[id] = models.ConfirmationAccepted
	}
	bet.Status = models.BetStatusActive
	return bet
}

// CreateTestGroupBet creates an active group winner-takes-all bet
func CreateTestGroupBet(creatorID int64, participantIDs []int64, groupID int64) *models.Bet {
	bet := CreateTestActiveBet(creatorID, participantIDs)
	bet.Type = models.BetTypeGroupWinnerTakeAll
	bet.GroupID = &groupID
	return bet
}

// CreateTestBetWithDeadline creates an active money bet with the given deadline
func CreateTestBetWithDeadline(creatorID int64, participantIDs []int64, deadline time.Time) *models.Bet {
	bet := CreateTestActiveBet(creatorID, participantIDs)
	bet.Deadline = &deadline
	return bet
}

// CreateTestTimelineEntry creates a timeline entry for the given bet
func CreateTestTimelineEntry(betID, by int64, eventType models.TimelineEventType) *models.TimelineEntry {
	return &models.TimelineEntry{
		BetID: betID,
		By:    by,
		Type:  eventType,
	}
}

// CreateTestNotification creates an unread notification for the given user
func CreateTestNotification(userID int64, betID int64) *models.Notification {
	return &models.Notification{
		UserID: userID,
		Type:   models.NotificationBetCreated,
		BetID:  &betID,
		Title:  "New bet",
		Body:   "test notification",
	}
}
