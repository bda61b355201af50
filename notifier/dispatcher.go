package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"betmates/events"
	"betmates/models"
	"betmates/service"

	log "github.com/sirupsen/logrus"
)

// Publisher is the outbound transport the dispatcher delivers through
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// payload is the wire format delivered on the per-user subject
type payload struct {
	Type      models.NotificationType `json:"type"`
	BetID     *int64                  `json:"betId,omitempty"`
	Title     string                  `json:"title"`
	Body      string                  `json:"body"`
	CreatedAt time.Time               `json:"createdAt"`
}

// Dispatcher turns domain events into persisted notifications and publishes
// them on per-user subjects. Handlers run on the event bus goroutines after
// the originating transaction has committed.
type Dispatcher struct {
	uowFactory service.UnitOfWorkFactory
	publisher  Publisher
}

// NewDispatcher creates a new notification dispatcher
func NewDispatcher(uowFactory service.UnitOfWorkFactory, publisher Publisher) *Dispatcher {
	return &Dispatcher{
		uowFactory: uowFactory,
		publisher:  publisher,
	}
}

// Register subscribes the dispatcher to every event it delivers for
func (d *Dispatcher) Register(bus *events.Bus) {
	bus.Subscribe(events.EventTypeBetCreated, d.handleBetCreated)
	bus.Subscribe(events.EventTypeBetConfirmed, d.handleBetConfirmed)
	bus.Subscribe(events.EventTypeBetDeclined, d.handleBetDeclined)
	bus.Subscribe(events.EventTypeDoubleProposed, d.handleDoubleProposed)
	bus.Subscribe(events.EventTypeDoubleApproved, d.handleDoubleApproved)
	bus.Subscribe(events.EventTypeDoubleDeclined, d.handleDoubleDeclined)
	bus.Subscribe(events.EventTypeBetResolved, d.handleBetResolved)
	bus.Subscribe(events.EventTypeBetExpired, d.handleBetExpired)
}

func (d *Dispatcher) handleBetCreated(ctx context.Context, event events.Event) {
	e, ok := event.(events.BetCreatedEvent)
	if !ok {
		return
	}
	for _, userID := range e.ParticipantIDs {
		if userID == e.CreatorID {
			continue
		}
		d.deliver(ctx, userID, &models.Notification{
			UserID: userID,
			Type:   models.NotificationBetConfirmationRequest,
			BetID:  &e.BetID,
			Title:  "New bet proposal",
			Body:   fmt.Sprintf("You have been invited to bet #%d", e.BetID),
		})
	}
}

func (d *Dispatcher) handleBetConfirmed(ctx context.Context, event events.Event) {
	e, ok := event.(events.BetConfirmedEvent)
	if !ok {
		return
	}
	participants, creatorID, err := d.betParticipants(ctx, e.BetID)
	if err != nil {
		log.WithError(err).WithField("betId", e.BetID).Error("Failed to load bet for notification")
		return
	}
	for _, userID := range participants {
		if userID == e.ParticipantID {
			continue
		}
		// Only the creator hears about intermediate accepts
		if !e.AllConfirmed && userID != creatorID {
			continue
		}
		d.deliver(ctx, userID, &models.Notification{
			UserID: userID,
			Type:   models.NotificationBetConfirmed,
			BetID:  &e.BetID,
			Title:  "Bet accepted",
			Body:   fmt.Sprintf("A participant accepted bet #%d", e.BetID),
		})
	}
}

func (d *Dispatcher) handleBetDeclined(ctx context.Context, event events.Event) {
	e, ok := event.(events.BetDeclinedEvent)
	if !ok {
		return
	}
	participants, _, err := d.betParticipants(ctx, e.BetID)
	if err != nil {
		log.WithError(err).WithField("betId", e.BetID).Error("Failed to load bet for notification")
		return
	}
	for _, userID := range participants {
		if userID == e.ParticipantID {
			continue
		}
		d.deliver(ctx, userID, &models.Notification{
			UserID: userID,
			Type:   models.NotificationBetDeclined,
			BetID:  &e.BetID,
			Title:  "Bet declined",
			Body:   fmt.Sprintf("Bet #%d was declined and cancelled", e.BetID),
		})
	}
}

func (d *Dispatcher) handleDoubleProposed(ctx context.Context, event events.Event) {
	e, ok := event.(events.DoubleProposedEvent)
	if !ok {
		return
	}
	participants, _, err := d.betParticipants(ctx, e.BetID)
	if err != nil {
		log.WithError(err).WithField("betId", e.BetID).Error("Failed to load bet for notification")
		return
	}
	for _, userID := range participants {
		if userID == e.ProposedBy {
			continue
		}
		d.deliver(ctx, userID, &models.Notification{
			UserID: userID,
			Type:   models.NotificationDoubleProposed,
			BetID:  &e.BetID,
			Title:  "Stake doubling proposed",
			Body:   fmt.Sprintf("A %dx stake increase was proposed on bet #%d", e.Factor, e.BetID),
		})
	}
}

func (d *Dispatcher) handleDoubleApproved(ctx context.Context, event events.Event) {
	e, ok := event.(events.DoubleApprovedEvent)
	if !ok {
		return
	}
	participants, _, err := d.betParticipants(ctx, e.BetID)
	if err != nil {
		log.WithError(err).WithField("betId", e.BetID).Error("Failed to load bet for notification")
		return
	}
	for _, userID := range participants {
		d.deliver(ctx, userID, &models.Notification{
			UserID: userID,
			Type:   models.NotificationDoubleApproved,
			BetID:  &e.BetID,
			Title:  "Stake doubled",
			Body:   fmt.Sprintf("The stake on bet #%d is now %d", e.BetID, e.StakeMoney),
		})
	}
}

func (d *Dispatcher) handleDoubleDeclined(ctx context.Context, event events.Event) {
	e, ok := event.(events.DoubleDeclinedEvent)
	if !ok {
		return
	}
	participants, _, err := d.betParticipants(ctx, e.BetID)
	if err != nil {
		log.WithError(err).WithField("betId", e.BetID).Error("Failed to load bet for notification")
		return
	}
	for _, userID := range participants {
		if userID == e.DeclinedBy {
			continue
		}
		d.deliver(ctx, userID, &models.Notification{
			UserID: userID,
			Type:   models.NotificationDoubleDeclined,
			BetID:  &e.BetID,
			Title:  "Doubling declined",
			Body:   fmt.Sprintf("The stake increase on bet #%d was declined", e.BetID),
		})
	}
}

func (d *Dispatcher) handleBetResolved(ctx context.Context, event events.Event) {
	e, ok := event.(events.BetResolvedEvent)
	if !ok {
		return
	}
	for _, userID := range e.ParticipantIDs {
		body := fmt.Sprintf("Bet #%d was settled", e.BetID)
		if userID == e.WinnerID {
			body = fmt.Sprintf("You won bet #%d", e.BetID)
		}
		d.deliver(ctx, userID, &models.Notification{
			UserID: userID,
			Type:   models.NotificationBetResolved,
			BetID:  &e.BetID,
			Title:  "Bet resolved",
			Body:   body,
		})
	}
}

func (d *Dispatcher) handleBetExpired(ctx context.Context, event events.Event) {
	e, ok := event.(events.BetExpiredEvent)
	if !ok {
		return
	}
	for _, userID := range e.ParticipantIDs {
		d.deliver(ctx, userID, &models.Notification{
			UserID: userID,
			Type:   models.NotificationBetResolveReminder,
			BetID:  &e.BetID,
			Title:  "Bet past deadline",
			Body:   fmt.Sprintf("Bet #%d reached its deadline and needs a winner", e.BetID),
		})
	}
}

// betParticipants loads a bet's current participant set and creator
func (d *Dispatcher) betParticipants(ctx context.Context, betID int64) ([]int64, int64, error) {
	uow := d.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, 0, err
	}
	defer uow.Rollback()

	bet, err := uow.BetRepository().GetByID(ctx, betID)
	if err != nil {
		return nil, 0, err
	}
	if bet == nil {
		return nil, 0, fmt.Errorf("%w: bet %d", service.ErrNotFound, betID)
	}
	return bet.ParticipantIDs, bet.CreatorID, nil
}

// deliver persists the notification and publishes it on the user's subject.
// Delivery failures are logged, never propagated; the state change already
// committed.
func (d *Dispatcher) deliver(ctx context.Context, userID int64, notification *models.Notification) {
	uow := d.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		log.WithError(err).Error("Failed to begin notification transaction")
		return
	}
	defer uow.Rollback()

	if err := uow.NotificationRepository().Create(ctx, notification); err != nil {
		log.WithError(err).WithField("userId", userID).Error("Failed to persist notification")
		return
	}
	if err := uow.Commit(); err != nil {
		log.WithError(err).Error("Failed to commit notification")
		return
	}

	if d.publisher == nil {
		return
	}
	data, err := json.Marshal(payload{
		Type:      notification.Type,
		BetID:     notification.BetID,
		Title:     notification.Title,
		Body:      notification.Body,
		CreatedAt: notification.CreatedAt,
	})
	if err != nil {
		log.WithError(err).Error("Failed to marshal notification payload")
		return
	}
	if err := d.publisher.Publish(ctx, UserSubject(userID), data); err != nil {
		log.WithError(err).WithField("userId", userID).Error("Failed to publish notification")
	}
}
