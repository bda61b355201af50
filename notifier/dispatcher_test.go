package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"betmates/events"
	"betmates/models"
	"betmates/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type capturingTransport struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (c *capturingTransport) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *capturingTransport) published() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.subjects...)
}

func setupDispatcher(t *testing.T) (*Dispatcher, *capturingTransport, *service.MockNotificationRepository, *service.MockBetRepository) {
	factory := new(service.MockUnitOfWorkFactory)
	uow := new(service.MockUnitOfWork)
	betRepo := new(service.MockBetRepository)
	notificationRepo := new(service.MockNotificationRepository)

	uow.SetRepositories(nil, betRepo, nil, notificationRepo)
	factory.On("Create").Return(uow)
	uow.On("Begin", mock.Anything).Return(nil)
	uow.On("Commit").Return(nil)
	uow.On("Rollback").Return(nil)

	transport := &capturingTransport{}
	return NewDispatcher(factory, transport), transport, notificationRepo, betRepo
}

func TestDispatcher_BetCreated(t *testing.T) {
	dispatcher, transport, notificationRepo, _ := setupDispatcher(t)
	ctx := context.Background()

	notificationRepo.On("Create", mock.Anything, mock.MatchedBy(func(n *models.Notification) bool {
		return n.Type == models.NotificationBetConfirmationRequest && n.UserID != 1
	})).Return(nil)

	dispatcher.handleBetCreated(ctx, events.BetCreatedEvent{
		BetID:          10,
		CreatorID:      1,
		ParticipantIDs: []int64{1, 2, 3},
	})

	// The creator gets nothing
	notificationRepo.AssertNumberOfCalls(t, "Create", 2)
	assert.ElementsMatch(t, []string{UserSubject(2), UserSubject(3)}, transport.published())
}

func TestDispatcher_BetResolved(t *testing.T) {
	dispatcher, transport, notificationRepo, _ := setupDispatcher(t)
	ctx := context.Background()

	var bodies []string
	notificationRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Notification")).Return(nil).Run(func(args mock.Arguments) {
		bodies = append(bodies, args.Get(1).(*models.Notification).Body)
	})

	dispatcher.handleBetResolved(ctx, events.BetResolvedEvent{
		BetID:          10,
		WinnerID:       2,
		ResolvedBy:     1,
		ParticipantIDs: []int64{1, 2},
	})

	require.Len(t, transport.published(), 2)
	assert.Contains(t, bodies, "You won bet #10")
	assert.Contains(t, bodies, "Bet #10 was settled")
}

func TestDispatcher_BetExpired(t *testing.T) {
	dispatcher, transport, notificationRepo, _ := setupDispatcher(t)
	ctx := context.Background()

	notificationRepo.On("Create", mock.Anything, mock.MatchedBy(func(n *models.Notification) bool {
		return n.Type == models.NotificationBetResolveReminder
	})).Return(nil)

	dispatcher.handleBetExpired(ctx, events.BetExpiredEvent{
		BetID:          10,
		ParticipantIDs: []int64{1, 2},
	})

	assert.Len(t, transport.published(), 2)
}

func TestDispatcher_DoubleProposed_LoadsParticipants(t *testing.T) {
	dispatcher, transport, notificationRepo, betRepo := setupDispatcher(t)
	ctx := context.Background()

	bet := &models.Bet{
		ID:             10,
		CreatorID:      1,
		ParticipantIDs: []int64{1, 2, 3},
		Status:         models.BetStatusDoubleProposed,
	}
	betRepo.On("GetByID", mock.Anything, int64(10)).Return(bet, nil)
	notificationRepo.On("Create", mock.Anything, mock.MatchedBy(func(n *models.Notification) bool {
		return n.Type == models.NotificationDoubleProposed
	})).Return(nil)

	dispatcher.handleDoubleProposed(ctx, events.DoubleProposedEvent{
		BetID:      10,
		ProposedBy: 2,
		Factor:     3,
	})

	// Proposer excluded
	assert.ElementsMatch(t, []string{UserSubject(1), UserSubject(3)}, transport.published())
}

func TestDispatcher_EndToEndViaBus(t *testing.T) {
	dispatcher, transport, notificationRepo, _ := setupDispatcher(t)

	notificationRepo.On("Create", mock.Anything, mock.AnythingOfType("*models.Notification")).Return(nil)

	bus := events.NewBus()
	dispatcher.Register(bus)

	bus.Emit(context.Background(), events.BetExpiredEvent{
		BetID:          10,
		ParticipantIDs: []int64{7},
	})

	// Handlers run asynchronously
	require.Eventually(t, func() bool {
		return len(transport.published()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, UserSubject(7), transport.published()[0])
}
