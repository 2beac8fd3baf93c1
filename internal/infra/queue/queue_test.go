package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xavierca1/lead-pipeline/internal/entity"
	"github.com/xavierca1/lead-pipeline/internal/usecase"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange, key, msg})
	return nil
}

// fakeAck records how a delivery was settled.
type fakeAck struct {
	acked, nacked, requeued bool
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	a.requeued = requeue
	return nil
}

func (a *fakeAck) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type MockProcessor struct {
	mock.Mock
}

func (m *MockProcessor) Execute(ctx context.Context, input entity.AudienceEventReceived) (*usecase.ProcessEventOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*usecase.ProcessEventOutput)
	return out, args.Error(1)
}

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) IsProcessed(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockEventStore) RecordFailure(ctx context.Context, id string, errMsg string, attempts int) error {
	args := m.Called(ctx, id, errMsg, attempts)
	return args.Error(0)
}

func delivery(t *testing.T, ack *fakeAck, attempt int) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(entity.AudienceEventReceived{EventID: "evt-1", WorkspaceID: "ws-1", Source: "pixel"})
	require.NoError(t, err)
	return amqp.Delivery{
		Acknowledger: ack,
		Body:         body,
		Headers:      amqp.Table{AttemptHeader: int32(attempt)},
	}
}

// openEventStore reports every event as still open.
func openEventStore() *MockEventStore {
	events := new(MockEventStore)
	events.On("IsProcessed", mock.Anything, mock.Anything).Return(false, nil).Maybe()
	return events
}

func newTestConsumer(processor EventProcessor, events EventStore, ch *fakeChannel) *Consumer {
	return NewConsumer(nil, processor, events, NewProducer(ch), NewThrottle(0, time.Second),
		ConsumerConfig{Concurrency: 1, MaxAttempts: 3, StepTimeout: time.Second}, zap.NewNop())
}

func TestProducerPublishesAudienceEvent(t *testing.T) {
	ch := &fakeChannel{}
	p := NewProducer(ch)

	err := p.PublishAudienceEvent(context.Background(), entity.AudienceEventReceived{EventID: "evt-1", WorkspaceID: "ws-1"})

	require.NoError(t, err)
	require.Len(t, ch.sent, 1)
	sent := ch.sent[0]
	assert.Equal(t, AudienceExchange, sent.exchange)
	assert.Equal(t, AudienceRoutingKey, sent.key)
	assert.Equal(t, amqp.Persistent, sent.msg.DeliveryMode)
	assert.Equal(t, 1, attemptOf(sent.msg.Headers))
	assert.JSONEq(t, `{"event_id":"evt-1","workspace_id":"ws-1","source":""}`, string(sent.msg.Body))
}

func TestProducerPublishesIdentityUpdateOnFanout(t *testing.T) {
	ch := &fakeChannel{}
	p := NewProducer(ch)

	err := p.PublishIdentityUpdated(context.Background(), entity.IdentityUpdated{IdentityID: "id-1", WorkspaceID: "ws-1"})

	require.NoError(t, err)
	require.Len(t, ch.sent, 1)
	assert.Equal(t, IdentityExchange, ch.sent[0].exchange)
	assert.Empty(t, ch.sent[0].key)
}

func TestAttemptOf(t *testing.T) {
	assert.Equal(t, 1, attemptOf(nil))
	assert.Equal(t, 1, attemptOf(amqp.Table{AttemptHeader: "two"}))
	assert.Equal(t, 1, attemptOf(amqp.Table{AttemptHeader: int32(0)}))
	assert.Equal(t, 2, attemptOf(amqp.Table{AttemptHeader: int64(2)}))
	assert.Equal(t, 3, attemptOf(amqp.Table{AttemptHeader: int32(3)}))
}

func TestHandleAcksOnSuccess(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("Execute", mock.Anything, mock.Anything).Return(&usecase.ProcessEventOutput{EventID: "evt-1"}, nil)
	ch := &fakeChannel{}
	c := newTestConsumer(processor, openEventStore(), ch)
	ack := &fakeAck{}

	c.Handle(context.Background(), delivery(t, ack, 1))

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.Empty(t, ch.sent)
}

func TestHandleRetriesTechnicalErrors(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("Execute", mock.Anything, mock.Anything).
		Return(nil, &usecase.TechnicalError{Code: "STORAGE_ERROR", Step: usecase.StepResolve, Err: errors.New("timeout")})
	ch := &fakeChannel{}
	c := newTestConsumer(processor, openEventStore(), ch)
	ack := &fakeAck{}

	c.Handle(context.Background(), delivery(t, ack, 1))

	assert.True(t, ack.acked, "original delivery is settled once the retry is published")
	require.Len(t, ch.sent, 1)
	assert.Equal(t, 2, attemptOf(ch.sent[0].msg.Headers))
}

func TestHandleDeadLettersAfterLastAttempt(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("Execute", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
	events := openEventStore()
	events.On("RecordFailure", mock.Anything, "evt-1", "db down", 3).Return(nil).Once()
	ch := &fakeChannel{}
	c := newTestConsumer(processor, events, ch)
	ack := &fakeAck{}

	c.Handle(context.Background(), delivery(t, ack, 3))

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued)
	assert.Empty(t, ch.sent)
	events.AssertExpectations(t)
}

func TestHandleRequeuesWhenRetryPublishFails(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("Execute", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
	ch := &fakeChannel{err: errors.New("channel closed")}
	c := newTestConsumer(processor, openEventStore(), ch)
	ack := &fakeAck{}

	c.Handle(context.Background(), delivery(t, ack, 1))

	assert.True(t, ack.nacked)
	assert.True(t, ack.requeued)
}

func TestHandleDeadLettersDomainErrors(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("Execute", mock.Anything, mock.Anything).
		Return(nil, &usecase.DomainError{Code: "EVENT_NOT_FOUND", Message: "raw event evt-1 not found"})
	events := openEventStore()
	events.On("RecordFailure", mock.Anything, "evt-1", mock.Anything, 1).Return(nil)
	ch := &fakeChannel{}
	c := newTestConsumer(processor, events, ch)
	ack := &fakeAck{}

	c.Handle(context.Background(), delivery(t, ack, 1))

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued)
	assert.Empty(t, ch.sent)
}

func TestHandleDeadLettersMalformedBody(t *testing.T) {
	processor := new(MockProcessor)
	c := newTestConsumer(processor, openEventStore(), &fakeChannel{})
	ack := &fakeAck{}

	c.Handle(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{nope")})

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeued)
	processor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestHandleDropsProcessedEventWithoutThrottleSlot(t *testing.T) {
	processor := new(MockProcessor)
	events := new(MockEventStore)
	events.On("IsProcessed", mock.Anything, "evt-1").Return(true, nil)
	c := newTestConsumer(processor, events, &fakeChannel{})
	c.Throttle = NewThrottle(1, time.Hour)
	ack := &fakeAck{}

	c.Handle(context.Background(), delivery(t, ack, 1))

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	processor.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
	assert.Zero(t, c.Throttle.reserve(), "the only slot in the window is still free")
}

func TestHandleProcessesWhenFenceCheckFails(t *testing.T) {
	processor := new(MockProcessor)
	processor.On("Execute", mock.Anything, mock.Anything).Return(&usecase.ProcessEventOutput{EventID: "evt-1"}, nil)
	events := new(MockEventStore)
	events.On("IsProcessed", mock.Anything, "evt-1").Return(false, errors.New("pool exhausted"))
	c := newTestConsumer(processor, events, &fakeChannel{})
	ack := &fakeAck{}

	c.Handle(context.Background(), delivery(t, ack, 1))

	assert.True(t, ack.acked)
	processor.AssertNumberOfCalls(t, "Execute", 1)
}
