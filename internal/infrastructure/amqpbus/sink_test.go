package amqpbus

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
)

type mockChannel struct {
	mock.Mock
}

func (m *mockChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	return m.Called(name, kind, durable).Error(0)
}

func (m *mockChannel) Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	return m.Called(exchange, key, msg).Error(0)
}

func (m *mockChannel) Close() error {
	return m.Called().Error(0)
}

func TestSink_DeclaresOnceAndPublishes(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", "events", "fanout", true).Return(nil).Once()
	ch.On("Publish", "events", "", mock.MatchedBy(func(p amqp.Publishing) bool {
		return p.Type == string(notification.TypeBidAccepted) && p.ContentType == "application/json" && len(p.Body) > 0
	})).Return(nil).Twice()

	sink := newSink(ch, "events")
	ev := notification.NewEvent(notification.TypeBidAccepted, uuid.New(), uuid.New())
	require.NoError(t, sink.Publish(context.Background(), ev))
	require.NoError(t, sink.Publish(context.Background(), ev))

	ch.AssertExpectations(t)
}

func TestSink_DeclareFailureIsRetriedOnNextPublish(t *testing.T) {
	ch := &mockChannel{}
	ch.On("ExchangeDeclare", DefaultExchange, "fanout", true).Return(errors.New("channel closed")).Once()
	ch.On("ExchangeDeclare", DefaultExchange, "fanout", true).Return(nil).Once()
	ch.On("Publish", DefaultExchange, "", mock.Anything).Return(nil).Once()

	sink := newSink(ch, "")
	ev := notification.NewEvent(notification.TypeRfqExpired, uuid.New())
	assert.EqualError(t, sink.Publish(context.Background(), ev), "channel closed")
	require.NoError(t, sink.Publish(context.Background(), ev))

	ch.AssertExpectations(t)
}

func TestSink_CancelledContext(t *testing.T) {
	sink := newSink(&mockChannel{}, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sink.Publish(ctx, notification.NewEvent(notification.TypeRfqExpired, uuid.New())), context.Canceled)
}
