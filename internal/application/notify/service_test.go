package notify

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
	"github.com/wrenchhub/wrenchhub/internal/domain/notification/mocks"
)

func TestService_DispatchDeliversToEverySink(t *testing.T) {
	ctrl := gomock.NewController(t)
	a := mocks.NewMockSink(ctrl)
	b := mocks.NewMockSink(ctrl)
	event := notification.NewEvent(notification.TypeSessionCreated, uuid.New(), uuid.New())

	a.EXPECT().Name().Return("a").AnyTimes()
	b.EXPECT().Name().Return("b").AnyTimes()
	a.EXPECT().Publish(gomock.Any(), event).Return(nil)
	b.EXPECT().Publish(gomock.Any(), event).Return(nil)

	svc := NewService([]notification.Sink{a, b}, 3, zerolog.Nop())
	svc.Dispatch(context.Background(), event)
	svc.Wait()
}

func TestService_RetriesThenSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	event := notification.NewEvent(notification.TypeRfqAwarded, uuid.New())

	sink.EXPECT().Name().Return("flaky").AnyTimes()
	gomock.InOrder(
		sink.EXPECT().Publish(gomock.Any(), event).Return(errors.New("broker down")),
		sink.EXPECT().Publish(gomock.Any(), event).Return(nil),
	)

	svc := NewService([]notification.Sink{sink}, 3, zerolog.Nop()).WithBackoff(time.Millisecond)
	svc.Dispatch(context.Background(), event)
	svc.Wait()
}

func TestService_GivesUpAfterMaxAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	event := notification.NewEvent(notification.TypeRfqAwarded, uuid.New())

	sink.EXPECT().Name().Return("down").AnyTimes()
	sink.EXPECT().Publish(gomock.Any(), event).Return(errors.New("broker down")).Times(2)

	var buf bytes.Buffer
	svc := NewService([]notification.Sink{sink}, 2, zerolog.New(&buf)).WithBackoff(time.Millisecond)
	svc.Dispatch(context.Background(), event)
	svc.Wait()

	assert.Contains(t, buf.String(), "event delivery abandoned")
}

func TestService_DispatchDoesNotBlockOnSlowSink(t *testing.T) {
	ctrl := gomock.NewController(t)
	sink := mocks.NewMockSink(ctrl)
	release := make(chan struct{})
	event := notification.NewEvent(notification.TypeReaperSwept, uuid.New())

	sink.EXPECT().Name().Return("slow").AnyTimes()
	sink.EXPECT().Publish(gomock.Any(), event).DoAndReturn(func(context.Context, notification.Event) error {
		<-release
		return nil
	})

	svc := NewService([]notification.Sink{sink}, 1, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		svc.Dispatch(context.Background(), event)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on sink")
	}
	close(release)
	svc.Wait()
}

func TestLogSink_Publish(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))
	event := notification.NewEvent(notification.TypeRequestCreated, uuid.New()).ToGroups(notification.GroupMechanics)

	assert.NoError(t, sink.Publish(context.Background(), event))
	assert.Contains(t, buf.String(), `"eventType":"request.created"`)
	assert.Contains(t, buf.String(), notification.GroupMechanics)
}
