package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
)

// MockDispatcher is a mock implementation of notification.Dispatcher
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, event notification.Event) {
	m.Called(ctx, event)
}

// RecordingDispatcher keeps every dispatched event for later assertions.
type RecordingDispatcher struct {
	mu     sync.Mutex
	events []notification.Event
}

func (d *RecordingDispatcher) Dispatch(_ context.Context, event notification.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
}

// Events returns a copy of the recorded events.
func (d *RecordingDispatcher) Events() []notification.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]notification.Event, len(d.events))
	copy(out, d.events)
	return out
}

// OfType returns the recorded events of one type.
func (d *RecordingDispatcher) OfType(t notification.Type) []notification.Event {
	var out []notification.Event
	for _, e := range d.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
