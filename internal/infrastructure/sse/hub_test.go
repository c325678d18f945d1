package sse

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenchhub/wrenchhub/internal/domain/notification"
)

func client(userID uuid.UUID, groups ...string) *notification.SSEClient {
	id := userID.String()
	return notification.NewSSEClient(uuid.NewString(), &id, groups)
}

func TestHub_PublishAddressesUsersAndGroups(t *testing.T) {
	hub := NewHub()
	customer := uuid.New()
	mechanic := uuid.New()
	bystander := uuid.New()

	c1 := client(customer)
	c2 := client(mechanic, notification.GroupMechanics)
	c3 := client(bystander)
	for _, c := range []*notification.SSEClient{c1, c2, c3} {
		hub.Register(c)
	}
	require.Equal(t, 3, hub.GetClientCount())

	ev := notification.NewEvent(notification.TypeSessionStarted, uuid.New(), customer, mechanic).
		ToGroups(notification.GroupMechanics)
	require.NoError(t, hub.Publish(context.Background(), ev))

	require.Len(t, c1.MessageChan, 1)
	assert.Len(t, c2.MessageChan, 1, "direct and group match deliver once")
	assert.Len(t, c3.MessageChan, 0)

	msg := <-c1.MessageChan
	assert.Equal(t, string(notification.TypeSessionStarted), msg.Event)
	var decoded notification.Event
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
}

func TestHub_FullChannelDropsEvent(t *testing.T) {
	hub := NewHub()
	user := uuid.New()
	c := client(user)
	hub.Register(c)

	for i := 0; i < cap(c.MessageChan)+5; i++ {
		require.NoError(t, hub.Publish(context.Background(), notification.NewEvent(notification.TypeSessionExtended, uuid.New(), user)))
	}
	assert.Len(t, c.MessageChan, cap(c.MessageChan))
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	hub := NewHub()
	c := client(uuid.New())
	hub.Register(c)
	hub.Unregister(c.ClientID)

	_, open := <-c.MessageChan
	assert.False(t, open)
	assert.Equal(t, 0, hub.GetClientCount())
}
