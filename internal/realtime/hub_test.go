package realtime

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// loopbackBus is an in-process stand-in for Redis pub/sub. Like Redis, it
// echoes every publish back to all subscribers, the publisher's own included.
type loopbackBus struct {
	handlers   map[uuid.UUID]func(event string, payload []byte)
	publishErr error
	published  int
}

func newLoopbackBus() *loopbackBus {
	return &loopbackBus{handlers: make(map[uuid.UUID]func(event string, payload []byte))}
}

func (b *loopbackBus) PublishSessionEvent(sessionID uuid.UUID, event string, payload []byte) error {
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published++
	if h, ok := b.handlers[sessionID]; ok {
		h(event, payload)
	}
	return nil
}

func (b *loopbackBus) SubscribeSession(sessionID uuid.UUID, handler func(event string, payload []byte)) (func(), error) {
	b.handlers[sessionID] = handler
	return func() { delete(b.handlers, sessionID) }, nil
}

func watcher(sessionID uuid.UUID) *Client {
	return &Client{ID: uuid.New().String(), SessionID: sessionID, send: make(chan WSMessage, 8)}
}

func TestPublishDeliversOnce(t *testing.T) {
	sessionID := uuid.New()
	bus := newLoopbackBus()
	hub := NewHub(zap.NewNop(), bus, bus)

	c := watcher(sessionID)
	hub.Register(c)

	hub.Publish(sessionID, EventReactionAdded, map[string]string{"emoji": "🔥"})

	assert.Equal(t, 1, bus.published)
	assert.Equal(t, 1, len(c.send))
	msg := <-c.send
	assert.Equal(t, EventReactionAdded, msg.Event)
}

func TestPublishWithoutRedisBroadcastsLocally(t *testing.T) {
	sessionID := uuid.New()
	hub := NewHub(zap.NewNop(), nil, nil)

	c := watcher(sessionID)
	hub.Register(c)

	hub.Publish(sessionID, EventSessionEnded, map[string]string{"reason": "done"})

	assert.Equal(t, 1, len(c.send))
}

func TestPublishFallsBackWhenPublishFails(t *testing.T) {
	sessionID := uuid.New()
	bus := newLoopbackBus()
	bus.publishErr = errors.New("connection refused")
	hub := NewHub(zap.NewNop(), bus, bus)

	c := watcher(sessionID)
	hub.Register(c)

	hub.Publish(sessionID, EventSessionStarted, map[string]string{"stream_url": "u"})

	assert.Equal(t, 1, len(c.send))
}

func TestUnregisterCancelsSubscription(t *testing.T) {
	sessionID := uuid.New()
	bus := newLoopbackBus()
	hub := NewHub(zap.NewNop(), bus, bus)

	c := watcher(sessionID)
	hub.Register(c)
	assert.Equal(t, 1, hub.WatcherCount(sessionID))

	hub.Unregister(c)
	assert.Equal(t, 0, hub.WatcherCount(sessionID))
	_, subscribed := bus.handlers[sessionID]
	assert.False(t, subscribed)
}
