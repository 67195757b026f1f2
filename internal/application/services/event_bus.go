package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/digi-serve/ab-service-definition-manager/internal/domain/events"
	"github.com/digi-serve/ab-service-definition-manager/internal/domain/ports"
)

// EventType is an alias to the domain type
type EventType = events.EventType

// PlatformEvent is what stream subscribers receive.
type PlatformEvent struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp int64       `json:"timestamp"`
}

// EventHandler is a function that handles an event.
type EventHandler = ports.EventHandler

type subscription struct {
	id      uint64
	handler EventHandler
}

// EventBus manages the in-process publish-subscribe system.
// It implements ports.EventPublisher interface.
type EventBus struct {
	handlers map[EventType][]subscription
	nextID   uint64
	mu       sync.RWMutex
}

// Ensure EventBus implements ports.EventPublisher at compile time
var _ ports.EventPublisher = (*EventBus)(nil)

// NewEventBus creates a new EventBus instance
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]subscription),
	}
}

// Subscribe registers a handler for a specific event type
// Returns an unsubscribe function
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) func() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.nextID++
	id := eb.nextID
	eb.handlers[eventType] = append(eb.handlers[eventType], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()

			subs := eb.handlers[eventType]
			for i, s := range subs {
				if s.id == id {
					eb.handlers[eventType] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
		})
	}
}

// Publish publishes an event to all registered handlers. Every handler
// runs; the first error is returned.
func (eb *EventBus) Publish(ctx context.Context, eventType EventType, payload interface{}) error {
	eb.mu.RLock()
	subs := eb.handlers[eventType]
	eb.mu.RUnlock()

	var firstErr error
	for _, s := range subs {
		if err := s.handler(ctx, payload); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("EventBus handler error for %s: %w", eventType, err)
		}
	}
	return firstErr
}

// PublishAsync publishes an event asynchronously
func (eb *EventBus) PublishAsync(eventType EventType, payload interface{}) {
	go func() {
		// Async events are decoupled from the request that caused them.
		if err := eb.Publish(context.Background(), eventType, payload); err != nil {
			log.Printf("EventBus async publish error: %v", err)
		}
	}()
}

// Stream subscribes to every given event type and delivers events on the
// returned channel until ctx is done. Slow readers drop events rather than
// block publishers.
func (eb *EventBus) Stream(ctx context.Context, buffer int, types ...EventType) <-chan PlatformEvent {
	ch := make(chan PlatformEvent, buffer)
	var (
		mu     sync.Mutex
		closed bool
	)
	unsubs := make([]func(), 0, len(types))
	for _, t := range types {
		eventType := t
		unsubs = append(unsubs, eb.Subscribe(eventType, func(_ context.Context, payload interface{}) error {
			mu.Lock()
			defer mu.Unlock()
			if closed {
				return nil
			}
			select {
			case ch <- PlatformEvent{Type: eventType, Payload: payload, Timestamp: time.Now().Unix()}:
			default:
				log.Printf("⚠️ Event stream full, dropping %s", eventType)
			}
			return nil
		}))
	}

	go func() {
		<-ctx.Done()
		for _, u := range unsubs {
			u()
		}
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}

// Clear removes all handlers (useful for testing)
func (eb *EventBus) Clear() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers = make(map[EventType][]subscription)
}
