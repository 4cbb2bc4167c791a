// Package events carries post-commit domain events from the wiki service to its
// subscribers. Delivery is synchronous and best effort: a subscriber failure is
// logged and reported but never propagated to the publisher.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	applog "wikilinks/app/internal/log"
)

// Event is a domain fact published after the change it describes has committed.
type Event interface {
	EventName() string
}

// Keyed events expose a partition key for external sinks.
type Keyed interface {
	EventKey() string
}

// Handler reacts to a published event.
type Handler func(ctx context.Context, event Event) error

// Publisher publishes events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type subscription struct {
	name    string
	handler Handler
}

// Bus dispatches events to subscribers in registration order.
type Bus struct {
	mu     sync.RWMutex
	byName map[string][]subscription
	all    []subscription
	logger *logrus.Entry
	hub    *sentry.Hub
}

var _ Publisher = (*Bus)(nil)

// NewBus constructs an empty bus.
func NewBus(logger *logrus.Logger, hub *sentry.Hub) *Bus {
	return &Bus{
		byName: make(map[string][]subscription),
		logger: applog.Component(logger, "events.bus"),
		hub:    hub,
	}
}

// Subscribe registers handler for events named eventName.
func (b *Bus) Subscribe(eventName, subscriber string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.byName[eventName] = append(b.byName[eventName], subscription{name: subscriber, handler: handler})
}

// SubscribeAll registers handler for every event.
func (b *Bus) SubscribeAll(subscriber string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.all = append(b.all, subscription{name: subscriber, handler: handler})
}

// Publish delivers event to every matching subscriber.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event == nil {
		return
	}

	b.mu.RLock()
	targets := make([]subscription, 0, len(b.byName[event.EventName()])+len(b.all))
	targets = append(targets, b.byName[event.EventName()]...)
	targets = append(targets, b.all...)
	b.mu.RUnlock()

	for _, sub := range targets {
		b.deliver(ctx, sub, event)
	}
}

func (b *Bus) deliver(ctx context.Context, sub subscription, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			b.report(ctx, sub, event, eris.New(fmt.Sprintf("subscriber panic: %v", rec)))
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		b.report(ctx, sub, event, err)
	}
}

func (b *Bus) report(ctx context.Context, sub subscription, event Event, err error) {
	b.logger.WithFields(logrus.Fields{
		"event":      event.EventName(),
		"subscriber": sub.name,
		"error":      err.Error(),
	}).Error("event subscriber failed")

	applog.Capture(ctx, b.hub, err)
}
