// Package bus provides the in-process publish/subscribe channel connecting
// HSP components inside one node. Channels are exact strings; wildcard
// matching belongs to the external transport's topic conventions, not here.
package bus

import (
	"log/slog"
	"sync"
)

// Handler consumes a message published on a channel.
type Handler func(message any)

// DeliveryMode controls how a subscriber's handler is invoked.
type DeliveryMode int

const (
	// DeliverSync invokes the handler inline during Publish, preserving
	// the publisher's ordering across successive publishes.
	DeliverSync DeliveryMode = iota
	// DeliverAsync schedules the handler as a fire-and-forget goroutine.
	// Publish does not wait for it and no ordering is guaranteed.
	DeliverAsync
)

// Subscription is the handle returned by Subscribe, used to unsubscribe.
type Subscription struct {
	channel string
	mode    DeliveryMode
	handler Handler
}

// Bus is the internal message bus. A handler that panics is isolated and
// logged; remaining handlers still run.
type Bus struct {
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[string][]*Subscription
}

// New creates an empty bus. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:   logger.With("component", "internal_bus"),
		channels: make(map[string][]*Subscription),
	}
}

// Subscribe registers a synchronous handler on a channel. Subscribing to a
// channel with no current subscribers is valid.
func (b *Bus) Subscribe(channel string, handler Handler) *Subscription {
	return b.subscribe(channel, handler, DeliverSync)
}

// SubscribeAsync registers a handler invoked on its own goroutine per
// delivery. The publisher never blocks on it.
func (b *Bus) SubscribeAsync(channel string, handler Handler) *Subscription {
	return b.subscribe(channel, handler, DeliverAsync)
}

func (b *Bus) subscribe(channel string, handler Handler, mode DeliveryMode) *Subscription {
	sub := &Subscription{channel: channel, mode: mode, handler: handler}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels[channel] = append(b.channels[channel], sub)
	return sub
}

// Unsubscribe removes a subscription. Unknown subscriptions are ignored.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.channels[sub.channel]
	for i, s := range subs {
		if s == sub {
			b.channels[sub.channel] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.channels[sub.channel]) == 0 {
		delete(b.channels, sub.channel)
	}
}

// Publish delivers a message to every subscriber of the exact channel.
// Sync handlers run inline in registration order; async handlers are
// scheduled and not awaited. A failing handler never prevents the rest
// from being invoked.
func (b *Bus) Publish(channel string, message any) {
	b.mu.RLock()
	subs := make([]*Subscription, len(b.channels[channel]))
	copy(subs, b.channels[channel])
	b.mu.RUnlock()

	for _, sub := range subs {
		switch sub.mode {
		case DeliverAsync:
			go b.invoke(channel, sub.handler, message)
		default:
			b.invoke(channel, sub.handler, message)
		}
	}
}

// SubscriberCount returns the number of subscribers on a channel.
func (b *Bus) SubscriberCount(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.channels[channel])
}

func (b *Bus) invoke(channel string, handler Handler, message any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panic isolated",
				"channel", channel,
				"panic", r)
		}
	}()
	handler(message)
}
