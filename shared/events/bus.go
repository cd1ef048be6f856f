/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
)

// Handler processes events of type T.
type Handler[T Event] func(ctx context.Context, event T) error

// dispatchFunc is a Handler with its event type erased.
type dispatchFunc func(ctx context.Context, event Event) error

// EventBus delivers token and secret events to subscribed handlers.
// It is safe for concurrent use. A nil *EventBus drops every event, so a
// Store without a bus publishes unconditionally.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]dispatchFunc
	logger   logr.Logger
}

// NewEventBus creates an empty bus.
func NewEventBus(logger logr.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[string][]dispatchFunc),
		logger:   logger,
	}
}

// Subscribe registers handler for events of type T. Handlers for the same
// type run in subscription order.
func Subscribe[T Event](bus *EventBus, handler Handler[T]) {
	var zero T
	eventType := zero.Type()

	dispatch := func(ctx context.Context, event Event) error {
		e, ok := event.(T)
		if !ok {
			return fmt.Errorf("event %s delivered as %T", eventType, event)
		}
		return handler(ctx, e)
	}

	bus.mu.Lock()
	bus.handlers[eventType] = append(bus.handlers[eventType], dispatch)
	bus.mu.Unlock()

	bus.logger.V(1).Info("handler subscribed", "eventType", eventType)
}

// Publish calls every handler subscribed to the event's type, in order and
// on the caller's goroutine. A failing handler does not stop the others;
// the last handler error is returned.
func (b *EventBus) Publish(ctx context.Context, event Event) error {
	if b == nil {
		return nil
	}

	b.mu.RLock()
	handlers := b.handlers[event.Type()]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}
	b.logger.V(1).Info("publishing event", "eventType", event.Type(), "handlers", len(handlers))

	var lastErr error
	for i, dispatch := range handlers {
		if err := dispatch(ctx, event); err != nil {
			b.logger.Error(err, "event handler failed", "eventType", event.Type(), "handler", i)
			lastErr = err
		}
	}
	return lastErr
}
