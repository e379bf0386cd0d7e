package u2f

import (
	"context"
	"log/slog"
	"sync"
)

// SupportChecker reports whether the U2F carrier is available.
type SupportChecker interface {
	IsSupported(ctx context.Context) (bool, error)
}

// SupportCheckerFunc adapts a function to the SupportChecker interface.
type SupportCheckerFunc func(ctx context.Context) (bool, error)

// IsSupported calls f.
func (f SupportCheckerFunc) IsSupported(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Descriptor identifies a carrier found by discovery. The U2F carrier is ambient,
// so there is at most one and it carries no address.
type Descriptor struct {
	Name string
}

// CarrierDescriptor is the descriptor of the U2F carrier.
var CarrierDescriptor = Descriptor{Name: "u2f"}

// EventType distinguishes discovery events.
type EventType int

const (
	// EventFound reports an available carrier.
	EventFound EventType = iota
)

// Event is delivered to Listen observers.
type Event struct {
	Type       EventType
	Descriptor Descriptor
}

// IsSupported asks checker whether the carrier is available. Errors count as "not supported".
func IsSupported(ctx context.Context, checker SupportChecker) bool {
	ok, err := checker.IsSupported(ctx)
	if err != nil {
		slog.Debug("u2f: support check failed", "error", err)
		return false
	}
	return ok
}

// List returns the available carriers: one descriptor when supported, none otherwise.
func List(ctx context.Context, checker SupportChecker) []Descriptor {
	if !IsSupported(ctx, checker) {
		return nil
	}
	return []Descriptor{CarrierDescriptor}
}

// Listen checks support in the background and calls observer once with EventFound if the
// carrier is available. Once the returned unsubscribe function returns, observer is never called.
// Unsubscribe waits for a running observer, so observer must not call it synchronously.
func Listen(ctx context.Context, checker SupportChecker, observer func(Event)) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)

	var (
		mu           sync.Mutex
		unsubscribed bool
	)

	go func() {
		if !IsSupported(ctx, checker) {
			return
		}

		mu.Lock()
		defer mu.Unlock()
		if unsubscribed {
			return
		}
		observer(Event{Type: EventFound, Descriptor: CarrierDescriptor})
	}()

	return func() {
		cancel()
		mu.Lock()
		defer mu.Unlock()
		unsubscribed = true
	}
}
