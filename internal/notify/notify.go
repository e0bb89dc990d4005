// Package notify carries user-facing outcome notices from the billing core to
// whatever presents them.
package notify

import (
	"context"
	"log/slog"
	"sync"
)

// Kind is the severity of a notice.
type Kind string

const (
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
)

// Notice is a presentation-neutral outcome message.
type Notice struct {
	Kind    Kind   `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Success builds a success notice.
func Success(title, message string) Notice {
	return Notice{Kind: KindSuccess, Title: title, Message: message}
}

// Warning builds a warning notice.
func Warning(title, message string) Notice {
	return Notice{Kind: KindWarning, Title: title, Message: message}
}

// Failure builds an error notice from err.
func Failure(title string, err error) Notice {
	return Notice{Kind: KindError, Title: title, Message: err.Error()}
}

// Handler receives published notices.
type Handler func(ctx context.Context, n Notice)

// Bus fans notices out to subscribers. The zero value is ready to use and a
// nil *Bus drops everything.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]Handler
	logger *slog.Logger
}

// NewBus creates a Bus that logs every published notice.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs == nil {
		b.subs = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers n to every subscriber synchronously.
func (b *Bus) Publish(ctx context.Context, n Notice) {
	if b == nil {
		return
	}
	if b.logger != nil {
		b.logger.DebugContext(ctx, "notice", "kind", n.Kind, "title", n.Title)
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, n)
	}
}
