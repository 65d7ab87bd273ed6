// Package router dispatches decoded orchestrator messages to registered
// handlers by message kind.
package router

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/deyoyk/RankedBedwarsV2/internal/protocol"
)

// HandlerFunc processes one decoded message. Handlers run concurrently, so
// everything they touch must be safe for concurrent use.
type HandlerFunc func(ctx context.Context, msg protocol.Message)

// Router decodes frames and routes them by kind. Malformed frames and kinds
// without a handler are logged and dropped; a panicking handler is recovered
// so one bad message cannot take down the session.
type Router struct {
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// New creates an empty router.
//
// Precondition: logger must be non-nil.
func New(logger *zap.Logger) *Router {
	return &Router{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler to a message kind, replacing any previous one.
func (r *Router) Register(kind string, h HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

// Dispatch decodes a raw frame and invokes its handler.
func (r *Router) Dispatch(ctx context.Context, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			r.logger.Warn("dropping frame of unknown kind", zap.Error(err))
		} else {
			r.logger.Warn("dropping malformed frame", zap.Error(err))
		}
		return
	}

	r.mu.RLock()
	h, ok := r.handlers[msg.Type()]
	r.mu.RUnlock()
	if !ok {
		r.logger.Warn("no handler for message kind", zap.String("kind", msg.Type()))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("handler panicked",
				zap.String("kind", msg.Type()),
				zap.Any("panic", rec),
			)
		}
	}()
	h(ctx, msg)
}
