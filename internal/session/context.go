// Package session carries the per-session ambient values (identity, thread,
// trading parameters, pending attachments) explicitly through the call chain.
// Nothing here is process-global: each conversation loop owns exactly one
// Context and is its only writer.
package session

import (
	"context"
	"time"

	"github.com/tapedesk/tape/internal/types"
)

// Context is the per-session bag of ambient values. It is passed explicitly
// across call boundaries; the context.Context helpers below exist only for
// the few seams (tool executors) where a struct parameter can't be threaded.
type Context struct {
	// Token is the identity/auth token for outbound service calls
	Token string

	// SessionID is the conversation thread id (also the checkpoint key)
	SessionID string

	// Symbol, Exchange, Interval are the current trading parameters
	Symbol   string
	Exchange string
	Interval string

	// Profile is a free-form note about the user (risk tolerance, style)
	Profile string

	// Depth is the delegation recursion counter: 0 for the supervisor,
	// parent+1 for each delegated worker
	Depth int

	// Worker is the target name when this context belongs to a delegated
	// sub-conversation, empty for the supervisor
	Worker string

	// Now supplies the clock; defaults to time.Now. Injected in tests and
	// used for the delegation preamble timestamp.
	Now func() time.Time

	// pendingImages are attachments queued to ride the next user message
	pendingImages []types.Attachment
}

// New creates a supervisor-level context for a session
func New(sessionID string) *Context {
	return &Context{
		SessionID: sessionID,
		Now:       time.Now,
	}
}

// Clock returns the current time from the injected clock, in UTC
func (c *Context) Clock() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now().UTC()
}

// Snapshot captures the immutable slice of this context that gets injected
// into a delegated task's preamble.
func (c *Context) Snapshot() types.ContextSnapshot {
	return types.ContextSnapshot{
		Timestamp: c.Clock(),
		Symbol:    c.Symbol,
		Exchange:  c.Exchange,
		Interval:  c.Interval,
		Profile:   c.Profile,
	}
}

// Child derives the context for a delegated worker session: same ambient
// trading parameters and token, incremented depth, its own session id, and
// no inherited pending images.
func (c *Context) Child(worker, sessionID string) *Context {
	return &Context{
		Token:     c.Token,
		SessionID: sessionID,
		Symbol:    c.Symbol,
		Exchange:  c.Exchange,
		Interval:  c.Interval,
		Profile:   c.Profile,
		Depth:     c.Depth + 1,
		Worker:    worker,
		Now:       c.Now,
	}
}

// AttachImage queues an attachment for the next user message
func (c *Context) AttachImage(img types.Attachment) {
	c.pendingImages = append(c.pendingImages, img)
}

// TakeImages drains and returns the queued attachments
func (c *Context) TakeImages() []types.Attachment {
	imgs := c.pendingImages
	c.pendingImages = nil
	return imgs
}

type ctxKey struct{}

// WithContext attaches the session context to a context.Context
func WithContext(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext extracts the session context, or nil if absent
func FromContext(ctx context.Context) *Context {
	sc, _ := ctx.Value(ctxKey{}).(*Context)
	return sc
}
