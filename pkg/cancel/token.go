package cancel

import (
	"errors"
	"sync/atomic"
)

// ErrCancelled is returned by Check once the token has been cancelled.
var ErrCancelled = errors.New("operation cancelled")

// Token is a shared, read-only cancellation flag. Long operations receive
// one and call Check at their suspension points; cancellation is always
// cooperative, never delivered asynchronously.
type Token struct {
	cancelled atomic.Bool
}

// NewToken returns an uncancelled token.
func NewToken() *Token {
	return &Token{}
}

// Cancel flips the flag. Idempotent.
func (t *Token) Cancel() {
	t.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t.cancelled.Load()
}

// Check returns ErrCancelled once the token is cancelled, nil otherwise.
func (t *Token) Check() error {
	if t.cancelled.Load() {
		return ErrCancelled
	}
	return nil
}
