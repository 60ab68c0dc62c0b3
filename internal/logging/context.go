package logging

import (
	"context"
	"time"
)

// DetachContext returns a context that outlives the cancellation of parent
// while keeping its values. Use it for bookkeeping writes that must finish
// after the turn that triggered them has been cancelled.
func DetachContext(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// DetachContextWithTimeout is DetachContext with its own deadline.
//
//	ctx, cancel := logging.DetachContextWithTimeout(ctx, 5*time.Second)
//	defer cancel()
//	err := store.Record(ctx, turn)
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
