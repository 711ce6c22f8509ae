// pkg/browser/cdp/context.go
package cdp

import (
	"context"
)

// combineContext returns a context carrying the values of target (the chromedp
// context of a tab or of the browser) that is canceled when either target or op
// is done. op contributes only its cancellation and deadline.
func combineContext(target, op context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(target)
	if deadline, ok := op.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		ctx, cancelDeadline = context.WithDeadline(ctx, deadline)
		inner := cancel
		cancel = func() {
			cancelDeadline()
			inner()
		}
	}
	stop := context.AfterFunc(op, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
