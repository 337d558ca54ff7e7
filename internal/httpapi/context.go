package httpapi

import (
	"context"
	"time"
)

// serverBaseCtx is canceled on shutdown. Handlers derive their work contexts
// from both it and the request.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// workContext returns a context canceled when the request or the server base
// context ends, optionally bounded by timeout.
func workContext(req context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(req)
	stop := context.AfterFunc(serverBaseCtx, func() { cancel(context.Cause(serverBaseCtx)) })
	release := func() {
		stop()
		cancel(context.Canceled)
	}
	if timeout <= 0 {
		return ctx, release
	}
	tctx, tcancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		tcancel()
		release()
	}
}
