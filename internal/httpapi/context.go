package httpapi

import (
	"context"
	"net/http"
)

// baseCtx is the process-wide lifetime handlers fold into each request so a
// shutdown aborts in-flight turns. Background until installed.
var baseCtx context.Context = context.Background()

// SetBaseContext installs the process context. nil resets to Background.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	baseCtx = ctx
}

// requestCtx derives a context from the request that is additionally
// cancelled when the process context ends. Callers must call the returned
// cancel func when the handler returns.
func requestCtx(r *http.Request) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	stop := context.AfterFunc(baseCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
