// internal/browser/context.go
package browser

import (
	"context"
	"sync"
)

// CombineContext derives a context from the chromedp session context
// that is also canceled when the caller's operation context ends.
// chromedp actions must run on the session context chain, so the
// operation context cannot simply be passed through.
func CombineContext(sessionCtx, opCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(sessionCtx)

	stop := make(chan struct{})
	go func() {
		select {
		case <-opCtx.Done():
			cancel()
		case <-ctx.Done():
		case <-stop:
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() { close(stop) })
		cancel()
	}
}
