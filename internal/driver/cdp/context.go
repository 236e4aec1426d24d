package cdp

import "context"

// callContext scopes a protocol call to one tab. The result carries the tab's
// values (chromedp looks its target up there) and ends with whichever of tab
// and call ends first. When the call ends first, its cause is kept so a
// deadline is reported as a deadline and not as a closed tab.
func callContext(tab, call context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(tab)
	stop := context.AfterFunc(call, func() { cancel(context.Cause(call)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// launchContext lets the browser process outlive the Open call that started
// it. Only the values of ctx survive.
func launchContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
