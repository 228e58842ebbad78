package port

import (
	"context"
	"time"
)

// BrowserSession is one live automation session against the retail
// site. Every wait is bounded; "not found within the timeout" is the
// normal failure signal for an unstable external UI, surfaced as an
// error from the waiting call.
type BrowserSession interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	SendKeys(ctx context.Context, selector, value string) error
	Click(ctx context.Context, selector string) error
	Close() error
}

// BrowserFactory opens a fresh session per checkout attempt. Sessions
// are exclusive to one attempt and never shared or reused.
type BrowserFactory interface {
	NewSession(ctx context.Context) (BrowserSession, error)
}
