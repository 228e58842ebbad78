package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/port"
	"go.uber.org/zap"
)

// Factory opens chromedp-backed sessions. Each checkout attempt gets
// its own browser context; nothing is shared between attempts.
type Factory struct {
	headless bool
	logger   *zap.Logger
}

func NewFactory(headless bool, logger *zap.Logger) *Factory {
	return &Factory{headless: headless, logger: logger}
}

func (f *Factory) NewSession(ctx context.Context) (port.BrowserSession, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.headless),
		chromedp.Flag("disable-gpu", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	// Start the browser up front so a broken environment fails the
	// session here, not mid-checkout.
	if err := chromedp.Run(taskCtx); err != nil {
		taskCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	f.logger.Debug("browser session started")

	return &session{
		ctx:     taskCtx,
		cancels: []context.CancelFunc{taskCancel, allocCancel},
	}, nil
}

type session struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

func (s *session) Navigate(ctx context.Context, url string) error {
	return chromedp.Run(s.ctx, chromedp.Navigate(url))
}

func (s *session) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %q: %w", selector, err)
	}
	return nil
}

func (s *session) SendKeys(ctx context.Context, selector, value string) error {
	return chromedp.Run(s.ctx, chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (s *session) Click(ctx context.Context, selector string) error {
	return chromedp.Run(s.ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (s *session) Close() error {
	for _, cancel := range s.cancels {
		cancel()
	}
	return nil
}
