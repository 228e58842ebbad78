package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/entity"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/domain/port"
	"github.com/yash6967/BuyWhatYouSee-V01/internal/infra/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// RetailCredentials is the sign-in pair for the retail site, injected
// from configuration. The values are opaque here and never logged.
type RetailCredentials struct {
	Email    string
	Password string
}

// RetailSelectors names the page controls the automation looks for.
// None of them are stable; a missing control within the wait window is
// the expected failure mode, not a crash.
type RetailSelectors struct {
	EmailField      string
	PasswordField   string
	SignInSubmit    string
	ContinueButton  string
	BuyNow          string
	AddToCart       string
	ProceedCheckout string
}

// CheckoutUseCase drives one purchase attempt through the checkout
// state machine. Every attempt gets a fresh browser session, released
// on both terminal states; a failed session is never resumed, since
// retail navigation is not idempotent.
type CheckoutUseCase struct {
	browsers  port.BrowserFactory
	repo      port.CheckoutRepository
	publisher port.ResultPublisher
	dlq       port.DLQPublisher
	logger    *zap.Logger
	cfg       CheckoutConfig
}

type CheckoutConfig struct {
	SignInURL   string
	Credentials RetailCredentials
	Selectors   RetailSelectors
	StepTimeout time.Duration
}

func NewCheckoutUseCase(
	browsers port.BrowserFactory,
	repo port.CheckoutRepository,
	publisher port.ResultPublisher,
	dlq port.DLQPublisher,
	logger *zap.Logger,
	cfg CheckoutConfig,
) *CheckoutUseCase {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 25 * time.Second
	}
	return &CheckoutUseCase{
		browsers:  browsers,
		repo:      repo,
		publisher: publisher,
		dlq:       dlq,
		logger:    logger,
		cfg:       cfg,
	}
}

func (uc *CheckoutUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "CheckoutUseCase.Execute")
	defer span.End()

	var msg entity.CheckoutRequestMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal checkout request", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}
	if msg.Link == "" {
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "empty_link")
		return nil
	}

	span.SetAttributes(
		attribute.String("checkout.run_id", msg.RunID.String()),
		attribute.String("checkout.link", msg.Link),
	)

	log := uc.logger.With(
		zap.String("run_id", msg.RunID.String()),
		zap.String("link", msg.Link),
	)

	session := entity.NewCheckoutSession(msg.Link, "retail_login")
	uc.drive(ctx, session, log)

	outcome := "failed"
	if session.Succeeded() {
		outcome = "completed"
	}
	metrics.CheckoutSessionsTotal.WithLabelValues(outcome).Inc()

	if err := uc.repo.SaveSession(ctx, msg.RunID, session); err != nil {
		log.Error("failed to save checkout session", zap.Error(err))
	}

	uc.publishOutcome(ctx, msg, session, log)

	log.Info("checkout session finished",
		zap.String("session_id", session.ID.String()),
		zap.String("state", string(session.State)),
		zap.String("failure_reason", session.FailureReason),
	)

	// A failed purchase is a reported outcome, not a queue error: the
	// message must not be redelivered into a second blind attempt.
	return nil
}

// drive walks the session through the state machine. The browser is
// released on every path out.
func (uc *CheckoutUseCase) drive(ctx context.Context, session *entity.CheckoutSession, log *zap.Logger) {
	browser, err := uc.browsers.NewSession(ctx)
	if err != nil {
		log.Error("browser session start failed", zap.Error(err))
		session.Fail(entity.FailureSessionStart)
		return
	}
	defer browser.Close()

	if err := uc.authenticate(ctx, session, browser, log); err != nil {
		return
	}
	if err := uc.navigate(ctx, session, browser, log); err != nil {
		return
	}
	if err := uc.purchase(ctx, session, browser, log); err != nil {
		return
	}
	uc.confirm(ctx, session, browser, log)
}

func (uc *CheckoutUseCase) authenticate(ctx context.Context, session *entity.CheckoutSession, browser port.BrowserSession, log *zap.Logger) error {
	if err := session.Advance(entity.CheckoutStateAuthenticating); err != nil {
		session.Fail(err.Error())
		return err
	}

	if err := browser.Navigate(ctx, uc.cfg.SignInURL); err != nil {
		log.Warn("sign-in page navigation failed", zap.Error(err))
		session.Fail(entity.FailureNavigation)
		return err
	}

	sel := uc.cfg.Selectors
	if err := browser.WaitVisible(ctx, sel.EmailField, uc.cfg.StepTimeout); err != nil {
		log.Warn("email field not found", zap.Error(err))
		session.Fail(entity.FailureAuthElementNotFound)
		return err
	}
	if err := browser.SendKeys(ctx, sel.EmailField, uc.cfg.Credentials.Email); err != nil {
		session.Fail(entity.FailureAuthElementNotFound)
		return err
	}
	// Some sign-in flows split email and password across pages.
	if sel.ContinueButton != "" {
		if err := browser.Click(ctx, sel.ContinueButton); err != nil {
			log.Debug("no continue button, assuming single-page sign-in")
		}
	}
	if err := browser.WaitVisible(ctx, sel.PasswordField, uc.cfg.StepTimeout); err != nil {
		log.Warn("password field not found", zap.Error(err))
		session.Fail(entity.FailureAuthElementNotFound)
		return err
	}
	if err := browser.SendKeys(ctx, sel.PasswordField, uc.cfg.Credentials.Password); err != nil {
		session.Fail(entity.FailureAuthElementNotFound)
		return err
	}
	if err := browser.Click(ctx, sel.SignInSubmit); err != nil {
		log.Warn("sign-in submit not found", zap.Error(err))
		session.Fail(entity.FailureAuthElementNotFound)
		return err
	}
	return nil
}

func (uc *CheckoutUseCase) navigate(ctx context.Context, session *entity.CheckoutSession, browser port.BrowserSession, log *zap.Logger) error {
	if err := session.Advance(entity.CheckoutStateNavigating); err != nil {
		session.Fail(err.Error())
		return err
	}
	if err := browser.Navigate(ctx, session.Link); err != nil {
		log.Warn("product page navigation failed", zap.Error(err))
		session.Fail(entity.FailureNavigation)
		return err
	}
	return nil
}

// purchase tries Buy Now first and falls back to Add to Cart; the old
// cart-then-checkout flow and the newer buy-now flow are one machine
// with a documented fallback order.
func (uc *CheckoutUseCase) purchase(ctx context.Context, session *entity.CheckoutSession, browser port.BrowserSession, log *zap.Logger) error {
	sel := uc.cfg.Selectors

	if err := browser.WaitVisible(ctx, sel.BuyNow, uc.cfg.StepTimeout); err == nil {
		if err := session.Advance(entity.CheckoutStateBuyingNow); err != nil {
			session.Fail(err.Error())
			return err
		}
		if err := browser.Click(ctx, sel.BuyNow); err != nil {
			session.Fail(entity.FailureActionElementNotFound)
			return err
		}
		return nil
	}

	log.Debug("buy-now control not found, falling back to add-to-cart")

	if err := browser.WaitVisible(ctx, sel.AddToCart, uc.cfg.StepTimeout); err != nil {
		log.Warn("neither buy-now nor add-to-cart control found")
		session.Fail(entity.FailureActionElementNotFound)
		return err
	}
	if err := session.Advance(entity.CheckoutStateAddingToCart); err != nil {
		session.Fail(err.Error())
		return err
	}
	if err := browser.Click(ctx, sel.AddToCart); err != nil {
		session.Fail(entity.FailureActionElementNotFound)
		return err
	}
	return nil
}

func (uc *CheckoutUseCase) confirm(ctx context.Context, session *entity.CheckoutSession, browser port.BrowserSession, log *zap.Logger) {
	if err := session.Advance(entity.CheckoutStateConfirmingCheckout); err != nil {
		session.Fail(err.Error())
		return
	}

	sel := uc.cfg.Selectors
	if err := browser.WaitVisible(ctx, sel.ProceedCheckout, uc.cfg.StepTimeout); err != nil {
		log.Warn("proceed-to-checkout control not found", zap.Error(err))
		session.Fail(entity.FailureCheckoutElementNotFound)
		return
	}
	if err := browser.Click(ctx, sel.ProceedCheckout); err != nil {
		session.Fail(entity.FailureCheckoutElementNotFound)
		return
	}

	// Best-effort signal only: the proceed action was acknowledged, no
	// payment or order placement is verified.
	if err := session.Advance(entity.CheckoutStateCompleted); err != nil {
		session.Fail(err.Error())
	}
}

func (uc *CheckoutUseCase) publishOutcome(ctx context.Context, msg entity.CheckoutRequestMessage, session *entity.CheckoutSession, log *zap.Logger) {
	outcome := entity.CheckoutResultMessage{
		SessionID:      session.ID,
		RunID:          msg.RunID,
		UserID:         msg.UserID,
		Link:           msg.Link,
		State:          session.State,
		Succeeded:      session.Succeeded(),
		FailureReason:  session.FailureReason,
		FrameIndex:     msg.FrameIndex,
		CandidateIndex: msg.CandidateIndex,
	}
	data, err := json.Marshal(outcome)
	if err != nil {
		log.Error("failed to marshal checkout outcome", zap.Error(err))
		return
	}
	if err := uc.publisher.PublishResult(ctx, data); err != nil {
		log.Error("failed to publish checkout outcome", zap.Error(err))
	}
}
