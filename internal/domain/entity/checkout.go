package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CheckoutState is one step of the purchase automation.
type CheckoutState string

const (
	CheckoutStateIdle               CheckoutState = "IDLE"
	CheckoutStateAuthenticating     CheckoutState = "AUTHENTICATING"
	CheckoutStateNavigating         CheckoutState = "NAVIGATING"
	CheckoutStateBuyingNow          CheckoutState = "BUYING_NOW"
	CheckoutStateAddingToCart       CheckoutState = "ADDING_TO_CART"
	CheckoutStateConfirmingCheckout CheckoutState = "CONFIRMING_CHECKOUT"
	CheckoutStateCompleted          CheckoutState = "COMPLETED"
	CheckoutStateFailed             CheckoutState = "FAILED"
)

// Failure reason codes for the terminal FAILED state. The retail site's
// page structure is not under our control; a control not appearing
// within its wait window is the expected failure mode.
const (
	FailureAuthElementNotFound     = "auth_element_not_found"
	FailureActionElementNotFound   = "action_element_not_found"
	FailureCheckoutElementNotFound = "checkout_element_not_found"
	FailureNavigation              = "navigation_failed"
	FailureSessionStart            = "session_start_failed"
)

// checkoutTransitions holds the only legal forward edges. FAILED is
// reachable from every non-terminal state via Fail, not listed here.
var checkoutTransitions = map[CheckoutState][]CheckoutState{
	CheckoutStateIdle:               {CheckoutStateAuthenticating},
	CheckoutStateAuthenticating:     {CheckoutStateNavigating},
	CheckoutStateNavigating:         {CheckoutStateBuyingNow, CheckoutStateAddingToCart},
	CheckoutStateBuyingNow:          {CheckoutStateConfirmingCheckout},
	CheckoutStateAddingToCart:       {CheckoutStateConfirmingCheckout},
	CheckoutStateConfirmingCheckout: {CheckoutStateCompleted},
}

// CheckoutSession is one purchase attempt against a single product
// link. Sessions are never reused across links or resumed after
// failure: retail navigation is not idempotent, so a retry is always a
// brand-new session.
type CheckoutSession struct {
	ID   uuid.UUID
	Link string
	// CredentialRef names the credential used; the secret itself never
	// lives on the session and never reaches logs.
	CredentialRef string
	State         CheckoutState
	FailureReason string
	StartedAt     time.Time
	FinishedAt    *time.Time

	visited map[CheckoutState]bool
}

func NewCheckoutSession(link, credentialRef string) *CheckoutSession {
	return &CheckoutSession{
		ID:            uuid.New(),
		Link:          link,
		CredentialRef: credentialRef,
		State:         CheckoutStateIdle,
		StartedAt:     time.Now().UTC(),
		visited:       map[CheckoutState]bool{CheckoutStateIdle: true},
	}
}

// Advance moves the session forward one state. It rejects transitions
// that are not forward edges and states that were already exited, so a
// session can never loop or move backward.
func (s *CheckoutSession) Advance(next CheckoutState) error {
	if s.Terminal() {
		return fmt.Errorf("checkout session %s is terminal (%s)", s.ID, s.State)
	}
	if s.visited[next] {
		return fmt.Errorf("checkout session %s already visited %s", s.ID, next)
	}
	for _, allowed := range checkoutTransitions[s.State] {
		if next == allowed {
			s.State = next
			s.visited[next] = true
			if next == CheckoutStateCompleted {
				now := time.Now().UTC()
				s.FinishedAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("checkout session %s: illegal transition %s -> %s", s.ID, s.State, next)
}

// Fail moves the session to the terminal FAILED state with a reason
// code. Legal from any non-terminal state.
func (s *CheckoutSession) Fail(reason string) {
	if s.Terminal() {
		return
	}
	s.State = CheckoutStateFailed
	s.FailureReason = reason
	now := time.Now().UTC()
	s.FinishedAt = &now
}

func (s *CheckoutSession) Terminal() bool {
	return s.State == CheckoutStateCompleted || s.State == CheckoutStateFailed
}

func (s *CheckoutSession) Succeeded() bool {
	return s.State == CheckoutStateCompleted
}
