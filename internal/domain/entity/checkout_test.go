package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckoutSessionHappyPathBuyNow(t *testing.T) {
	s := NewCheckoutSession("https://www.amazon.in/dp/B0TEST", "retail_login")
	assert.Equal(t, CheckoutStateIdle, s.State)

	require.NoError(t, s.Advance(CheckoutStateAuthenticating))
	require.NoError(t, s.Advance(CheckoutStateNavigating))
	require.NoError(t, s.Advance(CheckoutStateBuyingNow))
	require.NoError(t, s.Advance(CheckoutStateConfirmingCheckout))
	require.NoError(t, s.Advance(CheckoutStateCompleted))

	assert.True(t, s.Terminal())
	assert.True(t, s.Succeeded())
	require.NotNil(t, s.FinishedAt)
}

func TestCheckoutSessionAddToCartFallback(t *testing.T) {
	s := NewCheckoutSession("https://www.flipkart.com/p/test", "retail_login")

	require.NoError(t, s.Advance(CheckoutStateAuthenticating))
	require.NoError(t, s.Advance(CheckoutStateNavigating))
	require.NoError(t, s.Advance(CheckoutStateAddingToCart))
	require.NoError(t, s.Advance(CheckoutStateConfirmingCheckout))
	require.NoError(t, s.Advance(CheckoutStateCompleted))

	assert.True(t, s.Succeeded())
}

func TestCheckoutSessionRejectsSkippedStates(t *testing.T) {
	s := NewCheckoutSession("link", "ref")

	err := s.Advance(CheckoutStateNavigating)
	require.Error(t, err)
	assert.Equal(t, CheckoutStateIdle, s.State)

	err = s.Advance(CheckoutStateCompleted)
	require.Error(t, err)
	assert.Equal(t, CheckoutStateIdle, s.State)
}

func TestCheckoutSessionNeverMovesBackward(t *testing.T) {
	s := NewCheckoutSession("link", "ref")
	require.NoError(t, s.Advance(CheckoutStateAuthenticating))
	require.NoError(t, s.Advance(CheckoutStateNavigating))

	err := s.Advance(CheckoutStateAuthenticating)
	require.Error(t, err)
	assert.Equal(t, CheckoutStateNavigating, s.State)
}

func TestCheckoutSessionFailIsTerminal(t *testing.T) {
	s := NewCheckoutSession("link", "ref")
	require.NoError(t, s.Advance(CheckoutStateAuthenticating))

	s.Fail(FailureAuthElementNotFound)
	assert.Equal(t, CheckoutStateFailed, s.State)
	assert.Equal(t, FailureAuthElementNotFound, s.FailureReason)
	assert.True(t, s.Terminal())
	assert.False(t, s.Succeeded())
	require.NotNil(t, s.FinishedAt)

	// A terminal session stays where it is.
	require.Error(t, s.Advance(CheckoutStateNavigating))
	s.Fail("other_reason")
	assert.Equal(t, FailureAuthElementNotFound, s.FailureReason)
}

func TestCheckoutSessionExactlyOneTerminalOutcome(t *testing.T) {
	s := NewCheckoutSession("link", "ref")
	require.NoError(t, s.Advance(CheckoutStateAuthenticating))
	require.NoError(t, s.Advance(CheckoutStateNavigating))
	require.NoError(t, s.Advance(CheckoutStateBuyingNow))
	require.NoError(t, s.Advance(CheckoutStateConfirmingCheckout))
	require.NoError(t, s.Advance(CheckoutStateCompleted))

	s.Fail("too_late")
	assert.Equal(t, CheckoutStateCompleted, s.State)
	assert.Empty(t, s.FailureReason)
}
