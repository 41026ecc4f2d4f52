package provider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82"
)

func sign(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

const payoutEvent = `{
  "id": "evt_123",
  "object": "event",
  "type": "payout.paid",
  "api_version": "2020-08-27",
  "account": "acct_1",
  "livemode": false,
  "created": 1767225600,
  "data": {"object": {"id": "po_1", "object": "payout", "status": "paid"}}
}`

func TestStripeVerifierAcceptsSignedPayload(t *testing.T) {
	v := NewStripeVerifier(config.Config{Stripe: config.StripeConfig{WebhookSecret: "whsec_test"}})
	payload := []byte(payoutEvent)

	event, err := v.Verify(payload, sign(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_123", event.ID)
	assert.Equal(t, "payout.paid", event.Type)
	assert.Equal(t, "acct_1", event.Account)
	assert.Contains(t, string(event.Object), `"po_1"`)
}

func TestStripeVerifierRejectsBadSignatures(t *testing.T) {
	v := NewStripeVerifier(config.Config{Stripe: config.StripeConfig{WebhookSecret: "whsec_test"}})
	payload := []byte(payoutEvent)

	_, err := v.Verify(payload, "")
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	_, err = v.Verify(payload, sign(payload, "whsec_other", time.Now()))
	assert.True(t, errors.Is(err, ErrInvalidSignature))

	_, err = v.Verify(payload, sign(payload, "whsec_test", time.Now().Add(-time.Hour)))
	assert.True(t, errors.Is(err, ErrInvalidSignature))
}

func TestMinorUnits(t *testing.T) {
	assert.EqualValues(t, 300000, ToMinorUnits(decimal.NewFromInt(3000)))
	assert.EqualValues(t, 1999, ToMinorUnits(decimal.RequireFromString("19.99")))
	assert.True(t, FromMinorUnits(1050).Equal(decimal.RequireFromString("10.50")))
}

func TestTransferIDOf(t *testing.T) {
	assert.Equal(t, "tr_1", transferIDOf(&stripe.BalanceTransaction{
		Source: &stripe.BalanceTransactionSource{Transfer: &stripe.Transfer{ID: "tr_1"}},
	}))
	assert.Equal(t, "tr_2", transferIDOf(&stripe.BalanceTransaction{
		Source: &stripe.BalanceTransactionSource{Charge: &stripe.Charge{SourceTransfer: &stripe.Transfer{ID: "tr_2"}}},
	}))
	assert.Equal(t, "", transferIDOf(&stripe.BalanceTransaction{
		Source: &stripe.BalanceTransactionSource{Type: "payout", ID: "po_1"},
	}))
	assert.Equal(t, "", transferIDOf(nil))
}
