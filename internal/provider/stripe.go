package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/balancetransaction"
	"github.com/stripe/stripe-go/v82/transfer"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

// StripeClient talks to Stripe Connect with the platform secret key.
type StripeClient struct {
	log      *zap.Logger
	currency string
}

func NewStripeClient(cfg config.Config, log *zap.Logger) *StripeClient {
	stripe.Key = cfg.Stripe.SecretKey
	return &StripeClient{
		log:      log.Named("provider.stripe"),
		currency: cfg.Stripe.Currency,
	}
}

func (c *StripeClient) CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = c.currency
	}
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(ToMinorUnits(req.Amount)),
		Currency:    stripe.String(currency),
		Destination: stripe.String(req.Destination),
		Metadata:    req.Metadata,
	}
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	t, err := transfer.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			c.log.Warn("stripe transfer rejected",
				zap.String("code", string(stripeErr.Code)),
				zap.String("destination", req.Destination),
				zap.String("idempotency_key", req.IdempotencyKey),
			)
			return nil, errs.Detail(ErrTransferRejected, "%s: %s", stripeErr.Code, stripeErr.Msg)
		}
		return nil, err
	}
	return &Transfer{
		ID:       t.ID,
		Amount:   FromMinorUnits(t.Amount),
		Currency: string(t.Currency),
	}, nil
}

// PayoutTransferIDs walks the balance transactions of a payout and collects
// the transfers that funded it.
func (c *StripeClient) PayoutTransferIDs(ctx context.Context, account, payoutID string) ([]string, error) {
	params := &stripe.BalanceTransactionListParams{
		Payout: stripe.String(payoutID),
	}
	params.Context = ctx
	params.AddExpand("data.source")
	if account != "" {
		params.SetStripeAccount(account)
	}

	seen := make(map[string]struct{})
	var ids []string
	iter := balancetransaction.List(params)
	for iter.Next() {
		id := transferIDOf(iter.BalanceTransaction())
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func transferIDOf(bt *stripe.BalanceTransaction) string {
	if bt == nil || bt.Source == nil {
		return ""
	}
	if bt.Source.Transfer != nil {
		return bt.Source.Transfer.ID
	}
	// Destination charges on the connected account point back at the
	// platform transfer.
	if bt.Source.Charge != nil && bt.Source.Charge.SourceTransfer != nil {
		return bt.Source.Charge.SourceTransfer.ID
	}
	if bt.Source.Type == stripe.BalanceTransactionSourceTypeTransfer {
		return bt.Source.ID
	}
	return ""
}

// StripeVerifier checks the Stripe-Signature header against the endpoint secret.
type StripeVerifier struct {
	secret string
}

func NewStripeVerifier(cfg config.Config) *StripeVerifier {
	return &StripeVerifier{secret: cfg.Stripe.WebhookSecret}
}

func (v *StripeVerifier) Verify(payload []byte, signatureHeader string) (*Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, errs.Detail(ErrInvalidSignature, "missing signature header")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errs.Detail(ErrInvalidSignature, "%v", err)
	}

	out := &Event{
		ID:         event.ID,
		Type:       string(event.Type),
		APIVersion: event.APIVersion,
		Account:    event.Account,
		Livemode:   event.Livemode,
		Created:    time.Unix(event.Created, 0).UTC(),
		Raw:        payload,
	}
	if event.Data != nil {
		out.Object = event.Data.Raw
	}
	return out, nil
}
