package provider

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/errs"
)

const NameStripe = "stripe"

var (
	ErrInvalidSignature = errs.New(errs.KindUnauthorized, "invalid_signature")
	ErrTransferRejected = errs.New(errs.KindTransient, "transfer_rejected")
)

// TransferRequest moves funds from the platform balance to a connected account.
type TransferRequest struct {
	Amount         decimal.Decimal
	Currency       string
	Destination    string
	TransferGroup  string
	IdempotencyKey string
	Metadata       map[string]string
}

type Transfer struct {
	ID       string
	Amount   decimal.Decimal
	Currency string
}

// Event is a verified provider callback.
type Event struct {
	ID         string
	Type       string
	APIVersion string
	Account    string
	Livemode   bool
	Created    time.Time
	Object     json.RawMessage
	Raw        []byte
}

//go:generate mockgen -source=provider.go -destination=./mocks/mock_provider.go -package=mocks

// Client is the money movement capability of the payment provider.
type Client interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	// PayoutTransferIDs lists the transfers settled by a payout on a
	// connected account.
	PayoutTransferIDs(ctx context.Context, account, payoutID string) ([]string, error)
}

// Verifier authenticates inbound callbacks.
type Verifier interface {
	Verify(payload []byte, signatureHeader string) (*Event, error)
}

// ToMinorUnits converts a decimal amount to cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
