package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/smallbiznis/placementpay/internal/billing/domain"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/smallbiznis/placementpay/internal/observability/metrics"
	"github.com/smallbiznis/placementpay/internal/provider"
	splitdomain "github.com/smallbiznis/placementpay/internal/split/domain"
	"github.com/smallbiznis/placementpay/internal/webhook/domain"
	"github.com/stripe/stripe-go/v82"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// claimTimeout is how long a processing record may sit before another
// delivery is allowed to take it over.
const claimTimeout = 5 * time.Minute

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Verifier provider.Verifier
	Provider provider.Client
	Billing  billingdomain.Service
	Splits   splitdomain.Service
	Payouts  domain.PayoutSettler
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	verifier provider.Verifier
	provider provider.Client
	billing  billingdomain.Service
	splits   splitdomain.Service
	payouts  domain.PayoutSettler
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("webhook.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		verifier: p.Verifier,
		provider: p.Provider,
		billing:  p.Billing,
		splits:   p.Splits,
		payouts:  p.Payouts,
		metrics:  p.Metrics,
	}
}

// Handle verifies, deduplicates and applies one provider delivery. A
// returned error means the provider should redeliver.
func (s *Service) Handle(ctx context.Context, payload []byte, signatureHeader string) (domain.Outcome, error) {
	event, err := s.verifier.Verify(payload, signatureHeader)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, provider.NameStripe, "", string(domain.OutcomeRejected))
		s.log.Warn("webhook signature rejected", zap.Error(err))
		return domain.OutcomeRejected, err
	}
	if strings.TrimSpace(event.ID) == "" {
		return domain.OutcomeRejected, domain.ErrMissingEventID
	}
	log := s.log.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
	)

	outcome, err := s.handle(ctx, log, event)
	s.metrics.RecordWebhookEvent(ctx, provider.NameStripe, event.Type, string(outcome))
	return outcome, err
}

func (s *Service) handle(ctx context.Context, log *zap.Logger, event *provider.Event) (domain.Outcome, error) {
	now := s.clock.Now()
	record := &domain.EventRecord{
		ID:               s.genID.Generate(),
		Provider:         provider.NameStripe,
		ProviderEventID:  event.ID,
		EventType:        event.Type,
		APIVersion:       event.APIVersion,
		Livemode:         event.Livemode,
		Payload:          datatypes.JSON(event.Raw),
		ProcessingStatus: domain.StatusPending,
		ReceivedAt:       now,
		UpdatedAt:        now,
	}
	inserted, err := s.repo.InsertIfAbsent(ctx, s.db, record)
	if err != nil {
		return domain.OutcomeFailed, err
	}
	if !inserted {
		existing, err := s.repo.FindByProviderEventID(ctx, s.db, provider.NameStripe, event.ID)
		if err != nil {
			return domain.OutcomeFailed, err
		}
		if existing == nil {
			return domain.OutcomeFailed, errs.Detail(domain.ErrMalformedEvent, "ledger row for %s vanished", event.ID)
		}
		if existing.ProcessingStatus == domain.StatusSucceeded || existing.ProcessingStatus == domain.StatusSkipped {
			log.Info("duplicate webhook delivery", zap.String("status", string(existing.ProcessingStatus)))
			return domain.OutcomeDuplicate, nil
		}
		record = existing
	}

	claimed, err := s.repo.Claim(ctx, s.db, record.ID, now.Add(-claimTimeout), now)
	if err != nil {
		return domain.OutcomeFailed, err
	}
	if claimed == 0 {
		log.Info("webhook delivery already being processed")
		return domain.OutcomeDuplicate, nil
	}

	handled, err := s.dispatch(ctx, log, event)
	if err != nil {
		msg := err.Error()
		if finishErr := s.repo.Finish(ctx, s.db, record.ID, domain.StatusFailed, &msg, s.clock.Now()); finishErr != nil {
			log.Error("failed to record webhook failure", zap.Error(finishErr))
		}
		log.Warn("webhook handler failed", zap.Error(err))
		return domain.OutcomeFailed, err
	}

	status, outcome := domain.StatusSucceeded, domain.OutcomeProcessed
	if !handled {
		status, outcome = domain.StatusSkipped, domain.OutcomeSkipped
	}
	if err := s.repo.Finish(ctx, s.db, record.ID, status, nil, s.clock.Now()); err != nil {
		return domain.OutcomeFailed, err
	}
	log.Info("webhook reconciled", zap.String("outcome", string(outcome)))
	return outcome, nil
}

// dispatch reports false for event types the engine does not track.
func (s *Service) dispatch(ctx context.Context, log *zap.Logger, event *provider.Event) (bool, error) {
	switch {
	case strings.HasPrefix(event.Type, "customer.subscription."):
		return true, s.applySubscription(ctx, event)
	case strings.HasPrefix(event.Type, "invoice."):
		return true, s.applyInvoice(ctx, event)
	case event.Type == "account.updated":
		return true, s.applyAccount(ctx, event)
	case event.Type == "transfer.reversed", event.Type == "transfer.failed":
		return true, s.applyTransferFailure(ctx, log, event)
	case event.Type == "payout.paid":
		return true, s.applyPayout(ctx, log, event, true)
	case event.Type == "payout.failed", event.Type == "payout.canceled":
		return true, s.applyPayout(ctx, log, event, false)
	}
	return false, nil
}

func decode[T any](event *provider.Event) (*T, error) {
	if len(event.Object) == 0 {
		return nil, errs.Detail(domain.ErrMalformedEvent, "%s has no data object", event.Type)
	}
	var out T
	if err := json.Unmarshal(event.Object, &out); err != nil {
		return nil, errs.Detail(domain.ErrMalformedEvent, "%s: %v", event.Type, err)
	}
	return &out, nil
}

func (s *Service) applySubscription(ctx context.Context, event *provider.Event) error {
	sub, err := decode[stripe.Subscription](event)
	if err != nil {
		return err
	}
	update := billingdomain.SubscriptionUpdate{
		ProviderSubscriptionID: sub.ID,
		UserID:                 sub.Metadata["user_id"],
		Tier:                   subscriptionTier(sub),
		Status:                 string(sub.Status),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		OccurredAt:             event.Created,
	}
	if sub.Customer != nil {
		update.ProviderCustomerID = sub.Customer.ID
	}
	return s.billing.ApplySubscription(ctx, update)
}

func subscriptionTier(sub *stripe.Subscription) string {
	if tier := sub.Metadata["tier"]; tier != "" {
		return tier
	}
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item == nil || item.Price == nil {
			continue
		}
		if tier := item.Price.Metadata["tier"]; tier != "" {
			return tier
		}
		if item.Price.LookupKey != "" {
			return item.Price.LookupKey
		}
	}
	return ""
}

func (s *Service) applyInvoice(ctx context.Context, event *provider.Event) error {
	inv, err := decode[stripe.Invoice](event)
	if err != nil {
		return err
	}
	update := billingdomain.InvoiceUpdate{
		ProviderInvoiceID: inv.ID,
		UserID:            inv.Metadata["user_id"],
		Status:            string(inv.Status),
		AmountDue:         provider.FromMinorUnits(inv.AmountDue),
		AmountPaid:        provider.FromMinorUnits(inv.AmountPaid),
		Currency:          string(inv.Currency),
		OccurredAt:        event.Created,
	}
	if inv.Customer != nil {
		update.ProviderCustomerID = inv.Customer.ID
	}
	return s.billing.ApplyInvoice(ctx, update)
}

func (s *Service) applyAccount(ctx context.Context, event *provider.Event) error {
	acct, err := decode[stripe.Account](event)
	if err != nil {
		return err
	}
	return s.billing.ApplyConnectedAccount(ctx, billingdomain.AccountUpdate{
		ProviderAccountID: acct.ID,
		UserID:            acct.Metadata["user_id"],
		PayoutsEnabled:    acct.PayoutsEnabled,
		ChargesEnabled:    acct.ChargesEnabled,
		DetailsSubmitted:  acct.DetailsSubmitted,
		OccurredAt:        event.Created,
	})
}

func (s *Service) applyTransferFailure(ctx context.Context, log *zap.Logger, event *provider.Event) error {
	tr, err := decode[stripe.Transfer](event)
	if err != nil {
		return err
	}
	ids := []string{tr.ID}
	reason := strings.ReplaceAll(event.Type, ".", "_")
	n, err := s.splits.MarkFailedByTransferIDs(ctx, ids, "", reason)
	if err != nil {
		return err
	}
	log.Info("transfer failure applied", zap.String("transfer_id", tr.ID), zap.Int64("transactions", n))
	return s.settle(ctx, log, func() ([]snowflake.ID, error) {
		return s.splits.PayoutIDsByTransferIDs(ctx, ids)
	})
}

func (s *Service) applyPayout(ctx context.Context, log *zap.Logger, event *provider.Event, paid bool) error {
	po, err := decode[stripe.Payout](event)
	if err != nil {
		return err
	}
	log = log.With(zap.String("provider_payout_id", po.ID))

	transferIDs, err := s.provider.PayoutTransferIDs(ctx, event.Account, po.ID)
	if err != nil {
		return err
	}
	reason := po.FailureMessage
	if reason == "" {
		reason = string(po.FailureCode)
	}
	if reason == "" {
		reason = strings.ReplaceAll(event.Type, ".", "_")
	}

	if len(transferIDs) == 0 {
		log.Warn("payout resolved no transfers, matching by provider payout id")
		s.metrics.RecordPayoutFallback(ctx, event.Type)
		var n int64
		if paid {
			n, err = s.splits.MarkPaidByProviderPayoutID(ctx, po.ID)
		} else {
			n, err = s.splits.MarkFailedByProviderPayoutID(ctx, po.ID, reason)
		}
		if err != nil {
			return err
		}
		log.Info("payout applied by provider payout id", zap.Int64("transactions", n))
		return s.settle(ctx, log, func() ([]snowflake.ID, error) {
			return s.splits.PayoutIDsByProviderPayoutID(ctx, po.ID)
		})
	}

	var n int64
	if paid {
		n, err = s.splits.MarkPaidByTransferIDs(ctx, transferIDs, po.ID)
	} else {
		n, err = s.splits.MarkFailedByTransferIDs(ctx, transferIDs, po.ID, reason)
	}
	if err != nil {
		return err
	}
	log.Info("payout applied", zap.Int("transfers", len(transferIDs)), zap.Int64("transactions", n))
	return s.settle(ctx, log, func() ([]snowflake.ID, error) {
		return s.splits.PayoutIDsByTransferIDs(ctx, transferIDs)
	})
}

// settle re-derives the status of every payout touched by the event.
func (s *Service) settle(ctx context.Context, log *zap.Logger, affected func() ([]snowflake.ID, error)) error {
	ids, err := affected()
	if err != nil {
		return err
	}
	var settleErr error
	for _, id := range ids {
		payout, err := s.payouts.Settle(ctx, id)
		if err != nil {
			settleErr = errors.Join(settleErr, err)
			continue
		}
		log.Info("payout settled from webhook",
			zap.String("payout_id", id.String()),
			zap.String("status", string(payout.Status)),
		)
	}
	return settleErr
}
