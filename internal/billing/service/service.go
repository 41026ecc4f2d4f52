package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/billing/domain"
	"github.com/smallbiznis/placementpay/internal/cache"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Repo      domain.Repository
	TierCache cache.Cache[string, string]
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        domain.Repository
	tiers       cache.Cache[string, string]
	defaultTier string
	cfg         config.CacheConfig
}

func NewService(p Params) domain.Service {
	defaultTier := strings.ToLower(strings.TrimSpace(p.Config.Rates.DefaultTier))
	if defaultTier == "" {
		defaultTier = "free"
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("billing.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		tiers:       p.TierCache,
		defaultTier: defaultTier,
		cfg:         p.Config.CacheTTL,
	}
}

func (s *Service) ApplySubscription(ctx context.Context, update domain.SubscriptionUpdate) error {
	if strings.TrimSpace(update.ProviderSubscriptionID) == "" {
		return domain.ErrMissingProviderID
	}
	userID := strings.TrimSpace(update.UserID)
	if userID == "" {
		return errs.Detail(domain.ErrMissingUser, "subscription %s", update.ProviderSubscriptionID)
	}
	tier := strings.ToLower(strings.TrimSpace(update.Tier))
	if tier == "" {
		tier = s.defaultTier
	}

	now := s.clock.Now()
	sub := &domain.Subscription{
		ID:                     s.genID.Generate(),
		ProviderSubscriptionID: update.ProviderSubscriptionID,
		ProviderCustomerID:     update.ProviderCustomerID,
		UserID:                 userID,
		Tier:                   tier,
		Status:                 strings.ToLower(update.Status),
		CancelAtPeriodEnd:      update.CancelAtPeriodEnd,
		LastEventAt:            s.occurredAt(update.OccurredAt),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.UpsertSubscription(ctx, s.db, sub); err != nil {
		return err
	}
	s.tiers.Delete(ctx, cache.Key("tier", userID))

	s.log.Info("subscription synced",
		zap.String("provider_subscription_id", sub.ProviderSubscriptionID),
		zap.String("user_id", userID),
		zap.String("tier", tier),
		zap.String("status", sub.Status),
	)
	return nil
}

func (s *Service) ApplyInvoice(ctx context.Context, update domain.InvoiceUpdate) error {
	if strings.TrimSpace(update.ProviderInvoiceID) == "" {
		return domain.ErrMissingProviderID
	}
	now := s.clock.Now()
	inv := &domain.Invoice{
		ID:                 s.genID.Generate(),
		ProviderInvoiceID:  update.ProviderInvoiceID,
		ProviderCustomerID: update.ProviderCustomerID,
		Status:             strings.ToLower(update.Status),
		AmountDue:          update.AmountDue,
		AmountPaid:         update.AmountPaid,
		Currency:           strings.ToLower(update.Currency),
		LastEventAt:        s.occurredAt(update.OccurredAt),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if userID := strings.TrimSpace(update.UserID); userID != "" {
		inv.UserID = &userID
	}
	if err := s.repo.UpsertInvoice(ctx, s.db, inv); err != nil {
		return err
	}
	s.log.Info("invoice synced",
		zap.String("provider_invoice_id", inv.ProviderInvoiceID),
		zap.String("status", inv.Status),
		zap.String("amount_paid", inv.AmountPaid.StringFixed(2)),
	)
	return nil
}

func (s *Service) ApplyConnectedAccount(ctx context.Context, update domain.AccountUpdate) error {
	if strings.TrimSpace(update.ProviderAccountID) == "" {
		return domain.ErrMissingProviderID
	}
	userID := strings.TrimSpace(update.UserID)
	if userID == "" {
		return errs.Detail(domain.ErrMissingUser, "account %s", update.ProviderAccountID)
	}
	now := s.clock.Now()
	acct := &domain.ConnectedAccount{
		ID:                s.genID.Generate(),
		ProviderAccountID: update.ProviderAccountID,
		UserID:            userID,
		PayoutsEnabled:    update.PayoutsEnabled,
		ChargesEnabled:    update.ChargesEnabled,
		DetailsSubmitted:  update.DetailsSubmitted,
		LastEventAt:       s.occurredAt(update.OccurredAt),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.UpsertConnectedAccount(ctx, s.db, acct); err != nil {
		return err
	}
	s.log.Info("connected account synced",
		zap.String("provider_account_id", acct.ProviderAccountID),
		zap.String("user_id", userID),
		zap.Bool("payouts_enabled", acct.PayoutsEnabled),
	)
	return nil
}

func (s *Service) ResolveTier(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return s.defaultTier, nil
	}
	key := cache.Key("tier", userID)
	if tier, ok := s.tiers.Get(ctx, key); ok {
		return tier, nil
	}

	sub, err := s.repo.FindActiveSubscription(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	tier := s.defaultTier
	if sub != nil && sub.Active() && sub.Tier != "" {
		tier = sub.Tier
	}
	s.tiers.Set(ctx, key, tier, s.cfg.Tier)
	return tier, nil
}

func (s *Service) TransferDestination(ctx context.Context, payeeID string) (string, error) {
	acct, err := s.repo.FindConnectedAccount(ctx, s.db, strings.TrimSpace(payeeID))
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", nil
	}
	if !acct.PayoutsEnabled {
		return "", errs.Detail(domain.ErrPayoutsDisabled, "account %s", acct.ProviderAccountID)
	}
	return acct.ProviderAccountID, nil
}

func (s *Service) occurredAt(at time.Time) time.Time {
	if at.IsZero() {
		return s.clock.Now().UTC()
	}
	return at.UTC()
}
