package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	attributiondomain "github.com/smallbiznis/placementpay/internal/attribution/domain"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/smallbiznis/placementpay/internal/events"
	"github.com/smallbiznis/placementpay/internal/observability/metrics"
	"github.com/smallbiznis/placementpay/internal/split/domain"
	"github.com/smallbiznis/placementpay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

// currencyPlaces is the precision split amounts are truncated to.
const currencyPlaces = 2

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      domain.Repository
	Snapshots attributiondomain.Service
	Publisher events.Publisher
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      domain.Repository
	snapshots attributiondomain.Service
	publisher events.Publisher
	metrics   *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("split.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		snapshots: p.Snapshots,
		publisher: p.Publisher,
		metrics:   p.Metrics,
	}
}

// ComputeSplitsAndTransactions derives one split and one pending transaction
// per rated role of the placement snapshot. Existing splits are returned as is.
func (s *Service) ComputeSplitsAndTransactions(ctx context.Context, placementID string) (*domain.Result, error) {
	placementID = strings.TrimSpace(placementID)
	if placementID == "" {
		return nil, domain.ErrInvalidPlacement
	}

	existing, err := s.load(ctx, placementID)
	if err != nil {
		return nil, err
	}
	if len(existing.Splits) > 0 {
		return existing, nil
	}

	snapshot, err := s.snapshots.GetSnapshot(ctx, placementID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	splits := s.buildSplits(snapshot)
	if len(splits) == 0 {
		return nil, domain.ErrNoValidRoles
	}
	for _, sp := range splits {
		sp.CreatedAt = now
	}

	txs := make([]*domain.Transaction, 0, len(splits))
	for _, sp := range splits {
		txs = append(txs, &domain.Transaction{
			ID:          s.genID.Generate(),
			SplitID:     sp.ID,
			PlacementID: sp.PlacementID,
			PayeeID:     sp.PayeeID,
			Amount:      sp.Amount,
			Currency:    sp.Currency,
			Status:      domain.TransactionStatusPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertSplits(ctx, tx, splits); err != nil {
			return err
		}
		return s.repo.InsertTransactions(ctx, tx, txs)
	})
	if err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// Lost the (placement_id, role) race to a concurrent computation.
		s.log.Info("splits already created concurrently", zap.String("placement_id", placementID))
		return s.load(ctx, placementID)
	}

	s.metrics.RecordSplitsCreated(ctx, len(splits))
	s.log.Info("placement splits created",
		zap.String("placement_id", placementID),
		zap.Int("splits", len(splits)),
		zap.String("total_fee", snapshot.TotalFee.StringFixed(currencyPlaces)),
	)
	s.publisher.Publish(ctx, events.New(events.TypePlacementSplitsCreated, now, map[string]any{
		"placement_id":       placementID,
		"split_count":        len(splits),
		"total_fee":          snapshot.TotalFee.StringFixed(currencyPlaces),
		"platform_remainder": remainder(snapshot.TotalFee, splits).StringFixed(currencyPlaces),
	}))

	return &domain.Result{
		PlacementID:  placementID,
		Splits:       splits,
		Transactions: txs,
		Created:      true,
	}, nil
}

func (s *Service) buildSplits(snapshot *attributiondomain.Snapshot) []*domain.Split {
	var splits []*domain.Split
	for _, a := range snapshot.Assignments() {
		if !a.HasRate {
			s.log.Warn("role has payee without rate, skipping",
				zap.String("placement_id", snapshot.PlacementID),
				zap.String("role", string(a.Role)),
			)
			continue
		}
		splits = append(splits, &domain.Split{
			ID:          s.genID.Generate(),
			PlacementID: snapshot.PlacementID,
			SnapshotID:  snapshot.ID,
			PayeeID:     a.PayeeID,
			Role:        a.Role,
			Percentage:  a.Rate,
			Amount:      SplitAmount(snapshot.TotalFee, a.Rate),
			Currency:    snapshot.Currency,
		})
	}
	return splits
}

// SplitAmount is fee × rate / 100 truncated to cents.
func SplitAmount(fee, rate decimal.Decimal) decimal.Decimal {
	return fee.Mul(rate).Div(hundred).Truncate(currencyPlaces)
}

// CalculatePlatformRemainder is the share of the fee no role earns. It is
// reported only and never persisted.
func (s *Service) CalculatePlatformRemainder(snapshot *attributiondomain.Snapshot) decimal.Decimal {
	if snapshot == nil {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, a := range snapshot.Assignments() {
		if a.HasRate {
			sum = sum.Add(SplitAmount(snapshot.TotalFee, a.Rate))
		}
	}
	return snapshot.TotalFee.Sub(sum)
}

func remainder(fee decimal.Decimal, splits []*domain.Split) decimal.Decimal {
	out := fee
	for _, sp := range splits {
		out = out.Sub(sp.Amount)
	}
	return out
}

func (s *Service) PlacementSummary(ctx context.Context, placementID string) (*domain.Summary, error) {
	placementID = strings.TrimSpace(placementID)
	if placementID == "" {
		return nil, domain.ErrInvalidPlacement
	}
	snapshot, err := s.snapshots.GetSnapshot(ctx, placementID)
	if err != nil {
		return nil, err
	}
	result, err := s.load(ctx, placementID)
	if err != nil {
		return nil, err
	}
	return &domain.Summary{
		Result:            *result,
		TotalFee:          snapshot.TotalFee,
		PlatformRemainder: s.CalculatePlatformRemainder(snapshot),
	}, nil
}

func (s *Service) load(ctx context.Context, placementID string) (*domain.Result, error) {
	splits, err := s.repo.ListSplits(ctx, s.db, placementID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, s.db, placementID)
	if err != nil {
		return nil, err
	}
	return &domain.Result{PlacementID: placementID, Splits: splits, Transactions: txs}, nil
}

func (s *Service) ListPendingTransactions(ctx context.Context, placementID string) ([]*domain.Transaction, error) {
	return s.repo.ListPendingTransactions(ctx, s.db, placementID)
}

func (s *Service) ListTransactionsByPayee(ctx context.Context, payeeID string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 || limit > 250 {
		limit = 50
	}
	return s.repo.ListTransactionsByPayee(ctx, s.db, strings.TrimSpace(payeeID), limit)
}

func (s *Service) IsPayee(ctx context.Context, placementID, payeeID string) (bool, error) {
	if strings.TrimSpace(payeeID) == "" {
		return false, nil
	}
	return s.repo.HasPayee(ctx, s.db, placementID, payeeID)
}

func (s *Service) ListTransactionsByPayout(ctx context.Context, payoutID snowflake.ID) ([]*domain.Transaction, error) {
	return s.repo.ListTransactionsByPayout(ctx, s.db, payoutID)
}

func (s *Service) PayoutIDsByTransferIDs(ctx context.Context, transferIDs []string) ([]snowflake.ID, error) {
	return s.repo.PayoutIDsByTransferIDs(ctx, s.db, transferIDs)
}

func (s *Service) PayoutIDsByProviderPayoutID(ctx context.Context, providerPayoutID string) ([]snowflake.ID, error) {
	return s.repo.PayoutIDsByProviderPayoutID(ctx, s.db, providerPayoutID)
}

// MarkProcessing moves a pending transaction to processing with its transfer.
func (s *Service) MarkProcessing(ctx context.Context, id snowflake.ID, payoutID snowflake.ID, transferID string) error {
	n, err := s.repo.MarkProcessing(ctx, s.db, id, payoutID, transferID, s.clock.Now())
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.Detail(domain.ErrInvalidTransition, "transaction %s is not pending", id)
	}
	return nil
}

func (s *Service) MarkPaidByTransferIDs(ctx context.Context, transferIDs []string, providerPayoutID string) (int64, error) {
	return s.repo.MarkPaidByTransferIDs(ctx, s.db, transferIDs, providerPayoutID, s.clock.Now())
}

func (s *Service) MarkPaidByProviderPayoutID(ctx context.Context, providerPayoutID string) (int64, error) {
	return s.repo.MarkPaidByProviderPayoutID(ctx, s.db, providerPayoutID, s.clock.Now())
}

func (s *Service) MarkFailedByTransferIDs(ctx context.Context, transferIDs []string, providerPayoutID, reason string) (int64, error) {
	return s.repo.MarkFailedByTransferIDs(ctx, s.db, transferIDs, providerPayoutID, reason, s.clock.Now())
}

func (s *Service) MarkFailedByProviderPayoutID(ctx context.Context, providerPayoutID, reason string) (int64, error) {
	return s.repo.MarkFailedByProviderPayoutID(ctx, s.db, providerPayoutID, reason, s.clock.Now())
}
