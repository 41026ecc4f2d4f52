package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/placementpay/internal/audit/domain"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/smallbiznis/placementpay/internal/payout/domain"
	"github.com/smallbiznis/placementpay/internal/provider"
	splitdomain "github.com/smallbiznis/placementpay/internal/split/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Splits   splitdomain.Service
	Guard    domain.FundsGuard
	Accounts domain.AccountDirectory
	Provider provider.Client
	Audit    auditdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	repo     domain.Repository
	splits   splitdomain.Service
	guard    domain.FundsGuard
	accounts domain.AccountDirectory
	provider provider.Client
	audit    auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payout.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		splits:   p.Splits,
		guard:    p.Guard,
		accounts: p.Accounts,
		provider: p.Provider,
		audit:    p.Audit,
	}
}

// TransferIdempotencyKey keys provider transfers so a retried run never
// moves money twice for the same transaction.
func TransferIdempotencyKey(txID snowflake.ID) string {
	return fmt.Sprintf("placement_tx_%s", txID.String())
}

// CreateForSchedule returns the payout id alongside any error once a payout
// exists, so the caller can keep it for the next attempt.
func (s *Service) CreateForSchedule(ctx context.Context, target domain.Target) (snowflake.ID, error) {
	held, err := s.guard.HasActiveHold(ctx, target.PlacementID)
	if err != nil {
		return 0, err
	}
	if held {
		return 0, errs.Detail(domain.ErrFundsHeld, "placement %s has an active escrow hold", target.PlacementID)
	}

	payout, err := s.resolvePayout(ctx, target)
	if err != nil {
		if payout != nil {
			return payout.ID, err
		}
		return 0, err
	}
	if payout.Status == domain.StatusProcessing || payout.Status == domain.StatusPaid {
		return payout.ID, nil
	}

	pending, err := s.splits.ListPendingTransactions(ctx, payout.PlacementID)
	if err != nil {
		return payout.ID, err
	}
	for _, tx := range pending {
		if err := s.transfer(ctx, payout, tx); err != nil {
			return payout.ID, err
		}
	}

	oldStatus := payout.Status
	now := s.clock.Now()
	if _, err := s.repo.Transition(ctx, s.db, payout.ID,
		[]domain.Status{domain.StatusPending, domain.StatusFailed},
		map[string]any{"status": domain.StatusProcessing, "failure_reason": nil, "updated_at": now},
	); err != nil {
		return payout.ID, err
	}
	s.record(ctx, auditdomain.Entry{
		PayoutID:  payout.ID,
		EventType: auditdomain.EventStatusChange,
		OldStatus: string(oldStatus),
		NewStatus: string(domain.StatusProcessing),
		Reason:    "provider transfers initiated",
		Metadata:  map[string]any{"transfers": len(pending)},
	})

	s.log.Info("payout processing",
		zap.String("payout_id", payout.ID.String()),
		zap.String("placement_id", payout.PlacementID),
		zap.Int("transfers", len(pending)),
	)
	return payout.ID, nil
}

func (s *Service) resolvePayout(ctx context.Context, target domain.Target) (*domain.Payout, error) {
	if target.PayoutID != nil && *target.PayoutID != 0 {
		payout, err := s.repo.FindByID(ctx, s.db, *target.PayoutID)
		if err != nil {
			return nil, err
		}
		if payout == nil {
			return nil, errs.Detail(domain.ErrNotFound, "payout %s", target.PayoutID.String())
		}
		if payout.PlacementID != target.PlacementID {
			return nil, errs.Detail(domain.ErrPlacementMismatch, "payout %s belongs to %s", payout.ID, payout.PlacementID)
		}
		return payout, nil
	}

	pending, err := s.splits.ListPendingTransactions(ctx, target.PlacementID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, errs.Detail(domain.ErrNothingToPay, "placement %s", target.PlacementID)
	}

	total := decimal.Zero
	for _, tx := range pending {
		total = total.Add(tx.Amount)
	}
	now := s.clock.Now()
	payout := &domain.Payout{
		ID:               s.genID.Generate(),
		PlacementID:      target.PlacementID,
		ScheduleID:       target.ScheduleID,
		Amount:           total,
		Currency:         pending[0].Currency,
		Status:           domain.StatusPending,
		TransactionCount: len(pending),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.repo.Insert(ctx, s.db, payout); err != nil {
		return nil, err
	}
	s.record(ctx, auditdomain.Entry{
		PayoutID:  payout.ID,
		EventType: auditdomain.EventCreated,
		NewStatus: string(domain.StatusPending),
		NewAmount: &payout.Amount,
		Metadata: map[string]any{
			"placement_id":      payout.PlacementID,
			"schedule_id":       payout.ScheduleID.String(),
			"transaction_count": payout.TransactionCount,
		},
	})
	return payout, nil
}

func (s *Service) transfer(ctx context.Context, payout *domain.Payout, tx *splitdomain.Transaction) error {
	destination, err := s.accounts.TransferDestination(ctx, tx.PayeeID)
	if err != nil {
		return err
	}
	if destination == "" {
		return errs.Detail(domain.ErrNoConnectedAccount, "payee %s", tx.PayeeID)
	}

	transfer, err := s.provider.CreateTransfer(ctx, provider.TransferRequest{
		Amount:         tx.Amount,
		Currency:       tx.Currency,
		Destination:    destination,
		TransferGroup:  "payout_" + payout.ID.String(),
		IdempotencyKey: TransferIdempotencyKey(tx.ID),
		Metadata: map[string]string{
			"placement_id":   tx.PlacementID,
			"transaction_id": tx.ID.String(),
			"payout_id":      payout.ID.String(),
		},
	})
	if err != nil {
		s.log.Warn("provider transfer failed",
			zap.String("payout_id", payout.ID.String()),
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
		return err
	}

	if err := s.splits.MarkProcessing(ctx, tx.ID, payout.ID, transfer.ID); err != nil {
		if errors.Is(err, splitdomain.ErrInvalidTransition) {
			s.log.Warn("transaction advanced concurrently",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("transfer_id", transfer.ID),
			)
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (*domain.Payout, error) {
	payout, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, domain.ErrNotFound
	}
	return payout, nil
}

// Settle marks the payout paid once every transaction is paid, or failed once
// none are outstanding and at least one failed.
func (s *Service) Settle(ctx context.Context, id snowflake.ID) (*domain.Payout, error) {
	payout, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payout.Status != domain.StatusProcessing {
		return payout, nil
	}

	txs, err := s.splits.ListTransactionsByPayout(ctx, id)
	if err != nil {
		return nil, err
	}
	var paid, failed int
	var reason string
	for _, tx := range txs {
		switch tx.Status {
		case splitdomain.TransactionStatusPaid:
			paid++
		case splitdomain.TransactionStatusFailed:
			failed++
			if tx.FailureReason != nil && reason == "" {
				reason = *tx.FailureReason
			}
		}
	}
	if len(txs) == 0 || paid+failed < len(txs) {
		return payout, nil
	}

	now := s.clock.Now()
	next := domain.StatusPaid
	fields := map[string]any{"status": next, "completed_at": now, "updated_at": now}
	if failed > 0 {
		next = domain.StatusFailed
		if reason == "" {
			reason = "one or more transfers failed"
		}
		fields = map[string]any{"status": next, "failure_reason": reason, "updated_at": now}
	}

	n, err := s.repo.Transition(ctx, s.db, id, []domain.Status{domain.StatusProcessing}, fields)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return s.Get(ctx, id)
	}

	entry := auditdomain.Entry{
		PayoutID:  id,
		EventType: auditdomain.EventStatusChange,
		OldStatus: string(domain.StatusProcessing),
		NewStatus: string(next),
		Reason:    reason,
		Metadata:  map[string]any{"paid": paid, "failed": failed},
	}
	if next == domain.StatusFailed {
		entry.EventType = auditdomain.EventFailed
	}
	s.record(ctx, entry)

	s.log.Info("payout settled",
		zap.String("payout_id", id.String()),
		zap.String("status", string(next)),
		zap.Int("paid", paid),
		zap.Int("failed", failed),
	)
	return s.Get(ctx, id)
}

func (s *Service) record(ctx context.Context, entry auditdomain.Entry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("payout audit failed",
			zap.String("payout_id", entry.PayoutID.String()),
			zap.String("event_type", string(entry.EventType)),
			zap.Error(err),
		)
	}
}
