package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/access"
	auditdomain "github.com/smallbiznis/placementpay/internal/audit/domain"
	"github.com/smallbiznis/placementpay/internal/batch"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/smallbiznis/placementpay/internal/escrow/domain"
	"github.com/smallbiznis/placementpay/internal/events"
	"github.com/smallbiznis/placementpay/internal/validation"
	"github.com/smallbiznis/placementpay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Config     config.Config
	Repo       domain.Repository
	Audit      auditdomain.Service
	Publisher  events.Publisher
	Authorizer *access.Authorizer
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	batchSize  int
	repo       domain.Repository
	audit      auditdomain.Service
	publisher  events.Publisher
	authorizer *access.Authorizer
}

func NewService(p Params) domain.Service {
	batchSize := p.Config.Sweep.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("escrow.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		batchSize:  batchSize,
		repo:       p.Repo,
		audit:      p.Audit,
		publisher:  p.Publisher,
		authorizer: p.Authorizer,
	}
}

func (s *Service) Create(ctx context.Context, ac access.Context, req domain.CreateRequest) (*domain.Hold, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectEscrowHold, access.ActionCreate); err != nil {
		return nil, err
	}
	req.PlacementID = strings.TrimSpace(req.PlacementID)
	req.HoldReason = strings.TrimSpace(req.HoldReason)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if err := s.validateTerms(req.HoldAmount, req.ReleaseScheduledDate, now); err != nil {
		return nil, err
	}

	hold := &domain.Hold{
		ID:                   s.genID.Generate(),
		PlacementID:          req.PlacementID,
		PayoutID:             req.PayoutID,
		HoldAmount:           req.HoldAmount.Round(2),
		HoldReason:           req.HoldReason,
		HeldAt:               now,
		ReleaseScheduledDate: req.ReleaseScheduledDate.UTC(),
		Status:               domain.StatusActive,
		CreatedBy:            ac.UserID,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Insert(ctx, s.db, hold); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, hold, auditdomain.Entry{
		EventType: auditdomain.EventCreated,
		NewStatus: string(domain.StatusActive),
		NewAmount: &hold.HoldAmount,
		Reason:    hold.HoldReason,
		Metadata: map[string]any{
			"release_scheduled_date": hold.ReleaseScheduledDate.Format(time.RFC3339),
		},
	}, ac)

	s.log.Info("escrow hold created",
		zap.String("hold_id", hold.ID.String()),
		zap.String("placement_id", hold.PlacementID),
		zap.String("hold_amount", hold.HoldAmount.StringFixed(2)),
		zap.Time("release_scheduled_date", hold.ReleaseScheduledDate),
	)
	return hold, nil
}

func (s *Service) validateTerms(amount decimal.Decimal, releaseAt, now time.Time) error {
	if amount.IsNegative() {
		return domain.ErrInvalidAmount
	}
	if !releaseAt.After(now) {
		return errs.Detail(domain.ErrInvalidReleaseDate, "release_scheduled_date must be in the future")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, ac access.Context, id snowflake.ID) (*domain.Hold, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectEscrowHold, access.ActionView); err != nil {
		return nil, err
	}
	hold, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if ac.SeesAll() {
		return hold, nil
	}
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		PlacementID: hold.PlacementID,
		PayeeID:     ac.UserID,
		Limit:       1,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrNotFound
	}
	return hold, nil
}

func (s *Service) List(ctx context.Context, ac access.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectEscrowHold, access.ActionView); err != nil {
		return domain.ListResponse{}, err
	}

	filter := domain.ListFilter{
		PlacementID: strings.TrimSpace(req.PlacementID),
		Limit:       pagination.Limit(req.PageSize),
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		switch domain.Status(status) {
		case domain.StatusActive, domain.StatusReleased, domain.StatusCancelled, domain.StatusExpired:
			filter.Status = domain.Status(status)
		default:
			return domain.ListResponse{}, domain.ErrInvalidStatus
		}
	}
	if !ac.SeesAll() {
		filter.PayeeID = ac.UserID
	}
	if token := strings.TrimSpace(req.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, err
		}
		after, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListResponse{}, pagination.ErrInvalidPageToken
		}
		filter.AfterID = after
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, pageInfo := pagination.BuildCursorPageInfo(items, filter.Limit, func(h *domain.Hold) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: h.ID.String()})
		return token
	})

	holds := make([]domain.Hold, 0, len(items))
	for _, item := range items {
		holds = append(holds, *item)
	}
	return domain.ListResponse{PageInfo: *pageInfo, Holds: holds}, nil
}

func (s *Service) Update(ctx context.Context, ac access.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Hold, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectEscrowHold, access.ActionUpdate); err != nil {
		return nil, err
	}
	hold, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if hold.Status != domain.StatusActive {
		return nil, errs.Detail(domain.ErrInvalidState, "hold is %s", hold.Status)
	}

	now := s.clock.Now()
	amount, releaseAt, reason := hold.HoldAmount, hold.ReleaseScheduledDate, hold.HoldReason
	if req.HoldAmount != nil {
		amount = req.HoldAmount.Round(2)
	}
	if req.ReleaseScheduledDate != nil {
		releaseAt = req.ReleaseScheduledDate.UTC()
	}
	if req.HoldReason != nil {
		reason = strings.TrimSpace(*req.HoldReason)
		if reason == "" {
			return nil, domain.ErrInvalidReason
		}
	}
	if err := s.validateTerms(amount, releaseAt, now); err != nil {
		return nil, err
	}

	fields := map[string]any{
		"hold_amount":            amount,
		"hold_reason":            reason,
		"release_scheduled_date": releaseAt,
		"updated_at":             now,
	}
	n, err := s.repo.Transition(ctx, s.db, id, []domain.Status{domain.StatusActive}, fields)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errs.Detail(domain.ErrInvalidState, "hold is no longer active")
	}

	previous := *hold
	hold.HoldAmount, hold.HoldReason, hold.ReleaseScheduledDate, hold.UpdatedAt = amount, reason, releaseAt, now

	if !previous.HoldAmount.Equal(amount) {
		s.recordAudit(ctx, hold, auditdomain.Entry{
			EventType: auditdomain.EventAmountChange,
			OldAmount: &previous.HoldAmount,
			NewAmount: &amount,
			Reason:    reason,
		}, ac)
	}
	if previous.HoldReason != reason || !previous.ReleaseScheduledDate.Equal(releaseAt) {
		s.recordAudit(ctx, hold, auditdomain.Entry{
			EventType: auditdomain.EventAction,
			Reason:    reason,
			Metadata: map[string]any{
				"action":                     "escrow_hold.update",
				"old_release_scheduled_date": previous.ReleaseScheduledDate.Format(time.RFC3339),
				"new_release_scheduled_date": releaseAt.Format(time.RFC3339),
			},
		}, ac)
	}
	return hold, nil
}

// Release frees the held funds. Only active holds can be released.
func (s *Service) Release(ctx context.Context, ac access.Context, id snowflake.ID) (*domain.Hold, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectEscrowHold, access.ActionRelease); err != nil {
		return nil, err
	}
	hold, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	released, err := s.release(ctx, ac, hold)
	if err != nil {
		return nil, err
	}
	if !released {
		return nil, errs.Detail(domain.ErrInvalidState, "hold is %s", hold.Status)
	}
	return hold, nil
}

// release reports false when the hold was not active anymore.
func (s *Service) release(ctx context.Context, ac access.Context, hold *domain.Hold) (bool, error) {
	if hold.Status != domain.StatusActive {
		return false, nil
	}
	now := s.clock.Now()
	actor := ac.UserID
	n, err := s.repo.Transition(ctx, s.db, hold.ID, []domain.Status{domain.StatusActive}, map[string]any{
		"status":      domain.StatusReleased,
		"released_at": now,
		"released_by": actor,
		"updated_at":  now,
	})
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	hold.Status, hold.ReleasedAt, hold.ReleasedBy, hold.UpdatedAt = domain.StatusReleased, &now, &actor, now

	s.recordAudit(ctx, hold, auditdomain.Entry{
		EventType: auditdomain.EventStatusChange,
		OldStatus: string(domain.StatusActive),
		NewStatus: string(domain.StatusReleased),
		Reason:    "escrow hold released",
	}, ac)
	s.publish(ctx, events.TypeEscrowHoldReleased, hold, nil)

	s.log.Info("escrow hold released",
		zap.String("hold_id", hold.ID.String()),
		zap.String("placement_id", hold.PlacementID),
		zap.String("released_by", actor),
	)
	return true, nil
}

func (s *Service) Cancel(ctx context.Context, ac access.Context, id snowflake.ID, reason string) (*domain.Hold, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectEscrowHold, access.ActionCancel); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrInvalidReason
	}
	hold, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if hold.Status != domain.StatusActive {
		return nil, errs.Detail(domain.ErrInvalidState, "hold is %s", hold.Status)
	}

	now := s.clock.Now()
	n, err := s.repo.Transition(ctx, s.db, id, []domain.Status{domain.StatusActive}, map[string]any{
		"status":              domain.StatusCancelled,
		"cancelled_at":        now,
		"cancellation_reason": reason,
		"updated_at":          now,
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errs.Detail(domain.ErrInvalidState, "hold is no longer active")
	}
	hold.Status, hold.CancelledAt, hold.CancellationReason, hold.UpdatedAt = domain.StatusCancelled, &now, &reason, now

	s.recordAudit(ctx, hold, auditdomain.Entry{
		EventType: auditdomain.EventStatusChange,
		OldStatus: string(domain.StatusActive),
		NewStatus: string(domain.StatusCancelled),
		Reason:    reason,
	}, ac)
	s.publish(ctx, events.TypeEscrowHoldCancelled, hold, map[string]any{"reason": reason})
	s.log.Info("escrow hold cancelled", zap.String("hold_id", hold.ID.String()), zap.String("reason", reason))
	return hold, nil
}

// Expire closes a hold whose placement was voided. Nothing expires holds
// automatically.
func (s *Service) Expire(ctx context.Context, ac access.Context, id snowflake.ID, reason string) (*domain.Hold, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectEscrowHold, access.ActionExpire); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrInvalidReason
	}
	hold, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if hold.Status != domain.StatusActive {
		return nil, errs.Detail(domain.ErrInvalidState, "hold is %s", hold.Status)
	}

	now := s.clock.Now()
	n, err := s.repo.Transition(ctx, s.db, id, []domain.Status{domain.StatusActive}, map[string]any{
		"status":              domain.StatusExpired,
		"expired_at":          now,
		"cancellation_reason": reason,
		"updated_at":          now,
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errs.Detail(domain.ErrInvalidState, "hold is no longer active")
	}
	hold.Status, hold.ExpiredAt, hold.CancellationReason, hold.UpdatedAt = domain.StatusExpired, &now, &reason, now

	s.recordAudit(ctx, hold, auditdomain.Entry{
		EventType: auditdomain.EventStatusChange,
		OldStatus: string(domain.StatusActive),
		NewStatus: string(domain.StatusExpired),
		Reason:    reason,
	}, ac)
	s.publish(ctx, events.TypeEscrowHoldExpired, hold, map[string]any{"reason": reason})
	return hold, nil
}

// ProcessDueReleases releases every due active hold. A failing hold is
// recorded in the summary and does not stop the others.
func (s *Service) ProcessDueReleases(ctx context.Context) (*batch.Summary, error) {
	holds, err := s.repo.ListDue(ctx, s.db, s.clock.Now(), s.batchSize)
	if err != nil {
		return nil, err
	}

	summary := batch.New()
	system := access.System()
	for _, hold := range holds {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		released, err := s.release(ctx, system, hold)
		switch {
		case err != nil:
			summary.Fail(hold.ID.String(), err)
			s.log.Warn("escrow release failed",
				zap.String("hold_id", hold.ID.String()),
				zap.String("placement_id", hold.PlacementID),
				zap.Error(err),
			)
			if err := s.repo.Touch(ctx, s.db, hold.ID, s.clock.Now()); err != nil {
				s.log.Warn("escrow hold requeue failed", zap.String("hold_id", hold.ID.String()), zap.Error(err))
			}
		case released:
			summary.Succeed()
		default:
			summary.Skip()
		}
	}

	if len(holds) > 0 {
		s.log.Info("escrow release sweep finished",
			zap.Int("selected", len(holds)),
			zap.Int("processed", summary.Processed),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped),
		)
	}
	return summary, nil
}

func (s *Service) HasActiveHold(ctx context.Context, placementID string) (bool, error) {
	count, err := s.repo.CountActive(ctx, s.db, placementID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Service) find(ctx context.Context, id snowflake.ID) (*domain.Hold, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	hold, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, domain.ErrNotFound
	}
	return hold, nil
}

// recordAudit writes an entry when the hold is linked to a payout.
func (s *Service) recordAudit(ctx context.Context, hold *domain.Hold, entry auditdomain.Entry, ac access.Context) {
	if hold.PayoutID == nil || *hold.PayoutID == 0 {
		return
	}
	entry.PayoutID = *hold.PayoutID
	entry.ActorID = ac.UserID
	entry.ActorRole = ac.ActorRole()
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	entry.Metadata["hold_id"] = hold.ID.String()
	entry.Metadata["placement_id"] = hold.PlacementID
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("escrow audit failed",
			zap.String("hold_id", hold.ID.String()),
			zap.String("event_type", string(entry.EventType)),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, hold *domain.Hold, extra map[string]any) {
	payload := map[string]any{
		"hold_id":      hold.ID.String(),
		"placement_id": hold.PlacementID,
		"hold_amount":  hold.HoldAmount.StringFixed(2),
		"status":       string(hold.Status),
	}
	if hold.PayoutID != nil {
		payload["payout_id"] = hold.PayoutID.String()
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.publisher.Publish(ctx, events.New(eventType, s.clock.Now(), payload))
}
