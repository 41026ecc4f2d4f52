package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/placementpay/internal/access"
	auditdomain "github.com/smallbiznis/placementpay/internal/audit/domain"
	"github.com/smallbiznis/placementpay/internal/batch"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/smallbiznis/placementpay/internal/events"
	obsmetrics "github.com/smallbiznis/placementpay/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/placementpay/internal/payout/domain"
	"github.com/smallbiznis/placementpay/internal/schedule/domain"
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
	Payouts    domain.PayoutCreator
	Audit      auditdomain.Service
	Publisher  events.Publisher
	Authorizer *access.Authorizer
	Metrics    *obsmetrics.SchedulerMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	batchSize  int
	repo       domain.Repository
	payouts    domain.PayoutCreator
	audit      auditdomain.Service
	publisher  events.Publisher
	authorizer *access.Authorizer
	metrics    *obsmetrics.SchedulerMetrics
}

func NewService(p Params) domain.Service {
	batchSize := p.Config.Sweep.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("schedule.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		batchSize:  batchSize,
		repo:       p.Repo,
		payouts:    p.Payouts,
		audit:      p.Audit,
		publisher:  p.Publisher,
		authorizer: p.Authorizer,
		metrics:    p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, ac access.Context, req domain.CreateRequest) (*domain.Schedule, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectPayoutSchedule, access.ActionCreate); err != nil {
		return nil, err
	}
	req.PlacementID = strings.TrimSpace(req.PlacementID)
	req.TriggerEvent = strings.TrimSpace(req.TriggerEvent)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}
	scheduledAt := req.ScheduledDate.UTC()
	guarantee, err := guaranteeDate(scheduledAt, req.GuaranteeCompletionDate)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	schedule := &domain.Schedule{
		ID:                      s.genID.Generate(),
		PlacementID:             req.PlacementID,
		PayoutID:                req.PayoutID,
		ScheduledDate:           scheduledAt,
		GuaranteeCompletionDate: guarantee,
		TriggerEvent:            req.TriggerEvent,
		Status:                  domain.StatusScheduled,
		CreatedBy:               ac.UserID,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := s.repo.Insert(ctx, s.db, schedule); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, schedule, ac, auditdomain.Entry{
		EventType: auditdomain.EventAction,
		Reason:    "payout schedule created",
		Metadata: map[string]any{
			"action":         "payout_schedule.create",
			"scheduled_date": scheduledAt.Format(time.RFC3339),
			"trigger_event":  schedule.TriggerEvent,
		},
	})

	s.log.Info("payout schedule created",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("placement_id", schedule.PlacementID),
		zap.Time("scheduled_date", scheduledAt),
		zap.String("trigger_event", schedule.TriggerEvent),
	)
	return schedule, nil
}

func guaranteeDate(scheduledAt time.Time, guarantee *time.Time) (*time.Time, error) {
	if guarantee == nil || guarantee.IsZero() {
		return nil, nil
	}
	at := guarantee.UTC()
	if !at.After(scheduledAt) {
		return nil, errs.Detail(domain.ErrInvalidGuaranteeDate, "guarantee_completion_date must be after scheduled_date")
	}
	return &at, nil
}

func (s *Service) Get(ctx context.Context, ac access.Context, id snowflake.ID) (*domain.Schedule, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectPayoutSchedule, access.ActionView); err != nil {
		return nil, err
	}
	schedule, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if ac.SeesAll() {
		return schedule, nil
	}
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		PlacementID: schedule.PlacementID,
		PayeeID:     ac.UserID,
		Limit:       1,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, domain.ErrNotFound
	}
	return schedule, nil
}

func (s *Service) List(ctx context.Context, ac access.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectPayoutSchedule, access.ActionView); err != nil {
		return domain.ListResponse{}, err
	}

	filter := domain.ListFilter{
		PlacementID: strings.TrimSpace(req.PlacementID),
		Limit:       pagination.Limit(req.PageSize),
	}
	if status := strings.TrimSpace(req.Status); status != "" {
		switch domain.Status(status) {
		case domain.StatusScheduled, domain.StatusPending, domain.StatusProcessing,
			domain.StatusProcessed, domain.StatusFailed, domain.StatusCancelled:
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
	items, pageInfo := pagination.BuildCursorPageInfo(items, filter.Limit, func(item *domain.Schedule) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		return token
	})

	schedules := make([]domain.Schedule, 0, len(items))
	for _, item := range items {
		schedules = append(schedules, *item)
	}
	return domain.ListResponse{PageInfo: *pageInfo, Schedules: schedules}, nil
}

func (s *Service) Update(ctx context.Context, ac access.Context, id snowflake.ID, req domain.UpdateRequest) (*domain.Schedule, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectPayoutSchedule, access.ActionUpdate); err != nil {
		return nil, err
	}
	schedule, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	editable := []domain.Status{domain.StatusScheduled, domain.StatusPending}
	if !hasStatus(schedule.Status, editable) {
		return nil, errs.Detail(domain.ErrInvalidState, "schedule is %s", schedule.Status)
	}

	scheduledAt := schedule.ScheduledDate
	if req.ScheduledDate != nil {
		scheduledAt = req.ScheduledDate.UTC()
	}
	guarantee := schedule.GuaranteeCompletionDate
	if req.GuaranteeCompletionDate != nil {
		guarantee = req.GuaranteeCompletionDate
	}
	guarantee, err = guaranteeDate(scheduledAt, guarantee)
	if err != nil {
		return nil, err
	}
	trigger := schedule.TriggerEvent
	if req.TriggerEvent != nil {
		trigger = strings.TrimSpace(*req.TriggerEvent)
		if trigger == "" {
			return nil, domain.ErrInvalidTriggerEvent
		}
	}

	now := s.clock.Now()
	n, err := s.repo.Transition(ctx, s.db, id, editable, map[string]any{
		"scheduled_date":            scheduledAt,
		"guarantee_completion_date": guarantee,
		"trigger_event":             trigger,
		"updated_at":                now,
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errs.Detail(domain.ErrInvalidState, "schedule is no longer editable")
	}

	previous := schedule.ScheduledDate
	schedule.ScheduledDate, schedule.GuaranteeCompletionDate, schedule.TriggerEvent, schedule.UpdatedAt = scheduledAt, guarantee, trigger, now
	s.recordAudit(ctx, schedule, ac, auditdomain.Entry{
		EventType: auditdomain.EventAction,
		Reason:    "payout schedule updated",
		Metadata: map[string]any{
			"action":             "payout_schedule.update",
			"old_scheduled_date": previous.Format(time.RFC3339),
			"new_scheduled_date": scheduledAt.Format(time.RFC3339),
			"trigger_event":      trigger,
		},
	})
	return schedule, nil
}

func (s *Service) Cancel(ctx context.Context, ac access.Context, id snowflake.ID, reason string) (*domain.Schedule, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectPayoutSchedule, access.ActionCancel); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.ErrInvalidReason
	}
	schedule, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	cancellable := []domain.Status{domain.StatusScheduled, domain.StatusPending}
	if !hasStatus(schedule.Status, cancellable) {
		return nil, errs.Detail(domain.ErrInvalidState, "schedule is %s", schedule.Status)
	}

	now := s.clock.Now()
	n, err := s.repo.Transition(ctx, s.db, id, cancellable, map[string]any{
		"status":              domain.StatusCancelled,
		"cancellation_reason": reason,
		"cancelled_at":        now,
		"updated_at":          now,
	})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, errs.Detail(domain.ErrInvalidState, "schedule is no longer cancellable")
	}

	oldStatus := schedule.Status
	schedule.Status, schedule.CancellationReason, schedule.CancelledAt, schedule.UpdatedAt = domain.StatusCancelled, &reason, &now, now
	s.recordAudit(ctx, schedule, ac, auditdomain.Entry{
		EventType: auditdomain.EventStatusChange,
		OldStatus: string(oldStatus),
		NewStatus: string(domain.StatusCancelled),
		Reason:    reason,
	})
	s.log.Info("payout schedule cancelled", zap.String("schedule_id", id.String()), zap.String("reason", reason))
	return schedule, nil
}

// TriggerProcessing runs a scheduled row out of band. The processing
// error, if any, is returned after the failure is recorded.
func (s *Service) TriggerProcessing(ctx context.Context, ac access.Context, id snowflake.ID) (*domain.Schedule, error) {
	if err := s.authorizer.Authorize(ctx, ac, access.ObjectPayoutSchedule, access.ActionTrigger); err != nil {
		return nil, err
	}
	schedule, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if schedule.Status != domain.StatusScheduled {
		return nil, errs.Detail(domain.ErrInvalidState, "schedule is %s", schedule.Status)
	}

	claimed, procErr := s.processSchedule(ctx, ac, schedule, []domain.Status{domain.StatusScheduled})
	if !claimed && procErr == nil {
		return nil, errs.Detail(domain.ErrInvalidState, "schedule was claimed concurrently")
	}
	current, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return current, procErr
}

// ProcessDueSchedules advances every due schedule in one bounded page.
func (s *Service) ProcessDueSchedules(ctx context.Context) (*batch.Summary, error) {
	schedules, err := s.repo.ListDue(ctx, s.db, s.clock.Now(), domain.MaxRetries, s.batchSize)
	if err != nil {
		return nil, err
	}

	summary := batch.New()
	system := access.System()
	from := []domain.Status{domain.StatusScheduled, domain.StatusFailed}
	for _, schedule := range schedules {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		claimed, err := s.processSchedule(ctx, system, schedule, from)
		switch {
		case errors.Is(err, payoutdomain.ErrFundsHeld):
			summary.Skip()
		case err != nil:
			summary.Fail(schedule.ID.String(), err)
		case claimed:
			summary.Succeed()
		default:
			summary.Skip()
		}
	}

	if len(schedules) > 0 {
		s.log.Info("payout schedule sweep finished",
			zap.Int("selected", len(schedules)),
			zap.Int("processed", summary.Processed),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped),
		)
	}
	return summary, nil
}

// processSchedule reports false when another worker advanced the row first.
func (s *Service) processSchedule(ctx context.Context, ac access.Context, schedule *domain.Schedule, from []domain.Status) (bool, error) {
	now := s.clock.Now()
	n, err := s.repo.Transition(ctx, s.db, schedule.ID, from, map[string]any{
		"status":     domain.StatusProcessing,
		"updated_at": now,
	})
	if err != nil {
		return false, err
	}
	if n == 0 {
		s.log.Info("payout schedule already claimed", zap.String("schedule_id", schedule.ID.String()))
		return false, nil
	}
	oldStatus := schedule.Status

	payoutID, err := s.payouts.CreateForSchedule(ctx, payoutdomain.Target{
		ScheduleID:  schedule.ID,
		PlacementID: schedule.PlacementID,
		PayoutID:    schedule.PayoutID,
	})
	if errors.Is(err, payoutdomain.ErrFundsHeld) {
		return true, s.deferSchedule(ctx, schedule, oldStatus, err)
	}
	if err != nil {
		return true, s.handleScheduleFailure(ctx, ac, schedule, payoutID, err)
	}

	processedAt := s.clock.Now()
	n, err = s.repo.Transition(ctx, s.db, schedule.ID, []domain.Status{domain.StatusProcessing}, map[string]any{
		"status":         domain.StatusProcessed,
		"payout_id":      payoutID,
		"processed_at":   processedAt,
		"failure_reason": nil,
		"updated_at":     processedAt,
	})
	if err != nil {
		return true, err
	}
	if n == 0 {
		return true, errs.Detail(domain.ErrInvalidState, "schedule left processing before completion")
	}
	schedule.Status, schedule.PayoutID, schedule.ProcessedAt, schedule.FailureReason = domain.StatusProcessed, &payoutID, &processedAt, nil

	s.recordAudit(ctx, schedule, ac, auditdomain.Entry{
		EventType: auditdomain.EventStatusChange,
		OldStatus: string(oldStatus),
		NewStatus: string(domain.StatusProcessed),
		Reason:    "payout schedule processed",
	})
	s.publish(ctx, events.TypePayoutScheduleProcessed, schedule, nil)

	s.log.Info("payout schedule processed",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("placement_id", schedule.PlacementID),
		zap.String("payout_id", payoutID.String()),
	)
	return true, nil
}

// deferSchedule returns a schedule blocked by an escrow hold to the status it
// was claimed from. retry_count is left alone.
func (s *Service) deferSchedule(ctx context.Context, schedule *domain.Schedule, from domain.Status, cause error) error {
	if _, err := s.repo.Transition(ctx, s.db, schedule.ID, []domain.Status{domain.StatusProcessing}, map[string]any{
		"status":     from,
		"updated_at": s.clock.Now(),
	}); err != nil {
		return errors.Join(cause, err)
	}
	schedule.Status = from
	s.log.Info("payout schedule deferred",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("placement_id", schedule.PlacementID),
		zap.Error(cause),
	)
	return cause
}

// handleScheduleFailure records the failure and returns cause.
func (s *Service) handleScheduleFailure(ctx context.Context, ac access.Context, schedule *domain.Schedule, payoutID snowflake.ID, cause error) error {
	if _, err := s.markFailed(ctx, ac, schedule, payoutID, cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// markFailed moves a processing schedule to failed with retry_count+1. It
// reports false when the row had already left processing. The terminal event
// is published only when retry_count reaches MaxRetries.
func (s *Service) markFailed(ctx context.Context, ac access.Context, schedule *domain.Schedule, payoutID snowflake.ID, cause error) (bool, error) {
	current, err := s.repo.FindByID(ctx, s.db, schedule.ID)
	if err != nil {
		return false, err
	}
	retryCount := schedule.RetryCount
	if current != nil {
		retryCount = current.RetryCount
	}
	retryCount++
	reason := cause.Error()

	now := s.clock.Now()
	fields := map[string]any{
		"status":         domain.StatusFailed,
		"failure_reason": reason,
		"retry_count":    retryCount,
		"updated_at":     now,
	}
	if payoutID != 0 {
		fields["payout_id"] = payoutID
	}
	n, err := s.repo.Transition(ctx, s.db, schedule.ID, []domain.Status{domain.StatusProcessing}, fields)
	if err != nil {
		return false, err
	}
	if n == 0 {
		s.log.Info("payout schedule left processing before failure was recorded",
			zap.String("schedule_id", schedule.ID.String()))
		return false, nil
	}
	if payoutID != 0 {
		schedule.PayoutID = &payoutID
	}
	schedule.Status, schedule.FailureReason, schedule.RetryCount = domain.StatusFailed, &reason, retryCount

	s.recordAudit(ctx, schedule, ac, auditdomain.Entry{
		EventType: auditdomain.EventFailed,
		OldStatus: string(domain.StatusProcessing),
		NewStatus: string(domain.StatusFailed),
		Reason:    reason,
		Metadata:  map[string]any{"retry_count": retryCount},
	})

	s.log.Warn("payout schedule failed",
		zap.String("schedule_id", schedule.ID.String()),
		zap.String("placement_id", schedule.PlacementID),
		zap.Int("retry_count", retryCount),
		zap.Error(cause),
	)
	if retryCount == domain.MaxRetries {
		s.metrics.IncTerminalFailure()
		s.publish(ctx, events.TypePayoutScheduleFailed, schedule, map[string]any{
			"retry_count":    retryCount,
			"failure_reason": reason,
		})
	}
	return true, nil
}

// RecoverStaleSchedules fails schedules stuck in processing for longer than
// olderThan, so the due sweep can retry them.
func (s *Service) RecoverStaleSchedules(ctx context.Context, olderThan time.Duration) (*batch.Summary, error) {
	if olderThan <= 0 {
		return nil, errs.Detail(domain.ErrInvalidStatus, "recovery threshold must be positive")
	}
	cutoff := s.clock.Now().Add(-olderThan)
	schedules, err := s.repo.ListStaleProcessing(ctx, s.db, cutoff, s.batchSize)
	if err != nil {
		return nil, err
	}

	summary := batch.New()
	system := access.System()
	for _, schedule := range schedules {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		cause := errs.Detail(domain.ErrStaleProcessing, "no progress since %s", schedule.UpdatedAt.UTC().Format(time.RFC3339))
		recovered, err := s.markFailed(ctx, system, schedule, 0, cause)
		switch {
		case err != nil:
			summary.Fail(schedule.ID.String(), err)
		case recovered:
			summary.Succeed()
		default:
			summary.Skip()
		}
	}

	if len(schedules) > 0 {
		s.log.Warn("recovered stale payout schedules",
			zap.Int("selected", len(schedules)),
			zap.Int("recovered", summary.Processed),
			zap.Time("cutoff", cutoff),
		)
	}
	return summary, nil
}

func (s *Service) find(ctx context.Context, id snowflake.ID) (*domain.Schedule, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	schedule, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, domain.ErrNotFound
	}
	return schedule, nil
}

func hasStatus(status domain.Status, in []domain.Status) bool {
	for _, candidate := range in {
		if status == candidate {
			return true
		}
	}
	return false
}

// recordAudit writes an entry when the schedule is linked to a payout.
func (s *Service) recordAudit(ctx context.Context, schedule *domain.Schedule, ac access.Context, entry auditdomain.Entry) {
	if schedule.PayoutID == nil || *schedule.PayoutID == 0 {
		return
	}
	entry.PayoutID = *schedule.PayoutID
	entry.ActorID = ac.UserID
	entry.ActorRole = ac.ActorRole()
	if entry.Metadata == nil {
		entry.Metadata = map[string]any{}
	}
	entry.Metadata["schedule_id"] = schedule.ID.String()
	entry.Metadata["placement_id"] = schedule.PlacementID
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn("schedule audit failed",
			zap.String("schedule_id", schedule.ID.String()),
			zap.String("event_type", string(entry.EventType)),
			zap.Error(err),
		)
	}
}

func (s *Service) publish(ctx context.Context, eventType string, schedule *domain.Schedule, extra map[string]any) {
	payload := map[string]any{
		"schedule_id":   schedule.ID.String(),
		"placement_id":  schedule.PlacementID,
		"status":        string(schedule.Status),
		"trigger_event": schedule.TriggerEvent,
	}
	if schedule.PayoutID != nil {
		payload["payout_id"] = schedule.PayoutID.String()
	}
	for k, v := range extra {
		payload[k] = v
	}
	s.publisher.Publish(ctx, events.New(eventType, s.clock.Now(), payload))
}
