package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/access"
	auditdomain "github.com/smallbiznis/placementpay/internal/audit/domain"
	"github.com/smallbiznis/placementpay/internal/audit/masking"
	"github.com/smallbiznis/placementpay/internal/clock"
	obscontext "github.com/smallbiznis/placementpay/internal/observability/context"
	"github.com/smallbiznis/placementpay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, entry auditdomain.Entry) error {
	if entry.PayoutID == 0 {
		return auditdomain.ErrInvalidPayout
	}
	if !entry.EventType.Valid() {
		return auditdomain.ErrInvalidEventType
	}

	actorID, actorRole := s.resolveActor(ctx, entry.ActorID, entry.ActorRole)

	payload := map[string]any{}
	for key, value := range masking.MaskSensitive(entry.Metadata) {
		payload[key] = value
	}

	row := auditdomain.PayoutAuditLog{
		ID:        s.genID.Generate(),
		PayoutID:  entry.PayoutID,
		EventType: entry.EventType,
		OldStatus: normalize(entry.OldStatus),
		NewStatus: normalize(entry.NewStatus),
		OldAmount: nullDecimal(entry.OldAmount),
		NewAmount: nullDecimal(entry.NewAmount),
		Reason:    normalize(entry.Reason),
		ActorID:   normalize(actorID),
		ActorRole: normalize(actorRole),
		RequestID: normalize(obscontext.RequestIDFromContext(ctx)),
		CreatedAt: s.clock.Now(),
	}
	if len(payload) > 0 {
		row.Metadata = datatypes.JSONMap(payload)
	}

	if err := s.repo.Insert(ctx, s.db, &row); err != nil {
		s.log.Warn("failed to write audit log",
			zap.String("payout_id", entry.PayoutID.String()),
			zap.String("event_type", string(entry.EventType)),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	if req.PayoutID == 0 {
		return auditdomain.ListResponse{}, auditdomain.ErrInvalidPayout
	}

	var cursor *auditdomain.AuditCursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
		if err != nil || id == 0 {
			return auditdomain.ListResponse{}, auditdomain.ErrInvalidPageToken
		}
		cursor = &auditdomain.AuditCursor{ID: id, CreatedAt: createdAt}
	}

	limit := pagination.Limit(req.PageSize)
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		PayoutID:  req.PayoutID,
		EventType: req.EventType,
		Cursor:    cursor,
		Limit:     limit,
	})
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(item *auditdomain.PayoutAuditLog) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	logs := make([]auditdomain.PayoutAuditLog, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		logs = append(logs, *item)
	}

	resp := auditdomain.ListResponse{AuditLogs: logs}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}

func (s *Service) resolveActor(ctx context.Context, actorID, actorRole string) (string, string) {
	if strings.TrimSpace(actorID) == "" {
		if ac, ok := access.FromContext(ctx); ok {
			actorID = ac.UserID
			if actorRole == "" {
				actorRole = ac.ActorRole()
			}
		}
	}
	if strings.TrimSpace(actorID) == "" {
		system := access.System()
		actorID, actorRole = system.UserID, system.ActorRole()
	}
	return actorID, actorRole
}

func normalize(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func nullDecimal(value *decimal.Decimal) decimal.NullDecimal {
	if value == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*value)
}
