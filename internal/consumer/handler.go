package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	attributiondomain "github.com/smallbiznis/placementpay/internal/attribution/domain"
	"github.com/smallbiznis/placementpay/internal/errs"
	"github.com/smallbiznis/placementpay/internal/observability/metrics"
	splitdomain "github.com/smallbiznis/placementpay/internal/split/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrUndecodable = errs.New(errs.KindValidation, "undecodable_placement_message")

var hundred = decimal.NewFromInt(100)

// PlacementMessage is the body of a placement.created delivery.
type PlacementMessage struct {
	PlacementID          string          `json:"placement_id"`
	CandidateRecruiterID string          `json:"candidate_recruiter_id"`
	CompanyRecruiterID   string          `json:"company_recruiter_id"`
	JobOwnerID           string          `json:"job_owner_id"`
	CandidateSourcerID   string          `json:"candidate_sourcer_id"`
	CompanySourcerID     string          `json:"company_sourcer_id"`
	Salary               decimal.Decimal `json:"salary"`
	FeePercentage        decimal.Decimal `json:"fee_percentage"`
	Currency             string          `json:"currency"`
}

// TotalFee is salary times fee percentage, rounded to cents.
func (m PlacementMessage) TotalFee() decimal.Decimal {
	return m.Salary.Mul(m.FeePercentage).Div(hundred).Round(2)
}

func (m PlacementMessage) participants() []attributiondomain.Participant {
	ids := map[attributiondomain.Role]string{
		attributiondomain.RoleCandidateRecruiter: m.CandidateRecruiterID,
		attributiondomain.RoleCompanyRecruiter:   m.CompanyRecruiterID,
		attributiondomain.RoleJobOwner:           m.JobOwnerID,
		attributiondomain.RoleCandidateSourcer:   m.CandidateSourcerID,
		attributiondomain.RoleCompanySourcer:     m.CompanySourcerID,
	}
	out := make([]attributiondomain.Participant, 0, len(ids))
	for _, role := range attributiondomain.Roles {
		if id := strings.TrimSpace(ids[role]); id != "" {
			out = append(out, attributiondomain.Participant{Role: role, PayeeID: id})
		}
	}
	return out
}

// DecodePlacement accepts either a bare message or one wrapped in an event
// envelope under "payload".
func DecodePlacement(body []byte) (PlacementMessage, error) {
	var envelope struct {
		PlacementMessage
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return PlacementMessage{}, errs.Detail(ErrUndecodable, "%v", err)
	}
	msg := envelope.PlacementMessage
	if msg.PlacementID == "" && len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &msg); err != nil {
			return PlacementMessage{}, errs.Detail(ErrUndecodable, "payload: %v", err)
		}
	}
	msg.PlacementID = strings.TrimSpace(msg.PlacementID)
	if msg.PlacementID == "" {
		return PlacementMessage{}, errs.Detail(ErrUndecodable, "missing placement_id")
	}
	return msg, nil
}

type HandlerParams struct {
	fx.In

	Log       *zap.Logger
	Snapshots attributiondomain.Service
	Splits    splitdomain.Service
	Metrics   *metrics.Metrics `optional:"true"`
}

// Handler turns placement deliveries into snapshots and splits.
type Handler struct {
	log       *zap.Logger
	snapshots attributiondomain.Service
	splits    splitdomain.Service
	metrics   *metrics.Metrics
}

func NewHandler(p HandlerParams) *Handler {
	return &Handler{
		log:       p.Log.Named("placement.consumer"),
		snapshots: p.Snapshots,
		splits:    p.Splits,
		metrics:   p.Metrics,
	}
}

// Process creates the snapshot, tolerating an existing one, and computes splits.
func (h *Handler) Process(ctx context.Context, msg PlacementMessage) (*splitdomain.Result, error) {
	currency := msg.Currency
	if currency == "" {
		currency = "usd"
	}
	_, err := h.snapshots.CreateSnapshot(ctx, attributiondomain.PlacementFacts{
		PlacementID:  msg.PlacementID,
		TotalFee:     msg.TotalFee(),
		Currency:     currency,
		Participants: msg.participants(),
	})
	if err != nil && !errors.Is(err, attributiondomain.ErrSnapshotExists) {
		return nil, err
	}
	return h.splits.ComputeSplitsAndTransactions(ctx, msg.PlacementID)
}

// HandleDelivery acks processed messages and requeues failures. Bodies that
// cannot be decoded or fail validation are dropped without requeue.
func (h *Handler) HandleDelivery(ctx context.Context, d amqp.Delivery) {
	log := h.log.With(
		zap.String("message_id", d.MessageId),
		zap.String("routing_key", d.RoutingKey),
		zap.Bool("redelivered", d.Redelivered),
	)

	msg, err := DecodePlacement(d.Body)
	if err != nil {
		log.Error("dropping undecodable placement message", zap.Error(err))
		h.settle(ctx, log, d, "poison", d.Nack(false, false))
		return
	}
	log = log.With(zap.String("placement_id", msg.PlacementID))

	result, err := h.Process(ctx, msg)
	if err != nil && errs.IsKind(err, errs.KindValidation) {
		log.Error("rejecting invalid placement", zap.Error(err))
		h.settle(ctx, log, d, "rejected", d.Nack(false, false))
		return
	}
	if err != nil {
		log.Warn("placement processing failed, requeueing", zap.Error(err))
		h.settle(ctx, log, d, "requeued", d.Nack(false, true))
		return
	}

	log.Info("placement processed",
		zap.Int("splits", len(result.Splits)),
		zap.Bool("created", result.Created),
	)
	h.settle(ctx, log, d, "acked", d.Ack(false))
}

func (h *Handler) settle(ctx context.Context, log *zap.Logger, d amqp.Delivery, outcome string, ackErr error) {
	h.metrics.RecordConsumerDelivery(ctx, d.RoutingKey, outcome)
	if ackErr != nil {
		log.Error("broker acknowledgement failed", zap.String("outcome", outcome), zap.Error(ackErr))
	}
}
