package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"
	attributiondomain "github.com/smallbiznis/placementpay/internal/attribution/domain"
	attributionrepo "github.com/smallbiznis/placementpay/internal/attribution/repository"
	attributionservice "github.com/smallbiznis/placementpay/internal/attribution/service"
	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/events"
	splitdomain "github.com/smallbiznis/placementpay/internal/split/domain"
	splitrepo "github.com/smallbiznis/placementpay/internal/split/repository"
	splitservice "github.com/smallbiznis/placementpay/internal/split/service"
	"github.com/smallbiznis/placementpay/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type fakeAck struct {
	acked    int
	nacked   int
	requeued bool
}

func (a *fakeAck) Ack(uint64, bool) error { a.acked++; return nil }

func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked++
	a.requeued = requeue
	return nil
}

func (a *fakeAck) Reject(_ uint64, requeue bool) error {
	a.nacked++
	a.requeued = requeue
	return nil
}

type tierMap map[string]string

func (m tierMap) ResolveTier(_ context.Context, userID string) (string, error) {
	if tier, ok := m[userID]; ok {
		return tier, nil
	}
	return "free", nil
}

type failingSplits struct {
	splitdomain.Service
}

func (failingSplits) ComputeSplitsAndTransactions(context.Context, string) (*splitdomain.Result, error) {
	return nil, errors.New("database unavailable")
}

func newHandler(t *testing.T) (*Handler, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t, &attributiondomain.Snapshot{}, &splitdomain.Split{}, &splitdomain.Transaction{})
	node := dbtest.Node(t)
	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	log := zaptest.NewLogger(t)

	snapshots := attributionservice.NewService(attributionservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Rates: config.NewStaticRateTableHolder(config.DefaultRateTable()),
		Repo:  attributionrepo.Provide(),
		Tiers: tierMap{"cr-1": "pro"},
	})
	splits := splitservice.NewService(splitservice.Params{
		DB: conn, Log: log, GenID: node, Clock: clk,
		Repo:      splitrepo.Provide(),
		Snapshots: snapshots,
		Publisher: events.NewRecorder(),
	})
	return NewHandler(HandlerParams{Log: log, Snapshots: snapshots, Splits: splits}), conn
}

func delivery(ack amqp.Acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		RoutingKey:   events.TypePlacementCreated,
		Body:         []byte(body),
	}
}

const placementBody = `{
	"placement_id": "plc-9",
	"candidate_recruiter_id": "cr-1",
	"job_owner_id": "jo-1",
	"salary": 120000,
	"fee_percentage": "20"
}`

func TestDecodePlacement(t *testing.T) {
	msg, err := DecodePlacement([]byte(placementBody))
	require.NoError(t, err)
	assert.Equal(t, "plc-9", msg.PlacementID)
	assert.True(t, msg.TotalFee().Equal(decimal.NewFromInt(24000)))

	wrapped, err := DecodePlacement([]byte(`{"id":"e1","type":"placement.created","payload":` + placementBody + `}`))
	require.NoError(t, err)
	assert.Equal(t, "plc-9", wrapped.PlacementID)

	_, err = DecodePlacement([]byte(`not json`))
	assert.True(t, errors.Is(err, ErrUndecodable))

	_, err = DecodePlacement([]byte(`{"salary": 1}`))
	assert.True(t, errors.Is(err, ErrUndecodable))
}

func TestTotalFeeRoundsToCents(t *testing.T) {
	msg := PlacementMessage{Salary: decimal.RequireFromString("100001"), FeePercentage: decimal.RequireFromString("17.5")}
	assert.Equal(t, "17500.18", msg.TotalFee().StringFixed(2))
}

func TestHandleDeliveryAcksAndCreatesSplits(t *testing.T) {
	h, conn := newHandler(t)
	ack := &fakeAck{}

	h.HandleDelivery(context.Background(), delivery(ack, placementBody))
	assert.Equal(t, 1, ack.acked)
	assert.Zero(t, ack.nacked)

	var splits []splitdomain.Split
	require.NoError(t, conn.Where("placement_id = ?", "plc-9").Order("role").Find(&splits).Error)
	require.Len(t, splits, 2)
	amounts := map[string]string{}
	for _, s := range splits {
		amounts[s.PayeeID] = s.Amount.StringFixed(2)
	}
	// pro candidate recruiter at 30%, free job owner at 5%
	assert.Equal(t, "7200.00", amounts["cr-1"])
	assert.Equal(t, "1200.00", amounts["jo-1"])
}

func TestHandleDeliveryIsIdempotent(t *testing.T) {
	h, conn := newHandler(t)

	h.HandleDelivery(context.Background(), delivery(&fakeAck{}, placementBody))
	ack := &fakeAck{}
	h.HandleDelivery(context.Background(), delivery(ack, placementBody))
	assert.Equal(t, 1, ack.acked)

	var count int64
	require.NoError(t, conn.Model(&splitdomain.Transaction{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestHandleDeliveryDropsPoisonMessages(t *testing.T) {
	h, _ := newHandler(t)
	ack := &fakeAck{}

	h.HandleDelivery(context.Background(), delivery(ack, `{"placement_id": 12`))
	assert.Zero(t, ack.acked)
	assert.Equal(t, 1, ack.nacked)
	assert.False(t, ack.requeued)
}

func TestHandleDeliveryRequeuesFailures(t *testing.T) {
	h, _ := newHandler(t)
	h.splits = failingSplits{Service: h.splits}
	ack := &fakeAck{}

	h.HandleDelivery(context.Background(), delivery(ack, placementBody))
	assert.Zero(t, ack.acked)
	assert.Equal(t, 1, ack.nacked)
	assert.True(t, ack.requeued)
}

func TestHandleDeliveryRejectsInvalidPlacements(t *testing.T) {
	h, conn := newHandler(t)

	bodies := []string{
		`{"placement_id":"plc-bad","candidate_recruiter_id":"cr-1","salary":0,"fee_percentage":"20"}`,
		`{"placement_id":"plc-none","salary":50000,"fee_percentage":"20"}`,
	}
	for _, body := range bodies {
		ack := &fakeAck{}
		h.HandleDelivery(context.Background(), delivery(ack, body))
		assert.Zero(t, ack.acked, body)
		assert.Equal(t, 1, ack.nacked, body)
		assert.False(t, ack.requeued, body)
	}

	var splits int64
	require.NoError(t, conn.Model(&splitdomain.Split{}).Count(&splits).Error)
	assert.Zero(t, splits)
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	h, _ := newHandler(t)
	c := &Consumer{handler: h, log: h.log}
	deliveries := make(chan amqp.Delivery, 1)
	ack := &fakeAck{}
	deliveries <- delivery(ack, placementBody)
	close(deliveries)

	c.Run(context.Background(), deliveries)
	assert.Equal(t, 1, ack.acked)
}
