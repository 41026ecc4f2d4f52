package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/placementpay/internal/access"
	"github.com/smallbiznis/placementpay/internal/batch"
	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/smallbiznis/placementpay/internal/errs"
	promodomain "github.com/smallbiznis/placementpay/internal/promo/domain"
	"github.com/smallbiznis/placementpay/internal/provider"
	"github.com/smallbiznis/placementpay/internal/ratelimit"
	scheduledomain "github.com/smallbiznis/placementpay/internal/schedule/domain"
	splitdomain "github.com/smallbiznis/placementpay/internal/split/domain"
	webhookdomain "github.com/smallbiznis/placementpay/internal/webhook/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "test-secret"

type fakeSchedules struct {
	scheduledomain.Service
	getErr    error
	cancelErr error
	due       *batch.Summary
}

func (f *fakeSchedules) Get(_ context.Context, _ access.Context, id snowflake.ID) (*scheduledomain.Schedule, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &scheduledomain.Schedule{ID: id, PlacementID: "plc-1", Status: scheduledomain.StatusScheduled}, nil
}

func (f *fakeSchedules) Cancel(_ context.Context, _ access.Context, id snowflake.ID, reason string) (*scheduledomain.Schedule, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &scheduledomain.Schedule{ID: id, Status: scheduledomain.StatusCancelled, CancellationReason: &reason}, nil
}

func (f *fakeSchedules) ProcessDueSchedules(context.Context) (*batch.Summary, error) {
	return f.due, nil
}

type fakeSplits struct {
	splitdomain.Service
	payees map[string]bool
}

func (f *fakeSplits) IsPayee(_ context.Context, _ string, payeeID string) (bool, error) {
	return f.payees[payeeID], nil
}

func (f *fakeSplits) PlacementSummary(_ context.Context, placementID string) (*splitdomain.Summary, error) {
	return &splitdomain.Summary{
		Result: splitdomain.Result{
			PlacementID: placementID,
			Splits: []*splitdomain.Split{
				{ID: 1, PlacementID: placementID, PayeeID: "cr-1", Amount: decimal.NewFromInt(3000)},
				{ID: 2, PlacementID: placementID, PayeeID: "co-1", Amount: decimal.NewFromInt(2000)},
			},
			Transactions: []*splitdomain.Transaction{
				{ID: 10, SplitID: 1, PayeeID: "cr-1"},
				{ID: 11, SplitID: 2, PayeeID: "co-1"},
			},
		},
		TotalFee:          decimal.NewFromInt(10000),
		PlatformRemainder: decimal.NewFromInt(5000),
	}, nil
}

type fakeWebhooks struct {
	outcome webhookdomain.Outcome
	err     error
	header  string
	calls   int
}

func (f *fakeWebhooks) Handle(_ context.Context, _ []byte, signatureHeader string) (webhookdomain.Outcome, error) {
	f.calls++
	f.header = signatureHeader
	return f.outcome, f.err
}

type fakePromos struct {
	calls int
}

func (f *fakePromos) Validate(_ context.Context, code string) (promodomain.PromoCode, error) {
	f.calls++
	return promodomain.PromoCode{ID: 1, Code: code, PercentOff: decimal.NewFromInt(10)}, nil
}

type fakeBucket struct {
	allowed bool
}

func (f *fakeBucket) Allow(context.Context, string, float64, int) (*ratelimit.RateLimitResult, error) {
	return &ratelimit.RateLimitResult{Allowed: f.allowed, RetryAfter: 1500 * time.Millisecond}, nil
}

type testServer struct {
	engine    *gin.Engine
	schedules *fakeSchedules
	splits    *fakeSplits
	webhooks  *fakeWebhooks
	promos    *fakePromos
	bucket    *fakeBucket
	resolver  *access.JWTResolver
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	authorizer, err := access.NewAuthorizer(zap.NewNop())
	require.NoError(t, err)

	ts := &testServer{
		engine:    NewEngine(nil),
		schedules: &fakeSchedules{due: &batch.Summary{Processed: 2, Errors: []batch.RowError{}}},
		splits:    &fakeSplits{payees: map[string]bool{"cr-1": true}},
		webhooks:  &fakeWebhooks{outcome: webhookdomain.OutcomeProcessed},
		promos:    &fakePromos{},
		bucket:    &fakeBucket{allowed: true},
		resolver:  access.NewJWTResolver(testSecret),
	}
	NewServer(ServerParams{
		Gin:        ts.engine,
		Log:        zap.NewNop(),
		Resolver:   ts.resolver,
		Authorizer: authorizer,
		Schedules:  ts.schedules,
		Splits:     ts.splits,
		Webhooks:   ts.webhooks,
		Promos:     ts.promos,
		PromoLimit: ratelimit.NewPromoLookupLimiterWithBucket(ts.bucket,
			config.RateLimitConfig{PromoLookupRate: 1, PromoLookupBurst: 1}, zap.NewNop()),
	})
	return ts
}

func (ts *testServer) token(t *testing.T, userID string, roles ...string) string {
	t.Helper()
	token, err := ts.resolver.IssueToken(userID, roles, time.Now().Add(time.Hour).Unix())
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresBearerToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/payout-schedules/1", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Type)

	rec = ts.do(http.MethodGet, "/v1/payout-schedules/1", "not-a-jwt", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProcessDueRequiresAutomationCapability(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/v1/payout-schedules/process-due", ts.token(t, "m-1", access.RoleMember), "")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden: payout_schedule.process_due requires administrative access", decodeError(t, rec).Message)

	rec = ts.do(http.MethodPost, "/v1/payout-schedules/process-due", ts.token(t, "sweeper", access.RoleSystem), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Data batch.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Data.Processed)
}

func TestErrorKindsMapToStatus(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.token(t, "a-1", access.RoleAdmin)

	rec := ts.do(http.MethodGet, "/v1/payout-schedules/abc", admin, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	ts.schedules.getErr = scheduledomain.ErrNotFound
	rec = ts.do(http.MethodGet, "/v1/payout-schedules/42", admin, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)

	ts.schedules.cancelErr = errs.Detail(scheduledomain.ErrInvalidState, "status is processed")
	rec = ts.do(http.MethodPost, "/v1/payout-schedules/42/cancel", admin, `{"reason":"offer withdrawn"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "status is processed")

	ts.schedules.cancelErr = nil
	rec = ts.do(http.MethodPost, "/v1/payout-schedules/42/cancel", admin, `{"reason":"offer withdrawn"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.schedules.getErr = errors.New("connection reset")
	rec = ts.do(http.MethodGet, "/v1/payout-schedules/42", admin, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decodeError(t, rec).Message)
}

func TestPlacementSplitsAreRoleScoped(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/v1/placements/plc-1/splits", ts.token(t, "stranger", access.RoleMember), "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(http.MethodGet, "/v1/placements/plc-1/splits", ts.token(t, "cr-1", access.RoleMember), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var member struct {
		Data map[string]json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &member))
	assert.NotContains(t, member.Data, "platform_remainder")
	var splits []splitdomain.Split
	require.NoError(t, json.Unmarshal(member.Data["splits"], &splits))
	require.Len(t, splits, 1)
	assert.Equal(t, "cr-1", splits[0].PayeeID)

	rec = ts.do(http.MethodGet, "/v1/placements/plc-1/splits", ts.token(t, "a-1", access.RoleAdmin), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var admin struct {
		Data placementSplitsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &admin))
	require.NotNil(t, admin.Data.PlatformRemainder)
	assert.True(t, admin.Data.PlatformRemainder.Equal(decimal.NewFromInt(5000)))
	assert.Len(t, admin.Data.Splits, 2)
}

func TestStripeWebhookResponses(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"outcome":"processed"}`, rec.Body.String())
	assert.Equal(t, "t=1,v1=abc", ts.webhooks.header)

	ts.webhooks.outcome = webhookdomain.OutcomeRejected
	ts.webhooks.err = provider.ErrInvalidSignature
	rec = ts.do(http.MethodPost, "/webhooks/stripe", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts.webhooks.outcome = webhookdomain.OutcomeFailed
	ts.webhooks.err = errors.New("db down")
	rec = ts.do(http.MethodPost, "/webhooks/stripe", "", `{}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestStripeWebhookRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t)

	body := `{"id":"evt_big","pad":"` + strings.Repeat("x", maxWebhookBodyBytes) + `"}`
	rec := ts.do(http.MethodPost, "/webhooks/stripe", "", body)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "payload_too_large", decodeError(t, rec).Type)
	assert.Zero(t, ts.webhooks.calls)

	body = `{"id":"evt_ok","pad":"` + strings.Repeat("x", maxWebhookBodyBytes-64) + `"}`
	rec = ts.do(http.MethodPost, "/webhooks/stripe", "", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.webhooks.calls)
}

func TestPromoLookupsAreRateLimited(t *testing.T) {
	ts := newTestServer(t)
	token := ts.token(t, "cr-1", access.RoleMember)

	rec := ts.do(http.MethodGet, "/v1/promo-codes/SUMMER25", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.promos.calls)

	ts.bucket.allowed = false
	rec = ts.do(http.MethodGet, "/v1/promo-codes/SUMMER25", token, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeError(t, rec).Type)
	assert.Equal(t, 1, ts.promos.calls)
}
