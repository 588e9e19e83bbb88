package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	achievementdomain "github.com/mealforge/mealforge/internal/achievement/domain"
	"github.com/mealforge/mealforge/internal/billing/adapter"
	billingdomain "github.com/mealforge/mealforge/internal/billing/domain"
	"github.com/mealforge/mealforge/internal/config"
	creditsdomain "github.com/mealforge/mealforge/internal/credits/domain"
	"github.com/mealforge/mealforge/internal/metrics"
	streakdomain "github.com/mealforge/mealforge/internal/streak/domain"
	usagedomain "github.com/mealforge/mealforge/internal/usage/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret     = "test-jwt-secret"
	testWebhookSecret = "whsec_test"
)

type fakeCreditsService struct {
	ensureCalls int
	debitErr    error
	view        creditsdomain.BalanceView
}

func (f *fakeCreditsService) EnsureAccount(ctx context.Context, userID snowflake.ID) (creditsdomain.BalanceView, error) {
	f.ensureCalls++
	_ = ctx
	_ = userID
	return f.view, nil
}

func (f *fakeCreditsService) Get(ctx context.Context, userID snowflake.ID) (creditsdomain.BalanceView, error) {
	_ = ctx
	_ = userID
	return f.view, nil
}

func (f *fakeCreditsService) Debit(ctx context.Context, req creditsdomain.DebitRequest) (creditsdomain.BalanceView, error) {
	_ = ctx
	_ = req
	if f.debitErr != nil {
		return creditsdomain.BalanceView{}, f.debitErr
	}
	return f.view, nil
}

func (f *fakeCreditsService) Credit(ctx context.Context, req creditsdomain.CreditRequest) (creditsdomain.BalanceView, error) {
	_ = ctx
	_ = req
	return f.view, nil
}

func (f *fakeCreditsService) Replace(ctx context.Context, req creditsdomain.ReplaceRequest) (creditsdomain.BalanceView, error) {
	_ = ctx
	_ = req
	return f.view, nil
}

func (f *fakeCreditsService) Cancel(ctx context.Context, userID snowflake.ID, at time.Time) error {
	_ = ctx
	_ = userID
	_ = at
	return nil
}

func (f *fakeCreditsService) MarkPastDue(ctx context.Context, userID snowflake.ID) error {
	_ = ctx
	_ = userID
	return nil
}

func (f *fakeCreditsService) ListLedger(ctx context.Context, req creditsdomain.ListLedgerRequest) (creditsdomain.ListLedgerResponse, error) {
	_ = ctx
	_ = req
	return creditsdomain.ListLedgerResponse{}, nil
}

type fakeUsageService struct {
	recorded bool
}

func (f *fakeUsageService) Record(ctx context.Context, req usagedomain.RecordRequest) (usagedomain.RecordResponse, error) {
	_ = ctx
	if !req.Kind.Valid() {
		return usagedomain.RecordResponse{}, usagedomain.ErrInvalidKind
	}
	f.recorded = true
	return usagedomain.RecordResponse{Recorded: true}, nil
}

func (f *fakeUsageService) Counts(ctx context.Context, userID snowflake.ID) (usagedomain.Counts, error) {
	_ = ctx
	_ = userID
	return usagedomain.Counts{}, nil
}

type fakeStreakService struct {
	view streakdomain.StreakView
}

func (f *fakeStreakService) Touch(ctx context.Context, userID snowflake.ID, day time.Time) (streakdomain.StreakView, error) {
	_ = ctx
	_ = userID
	_ = day
	return f.view, nil
}

func (f *fakeStreakService) Refresh(ctx context.Context, userID snowflake.ID) (streakdomain.StreakView, error) {
	_ = ctx
	_ = userID
	return f.view, nil
}

func (f *fakeStreakService) Get(ctx context.Context, userID snowflake.ID) (streakdomain.StreakView, error) {
	_ = ctx
	_ = userID
	return f.view, nil
}

func (f *fakeStreakService) EffectiveStreak(ctx context.Context, userID snowflake.ID) (int64, error) {
	_ = ctx
	_ = userID
	return f.view.Best, nil
}

type fakeAchievementService struct {
	resp      achievementdomain.EvaluateResponse
	evalCalls int
}

func (f *fakeAchievementService) Evaluate(ctx context.Context, userID snowflake.ID) (achievementdomain.EvaluateResponse, error) {
	f.evalCalls++
	_ = ctx
	_ = userID
	return f.resp, nil
}

func (f *fakeAchievementService) ListUnlocked(ctx context.Context, userID snowflake.ID) ([]achievementdomain.UnlockedView, error) {
	_ = ctx
	_ = userID
	return f.resp.Unlocked, nil
}

type fakeLimiter struct {
	evalBusy     bool
	evalReleased bool
}

func (f *fakeLimiter) AllowDebit(ctx context.Context, userID string) (bool, error) {
	_ = ctx
	_ = userID
	return true, nil
}

func (f *fakeLimiter) AllowUsage(ctx context.Context, userID string) (bool, error) {
	_ = ctx
	_ = userID
	return true, nil
}

func (f *fakeLimiter) TryLockEvaluate(ctx context.Context, userID string) (string, bool, error) {
	_ = ctx
	_ = userID
	if f.evalBusy {
		return "", false, nil
	}
	return "lock-token", true, nil
}

func (f *fakeLimiter) ReleaseEvaluate(ctx context.Context, userID, token string) error {
	_ = ctx
	_ = userID
	_ = token
	f.evalReleased = true
	return nil
}

type fakeBillingService struct {
	processErr error
	processed  []string
}

func (f *fakeBillingService) Process(ctx context.Context, event *billingdomain.BillingEvent) error {
	_ = ctx
	f.processed = append(f.processed, event.ID)
	return f.processErr
}

type testServer struct {
	server      *Server
	credits     *fakeCreditsService
	usage       *fakeUsageService
	achievement *fakeAchievementService
	billing     *fakeBillingService
	limiter     *fakeLimiter
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		AuthJWTSecret:        testJWTSecret,
		BillingWebhookSecret: testWebhookSecret,
	}
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	engine := NewEngine(zap.NewNop(), metrics.New(registry), registry)

	credits := &fakeCreditsService{view: creditsdomain.BalanceView{
		Balance: 3,
		Total:   3,
		Status:  creditsdomain.SubscriptionStatusTrialing,
	}}
	usage := &fakeUsageService{}
	achievement := &fakeAchievementService{}
	billing := &fakeBillingService{}
	limiter := &fakeLimiter{}

	server := NewServer(ServerParams{
		Gin:            engine,
		Cfg:            cfg,
		Log:            zap.NewNop(),
		GenID:          node,
		Rewards:        config.NewStaticRewardConfigHolder(config.DefaultRewardConfig()),
		CreditSvc:      credits,
		UsageSvc:       usage,
		StreakSvc:      &fakeStreakService{view: streakdomain.StreakView{Current: 2, Best: 5}},
		AchievementSvc: achievement,
		BillingAdapter: adapter.New(cfg),
		BillingSvc:     billing,
		Limiter:        limiter,
	})

	return &testServer{
		server:      server,
		credits:     credits,
		usage:       usage,
		achievement: achievement,
		billing:     billing,
		limiter:     limiter,
	}
}

func bearerToken(t *testing.T, userID snowflake.ID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func doRequest(ts *testServer, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.Engine().ServeHTTP(rec, req)
	return rec
}

func TestAuth_MissingTokenRejected(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/credits", nil)
	rec := doRequest(ts, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_BadTokenRejected(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/credits", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := doRequest(ts, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSignup_EnsuresAccount(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/signup", nil)
	req.Header.Set("Authorization", bearerToken(t, snowflake.ID(700)))
	rec := doRequest(ts, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.credits.ensureCalls)

	var view creditsdomain.BalanceView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, int64(3), view.Balance)
}

func TestDebit_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"insufficient", creditsdomain.ErrInsufficientBalance, http.StatusPaymentRequired, "insufficient_balance"},
		{"inactive", creditsdomain.ErrSubscriptionNotActive, http.StatusForbidden, "subscription_not_active"},
		{"conflict", creditsdomain.ErrConflict, http.StatusConflict, "conflict"},
		{"invalid", creditsdomain.ErrInvalidAmount, http.StatusBadRequest, "validation_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.credits.debitErr = tc.err

			body := bytes.NewBufferString(`{"amount": 1}`)
			req := httptest.NewRequest(http.MethodPost, "/v1/credits/debit", body)
			req.Header.Set("Authorization", bearerToken(t, snowflake.ID(701)))
			req.Header.Set("Content-Type", "application/json")
			rec := doRequest(ts, req)

			assert.Equal(t, tc.status, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.code, resp.Error.Type)
		})
	}
}

func TestRecordRecipeEvent(t *testing.T) {
	ts := newTestServer(t)

	body := bytes.NewBufferString(`{"kind": "generated", "idempotency_key": "req-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/recipes/events", body)
	req.Header.Set("Authorization", bearerToken(t, snowflake.ID(702)))
	req.Header.Set("Content-Type", "application/json")
	rec := doRequest(ts, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.usage.recorded)
}

func TestGetStreak(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/streak", nil)
	req.Header.Set("Authorization", bearerToken(t, snowflake.ID(703)))
	rec := doRequest(ts, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var view streakdomain.StreakView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, int64(2), view.Current)
	assert.Equal(t, int64(5), view.Best)
}

func TestListAchievements_MergesCatalog(t *testing.T) {
	ts := newTestServer(t)
	ts.achievement.resp = achievementdomain.EvaluateResponse{
		Unlocked: []achievementdomain.UnlockedView{
			{AchievementID: "first_recipe", Title: "First Recipe", RewardCredits: 1, UnlockedAt: time.Now()},
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/achievements", nil)
	req.Header.Set("Authorization", bearerToken(t, snowflake.ID(704)))
	rec := doRequest(ts, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp ListAchievementsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Achievements, len(config.DefaultRewardConfig().Achievements))

	unlocked := 0
	for _, a := range resp.Achievements {
		if a.Unlocked {
			unlocked++
			assert.Equal(t, "first_recipe", a.ID)
		}
	}
	assert.Equal(t, 1, unlocked)
}

func TestEvaluateAchievements_ReleasesLock(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/achievements/evaluate", nil)
	req.Header.Set("Authorization", bearerToken(t, snowflake.ID(705)))
	rec := doRequest(ts, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ts.achievement.evalCalls)
	assert.True(t, ts.limiter.evalReleased)
}

func TestEvaluateAchievements_LockedReturnsConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.limiter.evalBusy = true

	req := httptest.NewRequest(http.MethodPost, "/v1/achievements/evaluate", nil)
	req.Header.Set("Authorization", bearerToken(t, snowflake.ID(706)))
	rec := doRequest(ts, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, ts.achievement.evalCalls)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "conflict", resp.Error.Type)
}

func webhookRequest(payload []byte, signed bool) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/billing", bytes.NewReader(payload))
	if signed {
		req.Header.Set(adapter.SignatureHeader, adapter.Sign(testWebhookSecret, time.Now(), payload))
	}
	return req
}

func TestBillingWebhook_RejectsUnsigned(t *testing.T) {
	ts := newTestServer(t)

	payload := []byte(`{"id": "evt_1", "type": "subscription.created", "data": {"object": {"user_id": "500", "plan_id": "monthly"}}}`)
	rec := doRequest(ts, webhookRequest(payload, false))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ts.billing.processed)
}

func TestBillingWebhook_ProcessesSignedEvent(t *testing.T) {
	ts := newTestServer(t)

	payload := []byte(`{"id": "evt_1", "type": "subscription.created", "data": {"object": {"user_id": "500", "plan_id": "monthly", "status": "active"}}}`)
	rec := doRequest(ts, webhookRequest(payload, true))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"evt_1"}, ts.billing.processed)
}

func TestBillingWebhook_DuplicateAcknowledged(t *testing.T) {
	ts := newTestServer(t)
	ts.billing.processErr = billingdomain.ErrEventAlreadyProcessed

	payload := []byte(`{"id": "evt_1", "type": "subscription.created", "data": {"object": {"user_id": "500", "plan_id": "monthly"}}}`)
	rec := doRequest(ts, webhookRequest(payload, true))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBillingWebhook_IgnoredTypeAcknowledged(t *testing.T) {
	ts := newTestServer(t)

	payload := []byte(`{"id": "evt_1", "type": "customer.updated", "data": {"object": {}}}`)
	rec := doRequest(ts, webhookRequest(payload, true))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.billing.processed)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := doRequest(ts, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
