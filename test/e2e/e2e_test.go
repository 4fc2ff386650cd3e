// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"decision-workers/internal/alerting"
	"decision-workers/internal/common/config"
	apperrors "decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"
	"decision-workers/internal/confirmation"
	"decision-workers/internal/conversation"
	"decision-workers/internal/events"
	"decision-workers/internal/intent"
	"decision-workers/internal/models"
	"decision-workers/internal/notify"
	"decision-workers/pkg/registry"

	classifyseverity "decision-workers/internal/workers/alerting/classify-severity"
	classifyintent "decision-workers/internal/workers/conversation/classify-intent"
	updateconversationstate "decision-workers/internal/workers/conversation/update-conversation-state"
	executeaction "decision-workers/internal/workers/decision/execute-action"
)

// ==========================
// AWS mocks
// ==========================

type MockSNSService struct {
	mu       sync.Mutex
	messages []string
}

func (m *MockSNSService) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, *params.Message)
	return &sns.PublishOutput{}, nil
}

type MockSESService struct {
	mu    sync.Mutex
	count int
}

func (m *MockSESService) SendEmail(_ context.Context, _ *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.count++
	return &ses.SendEmailOutput{}, nil
}

type MockPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (m *MockPublisher) PublishMessage(_ context.Context, _, correlationKey string, _ interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, correlationKey)
	return nil
}

// ==========================
// Environment
// ==========================

type environment struct {
	hub       *events.Hub
	sms       *MockSNSService
	email     *MockSESService
	publisher *MockPublisher
	actions   *[]map[string]interface{}

	severity *classifyseverity.Handler
	intent   *classifyintent.Handler
	state    *updateconversationstate.Handler
	execute  *executeaction.Handler
	sessions *conversation.Sessions
}

func appConfig(actionsURL string) *config.Config {
	cfg := &config.Config{
		Workers: map[string]config.WorkerConfig{},
		Alerts: config.AlertsConfig{
			Streams:     []string{"rmn.inventory", "rmn.demand"},
			MessageName: "alert-raised",
			Patterns:    []config.AlertPatternConfig{{Pattern: "*.failed", Severity: "high"}},
		},
		Actions: config.ActionsConfig{BaseURL: actionsURL, Timeout: 2000},
	}
	cfg.Notifications.SMS.Enabled = true
	cfg.Notifications.SMS.PhoneNumber = "+15550100"
	cfg.Notifications.SMS.PriorityThreshold = "critical"
	cfg.Notifications.Email.Enabled = true
	cfg.Notifications.Email.FromEmail = "alerts@example.com"
	cfg.Notifications.Email.Recipients = []string{"ops@example.com"}
	cfg.Notifications.Email.PriorityThreshold = "high"
	return cfg
}

// completerReply answers like a model would, keyed on the query.
func completerReply(_ context.Context, _ string, messages []intent.Message) (string, error) {
	query := messages[len(messages)-1].Content
	switch query {
	case "Why is SKU 4411 about to stock out?":
		return "```json\n{\"intent\":\"analysis\",\"confidence\":0.88,\"businessCategory\":\"inventory\",\"extractedParameters\":{\"sku\":\"4411\"},\"explanation\":\"root cause of stockout\"}\n```", nil
	case "Do the first one":
		return `{"intent":"action","confidence":1.7,"businessCategory":"budget","explanation":"accepts recommendation"}`, nil
	default:
		return "I think this is about budgets", nil
	}
}

func setup(t *testing.T) *environment {
	t.Helper()
	log := logger.NewTestLogger(t)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	var actionsMu sync.Mutex
	var actions []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		actionsMu.Lock()
		actions = append(actions, body)
		actionsMu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := appConfig(server.URL)
	env := &environment{
		hub:       events.NewHub(),
		sms:       &MockSNSService{},
		email:     &MockSESService{},
		publisher: &MockPublisher{},
		actions:   &actions,
	}

	file, err := registry.LoadRegistry("../../configs/alert-rules.json")
	require.NoError(t, err)
	def := alerting.DefinitionFromConfig(cfg.Alerts).Merge(alerting.DefinitionFromFile(file))
	rules, err := alerting.Build(def)
	require.NoError(t, err)
	ingestor := alerting.NewIngestor(alerting.NewClassifier(rules, log), alerting.NewRedisDeduper(rdb, time.Hour), env.hub, log)

	notifier, err := notify.NewNotifier(cfg.Notifications, env.sms, env.email, log)
	require.NoError(t, err)
	sub := notifier.Subscribe(env.hub.Alerts)
	t.Cleanup(sub.Unsubscribe)

	classifier := intent.NewClassifier(intent.CompleterFunc(completerReply), log,
		intent.WithCache(intent.NewRedisCache(rdb, time.Minute)),
		intent.WithTimeout(time.Second))

	env.sessions = conversation.NewSessions(log, conversation.WithPublisher(env.hub.PendingActions))
	coordinator := confirmation.NewCoordinator(confirmation.NewExecutor(cfg.Actions, log).Execute, env.hub, log)

	env.severity, err = classifyseverity.NewHandler(classifyseverity.HandlerOptions{
		Config: classifyseverity.NewConfig(cfg), Ingestor: ingestor, Publisher: env.publisher, Logger: log,
	})
	require.NoError(t, err)
	env.intent, err = classifyintent.NewHandler(classifyintent.HandlerOptions{
		Config: classifyintent.NewConfig(cfg), Classifier: classifier, Sessions: env.sessions, Logger: log,
	})
	require.NoError(t, err)
	env.state, err = updateconversationstate.NewHandler(updateconversationstate.HandlerOptions{
		Config: updateconversationstate.NewConfig(cfg), Sessions: env.sessions, Pins: events.NewPinboard(env.hub.Pins), Logger: log,
	})
	require.NoError(t, err)
	env.execute, err = executeaction.NewHandler(executeaction.HandlerOptions{
		Config: executeaction.NewConfig(cfg), Coordinator: coordinator, Sessions: env.sessions, Logger: log,
	})
	require.NoError(t, err)

	return env
}

func event(t *testing.T, id, source, eventType, subject string, data map[string]interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(map[string]interface{}{
		"specversion": "1.0",
		"id":          id,
		"source":      source,
		"type":        eventType,
		"subject":     subject,
		"time":        "2026-03-02T09:15:00Z",
		"data":        data,
	})
	require.NoError(t, err)
	return raw
}

// ==========================
// Tests
// ==========================

func TestDecisionJourney(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	var decisions []events.DecisionUpdated
	env.hub.Decisions.Subscribe(func(u events.DecisionUpdated) error {
		decisions = append(decisions, u)
		return nil
	})

	// 1. A stockout warning arrives and is surfaced as a critical alert.
	stockout := event(t, "evt-1", "rmn.inventory", "inventory.stockout.warning", "sku/4411",
		map[string]interface{}{"days_to_stockout": 1, "impact_revenue": 82000})
	sev, err := env.severity.Execute(ctx, &classifyseverity.Input{Event: stockout})
	require.NoError(t, err)
	assert.Equal(t, "critical", sev.Severity)
	assert.True(t, sev.AlertPublished)
	assert.Equal(t, []string{"sku/4411"}, env.publisher.keys)
	assert.Len(t, env.sms.messages, 1)
	assert.Equal(t, 1, env.email.count)

	// Redelivery is consumed once.
	again, err := env.severity.Execute(ctx, &classifyseverity.Input{Event: stockout})
	require.NoError(t, err)
	assert.Equal(t, alerting.SkipDuplicate, again.Skipped)
	assert.Len(t, env.sms.messages, 1)

	// 2. The user asks about it.
	asked, err := env.intent.Execute(ctx, &classifyintent.Input{SessionID: "sess-1", Query: "Why is SKU 4411 about to stock out?"})
	require.NoError(t, err)
	assert.Equal(t, models.IntentAnalysis, asked.IntentResult.Intent)
	assert.Equal(t, "4411", asked.IntentResult.ExtractedParameters["sku"])

	// 3. The assistant answers with recommendations.
	updated, err := env.state.Execute(ctx, &updateconversationstate.Input{
		SessionID: "sess-1",
		TurnOutputs: []models.TurnOutput{
			{Type: "analysis", Content: "Demand in the north region doubled after the promo launch."},
			{Type: models.OutputRecommendations, Content: "1. Cut ad spend\n2. Increase inventory"},
		},
		ActiveWorkflow: "2251799813685249",
	})
	require.NoError(t, err)
	assert.True(t, updated.CanContinue)
	require.Len(t, updated.PendingActions, 2)

	// 4. The user accepts; confidence from the model is clamped.
	accepted, err := env.intent.Execute(ctx, &classifyintent.Input{SessionID: "sess-1", Query: "Do the first one"})
	require.NoError(t, err)
	assert.Equal(t, models.IntentAction, accepted.IntentResult.Intent)
	assert.Equal(t, 1.0, accepted.IntentResult.Confidence)
	assert.Equal(t, models.JourneyAction, accepted.IntentResult.JourneyHint)

	// 5. The decision needs explicit confirmation before anything runs.
	req := &executeaction.Input{
		SessionID:       "sess-1",
		DecisionID:      "dec-1",
		PendingActionID: updated.PendingActions[0].ID,
		Steps: []models.ActionStep{
			{AgentName: "budget-agent", Action: "cut search spend 20%", RecordsAffected: 12, RiskLevel: models.RiskMedium},
			{AgentName: "inventory-agent", Action: "expedite PO 88", RecordsAffected: 1, RiskLevel: models.RiskHigh},
		},
	}
	_, err = env.execute.Execute(ctx, req)
	require.True(t, apperrors.HasCode(err, apperrors.ErrCodeActionConfirmationRequired))
	assert.Empty(t, *env.actions)

	req.Confirmed = true
	done, err := env.execute.Execute(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionSucceeded, done.State)
	assert.Equal(t, models.RiskHigh, done.AggregateRisk)
	assert.Equal(t, 13, done.TotalRecords)
	require.Len(t, *env.actions, 2)
	assert.Equal(t, "dec-1", (*env.actions)[0]["decisionId"])

	// 6. Execution closes the loop in the conversation state.
	state := env.sessions.Get("sess-1").Snapshot()
	assert.False(t, state.CanContinue)
	assert.Nil(t, state.ActiveWorkflow)
	for _, pa := range state.PendingActions {
		assert.Equal(t, models.StatusCompleted, pa.Status)
	}
	assert.Len(t, state.ConversationHistory, 3)
	assert.Equal(t, "Do the first one", state.LastQuery)

	require.Len(t, decisions, 2)
	assert.Equal(t, models.ExecutionRunning, decisions[0].State)
	assert.Equal(t, models.ExecutionSucceeded, decisions[1].State)
}

func TestEventFiltering(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		event    json.RawMessage
		isAlert  bool
		severity string
		skipped  string
	}{
		{
			name:     "demand spike",
			event:    event(t, "d-1", "rmn.demand", "demand.spike.detected", "", map[string]interface{}{"deviation_pct": 150}),
			isAlert:  true,
			severity: "medium",
		},
		{
			name:     "pattern match",
			event:    event(t, "d-2", "rmn.demand", "forecast.job.failed", "", nil),
			isAlert:  true,
			severity: "high",
		},
		{
			name:  "not an alert",
			event: event(t, "d-3", "rmn.demand", "forecast.job.started", "", nil),
		},
		{
			name:    "unmonitored stream",
			event:   event(t, "c-1", "rmn.crm", "demand.spike.detected", "", map[string]interface{}{"deviation_pct": 900}),
			skipped: alerting.SkipUnmonitored,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := env.severity.Execute(ctx, &classifyseverity.Input{Event: tt.event})
			require.NoError(t, err)
			assert.Equal(t, tt.isAlert, out.IsAlert)
			assert.Equal(t, tt.severity, out.Severity)
			assert.Equal(t, tt.skipped, out.Skipped)
		})
	}

	assert.Empty(t, env.sms.messages, "nothing reached the critical SMS threshold")
	assert.Equal(t, 1, env.email.count, "only the high pattern match reached e-mail")
}

func TestUnparseableIntentFallsBack(t *testing.T) {
	env := setup(t)

	out, err := env.intent.Execute(context.Background(), &classifyintent.Input{SessionID: "sess-2", Query: "budget?"})
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	assert.Equal(t, intent.Fallback(intent.ExplanationUnparseable), out.IntentResult)
}

// TestZeebeTopology needs a running broker; set E2E_ZEEBE_ADDRESS to enable it.
func TestZeebeTopology(t *testing.T) {
	addr := os.Getenv("E2E_ZEEBE_ADDRESS")
	if addr == "" {
		t.Skip("E2E_ZEEBE_ADDRESS not set")
	}

	client, err := zbc.NewClient(&zbc.ClientConfig{GatewayAddress: addr, UsePlaintextConnection: true})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	topology, err := client.NewTopologyCommand().Send(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, topology.GetBrokers())
}
