package confirmation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"decision-workers/internal/common/config"
	apperrors "decision-workers/internal/common/errors"
	"decision-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Auth string
	Body executeRequest
}

func newActionServer(t *testing.T, failOn string) (*httptest.Server, func() []recordedRequest) {
	t.Helper()
	var mu sync.Mutex
	var got []recordedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/rmn/execute-action" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body executeRequest
		_ = json.NewDecoder(r.Body).Decode(&body)

		mu.Lock()
		got = append(got, recordedRequest{Auth: r.Header.Get("Authorization"), Body: body})
		mu.Unlock()

		if body.Action == failOn {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"sku locked"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"accepted"}`))
	}))
	t.Cleanup(server.Close)

	return server, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), got...)
	}
}

func TestExecutor_PostsEachStep(t *testing.T) {
	server, requests := newActionServer(t, "")
	exec := NewExecutor(config.ActionsConfig{BaseURL: server.URL + "/", APIToken: "tok", Timeout: 2000}, logger.NewTestLogger(t))

	require.NoError(t, exec.Execute(context.Background(), "d-1", testSteps()))

	got := requests()
	require.Len(t, got, 3)
	assert.Equal(t, "Bearer tok", got[0].Auth)
	assert.Equal(t, executeRequest{DecisionID: "d-1", Action: "shift 5k to display"}, got[0].Body)
	assert.Equal(t, "lower price 5%", got[2].Body.Action)
}

func TestExecutor_StopsAtFirstFailure(t *testing.T) {
	server, requests := newActionServer(t, "reorder sku 4411")
	exec := NewExecutor(config.ActionsConfig{BaseURL: server.URL, Timeout: 2000}, logger.NewTestLogger(t))

	err := exec.Execute(context.Background(), "d-2", testSteps())

	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeActionExecutionFailed))
	assert.Contains(t, err.Error(), "ACTION_EXECUTION_FAILED")
	assert.Len(t, requests(), 2)
	assert.Empty(t, requests()[0].Auth)
}
