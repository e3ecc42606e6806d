package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ranger/internal/metrics"
	"github.com/ppiankov/ranger/internal/model"
	"github.com/ppiankov/ranger/internal/pipeline"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTPServer_Health(t *testing.T) {
	s := NewHTTPServer(&fakeService{}, nil, nil, nil)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHTTPServer_RequestIDPropagates(t *testing.T) {
	s := NewHTTPServer(&fakeService{}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestHTTPServer_Message(t *testing.T) {
	claim := model.KnowledgeClaim{Topic: "eiffel", Content: "The Eiffel Tower is 330 meters tall"}
	svc := &fakeService{outcome: pipeline.Outcome{Claim: &claim, RecordID: 7}}
	m := metrics.New()
	reg := prometheus.NewRegistry()
	require.NoError(t, metrics.Register(reg, m))
	s := NewHTTPServer(svc, reg, nil, m)

	rec := do(t, s, http.MethodPost, "/api/v1/messages",
		`{"channel_id":"general","user_id":"u1","content":"The Eiffel Tower is 330 meters tall"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out pipeline.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, int64(7), out.RecordID)
	assert.Equal(t, "eiffel", out.Claim.Topic)

	require.Len(t, svc.messages, 1)
	assert.Equal(t, "general", svc.messages[0].ChannelID)
	assert.Equal(t, "u1", svc.messages[0].UserID)

	rec = do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ranger_messages_total{transport="http"} 1`)
}

func TestHTTPServer_MessageErrors(t *testing.T) {
	tests := []struct {
		desc string
		svc  *fakeService
		body string
		want int
	}{
		{"malformed JSON", &fakeService{}, `{"content":`, http.StatusBadRequest},
		{"unknown field", &fakeService{}, `{"content":"hi","extra":1}`, http.StatusBadRequest},
		{"empty content", &fakeService{}, `{"content":"  "}`, http.StatusBadRequest},
		{"storage down", &fakeService{processErr: fmt.Errorf("save: %w", model.ErrStorageUnavailable)}, `{"content":"hi"}`, http.StatusServiceUnavailable},
		{"unexpected", &fakeService{processErr: errors.New("boom")}, `{"content":"hi"}`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			s := NewHTTPServer(tt.svc, nil, nil, nil)
			rec := do(t, s, http.MethodPost, "/api/v1/messages", tt.body)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestHTTPServer_Search(t *testing.T) {
	svc := &fakeService{knowledge: map[string]*model.KnowledgeRecord{"eiffel": eiffelRecord()}}
	s := NewHTTPServer(svc, nil, nil, nil)

	rec := do(t, s, http.MethodGet, "/api/v1/search?q=eiffel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var res pipeline.AskResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Found())
	assert.Equal(t, int64(3), res.Record.ID)
	assert.Equal(t, []int64{3}, res.Answer.Cited)

	rec = do(t, s, http.MethodGet, "/api/v1/search?q=quasars", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/v1/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPServer_Learn(t *testing.T) {
	s := NewHTTPServer(&fakeService{learned: eiffelRecord()}, nil, nil, nil)
	rec := do(t, s, http.MethodPost, "/api/v1/learn", `{"topic":"eiffel"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"topic":"eiffel"`)

	s = NewHTTPServer(&fakeService{learnErr: fmt.Errorf("no trusted content: %w", model.ErrTransientFetch)}, nil, nil, nil)
	rec = do(t, s, http.MethodPost, "/api/v1/learn", `{"topic":"eiffel"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/v1/learn", `{"topic":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPServer_FeedbackStatusImprove(t *testing.T) {
	svc := &fakeService{
		status:  model.StatusReport{Knowledge: model.KnowledgeStats{Total: 4, Verified: 2}},
		applied: []model.Proposal{{Type: "response_improvement", Priority: model.PriorityHigh}},
	}
	s := NewHTTPServer(svc, nil, nil, nil)

	rec := do(t, s, http.MethodPost, "/api/v1/feedback", `{"user_id":"u1","positive":true}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []bool{true}, svc.feedback)

	rec = do(t, s, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"headline":"Learned 4 things | 2 verified"`)

	rec = do(t, s, http.MethodPost, "/api/v1/improve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"response_improvement"`)

	svc.applied = nil
	rec = do(t, s, http.MethodPost, "/api/v1/improve", "")
	assert.JSONEq(t, `{"applied":[]}`, rec.Body.String())
}

func TestHTTPServer_MetricsDisabled(t *testing.T) {
	s := NewHTTPServer(&fakeService{}, nil, nil, nil)
	rec := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTPServer_RunStopsOnCancel(t *testing.T) {
	s := NewHTTPServer(&fakeService{}, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, "127.0.0.1:0") }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
