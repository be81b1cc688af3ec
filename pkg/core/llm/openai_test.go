package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billaudit/pkg/models"
)

func fastRetry() RetryConfig {
	return RetryConfig{BaseDelay: time.Millisecond, Factor: 2.0, MaxDelay: 5 * time.Millisecond, MaxRetries: 3}
}

func chatOK(content string) []byte {
	payload, _ := json.Marshal(map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	})
	return payload
}

func TestChatRetriesOnRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limit, try again in 1 ms"}}`))
			return
		}
		w.Write(chatOK(`{"issues":[]}`))
	}))
	defer srv.Close()

	p := newChatProvider("test", "test-model", "key", srv.URL, nil)
	p.retry = fastRetry()

	resp, err := p.RunPrompt(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"issues":[]}`, resp)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestChatExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit"}}`))
	}))
	defer srv.Close()

	p := newChatProvider("test", "test-model", "key", srv.URL, nil)
	p.retry = fastRetry()

	_, err := p.RunPrompt(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrRateLimited))
}

func TestChatDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad request"}}`))
	}))
	defer srv.Close()

	p := newChatProvider("test", "test-model", "key", srv.URL, nil)
	p.retry = fastRetry()

	_, err := p.RunPrompt(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestAnalyzeDocumentParsesIssues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatOK(`{"issues":[{"type":"overbilling","summary":"s","evidence":"e","max_savings":10.0,"confidence":0.8}]}`))
	}))
	defer srv.Close()

	p := newChatProvider("test", "test-model", "key", srv.URL, nil)
	p.retry = fastRetry()

	result, err := p.AnalyzeDocument(context.Background(), "bill text")
	require.NoError(t, err)
	require.Len(t, result.Issues, 1)
	assert.Equal(t, models.IssueOverbilling, result.Issues[0].Type)
	assert.Equal(t, models.SourceLLM, result.Issues[0].Source)
}

func TestHealthCheckRequiresCredentials(t *testing.T) {
	withKey := newChatProvider("a", "m", "key", "https://example.invalid", nil)
	assert.True(t, withKey.HealthCheck(context.Background()))

	noKey := newChatProvider("b", "m", "", "https://example.invalid", nil)
	assert.False(t, noKey.HealthCheck(context.Background()))
}
