package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCompletionServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIProviderKeepsRawResponse(t *testing.T) {
	body := `{"id":"cmpl-9","object":"chat.completion","created":1700000000,"model":"test-model",` +
		`"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Thanks for visiting!"}}]}`
	srv := newCompletionServer(t, http.StatusOK, body)

	p := NewOpenAIProvider(srv.URL+"/v1", "test-model", "sk-test", 5*time.Second)
	completion, err := p.Complete(context.Background(), "system", "user")
	require.NoError(t, err)
	assert.Equal(t, "Thanks for visiting!", completion.Text)
	assert.JSONEq(t, body, string(completion.Raw))
}

func TestOpenAIProviderEmptyChoices(t *testing.T) {
	body := `{"id":"cmpl-10","object":"chat.completion","created":1700000000,"model":"test-model","choices":[]}`
	srv := newCompletionServer(t, http.StatusOK, body)

	p := NewOpenAIProvider(srv.URL+"/v1", "test-model", "sk-test", 5*time.Second)
	_, err := p.Complete(context.Background(), "system", "user")
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.ErrorIs(t, err, errMalformedResponse)
	assert.JSONEq(t, body, perr.Body)
}

func TestOpenAIProviderServerError(t *testing.T) {
	srv := newCompletionServer(t, http.StatusInternalServerError, `{"error":{"message":"boom","type":"server_error"}}`)

	p := NewOpenAIProvider(srv.URL+"/v1", "test-model", "sk-test", 5*time.Second)
	_, err := p.Complete(context.Background(), "system", "user")
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusInternalServerError, perr.StatusCode)
	assert.True(t, perr.Transient())
}
