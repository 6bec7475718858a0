package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGatewayClientSend(t *testing.T) {
	var got outboundMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"msg-42"}}`))
	}))
	defer srv.Close()

	c := NewGatewayClient(Config{GatewayURL: srv.URL, Token: "secret", Sender: "ACME"})
	id, err := c.Send(context.Background(), "+15550001", "hello")
	require.NoError(t, err)
	assert.Equal(t, "msg-42", id)
	assert.Equal(t, outboundMessage{To: "+15550001", From: "ACME", Body: "hello"}, got)
}

func TestGatewayClientSendErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid number"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewGatewayClient(Config{GatewayURL: srv.URL})
	_, err := c.Send(context.Background(), "+1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid number")
}

func TestGatewayClientRequiresURL(t *testing.T) {
	_, err := NewGatewayClient(Config{}).Send(context.Background(), "+1", "x")
	assert.Error(t, err)
}
