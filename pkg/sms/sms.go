// Package sms sends text messages through an HTTP SMS gateway.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Sender delivers one text message and returns the gateway's message id.
type Sender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// Config points the client at a gateway.
type Config struct {
	GatewayURL string
	Token      string
	Sender     string
	Timeout    time.Duration
}

// GatewayClient posts JSON messages to a Twilio-like HTTP gateway.
type GatewayClient struct {
	config Config
	http   *http.Client
}

// NewGatewayClient creates a client for config.
func NewGatewayClient(config Config) *GatewayClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GatewayClient{config: config, http: &http.Client{Timeout: timeout}}
}

type outboundMessage struct {
	To   string `json:"to"`
	From string `json:"from,omitempty"`
	Body string `json:"body"`
}

// message id fields seen across gateways
var messageIDPaths = []string{"sid", "id", "message_id", "messages.0.id", "data.id"}

func (c *GatewayClient) Send(ctx context.Context, to, body string) (string, error) {
	if c.config.GatewayURL == "" {
		return "", fmt.Errorf("SMS gateway URL is not configured")
	}
	if to == "" {
		return "", fmt.Errorf("recipient phone number is empty")
	}

	payload, err := json.Marshal(outboundMessage{To: to, From: c.config.Sender, Body: body})
	if err != nil {
		return "", fmt.Errorf("marshal sms payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read sms gateway response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("sms gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	for _, path := range messageIDPaths {
		if id := gjson.GetBytes(respBody, path); id.Exists() && id.String() != "" {
			return id.String(), nil
		}
	}
	log.WithField("to", to).Warn("sms gateway response carried no message id")
	return "", nil
}
