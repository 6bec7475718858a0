package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	log "github.com/sirupsen/logrus"
)

// Completion is the text produced by one provider call plus its raw payload.
type Completion struct {
	Text string
	Raw  json.RawMessage
}

// Provider is an external text-generation backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, system, user string) (*Completion, error)
}

// ProviderError is returned when a generation call does not succeed.
// StatusCode is 0 for transport failures and malformed responses.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: generation failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: generation failed: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying the call may succeed.
func (e *ProviderError) Transient() bool {
	switch {
	case errors.Is(e.Err, errMalformedResponse):
		return false
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return e.StatusCode >= 500
	}
}

// Details returns the structured error info stored on a failed reply.
func (e *ProviderError) Details() json.RawMessage {
	out, err := json.Marshal(map[string]interface{}{
		"provider":    e.Provider,
		"error":       fmt.Sprint(e.Err),
		"status_code": e.StatusCode,
		"body":        e.Body,
	})
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return out
}

var errMalformedResponse = errors.New("provider returned no content choices")

// OpenAIProvider talks to any OpenAI compatible chat completions endpoint.
type OpenAIProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIProvider builds a provider against url using model.
func NewOpenAIProvider(url, model, apiKey string, timeout time.Duration) *OpenAIProvider {
	options := []option.RequestOption{option.WithBaseURL(url)}
	if apiKey == "" {
		log.Info("OPENAI_API_KEY is not set, will try unauthenticated access")
	} else {
		options = append(options, option.WithAPIKey(apiKey))
	}
	// 重试由 ReplyGenerator 控制
	options = append(options, option.WithMaxRetries(0))

	client := openai.NewClient(options...)
	return &OpenAIProvider{client: &client, model: model, timeout: timeout}
}

func (p *OpenAIProvider) Name() string {
	return "openai:" + p.model
}

func (p *OpenAIProvider) Complete(ctx context.Context, system, user string) (*Completion, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Model: p.model,
	})
	if err != nil {
		perr := &ProviderError{Provider: p.Name(), Err: err}
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			perr.StatusCode = apiErr.StatusCode
			perr.Body = apiErr.Error()
		}
		return nil, perr
	}

	raw := resp.RawJSON()
	if len(resp.Choices) == 0 {
		return nil, &ProviderError{Provider: p.Name(), Body: raw, Err: errMalformedResponse}
	}
	var rawMessage json.RawMessage
	if raw != "" {
		rawMessage = json.RawMessage(raw)
	}
	return &Completion{Text: resp.Choices[0].Message.Content, Raw: rawMessage}, nil
}
