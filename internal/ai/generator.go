package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/feedback_management/internal/metrics"
)

// ErrEmptyFeedback is returned when there is no text to reply to.
var ErrEmptyFeedback = errors.New("feedback text is empty")

// DefaultCustomerName is the greeting used when the customer name is unknown.
const DefaultCustomerName = "Valued customer"

// ReplyRequest carries everything needed to draft one reply.
type ReplyRequest struct {
	FeedbackText       string
	Rating             *int
	CustomerName       string
	Language           string // explicit code, or "" / "detect" / "auto"
	Tone               string
	CustomInstructions string
	CompanyName        string
	CommonIssues       []string
}

// ReplyResult is a drafted reply and the raw provider payload kept for audit.
type ReplyResult struct {
	Content  string
	Language string
	Provider string
	Raw      json.RawMessage
}

// RetryPolicy bounds the attempts made against the provider.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Factor         float64
	Jitter         float64
}

// DefaultRetryPolicy makes three attempts with 1s and 2s pauses.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Second, Factor: 2, Jitter: 0.1}
}

func (p RetryPolicy) backoff() wait.Backoff {
	steps := p.MaxAttempts
	if steps < 1 {
		steps = 1
	}
	return wait.Backoff{
		Duration: p.InitialBackoff,
		Factor:   p.Factor,
		Jitter:   p.Jitter,
		Steps:    steps,
	}
}

// ReplyGenerator drafts replies to customer feedback.
type ReplyGenerator struct {
	provider        Provider
	detector        LanguageDetector
	retry           RetryPolicy
	defaultLanguage string
}

// NewReplyGenerator wires a generator. detector may be nil, in which case
// detection always resolves to defaultLanguage.
func NewReplyGenerator(provider Provider, detector LanguageDetector, retry RetryPolicy, defaultLanguage string) *ReplyGenerator {
	if defaultLanguage == "" {
		defaultLanguage = "en"
	}
	return &ReplyGenerator{
		provider:        provider,
		detector:        detector,
		retry:           retry,
		defaultLanguage: defaultLanguage,
	}
}

// ProviderName is the name recorded on generated replies.
func (g *ReplyGenerator) ProviderName() string {
	return g.provider.Name()
}

// ResolveLanguage turns a requested language into a concrete code.
func (g *ReplyGenerator) ResolveLanguage(ctx context.Context, requested, text string) string {
	if !WantsDetection(requested) {
		if code, ok := NormalizeLanguage(requested); ok {
			return code
		}
	}
	if g.detector == nil || strings.TrimSpace(text) == "" {
		return g.defaultLanguage
	}
	code, err := g.detector.Detect(ctx, text)
	if err != nil {
		log.WithError(err).Warn("language detection failed, using default language")
		return g.defaultLanguage
	}
	if normalized, ok := NormalizeLanguage(code); ok {
		return normalized
	}
	return g.defaultLanguage
}

// Generate drafts a reply. Transient provider failures are retried per the
// retry policy; the last failure is returned as a *ProviderError.
func (g *ReplyGenerator) Generate(ctx context.Context, req ReplyRequest) (*ReplyResult, error) {
	if strings.TrimSpace(req.FeedbackText) == "" {
		return nil, ErrEmptyFeedback
	}

	lang := g.ResolveLanguage(ctx, req.Language, req.FeedbackText)
	system, user := BuildPrompt(req, lang)

	start := time.Now()
	var (
		completion *Completion
		lastErr    error
		attempt    int
	)
	waitErr := wait.ExponentialBackoffWithContext(ctx, g.retry.backoff(), func(ctx context.Context) (bool, error) {
		attempt++
		c, err := g.provider.Complete(ctx, system, user)
		if err == nil {
			completion = c
			return true, nil
		}
		lastErr = err
		var perr *ProviderError
		if errors.As(err, &perr) && perr.Transient() {
			log.WithError(err).WithField("attempt", attempt).Warn("transient generation failure, will retry")
			return false, nil
		}
		return false, err
	})
	if completion == nil {
		metrics.ObserveGeneration(time.Since(start), metrics.OutcomeError)
		if lastErr == nil {
			lastErr = waitErr
		}
		var perr *ProviderError
		if !errors.As(lastErr, &perr) {
			perr = &ProviderError{Provider: g.provider.Name(), Err: lastErr}
		}
		return nil, perr
	}
	metrics.ObserveGeneration(time.Since(start), metrics.OutcomeSuccess)

	content := strings.TrimSpace(completion.Text)
	if content == "" {
		return nil, &ProviderError{Provider: g.provider.Name(), Body: string(completion.Raw), Err: errMalformedResponse}
	}
	return &ReplyResult{
		Content:  content,
		Language: lang,
		Provider: g.provider.Name(),
		Raw:      completion.Raw,
	}, nil
}

// SentimentGuidance returns the rating-conditioned instruction for the prompt.
func SentimentGuidance(rating *int) string {
	if rating == nil {
		return "The rating is unknown. Keep a neutral, attentive tone and address the points raised."
	}
	switch {
	case *rating <= 2:
		return fmt.Sprintf("The customer gave %d out of 5 stars. Apologise sincerely, acknowledge the problem and explain how it will be addressed.", *rating)
	case *rating == 3:
		return "The customer gave 3 out of 5 stars. Thank them, acknowledge what could be better and mention the improvement."
	default:
		return fmt.Sprintf("The customer gave %d out of 5 stars. Thank them warmly and reinforce what they enjoyed.", *rating)
	}
}

func toneGuidance(tone string) string {
	switch tone {
	case "friendly":
		return "Use a warm, friendly and personal tone."
	case "formal":
		return "Use a formal, courteous tone."
	default:
		return "Use a professional, concise tone."
	}
}

// BuildPrompt returns the system and user messages for one generation call.
func BuildPrompt(req ReplyRequest, lang string) (string, string) {
	var sys strings.Builder
	sys.WriteString("You write replies to customer feedback on behalf of ")
	if req.CompanyName != "" {
		sys.WriteString(req.CompanyName)
	} else {
		sys.WriteString("the business")
	}
	sys.WriteString(".\n")
	sys.WriteString(SentimentGuidance(req.Rating))
	sys.WriteString("\n")
	sys.WriteString(toneGuidance(req.Tone))
	sys.WriteString("\n")
	fmt.Fprintf(&sys, "Write the reply in %s (%s).\n", LanguageName(lang), lang)
	sys.WriteString("Keep it under 120 words, do not invent facts, and return only the reply text.\n")
	if len(req.CommonIssues) > 0 {
		sys.WriteString("Known recurring issues the business is aware of:\n")
		for _, issue := range req.CommonIssues {
			if issue = strings.TrimSpace(issue); issue != "" {
				sys.WriteString("- " + issue + "\n")
			}
		}
	}
	if instr := strings.TrimSpace(req.CustomInstructions); instr != "" {
		sys.WriteString("Additional instructions from the business:\n")
		sys.WriteString(instr)
		sys.WriteString("\n")
	}

	name := strings.TrimSpace(req.CustomerName)
	if name == "" {
		name = DefaultCustomerName
	}
	user := fmt.Sprintf("Customer name: %s\nFeedback:\n%s", name, strings.TrimSpace(req.FeedbackText))
	return sys.String(), user
}
