// Package insight produces natural-language explanations for scored claims.
// Generation is best-effort: every failure path returns the deterministic
// fallback payload, never an error.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/claimsight/risk-engine/internal/domain/claim"
	"github.com/claimsight/risk-engine/internal/infrastructure/config"
	"github.com/claimsight/risk-engine/internal/metrics"
	"github.com/claimsight/risk-engine/internal/service/scoring"
)

const systemPrompt = "You are an insurance fraud analyst. Respond with a single JSON object " +
	`containing "risk_factors" (array of strings), "recommendations" (array of strings), ` +
	`"confidence_level" ("high", "medium" or "low") and "summary" (one paragraph). ` +
	"Respond with JSON only, no surrounding text."

// completionClient is the slice of the OpenAI client the generator uses
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Generator calls a chat-completion service to explain a scored claim
type Generator struct {
	client  completionClient
	model   string
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewGenerator creates a generator from configuration
func NewGenerator(cfg *config.InsightConfig, logger *slog.Logger) *Generator {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}

	return &Generator{
		client:  openai.NewClient(cfg.APIKey),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), rpm),
		logger:  logger,
	}
}

// NewGeneratorWithClient injects a client. Used in tests.
func NewGeneratorWithClient(client completionClient, model string, timeout time.Duration, logger *slog.Logger) *Generator {
	return &Generator{
		client:  client,
		model:   model,
		timeout: timeout,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logger,
	}
}

// Generate produces the explanation for a scored claim. On any failure it
// logs and returns the fallback payload.
func (g *Generator) Generate(ctx context.Context, c *claim.Claim, signals []scoring.SignalResult) *claim.Insights {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return g.fallback(ctx, c, "rate limit wait cancelled", err)
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildPrompt(c, signals)},
		},
		Temperature: 0.2,
		MaxTokens:   500,
	})
	if err != nil {
		return g.fallback(ctx, c, "completion request failed", err)
	}
	if len(resp.Choices) == 0 {
		return g.fallback(ctx, c, "completion returned no choices", nil)
	}

	insights, err := parseInsights(resp.Choices[0].Message.Content)
	if err != nil {
		return g.fallback(ctx, c, "completion response malformed", err)
	}

	return insights
}

func (g *Generator) fallback(ctx context.Context, c *claim.Claim, reason string, err error) *claim.Insights {
	attrs := []any{
		slog.String("claim_id", c.ID.String()),
		slog.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	g.logger.WarnContext(ctx, "insight generation fell back", attrs...)
	metrics.InsightFallback()
	return claim.FallbackInsights()
}

// buildPrompt summarizes the claim and its signal evidence for the model
func buildPrompt(c *claim.Claim, signals []scoring.SignalResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Claim type: %s\n", c.ClaimType)
	fmt.Fprintf(&b, "Estimated value: %s\n", c.EstimatedValue.String())
	fmt.Fprintf(&b, "Documents attached: %d\n", len(c.Documents))
	fmt.Fprintf(&b, "Submitted: %s\n\n", c.CreatedAt.Format(time.RFC3339))

	b.WriteString("Fraud signal results:\n")
	for _, s := range signals {
		fmt.Fprintf(&b, "- %s: score %.2f", s.Signal, s.Score)
		if len(s.Detail) > 0 {
			if detail, err := json.Marshal(s.Detail); err == nil {
				fmt.Fprintf(&b, " detail %s", detail)
			}
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nAnalyze the fraud risk of this claim.")
	return b.String()
}

// parseInsights decodes the model response, tolerating markdown code fences
func parseInsights(content string) (*claim.Insights, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	var insights claim.Insights
	if err := json.Unmarshal([]byte(content), &insights); err != nil {
		return nil, fmt.Errorf("failed to decode insight payload: %w", err)
	}

	if len(insights.RiskFactors) == 0 && len(insights.Recommendations) == 0 {
		return nil, fmt.Errorf("insight payload empty")
	}

	switch insights.ConfidenceLevel {
	case "high", "medium", "low":
	default:
		insights.ConfidenceLevel = "low"
	}

	return &insights, nil
}
