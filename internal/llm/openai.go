// internal/llm/openai.go
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"sql-gateway/internal/metrics"
)

// Request asks for a fresh statement from a natural-language question, or —
// when PriorSQL and PriorError are set — a revision of a failed one.
type Request struct {
	Question   string
	Catalog    string
	PriorSQL   string
	PriorError string
}

// Client wraps the chat-completion model that turns questions and failed
// statements into candidate SQL. Its output is untrusted and always goes
// back through the statement guard.
type Client struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

func NewClient(apiKey, baseURL, model string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm api key is not set")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// GenerateOrRevise produces a candidate statement. Each call is bounded by
// the configured per-round timeout and observes caller cancellation.
func (c *Client) GenerateOrRevise(ctx context.Context, req Request) (string, error) {
	prompt := buildPrompt(req)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		MaxTokens:   2000,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	metrics.GenerationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("statement generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("statement generation returned no choices")
	}

	sql := stripFences(resp.Choices[0].Message.Content)
	c.logger.Debug("candidate statement generated", "revision", req.PriorSQL != "", "sql", truncate(sql, 120))
	return sql, nil
}

func buildPrompt(req Request) string {
	if req.PriorSQL != "" {
		return fmt.Sprintf(`Fix this SQL query that failed with an error.

DATABASE SCHEMA:
%s

ORIGINAL QUESTION: %s

FAILED SQL:
%s

ERROR:
%s

INSTRUCTIONS:
- Analyze the error carefully
- Fix the SQL to resolve the error
- Return ONLY the corrected SQL

FIXED SQL:`, req.Catalog, req.Question, req.PriorSQL, req.PriorError)
	}

	return fmt.Sprintf(`You are a PostgreSQL expert. Generate a SQL query for this question.

DATABASE SCHEMA:
%s

RULES:
- Return ONLY the SQL query, no explanations
- Use proper JOINs when needed
- Use table aliases (e.g., users u)
- Column names are case-sensitive
- Do NOT add LIMIT unless the user asks for it

USER QUESTION: %s

SQL:`, req.Catalog, req.Question)
}

// stripFences removes markdown code fences the model tends to wrap SQL in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```sql", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
