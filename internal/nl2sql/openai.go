package nl2sql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const ProviderOpenAI = "openai-compatible"

// maxSampleRows caps the example rows sent per table.
const maxSampleRows = 5

var ErrMultipleStatements = errors.New("nl2sql: model returned more than one statement")

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// OpenAITranslator asks an OpenAI-compatible chat completions endpoint for a
// single SQLite statement.
type OpenAITranslator struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	client      *http.Client
}

// APIError is a non-2xx answer from the completions endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("chat completion failed status=%d: %s", e.StatusCode, e.Message)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewOpenAITranslator(cfg OpenAIConfig) (*OpenAITranslator, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o-mini"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenAITranslator{
		endpoint:    baseURL + "/v1/chat/completions",
		apiKey:      apiKey,
		model:       model,
		temperature: cfg.Temperature,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(chatRequest{
		Model: t.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt(req)},
		},
		Temperature: t.temperature,
	})
	if err != nil {
		return Result{}, fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read chat response body: %w", err)
	}
	var parsed chatResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	if resp.StatusCode >= 400 {
		message := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.Error != nil && parsed.Error.Message != "" {
			message = parsed.Error.Message
		}
		if len(message) > 512 {
			message = message[:512]
		}
		return Result{}, &APIError{StatusCode: resp.StatusCode, Message: message}
	}
	if decodeErr != nil {
		return Result{}, fmt.Errorf("decode chat completion response: %w", decodeErr)
	}
	if len(parsed.Choices) == 0 {
		return Result{}, fmt.Errorf("empty chat completion choices")
	}

	sql, err := cleanModelSQL(parsed.Choices[0].Message.Content)
	if err != nil {
		return Result{}, err
	}
	return Result{
		SQL:      sql,
		Rule:     "model",
		Provider: ProviderOpenAI,
		Model:    t.model,
	}, nil
}

const systemPrompt = "You convert short English requests into a single SQLite SQL statement. " +
	"Use only SQLite syntax and functions. " +
	"Return ONLY SQL. No markdown, no explanation."

// userPrompt lists each table as name(column TYPE, ...) followed by a few
// sample rows, then the request and the output rules.
func userPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Database: %s\n", req.Database)
	if target := strings.TrimSpace(req.Table); target != "" {
		fmt.Fprintf(&b, "Target table: %s\n", target)
	}
	b.WriteString("Tables:\n")
	for _, table := range req.Tables {
		columns := make([]string, 0, len(table.Columns))
		for _, column := range table.Columns {
			columns = append(columns, strings.TrimSpace(column.Name+" "+column.DeclaredType))
		}
		fmt.Fprintf(&b, "- %s(%s)\n", table.TableName, strings.Join(columns, ", "))
		for i, row := range table.SampleRows {
			if i == maxSampleRows {
				break
			}
			encoded, err := json.Marshal(row)
			if err != nil {
				continue
			}
			fmt.Fprintf(&b, "  sample: %s\n", encoded)
		}
	}
	fmt.Fprintf(&b, "\nUser request:\n%s\n\n", strings.TrimSpace(req.NaturalLanguage))
	b.WriteString("Rules:\n" +
		"- Use only listed tables and columns.\n" +
		"- Quote string literals with single quotes.\n" +
		"- Add LIMIT 100 to row-returning queries unless the user asks otherwise.\n" +
		"- Output a single SQL statement only.")
	return b.String()
}

// cleanModelSQL strips a markdown fence and trailing semicolons and rejects
// answers holding more than one statement.
func cleanModelSQL(content string) (string, error) {
	sql := stripMarkdownSQL(content)
	sql = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(sql), ";"))
	if sql == "" {
		return "", fmt.Errorf("model returned empty SQL")
	}
	if strings.Contains(sql, ";") && !quotedOnly(sql) {
		return "", ErrMultipleStatements
	}
	return sql, nil
}

// quotedOnly reports whether every semicolon in sql sits inside a single
// quoted literal.
func quotedOnly(sql string) bool {
	inQuote := false
	for _, r := range sql {
		switch {
		case r == '\'':
			inQuote = !inQuote
		case r == ';' && !inQuote:
			return false
		}
	}
	return true
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 && !strings.ContainsAny(trimmed[:newline], " \t") {
		trimmed = trimmed[newline+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
