package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/iius-rcox/ExpenseTrack-sub014/internal/domain/statement/mapping"
)

const defaultTimeout = 20 * time.Second

// GeminiClient implements Client against the Gemini API.
type GeminiClient struct {
	client  *genai.Client
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// NewGeminiClient creates an inference client for the given model. A zero
// timeout uses the default.
func NewGeminiClient(ctx context.Context, apiKey, model string, timeout time.Duration, logger *slog.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &GeminiClient{client: client, model: model, timeout: timeout, logger: logger}, nil
}

// inferResponse is the strict JSON shape the model is instructed to return.
type inferResponse struct {
	Columns    map[string]string `json:"columns"`
	DateFormat string            `json:"date_format"`
	AmountSign string            `json:"amount_sign"`
	Confidence float64           `json:"confidence"`
}

// Infer sends the headers and sample rows to the model and parses the
// proposed mapping. Transport failures surface as ErrUnavailable so the
// caller blocks the import instead of guessing.
func (c *GeminiClient) Infer(ctx context.Context, headers []string, sampleRows [][]string) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt := buildPrompt(headers, sampleRows)

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		c.logger.Warn("inference request failed", slog.Any("error", err))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("%w: empty model response", ErrUnavailable)
	}

	var parsed inferResponse
	if err := json.Unmarshal([]byte(cleanModelJSON(rawText)), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal inference response: %w", err)
	}

	columns := make(mapping.ColumnMapping, len(parsed.Columns))
	for header, tag := range parsed.Columns {
		columns[header] = mapping.NormalizeTag(tag)
	}
	// Headers the model skipped default to ignore.
	for _, h := range headers {
		if _, ok := columns[h]; !ok {
			columns[h] = mapping.FieldIgnore
		}
	}

	confidence := parsed.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return &Result{
		Columns:    columns,
		DateFormat: parsed.DateFormat,
		AmountSign: mapping.ParseAmountSign(parsed.AmountSign),
		Confidence: confidence,
	}, nil
}

func buildPrompt(headers []string, sampleRows [][]string) string {
	var b strings.Builder
	b.WriteString("You are a bank statement column mapper.\n\n")
	b.WriteString("Task:\n")
	b.WriteString("- Map each CSV header to exactly one field tag.\n")
	b.WriteString("- Allowed tags: date, post_date, description, amount, category, memo, reference, ignore.\n")
	b.WriteString("- Output STRICT JSON only (no comments, no extra text).\n\n")
	b.WriteString("Output object fields:\n")
	b.WriteString("- \"columns\": object mapping every header to a tag\n")
	b.WriteString("- \"date_format\": Go time layout of the date column (e.g. \"01/02/2006\"), or \"\"\n")
	b.WriteString("- \"amount_sign\": \"negative_charges_are_expenses\" or \"positive_charges_are_expenses\"\n")
	b.WriteString("- \"confidence\": number between 0 and 1\n\n")

	b.WriteString("Headers:\n")
	for _, h := range headers {
		b.WriteString("- ")
		b.WriteString(h)
		b.WriteString("\n")
	}

	b.WriteString("\nSample rows:\n")
	for _, row := range sampleRows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteString("\n")
	}

	b.WriteString("\nReturn ONLY valid raw JSON.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	b.WriteString("Output must begin with \"{\" and end with \"}\".\n")
	return b.String()
}

// cleanModelJSON strips Markdown fences and surrounding junk if the model
// ignored the formatting instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = s[start : end+1]
		}
	}
	return strings.TrimSpace(s)
}
