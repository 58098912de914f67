package reason

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"sift/internal/corpus"
	"sift/internal/logging"
	"sift/internal/memory"
)

// Config holds reasoning collaborator configuration
type Config struct {
	Model      string // e.g. "gpt-4o-mini"
	APIKey     string
	BaseURL    string // Optional, defaults to OpenAI
	MaxRetries int    // Bounded retries per call, default 3
	Timeout    time.Duration
}

// openaiReasoner speaks the OpenAI-compatible chat completions API.
type openaiReasoner struct {
	config     Config
	httpClient *http.Client
	logger     logging.Logger
}

// NewOpenAIReasoner constructs a Reasoner over an OpenAI-compatible endpoint.
func NewOpenAIReasoner(config Config, logger logging.Logger) Reasoner {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}

	return &openaiReasoner{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logging.OrNop(logger),
	}
}

const systemPrompt = `You analyze source material excerpts against an instruction.
Respond with a single JSON object: {"conclusion": string, "confidence": "low"|"medium"|"high"}.
Base the conclusion only on the provided excerpts.`

// Analyze sends the units and instruction to the model and parses its
// structured verdict.
func (r *openaiReasoner) Analyze(ctx context.Context, units []corpus.Unit, instruction string) (*Analysis, error) {
	var sb strings.Builder
	sb.WriteString("Instruction: ")
	sb.WriteString(instruction)
	sb.WriteString("\n\nExcerpts:\n")
	for _, unit := range units {
		sb.WriteString(fmt.Sprintf("\n[%s] %s lines %s-%s:\n", unit.ID, unit.Metadata["source"], unit.Metadata["start_line"], unit.Metadata["end_line"]))
		sb.WriteString(unit.Text)
		sb.WriteString("\n")
	}

	var content string
	var err error
	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		content, err = r.complete(ctx, sb.String())
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < r.config.MaxRetries-1 {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("analyze after retries: %w", err)
	}

	return parseAnalysis(content)
}

func (r *openaiReasoner) complete(ctx context.Context, user string) (string, error) {
	reqBody := map[string]any{
		"model": r.config.Model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": user},
		},
		// Deterministic responses keep runs reproducible for fixed inputs
		"temperature": 0,
		"stream":      false,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.config.APIKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("empty completion")
	}

	return apiResp.Choices[0].Message.Content, nil
}

// parseAnalysis extracts the JSON verdict. Models occasionally wrap the
// object in prose or emit slightly broken JSON; jsonrepair recovers those
// before we give up.
func parseAnalysis(content string) (*Analysis, error) {
	raw := extractJSONObject(content)

	var analysis Analysis
	if err := json.Unmarshal([]byte(raw), &analysis); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(raw)
		if repairErr != nil {
			return nil, fmt.Errorf("parse analysis: %v (repair: %v)", err, repairErr)
		}
		if err := json.Unmarshal([]byte(repaired), &analysis); err != nil {
			return nil, fmt.Errorf("parse repaired analysis: %w", err)
		}
	}

	if strings.TrimSpace(analysis.Conclusion) == "" {
		return nil, fmt.Errorf("analysis without conclusion")
	}
	switch analysis.Confidence {
	case memory.ConfidenceLow, memory.ConfidenceMedium, memory.ConfidenceHigh:
	default:
		analysis.Confidence = memory.ConfidenceLow
	}
	return &analysis, nil
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		return content[start : end+1]
	}
	return content
}
