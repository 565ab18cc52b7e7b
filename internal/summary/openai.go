package summary

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/template"
	"time"

	"github.com/spyglasshq/spyglass/pkg/httpclient"
)

// OpenAIConfig configures the chat-completion generator.
type OpenAIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"-"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OpenAIGenerator calls an OpenAI-compatible chat completion endpoint.
type OpenAIGenerator struct {
	cfg    OpenAIConfig
	client *httpclient.Client
}

// NewOpenAI creates the generator. BaseURL defaults to the public OpenAI
// API; Timeout defaults to 30s.
func NewOpenAI(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	return &OpenAIGenerator{cfg: cfg, client: client}, nil
}

const promptTmpl = `Product: {{ .Subject }}
{{- if .RRP }}
RRP: {{ .RRP.StringFixed 2 }} {{ .Currency }}
{{- end }}
{{- if .Median }}
Median market price: {{ .Median.StringFixed 2 }} {{ .Currency }} ({{ .SampleCount }} listings)
{{- end }}
{{- if .DeltaPercent }}
Deviation: {{ .DeltaPercent.StringFixed 1 }}% ({{ .Direction }})
{{- end }}

Summarize this finding in a short, professional business paragraph.`

var promptTemplate = template.Must(template.New("prompt").Parse(promptTmpl))

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate renders the prompt from the payload and requests a completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, p Payload) (string, error) {
	subject := p.ProductName
	if subject == "" {
		subject = p.Identifier
	}

	var prompt strings.Builder
	if err := promptTemplate.Execute(&prompt, fallbackData{Payload: p, Subject: subject}); err != nil {
		return "", fmt.Errorf("render prompt: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model:    g.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt.String()}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(g.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(ctx, req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("completion API error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion API status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
