// Package generate answers learner doubts with a chat-completion backend.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/rcliao/tutor-engine/internal/logger"
	"github.com/rcliao/tutor-engine/internal/model"
)

var (
	// ErrDisabled is returned by the resolver used when no provider is configured.
	ErrDisabled = errors.New("doubt resolution backend not configured")
	// ErrMalformed is returned when the backend reply is not a usable resolution.
	ErrMalformed = errors.New("malformed resolution")
)

// Resolver answers a question given free-text lesson context.
type Resolver interface {
	Resolve(ctx context.Context, question, lessonContext string) (*model.Resolution, error)
}

// Config selects and configures a provider.
type Config struct {
	Provider string // "ollama" | "openai" | "" (disabled)
	Model    string
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
}

// New returns the resolver for cfg.Provider. An empty provider yields a
// resolver that always fails with ErrDisabled.
func New(cfg Config, log *logger.Logger) (Resolver, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return Disabled{}, nil
	case "ollama":
		return NewOllama(cfg, log), nil
	case "openai":
		return NewOpenAI(cfg, log), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func withDefaults(cfg Config, log *logger.Logger) (Config, *logger.Logger) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg, log
}

// Disabled is the resolver used when no provider is configured.
type Disabled struct{}

func (Disabled) Resolve(context.Context, string, string) (*model.Resolution, error) {
	return nil, ErrDisabled
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const systemPrompt = `You are a patient tutor answering a learner's question about the lesson they are watching.
Reply with a single JSON object and nothing else:
{"explanation": string, "examples": [string], "quizQuestion": {"question": string, "options": [string], "correctIndex": number, "explanation": string}}
quizQuestion is optional. Keep the explanation under 120 words.`

func buildMessages(question, lessonContext string) []message {
	var user strings.Builder
	if lessonContext != "" {
		user.WriteString("Lesson so far:\n")
		user.WriteString(lessonContext)
		user.WriteString("\n\n")
	}
	user.WriteString("Question: ")
	user.WriteString(question)
	return []message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user.String()},
	}
}

// --- Ollama Provider ---

// Ollama uses a local Ollama instance's chat API.
type Ollama struct {
	model  string
	client *resty.Client
	log    *logger.Logger
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
	Format   string    `json:"format"`
}

type ollamaChatResponse struct {
	Message message `json:"message"`
}

// NewOllama creates a resolver using Ollama. Default model: llama3.1.
func NewOllama(cfg Config, log *logger.Logger) *Ollama {
	cfg, log = withDefaults(cfg, log)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.1"
	}
	return &Ollama{
		model: cfg.Model,
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
		log: log.With("component", "OllamaResolver"),
	}
}

func (o *Ollama) Resolve(ctx context.Context, question, lessonContext string) (*model.Resolution, error) {
	var out ollamaChatResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(ollamaChatRequest{
			Model:    o.model,
			Messages: buildMessages(question, lessonContext),
			Format:   "json",
		}).
		SetResult(&out).
		Post("/api/chat")
	if err != nil {
		return nil, fmt.Errorf("ollama request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("ollama error %d: %s", resp.StatusCode(), resp.String())
	}
	o.log.Debug("ollama replied", "status", resp.StatusCode(), "elapsed_ms", resp.Time().Milliseconds())
	return ParseResolution(out.Message.Content)
}

// --- OpenAI-compatible Provider ---

// OpenAI uses any OpenAI-compatible chat completions API.
type OpenAI struct {
	model  string
	client *resty.Client
	log    *logger.Logger
}

type responseFormat struct {
	Type string `json:"type"`
}

type openaiChatRequest struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// NewOpenAI creates a resolver using an OpenAI-compatible API.
func NewOpenAI(cfg Config, log *logger.Logger) *OpenAI {
	cfg, log = withDefaults(cfg, log)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &OpenAI{model: cfg.Model, client: client, log: log.With("component", "OpenAIResolver")}
}

func (o *OpenAI) Resolve(ctx context.Context, question, lessonContext string) (*model.Resolution, error) {
	var out openaiChatResponse
	resp, err := o.client.R().
		SetContext(ctx).
		SetBody(openaiChatRequest{
			Model:          o.model,
			Messages:       buildMessages(question, lessonContext),
			Temperature:    0.3,
			ResponseFormat: responseFormat{Type: "json_object"},
		}).
		SetResult(&out).
		Post("/chat/completions")
	if err != nil {
		return nil, fmt.Errorf("openai request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("openai error %d: %s", resp.StatusCode(), resp.String())
	}
	if len(out.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformed)
	}
	o.log.Debug("openai replied", "status", resp.StatusCode(), "elapsed_ms", resp.Time().Milliseconds())
	return ParseResolution(out.Choices[0].Message.Content)
}
