// Package gateway talks to the external language-model provider. Its one
// contract: GenerateReply never returns an error. Transient provider failures
// are absorbed by a single retry and, failing that, a fixed sentinel reply,
// so the send-message path can always produce an assistant turn.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"clarichat/internal/config"
	"clarichat/internal/models"
)

const systemPrompt = `You are a highly professional AI assistant. Follow these rules in every response:

**Style & Tone**
- Be clear, concise, structured, and professional.
- Avoid filler, unnecessary explanations, and informal/slang language.
- Prefer short paragraphs (2-3 lines maximum).

**Formatting**
- Use headings and subheadings for clear structure.
- Use bullet points for lists and numbered steps when giving instructions.
- Provide code inside fenced code blocks with correct language labels.
- Highlight important points using bold text.

**Behavior**
- Answer directly without repeating the question unless required.
- When giving examples, keep them minimal, correct, and runnable.
- If a question is unclear, ask one short clarifying question.
- When debugging: provide the corrected code first, then a short explanation.

**Accuracy**
- Do not invent APIs, data, or behavior that does not exist.
- If information is missing or uncertain, say "I don't have enough information" and request details.

Your goal is to provide accurate, structured, helpful, and professional responses.`

// failureReply is returned when both attempts against the provider fail.
const failureReply = "Error: Could not fetch response from the model at this time."

const (
	defaultMaxTokens   = 800
	defaultTemperature = float32(0.2)
)

// Options overrides generation parameters for a single call. Zero values fall
// back to the configured defaults.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature *float32
}

// Result is the outcome of a gateway call. Text is always usable as the
// assistant reply; Failed marks the sentinel produced after both attempts
// against the provider raised.
type Result struct {
	Text   string
	Failed bool
}

// Service sends conversation turns to the configured provider.
type Service struct {
	chatModel   model.BaseChatModel
	modelName   string
	maxTokens   int
	temperature float32
}

// NewService builds the provider-backed gateway from app config.
func NewService(ctx context.Context, cfg *config.Config) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	provider := cfg.AI.Provider
	provCfg, ok := cfg.AI.Providers[provider]
	if !ok {
		return nil, fmt.Errorf("provider %s not configured", provider)
	}

	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: provCfg.BaseURL,
			Model:   provCfg.Model,
			APIKey:  provCfg.APIKey,
		})
	case "gemini":
		client, cerr := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: provCfg.APIKey,
		})
		if cerr != nil {
			return nil, fmt.Errorf("gemini client: %w", cerr)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  provCfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if provCfg.BaseURL != "" {
			baseURLPtr = &provCfg.BaseURL
		}
		maxTokens := provCfg.MaxTokens
		if maxTokens <= 0 {
			maxTokens = defaultMaxTokens
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    provCfg.APIKey,
			Model:     provCfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: maxTokens,
		})
	default:
		return nil, fmt.Errorf("invalid provider: %s", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s chat model: %w", provider, err)
	}

	maxTokens := provCfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := provCfg.Temperature
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &Service{
		chatModel:   chatModel,
		modelName:   provCfg.Model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

// ModelName reports the configured model identifier.
func (s *Service) ModelName() string {
	return s.modelName
}

// GenerateReply sends the latest message plus bounded history to the provider
// and resolves to text in all cases. One retry with identical inputs covers
// transient failures; a provider response without textual content degrades to
// its serialized form rather than failing the call.
func (s *Service) GenerateReply(ctx context.Context, latest string, history []models.Turn, opts *Options) Result {
	messages := s.buildMessages(latest, history)
	callOpts := s.callOptions(opts)

	var lastResp *schema.Message
	for attempt := 0; attempt < 2; attempt++ {
		resp, err := s.chatModel.Generate(ctx, messages, callOpts...)
		if err != nil {
			continue
		}
		if resp.Content != "" {
			return Result{Text: resp.Content}
		}
		lastResp = resp
	}

	if lastResp != nil {
		if raw, err := json.Marshal(lastResp); err == nil {
			return Result{Text: string(raw)}
		}
	}
	return Result{Text: failureReply, Failed: true}
}

func (s *Service) buildMessages(latest string, history []models.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, &schema.Message{Role: schema.System, Content: systemPrompt})
	for _, turn := range history {
		messages = append(messages, &schema.Message{Role: schemaRole(turn.Role), Content: turn.Content})
	}
	messages = append(messages, &schema.Message{Role: schema.User, Content: latest})
	return messages
}

func (s *Service) callOptions(opts *Options) []model.Option {
	modelName := s.modelName
	maxTokens := s.maxTokens
	temperature := s.temperature
	if opts != nil {
		if opts.Model != "" {
			modelName = opts.Model
		}
		if opts.MaxTokens > 0 {
			maxTokens = opts.MaxTokens
		}
		if opts.Temperature != nil {
			temperature = *opts.Temperature
		}
	}
	return []model.Option{
		model.WithModel(modelName),
		model.WithMaxTokens(maxTokens),
		model.WithTemperature(temperature),
	}
}

func schemaRole(role models.Role) schema.RoleType {
	switch role {
	case models.RoleAssistant:
		return schema.Assistant
	case models.RoleSystem:
		return schema.System
	default:
		return schema.User
	}
}
