package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/internal/config"
)

const defaultOllamaEndpoint = "http://localhost:11434/v1"

// openaiBackend talks to any OpenAI-compatible chat completion endpoint,
// which covers both the hosted API and a local Ollama server.
type openaiBackend struct {
	name   string
	client openai.Client
	cfg    config.ProviderConfig
	logger *zap.Logger
}

func newOpenAIBackend(cfg config.ProviderConfig, logger *zap.Logger) (*openaiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai backend requires an API key")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	return &openaiBackend{
		name:   "openai",
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger.Named("openai"),
	}, nil
}

// newOllamaBackend reuses the OpenAI wire protocol against a local Ollama
// server. Ollama ignores the API key but the SDK insists on one.
func newOllamaBackend(cfg config.ProviderConfig, logger *zap.Logger) (*openaiBackend, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOllamaEndpoint
	}
	key := cfg.APIKey
	if key == "" {
		key = "ollama"
	}

	return &openaiBackend{
		name:   "ollama",
		client: openai.NewClient(option.WithAPIKey(key), option.WithBaseURL(endpoint)),
		cfg:    cfg,
		logger: logger.Named("ollama"),
	}, nil
}

func (o *openaiBackend) generate(ctx context.Context, system, user string) (string, error) {
	callCtx := ctx
	if o.cfg.APITimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.APITimeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(float64(o.cfg.Temperature)),
		TopP:        openai.Float(float64(o.cfg.TopP)),
	}
	if o.cfg.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(o.cfg.MaxTokens))
	}

	start := time.Now()
	completion, err := o.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		return "", &ProviderError{Provider: o.name, Retryable: retryableOpenAIError(err), Err: err}
	}
	if len(completion.Choices) == 0 {
		return "", &ProviderError{Provider: o.name, Retryable: true, Err: fmt.Errorf("empty completion")}
	}

	o.logger.Debug("Chat completion received.",
		zap.String("model", o.cfg.Model),
		zap.Duration("duration", time.Since(start)))
	return completion.Choices[0].Message.Content, nil
}

// retryableOpenAIError prefers the SDK's typed error when available and
// falls back to text sniffing.
func retryableOpenAIError(err error) bool {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return retryableStatus(apierr.StatusCode)
	}
	return sniffRetryable(err)
}
