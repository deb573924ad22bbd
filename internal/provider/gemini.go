package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xkilldash9x/webpilot/internal/config"
)

// geminiBackend talks to the Gemini API through the official SDK. JSON
// output is requested at the API level, which spares the parser most of the
// fence stripping.
type geminiBackend struct {
	client *genai.Client
	cfg    config.ProviderConfig
	logger *zap.Logger
}

func newGeminiBackend(cfg config.ProviderConfig, logger *zap.Logger) (*geminiBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini backend requires an API key")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &geminiBackend{
		client: client,
		cfg:    cfg,
		logger: logger.Named("gemini"),
	}, nil
}

func (g *geminiBackend) generate(ctx context.Context, system, user string) (string, error) {
	callCtx := ctx
	if g.cfg.APITimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.APITimeout)
		defer cancel()
	}

	genCfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(g.cfg.Temperature),
		TopP:             genai.Ptr(g.cfg.TopP),
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		},
	}
	if g.cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(g.cfg.MaxTokens)
	}

	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: user}}},
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(callCtx, g.cfg.Model, contents, genCfg)
	if err != nil {
		return "", &ProviderError{Provider: "gemini", Retryable: sniffRetryable(err), Err: err}
	}

	text := resp.Text()
	if text == "" {
		return "", &ProviderError{Provider: "gemini", Retryable: true, Err: fmt.Errorf("empty completion")}
	}

	g.logger.Debug("Gemini generation complete.",
		zap.String("model", g.cfg.Model),
		zap.Duration("duration", time.Since(start)))
	return text, nil
}
