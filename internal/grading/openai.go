// File: internal/grading/openai.go
package grading

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lumen-cli/api/schemas"
	"github.com/xkilldash9x/lumen-cli/internal/config"
)

// openAIGrader implements schemas.Grader through the OpenAI chat completions
// API with high-detail image parts.
type openAIGrader struct {
	client openai.Client
	cfg    config.GradingConfig
	logger *zap.Logger
}

func newOpenAIGrader(cfg config.GradingConfig, logger *zap.Logger) (*openAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(3),
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(cfg.Endpoint))
	}

	return &openAIGrader{
		client: openai.NewClient(opts...),
		cfg:    cfg,
		logger: logger.Named("grader.openai"),
	}, nil
}

// Grade submits the prompt and both screenshots and returns the trimmed
// verdict text. Temperature and seed come from config so repeated runs of the
// same page grade consistently.
func (g *openAIGrader) Grade(ctx context.Context, req schemas.GradeRequest) (string, error) {
	loadTime, perfInfo := promptInputs(req)
	prompt := buildPrompt(loadTime, perfInfo, g.cfg.Thresholds.LoadTimeSeconds)

	if g.cfg.APITimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.APITimeout)
		defer cancel()
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    dataURL(req.DesktopPNG),
			Detail: "high",
		}),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL:    dataURL(req.MobilePNG),
			Detail: "high",
		}),
	}

	start := time.Now()
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.cfg.Model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		MaxTokens:   openai.Int(int64(g.cfg.MaxTokens)),
		Temperature: openai.Float(g.cfg.Temperature),
		Seed:        openai.Int(int64(g.cfg.Seed)),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai API returned no choices")
	}

	g.logger.Info("Vision grading complete (OpenAI).",
		zap.String("url", req.URL),
		zap.String("model", g.cfg.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int64("total_tokens", completion.Usage.TotalTokens))

	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}

func dataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
