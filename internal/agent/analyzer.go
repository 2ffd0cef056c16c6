package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/semaphore"

	"github.com/germanevangelisti/watcher-sub003/pkg/logger"
	"github.com/germanevangelisti/watcher-sub003/pkg/types"
)

// Analyzer is the opaque external capability that extracts structured
// facts from document text. The engine treats it as a boundary: one
// call in, one text response out.
type Analyzer interface {
	Analyze(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// AnalyzerConfig configures the LLM-backed analyzer.
type AnalyzerConfig struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url,omitempty"`

	// MaxConcurrent caps in-flight analyzer calls process-wide.
	MaxConcurrent int64 `yaml:"max_concurrent"`

	// InterCallDelay is the minimum spacing between call starts,
	// protecting the rate-limited upstream.
	InterCallDelay time.Duration `yaml:"inter_call_delay"`

	Temperature *float32 `yaml:"temperature,omitempty"`
	MaxTokens   *int     `yaml:"max_tokens,omitempty"`
}

// EinoAnalyzer implements Analyzer on an Eino OpenAI-compatible chat
// model, serializing call starts behind a semaphore and a minimum
// inter-call delay.
type EinoAnalyzer struct {
	model einomodel.BaseChatModel
	sem   *semaphore.Weighted
	delay time.Duration

	mu       sync.Mutex
	lastCall time.Time
}

// NewEinoAnalyzer builds the analyzer from config.
func NewEinoAnalyzer(ctx context.Context, config *AnalyzerConfig) (*EinoAnalyzer, error) {
	if config == nil || config.Model == "" {
		return nil, types.NewError(types.ErrCodeConfig, "analyzer requires a model")
	}
	if config.APIKey == "" {
		return nil, types.NewError(types.ErrCodeConfig, "analyzer requires an api_key")
	}

	chatConfig := &openai.ChatModelConfig{
		Model:  config.Model,
		APIKey: config.APIKey,
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		switch config.Provider {
		case "", "openai":
			baseURL = "https://api.openai.com/v1"
		case "deepseek":
			baseURL = "https://api.deepseek.com/v1"
		}
	}
	if baseURL != "" {
		chatConfig.BaseURL = baseURL
	}
	if config.Temperature != nil {
		chatConfig.Temperature = config.Temperature
	}
	if config.MaxTokens != nil {
		chatConfig.MaxTokens = config.MaxTokens
	}

	model, err := openai.NewChatModel(ctx, chatConfig)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeConfig, err, "failed to create analyzer model")
	}

	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &EinoAnalyzer{
		model: model,
		sem:   semaphore.NewWeighted(maxConcurrent),
		delay: config.InterCallDelay,
	}, nil
}

// Analyze runs one chat completion against the model.
func (a *EinoAnalyzer) Analyze(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := a.sem.Acquire(ctx, 1); err != nil {
		return "", mapAnalyzerError(err)
	}
	defer a.sem.Release(1)

	if err := a.throttle(ctx); err != nil {
		return "", mapAnalyzerError(err)
	}

	var messages []*schema.Message
	if systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(systemPrompt))
	}
	messages = append(messages, schema.UserMessage(userPrompt))

	resp, err := a.model.Generate(ctx, messages)
	if err != nil {
		logger.Warn("analyzer call failed: %v", err)
		return "", mapAnalyzerError(err)
	}
	return resp.Content, nil
}

// throttle enforces the minimum spacing between call starts.
func (a *EinoAnalyzer) throttle(ctx context.Context) error {
	if a.delay <= 0 {
		return nil
	}
	a.mu.Lock()
	wait := a.delay - time.Since(a.lastCall)
	a.lastCall = time.Now().Add(wait)
	a.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// mapAnalyzerError classifies upstream failures so task records carry a
// distinguishing code clients can back off on.
func mapAnalyzerError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.WrapError(types.ErrCodeTimeout, err, "analyzer call timed out")
	case errors.Is(err, context.Canceled):
		return err
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") {
		return types.WrapError(types.ErrCodeRateLimited, err, "analyzer rejected call")
	}
	return types.WrapError(types.ErrCodeTaskFailure, err, "analyzer call failed")
}
