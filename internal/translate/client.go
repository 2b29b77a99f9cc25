// Package translate sends extracted text to an OpenAI-compatible chat model
// and re-fits the results into the original page geometry.
package translate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = "gpt-4o-mini"
	// DefaultConcurrency bounds in-flight translation requests.
	DefaultConcurrency = 8
	// DefaultMaxAttempts is the total attempt count per request.
	DefaultMaxAttempts = 3

	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second

	closeTimeout = 10 * time.Second
)

// ClientConfig configures the translation client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	Concurrency       int
	MaxAttempts       int
	RequestsPerSecond float64

	// ChatModel overrides the OpenAI-backed model. Used by tests.
	ChatModel model.BaseChatModel
	// Seed makes retry jitter deterministic when non-zero.
	Seed int64
	// Sleep overrides the backoff sleep. Used by tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Metrics is a snapshot of client counters.
type Metrics struct {
	Requests       int64
	Successes      int64
	Retries        int64
	CacheHits      int64
	FailuresByCode map[types.ErrorCode]int64
	TotalLatency   time.Duration
}

// Client translates text through a chat model with bounded concurrency,
// client-side rate limiting and retry with jittered backoff.
type Client struct {
	chat      model.BaseChatModel
	modelName string

	sem         chan struct{}
	limiter     *rate.Limiter
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error

	rngMu sync.Mutex
	rng   *rand.Rand

	mu      sync.Mutex
	metrics Metrics
}

// NewClient builds a client. Unless cfg.ChatModel is set, the chat model is
// constructed against the OpenAI-compatible endpoint in cfg.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	chat := cfg.ChatModel
	if chat == nil {
		if cfg.APIKey == "" {
			return nil, types.NewAppError(types.ErrAuthRequired, "translation API key is not configured", nil)
		}
		modelName := cfg.Model
		if modelName == "" {
			modelName = DefaultModel
		}
		mc := &openai.ChatModelConfig{
			Model:  modelName,
			APIKey: cfg.APIKey,
		}
		if cfg.BaseURL != "" {
			mc.BaseURL = cfg.BaseURL
		}
		var err error
		chat, err = openai.NewChatModel(ctx, mc)
		if err != nil {
			return nil, types.NewAppError(types.ErrServiceUnavail, "failed to create chat model", err)
		}
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}

	return &Client{
		chat:        chat,
		modelName:   modelName,
		sem:         make(chan struct{}, concurrency),
		limiter:     rate.NewLimiter(limit, maxBurst(limit)),
		maxAttempts: attempts,
		sleep:       sleep,
		rng:         rand.New(rand.NewSource(seed)),
	}, nil
}

func maxBurst(limit rate.Limit) int {
	if limit == rate.Inf {
		return 1
	}
	b := int(limit)
	if b < 1 {
		b = 1
	}
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

const systemPromptFmt = `You are a professional document translator. Translate the user's text from %s to %s.
Rules:
- Return ONLY the translated text, no commentary.
- Preserve line breaks exactly as given.
- Tokens of the form ` + "`⟦NEO:<number>⟧...⟦NEO:<number>⟧`" + ` are protected markers. Copy each marker and the text between its pair through UNCHANGED.
- Keep numbers, citations and punctuation structure intact.`

// Translate translates one text block. Retryable failures back off with full
// jitter; non-retryable ones surface immediately.
func (c *Client) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	select {
	case c.sem <- struct{}{}:
		defer func() { <-c.sem }()
	case <-ctx.Done():
		return "", types.NewAppError(types.ErrCancelled, "translation cancelled while queued", ctx.Err())
	}

	messages := []*schema.Message{
		schema.SystemMessage(fmt.Sprintf(systemPromptFmt, sourceLang, targetLang)),
		schema.UserMessage(text),
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", types.NewAppError(types.ErrCancelled, "translation cancelled while rate limited", err)
		}

		start := time.Now()
		c.count(func(m *Metrics) { m.Requests++ })
		resp, err := c.chat.Generate(ctx, messages)
		elapsed := time.Since(start)
		c.count(func(m *Metrics) { m.TotalLatency += elapsed })

		if err == nil {
			c.count(func(m *Metrics) { m.Successes++ })
			return strings.TrimSpace(resp.Content), nil
		}

		appErr := classify(err)
		code := types.CodeOf(appErr)
		c.count(func(m *Metrics) {
			if m.FailuresByCode == nil {
				m.FailuresByCode = make(map[types.ErrorCode]int64)
			}
			m.FailuresByCode[code]++
		})
		lastErr = appErr
		if !code.IsRetryable() || attempt == c.maxAttempts {
			break
		}

		delay := c.backoffDelay(attempt)
		logger.Warn("translation attempt failed, retrying",
			logger.Int("attempt", attempt),
			logger.String("code", string(code)),
			logger.Duration("delay", delay))
		c.count(func(m *Metrics) { m.Retries++ })
		if err := c.sleep(ctx, delay); err != nil {
			return "", types.NewAppError(types.ErrCancelled, "translation cancelled during backoff", err)
		}
	}
	return "", lastErr
}

// BatchItem is one entry of a batch translation request.
type BatchItem struct {
	Text string
}

// BatchResult pairs a translation (or its failure) with the input index.
type BatchResult struct {
	Index      int
	Translated string
	Err        error
}

// TranslateBatch translates items concurrently, preserving input order in
// the result slice. A failed item carries its error; the rest still succeed.
func (c *Client) TranslateBatch(ctx context.Context, items []BatchItem, sourceLang, targetLang string) []BatchResult {
	results := make([]BatchResult, len(items))
	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(i int, text string) {
			defer wg.Done()
			translated, err := c.Translate(ctx, text, sourceLang, targetLang)
			results[i] = BatchResult{Index: i, Translated: translated, Err: err}
		}(i, item.Text)
	}
	wg.Wait()
	return results
}

// Close waits for in-flight requests to drain, up to 10 seconds.
func (c *Client) Close() error {
	deadline := time.After(closeTimeout)
	for i := 0; i < cap(c.sem); i++ {
		select {
		case c.sem <- struct{}{}:
		case <-deadline:
			return types.NewAppError(types.ErrTimeout, "translation client close timed out", nil)
		}
	}
	return nil
}

// Metrics returns a copy of the current counters.
func (c *Client) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.metrics
	snap.FailuresByCode = make(map[types.ErrorCode]int64, len(c.metrics.FailuresByCode))
	for k, v := range c.metrics.FailuresByCode {
		snap.FailuresByCode[k] = v
	}
	return snap
}

func (c *Client) count(f func(*Metrics)) {
	c.mu.Lock()
	f(&c.metrics)
	c.mu.Unlock()
}

// backoffDelay is full-jitter exponential backoff: uniform over
// [0, base * 2^(attempt-1)], capped at maxRetryDelay.
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := baseRetryDelay << (attempt - 1)
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return time.Duration(c.rng.Int63n(int64(d) + 1))
}

// classify maps a chat-model failure onto a stable error code. The OpenAI
// SDK surfaces HTTP status in the error text, so matching is string-based.
func classify(err error) error {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return types.NewAppError(types.ErrCancelled, "translation cancelled", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewAppError(types.ErrTimeout, "translation timed out", err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return types.NewAppError(types.ErrRateLimited, "translation service rate limited", err)
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key"):
		return types.NewAppError(types.ErrAuthFailed, "translation service rejected credentials", err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return types.NewAppError(types.ErrTimeout, "translation timed out", err)
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid request"):
		return types.NewAppError(types.ErrInvalidInput, "translation request rejected", err)
	default:
		return types.NewAppError(types.ErrServiceUnavail, "translation service unavailable", err)
	}
}
