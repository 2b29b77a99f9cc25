package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

// Client-side request limits enforced before any bytes leave the process.
const (
	// MaxImagesPerRequest is the hard cap on images in one OCR call.
	MaxImagesPerRequest = 32
	// MaxImageSize is the per-image size limit in bytes (5 MiB).
	MaxImageSize = 5 * 1024 * 1024
)

// Retry policy constants: exponential backoff with full jitter.
const (
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second
	// DefaultMaxAttempts is the default number of attempts per request.
	DefaultMaxAttempts = 3
	// DefaultTimeout is the default per-request timeout.
	DefaultTimeout = 300 * time.Second
)

// Metrics is a snapshot of client counters.
type Metrics struct {
	Requests       int64
	Successes      int64
	Retries        int64
	FailuresByCode map[types.ErrorCode]int64
	MeanLatency    time.Duration
}

// ClientConfig configures an OCR Client.
type ClientConfig struct {
	Endpoint    string
	Token       string
	Timeout     time.Duration
	MaxAttempts int
	// Seed makes retry jitter deterministic in tests; 0 seeds from the clock.
	Seed int64
	// Sleep is replaceable in tests; defaults to a context-aware sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client talks to the remote OCR service.
type Client struct {
	endpoint    string
	token       string
	maxAttempts int
	httpClient  *http.Client
	rng         *rand.Rand
	rngMu       sync.Mutex
	sleep       func(ctx context.Context, d time.Duration) error

	mu             sync.Mutex
	requests       int64
	successes      int64
	retries        int64
	failuresByCode map[types.ErrorCode]int64
	totalLatency   time.Duration
	latencySamples int64
}

// NewClient creates an OCR client. The endpoint may be empty only in tests.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	return &Client{
		endpoint:       cfg.Endpoint,
		token:          cfg.Token,
		maxAttempts:    cfg.MaxAttempts,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		rng:            rand.New(rand.NewSource(seed)),
		sleep:          sleep,
		failuresByCode: make(map[types.ErrorCode]int64),
	}
}

// Process sends all page images as one multipart request and returns the
// parsed layout. Constraints are enforced client-side before sending.
func (c *Client) Process(ctx context.Context, images [][]byte) (*Layout, error) {
	if len(images) == 0 {
		return nil, types.NewAppError(types.ErrInvalidInput, "no images to process", nil)
	}
	if len(images) > MaxImagesPerRequest {
		return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput,
			"too many images for one OCR call",
			fmt.Sprintf("%d > %d", len(images), MaxImagesPerRequest), nil)
	}
	for i, img := range images {
		if len(img) > MaxImageSize {
			return nil, types.NewAppErrorWithDetails(types.ErrInvalidInput,
				"image exceeds size limit",
				fmt.Sprintf("image %d is %d bytes, limit %d", i, len(img), MaxImageSize), nil)
		}
	}
	if c.token == "" {
		return nil, types.NewAppError(types.ErrAuthRequired, "OCR token not configured", nil)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		layout, retryAfter, err := c.doRequest(ctx, images)
		if err == nil {
			c.recordSuccess()
			return layout, nil
		}
		lastErr = err

		code := types.CodeOf(err)
		c.recordFailure(code)
		if !code.IsRetryable() || attempt == c.maxAttempts {
			break
		}

		delay := retryAfter
		if delay <= 0 {
			delay = c.backoffDelay(attempt)
		}
		logger.Warn("OCR request failed, retrying",
			logger.Int("attempt", attempt),
			logger.String("code", string(code)),
			logger.Duration("delay", delay))
		c.recordRetry()
		if err := c.sleep(ctx, delay); err != nil {
			return nil, types.NewAppError(types.ErrCancelled, "OCR retry cancelled", err)
		}
	}
	return nil, lastErr
}

// doRequest performs one multipart POST. The second return value is the
// server-requested retry delay for 429 responses, zero otherwise.
func (c *Client) doRequest(ctx context.Context, images [][]byte) (*Layout, time.Duration, error) {
	start := time.Now()
	c.recordRequest()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for i, img := range images {
		part, err := writer.CreateFormFile("images", fmt.Sprintf("page_%d.png", i+1))
		if err != nil {
			return nil, 0, types.NewAppError(types.ErrInternal, "failed to build multipart body", err)
		}
		if _, err := part.Write(img); err != nil {
			return nil, 0, types.NewAppError(types.ErrInternal, "failed to write image part", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, 0, types.NewAppError(types.ErrInternal, "failed to finalize multipart body", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrInternal, "failed to create OCR request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, 0, types.NewAppError(types.ErrCancelled, "OCR request cancelled", err)
		}
		// Transport-level failures (timeouts included) are retryable.
		return nil, 0, types.NewAppError(types.ErrTimeout, "OCR request timed out or failed", err)
	}
	defer resp.Body.Close()

	c.recordLatency(time.Since(start))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, types.NewAppError(types.ErrTimeout, "failed to read OCR response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var layout Layout
		if err := json.Unmarshal(respBody, &layout); err != nil {
			return nil, 0, types.NewAppError(types.ErrProtocol, "malformed OCR response", err)
		}
		return &layout, 0, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, 0, types.NewAppError(types.ErrAuthFailed, "OCR authentication failed", nil)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, parseRetryAfter(resp.Header.Get("Retry-After")), types.NewAppError(types.ErrRateLimited, "OCR rate limit exceeded", nil)
	case resp.StatusCode >= 500:
		return nil, 0, types.NewAppErrorWithDetails(types.ErrServiceUnavail, "OCR service unavailable",
			strconv.Itoa(resp.StatusCode), nil)
	default:
		return nil, 0, types.NewAppErrorWithDetails(types.ErrProtocol, "unexpected OCR response status",
			strconv.Itoa(resp.StatusCode), nil)
	}
}

// backoffDelay computes exponential backoff with full jitter: a uniform draw
// from [0, min(cap, base*2^(attempt-1))].
func (c *Client) backoffDelay(attempt int) time.Duration {
	d := baseRetryDelay << uint(attempt-1)
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return time.Duration(c.rng.Int63n(int64(d) + 1))
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
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

// Metrics returns a snapshot of the client counters.
func (c *Client) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	byCode := make(map[types.ErrorCode]int64, len(c.failuresByCode))
	for k, v := range c.failuresByCode {
		byCode[k] = v
	}
	var mean time.Duration
	if c.latencySamples > 0 {
		mean = c.totalLatency / time.Duration(c.latencySamples)
	}
	return Metrics{
		Requests:       c.requests,
		Successes:      c.successes,
		Retries:        c.retries,
		FailuresByCode: byCode,
		MeanLatency:    mean,
	}
}

func (c *Client) recordRequest() {
	c.mu.Lock()
	c.requests++
	c.mu.Unlock()
}

func (c *Client) recordSuccess() {
	c.mu.Lock()
	c.successes++
	c.mu.Unlock()
}

func (c *Client) recordRetry() {
	c.mu.Lock()
	c.retries++
	c.mu.Unlock()
}

func (c *Client) recordFailure(code types.ErrorCode) {
	c.mu.Lock()
	c.failuresByCode[code]++
	c.mu.Unlock()
}

func (c *Client) recordLatency(d time.Duration) {
	c.mu.Lock()
	c.totalLatency += d
	c.latencySamples++
	c.mu.Unlock()
}
