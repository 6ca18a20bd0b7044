package vision

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/lensstory/internal/errors"
	"github.com/tphakala/lensstory/internal/logging"
	"github.com/tphakala/lensstory/internal/photo"
)

// Package-level logger specific to the vision service
var (
	logger          *slog.Logger
	serviceLevelVar = new(slog.LevelVar) // Dynamic level control
	closeLogger     func() error
)

func init() {
	var err error
	logFilePath := filepath.Join("logs", "vision.log")
	serviceLevelVar.Set(slog.LevelDebug)

	logger, closeLogger, err = logging.NewFileLogger(logFilePath, "vision", serviceLevelVar)
	if err != nil {
		// Fallback: log error to standard log and disable service logging
		log.Printf("Failed to initialize vision file logger at %s: %v. Service logging disabled.", logFilePath, err)
		fbHandler := slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: serviceLevelVar})
		logger = slog.New(fbHandler).With("service", "vision")
		closeLogger = func() error { return nil }
	}
}

// Client calls the external captioning service. One call per uploaded
// image; the outcome of one call never affects another.
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *cache.Cache

	metrics struct {
		apiCalls  int64
		cacheHits int64
		apiErrors int64
		mu        sync.RWMutex
	}
}

// NewClient creates a new vision client
func NewClient(config Config) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("vision API key is required").
			Category(errors.CategoryConfiguration).
			Component("vision").
			Build()
	}

	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}

	client := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache: cache.New(config.CacheTTL, config.CacheTTL*2),
	}

	logger.Info("vision client initialized",
		"base_url", config.BaseURL,
		"model", config.Model,
		"timeout", config.Timeout,
		"api_key_configured", config.APIKey != "")

	return client, nil
}

// Close cleans up client resources
func (c *Client) Close() {
	if closeLogger != nil {
		if err := closeLogger(); err != nil {
			log.Printf("Error closing vision logger: %v", err)
		}
	}
}

// prompt builds the captioning instruction for the given language hint.
// The hint affects only the natural-language output, not the schema.
func prompt(language string) string {
	langInstruction := "Respond in English."
	if language == "zh" {
		langInstruction = "Respond in Chinese (Simplified). Ensure the tone is poetic and suitable for social media."
	}
	return "Analyze this image. Provide a creative title (3-5 words), a descriptive caption " +
		"suitable for social media (1-2 sentences), the mood as a single word, and 5 relevant tags. " +
		langInstruction + " Return JSON with exactly these fields: title, description, mood, tags."
}

// cacheKey derives the result cache key from the image content and the
// language hint, so identical uploads don't re-bill the service.
func cacheKey(data []byte, language string) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]) + ":" + language
}

// Analyze sends the image to the captioning service and returns the
// structured annotation. Success means all four fields are present;
// anything less fails the whole call, never a partial result.
func (c *Client) Analyze(ctx context.Context, data []byte, mimeType, language string) (*photo.Analysis, error) {
	if len(data) == 0 {
		return nil, errors.Newf("empty image payload").
			Category(errors.CategoryValidation).
			Component("vision").
			Build()
	}

	key := cacheKey(data, language)
	if cached, found := c.cache.Get(key); found {
		if analysis, ok := cached.(*photo.Analysis); ok {
			c.metrics.mu.Lock()
			c.metrics.cacheHits++
			c.metrics.mu.Unlock()
			logger.Debug("vision cache hit", "cache_key", key[:16])
			return analysis, nil
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	body := generateRequest{
		Contents: []content{{
			Parts: []part{
				{InlineData: &inlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
				{Text: prompt(language)},
			},
		}},
		GenerationConfig: &generationConfig{ResponseMimeType: "application/json"},
	}

	analysis, err := c.doGenerate(reqCtx, &body)
	if err != nil {
		c.metrics.mu.Lock()
		c.metrics.apiErrors++
		c.metrics.mu.Unlock()
		return nil, err
	}

	c.cache.Set(key, analysis, cache.DefaultExpiration)
	return analysis, nil
}

// doGenerate performs the HTTP round trip and decodes the annotation.
func (c *Client) doGenerate(ctx context.Context, reqBody *generateRequest) (*photo.Analysis, error) {
	start := time.Now()
	c.metrics.mu.Lock()
	c.metrics.apiCalls++
	c.metrics.mu.Unlock()

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.config.BaseURL, c.config.Model)

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Newf("failed to encode request: %w", err).
			Category(errors.CategoryValidation).
			Component("vision").
			Build()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return nil, errors.Newf("failed to create HTTP request: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", url).
			Component("vision").
			Build()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("vision API request failed", "error", err, "url", url)
		return nil, errors.Newf("HTTP request failed: %w", err).
			Category(errors.CategoryNetwork).
			Context("url", url).
			Component("vision").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Newf("failed to read response body: %w", err).
			Category(errors.CategoryNetwork).
			Context("status_code", resp.StatusCode).
			Component("vision").
			Build()
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		detail := strings.TrimSpace(string(bodyBytes))
		if err := json.Unmarshal(bodyBytes, &apiErr); err == nil && apiErr.Error.Message != "" {
			detail = apiErr.Error.Message
		}
		if len(detail) > 500 {
			detail = detail[:500] + "..."
		}

		logger.Error("vision API error",
			"status_code", resp.StatusCode,
			"detail", detail)

		return nil, errors.Newf("vision API error (status %d): %s", resp.StatusCode, detail).
			Category(errorCategory(resp.StatusCode)).
			Context("status_code", resp.StatusCode).
			Component("vision").
			Build()
	}

	var envelope generateResponse
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return nil, errors.Newf("failed to parse response: %w", err).
			Category(errors.CategoryFileParsing).
			Context("response_size", len(bodyBytes)).
			Component("vision").
			Build()
	}

	text := ""
	if len(envelope.Candidates) > 0 && len(envelope.Candidates[0].Content.Parts) > 0 {
		text = envelope.Candidates[0].Content.Parts[0].Text
	}
	if text == "" {
		return nil, errors.Newf("empty response from vision service").
			Category(errors.CategoryImageAnalysis).
			Component("vision").
			Build()
	}

	var analysis photo.Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return nil, errors.Newf("unparsable annotation: %w", err).
			Category(errors.CategoryImageAnalysis).
			Component("vision").
			Build()
	}
	if err := validateAnalysis(&analysis); err != nil {
		return nil, err
	}

	logger.Debug("vision API request successful",
		"duration_ms", time.Since(start).Milliseconds(),
		"title", analysis.Title)

	return &analysis, nil
}

// validateAnalysis enforces the all-or-nothing contract: every field of
// the annotation must be present, or the whole call is rejected.
func validateAnalysis(a *photo.Analysis) error {
	missing := []string{}
	if a.Title == "" {
		missing = append(missing, "title")
	}
	if a.Description == "" {
		missing = append(missing, "description")
	}
	if a.Mood == "" {
		missing = append(missing, "mood")
	}
	if len(a.Tags) == 0 {
		missing = append(missing, "tags")
	}
	if len(missing) > 0 {
		return errors.Newf("incomplete annotation, missing: %s", strings.Join(missing, ", ")).
			Category(errors.CategoryImageAnalysis).
			Context("missing_fields", missing).
			Component("vision").
			Build()
	}
	return nil
}

// errorCategory determines the appropriate error category based on HTTP status code
func errorCategory(statusCode int) errors.ErrorCategory {
	switch statusCode {
	case 401, 403:
		return errors.CategoryConfiguration
	case 429:
		return errors.CategoryLimit
	case 404:
		return errors.CategoryNotFound
	default:
		return errors.CategoryNetwork
	}
}

// Metrics represents vision client counters
type Metrics struct {
	APICalls  int64 `json:"api_calls"`
	CacheHits int64 `json:"cache_hits"`
	APIErrors int64 `json:"api_errors"`
}

// GetMetrics returns current client metrics
func (c *Client) GetMetrics() Metrics {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()
	return Metrics{
		APICalls:  c.metrics.apiCalls,
		CacheHits: c.metrics.cacheHits,
		APIErrors: c.metrics.apiErrors,
	}
}
