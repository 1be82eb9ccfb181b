package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/knowbase/rerankd/internal/errors"
)

// HTTP scorer configuration defaults
const (
	DefaultScorerEndpoint = "http://localhost:9659"
	DefaultScorerModel    = "cross-encoder-small"
	DefaultScorerTimeout  = 30 * time.Second
)

// Manifest file names the factory validates before handing out a Handle.
const (
	assetConfig    = "config.json"
	assetTokenizer = "tokenizer.json"
	assetWeights   = "model_quantized.onnx"
)

// supportedModelTypes lists the cross-encoder architectures the inference
// sidecar can serve.
var supportedModelTypes = map[string]bool{
	"bert":        true,
	"roberta":     true,
	"xlm-roberta": true,
	"deberta-v2":  true,
}

// HTTPConfig holds configuration for the HTTP scorer.
type HTTPConfig struct {
	// Endpoint is the inference sidecar URL (default: http://localhost:9659)
	Endpoint string

	// Model is the scorer model alias (default: cross-encoder-small)
	Model string

	// Timeout is the per-score request timeout (default: 30s)
	Timeout time.Duration

	// SkipHealthCheck skips the health check during construction (for testing)
	SkipHealthCheck bool
}

// DefaultHTTPConfig returns default scorer configuration.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Endpoint: DefaultScorerEndpoint,
		Model:    DefaultScorerModel,
		Timeout:  DefaultScorerTimeout,
	}
}

// HTTPScorer scores query/document pairs via an inference sidecar.
type HTTPScorer struct {
	client   *http.Client
	config   HTTPConfig
	mu       sync.RWMutex
	closed   bool
	endpoint string
}

// Verify interface implementation at compile time
var _ Handle = (*HTTPScorer)(nil)

// NewHTTPFactory returns a Factory that validates assets and constructs an
// HTTPScorer backed by the configured inference sidecar.
func NewHTTPFactory(cfg HTTPConfig) Factory {
	return FactoryFunc(func(ctx context.Context, assets Assets) (Handle, error) {
		if err := validateAssets(assets); err != nil {
			return nil, err
		}
		return NewHTTPScorer(ctx, cfg)
	})
}

// validateAssets checks that the manifest assets form a usable model: the
// configuration parses and names a supported architecture, the tokenizer is
// valid JSON, and the weights are non-empty.
func validateAssets(assets Assets) error {
	cfgBytes, ok := assets[assetConfig]
	if !ok {
		return errors.ModelConstructError("missing asset config.json", nil)
	}
	var modelCfg struct {
		ModelType string `json:"model_type"`
	}
	if err := json.Unmarshal(cfgBytes, &modelCfg); err != nil {
		return errors.ModelConstructError("malformed config.json", err)
	}
	if !supportedModelTypes[modelCfg.ModelType] {
		return errors.ModelConstructError(
			fmt.Sprintf("unsupported model type %q", modelCfg.ModelType), nil)
	}

	tokBytes, ok := assets[assetTokenizer]
	if !ok {
		return errors.ModelConstructError("missing asset tokenizer.json", nil)
	}
	if !json.Valid(tokBytes) {
		return errors.ModelConstructError("malformed tokenizer.json", nil)
	}

	if len(assets[assetWeights]) == 0 {
		return errors.ModelConstructError("empty model weights", nil)
	}
	return nil
}

// NewHTTPScorer creates a new HTTP scorer client.
func NewHTTPScorer(ctx context.Context, cfg HTTPConfig) (*HTTPScorer, error) {
	// Apply defaults
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultScorerEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultScorerModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultScorerTimeout
	}

	client := &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	s := &HTTPScorer{
		client:   client,
		config:   cfg,
		endpoint: cfg.Endpoint,
	}

	// Health check (unless skipped)
	if !cfg.SkipHealthCheck {
		checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		if err := s.healthCheck(checkCtx); err != nil {
			return nil, errors.Wrap(errors.ErrCodeScorerUnavailable, err)
		}
	}

	slog.Debug("http_scorer_created",
		slog.String("endpoint", cfg.Endpoint),
		slog.String("model", cfg.Model),
		slog.Duration("timeout", cfg.Timeout))

	return s, nil
}

// healthCheck verifies the inference sidecar is reachable.
func (s *HTTPScorer) healthCheck(ctx context.Context) error {
	url := s.endpoint + "/health"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to scorer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("scorer unhealthy (status %d): %s", resp.StatusCode, string(body))
	}

	return nil
}

// scoreRequest is the JSON request to the /score endpoint.
type scoreRequest struct {
	Query string `json:"query"`
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// scoreResponse is the JSON response from the /score endpoint.
type scoreResponse struct {
	Score            float64 `json:"score"`
	Model            string  `json:"model"`
	ProcessingTimeMs float64 `json:"processing_time_ms"`
}

// Score posts one query/document pair to the sidecar and returns its score.
func (s *HTTPScorer) Score(ctx context.Context, query, text string) (float64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, fmt.Errorf("scorer is closed")
	}
	s.mu.RUnlock()

	reqBody := scoreRequest{
		Query: query,
		Text:  text,
		Model: s.config.Model,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal score request: %w", err)
	}

	url := s.endpoint + "/score"
	timeoutCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to create score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("score request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("score failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("failed to decode score response: %w", err)
	}

	slog.Debug("scorer_http_timing",
		slog.String("query", truncate(query, 50)),
		slog.Int("text_bytes", len(text)),
		slog.Duration("total", time.Since(start)),
		slog.Float64("server_time_ms", result.ProcessingTimeMs))

	return result.Score, nil
}

// ModelName returns the model identifier.
func (s *HTTPScorer) ModelName() string {
	return s.config.Model
}

// Available checks if the scorer sidecar is reachable.
func (s *HTTPScorer) Available(ctx context.Context) bool {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return false
	}
	s.mu.RUnlock()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.healthCheck(checkCtx) == nil
}

// Close releases resources.
func (s *HTTPScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	// Close idle connections
	if transport, ok := s.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}

	return nil
}

// truncate shortens a string for logging.
func truncate(q string, maxLen int) string {
	if len(q) <= maxLen {
		return q
	}
	return q[:maxLen] + "..."
}
