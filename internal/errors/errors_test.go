package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("connection refused")

	// When: wrapping with EngineError
	engErr := New(ErrCodeAssetFetch, "failed to fetch tokenizer.json", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, engErr)
	assert.Equal(t, originalErr, errors.Unwrap(engErr))
	assert.True(t, errors.Is(engErr, originalErr))
}

func TestEngineError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "asset fetch error",
			code:     ErrCodeAssetFetch,
			message:  "tokenizer.json unreachable",
			expected: "[ERR_302_ASSET_FETCH] tokenizer.json unreachable",
		},
		{
			name:     "scoring error",
			code:     ErrCodeScoringFailed,
			message:  "scorer returned 500",
			expected: "[ERR_503_SCORING_FAILED] scorer returned 500",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestEngineError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with the same code
	err1 := New(ErrCodeNotReady, "model not loaded yet", nil)
	err2 := New(ErrCodeNotReady, "different message", nil)
	other := New(ErrCodeAssetFetch, "fetch failed", nil)

	// Then: errors.Is matches by code, not message
	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, other))
}

func TestCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		expected Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeCacheRead, CategoryCache},
		{ErrCodeAssetFetch, CategoryNetwork},
		{ErrCodeNotReady, CategoryValidation},
		{ErrCodeModelConstruct, CategoryInternal},
		{"garbage", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, categoryFromCode(tt.code))
		})
	}
}

func TestSeverity_TaxonomyMapping(t *testing.T) {
	// Model construction failure is fatal for the engine lifetime.
	assert.True(t, IsFatal(ModelConstructError("unsupported model type", nil)))

	// Asset fetch failures are retryable via a fresh load command, not fatal.
	fetchErr := AssetFetchError("model_quantized.onnx", errors.New("timeout"))
	assert.False(t, IsFatal(fetchErr))
	assert.True(t, IsRetryable(fetchErr))

	// Not-ready rejection is advisory only.
	notReady := NotReadyError()
	assert.Equal(t, SeverityInfo, notReady.Severity)
	assert.False(t, IsFatal(notReady))

	// Per-document scoring errors are neither fatal nor retryable.
	scoreErr := ScoringError("https://example.com/doc", errors.New("boom"))
	assert.False(t, IsFatal(scoreErr))
	assert.False(t, IsRetryable(scoreErr))
}

func TestEngineError_WithDetail_Chains(t *testing.T) {
	err := AssetFetchError("config.json", nil).WithDetail("url", "https://host/config.json")

	assert.Equal(t, "config.json", err.Details["asset"])
	assert.Equal(t, "https://host/config.json", err.Details["url"])
	assert.NotEmpty(t, err.Suggestion)
}

func TestGetCode_NonEngineError(t *testing.T) {
	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.Equal(t, ErrCodeInternal, GetCode(InternalError("boom", nil)))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeAssetFetch, nil))
}
