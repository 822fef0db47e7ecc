package ai_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/jelajah/backend/internal/config"
	"github.com/zhouzirui/jelajah/backend/internal/service/ai"
	"github.com/zhouzirui/jelajah/backend/internal/service/retry"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "deadline", err: context.DeadlineExceeded, expected: true},
		{name: "wrapped deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), expected: true},
		{name: "cancelled", err: context.Canceled, expected: false},
		{name: "rate limited", err: &ai.StatusError{StatusCode: http.StatusTooManyRequests}, expected: true},
		{name: "request timeout", err: &ai.StatusError{StatusCode: http.StatusRequestTimeout}, expected: true},
		{name: "bad gateway", err: &ai.StatusError{StatusCode: http.StatusBadGateway}, expected: true},
		{name: "bad request", err: &ai.StatusError{StatusCode: http.StatusBadRequest}, expected: false},
		{name: "unauthorized", err: &ai.StatusError{StatusCode: http.StatusUnauthorized}, expected: false},
		{name: "forbidden", err: &ai.StatusError{StatusCode: http.StatusForbidden}, expected: false},
		{name: "marked transient", err: retry.Transient(errors.New("flaky")), expected: true},
		{name: "marked permanent", err: retry.Permanent(errors.New("request timeout")), expected: false},
		{name: "sdk timeout text", err: errors.New("ark: Request Timed Out"), expected: true},
		{name: "sdk rate limit text", err: errors.New("rate limit exceeded"), expected: true},
		{name: "config error", err: errors.New("model not found"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ai.IsTransient(tt.err))
		})
	}
}

func TestStatusErrorTruncatesBody(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	err := &ai.StatusError{StatusCode: http.StatusInternalServerError, Body: string(long)}

	assert.Less(t, len(err.Error()), 400)
	assert.Contains(t, err.Error(), "500")
}

func TestNewBackendSelectsProvider(t *testing.T) {
	backend, err := ai.NewBackend(context.Background(), config.AIConfig{Provider: config.ProviderAuto}, ai.DefaultPrompt)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderFallback, backend.Name())

	backend, err = ai.NewBackend(context.Background(), config.AIConfig{
		Provider:      config.ProviderAuto,
		GeminiAPIKey:  "key",
		GeminiModel:   "gemini-1.5-flash",
		GeminiBaseURL: "http://127.0.0.1:0",
	}, ai.DefaultPrompt)
	require.NoError(t, err)
	assert.Equal(t, config.ProviderGemini, backend.Name())
}

func TestNewBackendArkWithoutCredentials(t *testing.T) {
	backend, err := ai.NewBackend(context.Background(), config.AIConfig{Provider: config.ProviderArk}, ai.DefaultPrompt)
	require.Error(t, err)
	assert.Nil(t, backend)
}
