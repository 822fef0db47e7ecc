package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/zhouzirui/jelajah/backend/internal/config"
	"github.com/zhouzirui/jelajah/backend/internal/model/chat"
	"github.com/zhouzirui/jelajah/backend/internal/service/retry"
)

// Backend produces a reply for message given the prior context, oldest first.
type Backend interface {
	Name() string
	Generate(ctx context.Context, history []chat.ContextMessage, message string) (string, error)
}

// NewBackend builds the backend named by cfg.ResolveProvider.
func NewBackend(ctx context.Context, cfg config.AIConfig, tmpl PromptTemplate) (Backend, error) {
	switch provider := cfg.ResolveProvider(); provider {
	case config.ProviderArk:
		backend, err := NewArkBackendFromConfig(ctx, cfg, tmpl)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case config.ProviderGemini:
		return NewGeminiBackend(cfg, tmpl), nil
	case config.ProviderFallback:
		return NewFallbackBackend(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
}

// ErrEmptyReply is returned when a backend answers with no text.
var ErrEmptyReply = errors.New("backend returned an empty reply")

// StatusError carries the HTTP status of a failed backend call.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("backend responded %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

var transientMarkers = []string{
	"timeout",
	"timed out",
	"rate limit",
	"too many requests",
	"temporarily unavailable",
	"connection reset",
	"connection refused",
	"server overloaded",
}

// IsTransient classifies backend errors for the retry policy.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if retry.IsPermanent(err) {
		return false
	}
	if retry.IsTransient(err) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Temporary()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	// SDK errors are often flattened to text.
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
