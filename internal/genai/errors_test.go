package genai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

func TestClassifyError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want ErrorAction
	}{
		{"nil", nil, ActionFail},
		{"caller canceled the turn", context.Canceled, ActionFail},
		{"request deadline", fmt.Errorf("embed query: %w", context.DeadlineExceeded), ActionRetry},

		// Status codes win over message text.
		{"rerank 503 with invalid in body", &APIError{Err: errors.New("invalid state: model warming"), StatusCode: 503}, ActionRetry},
		{"embedding 400 mentioning unavailable", &APIError{Err: errors.New("input unavailable for tokenization"), StatusCode: 400}, ActionFail},
		{"openrouter 402", &APIError{Err: errors.New("payment required"), StatusCode: http.StatusPaymentRequired}, ActionFail},
		{"tei 429", &APIError{Err: errors.New("slow down"), StatusCode: 429, Provider: ProviderOpenAI}, ActionRetry},

		// Permanent overrides everything, also through wrapping.
		{"permanent transient text", Permanent(errors.New("503 service unavailable")), ActionFail},
		{"permanent deadline", Permanent(context.DeadlineExceeded), ActionFail},
		{"wrapped permanent", fmt.Errorf("chat stream: %w", Permanent(errors.New("connection reset"))), ActionFail},

		// Message heuristics for errors without a status.
		{"openrouter credits", errors.New("Insufficient credits. Add more using https://openrouter.ai/credits"), ActionFail},
		{"gemini daily quota", errors.New("RESOURCE_EXHAUSTED: daily limit reached"), ActionFail},
		{"gemini burst", errors.New("RESOURCE_EXHAUSTED: try again later"), ActionRetry},
		{"tei still loading", errors.New("Model is loading model weights"), ActionRetry},
		{"connection refused", errors.New("dial tcp 127.0.0.1:8080: connection refused"), ActionRetry},
		{"truncated body", errors.New("unexpected EOF"), ActionRetry},
		{"bad api key", errors.New("Unauthorized: invalid api key"), ActionFail},
		{"unknown model", errors.New("model BAAI/bge-m3 not found"), ActionFail},
		{"unrecognized", errors.New("something odd happened"), ActionRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ClassifyError(tt.err); got != tt.want {
				t.Errorf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// Every classification is one of exactly two actions.
func TestClassifyError_TwoActions(t *testing.T) {
	t.Parallel()
	for code := 100; code < 600; code++ {
		got := classifyStatusCode(code)
		if got != ActionRetry && got != ActionFail {
			t.Fatalf("classifyStatusCode(%d) = %v", code, got)
		}
		wantFail := code >= 400 && code < 500 &&
			code != http.StatusTooManyRequests && code != http.StatusRequestTimeout && code != http.StatusConflict
		if (got == ActionFail) != wantFail {
			t.Errorf("classifyStatusCode(%d) = %v", code, got)
		}
	}
	if got := ErrorAction(2).String(); got != "unknown" {
		t.Errorf("ErrorAction(2).String() = %q, want unknown", got)
	}
}

func TestPermanent(t *testing.T) {
	t.Parallel()
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}

	cause := &APIError{Err: errors.New("unsupported dimensions"), StatusCode: 503}
	err := Permanent(cause)
	if err.Error() != cause.Error() {
		t.Errorf("Error() = %q, want %q", err.Error(), cause.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("Permanent should unwrap to its cause")
	}
	if StatusCode(err) != 503 {
		t.Errorf("StatusCode() = %d, want 503", StatusCode(err))
	}
	if IsRetryable(err) || !IsPermanent(err) {
		t.Error("a permanent 503 must not be retried")
	}
	if !IsRetryable(cause) {
		t.Error("the bare 503 is retryable")
	}
}

func TestStatusCode(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", errors.New("boom"), 0},
		{"api error without status", &APIError{Err: errors.New("x")}, 0},
		{"wrapped rerank error", fmt.Errorf("rerank: %w", &APIError{Err: errors.New("x"), StatusCode: 429}), 429},
		{"openai sdk", fmt.Errorf("chat: %w", &openai.Error{StatusCode: 503}), 503},
		{"gemini sdk", fmt.Errorf("embed: %w", genai.APIError{Code: 404, Message: "model not found"}), 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}

	if got := ClassifyError(&openai.Error{StatusCode: 401}); got != ActionFail {
		t.Errorf("ClassifyError(openai 401) = %v, want fail", got)
	}
	if got := ClassifyError(genai.APIError{Code: 500}); got != ActionRetry {
		t.Errorf("ClassifyError(gemini 500) = %v, want retry", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()
	future := time.Now().Add(time.Minute).UTC().Format(http.TimeFormat)
	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)

	tests := []struct {
		name    string
		headers http.Header
		min     time.Duration
		max     time.Duration
	}{
		{"none", http.Header{}, 0, 0},
		{"milliseconds preferred", http.Header{"Retry-After-Ms": {"250"}, "Retry-After": {"9"}}, 250 * time.Millisecond, 250 * time.Millisecond},
		{"bad milliseconds fall back to seconds", http.Header{"Retry-After-Ms": {"soon"}, "Retry-After": {"2"}}, 2 * time.Second, 2 * time.Second},
		{"zero seconds", http.Header{"Retry-After": {"0"}}, 0, 0},
		{"http date", http.Header{"Retry-After": {future}}, 30 * time.Second, time.Minute},
		{"http date in the past", http.Header{"Retry-After": {past}}, 0, 0},
		{"garbage", http.Header{"Retry-After": {"later"}}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseRetryAfter(tt.headers)
			if got < tt.min || got > tt.max {
				t.Errorf("ParseRetryAfter() = %v, want in [%v, %v]", got, tt.min, tt.max)
			}
		})
	}
}

func TestAPIError(t *testing.T) {
	t.Parallel()
	cause := errors.New("rerank failed")

	withStatus := &APIError{Err: cause, StatusCode: 502, Provider: ProviderOpenAI}
	if got, want := withStatus.Error(), "rerank failed (status: 502)"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(withStatus, cause) {
		t.Error("APIError should unwrap to its cause")
	}

	bare := &APIError{Err: cause, Provider: ProviderGemini}
	if got := bare.Error(); got != "rerank failed" {
		t.Errorf("Error() = %q, want %q", got, "rerank failed")
	}
}
