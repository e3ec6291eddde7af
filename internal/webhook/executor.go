package webhook

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"
)

// AttemptTimeout bounds every outbound HTTP attempt.
const AttemptTimeout = 30 * time.Second

// maxCapturedBody caps how much of a subscriber response is kept on the
// audit record.
const maxCapturedBody = 16 << 10

// AttemptResult is the structured outcome of one HTTP attempt. Only 2xx is a
// success; every other status, 4xx included, is a failure that counts toward
// the attempt budget and is retried the same as a 5xx. The webhook contract
// treats all non-2xx as subscriber-side rejection that may be transient.
type AttemptResult struct {
	Success         bool
	StatusCode      int // 0 when no response was received
	ResponseHeaders map[string]string
	ResponseBody    string
	Latency         time.Duration // zero for pure transport failures
	ErrorMessage    string
	ErrorCode       string
}

// Completed reports whether an HTTP exchange finished (a response was
// received), regardless of status.
func (r AttemptResult) Completed() bool {
	return r.StatusCode > 0
}

// Reason classifies the failure for retry metrics.
func (r AttemptResult) Reason() string {
	if r.ErrorCode != "" {
		return r.ErrorCode
	}
	switch {
	case r.StatusCode >= 500:
		return "http_5xx"
	case r.StatusCode == 429:
		return "http_429"
	case r.StatusCode >= 400:
		return "http_4xx"
	}
	return "other"
}

// Executor performs single delivery attempts.
type Executor struct {
	client *http.Client
}

// NewExecutor returns an executor with the given per-attempt timeout;
// zero means AttemptTimeout.
func NewExecutor(timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = AttemptTimeout
	}
	return &Executor{client: &http.Client{Timeout: timeout}}
}

// Execute issues exactly one HTTP call from the request snapshot and
// classifies the outcome. It never returns an error: transport failures are
// part of the result, and every executed call consumes one attempt.
func (e *Executor) Execute(ctx context.Context, snap RequestSnapshot) AttemptResult {
	req, err := http.NewRequestWithContext(ctx, snap.Method, snap.URL, bytes.NewReader(snap.Body))
	if err != nil {
		return AttemptResult{ErrorMessage: err.Error(), ErrorCode: "bad_request"}
	}
	for k, v := range snap.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, doErr := e.client.Do(req)
	if doErr != nil {
		// No response received: latency is unknown, recorded as zero.
		return AttemptResult{
			ErrorMessage: doErr.Error(),
			ErrorCode:    classifyTransportError(doErr),
		}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxCapturedBody))
	latency := time.Since(start)

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return AttemptResult{
		Success:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		StatusCode:      resp.StatusCode,
		ResponseHeaders: headers,
		ResponseBody:    string(body),
		Latency:         latency,
	}
}

func classifyTransportError(err error) string {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return "timeout"
	case strings.Contains(msg, "connection refused"):
		return "connection_refused"
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "dns"):
		return "dns_error"
	default:
		return "network"
	}
}
