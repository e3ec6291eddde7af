package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExecuteSuccess(t *testing.T) {
	var gotBody []byte
	var gotSig, gotEvent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSig = r.Header.Get(HeaderSignature)
		gotEvent = r.Header.Get(HeaderEvent)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	snap := RequestSnapshot{
		Method: http.MethodPost,
		URL:    srv.URL,
		Headers: map[string]string{
			HeaderEvent:     "order.created",
			HeaderSignature: "sig123",
		},
		Body: []byte(`{"a":1}`),
	}

	res := NewExecutor(0).Execute(context.Background(), snap)
	if !res.Success {
		t.Fatalf("Execute() Success = false, result = %+v", res)
	}
	if res.StatusCode != http.StatusOK {
		t.Errorf("StatusCode = %d, want 200", res.StatusCode)
	}
	if res.ResponseBody != "ok" {
		t.Errorf("ResponseBody = %q, want ok", res.ResponseBody)
	}
	if res.Latency <= 0 {
		t.Errorf("Latency = %v, want > 0", res.Latency)
	}
	if string(gotBody) != `{"a":1}` {
		t.Errorf("server saw body %q", gotBody)
	}
	if gotSig != "sig123" || gotEvent != "order.created" {
		t.Errorf("server saw sig=%q event=%q", gotSig, gotEvent)
	}
}

func TestExecuteNonSuccessStatuses(t *testing.T) {
	tests := []struct {
		status  int
		success bool
		reason  string
	}{
		{status: 201, success: true, reason: "other"},
		{status: 299, success: true, reason: "other"},
		{status: 301, success: false, reason: "other"},
		{status: 400, success: false, reason: "http_4xx"},
		{status: 404, success: false, reason: "http_4xx"},
		{status: 429, success: false, reason: "http_429"},
		{status: 500, success: false, reason: "http_5xx"},
		{status: 503, success: false, reason: "http_5xx"},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		res := NewExecutor(0).Execute(context.Background(), RequestSnapshot{
			Method: http.MethodPost,
			URL:    srv.URL,
			Body:   []byte(`{}`),
		})
		srv.Close()

		if res.Success != tt.success {
			t.Errorf("status %d: Success = %v, want %v", tt.status, res.Success, tt.success)
		}
		if res.StatusCode != tt.status {
			t.Errorf("status %d: StatusCode = %d", tt.status, res.StatusCode)
		}
		if !res.Completed() {
			t.Errorf("status %d: Completed() = false, want true", tt.status)
		}
		if got := res.Reason(); got != tt.reason {
			t.Errorf("status %d: Reason() = %q, want %q", tt.status, got, tt.reason)
		}
	}
}

func TestExecuteConnectionRefused(t *testing.T) {
	// Grab a port that nothing listens on.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := NewExecutor(time.Second).Execute(context.Background(), RequestSnapshot{
		Method: http.MethodPost,
		URL:    url,
		Body:   []byte(`{}`),
	})

	if res.Success {
		t.Fatal("Execute() Success = true for refused connection")
	}
	if res.Completed() {
		t.Error("Completed() = true, want false with no response")
	}
	if res.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", res.StatusCode)
	}
	if res.Latency != 0 {
		t.Errorf("Latency = %v, want 0 for transport failure", res.Latency)
	}
	if res.ErrorCode != "connection_refused" {
		t.Errorf("ErrorCode = %q, want connection_refused", res.ErrorCode)
	}
	if res.ErrorMessage == "" {
		t.Error("ErrorMessage empty, want transport error text")
	}
}

func TestExecuteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	res := NewExecutor(20 * time.Millisecond).Execute(context.Background(), RequestSnapshot{
		Method: http.MethodPost,
		URL:    srv.URL,
		Body:   []byte(`{}`),
	})

	if res.Success || res.Completed() {
		t.Fatalf("timeout result = %+v, want transport failure", res)
	}
	if res.ErrorCode != "timeout" {
		t.Errorf("ErrorCode = %q, want timeout", res.ErrorCode)
	}
	if res.Reason() != "timeout" {
		t.Errorf("Reason() = %q, want timeout", res.Reason())
	}
}

func TestExecuteDNSError(t *testing.T) {
	res := NewExecutor(2 * time.Second).Execute(context.Background(), RequestSnapshot{
		Method: http.MethodPost,
		URL:    "http://nonexistent.invalid/hook",
		Body:   []byte(`{}`),
	})

	if res.Success || res.Completed() {
		t.Fatalf("dns result = %+v, want transport failure", res)
	}
	if res.ErrorCode != "dns_error" {
		t.Errorf("ErrorCode = %q, want dns_error", res.ErrorCode)
	}
}
