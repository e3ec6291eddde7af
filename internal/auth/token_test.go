package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	v := NewValidator("secret123", "hookrelay")

	token, err := v.Issue("ops@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := v.Validate(token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if claims.Subject != "ops@example.com" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if claims.Issuer != "hookrelay" {
		t.Errorf("Issuer = %q", claims.Issuer)
	}
}

func TestValidateRejects(t *testing.T) {
	v := NewValidator("secret123", "hookrelay")

	tests := []struct {
		name  string
		token func() string
	}{
		{
			name:  "garbage",
			token: func() string { return "not.a.jwt" },
		},
		{
			name: "wrong secret",
			token: func() string {
				other := NewValidator("different", "hookrelay")
				tok, _ := other.Issue("x", time.Hour)
				return tok
			},
		},
		{
			name: "wrong issuer",
			token: func() string {
				other := NewValidator("secret123", "someone-else")
				tok, _ := other.Issue("x", time.Hour)
				return tok
			},
		},
		{
			name: "expired",
			token: func() string {
				tok, _ := v.Issue("x", -time.Minute)
				return tok
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Validate(tt.token()); err == nil {
				t.Error("Validate() accepted an invalid token")
			}
		})
	}
}

func TestMiddleware(t *testing.T) {
	v := NewValidator("secret123", "hookrelay")
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := v.Middleware(next)

	token, err := v.Issue("cli", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "valid token", path: "/v1/events", header: "Bearer " + token, want: http.StatusOK},
		{name: "missing token", path: "/v1/events", header: "", want: http.StatusUnauthorized},
		{name: "malformed header", path: "/v1/events", header: "Token abc", want: http.StatusUnauthorized},
		{name: "bad token", path: "/v1/events", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "healthz open", path: "/healthz", header: "", want: http.StatusOK},
		{name: "metrics open", path: "/metrics", header: "", want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}

func TestMiddlewareDisabled(t *testing.T) {
	v := NewValidator("", "hookrelay")
	if v.Enabled() {
		t.Error("Enabled() = true with empty secret")
	}

	handler := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d with auth disabled, want 200", rr.Code)
	}
}
