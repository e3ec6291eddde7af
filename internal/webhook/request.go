package webhook

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
)

// Wire contract toward subscribers.
const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderSignature = "X-Webhook-Signature"

	DefaultUserAgent = "hookrelay/1.0"
)

// RequestBuilder assembles outbound request snapshots from subscriber
// configuration. Building is done exactly once per delivery; the snapshot is
// what retries replay, byte for byte.
type RequestBuilder struct {
	userAgent string
}

func NewRequestBuilder(userAgent string) *RequestBuilder {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &RequestBuilder{userAgent: userAgent}
}

// Build serializes the payload once, signs the exact bytes that will be sent,
// and layers headers in override order: base, subscriber static headers, auth
// credentials, then the signature, which subscriber headers may not shadow.
func (b *RequestBuilder) Build(sub *Subscriber, event string, payload map[string]any) (RequestSnapshot, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return RequestSnapshot{}, fmt.Errorf("marshal payload: %w", err)
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"User-Agent":   b.userAgent,
		HeaderEvent:    event,
	}

	for k, v := range sub.Headers {
		if http.CanonicalHeaderKey(k) == HeaderSignature {
			continue
		}
		headers[http.CanonicalHeaderKey(k)] = v
	}

	switch sub.Auth.Type {
	case AuthBasic:
		cred := base64.StdEncoding.EncodeToString([]byte(sub.Auth.Username + ":" + sub.Auth.Password))
		headers["Authorization"] = "Basic " + cred
	case AuthBearer:
		headers["Authorization"] = "Bearer " + sub.Auth.Token
	case AuthCustom:
		for k, v := range sub.Auth.Headers {
			if http.CanonicalHeaderKey(k) == HeaderSignature {
				continue
			}
			headers[http.CanonicalHeaderKey(k)] = v
		}
	}

	// Signed over the exact body bytes, set last so nothing overrides it.
	headers[HeaderSignature] = Sign(body, sub.Secret)

	return RequestSnapshot{
		Method:  http.MethodPost,
		URL:     sub.URL,
		Headers: headers,
		Body:    body,
	}, nil
}
