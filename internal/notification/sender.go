package notification

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/Laixer/Swabbr-Backend-sub003/internal/domain"
)

// Sender delivers an extracted wire payload to a device handle. The real
// platform delivery (FCM/APNS) sits behind a gateway; this boundary only
// knows HTTP.
type Sender interface {
	Send(ctx context.Context, platform domain.Platform, deviceHandle string, wirePayload []byte) Result
}

// Result captures one delivery attempt.
type Result struct {
	StatusCode int
	Error      error
	Duration   time.Duration
}

// IsSuccess reports whether the gateway accepted the payload.
func (r Result) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// HTTPSender posts wire payloads to a per-platform push gateway with an
// HMAC signature header.
type HTTPSender struct {
	client   *http.Client
	gateways map[domain.Platform]string
	secret   string
	timeout  time.Duration
}

// NewHTTPSender creates a sender for the given platform gateway URLs.
func NewHTTPSender(gateways map[domain.Platform]string, secret string, timeout time.Duration) *HTTPSender {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{
		client:   &http.Client{},
		gateways: gateways,
		secret:   secret,
		timeout:  timeout,
	}
}

// Send posts the payload to the platform's gateway.
// Headers: X-Swabbr-Device (recipient handle), X-Swabbr-Signature.
func (s *HTTPSender) Send(ctx context.Context, platform domain.Platform, deviceHandle string, wirePayload []byte) Result {
	start := time.Now()

	gateway, ok := s.gateways[platform]
	if !ok || gateway == "" {
		return Result{Error: fmt.Errorf("no gateway configured for platform %s", platform), Duration: time.Since(start)}
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctxTimeout, http.MethodPost, gateway, bytes.NewReader(wirePayload))
	if err != nil {
		return Result{Error: fmt.Errorf("create request: %w", err), Duration: time.Since(start)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Swabbr-Device", deviceHandle)
	req.Header.Set("X-Swabbr-Signature", computeSignature(s.secret, wirePayload))

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{Error: fmt.Errorf("send: %w", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	return Result{StatusCode: resp.StatusCode, Duration: time.Since(start)}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature lets the gateway verify an incoming payload.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
