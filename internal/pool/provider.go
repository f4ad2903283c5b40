package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPProvider drives livestream lifecycle against a provisioner service
// over HTTP. Only create/delete semantics live here; stream protocol details
// stay on the provider side.
type HTTPProvider struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewHTTPProvider creates a provider client for the given base URL.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &HTTPProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

type provisionResponse struct {
	LivestreamID string `json:"livestream_id"`
}

// Provision asks the provisioner for a new livestream endpoint and returns
// its identifier.
func (p *HTTPProvider) Provision(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/livestreams", nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("provision: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("provision: unexpected status %d", resp.StatusCode)
	}

	var body provisionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode provision response: %w", err)
	}
	if body.LivestreamID == "" {
		return "", fmt.Errorf("provision: empty livestream id")
	}
	return body.LivestreamID, nil
}

// Teardown deletes a livestream endpoint. A 404 counts as success; the
// resource is already gone.
func (p *HTTPProvider) Teardown(ctx context.Context, livestreamID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, p.baseURL+"/livestreams/"+livestreamID, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("teardown: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("teardown: unexpected status %d", resp.StatusCode)
	}
}

func (p *HTTPProvider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}
