package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookSink delivers each event as a JSON POST to a configured endpoint
type WebhookSink struct {
	url        string
	authToken  string
	httpClient *http.Client
}

var _ Sink = (*WebhookSink)(nil)

// deliveryResponse mirrors the error body webhook receivers typically return
type deliveryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// NewWebhookSink creates a sink posting to url. authToken is optional; when
// set it is sent as a bearer token.
func NewWebhookSink(url, authToken string) *WebhookSink {
	return &WebhookSink{
		url:       url,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
	}
}

func (s *WebhookSink) Emit(e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver event: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		// Try to surface the receiver's error message if it sent one
		var apiResp deliveryResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err == nil && apiResp.Message != "" {
			return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, apiResp.Message)
		}
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

func (s *WebhookSink) Close() error {
	return nil
}
