package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Sink receives a copy of every assembled document after the local write
type Sink interface {
	Name() string
	Deliver(ctx context.Context, recordID string, doc []byte) error
}

// WebhookSink POSTs assembled documents to a fixed URL
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a sink; timeout <= 0 defaults to 30s
func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookSink{url: url, client: &http.Client{Timeout: timeout}}
}

// Name implements Sink
func (s *WebhookSink) Name() string { return "webhook" }

// Deliver implements Sink
func (s *WebhookSink) Deliver(ctx context.Context, recordID string, doc []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(doc))
	if err != nil {
		return errors.Wrap(err, "create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Record-ID", recordID)

	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "deliver webhook for %s", recordID)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("webhook for %s: unexpected status code: %d, response: %s",
			recordID, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
