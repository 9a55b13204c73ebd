// Package webhook performs the outbound HTTP calls of webhook steps.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/bizflow/pkg/protocol"
)

const (
	DefaultTimeout  = 30 * time.Second
	maxResponseBody = 1 << 20
	userAgent       = "bizflow-webhook/1.0"
)

// Client implements protocol.WebhookClient. The step timeout bounds each call
// through the request context; the client timeout is a backstop.
type Client struct {
	http   *http.Client
	logger *slog.Logger
}

func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		http:   &http.Client{Timeout: timeout},
		logger: logger.With("module", "webhook_client"),
	}
}

// Send returns every HTTP response, 2xx or not. Only transport failures are errors.
func (c *Client) Send(ctx context.Context, req protocol.WebhookRequest) (protocol.WebhookResponse, error) {
	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return protocol.WebhookResponse{}, protocol.Validationf("encoding webhook body: %w", err)
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), req.URL, body)
	if err != nil {
		return protocol.WebhookResponse{}, protocol.Validationf("failed to create http request: %w", err)
	}

	httpReq.Header.Set("User-Agent", userAgent)

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	start := time.Now()

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return protocol.WebhookResponse{}, fmt.Errorf("http request failed: %w", ctx.Err())
		}

		return protocol.WebhookResponse{}, protocol.Transientf("http request failed: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return protocol.WebhookResponse{}, protocol.Transientf("failed to read response body: %w", err)
	}

	c.logger.DebugContext(ctx, "webhook call finished",
		"url", req.URL, "method", method, "status", resp.StatusCode, "duration", time.Since(start))

	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	return protocol.WebhookResponse{
		StatusCode: resp.StatusCode,
		Headers:    headers,
		Body:       decodeBody(payload),
	}, nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		if b == "" {
			return nil, "", nil
		}

		if json.Valid([]byte(b)) {
			return strings.NewReader(b), "application/json", nil
		}

		return strings.NewReader(b), "text/plain; charset=utf-8", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}

		return bytes.NewReader(data), "application/json", nil
	}
}

// decodeBody returns parsed JSON when possible and the raw text otherwise.
func decodeBody(payload []byte) any {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(payload, &decoded); err == nil {
		return decoded
	}

	return string(payload)
}
