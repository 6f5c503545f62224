// Package httpgateway is the production internal/provisioning.Gateway: it
// issues the api_call step's configured HTTP request directly, carrying
// the idempotency key as a header so a repeated attempt after a timeout is
// safe on the receiving side: a bare net/http.Client, context-aware request
// construction, status-code-driven error classification.
package httpgateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/provisioning"
)

// transientError wraps a failure the caller's retry policy should retry:
// network errors and 5xx/429 responses, as opposed to other 4xx responses
// which are permanent under the gateway's ExternalPermanent/ExternalTransient split.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }
func (e *transientError) Transient() bool { return true }

var _ provisioning.Transient = (*transientError)(nil)

// Gateway issues provisioning.Request calls over plain HTTP.
type Gateway struct {
	httpClient *http.Client
	logger     *zap.Logger
}

// New builds a Gateway with the given per-request timeout.
func New(timeout time.Duration, logger *zap.Logger) *Gateway {
	return &Gateway{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With(zap.String("component", "provisioning-http-gateway")),
	}
}

// Do issues req.Method against req.URL, carrying req.Body as the request
// body and req.IdempotencyKey as the Idempotency-Key header.
func (g *Gateway) Do(ctx context.Context, req provisioning.Request) (provisioning.Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return provisioning.Response{}, fmt.Errorf("httpgateway: build request: %w", err)
	}
	if len(req.Body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.IdempotencyKey != "" {
		httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)
	}

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return provisioning.Response{}, &transientError{err: fmt.Errorf("httpgateway: do request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return provisioning.Response{}, &transientError{err: fmt.Errorf("httpgateway: read response: %w", err)}
	}

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return provisioning.Response{}, &transientError{
			err: fmt.Errorf("httpgateway: %s %s: status %d", req.Method, req.URL, resp.StatusCode),
		}
	}
	if resp.StatusCode >= 400 {
		return provisioning.Response{}, fmt.Errorf("httpgateway: %s %s: status %d: %s", req.Method, req.URL, resp.StatusCode, respBody)
	}

	g.logger.Debug("provisioning call completed",
		zap.String("method", req.Method), zap.String("url", req.URL), zap.Int("status", resp.StatusCode))

	return provisioning.Response{StatusCode: resp.StatusCode, Body: respBody}, nil
}

var _ provisioning.Gateway = (*Gateway)(nil)
