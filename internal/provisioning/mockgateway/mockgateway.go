// Package mockgateway is an in-memory provisioning.Gateway, grounded on the
// teacher's in-memory compute provider mock: a mutex-guarded record of calls
// and of the response returned per idempotency key, standing in for a real
// provisioning backend during tests.
package mockgateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/marketgrid/onboardengine/internal/provisioning"
)

type transientError struct{ error }

func (transientError) Transient() bool { return true }

// ErrSimulated is returned by a configured failure.
var ErrSimulated = fmt.Errorf("mockgateway: simulated failure")

// Gateway is a provisioning.Gateway that records every call and replays a
// configured canned response or failure per idempotency key.
type Gateway struct {
	mu       sync.Mutex
	calls    []provisioning.Request
	seen     map[string]provisioning.Response // idempotency key -> response already returned
	failNext map[string]bool                  // idempotency key -> fail once, then succeed on retry
}

// New constructs an empty Gateway.
func New() *Gateway {
	return &Gateway{
		seen:     make(map[string]provisioning.Response),
		failNext: make(map[string]bool),
	}
}

// FailNextFor makes the next Do call carrying idempotencyKey return a
// transient simulated error, exercising the handler's retry path.
func (g *Gateway) FailNextFor(idempotencyKey string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failNext[idempotencyKey] = true
}

func (g *Gateway) Do(_ context.Context, req provisioning.Request) (provisioning.Response, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls = append(g.calls, req)

	// Idempotent replay: a call already completed for this key returns the
	// same response without re-executing, matching a real idempotent
	// provisioning backend.
	if resp, ok := g.seen[req.IdempotencyKey]; ok {
		return resp, nil
	}

	if g.failNext[req.IdempotencyKey] {
		delete(g.failNext, req.IdempotencyKey)
		return provisioning.Response{}, transientError{fmt.Errorf("%w: %s", ErrSimulated, req.URL)}
	}

	resp := provisioning.Response{StatusCode: 200, Body: []byte(`{"status":"provisioned"}`)}
	g.seen[req.IdempotencyKey] = resp
	return resp, nil
}

// Calls returns every recorded Do call, for assertions.
func (g *Gateway) Calls() []provisioning.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]provisioning.Request, len(g.calls))
	copy(out, g.calls)
	return out
}

var _ provisioning.Gateway = (*Gateway)(nil)
