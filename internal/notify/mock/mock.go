// Package mock is an in-memory notify.Transport: a mutex-guarded map
// recording every call for test assertions instead of actually sending
// anything.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/marketgrid/onboardengine/internal/notify"
)

// Sent records one call to Send, for test assertions.
type Sent struct {
	TemplateID string
	Recipients []string
	Variables  map[string]string
}

// Transport is a notify.Transport that never actually sends; it records
// every call and returns a canned result (delivered by default, or a
// configured failure for a given template id).
type Transport struct {
	mu      sync.Mutex
	sent    []Sent
	failFor map[string]error
}

// New constructs an empty Transport.
func New() *Transport {
	return &Transport{failFor: make(map[string]error)}
}

// FailNextFor makes the next Send for templateID return err.
func (t *Transport) FailNextFor(templateID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failFor[templateID] = err
}

func (t *Transport) Send(_ context.Context, templateID string, recipients []string, variables map[string]string) (notify.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sent = append(t.sent, Sent{TemplateID: templateID, Recipients: recipients, Variables: variables})

	if err, ok := t.failFor[templateID]; ok {
		delete(t.failFor, templateID)
		return notify.Result{}, fmt.Errorf("notify/mock: send %s: %w", templateID, err)
	}
	return notify.Result{Delivered: true, MessageID: fmt.Sprintf("mock-%d", len(t.sent))}, nil
}

// SentMessages returns every recorded Send call, for assertions.
func (t *Transport) SentMessages() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Sent, len(t.sent))
	copy(out, t.sent)
	return out
}

var _ notify.Transport = (*Transport)(nil)
