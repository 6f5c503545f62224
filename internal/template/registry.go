// Package template is the Template Registry: a process-wide, immutable
// cache of versioned workflow templates keyed by (market_role, version),
// refreshed only by explicit publication. A mutex-guarded map with
// Register/Get/List/Has.
package template

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/marketgrid/onboardengine/internal/workflow"
)

// ErrTemplateConflict is returned by Register when a template already
// exists for the given (market_role, version).
var ErrTemplateConflict = errors.New("template: a template is already registered for this market_role and version")

// ErrTemplateNotFound is returned by Get/ActiveFor when no template matches.
var ErrTemplateNotFound = errors.New("template: no matching template is registered")

type key struct {
	marketRole string
	version    int
}

// Registry holds every loaded template version, plus a pointer to the
// active version per market role.
type Registry struct {
	mu        sync.RWMutex
	templates map[key]*workflow.Template
	active    map[string]int // market_role -> active version
	logger    *zap.Logger
}

// New constructs an empty Registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		templates: make(map[key]*workflow.Template),
		active:    make(map[string]int),
		logger:    logger.With(zap.String("component", "template-registry")),
	}
}

// Register loads t into the cache. Registering a new version for a market
// role that already has an active version supersedes the old one: the
// prior version's Status becomes TemplateStatusSuperseded and it remains
// addressable by explicit version, per "a new version supersedes but does
// not modify prior versions."
func (r *Registry) Register(t *workflow.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{marketRole: t.MarketRole, version: t.Version}
	if _, exists := r.templates[k]; exists {
		return fmt.Errorf("%w: %s v%d", ErrTemplateConflict, t.MarketRole, t.Version)
	}

	if prevVersion, ok := r.active[t.MarketRole]; ok {
		prevKey := key{marketRole: t.MarketRole, version: prevVersion}
		if prev, ok := r.templates[prevKey]; ok {
			superseded := *prev
			superseded.Status = workflow.TemplateStatusSuperseded
			r.templates[prevKey] = &superseded
		}
	}

	copyT := *t
	copyT.Status = workflow.TemplateStatusActive
	r.templates[k] = &copyT
	r.active[t.MarketRole] = t.Version

	r.logger.Info("registered workflow template",
		zap.String("market_role", t.MarketRole),
		zap.Int("version", t.Version),
	)
	return nil
}

// Get returns the template for (marketRole, version).
func (r *Registry) Get(marketRole string, version int) (*workflow.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[key{marketRole: marketRole, version: version}]
	if !ok {
		return nil, fmt.Errorf("%w: %s v%d", ErrTemplateNotFound, marketRole, version)
	}
	return t, nil
}

// ActiveFor returns the currently active template for marketRole.
func (r *Registry) ActiveFor(marketRole string) (*workflow.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	version, ok := r.active[marketRole]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, marketRole)
	}
	return r.templates[key{marketRole: marketRole, version: version}], nil
}

// List returns every registered template, sorted by market role then
// version, for diagnostics and the operator CLI.
func (r *Registry) List() []*workflow.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*workflow.Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketRole != out[j].MarketRole {
			return out[i].MarketRole < out[j].MarketRole
		}
		return out[i].Version < out[j].Version
	})
	return out
}

// Has reports whether a template is registered for (marketRole, version).
func (r *Registry) Has(marketRole string, version int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[key{marketRole: marketRole, version: version}]
	return ok
}
