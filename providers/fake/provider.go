// Package fake is the reference provider adapter: an in-memory backend used
// by the test suite and for dry environments. It supports scripted failures
// so executor retry and rollback paths can be exercised deterministically.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tidemark-io/tidemark/internal/model"
	"github.com/tidemark-io/tidemark/internal/provider"
)

// Call records one adapter invocation, for test assertions.
type Call struct {
	Op         string
	ResourceID string
}

type failure struct {
	err       error
	remaining int
}

// Provider implements provider.Adapter against an in-process object map.
type Provider struct {
	mu       sync.Mutex
	objects  map[string]map[string]any
	handles  map[string]string
	failures map[string]*failure
	calls    []Call
}

func New() *Provider {
	return &Provider{
		objects:  make(map[string]map[string]any),
		handles:  make(map[string]string),
		failures: make(map[string]*failure),
	}
}

// FailNext scripts err for the next times invocations of op ("read",
// "create", "update", "delete") on resourceID.
func (p *Provider) FailNext(op, resourceID string, err error, times int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[op+"/"+resourceID] = &failure{err: err, remaining: times}
}

// SetRemote overwrites the backend's attributes for a resource out-of-band,
// simulating drift introduced outside the engine.
func (p *Provider) SetRemote(resourceID string, attrs map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if attrs == nil {
		delete(p.objects, resourceID)
		delete(p.handles, resourceID)
		return
	}
	p.objects[resourceID] = model.CloneAttributes(attrs)
	if _, ok := p.handles[resourceID]; !ok {
		p.handles[resourceID] = newHandle()
	}
}

// Remote returns the backend's current attributes, or nil if absent.
func (p *Provider) Remote(resourceID string) map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return model.CloneAttributes(p.objects[resourceID])
}

// Calls returns the invocation log.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

func (p *Provider) scripted(op, resourceID string) error {
	p.calls = append(p.calls, Call{Op: op, ResourceID: resourceID})
	f, ok := p.failures[op+"/"+resourceID]
	if !ok || f.remaining == 0 {
		return nil
	}
	f.remaining--
	return f.err
}

func (p *Provider) Read(ctx context.Context, resourceID string) (map[string]any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.scripted("read", resourceID); err != nil {
		return nil, false, err
	}
	attrs, ok := p.objects[resourceID]
	if !ok {
		return nil, false, nil
	}
	return model.CloneAttributes(attrs), true, nil
}

func (p *Provider) Create(ctx context.Context, res *model.Resource) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.scripted("create", res.ID); err != nil {
		return "", err
	}
	if _, exists := p.objects[res.ID]; exists {
		return "", provider.Errorf(provider.Permanent, "create", res.ID, "resource already exists")
	}
	p.objects[res.ID] = model.CloneAttributes(res.Attributes)
	handle := newHandle()
	p.handles[res.ID] = handle
	return handle, nil
}

func (p *Provider) Update(ctx context.Context, resourceID string, before, after map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.scripted("update", resourceID); err != nil {
		return err
	}
	if _, exists := p.objects[resourceID]; !exists {
		return provider.Errorf(provider.NotFound, "update", resourceID, "resource does not exist")
	}
	p.objects[resourceID] = model.CloneAttributes(after)
	return nil
}

func (p *Provider) Delete(ctx context.Context, resourceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.scripted("delete", resourceID); err != nil {
		return err
	}
	if _, exists := p.objects[resourceID]; !exists {
		return provider.Errorf(provider.NotFound, "delete", resourceID, "resource does not exist")
	}
	delete(p.objects, resourceID)
	delete(p.handles, resourceID)
	return nil
}

func newHandle() string {
	return fmt.Sprintf("fake-%s", uuid.NewString())
}
