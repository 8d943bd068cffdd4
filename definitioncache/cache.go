// Package definitioncache caches the tool/resource/prompt definitions a
// server advertises (spec §1 lists "the definition cache" as an external
// collaborator to the core). Entries are validated/resolved with
// github.com/google/jsonschema-go and expire after a configurable TTL;
// resource URI templates are matched against concrete notification uris
// with github.com/yosida95/uritemplate/v3.
package definitioncache

import (
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/yosida95/uritemplate/v3"
)

// ToolDefinition is a cached tools/list entry.
type ToolDefinition struct {
	Name         string
	Description  string
	InputSchema  *jsonschema.Schema
	OutputSchema *jsonschema.Schema

	resolvedInput, resolvedOutput *jsonschema.Resolved
}

// ValidateInput validates args against the tool's resolved input schema.
// It is a no-op (returns nil) if the tool declared no input schema.
func (t *ToolDefinition) ValidateInput(args any) error {
	if t.resolvedInput == nil {
		return nil
	}
	return t.resolvedInput.Validate(args)
}

// ResourceDefinition is a cached resources/list entry. URITemplate is set
// for template-style resource entries (RFC 6570); Fixed entries leave it
// empty and use URI directly.
type ResourceDefinition struct {
	URI         string
	URITemplate string
	Name        string
	MIMEType    string

	tmpl *uritemplate.Template
}

// Matches reports whether uri is an instance of this resource's template
// (or, for a fixed resource, an exact match on URI).
func (r *ResourceDefinition) Matches(uri string) bool {
	if r.tmpl == nil {
		return r.URI == uri
	}
	re := r.tmpl.Regexp()
	return re.MatchString(uri)
}

// PromptDefinition is a cached prompts/list entry.
type PromptDefinition struct {
	Name        string
	Description string
	Arguments   []string
}

// now is overridden in tests to make TTL expiry deterministic.
var now = time.Now

type entry[T any] struct {
	values    []T
	fetchedAt time.Time
}

// Cache holds the most recently fetched tool/resource/prompt definitions
// per server, each expiring after ttl.
type Cache struct {
	mu  sync.Mutex
	ttl time.Duration

	tools     map[string]entry[*ToolDefinition]
	resources map[string]entry[*ResourceDefinition]
	prompts   map[string]entry[*PromptDefinition]
}

// New returns a Cache whose entries expire after ttl. A non-positive ttl
// means entries never expire until explicitly invalidated.
func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:       ttl,
		tools:     make(map[string]entry[*ToolDefinition]),
		resources: make(map[string]entry[*ResourceDefinition]),
		prompts:   make(map[string]entry[*PromptDefinition]),
	}
}

// StoreTools resolves and caches a server's tool list. Resolution failures
// are collected per-tool so one bad schema doesn't discard the whole list;
// the returned error, if non-nil, joins every resolution failure.
func (c *Cache) StoreTools(server string, tools []*ToolDefinition) error {
	var errs []error
	for _, t := range tools {
		if t.InputSchema != nil {
			resolved, err := t.InputSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
			if err != nil {
				errs = append(errs, err)
				continue
			}
			t.resolvedInput = resolved
		}
		if t.OutputSchema != nil {
			resolved, err := t.OutputSchema.Resolve(&jsonschema.ResolveOptions{ValidateDefaults: true})
			if err != nil {
				errs = append(errs, err)
				continue
			}
			t.resolvedOutput = resolved
		}
	}
	c.mu.Lock()
	c.tools[server] = entry[*ToolDefinition]{values: tools, fetchedAt: now()}
	c.mu.Unlock()
	return joinErrs(errs)
}

// Tools returns the cached tool list for server, and whether it is still
// within its TTL.
func (c *Cache) Tools(server string) ([]*ToolDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.tools[server]
	if !ok || c.expired(e.fetchedAt) {
		return nil, false
	}
	return e.values, true
}

// StoreResources resolves URI templates and caches a server's resource
// list. A resource whose URITemplate fails to parse is kept (matched only
// via exact URI) and reported in the returned error.
func (c *Cache) StoreResources(server string, resources []*ResourceDefinition) error {
	var errs []error
	for _, r := range resources {
		if r.URITemplate != "" {
			tmpl, err := uritemplate.New(r.URITemplate)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			r.tmpl = tmpl
		}
	}
	c.mu.Lock()
	c.resources[server] = entry[*ResourceDefinition]{values: resources, fetchedAt: now()}
	c.mu.Unlock()
	return joinErrs(errs)
}

// Resources returns the cached resource list for server, and whether it is
// still within its TTL.
func (c *Cache) Resources(server string) ([]*ResourceDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.resources[server]
	if !ok || c.expired(e.fetchedAt) {
		return nil, false
	}
	return e.values, true
}

// MatchResource finds the cached resource definition that uri belongs to,
// used to correlate a notifications/resources/didChange event with the
// definition it changed.
func (c *Cache) MatchResource(server, uri string) (*ResourceDefinition, bool) {
	defs, ok := c.Resources(server)
	if !ok {
		return nil, false
	}
	for _, r := range defs {
		if r.Matches(uri) {
			return r, true
		}
	}
	return nil, false
}

// StorePrompts caches a server's prompt list.
func (c *Cache) StorePrompts(server string, prompts []*PromptDefinition) {
	c.mu.Lock()
	c.prompts[server] = entry[*PromptDefinition]{values: prompts, fetchedAt: now()}
	c.mu.Unlock()
}

// Prompts returns the cached prompt list for server, and whether it is
// still within its TTL.
func (c *Cache) Prompts(server string) ([]*PromptDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.prompts[server]
	if !ok || c.expired(e.fetchedAt) {
		return nil, false
	}
	return e.values, true
}

// Invalidate drops every cached list for server, e.g. after a *listChanged
// notification forces a refetch on next use.
func (c *Cache) Invalidate(server string) {
	c.mu.Lock()
	delete(c.tools, server)
	delete(c.resources, server)
	delete(c.prompts, server)
	c.mu.Unlock()
}

func (c *Cache) expired(fetchedAt time.Time) bool {
	if c.ttl <= 0 {
		return false
	}
	return now().Sub(fetchedAt) > c.ttl
}

func joinErrs(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	e := errs[0]
	for _, next := range errs[1:] {
		e = &multiErr{first: e, rest: next}
	}
	return e
}

type multiErr struct {
	first, rest error
}

func (m *multiErr) Error() string {
	return m.first.Error() + "; " + m.rest.Error()
}

func (m *multiErr) Unwrap() []error { return []error{m.first, m.rest} }
