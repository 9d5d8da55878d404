package component

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/instrkit/instrkit-go/pkg/property"
	"github.com/instrkit/instrkit-go/pkg/units"
	"github.com/instrkit/instrkit-go/pkg/validate"
)

// Call carries the routing context of a default transport operation: the
// property being served, its command token, and the id of the enclosing
// channel (nil outside channels) so the backend can address the right
// physical channel.
type Call struct {
	Property *property.Property
	Cmd      any
	Channel  any

	// Attempt is the retry-policy attempt serving this call, starting
	// at 1. Zero means the call did not run under the retry policy.
	Attempt int
}

// Backend is the transport glue a concrete driver provides to a component
// tree. pkg/instrument carries the canonical implementation.
type Backend interface {
	// DefaultGet sends the command and returns the raw answer.
	DefaultGet(c Call) (any, error)

	// DefaultSet sends the command carrying the wire-level value.
	DefaultSet(c Call, value any) error

	// CheckOperation reports whether the last operation succeeded.
	CheckOperation(p *property.Property) (ok bool, detail any, err error)

	// Reopen re-establishes the transport connection.
	Reopen() error

	// Retryable reports whether err is a retryable communication failure.
	Retryable(err error) bool
}

// Config tunes one component instance.
type Config struct {
	// DisableCaching turns value caching off for the whole tree,
	// whatever the permissions say.
	DisableCaching bool

	// Permissions overlays the spec's default caching permissions: a
	// bool enables or disables one property (or a whole sub-component
	// or channel), a map[string]any propagates per-name permissions
	// into a sub-component or channel.
	Permissions map[string]any
}

// Instance binds a Spec to a Backend. All property access goes through
// Get/Set (or the channel and sub-component accessors), serialized by a
// lock shared across the component tree.
type Instance struct {
	spec    *Spec
	backend Backend
	parent  *Instance

	// channelID is the id this instance was created for; nil outside
	// channels. routeID is the id injected into transport calls: the
	// nearest enclosing channel's.
	channelID any
	routeID   any

	// attempt is the retry attempt currently executing, recorded by
	// NoteAttempt and stamped onto transport calls. Safe as a plain
	// field: the tree lock serializes operations, and nested pipeline
	// work finishes before the secured stage of the outer one starts.
	attempt int

	mu *sync.Mutex

	cache      map[string]any
	perms      map[string]bool
	subAllowed map[string]bool
	subPerms   map[string]map[string]any
	rangeCache map[string]validate.RangeValidator
	proxies    map[string]*property.Proxy

	subs     map[string]*Instance
	chanInst map[string]map[any]*Instance
}

// New builds the instance tree for spec: the root, its eagerly created
// sub-components, and empty channel caches.
func New(spec *Spec, backend Backend, cfg Config) (*Instance, error) {
	if spec == nil {
		return nil, fmt.Errorf("%w: nil spec", ErrDeclaration)
	}
	if backend == nil {
		return nil, fmt.Errorf("%w: %s: nil backend", ErrDeclaration, spec.Name())
	}
	return newInstance(spec, backend, nil, nil, cfg)
}

func newInstance(spec *Spec, backend Backend, parent *Instance, channelID any, cfg Config) (*Instance, error) {
	i := &Instance{
		spec:       spec,
		backend:    backend,
		parent:     parent,
		channelID:  channelID,
		cache:      map[string]any{},
		perms:      map[string]bool{},
		subAllowed: map[string]bool{},
		subPerms:   map[string]map[string]any{},
		rangeCache: map[string]validate.RangeValidator{},
		proxies:    map[string]*property.Proxy{},
		subs:       map[string]*Instance{},
		chanInst:   map[string]map[any]*Instance{},
	}

	if parent == nil {
		i.mu = &sync.Mutex{}
	} else {
		i.mu = parent.mu
		i.routeID = parent.routeID
	}
	if channelID != nil {
		i.routeID = channelID
	}

	i.computePermissions(cfg)

	for name, sub := range spec.subs {
		child, err := newInstance(sub, backend, i, nil, Config{
			DisableCaching: !i.subAllowed[name],
			Permissions:    i.subPerms[name],
		})
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", spec.Name(), name, err)
		}
		i.subs[name] = child
	}
	for name := range spec.channels {
		i.chanInst[name] = map[any]*Instance{}
	}

	return i, nil
}

// computePermissions overlays cfg.Permissions on the spec defaults and
// partitions the result into own-property flags and per-sub/channel
// slices.
func (i *Instance) computePermissions(cfg Config) {
	if cfg.DisableCaching {
		return
	}

	eff := make(map[string]any, len(i.spec.caching)+len(cfg.Permissions))
	for n, v := range i.spec.caching {
		eff[n] = v
	}
	for n, v := range cfg.Permissions {
		eff[n] = v
	}

	for name, entry := range eff {
		_, isSub := i.spec.subs[name]
		_, isChan := i.spec.channels[name]
		if isSub || isChan {
			switch v := entry.(type) {
			case bool:
				i.subAllowed[name] = v
			case map[string]any:
				i.subAllowed[name] = true
				i.subPerms[name] = v
			}
			continue
		}
		if v, ok := entry.(bool); ok && v {
			i.perms[name] = true
		}
	}
}

// Spec returns the descriptor table the instance was built from.
func (i *Instance) Spec() *Spec { return i.spec }

// ChannelID returns the id this instance was created for, nil outside
// channels.
func (i *Instance) ChannelID() any { return i.channelID }

// CachingAllowed reports whether values of the named property are cached
// on this instance.
func (i *Instance) CachingAllowed(name string) bool { return i.perms[name] }

// Get reads the named property through the full pipeline, under the tree
// lock.
func (i *Instance) Get(name string) (any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.get(name)
}

// Set writes the named property through the full pipeline, under the tree
// lock.
func (i *Instance) Set(name string, value any) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.set(name, value)
}

// get is the lock-free pipeline entry, also used by checks and range
// hooks running within a pipeline.
func (i *Instance) get(name string) (any, error) {
	p := i.spec.Property(name)
	if p == nil {
		return nil, fmt.Errorf("%s has no property %s", i.spec.Name(), name)
	}
	if v, ok := i.cache[name]; ok {
		return v, nil
	}
	if x, ok := i.proxies[name]; ok {
		p = x.Property()
	}

	v, err := p.Read(i)
	if err != nil {
		return nil, err
	}
	if i.perms[name] {
		i.cache[name] = v
	}
	return v, nil
}

func (i *Instance) set(name string, value any) error {
	p := i.spec.Property(name)
	if p == nil {
		return fmt.Errorf("%s has no property %s", i.spec.Name(), name)
	}
	if cached, ok := i.cache[name]; ok && valuesEqual(cached, value) {
		return nil
	}
	if x, ok := i.proxies[name]; ok {
		p = x.Property()
	}

	if err := p.Write(i, value); err != nil {
		return err
	}
	if i.perms[name] {
		i.cache[name] = value
	}
	return nil
}

// Sub returns the named eagerly-created sub-component.
func (i *Instance) Sub(name string) (*Instance, error) {
	sub, ok := i.subs[name]
	if !ok {
		return nil, fmt.Errorf("%s has no sub-component %s", i.spec.Name(), name)
	}
	return sub, nil
}

// Channel returns the channel instance for id, creating and caching it on
// first use. One instance exists per distinct id for the component's
// lifetime.
func (i *Instance) Channel(name string, id any) (*Instance, error) {
	spec, ok := i.spec.channels[name]
	if !ok {
		return nil, fmt.Errorf("%s has no channel %s", i.spec.Name(), name)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if ch, ok := i.chanInst[name][id]; ok {
		return ch, nil
	}
	ch, err := newInstance(spec, i.backend, i, id, Config{
		DisableCaching: !i.subAllowed[name],
		Permissions:    i.subPerms[name],
	})
	if err != nil {
		return nil, err
	}
	i.chanInst[name][id] = ch
	return ch, nil
}

// ClearCache drops cached values. With no arguments the whole tree is
// cleared, sub-components and channel instances included. Dotted names
// reach into sub-components and channels (clearing every instance of a
// channel family).
func (i *Instance) ClearCache(names ...string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.clearCache(names)
}

func (i *Instance) clearCache(names []string) {
	if len(names) == 0 {
		i.cache = map[string]any{}
		for _, sub := range i.subs {
			sub.clearCache(nil)
		}
		for _, family := range i.chanInst {
			for _, ch := range family {
				ch.clearCache(nil)
			}
		}
		return
	}

	subNames, chanNames := map[string][]string{}, map[string][]string{}
	for _, name := range names {
		head, rest, nested := strings.Cut(name, ".")
		switch {
		case nested && i.subs[head] != nil:
			subNames[head] = append(subNames[head], rest)
		case nested && i.chanInst[head] != nil:
			chanNames[head] = append(chanNames[head], rest)
		default:
			delete(i.cache, name)
		}
	}
	for head, rest := range subNames {
		i.subs[head].clearCache(rest)
	}
	for head, rest := range chanNames {
		for _, ch := range i.chanInst[head] {
			ch.clearCache(rest)
		}
	}
}

// CheckCache returns a copy of the cached values. With no arguments the
// whole tree is included: sub-components as nested maps, channel families
// as id→map. Dotted names select into sub-components and channels.
func (i *Instance) CheckCache(names ...string) map[string]any {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.checkCache(names)
}

func (i *Instance) checkCache(names []string) map[string]any {
	out := map[string]any{}
	if len(names) == 0 {
		for n, v := range i.cache {
			out[n] = v
		}
		for n, sub := range i.subs {
			out[n] = sub.checkCache(nil)
		}
		for n, family := range i.chanInst {
			byID := map[any]any{}
			for id, ch := range family {
				byID[id] = ch.checkCache(nil)
			}
			out[n] = byID
		}
		return out
	}

	subNames, chanNames := map[string][]string{}, map[string][]string{}
	for _, name := range names {
		head, rest, nested := strings.Cut(name, ".")
		switch {
		case nested && i.subs[head] != nil:
			subNames[head] = append(subNames[head], rest)
		case nested && i.chanInst[head] != nil:
			chanNames[head] = append(chanNames[head], rest)
		default:
			if v, ok := i.cache[name]; ok {
				out[name] = v
			}
		}
	}
	for head, rest := range subNames {
		out[head] = i.subs[head].checkCache(rest)
	}
	for head, rest := range chanNames {
		byID := map[any]any{}
		for id, ch := range i.chanInst[head] {
			byID[id] = ch.checkCache(rest)
		}
		out[head] = byID
	}
	return out
}

// Range returns the validator computed by the range hook declared under
// id, caching it until DiscardRange.
func (i *Instance) Range(id string) (validate.RangeValidator, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.RangeFor(id)
}

// DiscardRange drops the cached validator for id. Setter hooks call this
// when they change the instrument state the range was computed from.
func (i *Instance) DiscardRange(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.InvalidateRange(id)
}

// PatchProperty overrides property attributes for this instance only,
// leaving the shared spec untouched (see property.Proxy for the attribute
// names).
func (i *Instance) PatchProperty(name string, attrs map[string]any) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if x, ok := i.proxies[name]; ok {
		return x.Patch(attrs)
	}
	p := i.spec.Property(name)
	if p == nil {
		return fmt.Errorf("%s has no property %s", i.spec.Name(), name)
	}
	x, err := property.NewProxy(p, attrs)
	if err != nil {
		return err
	}
	i.proxies[name] = x
	return nil
}

// UnpatchProperty restores the named attributes of a patched property to
// the shared spec's behaviour; with no attribute names the whole override
// is discarded. A proxy whose every attribute matches the shared property
// again is discarded automatically.
func (i *Instance) UnpatchProperty(name string, attrs ...string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	x, ok := i.proxies[name]
	if !ok {
		return fmt.Errorf("%s has no override for %s", i.spec.Name(), name)
	}
	if len(attrs) == 0 {
		delete(i.proxies, name)
		return nil
	}
	if err := x.Unpatch(attrs...); err != nil {
		return err
	}
	if x.Obsolete() {
		delete(i.proxies, name)
	}
	return nil
}

// UnpatchAll discards every per-instance override.
func (i *Instance) UnpatchAll() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.proxies = map[string]*property.Proxy{}
}

// property.Owner implementation. These run within a pipeline, with the
// tree lock already held.

// Member reads another property of this component for checks and hooks.
func (i *Instance) Member(name string) (any, error) { return i.get(name) }

// RangeFor computes or returns the cached validator for a declared range.
func (i *Instance) RangeFor(id string) (validate.RangeValidator, error) {
	if r, ok := i.rangeCache[id]; ok {
		return r, nil
	}
	hook, ok := i.spec.ranges[id]
	if !ok {
		return nil, fmt.Errorf("%s declares no range %s", i.spec.Name(), id)
	}
	r, err := hook(i)
	if err != nil {
		return nil, fmt.Errorf("computing range %s: %w", id, err)
	}
	i.rangeCache[id] = r
	return r, nil
}

// InvalidateRange drops the cached validator for id.
func (i *Instance) InvalidateRange(id string) { delete(i.rangeCache, id) }

// DefaultGet forwards to the backend, tagging the call with the enclosing
// channel id.
func (i *Instance) DefaultGet(p *property.Property, cmd any) (any, error) {
	return i.backend.DefaultGet(Call{Property: p, Cmd: cmd, Channel: i.routeID, Attempt: i.attempt})
}

// DefaultSet forwards to the backend, tagging the call with the enclosing
// channel id.
func (i *Instance) DefaultSet(p *property.Property, cmd any, value any) error {
	return i.backend.DefaultSet(Call{Property: p, Cmd: cmd, Channel: i.routeID, Attempt: i.attempt}, value)
}

// NoteAttempt records which retry attempt is about to run; the secured
// stage of the property pipeline calls it before each transport try.
func (i *Instance) NoteAttempt(attempt int) { i.attempt = attempt }

// CheckOperation forwards to the backend.
func (i *Instance) CheckOperation(p *property.Property) (bool, any, error) {
	return i.backend.CheckOperation(p)
}

// ReopenConnection forwards to the backend.
func (i *Instance) ReopenConnection() error { return i.backend.Reopen() }

// Retryable forwards to the backend.
func (i *Instance) Retryable(err error) bool { return i.backend.Retryable(err) }

// valuesEqual implements the semantic equality of the idempotent-set rule:
// numbers compare by value, quantities by converted magnitude, everything
// else structurally.
func valuesEqual(a, b any) bool {
	if qa, ok := a.(units.Quantity); ok {
		if qb, ok := b.(units.Quantity); ok {
			conv, err := qb.To(qa.Unit())
			if err != nil {
				return false
			}
			return qa.Magnitude() == conv.Magnitude()
		}
	}
	fa, aok := numeric(a)
	fb, bok := numeric(b)
	if aok && bok {
		return fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
