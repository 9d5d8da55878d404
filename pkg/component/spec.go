package component

import (
	"errors"
	"fmt"

	"github.com/instrkit/instrkit-go/pkg/property"
	"github.com/instrkit/instrkit-go/pkg/validate"
)

// ErrDeclaration is returned by Build when the collected declarations are
// inconsistent. It matches property.ErrDeclaration so callers can test for
// either.
var ErrDeclaration = property.ErrDeclaration

// RangeHookFunc computes a runtime range validator from the current
// instrument state. The owner gives access to other properties of the
// same component.
type RangeHookFunc func(o property.Owner) (validate.RangeValidator, error)

// Spec is the immutable descriptor table of a component type.
type Spec struct {
	name     string
	props    map[string]*property.Property
	subs     map[string]*Spec
	channels map[string]*Spec
	ranges   map[string]RangeHookFunc
	caching  map[string]any
}

// Name returns the component type name, used in error messages.
func (s *Spec) Name() string { return s.name }

// Property returns the named property descriptor, or nil.
func (s *Spec) Property(name string) *property.Property { return s.props[name] }

// Properties returns the declared property names.
func (s *Spec) Properties() []string {
	names := make([]string, 0, len(s.props))
	for n := range s.props {
		names = append(names, n)
	}
	return names
}

// SubSpec returns the named sub-component spec, or nil.
func (s *Spec) SubSpec(name string) *Spec { return s.subs[name] }

// ChannelSpec returns the named channel spec, or nil.
func (s *Spec) ChannelSpec(name string) *Spec { return s.channels[name] }

// DeclaredRanges returns the identifiers with a bound range hook,
// including inherited ones.
func (s *Spec) DeclaredRanges() []string {
	ids := make([]string, 0, len(s.ranges))
	for id := range s.ranges {
		ids = append(ids, id)
	}
	return ids
}

// Builder collects the declarations of one component type. All methods
// return the builder for chaining; errors accumulate and surface from
// Build.
type Builder struct {
	name string

	props     map[string]*property.Property
	inherited map[string]*property.Property
	subs      map[string]*Spec
	channels  map[string]*Spec
	ranges    map[string]RangeHookFunc
	caching   map[string]any

	errs []error
}

// NewBuilder starts the declaration of a new component type.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:      name,
		props:     map[string]*property.Property{},
		inherited: map[string]*property.Property{},
		subs:      map[string]*Spec{},
		channels:  map[string]*Spec{},
		ranges:    map[string]RangeHookFunc{},
		caching:   map[string]any{},
	}
}

// Derive starts a component type from a base spec: properties, subs,
// channels, range hooks and caching defaults are inherited; local
// declarations win over inherited ones.
func Derive(name string, base *Spec) *Builder {
	b := NewBuilder(name)
	for n, p := range base.props {
		b.inherited[n] = p
	}
	for n, s := range base.subs {
		b.subs[n] = s
	}
	for n, s := range base.channels {
		b.channels[n] = s
	}
	for id, f := range base.ranges {
		b.ranges[id] = f
	}
	for n, v := range base.caching {
		b.caching[n] = v
	}
	return b
}

func (b *Builder) fail(format string, args ...any) *Builder {
	b.errs = append(b.errs, fmt.Errorf("%w: %s: %s",
		ErrDeclaration, b.name, fmt.Sprintf(format, args...)))
	return b
}

// add registers a constructed property under name. Redeclaring an
// inherited name replaces it; declaring the same name twice locally is an
// error.
func (b *Builder) add(name string, p *property.Property, err error) *Builder {
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("%s: property %s: %w", b.name, name, err))
		return b
	}
	if _, dup := b.props[name]; dup {
		return b.fail("property %s declared twice", name)
	}
	p.SetName(name)
	b.props[name] = p
	delete(b.inherited, name)
	return b
}

// Prop declares a bare property under name:
//
//	b.Prop("idn", property.Options{Get: "*IDN?"})
//
// The typed declarations below cover most instrument properties; Prop is
// for properties whose conversions are bound through the On* hooks.
func (b *Builder) Prop(name string, opts property.Options) *Builder {
	p, err := property.New(opts)
	return b.add(name, p, err)
}

// Mapping declares a property translating between user-level symbolic
// values and instrument codes.
func (b *Builder) Mapping(name string, opts property.MappingOptions) *Builder {
	p, err := property.NewMapping(opts)
	return b.add(name, p, err)
}

// Bool declares a boolean property.
func (b *Builder) Bool(name string, opts property.BoolOptions) *Builder {
	p, err := property.NewBool(opts)
	return b.add(name, p, err)
}

// String declares a string property.
func (b *Builder) String(name string, opts property.StringOptions) *Builder {
	p, err := property.NewString(opts)
	return b.add(name, p, err)
}

// Int declares an integer property.
func (b *Builder) Int(name string, opts property.IntOptions) *Builder {
	p, err := property.NewInt(opts)
	return b.add(name, p, err)
}

// Float declares a float property.
func (b *Builder) Float(name string, opts property.FloatOptions) *Builder {
	p, err := property.NewFloat(opts)
	return b.add(name, p, err)
}

// Register declares a bit-register property.
func (b *Builder) Register(name string, opts property.RegisterOptions) *Builder {
	p, err := property.NewRegister(opts)
	return b.add(name, p, err)
}

// Sub declares a sub-component of the given spec under name. Sub-component
// instances are created eagerly with their parent.
func (b *Builder) Sub(name string, spec *Spec) *Builder {
	if spec == nil {
		return b.fail("sub-component %s has no spec", name)
	}
	b.subs[name] = spec
	return b
}

// Channel declares a channel family of the given spec under name. Channel
// instances are created lazily per id and inject their id into forwarded
// transport calls.
func (b *Builder) Channel(name string, spec *Spec) *Builder {
	if spec == nil {
		return b.fail("channel %s has no spec", name)
	}
	b.channels[name] = spec
	return b
}

// RangeHook binds a runtime range computation under id. Properties refer
// to it by passing the id as their Range option; instances cache the
// computed validator until DiscardRange.
func (b *Builder) RangeHook(id string, f RangeHookFunc) *Builder {
	if f == nil {
		return b.fail("range hook %s is nil", id)
	}
	b.ranges[id] = f
	return b
}

// Caching sets the type-level default caching permission for a name: a
// bool for one of this component's own properties (or a whole sub/
// channel), or a map[string]any propagated into a sub-component or
// channel.
func (b *Builder) Caching(name string, perm any) *Builder {
	switch perm.(type) {
	case bool, map[string]any:
		b.caching[name] = perm
	default:
		return b.fail("caching permission for %s must be a bool or a map, got %T", name, perm)
	}
	return b
}

// customize resolves name to a locally-owned property, cloning an
// inherited one first so the base spec keeps its behaviour.
func (b *Builder) customize(name, hook string) *property.Property {
	if p, ok := b.props[name]; ok {
		return p
	}
	if p, ok := b.inherited[name]; ok {
		c := p.Clone()
		b.props[name] = c
		delete(b.inherited, name)
		return c
	}
	b.fail("%s hook targets unknown property %s", hook, name)
	return nil
}

// OnPreGet binds a pre-get validation hook to the named property.
func (b *Builder) OnPreGet(name string, f property.PreGetFunc) *Builder {
	if p := b.customize(name, "pre_get"); p != nil {
		p.SetPreGetHook(f)
	}
	return b
}

// OnGet replaces the fetch stage of the named property.
func (b *Builder) OnGet(name string, f property.GetFunc) *Builder {
	if p := b.customize(name, "get"); p != nil {
		p.SetGetHook(f)
	}
	return b
}

// OnPostGet replaces the answer conversion stage of the named property.
func (b *Builder) OnPostGet(name string, f property.PostGetFunc) *Builder {
	if p := b.customize(name, "post_get"); p != nil {
		p.SetPostGetHook(f)
	}
	return b
}

// OnPreSet replaces the validation/conversion stage of the named property.
func (b *Builder) OnPreSet(name string, f property.PreSetFunc) *Builder {
	if p := b.customize(name, "pre_set"); p != nil {
		p.SetPreSetHook(f)
	}
	return b
}

// OnSet replaces the send stage of the named property.
func (b *Builder) OnSet(name string, f property.SetFunc) *Builder {
	if p := b.customize(name, "set"); p != nil {
		p.SetSetHook(f)
	}
	return b
}

// OnPostSet replaces the verification stage of the named property.
func (b *Builder) OnPostSet(name string, f property.PostSetFunc) *Builder {
	if p := b.customize(name, "post_set"); p != nil {
		p.SetPostSetHook(f)
	}
	return b
}

// Build finalizes the declarations into an immutable Spec. All errors
// collected while declaring are joined and returned together.
func (b *Builder) Build() (*Spec, error) {
	for name := range b.subs {
		if _, clash := b.channels[name]; clash {
			b.fail("%s declared both as sub-component and channel", name)
		}
	}

	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	props := make(map[string]*property.Property, len(b.props)+len(b.inherited))
	for n, p := range b.inherited {
		props[n] = p
	}
	for n, p := range b.props {
		props[n] = p
	}

	return &Spec{
		name:     b.name,
		props:    props,
		subs:     b.subs,
		channels: b.channels,
		ranges:   b.ranges,
		caching:  b.caching,
	}, nil
}
