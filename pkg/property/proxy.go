package property

import (
	"fmt"
	"reflect"
)

// Attribute names a proxy can patch.
const (
	AttrPreGet  = "pre_get"
	AttrGet     = "get"
	AttrPostGet = "post_get"
	AttrPreSet  = "pre_set"
	AttrSet     = "set"
	AttrPostSet = "post_set"
	AttrRetries = "retries"
)

// Proxy gives one component instance a private variant of a shared
// property. It carries a clone of the property with caller-supplied
// overrides applied; the instance dispatches its pipeline to the clone
// while every other instance keeps using the shared descriptor.
//
// Proxies are owned by the instance they customize (the component layer
// stores them in a per-instance table), so they vanish with it.
type Proxy struct {
	base *Property
	eff  *Property

	// patched tracks which attributes currently diverge from base.
	patched map[string]struct{}
}

// NewProxy builds a proxy for base with the given attribute overrides.
// Keys are the Attr* names; hook values must have the matching hook
// signature and retries an int.
func NewProxy(base *Property, attrs map[string]any) (*Proxy, error) {
	x := &Proxy{
		base:    base,
		eff:     base.Clone(),
		patched: make(map[string]struct{}, len(attrs)),
	}
	if err := x.Patch(attrs); err != nil {
		return nil, err
	}
	return x, nil
}

// Property returns the effective property the owning instance should
// dispatch to.
func (x *Proxy) Property() *Property { return x.eff }

// Base returns the shared property the proxy shadows.
func (x *Proxy) Base() *Property { return x.base }

// Patch overlays further attribute overrides onto the proxy.
func (x *Proxy) Patch(attrs map[string]any) error {
	for name, v := range attrs {
		if err := x.eff.setAttr(name, v); err != nil {
			return err
		}
		x.patched[name] = struct{}{}
	}
	return nil
}

// Unpatch resets each named attribute to the shared property's current
// value, leaving the other patched attributes intact. The component layer
// treats an Unpatch with no names as "discard the whole proxy".
func (x *Proxy) Unpatch(names ...string) error {
	for _, name := range names {
		v, err := x.base.attr(name)
		if err != nil {
			return err
		}
		if err := x.eff.setAttr(name, v); err != nil {
			return err
		}
		delete(x.patched, name)
	}
	return nil
}

// Obsolete reports whether every patched attribute once again matches the
// shared property, meaning the proxy no longer changes behaviour and can
// be discarded.
func (x *Proxy) Obsolete() bool {
	for name := range x.patched {
		ev, err := x.eff.attr(name)
		if err != nil {
			return false
		}
		bv, _ := x.base.attr(name)
		if !attrEqual(ev, bv) {
			return false
		}
	}
	return true
}

// attr returns the named pipeline attribute.
func (p *Property) attr(name string) (any, error) {
	switch name {
	case AttrPreGet:
		return p.preGet, nil
	case AttrGet:
		return p.get, nil
	case AttrPostGet:
		return p.postGet, nil
	case AttrPreSet:
		return p.preSet, nil
	case AttrSet:
		return p.set, nil
	case AttrPostSet:
		return p.postSet, nil
	case AttrRetries:
		return p.retries, nil
	default:
		return nil, fmt.Errorf("%w: property has no patchable attribute %q",
			ErrDeclaration, name)
	}
}

// setAttr replaces the named pipeline attribute, checking the value's type.
func (p *Property) setAttr(name string, v any) error {
	bad := func() error {
		return fmt.Errorf("%w: wrong type %T for property attribute %q",
			ErrDeclaration, v, name)
	}
	switch name {
	case AttrPreGet:
		f, ok := v.(PreGetFunc)
		if !ok && v != nil {
			return bad()
		}
		p.preGet = f
	case AttrGet:
		f, ok := v.(GetFunc)
		if !ok {
			return bad()
		}
		p.get = f
	case AttrPostGet:
		f, ok := v.(PostGetFunc)
		if !ok {
			return bad()
		}
		p.postGet = f
	case AttrPreSet:
		f, ok := v.(PreSetFunc)
		if !ok {
			return bad()
		}
		p.preSet = f
	case AttrPostSet:
		f, ok := v.(PostSetFunc)
		if !ok {
			return bad()
		}
		p.postSet = f
	case AttrSet:
		f, ok := v.(SetFunc)
		if !ok {
			return bad()
		}
		p.set = f
	case AttrRetries:
		n, ok := v.(int)
		if !ok || n < 0 {
			return bad()
		}
		p.retries = n
	default:
		return fmt.Errorf("%w: property has no patchable attribute %q",
			ErrDeclaration, name)
	}
	return nil
}

// attrEqual compares attribute values; hooks compare by code pointer.
func attrEqual(a, b any) bool {
	av, bv := reflect.ValueOf(a), reflect.ValueOf(b)
	if av.Kind() == reflect.Func || bv.Kind() == reflect.Func {
		if av.Kind() != bv.Kind() {
			return false
		}
		if av.IsNil() || bv.IsNil() {
			return av.IsNil() && bv.IsNil()
		}
		return av.Pointer() == bv.Pointer()
	}
	return reflect.DeepEqual(a, b)
}
