// Package component wires properties into instrument components.
//
// A Spec is the immutable, declarative description of one component type:
// its properties, pipeline hook bindings, runtime range hooks, nested
// sub-component and channel specs, and default caching permissions. Specs
// are assembled once by a Builder (typically in a package-level variable
// or an init function of the driver package) and shared by every instance.
//
// A derived spec starts from a base via Derive and may redeclare
// properties or bind hooks onto inherited ones; inherited properties are
// cloned before customization, so the base spec and its other descendants
// keep their behaviour.
//
// An Instance binds a Spec to a Backend (the concrete driver's transport
// glue). It owns the value cache, the computed caching permissions, the
// runtime range cache and the per-instance proxies, and serializes every
// pipeline run through a lock shared across the whole component tree.
package component
