// Package property implements the descriptor model for instrument-backed
// values.
//
// A Property describes one named, typed value an instrument exposes: how to
// read it, how to write it, how to validate and convert user values, and
// how to recover from transient communication failures. Properties are
// declared once per component type and shared by every instance of that
// type; all per-instance state (cache, overrides) lives on the component
// instance.
//
// # Pipeline
//
// Reads and writes run through a fixed pipeline of replaceable hooks:
//
//	get:  checks → PreGet → Get (retry/reopen) → PostGet
//	set:  checks → PreSet → Set (retry/reopen) → PostSet
//
// The default Get/Set stages delegate to the owning component, which
// formats the property's command token for its transport. PostGet converts
// raw wire values into richer representations (numbers, labels, quantities,
// bit maps); PreSet performs the reverse trip plus validation. The default
// PostSet asks the owner to verify the last operation and fails with a
// communication error when the instrument reports a problem.
//
// Hooks are free functions taking the property first and the owning
// instance second. They must not capture mutable state: per-instance
// variation goes through the proxy mechanism, per-type variation through
// spec derivation (see the component package).
//
// # Retry policy
//
// Get and Set stages run up to Retries+1 times. Only errors the owner
// classifies as communication failures are retried, and every retry is
// preceded by exactly one reopen of the connection. Validation errors and
// missing-implementation errors propagate immediately.
//
// # Specialized constructors
//
// NewMapping, NewBool, NewString, NewInt, NewFloat and NewRegister build
// properties whose PostGet/PreSet hooks implement the common conversion
// and validation shapes. All of them accept the base Options for command
// tokens, retries and declarative checks.
package property
