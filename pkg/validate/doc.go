// Package validate provides the range validators used by numeric
// properties.
//
// A range validator is an immutable predicate over a value: it checks the
// value against optional minimum/maximum bounds and, when a step is
// declared, that the value lies on the step grid anchored at the minimum
// (or at the maximum when only a maximum is present).
//
// Two variants exist:
//
//   - IntRange uses exact integer arithmetic.
//   - FloatRange tolerates floating-point error in the step check and can
//     carry a unit, in which case quantities are converted before
//     validation.
//
// Validators are either declared inline on a property or computed at
// runtime by a range hook when the valid range depends on instrument state
// (a range switch, a scale factor, ...).
package validate
