// Package resolve implements the multi-strategy pipeline that recovers a
// persistent shape reference against a freshly rebuilt solid.
//
// Strategies run in a fixed order and each either concludes or defers to
// the next:
//
//  1. History resolution uses kernel-reported create/modify/delete
//     correlation when available. It is exact: unambiguous one-to-one maps
//     are accepted immediately, a zero mapping means the entity was
//     legitimately consumed by the operation, and splits are settled by the
//     configured SplitPolicy.
//  2. Geometric resolution scores every same-kind candidate with the
//     weighted descriptor similarity and accepts the best only when it
//     clears both the confidence threshold and the runner-up margin. The
//     margin guard is the single most important safeguard in the engine:
//     silently picking an arbitrary winner among near-ties is how a fillet
//     ends up on the wrong edge with no warning.
//  3. Legacy selector resolution is a positional fallback for references
//     from documents that predate descriptor recording. It is never used
//     when a descriptor exists.
//
// Resolution never mutates registry state; strategies return Outcomes and
// the caller decides whether to commit them.
package resolve
