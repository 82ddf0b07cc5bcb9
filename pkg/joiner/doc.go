// Package joiner implements the all/allSettled parallel-join
// combinators, preserving caller-supplied keys across TaskId, lazy, and
// raw-callable inputs.
package joiner
