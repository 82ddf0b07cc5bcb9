// Package runtime provides the default core.Core implementation: it is
// the composition root that ties pkg/statusstore, pkg/spawner,
// pkg/workerscript, pkg/registry, and pkg/history together. No other
// package is allowed to import all five at once; pkg/pool, pkg/joiner,
// and pkg/deferstack consume core.Core instead.
package runtime
