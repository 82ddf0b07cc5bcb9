// Package monitor polls or watches a single task to its terminal state
// via Monitor and Awaiter.
package monitor
