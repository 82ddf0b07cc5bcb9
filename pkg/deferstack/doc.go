// Package deferstack implements three defer scopes: function-scoped
// (explicit scope with Release, LIFO), process-global (bounded, LIFO,
// flushed explicitly or on SIGINT/SIGTERM, not on a normal process
// exit), and post-response (bounded, FIFO,
// gated by the host's eventual response status).
package deferstack
