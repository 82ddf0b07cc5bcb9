/*
Package config loads deferrun.yaml: discovered by walking upward
from the working directory for the
project root (marked by go.mod), parsed over secure defaults, and
finished with environment variable overrides for deployment.

Default() lazily builds and caches a process-wide instance; most
callers should use that rather than calling Load directly.
*/
package config
