// Package cierr defines the error taxonomy shared across the build core.
// Callers classify with errors.Is; wrapped detail stays attached for logs.
package cierr

import "errors"

var (
	// ErrValidation marks bad user input. The message is safe to surface
	// to the caller verbatim.
	ErrValidation = errors.New("validation error")

	// ErrAuth marks a bad webhook signature or rejected clone credential.
	// Detail is logged server-side; the sender only learns the request
	// was rejected.
	ErrAuth = errors.New("authentication error")

	// ErrNetwork marks a transient remote failure. Eligible for retry
	// with backoff.
	ErrNetwork = errors.New("network error")

	// ErrReference marks a ref that does not exist on the remote. Never
	// retried.
	ErrReference = errors.New("reference error")

	// ErrNotFound marks a missing entity: a repository, keypair, build,
	// or build script.
	ErrNotFound = errors.New("not found")

	// ErrExists marks an attempt to create something that is already
	// present, such as generating a keypair over an existing one.
	ErrExists = errors.New("already exists")

	// ErrTimeout marks a build that exceeded its wall-clock limit.
	ErrTimeout = errors.New("timeout")
)
