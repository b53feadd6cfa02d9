// Package mfaapi exposes the enrollment and step-up verification flows
// over HTTP. Every endpoint authenticates the caller from the bearer
// token and operates only on that caller's own account; no handler
// accepts a cross-account parameter.
package mfaapi
