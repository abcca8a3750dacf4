// Package domain contains the core entities of the webhook delivery engine:
// subscriptions, deliveries, and the domain events consumed from the product's
// event bus.
package domain

import "errors"

// Sentinel errors for common domain error cases.
// These allow callers to check error types without coupling to infrastructure.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates the input data is invalid or malformed.
	ErrInvalidInput = errors.New("invalid input")
)
