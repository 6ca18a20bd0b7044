// Package store provides error handling helpers for persistence operations
package store

import (
	"github.com/tphakala/lensstory/internal/errors"
)

// dbError creates a properly categorized database error with context
func dbError(err error, operation, priority string, context ...any) error {
	builder := errors.New(err).
		Component("store").
		Category(errors.CategoryDatabase).
		Context("operation", operation)

	if priority != "" {
		builder = builder.Priority(priority)
	}

	for i := 0; i < len(context)-1; i += 2 {
		if key, ok := context[i].(string); ok {
			builder = builder.Context(key, context[i+1])
		}
	}

	return builder.Build()
}

// notFoundError creates a not-found error, distinct from transport and
// storage errors so callers can branch on it.
func notFoundError(id, operation string) error {
	return errors.Newf("photo not found: %s", id).
		Component("store").
		Category(errors.CategoryNotFound).
		Context("photo_id", id).
		Context("operation", operation).
		Build()
}

// objectError creates an object-store error with context
func objectError(err error, operation, objectKey string) error {
	return errors.New(err).
		Component("store").
		Category(errors.CategoryObjectStore).
		Context("operation", operation).
		Context("object_key", objectKey).
		Build()
}

// validationError creates a validation error for bad inputs
func validationError(message, field string, value any) error {
	return errors.Newf("%s", message).
		Component("store").
		Category(errors.CategoryValidation).
		Context("field", field).
		Context("value", value).
		Build()
}
