// Package options holds the functional option type shared by visco's
// configurable components.
//
// Packages alias it for their own target:
//
//	type Option = options.Option[*Config]
//
// Options that validate their argument are built with New, the rest with
// NoError.
package options

// Option mutates a target of type T, or rejects the value it carries.
type Option[T any] func(T) error

// New wraps a validating option.
func New[T any](fn func(T) error) Option[T] {
	return fn
}

// NoError wraps an option that always succeeds.
func NoError[T any](fn func(T)) Option[T] {
	return func(target T) error {
		fn(target)
		return nil
	}
}

// Apply runs opts against target in order. Nil options are skipped; the
// first error is returned and later options are not run.
func Apply[T any](target T, opts ...Option[T]) error {
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(target); err != nil {
			return err
		}
	}

	return nil
}
