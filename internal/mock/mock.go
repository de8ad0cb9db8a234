// Package mock provides testify mocks for the task source and analyzer
// dependencies.
package mock

import "github.com/stretchr/testify/mock"

// Anything matches any argument.
const Anything = mock.Anything

// first returns the first return value as T, or the zero T when it was
// configured as nil.
func first[T any](args mock.Arguments) T {
	var zero T
	if v, ok := args.Get(0).(T); ok {
		return v
	}
	return zero
}
