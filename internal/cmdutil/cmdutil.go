// Package cmdutil holds the small "fail loudly and stop" helpers
// cmd/git-rocket-filter uses to keep its flag-wiring and setup code free of
// repetitive error checks.
package cmdutil

import "log"

// OrPanic calls log.Fatal on a non-nil error. It is meant for startup code
// where there is no sensible way to continue and no caller left to hand the
// error back to.
func OrPanic(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// GetOrPanic calls OrPanic on err and returns a, for chaining onto calls
// that return (value, error).
func GetOrPanic[T any](a T, err error) T {
	OrPanic(err)
	return a
}
