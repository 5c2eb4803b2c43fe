package utils

import (
	"fmt"
	"os"
)

// AssertHandler is invoked when an internal-consistency check fails.
// The default handler logs the failure and terminates the process;
// tests install a panicking handler to observe violations.
type AssertHandler func(msg string)

var assertHandler AssertHandler = func(msg string) {
	GetGlobalLogger().Error("assertion failed: %s", msg)
	os.Exit(2)
}

// SetAssertHandler installs a custom assert handler and returns the previous one.
func SetAssertHandler(h AssertHandler) AssertHandler {
	prev := assertHandler
	assertHandler = h
	return prev
}

// Assert checks an internal invariant. Violations are programming errors,
// not runtime conditions; the process does not continue past a failure.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		assertHandler(fmt.Sprintf(format, args...))
	}
}
