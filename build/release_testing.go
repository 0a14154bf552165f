//go:build testing
// +build testing

package build

const (
	// Release is set to "testing" when running the test suite.
	Release = "testing"

	// DEBUG is enabled during testing so that sanity checks panic.
	DEBUG = true
)
