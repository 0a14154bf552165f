//go:build dev && !testing
// +build dev,!testing

package build

const (
	// Release is set to "dev" for developer builds.
	Release = "dev"

	// DEBUG is enabled for developer builds so that sanity checks panic.
	DEBUG = true
)
