//go:build !testing && !dev
// +build !testing,!dev

package build

const (
	// Release is set to "standard" for release builds.
	Release = "standard"

	// DEBUG enables sanity-check panics. It is disabled for release builds.
	DEBUG = false
)
