// Package version holds the generator version stamped into emitted headers.
package version

// version is the default version of the generator. This is overwritten by
// ldflags on release builds.
var version = "3.2.0-dev"

// String returns the version of the generator, e.g. "3.2.0-dev".
func String() string {
	return version
}
