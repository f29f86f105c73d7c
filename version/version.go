// Package version holds the build version, set with
// -ldflags "-X github.com/border-inspection/tourgen/version.VERSION=...".
package version

var VERSION = "dev"
