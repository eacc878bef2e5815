// Package version holds the process version, overridden at build time via
// -ldflags -X.
package version

// Version is the mock destination server's version string.
var Version = "dev-undefined"
