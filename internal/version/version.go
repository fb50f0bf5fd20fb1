// Package version exposes the build identifier printed at startup and by
// "ferragate --version", set via -ldflags at release build time.
package version

// Value is overridden at release build time via:
//
//	go build -ldflags "-X github.com/ferragate/gateway/internal/version.Value=v1.2.3"
var Value = "dev"
