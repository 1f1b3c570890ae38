// Package version provides build information. Values are set at build time:
//
//	go build -ldflags "-X github.com/zring/cfbmodel/internal/version.Version=v1.2.3 -X github.com/zring/cfbmodel/internal/version.Commit=abc123"
package version

import (
	"fmt"
	"runtime"
)

// Version is the application version.
var Version = "dev"

// Commit is the source revision the binary was built from.
var Commit = "unknown"

// GetVersion returns the current application version.
func GetVersion() string {
	return Version
}

// String returns a one-line build description.
func String() string {
	return fmt.Sprintf("cfbmodel %s (commit %s, %s %s/%s)", Version, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
