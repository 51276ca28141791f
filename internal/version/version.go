// Package version holds build version information, set by ldflags.
package version

import "github.com/viforest/viforest/internal/constants"

// Version is the build version, vX.Y.Z or vX.Y.Z-dev.
var Version = "v0.1.0-dev"

// BuildTime is the build timestamp.
var BuildTime = "unknown"

// UserAgent is sent with every device request.
func UserAgent() string {
	return constants.AppName + "/" + Version
}
