package constants

import (
	"time"
)

// Application identity
const (
	// AppName is used for the binary, the config directory and log fields.
	AppName = "viforest"

	// DefaultConfigDirName is the directory under the user config dir
	// holding the INI config and persisted client state.
	DefaultConfigDirName = "viforest"
)

// Device API
const (
	// DeviceAPIPort - the fixed port the device's HTTP API listens on
	DeviceAPIPort = 8090

	// DeviceSuccessCode - value of the "code" envelope field on success
	DeviceSuccessCode = 200

	// DefaultLanguage - language parameter sent with folder listings
	DefaultLanguage = "en"

	// RootAppType - reserved owner-app-type sentinel for the root folder
	RootAppType = "root"

	// RootDisplayName - label of the root breadcrumb frame
	RootDisplayName = "Home"

	// DefaultPackageFormat - format requested from /packageFile when the entry
	// carries no format of its own (device-native notes render to PDF)
	DefaultPackageFormat = "pdf"
)

// Device API endpoints
const (
	PathCapacity      = "/getCurrentCapacity"
	PathListFolder    = "/getChildFolderList"
	PathUploadChunk   = "/upload_chunk"
	PathPackageFile   = "/packageFile"
	PathCheckDownload = "/checkDownloadFile"
	PathDownload      = "/download"
)

// Transfer sizing
const (
	// UploadChunkSize - size of each /upload_chunk request body (1 MiB)
	// The device's ingestion endpoint only accepts bounded bodies.
	UploadChunkSize = 1024 * 1024

	// DiskSpaceSafetyMargin - multiplier applied before writing a download
	DiskSpaceSafetyMargin = 1.05
)

// Transport timeouts
const (
	// DefaultRequestTimeout - deadline for a single device request (2 seconds)
	// Applies to reachability, capacity, listing and readiness polls.
	DefaultRequestTimeout = 2 * time.Second

	// ChunkUploadTimeout - deadline for one 1 MiB chunk submission
	ChunkUploadTimeout = 60 * time.Second

	// PackageRequestTimeout - deadline for the /packageFile call, which renders
	// the artifact synchronously on some firmware versions
	PackageRequestTimeout = 30 * time.Second

	// FetchTimeout - deadline for reading a packaged artifact into memory
	FetchTimeout = 5 * time.Minute

	// HTTPDialTimeout - timeout for establishing a TCP connection to the device
	HTTPDialTimeout = 2 * time.Second

	// HTTPDialKeepAlive - keep-alive period for dialer (30 seconds)
	HTTPDialKeepAlive = 30 * time.Second

	// HTTPIdleConnTimeout - how long to keep idle connections open (90 seconds)
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPExpectContinueTimeout - timeout for 100-continue response (1 second)
	HTTPExpectContinueTimeout = 1 * time.Second

	// HTTPTLSHandshakeTimeout - only reached through an HTTPS proxy
	HTTPTLSHandshakeTimeout = 10 * time.Second
)

// Download readiness polling
const (
	// DownloadPollInterval - pause between /checkDownloadFile attempts
	DownloadPollInterval = 2 * time.Second

	// DownloadPollAttempts - bounded retry count (15 x 2s = ~30s worst case)
	DownloadPollAttempts = 15
)

// Event bus
const (
	// EventBusDefaultBuffer - default per-subscriber channel buffer
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer - cap on the requested buffer size
	EventBusMaxBuffer = 4096
)

// File permissions for persisted state
const (
	StateDirPerm  = 0700
	StateFilePerm = 0600
)
