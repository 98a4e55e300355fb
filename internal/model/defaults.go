package model

import "time"

// Shared defaults used by both the service and TUI binaries.
const (
	DefaultHashtag           = "#agileday"
	DefaultPageSize          = 20
	MaxPageSize              = 100
	DefaultFetchTimeout      = 15 * time.Second
	DefaultPrefetchThreshold = 3
)
