package constants

import "time"

// Shared duration vocabulary used by timeouts, polling and retry checks.
const (
	Duration100Milliseconds = 100 * time.Millisecond
	Duration250Milliseconds = 250 * time.Millisecond
	Duration500Milliseconds = 500 * time.Millisecond

	Duration1Second   = 1 * time.Second
	Duration2Seconds  = 2 * time.Second
	Duration5Seconds  = 5 * time.Second
	Duration10Seconds = 10 * time.Second
	Duration30Seconds = 30 * time.Second
	Duration60Seconds = 60 * time.Second
)

// Domain-level timeout constants.
const (
	ControlServerReadHeaderTimeout = Duration5Seconds
	ControlServerShutdownTimeout   = Duration2Seconds

	RemoteRequestTimeout      = Duration10Seconds
	RemoteCapabilitiesTimeout = Duration5Seconds

	StoreQueryTimeout     = Duration5Seconds
	StoreWatchInterval    = Duration1Second
	SettingsWatchDebounce = Duration250Milliseconds

	DefaultNotificationPollInterval = Duration60Seconds
	MinNotificationPollInterval     = Duration5Seconds

	AdminClientTimeout = Duration10Seconds
)

// TelemetryFlushInterval controls how often usage counters are persisted.
const TelemetryFlushInterval = Duration30Seconds
