package constants

// Telemetry counter names.
const (
	TelemetryNotificationsReceived = "notifications.received"
	TelemetryNotificationsClicked  = "notifications.clicked"
	TelemetryHotspotShowRequested  = "hotspots.show_requested"
	TelemetryHotspotShowFailed     = "hotspots.show_failed"
)

// Health service names reported on the gRPC health endpoint.
const (
	HealthServiceControl       = "lintbridge.control"
	HealthServiceNotifications = "lintbridge.notifications"
)

// FocusNotifications asks the connection editor to scroll to notification settings.
const FocusNotifications = "notifications"
