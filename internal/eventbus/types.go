package eventbus

import "time"

// Topic identifies a logical channel on the bus.
type Topic string

const (
	TopicConfigGlobalApplied      Topic = "config.global_applied"
	TopicConfigProjectChanged     Topic = "config.project_changed"
	TopicConfigConnectionsChanged Topic = "config.connections_changed"
	TopicProjectModulesChanged    Topic = "project.modules_changed"
	TopicProjectsLifecycle        Topic = "projects.lifecycle"
	TopicNotificationsAlert       Topic = "notifications.alert"
	TopicNotificationsAlertState  Topic = "notifications.alert_state"
	TopicHotspotsShowRequested    Topic = "hotspots.show_requested"
	TopicHotspotsShowFailed       Topic = "hotspots.show_failed"
	TopicControlState             Topic = "control.state"
)

// Source describes which component produced an event.
type Source string

const (
	SourceConfigWatcher   Source = "config_watcher"
	SourceSettingsWatcher Source = "settings_watcher"
	SourceControlServer   Source = "control_server"
	SourceNotifications   Source = "notifications"
	SourceHotspots        Source = "hotspots"
	SourceAdminAPI        Source = "admin_api"
	SourceUnknown         Source = "unknown"
)

// Envelope wraps every message published on the bus.
type Envelope struct {
	Topic         Topic
	Timestamp     time.Time
	Source        Source
	CorrelationID string
	Payload       any
}

// GlobalSettingsAppliedEvent is emitted after global settings were reloaded.
type GlobalSettingsAppliedEvent struct {
	Source string
}

// ProjectConfigChangedEvent is emitted when a project's binding or open flag changed.
type ProjectConfigChangedEvent struct {
	Project string
}

// ConnectionsChangedEvent is emitted when any server connection was edited.
type ConnectionsChangedEvent struct{}

// ModulesChangedEvent is emitted when the module set of a project changed.
type ModulesChangedEvent struct {
	Project string
}

// ProjectState summarises project lifecycle changes.
type ProjectState string

const (
	ProjectOpened ProjectState = "opened"
	ProjectClosed ProjectState = "closed"
)

// ProjectLifecycleEvent notifies consumers about projects being opened or closed.
type ProjectLifecycleEvent struct {
	Project string
	State   ProjectState
}

// AlertAction names an action offered with a notification alert.
type AlertAction string

const (
	AlertActionOpen      AlertAction = "open"
	AlertActionConfigure AlertAction = "configure"
)

// NotificationAlertEvent carries a user-facing alert built from a server event.
type NotificationAlertEvent struct {
	ID             string
	Project        string
	ConnectionName string
	Category       string
	Message        string
	Link           string
	Brand          string
	Actions        []AlertAction
	ReceivedAt     time.Time
}

// AlertState describes what happened to a previously published alert.
type AlertState string

const (
	AlertOpened     AlertState = "opened"
	AlertConfigured AlertState = "configured"
	AlertExpired    AlertState = "expired"
)

// AlertStateEvent reports an alert transition triggered by one of its actions.
type AlertStateEvent struct {
	ID     string
	State  AlertState
	Reason string
}

// HotspotShowRequestedEvent is emitted when a trusted caller asked to show a
// security hotspot and the hotspot was resolved on the server.
type HotspotShowRequestedEvent struct {
	Project    string
	ProjectKey string
	HotspotKey string
	ServerURL  string
	Message    string
	Component  string
	Line       int
	Status     string
	RuleKey    string
}

// HotspotShowFailedEvent is emitted when a show request could not be served.
type HotspotShowFailedEvent struct {
	ProjectKey string
	HotspotKey string
	ServerURL  string
	Reason     string
}

// ControlStateEvent reports control server state transitions.
type ControlStateEvent struct {
	State string
	Port  int
}

// Config groups configuration topic descriptors.
var Config = struct {
	GlobalApplied      TopicDef[GlobalSettingsAppliedEvent]
	ProjectChanged     TopicDef[ProjectConfigChangedEvent]
	ConnectionsChanged TopicDef[ConnectionsChangedEvent]
}{
	GlobalApplied:      NewTopicDef[GlobalSettingsAppliedEvent](TopicConfigGlobalApplied),
	ProjectChanged:     NewTopicDef[ProjectConfigChangedEvent](TopicConfigProjectChanged),
	ConnectionsChanged: NewTopicDef[ConnectionsChangedEvent](TopicConfigConnectionsChanged),
}

// Projects groups project topic descriptors.
var Projects = struct {
	ModulesChanged TopicDef[ModulesChangedEvent]
	Lifecycle      TopicDef[ProjectLifecycleEvent]
}{
	ModulesChanged: NewTopicDef[ModulesChangedEvent](TopicProjectModulesChanged),
	Lifecycle:      NewTopicDef[ProjectLifecycleEvent](TopicProjectsLifecycle),
}

// Notifications groups server notification topic descriptors.
var Notifications = struct {
	Alert      TopicDef[NotificationAlertEvent]
	AlertState TopicDef[AlertStateEvent]
}{
	Alert:      NewTopicDef[NotificationAlertEvent](TopicNotificationsAlert),
	AlertState: NewTopicDef[AlertStateEvent](TopicNotificationsAlertState),
}

// Hotspots groups hotspot topic descriptors.
var Hotspots = struct {
	ShowRequested TopicDef[HotspotShowRequestedEvent]
	ShowFailed    TopicDef[HotspotShowFailedEvent]
}{
	ShowRequested: NewTopicDef[HotspotShowRequestedEvent](TopicHotspotsShowRequested),
	ShowFailed:    NewTopicDef[HotspotShowFailedEvent](TopicHotspotsShowFailed),
}

// Control groups control server topic descriptors.
var Control = struct {
	State TopicDef[ControlStateEvent]
}{
	State: NewTopicDef[ControlStateEvent](TopicControlState),
}
