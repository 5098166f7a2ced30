package eventbus

// DeliveryStrategy determines behaviour when a subscriber's channel is full.
type DeliveryStrategy string

const (
	// StrategyDropOldest removes the oldest queued event and enqueues the new one.
	StrategyDropOldest DeliveryStrategy = "drop-oldest"
	// StrategyDropNewest discards the incoming event.
	StrategyDropNewest DeliveryStrategy = "drop-newest"
)

var defaultStrategy = StrategyDropOldest

// Alerts and hotspot requests keep the first events of a burst; config
// change topics only care about the latest state.
var defaultStrategies = map[Topic]DeliveryStrategy{
	TopicNotificationsAlert:      StrategyDropNewest,
	TopicNotificationsAlertState: StrategyDropNewest,
	TopicHotspotsShowRequested:   StrategyDropNewest,
	TopicHotspotsShowFailed:      StrategyDropNewest,
}

var defaultBuffers = map[Topic]int{
	TopicConfigGlobalApplied:      16,
	TopicConfigProjectChanged:     64,
	TopicConfigConnectionsChanged: 16,
	TopicProjectModulesChanged:    64,
	TopicProjectsLifecycle:        64,
	TopicNotificationsAlert:       256,
	TopicNotificationsAlertState:  64,
	TopicHotspotsShowRequested:    32,
	TopicHotspotsShowFailed:       32,
	TopicControlState:             8,
}

func strategyFor(topic Topic, overrides map[Topic]DeliveryStrategy) DeliveryStrategy {
	if s, ok := overrides[topic]; ok {
		return s
	}
	if s, ok := defaultStrategies[topic]; ok {
		return s
	}
	return defaultStrategy
}
