package subutils

import (
	"github.com/amir-yaghoubi/mqttpattern"

	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/client"
	"github.com/tsarna/sioclient/pkg/sioclient/transform"
)

// FilterEvents returns a handler that forwards only events whose names
// match one of the MQTT-style patterns. With no patterns every event is
// forwarded.
func FilterEvents(wrapped client.AnyHandler, patterns ...string) client.AnyHandler {
	if len(patterns) == 0 {
		return wrapped
	}
	return func(event string, data []sioclient.Data) {
		for _, pattern := range patterns {
			if mqttpattern.Matches(pattern, event) {
				wrapped(event, data)
				return
			}
		}
	}
}

// TransformEvents returns a handler that runs each event through the
// transforms and passes surviving results to sink. namespace is recorded
// on each transform.Event.
func TransformEvents(namespace string, sink func(*transform.Event), transforms ...transform.EventTransformFunc) client.AnyHandler {
	chain := transform.ChainTransforms(transforms...)
	return func(event string, data []sioclient.Data) {
		result, _ := chain(transform.NewEvent(namespace, event, data))
		if result != nil {
			sink(result)
		}
	}
}
