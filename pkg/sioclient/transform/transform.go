// Package transform rewrites or filters inbound events before they reach
// a consumer such as the listen command.
package transform

import (
	"encoding/base64"

	"github.com/amir-yaghoubi/mqttpattern"

	"github.com/tsarna/sioclient/pkg/sioclient"
)

// Event is an inbound event as seen by a transform pipeline.
type Event struct {
	Namespace string
	Name      string

	// Payload holds plain Go values: string, float64, bool, nil, []any
	// and map[string]any. It starts as the event arguments.
	Payload any

	// Fields holds values extracted from the event name by pattern
	// transforms.
	Fields map[string]string
}

// NewEvent builds an Event from a dispatched event. Binary attachments
// become base64 strings, as they would in JSON.
func NewEvent(namespace, name string, data []sioclient.Data) *Event {
	return &Event{
		Namespace: namespace,
		Name:      name,
		Payload:   plain(sioclient.ToAnySlice(data)),
	}
}

func plain(v any) any {
	switch x := v.(type) {
	case []byte:
		return base64.StdEncoding.EncodeToString(x)
	case []any:
		for i, item := range x {
			x[i] = plain(item)
		}
		return x
	case map[string]any:
		for k, item := range x {
			x[k] = plain(item)
		}
		return x
	default:
		return v
	}
}

// EventTransformFunc transforms an event.
//
// Returns:
//   - *Event: The transformed event (nil to drop it)
//   - bool: Whether to continue calling subsequent transforms (ignored if the event is nil)
type EventTransformFunc func(ev *Event) (*Event, bool)

// Apply runs transforms in order and returns the result, or nil if the
// event was dropped.
func Apply(ev *Event, transforms ...EventTransformFunc) *Event {
	result, _ := ChainTransforms(transforms...)(ev)
	return result
}

// ChainTransforms combines multiple EventTransformFunc into one.
func ChainTransforms(transforms ...EventTransformFunc) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		current := ev
		for _, transform := range transforms {
			if current == nil {
				return nil, true
			}

			transformed, continueProcessing := transform(current)
			current = transformed

			if current == nil || !continueProcessing {
				return current, continueProcessing
			}
		}
		return current, true
	}
}

// DropEventPattern drops events whose names match the MQTT-style pattern.
// Event names use "/" as the level separator, so "admin/#" matches
// "admin/kick" and "admin/ban/user".
func DropEventPattern(pattern string) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		if mqttpattern.Matches(pattern, ev.Name) {
			return nil, false
		}
		return ev, true
	}
}

// KeepEventPattern drops events whose names do not match any of the
// patterns. With no patterns every event is kept.
func KeepEventPattern(patterns ...string) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		if len(patterns) == 0 {
			return ev, true
		}
		for _, pattern := range patterns {
			if mqttpattern.Matches(pattern, ev.Name) {
				return ev, true
			}
		}
		return nil, false
	}
}

// SimpleEventTransformFunc transforms a payload given the fields extracted
// from the event name. Returning nil drops the event.
type SimpleEventTransformFunc func(payload any, fields map[string]string) any

// TransformOnPattern applies transform to events whose names match the
// pattern; others pass through unchanged. Named wildcards such as
// "room/+id/message" are extracted into Fields.
func TransformOnPattern(pattern string, transform SimpleEventTransformFunc) EventTransformFunc {
	return func(ev *Event) (*Event, bool) {
		if !mqttpattern.Matches(pattern, ev.Name) {
			return ev, true
		}

		fields := mqttpattern.Extract(pattern, ev.Name)

		payload := transform(ev.Payload, fields)
		if payload == nil {
			return nil, true
		}

		return &Event{
			Namespace: ev.Namespace,
			Name:      ev.Name,
			Payload:   payload,
			Fields:    fields,
		}, true
	}
}
