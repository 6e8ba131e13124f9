package transform

import (
	"context"
	"fmt"

	"github.com/itchyny/gojq"
	"go.uber.org/zap"
)

// JqTransform returns an EventTransformFunc that replaces the payload with
// the result of a jq query. The query sees the argument array as its
// input and has access to these variables:
//   - $event: the event name
//   - $namespace: the namespace the event arrived on
//
// A query producing several results yields an array of them; a query
// producing none drops the event. On a runtime error the event passes
// through unchanged and the error is logged if logger is non-nil.
//
// Example:
//
//	// Keep only the first argument's user field
//	users, err := JqTransform(".[0].user", logger)
//
//	// Tag the payload with its event name
//	tagged, err := JqTransform("{event: $event, args: .}", logger)
func JqTransform(jqQuery string, logger *zap.Logger) (EventTransformFunc, error) {
	query, err := gojq.Parse(jqQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JQ query '%s': %w", jqQuery, err)
	}

	code, err := gojq.Compile(query, gojq.WithVariables([]string{"$event", "$namespace"}))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JQ query '%s': %w", jqQuery, err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return func(ev *Event) (*Event, bool) {
		iter := code.RunWithContext(context.Background(), ev.Payload, ev.Name, ev.Namespace)

		var results []any
		for {
			result, ok := iter.Next()
			if !ok {
				break
			}

			if execErr, isErr := result.(error); isErr {
				logger.Error("JQ transform: JQ execution error",
					zap.String("jq_query", jqQuery),
					zap.String("event", ev.Name),
					zap.Error(execErr))
				return ev, true
			}

			results = append(results, result)
		}

		if len(results) == 0 {
			return nil, false
		}

		var payload any
		if len(results) == 1 {
			payload = results[0]
		} else {
			payload = results
		}

		return &Event{
			Namespace: ev.Namespace,
			Name:      ev.Name,
			Payload:   payload,
			Fields:    ev.Fields,
		}, true
	}, nil
}
