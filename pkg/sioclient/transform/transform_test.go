package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsarna/sioclient/pkg/sioclient"
)

func TestNewEvent(t *testing.T) {
	ev := NewEvent("/chat", "upload", []sioclient.Data{
		sioclient.String("name"),
		sioclient.Object{
			"file": sioclient.Binary("hi"),
			"size": sioclient.Number(2),
		},
		sioclient.Array{sioclient.Bool(true), sioclient.Null{}},
	})

	assert.Equal(t, "/chat", ev.Namespace)
	assert.Equal(t, "upload", ev.Name)
	assert.Equal(t, []any{
		"name",
		map[string]any{"file": "aGk=", "size": float64(2)},
		[]any{true, nil},
	}, ev.Payload)
}

func TestEventPatterns(t *testing.T) {
	tests := []struct {
		name     string
		pattern  string
		event    string
		expected bool
	}{
		{"exact", "message", "message", true},
		{"exact mismatch", "message", "typing", false},
		{"single level", "room/+/message", "room/42/message", true},
		{"single level mismatch", "room/+/message", "room/42/typing", false},
		{"multi level", "admin/#", "admin/ban/user", true},
		{"everything", "#", "anything/at/all", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := &Event{Name: tt.event}

			kept, _ := KeepEventPattern(tt.pattern)(ev)
			dropped, _ := DropEventPattern(tt.pattern)(ev)

			if tt.expected {
				assert.Same(t, ev, kept)
				assert.Nil(t, dropped)
			} else {
				assert.Nil(t, kept)
				assert.Same(t, ev, dropped)
			}
		})
	}
}

func TestKeepEventPatternMultiple(t *testing.T) {
	keep := KeepEventPattern("chat/#", "status")

	for name, expected := range map[string]bool{
		"chat/message": true,
		"status":       true,
		"typing":       false,
	} {
		result, _ := keep(&Event{Name: name})
		assert.Equal(t, expected, result != nil, name)
	}

	all, cont := KeepEventPattern()(&Event{Name: "anything"})
	assert.NotNil(t, all)
	assert.True(t, cont)
}

func TestTransformOnPattern(t *testing.T) {
	enrich := TransformOnPattern("room/+id/message", func(payload any, fields map[string]string) any {
		if fields["id"] == "blocked" {
			return nil
		}
		return map[string]any{"room": fields["id"], "args": payload}
	})

	t.Run("match", func(t *testing.T) {
		result, cont := enrich(&Event{Name: "room/42/message", Payload: []any{"hi"}})
		require.NotNil(t, result)
		assert.True(t, cont)
		assert.Equal(t, map[string]any{"room": "42", "args": []any{"hi"}}, result.Payload)
		assert.Equal(t, map[string]string{"id": "42"}, result.Fields)
	})

	t.Run("no match passes through", func(t *testing.T) {
		ev := &Event{Name: "lobby/message", Payload: []any{"hi"}}
		result, cont := enrich(ev)
		assert.Same(t, ev, result)
		assert.True(t, cont)
	})

	t.Run("nil drops", func(t *testing.T) {
		result, _ := enrich(&Event{Name: "room/blocked/message"})
		assert.Nil(t, result)
	})
}

func TestChainTransforms(t *testing.T) {
	var calls []string
	record := func(name string, keep, cont bool) EventTransformFunc {
		return func(ev *Event) (*Event, bool) {
			calls = append(calls, name)
			if !keep {
				return nil, cont
			}
			return ev, cont
		}
	}

	t.Run("all run", func(t *testing.T) {
		calls = nil
		ev := &Event{Name: "x"}
		assert.Same(t, ev, Apply(ev, record("a", true, true), record("b", true, true)))
		assert.Equal(t, []string{"a", "b"}, calls)
	})

	t.Run("stop", func(t *testing.T) {
		calls = nil
		ev := &Event{Name: "x"}
		assert.Same(t, ev, Apply(ev, record("a", true, false), record("b", true, true)))
		assert.Equal(t, []string{"a"}, calls)
	})

	t.Run("drop", func(t *testing.T) {
		calls = nil
		assert.Nil(t, Apply(&Event{Name: "x"}, record("a", false, true), record("b", true, true)))
		assert.Equal(t, []string{"a"}, calls)
	})

	t.Run("empty chain", func(t *testing.T) {
		ev := &Event{Name: "x"}
		assert.Same(t, ev, Apply(ev))
	})
}
