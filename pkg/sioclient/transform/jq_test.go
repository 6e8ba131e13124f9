package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tsarna/sioclient/pkg/sioclient"
)

func TestJqTransform(t *testing.T) {
	chat := func() *Event {
		return NewEvent("/chat", "message", []sioclient.Data{
			sioclient.Object{"user": sioclient.String("alice"), "text": sioclient.String("hi")},
			sioclient.Number(3),
		})
	}

	t.Run("field extraction", func(t *testing.T) {
		transform, err := JqTransform(".[0].user", nil)
		require.NoError(t, err)

		result, cont := transform(chat())
		assert.True(t, cont)
		require.NotNil(t, result)
		assert.Equal(t, "alice", result.Payload)
		assert.Equal(t, "message", result.Name)
		assert.Equal(t, "/chat", result.Namespace)
	})

	t.Run("variables", func(t *testing.T) {
		transform, err := JqTransform("{event: $event, nsp: $namespace, n: .[1]}", nil)
		require.NoError(t, err)

		result, _ := transform(chat())
		require.NotNil(t, result)
		assert.Equal(t, map[string]any{"event": "message", "nsp": "/chat", "n": float64(3)}, result.Payload)
	})

	t.Run("multiple results become an array", func(t *testing.T) {
		transform, err := JqTransform(".[0] | .user, .text", nil)
		require.NoError(t, err)

		result, _ := transform(chat())
		require.NotNil(t, result)
		assert.Equal(t, []any{"alice", "hi"}, result.Payload)
	})

	t.Run("no results drop the event", func(t *testing.T) {
		transform, err := JqTransform(`select($event == "typing")`, nil)
		require.NoError(t, err)

		result, cont := transform(chat())
		assert.Nil(t, result)
		assert.False(t, cont)
	})

	t.Run("runtime error passes through", func(t *testing.T) {
		transform, err := JqTransform(`error("boom")`, zaptest.NewLogger(t))
		require.NoError(t, err)

		ev := chat()
		result, cont := transform(ev)
		assert.Same(t, ev, result)
		assert.True(t, cont)
	})

	t.Run("binary attachment as base64", func(t *testing.T) {
		transform, err := JqTransform(".[0] | @base64d", nil)
		require.NoError(t, err)

		result, _ := transform(NewEvent("/", "file", []sioclient.Data{sioclient.Binary("hello")}))
		require.NotNil(t, result)
		assert.Equal(t, "hello", result.Payload)
	})

	t.Run("invalid query", func(t *testing.T) {
		_, err := JqTransform(".[", nil)
		assert.Error(t, err)
	})

	t.Run("undefined variable", func(t *testing.T) {
		_, err := JqTransform("$topic", nil)
		assert.Error(t, err)
	})
}
