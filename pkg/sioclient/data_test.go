package sioclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	d, err := DecodeJSON([]byte(`["test", 1, 2.2, {"Hello": 2, "bob": 2.2}, true, [1, 2], null, {"_placeholder": true, "num": 3}]`))
	require.NoError(t, err)

	assert.Equal(t, Array{
		String("test"),
		Number(1),
		Number(2.2),
		Object{"Hello": Number(2), "bob": Number(2.2)},
		Bool(true),
		Array{Number(1), Number(2)},
		Null{},
		Placeholder{Num: 3},
	}, d)

	_, err = DecodeJSON([]byte(`[1] [2]`))
	assert.Error(t, err)

	_, err = DecodeJSON([]byte(`{"_placeholder": true, "num": -1}`))
	assert.NoError(t, err, "negative num is a plain object, not an error")

	d, err = DecodeJSON([]byte(`{"_placeholder": true, "num": 1e20}`))
	require.NoError(t, err)
	assert.IsType(t, Object{}, d)

	d, err = DecodePlainJSON([]byte(`[{"_placeholder": true, "num": 0}]`))
	require.NoError(t, err)
	assert.Equal(t, Array{Object{"_placeholder": Bool(true), "num": Number(0)}}, d)
}

func TestFromAny(t *testing.T) {
	type point struct {
		X int `json:"x"`
		Y int `json:"y"`
	}

	tests := []struct {
		name     string
		input    any
		expected Data
	}{
		{"nil", nil, Null{}},
		{"string", "hi", String("hi")},
		{"int", 3, Number(3)},
		{"uint8", uint8(7), Number(7)},
		{"float32", float32(0.5), Number(0.5)},
		{"bool", true, Bool(true)},
		{"bytes", []byte("abc"), Binary("abc")},
		{"data passes through", String("x"), String("x")},
		{"slice", []any{"a", 1}, Array{String("a"), Number(1)}},
		{"map", map[string]any{"k": []byte{1}}, Object{"k": Binary{1}}},
		{"struct via json", point{X: 1, Y: 2}, Object{"x": Number(1), "y": Number(2)}},
		{"nil pointer", (*point)(nil), Null{}},
		{"string slice via json", []string{"a", "b"}, Array{String("a"), String("b")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := FromAny(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}

	t.Run("unsupported", func(t *testing.T) {
		_, err := FromAny(make(chan int))
		assert.Error(t, err)
	})
}

func TestToAny(t *testing.T) {
	d := Array{
		String("s"),
		Number(1),
		Bool(false),
		Null{},
		Object{"b": Binary("xy")},
		Placeholder{Num: 1},
	}

	assert.Equal(t, []any{
		"s",
		float64(1),
		false,
		nil,
		map[string]any{"b": []byte("xy")},
		map[string]any{"_placeholder": true, "num": 1},
	}, ToAny(d))

	assert.Equal(t, []any{"a", nil}, ToAnySlice([]Data{String("a"), Null{}}))
}

func TestDataMarshalJSON(t *testing.T) {
	raw, err := json.Marshal([]Data{Null{}, Placeholder{Num: 2}, Object{"n": Number(4)}})
	require.NoError(t, err)
	assert.JSONEq(t, `[null,{"_placeholder":true,"num":2},{"n":4}]`, string(raw))
}

func TestPacketHelpers(t *testing.T) {
	p := &Packet{Type: PacketTypeBinaryEvent, Data: []Data{String("evt"), Number(1)}}

	name, ok := p.EventName()
	assert.True(t, ok)
	assert.Equal(t, "evt", name)
	assert.Equal(t, []Data{Number(1)}, p.Args())
	assert.Equal(t, int64(-1), p.AckID())
	assert.Equal(t, DefaultNamespace, p.NamespaceOrDefault())

	ack := &Packet{Type: PacketTypeAck, ID: Int64Ptr(4), Data: []Data{String("x")}}
	_, ok = ack.EventName()
	assert.False(t, ok)
	assert.Equal(t, []Data{String("x")}, ack.Args())
	assert.Equal(t, int64(4), ack.AckID())

	assert.Equal(t, "binary_ack", PacketTypeBinaryAck.String())
	assert.Equal(t, "unknown(9)", PacketType(9).String())
}
