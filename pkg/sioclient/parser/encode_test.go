package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/sioclient/pkg/sioclient"
)

func TestEncode(t *testing.T) {
	t.Run("plain event", func(t *testing.T) {
		raw, attachments, err := Encode(&sioclient.Packet{
			Type: sioclient.PacketTypeEvent,
			Data: []sioclient.Data{sioclient.String("test"), sioclient.Number(1.5), sioclient.Null{}},
		})
		require.NoError(t, err)
		assert.Equal(t, `2["test",1.5,null]`, raw)
		assert.Empty(t, attachments)
	})

	t.Run("event with id and namespace", func(t *testing.T) {
		raw, _, err := Encode(&sioclient.Packet{
			Type:      sioclient.PacketTypeEvent,
			Namespace: "/chat",
			ID:        sioclient.Int64Ptr(3),
			Data:      []sioclient.Data{sioclient.String("msg")},
		})
		require.NoError(t, err)
		assert.Equal(t, `2/chat,3["msg"]`, raw)
	})

	t.Run("default namespace is omitted", func(t *testing.T) {
		raw, _, err := Encode(&sioclient.Packet{
			Type:      sioclient.PacketTypeAck,
			Namespace: "/",
			ID:        sioclient.Int64Ptr(0),
			Data:      []sioclient.Data{sioclient.String("ok")},
		})
		require.NoError(t, err)
		assert.Equal(t, `30["ok"]`, raw)
	})

	t.Run("binary promotes event and numbers placeholders", func(t *testing.T) {
		first := []byte("test")
		second := []byte("test2")

		packet := &sioclient.Packet{
			Type: sioclient.PacketTypeEvent,
			Data: []sioclient.Data{
				sioclient.String("upload"),
				sioclient.Object{
					"a": sioclient.Binary(first),
					"b": sioclient.Binary(second),
				},
			},
		}

		raw, attachments, err := Encode(packet)
		require.NoError(t, err)
		assert.Equal(t,
			`52-["upload",{"a":{"_placeholder":true,"num":0},"b":{"_placeholder":true,"num":1}}]`,
			raw)
		assert.Equal(t, [][]byte{first, second}, attachments)

		// The source packet is untouched.
		assert.Equal(t, sioclient.PacketTypeEvent, packet.Type)
		assert.Equal(t, sioclient.Binary(first), packet.Data[1].(sioclient.Object)["a"])
	})

	t.Run("binary ack", func(t *testing.T) {
		raw, attachments, err := Encode(&sioclient.Packet{
			Type: sioclient.PacketTypeAck,
			ID:   sioclient.Int64Ptr(12),
			Data: []sioclient.Data{sioclient.Binary{1, 2, 3}},
		})
		require.NoError(t, err)
		assert.Equal(t, `61-12[{"_placeholder":true,"num":0}]`, raw)
		assert.Equal(t, [][]byte{{1, 2, 3}}, attachments)
	})

	t.Run("connect to namespace", func(t *testing.T) {
		raw, _, err := Encode(&sioclient.Packet{Type: sioclient.PacketTypeConnect, Namespace: "/admin"})
		require.NoError(t, err)
		assert.Equal(t, `0/admin,`, raw)
	})

	t.Run("binary in error packet is rejected", func(t *testing.T) {
		_, _, err := Encode(&sioclient.Packet{
			Type: sioclient.PacketTypeError,
			Data: []sioclient.Data{sioclient.Binary("x")},
		})
		assert.Error(t, err)
	})

	t.Run("invalid type", func(t *testing.T) {
		_, _, err := Encode(&sioclient.Packet{Type: sioclient.PacketType(42)})
		assert.Error(t, err)
	})
}

func TestEncodeParse(t *testing.T) {
	packet := &sioclient.Packet{
		Type:      sioclient.PacketTypeEvent,
		Namespace: "/room",
		ID:        sioclient.Int64Ptr(5),
		Data: []sioclient.Data{
			sioclient.String("nested"),
			sioclient.Array{sioclient.Number(1), sioclient.Array{sioclient.Bool(false)}},
			sioclient.Object{"k": sioclient.String(`"quoted"`)},
		},
	}

	raw, attachments, err := Encode(packet)
	require.NoError(t, err)
	assert.Empty(t, attachments)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, packet, parsed)
}
