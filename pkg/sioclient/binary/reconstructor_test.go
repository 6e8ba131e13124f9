package binary

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/sioclient/pkg/sioclient"
	"github.com/tsarna/sioclient/pkg/sioclient/parser"
)

func mustParse(t *testing.T, raw string) *sioclient.Packet {
	t.Helper()
	p, err := parser.Parse(raw)
	require.NoError(t, err)
	return p
}

func TestReconstructBinaryAck(t *testing.T) {
	r := NewReconstructor()
	p := mustParse(t, `62-0[{"_placeholder":true,"num":0},{"_placeholder":true,"num":1}]`)

	require.NoError(t, r.Begin(p, p.Attachments))
	assert.True(t, r.Pending())
	assert.Equal(t, 2, r.Expected())

	first := []byte{0x00, 0x01, 0xff}
	second := []byte("second")

	done, err := r.AddAttachment(first)
	require.NoError(t, err)
	assert.Nil(t, done)
	assert.Equal(t, 1, r.Received())

	done, err = r.AddAttachment(second)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.False(t, r.Pending())

	assert.Equal(t, []sioclient.Data{sioclient.Binary(first), sioclient.Binary(second)}, done.Data)
	assert.Equal(t, int64(0), done.AckID())
}

func TestReconstructNested(t *testing.T) {
	r := NewReconstructor()
	p := mustParse(t, `52-["test",{"test":{"_placeholder":true,"num":0},"list":[1,{"_placeholder":true,"num":1}]}]`)

	require.NoError(t, r.Begin(p, 2))

	_, err := r.AddAttachment([]byte("test"))
	require.NoError(t, err)
	done, err := r.AddAttachment([]byte("test2"))
	require.NoError(t, err)
	require.NotNil(t, done)

	assert.Equal(t, []sioclient.Data{
		sioclient.String("test"),
		sioclient.Object{
			"test": sioclient.Binary("test"),
			"list": sioclient.Array{sioclient.Number(1), sioclient.Binary("test2")},
		},
	}, done.Data)
}

func TestReconstructDuplicateIndex(t *testing.T) {
	r := NewReconstructor()
	p := mustParse(t, `51-["dup",{"_placeholder":true,"num":0},[{"_placeholder":true,"num":0}]]`)

	require.NoError(t, r.Begin(p, 1))
	done, err := r.AddAttachment([]byte("same"))
	require.NoError(t, err)
	require.NotNil(t, done)

	a := done.Data[1].(sioclient.Binary)
	b := done.Data[2].(sioclient.Array)[0].(sioclient.Binary)
	assert.Equal(t, a, b)

	// Independent copies.
	a[0] = 'X'
	assert.Equal(t, sioclient.Binary("same"), b)
}

func TestReconstructSequencingErrors(t *testing.T) {
	t.Run("attachment with nothing pending", func(t *testing.T) {
		r := NewReconstructor()
		_, err := r.AddAttachment([]byte("x"))
		require.Error(t, err)
		assert.True(t, sioclient.IsSequencingError(err))
	})

	t.Run("second header while pending", func(t *testing.T) {
		r := NewReconstructor()
		require.NoError(t, r.Begin(mustParse(t, `51-["a",{"_placeholder":true,"num":0}]`), 1))

		err := r.Begin(mustParse(t, `51-["b",{"_placeholder":true,"num":0}]`), 1)
		require.Error(t, err)
		assert.True(t, sioclient.IsSequencingError(err))
		assert.True(t, r.Pending(), "original reconstruction is kept; the caller decides to reset")
	})

	t.Run("more attachments than declared", func(t *testing.T) {
		r := NewReconstructor()
		require.NoError(t, r.Begin(mustParse(t, `51-["a",{"_placeholder":true,"num":0}]`), 1))

		done, err := r.AddAttachment([]byte("1"))
		require.NoError(t, err)
		require.NotNil(t, done)

		_, err = r.AddAttachment([]byte("2"))
		assert.True(t, sioclient.IsSequencingError(err))
	})

	t.Run("placeholder beyond declared count", func(t *testing.T) {
		r := NewReconstructor()
		err := r.Begin(mustParse(t, `51-["a",{"_placeholder":true,"num":3}]`), 1)
		assert.True(t, sioclient.IsSequencingError(err))
		assert.False(t, r.Pending())
	})

	t.Run("negative placeholder index", func(t *testing.T) {
		r := NewReconstructor()
		packet := &sioclient.Packet{
			Type: sioclient.PacketTypeBinaryEvent,
			Data: []sioclient.Data{sioclient.String("a"), sioclient.Placeholder{Num: -1}},
		}
		err := r.Begin(packet, 1)
		assert.True(t, sioclient.IsSequencingError(err))
		assert.False(t, r.Pending())
	})

	t.Run("zero attachments", func(t *testing.T) {
		r := NewReconstructor()
		err := r.Begin(&sioclient.Packet{Type: sioclient.PacketTypeBinaryEvent}, 0)
		assert.True(t, sioclient.IsSequencingError(err))
	})
}

func TestReset(t *testing.T) {
	r := NewReconstructor()
	require.NoError(t, r.Begin(mustParse(t, `51-["a",{"_placeholder":true,"num":0}]`), 1))
	r.Reset()
	assert.False(t, r.Pending())
	assert.Equal(t, 0, r.Expected())
	assert.Equal(t, 0, r.Received())
}
