package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	t.Run("FlatMap", func(t *testing.T) {
		m := Map{
			"server_nonce": []byte{1, 2, 3, 4},
			"session_id":   int64(12345),
			"name":         "hello",
		}

		data, err := Pack(m)
		require.NoError(t, err)
		require.NotEmpty(t, data)

		out, err := Unpack(data)
		require.NoError(t, err)

		b, err := out.GetBytes("server_nonce")
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3, 4}, b)

		n, err := out.GetLong("session_id")
		require.NoError(t, err)
		assert.Equal(t, int64(12345), n)

		s, err := out.GetString("name")
		require.NoError(t, err)
		assert.Equal(t, "hello", s)
	})

	t.Run("NestedMap", func(t *testing.T) {
		m := Map{
			"outer": Map{
				"inner": "value",
			},
		}

		data, err := Pack(m)
		require.NoError(t, err)

		out, err := Unpack(data)
		require.NoError(t, err)

		nested, err := out.GetMap("outer")
		require.NoError(t, err)

		s, err := nested.GetString("inner")
		require.NoError(t, err)
		assert.Equal(t, "value", s)
	})

	t.Run("EmptyMap", func(t *testing.T) {
		data, err := Pack(Map{})
		require.NoError(t, err)

		out, err := Unpack(data)
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}

func TestTypedAccessorsMissingOrWrongType(t *testing.T) {
	m := Map{
		"a_string": "not bytes",
		"a_bytes":  []byte("not a number"),
	}

	t.Run("MissingKey", func(t *testing.T) {
		_, err := m.GetBytes("missing")
		assert.ErrorIs(t, err, ErrMissingOrWrongType)

		_, err = m.GetLong("missing")
		assert.ErrorIs(t, err, ErrMissingOrWrongType)

		_, err = m.GetString("missing")
		assert.ErrorIs(t, err, ErrMissingOrWrongType)
	})

	t.Run("WrongType", func(t *testing.T) {
		_, err := m.GetLong("a_string")
		assert.ErrorIs(t, err, ErrMissingOrWrongType)

		_, err = m.GetMap("a_bytes")
		assert.ErrorIs(t, err, ErrMissingOrWrongType)
	})

	t.Run("BytesAcceptsStringAndBytes", func(t *testing.T) {
		b, err := m.GetBytes("a_string")
		require.NoError(t, err)
		assert.Equal(t, []byte("not bytes"), b)

		s, err := m.GetString("a_bytes")
		require.NoError(t, err)
		assert.Equal(t, "not a number", s)
	})
}

func TestLongAcceptsMultipleIntegerWidths(t *testing.T) {
	cases := map[string]interface{}{
		"int":     int(7),
		"int32":   int32(7),
		"int64":   int64(7),
		"uint32":  uint32(7),
		"uint64":  uint64(7),
		"float64": float64(7),
	}

	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			m := Map{"x": v}
			n, err := m.GetLong("x")
			require.NoError(t, err)
			assert.Equal(t, int64(7), n)
		})
	}
}
