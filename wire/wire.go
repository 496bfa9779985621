// Package wire implements the tagged, self-describing binary object
// codec used on the HTTP body: a symmetric pack(map) -> bytes and
// unpack(bytes) -> map pair, plus typed accessors for the handshake and
// command layers.
package wire

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Map is the string-keyed container exchanged across the wire. Values are
// byte strings, signed integers, strings, or nested Maps.
type Map map[string]interface{}

// ErrMissingOrWrongType is returned by the typed accessors when a key is
// absent or holds a value of the wrong type.
var ErrMissingOrWrongType = errors.New("wire: missing or wrong type")

// Pack serializes a Map into its wire representation.
func Pack(m Map) ([]byte, error) {
	data, err := msgpack.Marshal(map[string]interface{}(m))
	if err != nil {
		return nil, fmt.Errorf("wire: pack: %w", err)
	}
	return data, nil
}

// Unpack deserializes wire bytes into a Map. Nested maps decode as
// map[string]interface{}; callers that need a typed nested Map should
// read it with GetMap, which accepts both forms.
func Unpack(data []byte) (Map, error) {
	var raw map[string]interface{}
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("wire: unpack: %w", err)
	}
	return Map(raw), nil
}

// GetBytes returns the byte-string value for key, or ErrMissingOrWrongType.
func (m Map) GetBytes(key string) ([]byte, error) {
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingOrWrongType, key)
	}
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		// msgpack round-trips some byte slices as strings depending on
		// encoder options; accept both representations.
		return []byte(b), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrMissingOrWrongType, key)
	}
}

// GetLong returns the int64 value for key, or ErrMissingOrWrongType.
func (m Map) GetLong(key string) (int64, error) {
	v, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingOrWrongType, key)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrMissingOrWrongType, key)
	}
}

// GetString returns the string value for key, or ErrMissingOrWrongType.
func (m Map) GetString(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingOrWrongType, key)
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrMissingOrWrongType, key)
	}
}

// GetMap returns the nested Map value for key, or ErrMissingOrWrongType.
func (m Map) GetMap(key string) (Map, error) {
	v, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingOrWrongType, key)
	}
	switch nested := v.(type) {
	case Map:
		return nested, nil
	case map[string]interface{}:
		return Map(nested), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrMissingOrWrongType, key)
	}
}
