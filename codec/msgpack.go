package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack serializes values using vmihailenco/msgpack/v5. The zero value is
// ready to use; it is the controller's default codec.
//
// Msgpack is compact and round-trips most Go types (primitives, exported
// struct fields, maps, slices). Use `msgpack:"name"` tags for explicit field
// control; functions and channels cannot be stored.
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}
func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
