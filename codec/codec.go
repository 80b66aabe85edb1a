// Package codec turns cache values into the byte payloads the tier drivers
// store. The controller defaults to Msgpack[any]; callers with a fixed value
// type can plug in any Codec[V] instead.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
