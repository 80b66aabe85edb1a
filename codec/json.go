package codec

import "encoding/json"

// JSON serializes values with encoding/json. Human-readable payloads at the
// cost of size; handy when cache rows are inspected directly in the store.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
