package codec

import "fmt"

// Limit wraps another codec to cap the payload size accepted at Decode time.
// Encode is forwarded to Inner unchanged. MaxDecode <= 0 disables the cap.
//
// Useful when entries come back from a shared tier other processes also
// write to: an oversized payload is rejected before Inner ever sees it.
type Limit[V any] struct {
	// Inner is the wrapped codec. It must be set.
	Inner Codec[V]
	// MaxDecode is the maximum permitted payload length in bytes.
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }
func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
