package driver

import (
	"context"
	"fmt"
	"strconv"
)

// AddDelta is the generic get/modify/store counter composition used by
// backends without a native atomic primitive. A missing entry reads as 0;
// the result is stored back without expiry as decimal ASCII, so native and
// composed counters interoperate on the same key.
//
// Not atomic across processes: two concurrent callers may both read the same
// base value and lose one delta. Backends offering true atomicity should be
// preferred when available.
func AddDelta(ctx context.Context, s DynamicStore, id, realm string, delta int64) (int64, error) {
	b, ok, err := s.Get(ctx, id, realm)
	if err != nil {
		return 0, err
	}

	var cur int64
	if ok && len(b) > 0 {
		cur, err = strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("driver: counter %q/%q holds non-numeric value: %w", realm, id, err)
		}
	}

	next := cur + delta
	if err := s.Store(ctx, id, []byte(strconv.FormatInt(next, 10)), realm, 0); err != nil {
		return 0, err
	}
	return next, nil
}
