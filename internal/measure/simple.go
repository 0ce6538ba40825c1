// Copyright (c) 2026 webpdtool authors
// Licensed under the PolyForm Noncommercial License 1.0.0

package measure

import (
	"context"
	"fmt"
	"time"

	"github.com/webpdtool/webpdtool/internal/measure/resolve"
	"github.com/webpdtool/webpdtool/internal/plan"
)

// measureWait pauses the session for wait_msec milliseconds and reports the
// waited duration. Cancellation cuts the pause short.
func measureWait(ctx context.Context, _ plan.TestItem, params resolve.Params) (any, error) {
	ms, ok := intParam(params, "wait_msec")
	if !ok {
		return nil, fmt.Errorf("missing required parameter: wait_msec")
	}
	if ms <= 0 {
		return nil, fmt.Errorf("wait_msec must be positive, got %d", ms)
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return ms, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// measureDummy is the no-hardware item used in plan bring-up. "value" is
// echoed back as the measurement, "sleep_ms" simulates work, and "fail"
// forces an error path.
func measureDummy(ctx context.Context, _ plan.TestItem, params resolve.Params) (any, error) {
	if fail, ok := params.Get("fail"); ok {
		if b, isBool := fail.(bool); isBool && b {
			return nil, fmt.Errorf("dummy item configured to fail")
		}
	}
	if ms, ok := intParam(params, "sleep_ms"); ok && ms > 0 {
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if v, ok := params.Get("value"); ok {
		return v, nil
	}
	return "OK", nil
}
