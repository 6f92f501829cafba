package runtime

import (
	"context"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	firstPause = 500 * time.Millisecond
	maxPause   = 20 * time.Second
)

// throttled reports responses the runtime sends when it is saturated or
// still starting: rate limited, or no worker free to take the run.
func throttled(code int) bool {
	return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
}

// pause is the wait before retry n (0-based). A Retry-After header wins;
// otherwise the wait doubles from firstPause with up to 25% added jitter.
// Both are capped at maxPause.
func pause(n int, retryAfter string, now time.Time) time.Duration {
	if d, ok := retryAfterDelay(retryAfter, now); ok {
		return min(d, maxPause)
	}
	d := maxPause
	if n < 16 {
		d = min(firstPause<<n, maxPause)
	}
	return min(d+time.Duration(rand.Int64N(int64(d)/4+1)), maxPause)
}

// retryAfterDelay reads either form of Retry-After: delay seconds or an HTTP date.
func retryAfterDelay(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second, true
	}
	at, err := http.ParseTime(v)
	if err != nil {
		return 0, false
	}
	return max(at.Sub(now), 0), true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
