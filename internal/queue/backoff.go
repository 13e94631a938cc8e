package queue

import (
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/semaphore"
)

// backoffDelay is the wait before the attempt following attempt n (1-based):
// base doubled per attempt, capped at max when max is positive.
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	b := retry.NewExponential(base)
	if max > 0 {
		b = retry.WithCappedDuration(max, b)
	}
	var d time.Duration
	for i := 0; i < attempt; i++ {
		next, stop := b.Next()
		if stop {
			break
		}
		d = next
	}
	return d
}

// keyedLimiter bounds concurrent holders per key.
type keyedLimiter struct {
	limit int64

	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

func newKeyedLimiter(limit int) *keyedLimiter {
	return &keyedLimiter{limit: int64(limit), sems: make(map[string]*semaphore.Weighted)}
}

// TryAcquire takes a slot for key without blocking. The returned func releases it.
func (k *keyedLimiter) TryAcquire(key string) (func(), bool) {
	if k.limit <= 0 || key == "" {
		return func() {}, true
	}
	k.mu.Lock()
	sem, ok := k.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(k.limit)
		k.sems[key] = sem
	}
	k.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, false
	}
	return func() { sem.Release(1) }, true
}
