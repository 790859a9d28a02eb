package download

import (
	"context"
	"io"
	"sync"
	"time"
)

// maxChunk bounds a single throttled read so tokens are never held for long
const maxChunk = 32 * 1024

// tokenBucket limits throughput to a number of bytes per second
type tokenBucket struct {
	rate     int64
	tokens   int64
	capacity int64
	refilled time.Time
	mu       sync.Mutex
}

// newTokenBucket returns a bucket refilled at rate bytes per second.
// The burst is one second of traffic, and never less than 64KB.
func newTokenBucket(rate int64) *tokenBucket {
	capacity := rate
	if capacity < 64*1024 {
		capacity = 64 * 1024
	}
	return &tokenBucket{
		rate:     rate,
		tokens:   capacity,
		capacity: capacity,
		refilled: time.Now(),
	}
}

// take blocks until n tokens are available or ctx is done.
// A bucket with a non-positive rate never blocks.
func (b *tokenBucket) take(ctx context.Context, n int) error {
	if b.rate <= 0 {
		return nil
	}

	for {
		b.mu.Lock()
		now := time.Now()
		if gained := int64(now.Sub(b.refilled).Seconds() * float64(b.rate)); gained > 0 {
			b.tokens += gained
			if b.tokens > b.capacity {
				b.tokens = b.capacity
			}
			b.refilled = now
		}

		need := int64(n)
		if b.tokens >= need {
			b.tokens -= need
			b.mu.Unlock()
			return nil
		}

		wait := time.Duration(float64(need-b.tokens) / float64(b.rate) * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// limitedReader paces reads from r through a token bucket
type limitedReader struct {
	ctx    context.Context
	r      io.Reader
	bucket *tokenBucket
}

// throttle wraps r so it delivers at most rate bytes per second.
// A non-positive rate returns r unchanged.
func throttle(ctx context.Context, r io.Reader, rate int64) io.Reader {
	if rate <= 0 {
		return r
	}
	return &limitedReader{ctx: ctx, r: r, bucket: newTokenBucket(rate)}
}

// Read implements io.Reader
func (lr *limitedReader) Read(p []byte) (int, error) {
	if len(p) > maxChunk {
		p = p[:maxChunk]
	}

	n, err := lr.r.Read(p)
	if n > 0 {
		if waitErr := lr.bucket.take(lr.ctx, n); waitErr != nil {
			return n, waitErr
		}
	}
	return n, err
}
