package download

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"
)

func TestTokenBucket_UnlimitedNeverBlocks(t *testing.T) {
	b := newTokenBucket(0)
	start := time.Now()
	if err := b.take(context.Background(), 8*1024*1024); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("unlimited bucket should not block, took %v", elapsed)
	}
}

func TestTokenBucket_MinimumBurst(t *testing.T) {
	b := newTokenBucket(100)
	if b.capacity != 64*1024 {
		t.Errorf("capacity = %d, want %d", b.capacity, 64*1024)
	}
	b = newTokenBucket(1 << 20)
	if b.capacity != 1<<20 {
		t.Errorf("capacity = %d, want %d", b.capacity, 1<<20)
	}
}

func TestTokenBucket_ContextCancellation(t *testing.T) {
	b := newTokenBucket(100)
	_ = b.take(context.Background(), int(b.capacity))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// 100 B/s cannot refill 1000 bytes within 50ms
	if err := b.take(ctx, 1000); err == nil {
		t.Fatal("expected context error")
	}
}

func TestTokenBucket_Refill(t *testing.T) {
	b := newTokenBucket(10000)
	_ = b.take(context.Background(), int(b.capacity))

	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	if err := b.take(context.Background(), 1000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("expected refilled tokens to be available, waited %v", elapsed)
	}
}

func TestThrottle_ZeroRateIsPassthrough(t *testing.T) {
	src := bytes.NewReader([]byte("toolchain"))
	if r := throttle(context.Background(), src, 0); r != io.Reader(src) {
		t.Error("expected the original reader for an unlimited rate")
	}
}

func TestThrottle_DeliversAllBytes(t *testing.T) {
	data := bytes.Repeat([]byte("z"), 100*1024)
	r := throttle(context.Background(), bytes.NewReader(data), 1<<20)

	if _, ok := r.(*limitedReader); !ok {
		t.Fatalf("expected a limitedReader, got %T", r)
	}

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Errorf("got %d bytes, want %d", len(out), len(data))
	}
}

func TestLimitedReader_CapsChunkSize(t *testing.T) {
	data := bytes.Repeat([]byte("c"), 3*maxChunk)
	r := throttle(context.Background(), bytes.NewReader(data), 10<<20)

	buf := make([]byte, len(data))
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != maxChunk {
		t.Errorf("read %d bytes, want %d", n, maxChunk)
	}
}
