package memorylimiter

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_SlidingWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	l := New(Limit{Limit: 2, Window: time.Minute})
	l.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if ok, err := l.Allow(ctx, "203.0.113.7"); err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := l.Allow(ctx, "203.0.113.7"); ok {
		t.Fatal("expected third request to be denied")
	}
	if ok, _ := l.Allow(ctx, "198.51.100.1"); !ok {
		t.Fatal("expected other key to have its own budget")
	}

	now = now.Add(61 * time.Second)
	if ok, _ := l.Allow(ctx, "203.0.113.7"); !ok {
		t.Fatal("expected window to slide")
	}

	now = now.Add(2 * time.Minute)
	l.Sweep()
	if len(l.buckets) != 0 {
		t.Fatalf("expected sweep to drop idle buckets, got %d", len(l.buckets))
	}
}

func TestLimiter_RequiresKey(t *testing.T) {
	l := New(Limit{})
	if _, err := l.Allow(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty key")
	}
	var nilLimiter *Limiter
	if ok, err := nilLimiter.Allow(context.Background(), "k"); !ok || err != nil {
		t.Fatal("nil limiter should allow")
	}
}
