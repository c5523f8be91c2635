package memorystore

import (
	"context"
	"testing"
	"time"
)

func TestReceiptCache_ClaimOnce(t *testing.T) {
	c := NewReceiptCache(time.Hour)
	defer c.Close()
	ctx := context.Background()

	fresh, err := c.Claim(ctx, "fp-1")
	if err != nil || !fresh {
		t.Fatalf("first claim: fresh=%v err=%v", fresh, err)
	}
	fresh, err = c.Claim(ctx, "fp-1")
	if err != nil || fresh {
		t.Fatalf("second claim: fresh=%v err=%v", fresh, err)
	}
	if err := c.Release(ctx, "fp-1"); err != nil {
		t.Fatal(err)
	}
	if fresh, _ := c.Claim(ctx, "fp-1"); !fresh {
		t.Fatal("expected claim after release to be fresh")
	}
}

func TestReceiptCache_Expiry(t *testing.T) {
	c := NewReceiptCache(10 * time.Millisecond)
	defer c.Close()
	ctx := context.Background()

	_, _ = c.Claim(ctx, "fp-1")
	time.Sleep(20 * time.Millisecond)
	if fresh, _ := c.Claim(ctx, "fp-1"); !fresh {
		t.Fatal("expected expired entry to be claimable")
	}
	time.Sleep(20 * time.Millisecond)
	c.cleanup()
	if c.Len() != 0 {
		t.Fatalf("expected cleanup to drop expired entries, got %d", c.Len())
	}
}

func TestReceiptCache_CloseTwice(t *testing.T) {
	c := NewReceiptCache(0)
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}
