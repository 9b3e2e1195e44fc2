package ratelimiter

import (
	"context"
	"testing"
	"time"
)

func TestHostLimiters_BurstThenBlocks(t *testing.T) {
	hl := New(1, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := hl.Wait(ctx, "example.com"); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := hl.Wait(ctx, "example.com"); err == nil {
		t.Fatal("third Wait should not be granted within 50ms at 1 req/s")
	}
}

func TestHostLimiters_HostsAreIndependent(t *testing.T) {
	hl := New(1, 1)
	ctx := context.Background()

	if err := hl.Wait(ctx, "a.example"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := hl.Wait(ctx, "b.example"); err != nil {
		t.Fatalf("other host should have its own bucket: %v", err)
	}
}

func TestUnlimited(t *testing.T) {
	hl := Unlimited()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 100; i++ {
		if err := hl.Wait(ctx, "localhost"); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
}
