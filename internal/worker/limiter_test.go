package worker

import (
	"testing"
	"time"
)

func TestLimiterBoundsStartsInWindow(t *testing.T) {
	limiter := newRateLimiter(2, time.Minute)
	now := time.Now()

	if !limiter.tryAcquire(now) || !limiter.tryAcquire(now) {
		t.Fatal("expected first two acquisitions to succeed")
	}
	if limiter.tryAcquire(now) {
		t.Fatal("expected third acquisition to fail")
	}
}

func TestLimiterWindowSlides(t *testing.T) {
	limiter := newRateLimiter(1, time.Minute)
	now := time.Now()

	if !limiter.tryAcquire(now) {
		t.Fatal("expected acquisition to succeed")
	}
	if limiter.tryAcquire(now.Add(30 * time.Second)) {
		t.Fatal("expected acquisition inside window to fail")
	}
	if !limiter.tryAcquire(now.Add(61 * time.Second)) {
		t.Fatal("expected acquisition after window to succeed")
	}
}

func TestLimiterRelease(t *testing.T) {
	limiter := newRateLimiter(1, time.Minute)
	now := time.Now()

	if !limiter.tryAcquire(now) {
		t.Fatal("expected acquisition to succeed")
	}
	limiter.release()
	if !limiter.tryAcquire(now) {
		t.Fatal("expected acquisition after release to succeed")
	}
}

func TestLimiterDisabledWhenMaxZero(t *testing.T) {
	limiter := newRateLimiter(0, time.Minute)
	for i := 0; i < 100; i++ {
		if !limiter.tryAcquire(time.Now()) {
			t.Fatal("expected unlimited acquisitions")
		}
	}
}
