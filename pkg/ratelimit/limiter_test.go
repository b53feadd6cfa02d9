package ratelimit

import (
	"testing"
	"time"
)

func TestTokenBucket_Allow(t *testing.T) {
	// Capacity 5, refill rate 1 token/second
	tb := NewTokenBucket(5, 1.0)

	// Should allow 5 requests immediately (burst capacity)
	for i := 0; i < 5; i++ {
		if !tb.Allow() {
			t.Errorf("Request %d should be allowed", i+1)
		}
	}

	// 6th request should be denied (bucket empty)
	if tb.Allow() {
		t.Error("6th request should be denied")
	}

	// Wait 2 seconds for 2 tokens to refill
	time.Sleep(2 * time.Second)

	if !tb.Allow() {
		t.Error("Request after 2s should be allowed")
	}
	if !tb.Allow() {
		t.Error("2nd request after 2s should be allowed")
	}
	if tb.Allow() {
		t.Error("3rd request after 2s should be denied")
	}
}

func TestTokenBucket_Reset(t *testing.T) {
	tb := NewTokenBucket(3, 1.0)

	for i := 0; i < 3; i++ {
		tb.Allow()
	}
	if tb.Allow() {
		t.Error("Bucket should be empty")
	}

	tb.Reset()

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Errorf("Request %d should be allowed after reset", i+1)
		}
	}
}

func TestTokenBucket_Tokens(t *testing.T) {
	tb := NewTokenBucket(10, 1.0)

	if tokens := tb.Tokens(); tokens != 10.0 {
		t.Errorf("Expected 10 tokens, got %f", tokens)
	}

	tb.Allow()

	if tokens := tb.Tokens(); tokens != 9.0 {
		t.Errorf("Expected 9 tokens after one request, got %f", tokens)
	}
}

func TestKeyedLimiter_Allow(t *testing.T) {
	// 2 requests burst, 1 per second
	kl := NewKeyedLimiter(2, 1.0, 0)

	if !kl.Allow("acct-1") {
		t.Error("First request for acct-1 should be allowed")
	}
	if !kl.Allow("acct-1") {
		t.Error("Second request for acct-1 should be allowed")
	}
	if kl.Allow("acct-1") {
		t.Error("Third request for acct-1 should be denied")
	}

	// Separate bucket per key
	if !kl.Allow("acct-2") {
		t.Error("First request for acct-2 should be allowed")
	}
	if !kl.Allow("acct-2") {
		t.Error("Second request for acct-2 should be allowed")
	}

	time.Sleep(1100 * time.Millisecond)

	if !kl.Allow("acct-1") {
		t.Error("Request after 1s should be allowed")
	}
}

func TestKeyedLimiter_Reset(t *testing.T) {
	kl := NewKeyedLimiter(1, 1.0, 0)

	kl.Allow("acct-1")
	if kl.Allow("acct-1") {
		t.Error("Second request should be denied")
	}

	kl.Reset("acct-1")

	if !kl.Allow("acct-1") {
		t.Error("Request after reset should be allowed")
	}
}

func TestKeyedLimiter_Cleanup(t *testing.T) {
	kl := NewKeyedLimiter(5, 1.0, 200*time.Millisecond)

	kl.Allow("acct-1")

	kl.mu.RLock()
	n := len(kl.buckets)
	kl.mu.RUnlock()
	if n != 1 {
		t.Errorf("Expected 1 active bucket, got %d", n)
	}

	// Wait for cleanup (TTL + margin)
	time.Sleep(500 * time.Millisecond)

	kl.mu.RLock()
	n = len(kl.buckets)
	kl.mu.RUnlock()
	if n != 0 {
		t.Errorf("Expected 0 active buckets after cleanup, got %d", n)
	}
}

func TestKeyedLimiter_ConcurrentAccess(t *testing.T) {
	kl := NewKeyedLimiter(100, 100.0, 0)

	done := make(chan bool)
	numGoroutines := 10
	requestsPerGoroutine := 20

	for i := 0; i < numGoroutines; i++ {
		go func() {
			for j := 0; j < requestsPerGoroutine; j++ {
				kl.Allow("concurrent-test")
			}
			done <- true
		}()
	}

	for i := 0; i < numGoroutines; i++ {
		<-done
	}

	kl.mu.RLock()
	n := len(kl.buckets)
	kl.mu.RUnlock()
	if n != 1 {
		t.Errorf("Expected 1 active bucket, got %d", n)
	}
}

func BenchmarkTokenBucket_Allow(b *testing.B) {
	tb := NewTokenBucket(1000000, 1000000.0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tb.Allow()
	}
}

func BenchmarkKeyedLimiter_Allow(b *testing.B) {
	kl := NewKeyedLimiter(1000000, 1000000.0, 0)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		kl.Allow("benchmark-key")
	}
}
