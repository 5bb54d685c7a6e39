package chat

import (
	"testing"
	"time"
)

func TestLimiterAllowsBurstThenThrottles(t *testing.T) {
	l := NewLimiter(Config{MessagesPerSecond: 1, Burst: 3, CleanupInterval: time.Hour, StaleAfter: time.Hour})
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("client1") {
			t.Fatalf("expected burst message %d to be allowed", i)
		}
	}
	if l.Allow("client1") {
		t.Fatal("expected message beyond burst to be throttled")
	}
}

func TestLimiterTracksClientsIndependently(t *testing.T) {
	l := NewLimiter(Config{MessagesPerSecond: 1, Burst: 1, CleanupInterval: time.Hour, StaleAfter: time.Hour})
	defer l.Stop()

	if !l.Allow("client1") {
		t.Fatal("expected first message from client1 to be allowed")
	}
	if !l.Allow("client2") {
		t.Fatal("client2's bucket should be independent of client1's")
	}
}

func TestLimiterForgetResetsBucket(t *testing.T) {
	l := NewLimiter(Config{MessagesPerSecond: 1, Burst: 1, CleanupInterval: time.Hour, StaleAfter: time.Hour})
	defer l.Stop()

	l.Allow("client1")
	if l.Allow("client1") {
		t.Fatal("expected second message to be throttled before Forget")
	}
	l.Forget("client1")
	if !l.Allow("client1") {
		t.Fatal("expected a fresh bucket after Forget")
	}
}

func TestLimiterCleanupEvictsStaleEntries(t *testing.T) {
	l := NewLimiter(Config{MessagesPerSecond: 1, Burst: 1, CleanupInterval: 20 * time.Millisecond, StaleAfter: 10 * time.Millisecond})
	defer l.Stop()

	l.Allow("client1")
	time.Sleep(80 * time.Millisecond)

	l.mu.Lock()
	_, present := l.entries["client1"]
	l.mu.Unlock()
	if present {
		t.Fatal("expected stale client entry to be evicted by cleanup loop")
	}
}
