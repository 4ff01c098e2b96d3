package rate

import (
	"testing"
	"time"
)

func TestMemoryLimiterBlocksOverLimit(t *testing.T) {
	l := NewMemory(2, time.Minute)

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("ip:1.2.3.4"); !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	ok, retry := l.Allow("ip:1.2.3.4")
	if ok {
		t.Fatal("third request should be blocked")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("unexpected retry duration: %v", retry)
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	l := NewMemory(1, time.Minute)

	if ok, _ := l.Allow("ip:1.1.1.1"); !ok {
		t.Fatal("first key should be allowed")
	}
	if ok, _ := l.Allow("ip:2.2.2.2"); !ok {
		t.Fatal("second key should be allowed")
	}
	if ok, _ := l.Allow("ip:1.1.1.1"); ok {
		t.Fatal("first key should now be blocked")
	}
}

func TestMemoryLimiterWindowResets(t *testing.T) {
	l := NewMemory(1, 10*time.Millisecond)

	if ok, _ := l.Allow("k"); !ok {
		t.Fatal("first request should be allowed")
	}
	if ok, _ := l.Allow("k"); ok {
		t.Fatal("second request should be blocked")
	}
	time.Sleep(15 * time.Millisecond)
	if ok, _ := l.Allow("k"); !ok {
		t.Fatal("request after window reset should be allowed")
	}
}
