package cache

import (
	"testing"
	"time"
)

// TestLocalTier_LRUEviction is scenario S3: capacity 3, insert k1,k2,k3,
// access k1, insert k4 -> k1,k3,k4 present, k2 absent.
func TestLocalTier_LRUEviction(t *testing.T) {
	tier := newLocalTier(3)

	tier.set("k1", []byte("v1"), time.Hour)
	tier.set("k2", []byte("v2"), time.Hour)
	tier.set("k3", []byte("v3"), time.Hour)

	if _, ok := tier.get("k1"); !ok {
		t.Fatal("expected k1 present before eviction")
	}

	tier.set("k4", []byte("v4"), time.Hour)

	if _, ok := tier.get("k1"); !ok {
		t.Error("expected k1 to survive (recently accessed)")
	}
	if _, ok := tier.get("k2"); ok {
		t.Error("expected k2 evicted (least recently used)")
	}
	if _, ok := tier.get("k3"); !ok {
		t.Error("expected k3 present")
	}
	if _, ok := tier.get("k4"); !ok {
		t.Error("expected k4 present")
	}
}

func TestLocalTier_UpdatingExistingKeyDoesNotEvict(t *testing.T) {
	tier := newLocalTier(2)
	tier.set("k1", []byte("v1"), time.Hour)
	tier.set("k2", []byte("v2"), time.Hour)
	tier.set("k1", []byte("v1-updated"), time.Hour)

	if _, ok := tier.get("k2"); !ok {
		t.Error("expected k2 to survive an update to an existing key")
	}
}

// TestLocalTier_TTLExpiry is invariant 6: get(k) called strictly after
// set(k,_,ttl)+ttl returns null and the entry is no longer counted in size.
func TestLocalTier_TTLExpiry(t *testing.T) {
	tier := newLocalTier(10)
	tier.set("k", []byte("v"), 10*time.Millisecond)

	if _, ok := tier.get("k"); !ok {
		t.Fatal("expected immediate read to hit")
	}

	time.Sleep(20 * time.Millisecond)

	if _, ok := tier.get("k"); ok {
		t.Error("expected expired entry to miss")
	}
	if n := tier.size(); n != 0 {
		t.Errorf("expected size 0 after expiry, got %d", n)
	}
}

func TestLocalTier_ZeroTTLExpiresImmediately(t *testing.T) {
	tier := newLocalTier(10)
	tier.set("k", []byte("v"), 0)
	time.Sleep(time.Millisecond)
	if _, ok := tier.get("k"); ok {
		t.Error("expected zero-TTL entry to miss on next read")
	}
}

func TestLocalTier_DeletePattern(t *testing.T) {
	tier := newLocalTier(10)
	tier.set("user:1:profile", []byte("v"), time.Hour)
	tier.set("user:1:settings", []byte("v"), time.Hour)
	tier.set("org:1:profile", []byte("v"), time.Hour)

	n := tier.deletePattern("user:1:*")
	if n != 2 {
		t.Errorf("expected 2 removed, got %d", n)
	}
	if _, ok := tier.get("org:1:profile"); !ok {
		t.Error("expected unrelated key to survive pattern delete")
	}
}
