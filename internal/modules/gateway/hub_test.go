package gateway

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRoomAccounting(t *testing.T) {
	h := NewHub(nil, zap.NewNop(), nil)

	h.registerClient(clientMeta{sid: "a", room: RoomPublic})
	h.registerClient(clientMeta{sid: "b", room: RoomPublic})
	h.registerClient(clientMeta{sid: "c", room: RoomAdmin})

	if got := h.ClientCount(RoomPublic); got != 2 {
		t.Errorf("public count = %d, want 2", got)
	}
	if got := h.ClientCount(""); got != 3 {
		t.Errorf("total count = %d, want 3", got)
	}

	// Re-registering the same sid in the same room must not double-count.
	h.registerClient(clientMeta{sid: "a", room: RoomPublic})
	if got := h.ClientCount(RoomPublic); got != 2 {
		t.Errorf("public count after re-register = %d, want 2", got)
	}

	h.unregisterClient(clientMeta{sid: "b", room: RoomPublic})
	h.unregisterClient(clientMeta{sid: "b", room: RoomPublic}) // unknown sid is a no-op
	if got := h.ClientCount(RoomPublic); got != 1 {
		t.Errorf("public count after unregister = %d, want 1", got)
	}
}

func TestClientEventThrottle(t *testing.T) {
	h := NewHub(nil, zap.NewNop(), nil)
	h.registerClient(clientMeta{sid: "a", room: RoomPublic})

	allowed := 0
	for i := 0; i < rippleBucketSize*2; i++ {
		if h.allowClientEvent("a") {
			allowed++
		}
	}
	if allowed != rippleBucketSize {
		t.Errorf("allowed %d events, want exactly the bucket size %d", allowed, rippleBucketSize)
	}

	if h.allowClientEvent("ghost") {
		t.Error("events from unregistered connections must be dropped")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	b := newTokenBucket(2, 100*time.Millisecond)
	now := time.Now()

	if !b.take(now) || !b.take(now) {
		t.Fatal("fresh bucket should grant its full size")
	}
	if b.take(now) {
		t.Fatal("empty bucket should deny")
	}

	if !b.take(now.Add(150 * time.Millisecond)) {
		t.Error("one period elapsed should refill one token")
	}
	if b.take(now.Add(150 * time.Millisecond)) {
		t.Error("only one token should have been refilled")
	}

	// Long idle never overfills past the bucket size.
	later := now.Add(time.Hour)
	grants := 0
	for b.take(later) {
		grants++
	}
	if grants != 2 {
		t.Errorf("after long idle got %d tokens, want bucket size 2", grants)
	}
}

func TestNormalizeToken(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"  ":               "",
		"secret":           "secret",
		"Bearer secret":    "secret",
		"bearer  secret  ": "secret",
	}
	for in, want := range cases {
		if got := normalizeToken(in); got != want {
			t.Errorf("normalizeToken(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFirstValueFromMultiMap(t *testing.T) {
	values := map[string][]string{
		"Authorization": {" Bearer abc "},
		"token":         {},
	}
	if got := firstValueFromMultiMap(values, "authorization"); got != "Bearer abc" {
		t.Errorf("got %q, want trimmed header value", got)
	}
	if got := firstValueFromMultiMap(values, "token"); got != "" {
		t.Errorf("empty value list should yield %q, got %q", "", got)
	}
	if got := firstValueFromMultiMap(nil, "anything"); got != "" {
		t.Errorf("nil map should yield empty, got %q", got)
	}
}
