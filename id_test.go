package sentinel

import (
	"testing"
	"time"
)

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestNewIDFormat(t *testing.T) {
	id := NewID()
	// UUID string form: 8-4-4-4-12.
	if len(id) != 36 {
		t.Errorf("len = %d, want 36", len(id))
	}
	// UUIDv7 carries the version nibble at position 14.
	if id[14] != '7' {
		t.Errorf("version nibble = %c, want 7", id[14])
	}
}

func TestNewIDTimeSortable(t *testing.T) {
	a := NewID()
	time.Sleep(2 * time.Millisecond)
	b := NewID()
	if !(a < b) {
		t.Errorf("ids not time-ordered: %q then %q", a, b)
	}
}

func TestNowUnix(t *testing.T) {
	before := time.Now().Unix()
	got := NowUnix()
	after := time.Now().Unix()
	if got < before || got > after {
		t.Errorf("NowUnix = %d outside [%d, %d]", got, before, after)
	}
}
