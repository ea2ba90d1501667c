package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndValid(t *testing.T) {
	first := NewAt(time.Unix(1_700_000_000, 0))
	second := NewAt(time.Unix(1_700_000_001, 0))
	if !(first < second) {
		t.Fatalf("expected %s < %s", first, second)
	}
	if !Valid(first) || !Valid(New()) {
		t.Fatalf("expected generated ids to be valid")
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "01HZZZZZZZZZZZZZZZZZZZZZZZ!", "not-a-ulid-not-a-ulid-1234"} {
		if Valid(in) {
			t.Fatalf("Valid(%q) = true, want false", in)
		}
	}
}
