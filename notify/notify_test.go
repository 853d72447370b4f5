package notify

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewStampsID(t *testing.T) {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	n := New(KindInfo, "Profiles refreshed", at)
	id, err := ulid.ParseStrict(n.ID)
	if err != nil {
		t.Fatalf("ID %q is not a ULID: %v", n.ID, err)
	}
	if !ulid.Time(id.Time()).Equal(at) {
		t.Fatalf("ID stamped at %v", ulid.Time(id.Time()))
	}
	if !n.CreatedAt.Equal(at) {
		t.Fatalf("Created at %v", n.CreatedAt)
	}
}

func TestNewWithUnrepresentableTime(t *testing.T) {
	times := map[string]time.Time{
		"zero":     {},
		"pre-1970": time.Date(1969, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	for name, at := range times {
		n := New(KindError, "User not found", at)
		if _, err := ulid.ParseStrict(n.ID); err != nil {
			t.Fatalf("%s: ID %q is not a ULID: %v", name, n.ID, err)
		}
	}
	a, b := New(KindInfo, "a", time.Time{}), New(KindInfo, "b", time.Time{})
	if a.ID == b.ID {
		t.Fatalf("IDs collide: %s", a.ID)
	}
}
