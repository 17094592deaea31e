package ids

import (
	"testing"

	"github.com/google/uuid"
)

func TestSequenceIsDeterministic(t *testing.T) {
	sequence := NewSequence("vote")
	for _, expected := range []string{"vote-1", "vote-2", "vote-3"} {
		id, err := sequence.NewID()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != expected {
			t.Fatalf("expected %q, got %q", expected, id)
		}
	}
}

func TestUUIDProviderIssuesVersion7(t *testing.T) {
	id, err := NewUUIDProvider().NewID()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("expected a uuid, got %q: %v", id, err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}
