package events

import (
	"math/big"
	"testing"
)

func TestBufferFlushesInOrder(t *testing.T) {
	var buf Buffer
	buf.Emit(ProposalOpened{OrderID: "o1", Courier: "c1", Client: "b1"})
	buf.Emit(FeeSuggested{OrderID: "o1", Courier: "c1", Fee: big.NewInt(5)})
	buf.Emit(nil)
	if buf.Len() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", buf.Len())
	}

	rec := &Recorder{}
	buf.Flush(Fanout{rec, NoopEmitter{}, nil})
	types := rec.Types()
	if len(types) != 2 || types[0] != TypeProposalOpened || types[1] != TypeFeeSuggested {
		t.Fatalf("unexpected flushed events: %v", types)
	}
	if buf.Len() != 0 {
		t.Fatalf("buffer not cleared after flush")
	}

	buf.Emit(ProposalOpened{})
	buf.Reset()
	buf.Flush(rec)
	if len(rec.Events()) != 2 {
		t.Fatalf("reset buffer should not flush events")
	}
}

type untyped struct{}

func (untyped) EventType() string { return "custom" }

func TestCanonical(t *testing.T) {
	evt := Canonical(ProposalApproved{OrderID: "o1", Courier: "c1", Client: "b1", Amount: big.NewInt(20)})
	if evt.Type != TypeProposalApproved {
		t.Fatalf("unexpected type %s", evt.Type)
	}
	if evt.Attributes["amount"] != "20" || evt.Attributes["change"] != "0" {
		t.Fatalf("unexpected attributes: %v", evt.Attributes)
	}

	plain := Canonical(untyped{})
	if plain.Type != "custom" || len(plain.Attributes) != 0 {
		t.Fatalf("unexpected canonical form for untyped event: %+v", plain)
	}
	if Canonical(nil) != nil {
		t.Fatalf("expected nil for nil event")
	}
}

func TestCouriersClearedJoinsRemoved(t *testing.T) {
	evt := CouriersCleared{OrderID: "o1", Kept: "c3", Removed: []string{"c2", "c1"}}.Event()
	if evt.Attributes["removed"] != "c2,c1" {
		t.Fatalf("unexpected removed attribute %q", evt.Attributes["removed"])
	}
}
