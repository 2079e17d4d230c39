package types

import "testing"

func TestEventCloneIsIndependent(t *testing.T) {
	orig := &Event{Type: "escrow.locked", Attributes: map[string]string{"amount": "10"}}
	cp := orig.Clone()
	cp.Attributes["amount"] = "20"
	if orig.Attributes["amount"] != "10" {
		t.Fatalf("clone shares attributes with original")
	}
	if (*Event)(nil).Clone() != nil {
		t.Fatalf("nil clone should be nil")
	}
}
