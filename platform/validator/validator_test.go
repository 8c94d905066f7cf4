package validator

import "testing"

func TestProviderIDRule(t *testing.T) {
	val := New()
	valid := []string{"17841400000000", "page_123", "m-abc:def.1"}
	for _, id := range valid {
		if err := val.Var(id, "providerid"); err != nil {
			t.Fatalf("expected %q to be valid, got %v", id, err)
		}
	}
	invalid := []string{"", "has space", "semi;colon"}
	for _, id := range invalid {
		if err := val.Var(id, "providerid"); err == nil {
			t.Fatalf("expected %q to be rejected", id)
		}
	}
}
