package maps

import "testing"

func TestCloneNil(t *testing.T) {
	if got := Clone[string, string](nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestCloneEmpty(t *testing.T) {
	if got := Clone(map[string]string{}); got != nil {
		t.Fatalf("expected nil for empty map, got %v", got)
	}
}

func TestCloneIsolation(t *testing.T) {
	src := map[string]string{"X-Install": "abc", "X-Keep": "yes"}
	dst := Clone(src)
	dst["X-Mutated"] = "yes"
	if _, ok := src["X-Mutated"]; ok {
		t.Fatalf("mutation leaked to source")
	}
}
