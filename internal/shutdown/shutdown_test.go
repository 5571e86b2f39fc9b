package shutdown

import "testing"

func TestShutdownIdempotence(t *testing.T) {
	r := New()
	calls := 0
	r.Register("crypto", func() { calls++ })

	r.CallAll()
	r.CallAll()

	if calls != 1 {
		t.Fatalf("expected hook invoked exactly once across two CallAll, got %d", calls)
	}
}

func TestRegisterFirstWriterWins(t *testing.T) {
	r := New()
	first := 0
	second := 0
	if !r.Register("x", func() { first++ }) {
		t.Fatal("first registration should succeed")
	}
	if r.Register("x", func() { second++ }) {
		t.Fatal("second registration of the same name must be rejected")
	}
	r.CallAll()
	if first != 1 || second != 0 {
		t.Fatalf("expected only the first-registered hook to run, got first=%d second=%d", first, second)
	}
}

func TestCallAllOrderIndependentHooksEachOnce(t *testing.T) {
	r := New()
	var order []string
	r.Register("a", func() { order = append(order, "a") })
	r.Register("b", func() { order = append(order, "b") })
	r.CallAll()
	if len(order) != 2 {
		t.Fatalf("expected both hooks to run, got %v", order)
	}
}
