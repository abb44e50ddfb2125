package capability

import "testing"

func TestRouterRouteAndFallback(t *testing.T) {
	r := NewRouter(map[string]string{"a": "backend-a"}, "a")

	got, err := r.Route("a")
	if err != nil || got != "backend-a" {
		t.Fatalf("Route(a) = %q, %v", got, err)
	}

	got, err = r.Route("missing")
	if err != nil || got != "backend-a" {
		t.Fatalf("Route(missing) should fall back to %q, got %q, %v", "backend-a", got, err)
	}
}

func TestRouterNoFallback(t *testing.T) {
	r := NewRouter[string](nil, "")
	if _, err := r.Route("anything"); err == nil {
		t.Fatal("Route with no backends and no fallback should error")
	}
}

func TestRouterRegisterHotSwap(t *testing.T) {
	r := NewRouter(map[string]string{"x": "v1"}, "x")
	if got, _ := r.Route("x"); got != "v1" {
		t.Fatalf("Route(x) = %q, want v1", got)
	}

	r.Register("x", "v2")
	if got, _ := r.Route("x"); got != "v2" {
		t.Fatalf("Route(x) after Register = %q, want v2", got)
	}
}

func TestRouterHasAndEngines(t *testing.T) {
	r := NewRouter(map[string]string{"a": "1", "b": "2"}, "a")
	if !r.Has("a") || !r.Has("b") || r.Has("c") {
		t.Fatalf("Has() gave wrong results")
	}
	engines := r.Engines()
	if len(engines) != 2 {
		t.Fatalf("Engines() = %v, want 2 entries", engines)
	}
}
