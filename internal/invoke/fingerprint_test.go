package invoke

import "testing"

func TestFingerprint_KeyOrderIndependent(t *testing.T) {
	a := Fingerprint("search", map[string]any{"query": "cats", "limit": int64(5)})
	b := Fingerprint("search", map[string]any{"limit": int64(5), "query": "cats"})
	if a != b {
		t.Fatal("fingerprint must not depend on map key order")
	}
}

func TestFingerprint_NumberFormatIndependent(t *testing.T) {
	a := Fingerprint("calc", map[string]any{"n": int64(5)})
	b := Fingerprint("calc", map[string]any{"n": float64(5)})
	c := Fingerprint("calc", map[string]any{"n": 5})
	if a != b || b != c {
		t.Fatalf("5, 5.0 and int64(5) must fingerprint identically: %s %s %s", a, b, c)
	}
}

func TestFingerprint_DistinguishesNameAndArgs(t *testing.T) {
	base := Fingerprint("search", map[string]any{"query": "cats"})
	if base == Fingerprint("fetch", map[string]any{"query": "cats"}) {
		t.Fatal("different names must fingerprint differently")
	}
	if base == Fingerprint("search", map[string]any{"query": "dogs"}) {
		t.Fatal("different argument values must fingerprint differently")
	}
	if base == Fingerprint("search", map[string]any{}) {
		t.Fatal("missing arguments must fingerprint differently")
	}
}

func TestFingerprint_NestedStructures(t *testing.T) {
	a := Fingerprint("t", map[string]any{
		"opts": map[string]any{"x": int64(1), "y": "z"},
		"list": []any{int64(1), "two", true, nil},
	})
	b := Fingerprint("t", map[string]any{
		"list": []any{float64(1), "two", true, nil},
		"opts": map[string]any{"y": "z", "x": float64(1)},
	})
	if a != b {
		t.Fatal("nested canonicalization must normalize key order and number formats")
	}
	c := Fingerprint("t", map[string]any{
		"opts": map[string]any{"x": int64(1), "y": "z"},
		"list": []any{"two", int64(1), true, nil},
	})
	if a == c {
		t.Fatal("array element order is significant")
	}
}

func TestFingerprint_StringVersusNumber(t *testing.T) {
	if Fingerprint("t", map[string]any{"n": "5"}) == Fingerprint("t", map[string]any{"n": int64(5)}) {
		t.Fatal("string \"5\" and number 5 are distinct argument values")
	}
}
