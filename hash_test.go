package sim

import "testing"

func TestHasherDeterministic(t *testing.T) {
	h1 := NewHasher(0).Fold(1).Fold(2).Fold(3).Sum()
	h2 := NewHasher(0).Fold(1).Fold(2).Fold(3).Sum()
	if h1 != h2 {
		t.Fatalf("identical fold sequences produced different sums: %d vs %d", h1, h2)
	}
}

func TestHasherOrderSensitive(t *testing.T) {
	a := NewHasher(0).Fold(1).Fold(2).Sum()
	b := NewHasher(0).Fold(2).Fold(1).Sum()
	if a == b {
		t.Fatalf("fold order did not affect the sum")
	}
}

func TestHasherEmptyIsStable(t *testing.T) {
	if NewHasher(0).Sum() != NewHasher(0).Sum() {
		t.Fatalf("empty hasher sum is not stable")
	}
}

func TestXXHash32CombineDeterministic(t *testing.T) {
	a := xxhash32Combine(0x12345678, 7)
	b := xxhash32Combine(0x12345678, 7)
	if a != b {
		t.Fatalf("xxhash32Combine not deterministic: %d vs %d", a, b)
	}
	if xxhash32Combine(0x12345678, 7) == xxhash32Combine(0x12345678, 8) {
		t.Fatalf("different values collided under combine")
	}
}
