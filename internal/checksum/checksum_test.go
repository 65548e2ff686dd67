package checksum

import "testing"

func TestSum_Stable(t *testing.T) {
	if Sum([]byte("x")) != Sum([]byte("x")) {
		t.Fatal("digest not stable")
	}
	if len(Sum(nil)) != 64 {
		t.Errorf("digest length = %d, want 64", len(Sum(nil)))
	}
}

func TestFields_NoBoundaryCollision(t *testing.T) {
	if Fields("ab", "c") == Fields("a", "bc") {
		t.Error("field boundaries collide")
	}
}
