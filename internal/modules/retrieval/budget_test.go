package retrieval

import "testing"

func TestPerVideoK(t *testing.T) {
	want := map[int]int{1: 10, 2: 5, 3: 5, 4: 4, 5: 3, 6: 3, 10: 3, 50: 3}
	for n, k := range want {
		if got := PerVideoK(n); got != k {
			t.Fatalf("k(%d): want=%d got=%d", n, k, got)
		}
	}
	for n := 2; n <= 200; n++ {
		if k := PerVideoK(n); k < 3 || k > 5 {
			t.Fatalf("k(%d)=%d outside [3,5]", n, k)
		}
	}
}
