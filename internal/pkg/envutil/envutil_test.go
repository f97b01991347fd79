package envutil

import (
	"testing"
	"time"
)

func TestIntFallsBackOnGarbage(t *testing.T) {
	t.Setenv("VIDRAG_TEST_INT", "abc")
	if got := Int("VIDRAG_TEST_INT", 7); got != 7 {
		t.Fatalf("Int: want=7 got=%d", got)
	}
	t.Setenv("VIDRAG_TEST_INT", " 12 ")
	if got := Int("VIDRAG_TEST_INT", 7); got != 12 {
		t.Fatalf("Int: want=12 got=%d", got)
	}
}

func TestSecondsAndBool(t *testing.T) {
	t.Setenv("VIDRAG_TEST_SECS", "0")
	if got := Seconds("VIDRAG_TEST_SECS", 3*time.Second); got != 3*time.Second {
		t.Fatalf("Seconds: want=3s got=%s", got)
	}
	t.Setenv("VIDRAG_TEST_SECS", "45")
	if got := Seconds("VIDRAG_TEST_SECS", 3*time.Second); got != 45*time.Second {
		t.Fatalf("Seconds: want=45s got=%s", got)
	}
	t.Setenv("VIDRAG_TEST_BOOL", "off")
	if Bool("VIDRAG_TEST_BOOL", true) {
		t.Fatalf("Bool: want=false")
	}
}
