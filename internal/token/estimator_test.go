package token

import (
	"strings"
	"testing"
)

func TestEstimator_Count(t *testing.T) {
	est, err := NewEstimator()
	if err != nil {
		t.Fatal(err)
	}
	if n := est.Count(""); n != 0 {
		t.Errorf("empty text: got %d tokens", n)
	}
	if n := est.Count("hello world"); n <= 0 {
		t.Errorf("expected positive count, got %d", n)
	}
	// Deterministic
	a := est.Count("the quick brown fox")
	b := est.Count("the quick brown fox")
	if a != b {
		t.Errorf("count not deterministic: %d vs %d", a, b)
	}
	// Monotonic with length
	short := est.Count("one two three")
	long := est.Count("one two three " + strings.Repeat("four five ", 50))
	if long <= short {
		t.Errorf("expected longer text to count more tokens: %d vs %d", short, long)
	}
}

func TestEstimator_Truncate(t *testing.T) {
	est, err := NewEstimator()
	if err != nil {
		t.Fatal(err)
	}
	s := "short text"
	if got := est.Truncate(s, 100); got != s {
		t.Errorf("under-limit text should be unchanged, got %q", got)
	}
	long := strings.Repeat("many words in a row ", 100)
	cut := est.Truncate(long, 10)
	if est.Count(cut) > 10 {
		t.Errorf("truncated text counts %d tokens, want <= 10", est.Count(cut))
	}
	if !strings.HasPrefix(long, cut) {
		t.Error("truncation should keep a prefix of the original text")
	}
}
