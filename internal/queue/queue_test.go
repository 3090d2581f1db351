package queue

import "testing"

// TestRetryDelayFuncBackoff verifies the base·2^(attempts-1) schedule from
// spec §4.2, capped at 30s.
func TestRetryDelayFuncBackoff(t *testing.T) {
	cases := []struct {
		n    int
		want float64 // seconds
	}{
		{0, 2},
		{1, 4},
		{2, 8},
		{3, 16},
		{4, 30}, // 32s would exceed the cap
		{10, 30},
	}
	for _, c := range cases {
		got := RetryDelayFunc(c.n, nil, nil).Seconds()
		if got != c.want {
			t.Errorf("RetryDelayFunc(%d) = %vs, want %vs", c.n, got, c.want)
		}
	}
}
