package planner

import "testing"

func gib(v float64) *float64 { return &v }

func TestSplitSizeDecisionTable(t *testing.T) {
	cases := []struct {
		name string
		in   Inputs
		want int
	}{
		{"override short-circuits", Inputs{Override: 777, TableSizeGiB: gib(10)}, 777},
		{"override within bounds", Inputs{Override: 500}, 500},
		{"small table any mem", Inputs{TableSizeGiB: gib(10), ExecutorMemGiB: 16}, 256},
		{"mid table low mem", Inputs{TableSizeGiB: gib(100), ExecutorMemGiB: 4}, 256},
		{"mid table high mem low skew", Inputs{TableSizeGiB: gib(100), ExecutorMemGiB: 16, SkewRatio: gib(1.0)}, 512},
		{"mid table high mem high skew", Inputs{TableSizeGiB: gib(100), ExecutorMemGiB: 16, SkewRatio: gib(1.6)}, 256},
		{"large table low mem", Inputs{TableSizeGiB: gib(500), ExecutorMemGiB: 4}, 256},
		{"large table high mem low skew", Inputs{TableSizeGiB: gib(500), ExecutorMemGiB: 16, SkewRatio: gib(1.0)}, 1024},
		{"large table high mem mid skew", Inputs{TableSizeGiB: gib(500), ExecutorMemGiB: 16, SkewRatio: gib(1.3)}, 512},
		{"large table high mem high skew", Inputs{TableSizeGiB: gib(500), ExecutorMemGiB: 16, SkewRatio: gib(1.6)}, 256},
		{"conservative on extreme skew", Inputs{TableSizeGiB: gib(500), ExecutorMemGiB: 16, SkewRatio: gib(3.0)}, 256},
		{"total metadata failure", Inputs{}, 256},
		{"metadata failure with fallback", Inputs{Fallback: 128}, 128},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := SplitSizeMB(c.in)
			if got != c.want {
				t.Fatalf("SplitSizeMB(%+v) = %d, want %d", c.in, got, c.want)
			}
		})
	}
}

func TestClampBounds(t *testing.T) {
	if got := SplitSizeMB(Inputs{Override: 10}); got != 128 {
		t.Fatalf("expected clamp to 128, got %d", got)
	}
	if got := SplitSizeMB(Inputs{Override: 5000}); got != 1024 {
		t.Fatalf("expected clamp to 1024, got %d", got)
	}
}
