// Package planner implements the Split-Size Planner (spec.md §4.7): it
// chooses source-partition granularity before the reader enumerates
// partitions, from table size, executor memory, and skew, with a
// conservative bounded fallback.
package planner

// Inputs are the planner's decision inputs (spec.md §4.7).
type Inputs struct {
	// TableSizeGiB is the estimated source table size, or nil if no
	// metadata source could supply it.
	TableSizeGiB *float64
	// ExecutorMemGiB is the configured executor memory budget.
	ExecutorMemGiB float64
	// SkewRatio is the estimated max-to-mean partition size ratio, or
	// nil if unknown (treated as 1.0).
	SkewRatio *float64
	// Override, if non-zero, short-circuits the whole decision
	// (spec.md §4.7 "An explicit override short-circuits...").
	Override int
	// Fallback is used when TableSizeGiB is nil (total metadata
	// failure).
	Fallback int
}

const (
	minSplitMB     = 128
	maxSplitMB     = 1024
	defaultSplitMB = 256
)

// SplitSizeMB decides the source-partition granularity in megabytes,
// following the decision table of spec.md §4.7, clamped to [128, 1024].
func SplitSizeMB(in Inputs) int {
	if in.Override != 0 {
		return clamp(in.Override)
	}

	if in.TableSizeGiB == nil {
		if in.Fallback != 0 {
			return clamp(in.Fallback)
		}
		return defaultSplitMB
	}

	skew := 1.0
	if in.SkewRatio != nil {
		skew = *in.SkewRatio
	}

	// Conservative override: very high skew always wins regardless of
	// size/memory, per the decision table's last row.
	if skew > 2.0 {
		return clamp(defaultSplitMB)
	}

	sizeGiB := *in.TableSizeGiB
	highMem := in.ExecutorMemGiB >= 8

	switch {
	case sizeGiB < 50:
		return clamp(defaultSplitMB)
	case sizeGiB <= 200:
		if highMem && skew < 1.5 {
			return clamp(512)
		}
		return clamp(defaultSplitMB)
	default: // > 200 GiB
		if !highMem {
			return clamp(defaultSplitMB)
		}
		switch {
		case skew < 1.2:
			return clamp(1024)
		case skew <= 1.5:
			return clamp(512)
		default:
			return clamp(defaultSplitMB)
		}
	}
}

func clamp(mb int) int {
	if mb < minSplitMB {
		return minSplitMB
	}
	if mb > maxSplitMB {
		return maxSplitMB
	}
	return mb
}
