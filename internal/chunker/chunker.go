// Package chunker splits a day's hours into fixed generation chunks.
package chunker

const (
	DefaultSize  = 12
	DefaultHours = 24
)

// Options configures chunking behavior.
type Options struct {
	Size  int
	Hours int
}

// DefaultOptions returns two 12-hour chunks per day.
func DefaultOptions() Options {
	return Options{
		Size:  DefaultSize,
		Hours: DefaultHours,
	}
}

// Range is a half-open span of hours [Start, End).
type Range struct {
	Index int
	Start int
	End   int
}

// Last returns the final hour in r.
func (r Range) Last() int { return r.End - 1 }

// Contains reports whether hour falls inside r.
func (r Range) Contains(hour int) bool { return hour >= r.Start && hour < r.End }

// Chunk partitions [0, opts.Hours) into consecutive ranges of opts.Size hours.
// The final range is short when Size does not divide Hours.
func Chunk(opts Options) []Range {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.Hours <= 0 {
		opts.Hours = DefaultHours
	}

	var out []Range
	for start := 0; start < opts.Hours; start += opts.Size {
		end := start + opts.Size
		if end > opts.Hours {
			end = opts.Hours
		}
		out = append(out, Range{Index: len(out), Start: start, End: end})
	}
	return out
}

// Select returns the ranges that contain at least one of the given hours,
// narrowed to those hours. Used by fix passes that regenerate a subset.
func Select(ranges []Range, hours []int) [][]int {
	var out [][]int
	for _, r := range ranges {
		var picked []int
		for _, h := range hours {
			if r.Contains(h) {
				picked = append(picked, h)
			}
		}
		if len(picked) > 0 {
			out = append(out, picked)
		}
	}
	return out
}
