// Row partitioning of an image across workers
package core

import (
	"fmt"
)

// Span is a half-open row interval [Lo, Hi).
type Span struct {
	Lo, Hi int
}

// Len returns the number of rows in the span, never negative.
func (s Span) Len() int {
	return max(0, s.Hi-s.Lo)
}

// Empty reports whether the span holds no rows.
func (s Span) Empty() bool {
	return s.Len() == 0
}

// Intersect returns the rows shared by both spans.
func (s Span) Intersect(o Span) Span {
	lo, hi := max(s.Lo, o.Lo), min(s.Hi, o.Hi)
	if hi < lo {
		hi = lo
	}
	return Span{Lo: lo, Hi: hi}
}

// Partition is the strict row range owned by one worker. Width is always the full image.
type Partition struct {
	Index int
	Start int
	End   int
}

// Span returns the partition as a row span.
func (p Partition) Span() Span {
	return Span{Lo: p.Start, Hi: p.End}
}

// Len returns the number of owned rows.
func (p Partition) Len() int {
	return p.End - p.Start
}

// Empty reports whether the worker owns no rows.
func (p Partition) Empty() bool {
	return p.Len() == 0
}

func (p Partition) String() string {
	return fmt.Sprintf("partition %d [%d, %d)", p.Index, p.Start, p.End)
}

// ChunkSize is ceil(height / n), the row count given to every worker but possibly the last.
func ChunkSize(height, n int) int {
	if height <= 0 || n <= 0 {
		panic(fmt.Sprintf("core: cannot partition height %d across %d workers", height, n))
	}
	return (height + n - 1) / n
}

// PartitionFor returns worker p's range. Trailing workers may receive an empty
// range when n does not divide height evenly.
func PartitionFor(height, n, p int) Partition {
	chunk := ChunkSize(height, n)
	if p < 0 || p >= n {
		panic(fmt.Sprintf("core: worker %d outside [0, %d)", p, n))
	}
	return Partition{
		Index: p,
		Start: min(height, p*chunk),
		End:   min(height, (p+1)*chunk),
	}
}

// Partitions returns the ranges of all n workers in index order.
func Partitions(height, n int) []Partition {
	ChunkSize(height, n) // panics on an empty image or worker count
	parts := make([]Partition, n)
	for p := range parts {
		parts[p] = PartitionFor(height, n, p)
	}
	return parts
}
