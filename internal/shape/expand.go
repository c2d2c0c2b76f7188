package shape

import (
	"fmt"

	"fortio.org/safecast"

	"prex/internal/schema"
)

// ConstraintKind distinguishes the two pointer constraints.
type ConstraintKind uint8

const (
	// ConstraintAllocated demands backing memory for at least Count
	// elements.
	ConstraintAllocated ConstraintKind = iota + 1
	// ConstraintInitialized demands at least Count initialized elements.
	ConstraintInitialized
)

// Constraint asks a pointer belief to grow. Counts are lower bounds:
// "this pointer needs at least n elements", never "exactly n".
type Constraint struct {
	Kind  ConstraintKind
	Count uint32
}

// Allocated demands at least n elements of backing memory.
func Allocated(n uint32) Constraint {
	return Constraint{Kind: ConstraintAllocated, Count: n}
}

// Initialized demands at least n initialized elements.
func Initialized(n uint32) Constraint {
	return Constraint{Kind: ConstraintInitialized, Count: n}
}

func (c Constraint) String() string {
	switch c.Kind {
	case ConstraintAllocated:
		return fmt.Sprintf("allocated(%d)", c.Count)
	case ConstraintInitialized:
		return fmt.Sprintf("initialized(%d)", c.Count)
	default:
		return fmt.Sprintf("constraint(%d,%d)", c.Kind, c.Count)
	}
}

// Redundancy reports an expansion that could not strengthen the belief
// because the pointer already satisfied the constraint. Redundant
// expansions are not errors, but a refinement loop that only ever
// produces them is not making progress, and the driver watches for that.
type Redundancy uint8

const (
	RedundancyNone Redundancy = iota
	// AllocateAllocated re-allocated within the already claimed extent.
	AllocateAllocated
	// AllocateInitialized asked for allocation inside initialized memory.
	AllocateInitialized
	// InitializeInitialized re-initialized within the initialized extent.
	InitializeInitialized
)

func (r Redundancy) String() string {
	switch r {
	case RedundancyNone:
		return "none"
	case AllocateAllocated:
		return "allocate-allocated"
	case AllocateInitialized:
		return "allocate-initialized"
	case InitializeInitialized:
		return "initialize-initialized"
	default:
		return fmt.Sprintf("Redundancy(%d)", r)
	}
}

// Expand strengthens a pointer belief according to the constraint and
// reports whether the constraint was redundant. The result is never
// weaker than the input: states only move up the ladder unallocated ->
// allocated -> initialized and extents never shrink. Existing element
// shapes, tags included, are preserved; only newly exposed elements are
// materialized minimally. The input is not modified.
func Expand[T any](ts *schema.Interner, tag TagFunc[T], c Constraint, cur PtrShape[T]) (PtrShape[T], Redundancy) {
	switch cur.State {
	case PtrUnallocated:
		switch c.Kind {
		case ConstraintAllocated:
			return PtrShape[T]{Pointee: cur.Pointee, State: PtrAllocated, Count: c.Count}, RedundancyNone
		case ConstraintInitialized:
			return PtrShape[T]{Pointee: cur.Pointee, State: PtrInitialized, Elems: minimalElems(ts, tag, cur.Pointee, nil, c.Count)}, RedundancyNone
		}

	case PtrAllocated:
		switch c.Kind {
		case ConstraintAllocated:
			if c.Count > cur.Count {
				return PtrShape[T]{Pointee: cur.Pointee, State: PtrAllocated, Count: c.Count}, RedundancyNone
			}
			return cur, AllocateAllocated
		case ConstraintInitialized:
			// Initializing allocated memory initializes all of it, so
			// the result covers whichever extent is larger.
			n := max(cur.Count, c.Count)
			return PtrShape[T]{Pointee: cur.Pointee, State: PtrInitialized, Elems: minimalElems(ts, tag, cur.Pointee, nil, n)}, RedundancyNone
		}

	case PtrInitialized:
		have := extentOf(len(cur.Elems))
		switch c.Kind {
		case ConstraintAllocated:
			if c.Count <= have {
				return cur, AllocateInitialized
			}
			// Allocation that grows past the initialized extent keeps
			// the region uniform: the new tail is initialized too.
			return PtrShape[T]{Pointee: cur.Pointee, State: PtrInitialized, Elems: minimalElems(ts, tag, cur.Pointee, cur.Elems, c.Count)}, RedundancyNone
		case ConstraintInitialized:
			if c.Count <= have {
				return cur, InitializeInitialized
			}
			return PtrShape[T]{Pointee: cur.Pointee, State: PtrInitialized, Elems: minimalElems(ts, tag, cur.Pointee, cur.Elems, c.Count)}, RedundancyNone
		}
	}
	panic(fmt.Sprintf("shape: invalid expansion %v of %v", c, cur.State))
}

// minimalElems builds an element slice of length n that starts with the
// given prefix and continues with minimal shapes of the pointee type. The
// prefix slice is copied, not aliased.
func minimalElems[T any](ts *schema.Interner, tag TagFunc[T], pointee schema.TypeID, prefix []Shape[T], n uint32) []Shape[T] {
	count, err := safecast.Conv[int](n)
	if err != nil {
		panic(fmt.Errorf("shape: element count overflow: %w", err))
	}
	elems := make([]Shape[T], count)
	copied := copy(elems, prefix)
	for i := copied; i < count; i++ {
		elems[i] = Minimal(ts, pointee, tag)
	}
	return elems
}
