package shape_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"prex/internal/schema"
	"prex/internal/shape"
)

func ptrTo(in *schema.Interner, pointee schema.TypeID, c shape.Constraint) shape.PtrShape[tags] {
	p := shape.PtrShape[tags]{Pointee: pointee, State: shape.PtrUnallocated}
	if c.Kind == 0 {
		return p
	}
	out, _ := shape.Expand(in, freshTag, c, p)
	return out
}

func TestExpandTable(t *testing.T) {
	in, ids := testSchema(t)
	i32 := ids["i32"]

	cases := []struct {
		name       string
		start      shape.PtrShape[tags]
		constraint shape.Constraint
		wantState  shape.PtrState
		wantExtent uint32
		redundancy shape.Redundancy
	}{
		{
			name:       "unallocated allocate",
			start:      ptrTo(in, i32, shape.Constraint{}),
			constraint: shape.Allocated(3),
			wantState:  shape.PtrAllocated,
			wantExtent: 3,
		},
		{
			name:       "unallocated initialize",
			start:      ptrTo(in, i32, shape.Constraint{}),
			constraint: shape.Initialized(2),
			wantState:  shape.PtrInitialized,
			wantExtent: 2,
		},
		{
			name:       "allocated grows",
			start:      ptrTo(in, i32, shape.Allocated(2)),
			constraint: shape.Allocated(5),
			wantState:  shape.PtrAllocated,
			wantExtent: 5,
		},
		{
			name:       "allocated shrink is redundant",
			start:      ptrTo(in, i32, shape.Allocated(5)),
			constraint: shape.Allocated(3),
			wantState:  shape.PtrAllocated,
			wantExtent: 5,
			redundancy: shape.AllocateAllocated,
		},
		{
			name:       "allocated equal is redundant",
			start:      ptrTo(in, i32, shape.Allocated(3)),
			constraint: shape.Allocated(3),
			wantState:  shape.PtrAllocated,
			wantExtent: 3,
			redundancy: shape.AllocateAllocated,
		},
		{
			name:       "allocated initialize covers both extents",
			start:      ptrTo(in, i32, shape.Allocated(4)),
			constraint: shape.Initialized(2),
			wantState:  shape.PtrInitialized,
			wantExtent: 4,
		},
		{
			name:       "allocated initialize beyond",
			start:      ptrTo(in, i32, shape.Allocated(2)),
			constraint: shape.Initialized(6),
			wantState:  shape.PtrInitialized,
			wantExtent: 6,
		},
		{
			name:       "initialized allocate within is redundant",
			start:      ptrTo(in, i32, shape.Initialized(4)),
			constraint: shape.Allocated(4),
			wantState:  shape.PtrInitialized,
			wantExtent: 4,
			redundancy: shape.AllocateInitialized,
		},
		{
			name:       "initialized allocate beyond initializes the tail",
			start:      ptrTo(in, i32, shape.Initialized(3)),
			constraint: shape.Allocated(5),
			wantState:  shape.PtrInitialized,
			wantExtent: 5,
		},
		{
			name:       "initialized initialize within is redundant",
			start:      ptrTo(in, i32, shape.Initialized(3)),
			constraint: shape.Initialized(2),
			wantState:  shape.PtrInitialized,
			wantExtent: 3,
			redundancy: shape.InitializeInitialized,
		},
		{
			name:       "initialized initialize beyond grows",
			start:      ptrTo(in, i32, shape.Initialized(2)),
			constraint: shape.Initialized(4),
			wantState:  shape.PtrInitialized,
			wantExtent: 4,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, red := shape.Expand(in, freshTag, tc.constraint, tc.start)
			if got.State != tc.wantState {
				t.Fatalf("state = %v, want %v", got.State, tc.wantState)
			}
			if got.Extent() != tc.wantExtent {
				t.Fatalf("extent = %d, want %d", got.Extent(), tc.wantExtent)
			}
			if red != tc.redundancy {
				t.Fatalf("redundancy = %v, want %v", red, tc.redundancy)
			}

			// Results never get weaker than the input.
			if got.State < tc.start.State {
				t.Fatalf("state went down the ladder: %v -> %v", tc.start.State, got.State)
			}
			if got.Extent() < tc.start.Extent() {
				t.Fatalf("extent shrank: %d -> %d", tc.start.Extent(), got.Extent())
			}

			// A redundant expansion leaves the belief untouched.
			if red != shape.RedundancyNone {
				if diff := cmp.Diff(tc.start, got); diff != "" {
					t.Fatalf("redundant expansion changed the belief (-before +after):\n%s", diff)
				}
			}
		})
	}
}

func TestExpandPreservesRefinedElements(t *testing.T) {
	in, ids := testSchema(t)

	// Three initialized elements, the first two carrying refinements.
	p := ptrTo(in, ids["i32"], shape.Initialized(3))
	p.Elems[0].Tag = tags{"nonzero"}
	p.Elems[1].Tag = tags{"aligned"}

	grown, red := shape.Expand(in, freshTag, shape.Allocated(5), p)
	if red != shape.RedundancyNone {
		t.Fatalf("growing allocation should not be redundant")
	}
	if grown.State != shape.PtrInitialized {
		t.Fatalf("growing an initialized region must keep it initialized, got %v", grown.State)
	}
	if len(grown.Elems) != 5 {
		t.Fatalf("extent = %d, want 5", len(grown.Elems))
	}
	if diff := cmp.Diff(p.Elems[:3], grown.Elems[:3]); diff != "" {
		t.Fatalf("existing elements changed (-old +new):\n%s", diff)
	}
	for i := 3; i < 5; i++ {
		if len(grown.Elems[i].Tag) != 0 {
			t.Fatalf("new element %d should be minimal, has tag %v", i, grown.Elems[i].Tag)
		}
	}

	// The input slice must not have been extended in place.
	if len(p.Elems) != 3 {
		t.Fatalf("input was modified")
	}
}

func TestExpandIsIdempotentOnSatisfiedConstraints(t *testing.T) {
	in, ids := testSchema(t)
	p := ptrTo(in, ids["i32"], shape.Initialized(3))

	again, red := shape.Expand(in, freshTag, shape.Initialized(3), p)
	if red != shape.InitializeInitialized {
		t.Fatalf("redundancy = %v, want initialize-initialized", red)
	}
	if diff := cmp.Diff(p, again); diff != "" {
		t.Fatalf("satisfied constraint changed the belief:\n%s", diff)
	}
}

func TestExpandNestedPointersStayMinimal(t *testing.T) {
	in, ids := testSchema(t)

	// Initializing a %node* materializes the node's own pointer field
	// as unallocated; expansion must not cascade.
	p := ptrTo(in, ids["node"], shape.Initialized(1))
	inner := p.Elems[0].Elems[1]
	if inner.Kind != schema.KindPtr || inner.Ptr.State != shape.PtrUnallocated {
		t.Fatalf("nested pointer should start unallocated, got %v", inner.Ptr.State)
	}
}
