// Package shape models what the engine believes about runtime memory.
//
// A Shape mirrors a schema type node for node and carries a caller-chosen
// tag at every node; the engine instantiates the tag with the predicate
// set of the constraint store. Pointer nodes additionally carry a
// PtrShape: the three-state belief about the pointed-to allocation.
// Nothing is assumed until the analysis demands it, so the minimal shape
// of every pointer starts unallocated and only expansion moves it up the
// ladder unallocated -> allocated -> initialized.
//
// Shapes are persistent values. Seek never modifies its input and UpdateAt
// rebuilds the spine of the tree it changes, so older aggregates keep
// observing the tree they were built from.
package shape

import (
	"fmt"

	"fortio.org/safecast"

	"prex/internal/schema"
)

// PtrState is the engine's belief about one pointed-to allocation.
type PtrState uint8

const (
	// PtrUnallocated assumes nothing about the pointee.
	PtrUnallocated PtrState = iota
	// PtrAllocated claims at least Count elements of backing memory
	// exist, contents unknown.
	PtrAllocated
	// PtrInitialized claims the elements in Elems exist and hold values.
	PtrInitialized
)

func (s PtrState) String() string {
	switch s {
	case PtrUnallocated:
		return "unallocated"
	case PtrAllocated:
		return "allocated"
	case PtrInitialized:
		return "initialized"
	default:
		return fmt.Sprintf("PtrState(%d)", s)
	}
}

// Shape is one node of a memory belief tree. Kind and Type restate the
// schema node the shape mirrors; navigation re-checks them at every step
// instead of trusting the cursor. Ptr is set exactly when Kind is
// schema.KindPtr. Elems holds field shapes for structs and element
// shapes for arrays.
type Shape[T any] struct {
	Kind  schema.Kind
	Type  schema.TypeID
	Tag   T
	Ptr   *PtrShape[T]
	Elems []Shape[T]
}

// PtrShape is the belief about the allocation behind one pointer node.
// Count is meaningful only in the allocated state; Elems only in the
// initialized state. Pointee is the schema type of each element.
type PtrShape[T any] struct {
	Pointee schema.TypeID
	State   PtrState
	Count   uint32
	Elems   []Shape[T]
}

// Extent reports how many elements the pointer is known to have: the
// claimed count when allocated, the initialized length when initialized,
// zero otherwise.
func (p PtrShape[T]) Extent() uint32 {
	switch p.State {
	case PtrAllocated:
		return p.Count
	case PtrInitialized:
		n, err := safecast.Conv[uint32](len(p.Elems))
		if err != nil {
			panic(fmt.Errorf("shape: extent overflow: %w", err))
		}
		return n
	default:
		return 0
	}
}

// TagFunc produces the tag for a freshly materialized node of the given
// type.
type TagFunc[T any] func(schema.TypeID) T

const maxMinimalDepth = 256

// Minimal builds the least shape of a type: every pointer unallocated,
// every unbounded array empty, every tag fresh. Panics when typ or
// anything it reaches is not interned, or when a struct contains itself
// by value; both mean the schema itself is broken.
func Minimal[T any](ts *schema.Interner, typ schema.TypeID, tag TagFunc[T]) Shape[T] {
	return minimal(ts, typ, tag, 0)
}

func minimal[T any](ts *schema.Interner, typ schema.TypeID, tag TagFunc[T], depth int) Shape[T] {
	if depth > maxMinimalDepth {
		panic(fmt.Sprintf("shape: value-recursive type#%d has no minimal shape", typ))
	}
	t := ts.MustLookup(typ)
	s := Shape[T]{Kind: t.Kind, Type: typ, Tag: tag(typ)}
	switch t.Kind {
	case schema.KindInt, schema.KindFloat, schema.KindVoidFuncPtr, schema.KindNonVoidFuncPtr, schema.KindOpaquePtr:
		// leaves
	case schema.KindPtr:
		s.Ptr = &PtrShape[T]{Pointee: t.Elem, State: PtrUnallocated}
	case schema.KindArray:
		count, err := safecast.Conv[int](t.Count)
		if err != nil {
			panic(fmt.Errorf("shape: array length overflow: %w", err))
		}
		s.Elems = make([]Shape[T], count)
		for i := range s.Elems {
			s.Elems[i] = minimal(ts, t.Elem, tag, depth+1)
		}
	case schema.KindUnboundedArray:
		// Extent is not fixed by the type; starts empty.
	case schema.KindStruct:
		info, ok := ts.Struct(typ)
		if !ok {
			panic(fmt.Sprintf("shape: struct side table missing for type#%d", typ))
		}
		s.Elems = make([]Shape[T], len(info.Fields))
		for i, f := range info.Fields {
			s.Elems[i] = minimal(ts, f, tag, depth+1)
		}
	default:
		panic(fmt.Sprintf("shape: cannot materialize %s (type#%d)", t.Kind, typ))
	}
	return s
}

// Walk visits s and every shape below it in preorder, descending through
// initialized pointers. It stops early when visit returns false and
// reports whether the walk ran to completion.
func Walk[T any](s Shape[T], visit func(Shape[T]) bool) bool {
	if !visit(s) {
		return false
	}
	if s.Ptr != nil {
		for _, e := range s.Ptr.Elems {
			if !Walk(e, visit) {
				return false
			}
		}
	}
	for _, e := range s.Elems {
		if !Walk(e, visit) {
			return false
		}
	}
	return true
}
