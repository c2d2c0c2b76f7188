// Package cursor provides paths into typed memory. A cursor starts at the
// type of a top-level region (an argument, a global, a skipped call's
// return value) and walks inward step by step: dereference a pointer into
// one element of its allocation, select a struct field, index into an
// array. Cursors are produced by the fact classifier and consumed by the
// constraint store, which replays them over both the type schema and the
// shape trees.
package cursor

import (
	"fmt"
	"slices"
	"strings"

	"fortio.org/safecast"

	"prex/internal/schema"
)

// StepKind enumerates the navigation steps.
type StepKind uint8

const (
	StepDeref StepKind = iota + 1
	StepField
	StepIndex
)

func (k StepKind) String() string {
	switch k {
	case StepDeref:
		return "deref"
	case StepField:
		return "field"
	case StepIndex:
		return "index"
	default:
		return fmt.Sprintf("StepKind(%d)", k)
	}
}

// Step is one navigation move. For StepDeref, Index selects which element
// of the pointed-to allocation to land on; a plain dereference is element
// zero. For StepField and StepIndex it is the field or array index.
type Step struct {
	Kind  StepKind
	Index uint32
}

// Deref lands on the first element behind a pointer.
func Deref() Step {
	return Step{Kind: StepDeref}
}

// DerefElem lands on element i behind a pointer.
func DerefElem(i uint32) Step {
	return Step{Kind: StepDeref, Index: i}
}

// Field selects struct field i.
func Field(i uint32) Step {
	return Step{Kind: StepField, Index: i}
}

// Index selects array element i.
func Index(i uint32) Step {
	return Step{Kind: StepIndex, Index: i}
}

func (s Step) String() string {
	switch s.Kind {
	case StepDeref:
		return fmt.Sprintf("*%d", s.Index)
	case StepField:
		return fmt.Sprintf(".%d", s.Index)
	case StepIndex:
		return fmt.Sprintf("[%d]", s.Index)
	default:
		return fmt.Sprintf("?%d", s.Index)
	}
}

// Cursor is a path from a root type into one of its sub-regions. The zero
// cursor is not valid; build cursors with New.
type Cursor struct {
	root  schema.TypeID
	steps []Step
}

// New builds a cursor rooted at the given type. The step slice is copied.
func New(root schema.TypeID, steps ...Step) Cursor {
	return Cursor{root: root, steps: slices.Clone(steps)}
}

// Root returns the type the cursor starts from.
func (c Cursor) Root() schema.TypeID {
	return c.root
}

// Steps returns the navigation steps. Callers must not modify the slice.
func (c Cursor) Steps() []Step {
	return c.steps
}

// Len reports the number of steps.
func (c Cursor) Len() int {
	return len(c.steps)
}

func (c Cursor) String() string {
	if len(c.steps) == 0 {
		return "."
	}
	var b strings.Builder
	for _, s := range c.steps {
		b.WriteString(s.String())
	}
	return b.String()
}

// SeekType replays the cursor over the type schema and returns the type of
// the region it lands on. The walk is purely type-level: it checks that
// every step matches the type it is applied to, but knows nothing about
// what has actually been allocated.
func (c Cursor) SeekType(ts *schema.Interner) (schema.TypeID, error) {
	cur := c.root
	for depth, step := range c.steps {
		t, ok := ts.Lookup(cur)
		if !ok {
			return schema.NoTypeID, &Error{Kind: ErrUnknownType, Depth: depth, Step: step, Type: cur}
		}
		switch step.Kind {
		case StepDeref:
			if t.Kind != schema.KindPtr {
				return schema.NoTypeID, &Error{Kind: ErrDerefNonPointer, Depth: depth, Step: step, Type: cur}
			}
			cur = t.Elem
		case StepField:
			if t.Kind != schema.KindStruct {
				return schema.NoTypeID, &Error{Kind: ErrFieldNonStruct, Depth: depth, Step: step, Type: cur}
			}
			ft, ok := ts.FieldType(cur, step.Index)
			if !ok {
				limit, err := fieldLimit(ts, cur)
				if err != nil {
					return schema.NoTypeID, err
				}
				return schema.NoTypeID, &Error{Kind: ErrFieldOutOfRange, Depth: depth, Step: step, Type: cur, Limit: limit}
			}
			cur = ft
		case StepIndex:
			switch t.Kind {
			case schema.KindArray:
				if step.Index >= t.Count {
					return schema.NoTypeID, &Error{Kind: ErrIndexOutOfRange, Depth: depth, Step: step, Type: cur, Limit: t.Count}
				}
				cur = t.Elem
			case schema.KindUnboundedArray:
				// No type-level bound; the shape walk enforces the
				// current extent.
				cur = t.Elem
			default:
				return schema.NoTypeID, &Error{Kind: ErrIndexNonArray, Depth: depth, Step: step, Type: cur}
			}
		default:
			return schema.NoTypeID, &Error{Kind: ErrInvalidStep, Depth: depth, Step: step, Type: cur}
		}
	}
	return cur, nil
}

func fieldLimit(ts *schema.Interner, id schema.TypeID) (uint32, error) {
	limit, err := safecast.Conv[uint32](ts.NumFields(id))
	if err != nil {
		return 0, fmt.Errorf("cursor: field count overflow: %w", err)
	}
	return limit, nil
}

// CheckCompatibility rebinds the cursor to a concrete root type and
// verifies every step still applies. Constraints are minted against
// declared types; by the time they are applied the engine may know a more
// concrete type for the same region, and the rebound cursor is the one
// that must be replayed over it.
func (c Cursor) CheckCompatibility(ts *schema.Interner, concrete schema.TypeID) (Cursor, error) {
	rebound := Cursor{root: concrete, steps: c.steps}
	if _, err := rebound.SeekType(ts); err != nil {
		return Cursor{}, err
	}
	return rebound, nil
}
