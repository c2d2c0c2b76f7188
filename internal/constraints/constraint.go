package constraints

import (
	"fmt"

	"prex/internal/cursor"
	"prex/internal/shape"
)

// RelationalKind distinguishes constraints that tie two regions together.
type RelationalKind uint8

const (
	// RelExtentEq ties the extent of a pointed-to region to a scalar
	// value elsewhere, the classic (buffer, length) argument pair.
	RelExtentEq RelationalKind = iota + 1
	// RelValueEq claims two scalar regions hold the same value.
	RelValueEq
)

func (k RelationalKind) String() string {
	switch k {
	case RelExtentEq:
		return "extent-eq"
	case RelValueEq:
		return "value-eq"
	default:
		return fmt.Sprintf("RelationalKind(%d)", k)
	}
}

// Relational relates two regions of the precondition. The engine records
// these without acting on them: they are kept for reporting and for
// executors that know how to assume them, but expansion never consults
// them.
type Relational struct {
	Kind  RelationalKind
	Left  cursor.Selector // the region whose extent, or the first value
	Right cursor.Selector // the length value, or the second value
}

// ExtentEq ties the extent of region to the value at length.
func ExtentEq(region, length cursor.Selector) Relational {
	return Relational{Kind: RelExtentEq, Left: region, Right: length}
}

// ValueEq claims the values at a and b are equal.
func ValueEq(a, b cursor.Selector) Relational {
	return Relational{Kind: RelValueEq, Left: a, Right: b}
}

func (r Relational) String() string {
	switch r.Kind {
	case RelExtentEq:
		return fmt.Sprintf("extent(%s) == %s", r.Left, r.Right)
	case RelValueEq:
		return fmt.Sprintf("%s == %s", r.Left, r.Right)
	default:
		return fmt.Sprintf("Relational(%d)", r.Kind)
	}
}

// NewConstraintKind discriminates the constraint union.
type NewConstraintKind uint8

const (
	// NewPred attaches a value predicate at a cursor target.
	NewPred NewConstraintKind = iota + 1
	// NewShape grows a pointer belief at a cursor target.
	NewShape
	// NewRelational records a relation between two regions.
	NewRelational
)

func (k NewConstraintKind) String() string {
	switch k {
	case NewPred:
		return "pred"
	case NewShape:
		return "shape"
	case NewRelational:
		return "relational"
	default:
		return fmt.Sprintf("NewConstraintKind(%d)", k)
	}
}

// NewConstraint is one fact the classifier derived from a failed
// execution: the smallest change to the precondition that would have let
// the run proceed. Exactly one payload is meaningful, selected by Kind.
type NewConstraint struct {
	Kind       NewConstraintKind
	Target     cursor.Selector
	Pred       Pred
	Constraint shape.Constraint
	Relational Relational
}

// NewPredConstraint demands the predicate hold at the target.
func NewPredConstraint(target cursor.Selector, p Pred) NewConstraint {
	return NewConstraint{Kind: NewPred, Target: target, Pred: p}
}

// NewShapeConstraint demands the pointer at the target satisfy the
// allocation constraint.
func NewShapeConstraint(target cursor.Selector, c shape.Constraint) NewConstraint {
	return NewConstraint{Kind: NewShape, Target: target, Constraint: c}
}

// NewRelationalConstraint records a relation between two regions.
func NewRelationalConstraint(r Relational) NewConstraint {
	return NewConstraint{Kind: NewRelational, Relational: r}
}

func (nc NewConstraint) String() string {
	switch nc.Kind {
	case NewPred:
		return fmt.Sprintf("%s: %s", nc.Target, nc.Pred)
	case NewShape:
		return fmt.Sprintf("%s: %s", nc.Target, nc.Constraint)
	case NewRelational:
		return nc.Relational.String()
	default:
		return nc.Kind.String()
	}
}
