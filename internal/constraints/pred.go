package constraints

import (
	"fmt"

	"prex/internal/schema"
	"prex/internal/shape"
)

// CmpOp is an integer comparison predicate, spelled the way LLVM spells
// icmp conditions.
type CmpOp uint8

const (
	CmpEq CmpOp = iota + 1
	CmpNe
	CmpUlt
	CmpUle
	CmpUgt
	CmpUge
	CmpSlt
	CmpSle
	CmpSgt
	CmpSge
)

func (o CmpOp) String() string {
	switch o {
	case CmpEq:
		return "eq"
	case CmpNe:
		return "ne"
	case CmpUlt:
		return "ult"
	case CmpUle:
		return "ule"
	case CmpUgt:
		return "ugt"
	case CmpUge:
		return "uge"
	case CmpSlt:
		return "slt"
	case CmpSle:
		return "sle"
	case CmpSgt:
		return "sgt"
	case CmpSge:
		return "sge"
	default:
		return fmt.Sprintf("CmpOp(%d)", o)
	}
}

// ParseCmpOp converts an icmp condition name to a CmpOp.
func ParseCmpOp(s string) (CmpOp, error) {
	switch s {
	case "eq":
		return CmpEq, nil
	case "ne":
		return CmpNe, nil
	case "ult":
		return CmpUlt, nil
	case "ule":
		return CmpUle, nil
	case "ugt":
		return CmpUgt, nil
	case "uge":
		return CmpUge, nil
	case "slt":
		return CmpSlt, nil
	case "sle":
		return CmpSle, nil
	case "sgt":
		return CmpSgt, nil
	case "sge":
		return CmpSge, nil
	default:
		return 0, fmt.Errorf("invalid comparison op: %q", s)
	}
}

// PredKind distinguishes value predicates.
type PredKind uint8

const (
	// PredAligned claims the value is a pointer aligned to Align bytes.
	PredAligned PredKind = iota + 1
	// PredCompare claims the value compares against a constant.
	PredCompare
)

// Pred is one value predicate attached to a shape node. The engine
// records predicates and hands them back to the executor as assumptions;
// it never evaluates them itself.
type Pred struct {
	Kind  PredKind
	Align uint32 // PredAligned
	Op    CmpOp  // PredCompare
	Bits  uint32 // PredCompare: width of the compared value
	Value int64  // PredCompare: the constant
}

// Aligned claims alignment to align bytes.
func Aligned(align uint32) Pred {
	return Pred{Kind: PredAligned, Align: align}
}

// Compare claims the value of the given bit width relates to a constant.
func Compare(op CmpOp, bits uint32, value int64) Pred {
	return Pred{Kind: PredCompare, Op: op, Bits: bits, Value: value}
}

func (p Pred) String() string {
	switch p.Kind {
	case PredAligned:
		return fmt.Sprintf("aligned %d", p.Align)
	case PredCompare:
		return fmt.Sprintf("%s i%d %d", p.Op, p.Bits, p.Value)
	default:
		return fmt.Sprintf("Pred(%d)", p.Kind)
	}
}

// Preds is the tag the engine hangs on every shape node: the predicates
// assumed about the value stored there, newest first.
type Preds []Pred

// ConstrainedShape is a shape tree tagged with predicate sets. Everything
// the aggregate stores is of this instantiation.
type ConstrainedShape = shape.Shape[Preds]

// ConstrainedPtrShape is the pointer belief of a ConstrainedShape.
type ConstrainedPtrShape = shape.PtrShape[Preds]

// FreshPreds is the tag factory for newly materialized nodes: no
// assumptions.
func FreshPreds(schema.TypeID) Preds { return nil }

// MinimalShape builds the least constrained shape of a type.
func MinimalShape(ts *schema.Interner, typ schema.TypeID) ConstrainedShape {
	return shape.Minimal(ts, typ, FreshPreds)
}
