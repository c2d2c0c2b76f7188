package shape

import (
	"fmt"

	"fortio.org/safecast"

	"prex/internal/cursor"
	"prex/internal/schema"
)

// SeekErrorKind enumerates the ways a cursor can fail to land in a shape.
// A cursor that type-checks can still fail here: shapes carry runtime
// beliefs (what is allocated, how many elements exist) that the type
// schema knows nothing about.
type SeekErrorKind uint8

const (
	// SeekKindMismatch indicates the step does not apply to the shape
	// node it reached, e.g. a dereference arriving at an integer shape.
	SeekKindMismatch SeekErrorKind = iota + 1
	// SeekNotPointer indicates the cursor's endpoint had to be a pointer
	// shape and was not.
	SeekNotPointer
	// SeekUnallocated indicates a dereference of a pointer whose
	// allocation is not yet assumed.
	SeekUnallocated
	// SeekUninitialized indicates a dereference of memory that is
	// allocated but holds no values yet.
	SeekUninitialized
	// SeekElementOutOfRange indicates a dereference element beyond the
	// initialized extent.
	SeekElementOutOfRange
	SeekFieldOutOfRange
	SeekIndexOutOfRange
)

// SeekError reports where a shape walk diverged from the cursor. Node is
// the kind of the shape node the failing step was applied to and Extent
// the node's current length for the out-of-range kinds.
type SeekError struct {
	Kind   SeekErrorKind
	Depth  int
	Step   cursor.Step
	Node   schema.Kind
	Extent uint32
}

func (e *SeekError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case SeekKindMismatch:
		return fmt.Sprintf("step %d: %s step does not apply to %s shape", e.Depth, e.Step.Kind, e.Node)
	case SeekNotPointer:
		return fmt.Sprintf("step %d: expected a pointer shape, found %s", e.Depth, e.Node)
	case SeekUnallocated:
		return fmt.Sprintf("step %d: dereference of unallocated pointer", e.Depth)
	case SeekUninitialized:
		return fmt.Sprintf("step %d: dereference of allocated but uninitialized pointer", e.Depth)
	case SeekElementOutOfRange:
		return fmt.Sprintf("step %d: element %d beyond initialized extent %d", e.Depth, e.Step.Index, e.Extent)
	case SeekFieldOutOfRange:
		return fmt.Sprintf("step %d: field %d out of range (shape has %d fields)", e.Depth, e.Step.Index, e.Extent)
	case SeekIndexOutOfRange:
		return fmt.Sprintf("step %d: index %d out of range (shape has %d elements)", e.Depth, e.Step.Index, e.Extent)
	default:
		return fmt.Sprintf("shape seek error kind=%d at step %d", e.Kind, e.Depth)
	}
}

// Seek replays a cursor over a shape tree and returns the node it lands
// on. The input is never modified. Cursor and shape can disagree even
// when the cursor type-checks; every such disagreement comes back as a
// *SeekError.
func Seek[T any](c cursor.Cursor, s Shape[T]) (Shape[T], error) {
	node := s
	for depth, step := range c.Steps() {
		next, err := descend(node, step, depth)
		if err != nil {
			return Shape[T]{}, err
		}
		node = next
	}
	return node, nil
}

func descend[T any](node Shape[T], step cursor.Step, depth int) (Shape[T], error) {
	switch step.Kind {
	case cursor.StepDeref:
		if node.Kind != schema.KindPtr || node.Ptr == nil {
			return Shape[T]{}, &SeekError{Kind: SeekKindMismatch, Depth: depth, Step: step, Node: node.Kind}
		}
		p := node.Ptr
		switch p.State {
		case PtrUnallocated:
			return Shape[T]{}, &SeekError{Kind: SeekUnallocated, Depth: depth, Step: step, Node: node.Kind}
		case PtrAllocated:
			return Shape[T]{}, &SeekError{Kind: SeekUninitialized, Depth: depth, Step: step, Node: node.Kind}
		}
		if uint64(step.Index) >= uint64(len(p.Elems)) {
			return Shape[T]{}, &SeekError{Kind: SeekElementOutOfRange, Depth: depth, Step: step, Node: node.Kind, Extent: extentOf(len(p.Elems))}
		}
		return p.Elems[step.Index], nil
	case cursor.StepField:
		if node.Kind != schema.KindStruct {
			return Shape[T]{}, &SeekError{Kind: SeekKindMismatch, Depth: depth, Step: step, Node: node.Kind}
		}
		if uint64(step.Index) >= uint64(len(node.Elems)) {
			return Shape[T]{}, &SeekError{Kind: SeekFieldOutOfRange, Depth: depth, Step: step, Node: node.Kind, Extent: extentOf(len(node.Elems))}
		}
		return node.Elems[step.Index], nil
	case cursor.StepIndex:
		if node.Kind != schema.KindArray && node.Kind != schema.KindUnboundedArray {
			return Shape[T]{}, &SeekError{Kind: SeekKindMismatch, Depth: depth, Step: step, Node: node.Kind}
		}
		if uint64(step.Index) >= uint64(len(node.Elems)) {
			return Shape[T]{}, &SeekError{Kind: SeekIndexOutOfRange, Depth: depth, Step: step, Node: node.Kind, Extent: extentOf(len(node.Elems))}
		}
		return node.Elems[step.Index], nil
	default:
		return Shape[T]{}, &SeekError{Kind: SeekKindMismatch, Depth: depth, Step: step, Node: node.Kind}
	}
}

func extentOf(n int) uint32 {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		panic(fmt.Errorf("shape: extent overflow: %w", err))
	}
	return v
}
