package cursor

import (
	"fmt"

	"prex/internal/schema"
)

// ErrorKind enumerates the ways a cursor can fail to apply to a type.
type ErrorKind uint8

const (
	// ErrDerefNonPointer indicates a dereference step hit a non-pointer.
	ErrDerefNonPointer ErrorKind = iota + 1
	ErrFieldNonStruct
	ErrFieldOutOfRange
	ErrIndexNonArray
	ErrIndexOutOfRange
	ErrUnknownType
	ErrInvalidStep
)

// Error reports where and why a type-level cursor walk went wrong. Depth
// is the index of the failing step, Type the type the step was applied
// to, and Limit the field count or array length for out-of-range kinds.
type Error struct {
	Kind  ErrorKind
	Depth int
	Step  Step
	Type  schema.TypeID
	Limit uint32
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ErrDerefNonPointer:
		return fmt.Sprintf("step %d: dereference of non-pointer type#%d", e.Depth, e.Type)
	case ErrFieldNonStruct:
		return fmt.Sprintf("step %d: field %d selected on non-struct type#%d", e.Depth, e.Step.Index, e.Type)
	case ErrFieldOutOfRange:
		return fmt.Sprintf("step %d: field %d out of range (type#%d has %d fields)", e.Depth, e.Step.Index, e.Type, e.Limit)
	case ErrIndexNonArray:
		return fmt.Sprintf("step %d: index %d applied to non-array type#%d", e.Depth, e.Step.Index, e.Type)
	case ErrIndexOutOfRange:
		return fmt.Sprintf("step %d: index %d out of range (type#%d has length %d)", e.Depth, e.Step.Index, e.Type, e.Limit)
	case ErrUnknownType:
		return fmt.Sprintf("step %d: unknown type#%d", e.Depth, e.Type)
	default:
		return fmt.Sprintf("cursor error kind=%d at step %d (type#%d)", e.Kind, e.Depth, e.Type)
	}
}
