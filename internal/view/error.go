package view

import (
	"fmt"

	"prex/internal/schema"
)

// ShapeErrorKind enumerates view reconstruction failures.
type ShapeErrorKind uint8

const (
	// ShapeErrTag indicates the node's tag could not be decoded.
	ShapeErrTag ShapeErrorKind = iota + 1
	// ShapeErrTypeMismatch indicates the view's node kind does not match
	// the type it is replayed against.
	ShapeErrTypeMismatch
	// ShapeErrStructLen indicates a struct view whose field count differs
	// from the type's.
	ShapeErrStructLen
	// ShapeErrVectorLen indicates a fixed array view whose length differs
	// from the type's.
	ShapeErrVectorLen
)

// ShapeError reports why a view could not be replayed against a type.
type ShapeError struct {
	Kind     ShapeErrorKind
	Type     schema.TypeID
	View     NodeKind // what the view claimed
	Want     NodeKind // what the type demanded, for mismatches
	Expected int
	Actual   int
	Err      error
}

func (e *ShapeError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case ShapeErrTag:
		return fmt.Sprintf("tag of %s node (type#%d): %v", e.View, e.Type, e.Err)
	case ShapeErrTypeMismatch:
		if e.Want != "" {
			return fmt.Sprintf("view node is %q but type#%d demands %q", e.View, e.Type, e.Want)
		}
		return fmt.Sprintf("view node %q does not apply to type#%d", e.View, e.Type)
	case ShapeErrStructLen:
		return fmt.Sprintf("struct view has %d fields, type#%d has %d", e.Actual, e.Type, e.Expected)
	case ShapeErrVectorLen:
		return fmt.Sprintf("array view has %d elements, type#%d has %d", e.Actual, e.Type, e.Expected)
	default:
		return fmt.Sprintf("view error kind=%d (type#%d)", e.Kind, e.Type)
	}
}

func (e *ShapeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
