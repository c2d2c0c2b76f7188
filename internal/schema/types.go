// Package schema holds the nominal type descriptors the precondition engine
// is indexed by: integers by bit width, floats by format, pointers, fixed and
// unbounded arrays, structs, and the three pointer-like leaves (void/non-void
// function pointers and opaque pointers). Types are interned and addressed by
// TypeID; the engine consumes them read-only.
package schema

import "fmt"

// TypeID uniquely identifies a type inside the interner.
type TypeID uint32

// NoTypeID marks the absence of a type (e.g. a void function return).
const NoTypeID TypeID = 0

// Kind enumerates all supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindInt
	KindFloat
	KindPtr
	KindVoidFuncPtr
	KindNonVoidFuncPtr
	KindOpaquePtr
	KindArray
	KindUnboundedArray
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindPtr:
		return "ptr"
	case KindVoidFuncPtr:
		return "void-funcptr"
	case KindNonVoidFuncPtr:
		return "funcptr"
	case KindOpaquePtr:
		return "opaque-ptr"
	case KindArray:
		return "array"
	case KindUnboundedArray:
		return "unbounded-array"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// FloatFormat captures the binary format of floating-point types.
type FloatFormat uint8

const (
	FormatHalf FloatFormat = iota + 1
	FormatSingle
	FormatDouble
	FormatX86FP80
	FormatFP128
	FormatPPCFP128
)

func (f FloatFormat) String() string {
	switch f {
	case FormatHalf:
		return "half"
	case FormatSingle:
		return "float"
	case FormatDouble:
		return "double"
	case FormatX86FP80:
		return "x86_fp80"
	case FormatFP128:
		return "fp128"
	case FormatPPCFP128:
		return "ppc_fp128"
	default:
		return fmt.Sprintf("FloatFormat(%d)", f)
	}
}

// ParseFloatFormat converts a format name to a FloatFormat.
func ParseFloatFormat(s string) (FloatFormat, error) {
	switch s {
	case "half":
		return FormatHalf, nil
	case "float", "single":
		return FormatSingle, nil
	case "double":
		return FormatDouble, nil
	case "x86_fp80":
		return FormatX86FP80, nil
	case "fp128":
		return FormatFP128, nil
	case "ppc_fp128":
		return FormatPPCFP128, nil
	default:
		return 0, fmt.Errorf("invalid float format: %q (expected half|float|double|x86_fp80|fp128|ppc_fp128)", s)
	}
}

// ByteSize returns the storage size of the format in bytes.
func (f FloatFormat) ByteSize() int {
	switch f {
	case FormatHalf:
		return 2
	case FormatSingle:
		return 4
	case FormatDouble:
		return 8
	case FormatX86FP80:
		return 16 // stored size on x86-64, not the 80 significant bits
	case FormatFP128, FormatPPCFP128:
		return 16
	default:
		return 0
	}
}

// Type is a compact descriptor for any supported type.
type Type struct {
	Kind    Kind
	Elem    TypeID      // pointee for Ptr, element for Array/UnboundedArray
	Count   uint32      // element count for Array
	Width   uint32      // bit width for Int
	Format  FloatFormat // for Float
	Payload uint32      // struct side-table slot for Struct
}

// Descriptor helpers ---------------------------------------------------------

// MakeInt describes a signed-or-unsigned integer of the given bit width.
func MakeInt(width uint32) Type {
	return Type{Kind: KindInt, Width: width}
}

// MakeFloat describes a floating-point type of the given format.
func MakeFloat(format FloatFormat) Type {
	return Type{Kind: KindFloat, Format: format}
}

// MakePtr describes a pointer to elem.
func MakePtr(elem TypeID) Type {
	return Type{Kind: KindPtr, Elem: elem}
}

// MakeFuncPtr describes a function pointer. The pointed-to signature is not
// tracked beyond whether the function returns a value.
func MakeFuncPtr(void bool) Type {
	if void {
		return Type{Kind: KindVoidFuncPtr}
	}
	return Type{Kind: KindNonVoidFuncPtr}
}

// MakeOpaquePtr describes a pointer whose pointee type is unknown.
func MakeOpaquePtr() Type {
	return Type{Kind: KindOpaquePtr}
}

// MakeArray describes a fixed-length array of count elements.
func MakeArray(count uint32, elem TypeID) Type {
	return Type{Kind: KindArray, Elem: elem, Count: count}
}

// MakeUnboundedArray describes an array whose extent is not fixed by the type.
func MakeUnboundedArray(elem TypeID) Type {
	return Type{Kind: KindUnboundedArray, Elem: elem}
}
