// Package view holds the serialization form of shape trees. Views erase
// the tag type and replace schema references with self-describing string
// kinds, so a stored view can be inspected without the interner that
// produced it. Reconstruction goes the other way: ToShape replays a view
// against a type and refuses views that do not match it, which is what
// keeps stale snapshots from smuggling malformed shapes back into the
// engine.
package view

import (
	"fmt"

	"fortio.org/safecast"

	"prex/internal/schema"
	"prex/internal/shape"
)

// NodeKind is the self-describing node discriminator of a ShapeView.
type NodeKind string

const (
	NodeInt            NodeKind = "int"
	NodeFloat          NodeKind = "float"
	NodePtr            NodeKind = "ptr"
	NodeFuncPtr        NodeKind = "funcptr"
	NodeOpaquePtr      NodeKind = "opaqueptr"
	NodeArray          NodeKind = "array"
	NodeUnboundedArray NodeKind = "unbounded"
	NodeStruct         NodeKind = "struct"
)

// PtrStateKind is the serialized pointer state.
type PtrStateKind string

const (
	StateUnallocated PtrStateKind = "unallocated"
	StateAllocated   PtrStateKind = "allocated"
	StateInitialized PtrStateKind = "initialized"
)

// ShapeView is the type-erased form of one shape node.
type ShapeView struct {
	Kind  NodeKind      `json:"kind" msgpack:"kind"`
	Tag   any           `json:"tag,omitempty" msgpack:"tag,omitempty"`
	Ptr   *PtrShapeView `json:"ptr,omitempty" msgpack:"ptr,omitempty"`
	Elems []ShapeView   `json:"elems,omitempty" msgpack:"elems,omitempty"`
}

// PtrShapeView is the type-erased form of a pointer belief.
type PtrShapeView struct {
	State PtrStateKind `json:"state" msgpack:"state"`
	Count uint32       `json:"count,omitempty" msgpack:"count,omitempty"`
	Elems []ShapeView  `json:"elems,omitempty" msgpack:"elems,omitempty"`
}

// FromShape projects a shape into its view. The project function erases
// the tag; handing back nil drops the tag from the serialized form.
func FromShape[T any](project func(T) any, s shape.Shape[T]) ShapeView {
	v := ShapeView{Tag: project(s.Tag)}
	switch s.Kind {
	case schema.KindInt:
		v.Kind = NodeInt
	case schema.KindFloat:
		v.Kind = NodeFloat
	case schema.KindPtr:
		v.Kind = NodePtr
		if s.Ptr != nil {
			pv := FromPtrShape(project, *s.Ptr)
			v.Ptr = &pv
		}
	case schema.KindVoidFuncPtr, schema.KindNonVoidFuncPtr:
		v.Kind = NodeFuncPtr
	case schema.KindOpaquePtr:
		v.Kind = NodeOpaquePtr
	case schema.KindArray:
		v.Kind = NodeArray
	case schema.KindUnboundedArray:
		v.Kind = NodeUnboundedArray
	case schema.KindStruct:
		v.Kind = NodeStruct
	default:
		panic(fmt.Sprintf("view: cannot serialize shape kind %v", s.Kind))
	}
	if len(s.Elems) > 0 {
		v.Elems = make([]ShapeView, len(s.Elems))
		for i, e := range s.Elems {
			v.Elems[i] = FromShape(project, e)
		}
	}
	return v
}

// FromPtrShape projects a pointer belief into its view.
func FromPtrShape[T any](project func(T) any, p shape.PtrShape[T]) PtrShapeView {
	switch p.State {
	case shape.PtrUnallocated:
		return PtrShapeView{State: StateUnallocated}
	case shape.PtrAllocated:
		return PtrShapeView{State: StateAllocated, Count: p.Count}
	case shape.PtrInitialized:
		v := PtrShapeView{State: StateInitialized}
		if len(p.Elems) > 0 {
			v.Elems = make([]ShapeView, len(p.Elems))
			for i, e := range p.Elems {
				v.Elems[i] = FromShape(project, e)
			}
		}
		return v
	default:
		panic(fmt.Sprintf("view: cannot serialize pointer state %v", p.State))
	}
}

// DecodeTagFunc rebuilds a tag from its erased form. It receives the type
// of the node being rebuilt; decoding errors surface as tag errors.
type DecodeTagFunc[T any] func(schema.TypeID, any) (T, error)

// ToShape rebuilds a shape of the given type from a view. Every node of
// the view is checked against the type it claims to mirror; any
// disagreement comes back as a *ShapeError and no shape.
func ToShape[T any](ts *schema.Interner, decode DecodeTagFunc[T], typ schema.TypeID, v ShapeView) (shape.Shape[T], error) {
	t, ok := ts.Lookup(typ)
	if !ok {
		return shape.Shape[T]{}, &ShapeError{Kind: ShapeErrTypeMismatch, Type: typ, View: v.Kind}
	}

	want := viewKindFor(t.Kind)
	if v.Kind != want {
		return shape.Shape[T]{}, &ShapeError{Kind: ShapeErrTypeMismatch, Type: typ, View: v.Kind, Want: want}
	}

	tag, err := decode(typ, v.Tag)
	if err != nil {
		return shape.Shape[T]{}, &ShapeError{Kind: ShapeErrTag, Type: typ, View: v.Kind, Err: err}
	}
	s := shape.Shape[T]{Kind: t.Kind, Type: typ, Tag: tag}

	switch t.Kind {
	case schema.KindInt, schema.KindFloat, schema.KindVoidFuncPtr, schema.KindNonVoidFuncPtr, schema.KindOpaquePtr:
		// leaves

	case schema.KindPtr:
		if v.Ptr == nil {
			// A pointer view without a pointer belief is malformed.
			return shape.Shape[T]{}, &ShapeError{Kind: ShapeErrTypeMismatch, Type: typ, View: v.Kind}
		}
		p, err := ToPtrShape(ts, decode, t.Elem, *v.Ptr)
		if err != nil {
			return shape.Shape[T]{}, err
		}
		s.Ptr = &p

	case schema.KindArray:
		count, cerr := safecast.Conv[int](t.Count)
		if cerr != nil {
			return shape.Shape[T]{}, &ShapeError{Kind: ShapeErrVectorLen, Type: typ, View: v.Kind, Err: cerr}
		}
		if len(v.Elems) != count {
			return shape.Shape[T]{}, &ShapeError{Kind: ShapeErrVectorLen, Type: typ, View: v.Kind, Expected: count, Actual: len(v.Elems)}
		}
		s.Elems, err = toElems(ts, decode, repeatType(t.Elem, count), v.Elems)
		if err != nil {
			return shape.Shape[T]{}, err
		}

	case schema.KindUnboundedArray:
		// Any extent is credible; the type fixes none.
		s.Elems, err = toElems(ts, decode, repeatType(t.Elem, len(v.Elems)), v.Elems)
		if err != nil {
			return shape.Shape[T]{}, err
		}

	case schema.KindStruct:
		info, ok := ts.Struct(typ)
		if !ok {
			return shape.Shape[T]{}, &ShapeError{Kind: ShapeErrTypeMismatch, Type: typ, View: v.Kind}
		}
		if len(v.Elems) != len(info.Fields) {
			return shape.Shape[T]{}, &ShapeError{Kind: ShapeErrStructLen, Type: typ, View: v.Kind, Expected: len(info.Fields), Actual: len(v.Elems)}
		}
		s.Elems, err = toElems(ts, decode, info.Fields, v.Elems)
		if err != nil {
			return shape.Shape[T]{}, err
		}
	}
	return s, nil
}

// ToPtrShape rebuilds a pointer belief whose elements have the given
// pointee type.
func ToPtrShape[T any](ts *schema.Interner, decode DecodeTagFunc[T], pointee schema.TypeID, v PtrShapeView) (shape.PtrShape[T], error) {
	switch v.State {
	case StateUnallocated:
		return shape.PtrShape[T]{Pointee: pointee, State: shape.PtrUnallocated}, nil
	case StateAllocated:
		return shape.PtrShape[T]{Pointee: pointee, State: shape.PtrAllocated, Count: v.Count}, nil
	case StateInitialized:
		elems, err := toElems(ts, decode, repeatType(pointee, len(v.Elems)), v.Elems)
		if err != nil {
			return shape.PtrShape[T]{}, err
		}
		return shape.PtrShape[T]{Pointee: pointee, State: shape.PtrInitialized, Elems: elems}, nil
	default:
		return shape.PtrShape[T]{}, &ShapeError{Kind: ShapeErrTypeMismatch, Type: pointee, View: NodeKind(v.State), Want: NodePtr}
	}
}

func toElems[T any](ts *schema.Interner, decode DecodeTagFunc[T], types []schema.TypeID, views []ShapeView) ([]shape.Shape[T], error) {
	if len(views) == 0 {
		return nil, nil
	}
	elems := make([]shape.Shape[T], len(views))
	for i, ev := range views {
		e, err := ToShape(ts, decode, types[i], ev)
		if err != nil {
			return nil, err
		}
		elems[i] = e
	}
	return elems, nil
}

func repeatType(id schema.TypeID, n int) []schema.TypeID {
	out := make([]schema.TypeID, n)
	for i := range out {
		out[i] = id
	}
	return out
}

func viewKindFor(k schema.Kind) NodeKind {
	switch k {
	case schema.KindInt:
		return NodeInt
	case schema.KindFloat:
		return NodeFloat
	case schema.KindPtr:
		return NodePtr
	case schema.KindVoidFuncPtr, schema.KindNonVoidFuncPtr:
		return NodeFuncPtr
	case schema.KindOpaquePtr:
		return NodeOpaquePtr
	case schema.KindArray:
		return NodeArray
	case schema.KindUnboundedArray:
		return NodeUnboundedArray
	case schema.KindStruct:
		return NodeStruct
	default:
		return NodeKind(fmt.Sprintf("invalid(%d)", k))
	}
}
