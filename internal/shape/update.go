package shape

import (
	"slices"

	"prex/internal/cursor"
	"prex/internal/schema"
)

// UpdateAt returns a copy of s with fn applied to the node the cursor
// lands on. The original tree is never modified: on success the nodes
// along the cursor's path are rebuilt and everything off the path is
// shared, and on failure (a seek miss or an error from fn) the returned
// shape is the zero value and s is untouched. This is what makes the
// constraint store's copy-on-write semantics cheap.
func UpdateAt[T any](s Shape[T], c cursor.Cursor, fn func(Shape[T]) (Shape[T], error)) (Shape[T], error) {
	return updateAt(s, c.Steps(), 0, fn)
}

func updateAt[T any](node Shape[T], steps []cursor.Step, depth int, fn func(Shape[T]) (Shape[T], error)) (Shape[T], error) {
	if depth == len(steps) {
		return fn(node)
	}
	step := steps[depth]

	// Guard the step against the node exactly as Seek does, then rebuild
	// the one child that changed.
	child, err := descend(node, step, depth)
	if err != nil {
		return Shape[T]{}, err
	}
	newChild, err := updateAt(child, steps, depth+1, fn)
	if err != nil {
		return Shape[T]{}, err
	}

	out := node
	if step.Kind == cursor.StepDeref {
		elems := slices.Clone(node.Ptr.Elems)
		elems[step.Index] = newChild
		ptr := *node.Ptr
		ptr.Elems = elems
		out.Ptr = &ptr
		return out, nil
	}
	elems := slices.Clone(node.Elems)
	elems[step.Index] = newChild
	out.Elems = elems
	return out, nil
}

// UpdatePtrAt applies fn to the pointer belief at the cursor's endpoint.
// The endpoint must be a pointer shape; anything else is reported as a
// *SeekError. This is the entry point expansion goes through.
func UpdatePtrAt[T any](s Shape[T], c cursor.Cursor, fn func(PtrShape[T]) (PtrShape[T], error)) (Shape[T], error) {
	return UpdateAt(s, c, func(node Shape[T]) (Shape[T], error) {
		if node.Kind != schema.KindPtr || node.Ptr == nil {
			return Shape[T]{}, &SeekError{Kind: SeekNotPointer, Depth: c.Len(), Node: node.Kind}
		}
		newPtr, err := fn(*node.Ptr)
		if err != nil {
			return Shape[T]{}, err
		}
		node.Ptr = &newPtr
		return node, nil
	})
}
