package layout

import (
	"fortio.org/safecast"

	"prex/internal/schema"
)

func (e *Engine) computeLayout(t schema.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	tt, ok := e.Types.Lookup(t)
	if !ok {
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrUnknownType, Type: t}
	}

	switch tt.Kind {
	case schema.KindInt:
		return e.intLayout(t, tt.Width)

	case schema.KindFloat:
		size := tt.Format.ByteSize()
		if size == 0 {
			return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrUnknownType, Type: t}
		}
		return TypeLayout{Size: size, Align: min(size, e.Target.MaxAlign)}, nil

	case schema.KindPtr, schema.KindVoidFuncPtr, schema.KindNonVoidFuncPtr, schema.KindOpaquePtr:
		return TypeLayout{Size: e.Target.PtrSize, Align: e.Target.PtrAlign}, nil

	case schema.KindArray:
		elem, err := e.layoutOf(tt.Elem, state)
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		count, cerr := safecast.Conv[int](tt.Count)
		if cerr != nil {
			return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrOverflow, Type: t, Err: cerr}
		}
		stride := alignTo(elem.Size, elem.Align)
		return TypeLayout{Size: stride * count, Align: elem.Align}, nil

	case schema.KindUnboundedArray:
		// The element layout still decides alignment, but the extent is
		// open and so is the size.
		elem, err := e.layoutOf(tt.Elem, state)
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		return TypeLayout{Size: 0, Align: elem.Align}, &LayoutError{Kind: LayoutErrUnsized, Type: t}

	case schema.KindStruct:
		return e.structLayout(t, state)

	default:
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrUnknownType, Type: t}
	}
}

func (e *Engine) intLayout(t schema.TypeID, width uint32) (TypeLayout, *LayoutError) {
	bytes32 := (width + 7) / 8
	bytes, err := safecast.Conv[int](bytes32)
	if err != nil {
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrOverflow, Type: t, Err: err}
	}
	if bytes == 0 {
		bytes = 1
	}
	align := min(nextPow2(bytes), e.Target.MaxAlign)
	return TypeLayout{Size: alignTo(bytes, align), Align: align}, nil
}

func (e *Engine) structLayout(t schema.TypeID, state *layoutState) (TypeLayout, *LayoutError) {
	info, ok := e.Types.Struct(t)
	if !ok {
		return TypeLayout{Size: 0, Align: 1}, &LayoutError{Kind: LayoutErrUnknownType, Type: t}
	}

	offset := 0
	align := 1
	offsets := make([]int, len(info.Fields))
	for i, f := range info.Fields {
		fl, err := e.layoutOf(f, state)
		if err != nil {
			return TypeLayout{Size: 0, Align: 1}, err
		}
		offset = alignTo(offset, fl.Align)
		offsets[i] = offset
		offset += fl.Size
		align = max(align, fl.Align)
	}
	return TypeLayout{
		Size:         alignTo(offset, align),
		Align:        align,
		FieldOffsets: offsets,
	}, nil
}

// alignTo rounds n up to the next multiple of align.
func alignTo(n, align int) int {
	if align <= 1 {
		return n
	}
	return (n + align - 1) / align * align
}

// nextPow2 returns the smallest power of two >= n.
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
