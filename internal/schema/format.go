package schema

import (
	"fmt"
	"strings"
)

// FormatType renders a type the way LLVM IR spells it: "i32", "double",
// "i8*", "[4 x i32]", "{ i32, %node* }". Named structs print as "%name"
// without expanding, which also keeps recursive types finite.
func FormatType(in *Interner, id TypeID) string {
	return formatType(in, id, 0)
}

func formatType(in *Interner, id TypeID, depth int) string {
	if id == NoTypeID {
		return "void"
	}
	if in == nil || depth > 32 {
		return fmt.Sprintf("type#%d", id)
	}
	t, ok := in.Lookup(id)
	if !ok {
		return fmt.Sprintf("type#%d", id)
	}

	switch t.Kind {
	case KindInt:
		return fmt.Sprintf("i%d", t.Width)
	case KindFloat:
		return t.Format.String()
	case KindPtr:
		return formatType(in, t.Elem, depth+1) + "*"
	case KindVoidFuncPtr:
		return "void ()*"
	case KindNonVoidFuncPtr:
		return "fn ()*"
	case KindOpaquePtr:
		return "ptr"
	case KindArray:
		return fmt.Sprintf("[%d x %s]", t.Count, formatType(in, t.Elem, depth+1))
	case KindUnboundedArray:
		return fmt.Sprintf("[0 x %s]", formatType(in, t.Elem, depth+1))
	case KindStruct:
		info, ok := in.Struct(id)
		if !ok {
			return fmt.Sprintf("type#%d", id)
		}
		if info.Name != "" {
			return "%" + info.Name
		}
		fields := make([]string, 0, len(info.Fields))
		for _, f := range info.Fields {
			fields = append(fields, formatType(in, f, depth+1))
		}
		return "{ " + strings.Join(fields, ", ") + " }"
	default:
		return fmt.Sprintf("type#%d", id)
	}
}
