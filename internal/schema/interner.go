package schema

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// StructInfo describes a registered struct. Fields are positional; the
// engine addresses them by index, never by name.
type StructInfo struct {
	Name   string
	Fields []TypeID
}

// Interner provides stable TypeIDs by hashing structural descriptors.
// Structs are registered nominally in two phases so that recursive types
// (a struct containing a pointer to itself) stay expressible.
type Interner struct {
	types   []Type
	index   map[Type]TypeID
	structs []StructInfo
	byName  map[string]TypeID
}

// NewInterner constructs an empty interner with slot 0 reserved.
func NewInterner() *Interner {
	in := &Interner{
		index:  make(map[Type]TypeID, 64),
		byName: make(map[string]TypeID),
	}
	in.structs = append(in.structs, StructInfo{}) // reserve 0 as invalid sentinel
	in.internRaw(Type{Kind: KindInvalid})
	return in
}

// Intern ensures the provided descriptor has a stable TypeID. Struct
// descriptors must go through RegisterStruct instead.
func (in *Interner) Intern(t Type) TypeID {
	if t.Kind == KindInvalid {
		return NoTypeID
	}
	if t.Kind == KindStruct {
		panic("schema: struct types are registered, not interned")
	}
	if id, ok := in.index[t]; ok {
		return id
	}
	return in.internRaw(t)
}

// internRaw adds the descriptor to the storage without consulting the map.
func (in *Interner) internRaw(t Type) TypeID {
	lenTypes, err := safecast.Conv[uint32](len(in.types))
	if err != nil {
		panic(fmt.Errorf("len(types) overflow: %w", err))
	}
	id := TypeID(lenTypes)
	in.types = append(in.types, t)
	if t.Kind != KindStruct {
		in.index[t] = id
	}
	return id
}

// RegisterStruct allocates a struct type with no fields attached yet.
// Passing the empty string registers an anonymous struct. Fields arrive
// later through SetStructFields, which is what lets a struct refer to
// itself through a pointer.
func (in *Interner) RegisterStruct(name string) TypeID {
	if name != "" {
		if _, exists := in.byName[name]; exists {
			panic(fmt.Sprintf("schema: struct %q registered twice", name))
		}
	}
	in.structs = append(in.structs, StructInfo{Name: name})
	slot, err := safecast.Conv[uint32](len(in.structs) - 1)
	if err != nil {
		panic(fmt.Errorf("len(structs) overflow: %w", err))
	}
	id := in.internRaw(Type{Kind: KindStruct, Payload: slot})
	if name != "" {
		in.byName[name] = id
	}
	return id
}

// SetStructFields attaches the field types of a registered struct.
func (in *Interner) SetStructFields(id TypeID, fields []TypeID) {
	t := in.MustLookup(id)
	if t.Kind != KindStruct {
		panic(fmt.Sprintf("schema: SetStructFields on %s", t.Kind))
	}
	in.structs[t.Payload].Fields = slices.Clone(fields)
}

// Lookup returns the descriptor for a TypeID.
func (in *Interner) Lookup(id TypeID) (Type, bool) {
	if id == NoTypeID || int(id) >= len(in.types) {
		return Type{}, false
	}
	return in.types[id], true
}

// MustLookup panics when id is invalid. Internal tables only hold IDs
// minted by this interner, so a miss is a programming error.
func (in *Interner) MustLookup(id TypeID) Type {
	t, ok := in.Lookup(id)
	if !ok {
		panic("schema: invalid TypeID")
	}
	return t
}

// Struct returns the side-table entry for a struct TypeID.
func (in *Interner) Struct(id TypeID) (StructInfo, bool) {
	t, ok := in.Lookup(id)
	if !ok || t.Kind != KindStruct {
		return StructInfo{}, false
	}
	return in.structs[t.Payload], true
}

// StructByName resolves a registered struct name.
func (in *Interner) StructByName(name string) (TypeID, bool) {
	id, ok := in.byName[name]
	return id, ok
}

// NumFields reports the field count of a struct TypeID, or 0 for non-structs.
func (in *Interner) NumFields(id TypeID) int {
	info, ok := in.Struct(id)
	if !ok {
		return 0
	}
	return len(info.Fields)
}

// FieldType returns the type of field idx of a struct.
func (in *Interner) FieldType(id TypeID, idx uint32) (TypeID, bool) {
	info, ok := in.Struct(id)
	if !ok || uint64(idx) >= uint64(len(info.Fields)) {
		return NoTypeID, false
	}
	return info.Fields[idx], true
}

// Len reports how many descriptors are interned, the reserved slot included.
func (in *Interner) Len() int {
	return len(in.types)
}
