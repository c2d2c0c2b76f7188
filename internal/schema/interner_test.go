package schema

import "testing"

func TestInternerDeduplicatesDescriptors(t *testing.T) {
	in := NewInterner()
	i32a := in.Intern(MakeInt(32))
	i32b := in.Intern(MakeInt(32))
	if i32a != i32b {
		t.Fatalf("equal descriptors should intern to the same id")
	}
	i64 := in.Intern(MakeInt(64))
	if i64 == i32a {
		t.Fatalf("different widths must differ")
	}
	p1 := in.Intern(MakePtr(i32a))
	p2 := in.Intern(MakePtr(i32a))
	if p1 != p2 {
		t.Fatalf("pointer types should be deduplicated")
	}
}

func TestInternerRejectsStructDescriptors(t *testing.T) {
	in := NewInterner()
	defer func() {
		if recover() == nil {
			t.Fatalf("Intern of a struct descriptor should panic")
		}
	}()
	in.Intern(Type{Kind: KindStruct})
}

func TestRecursiveStructRegistration(t *testing.T) {
	in := NewInterner()
	node := in.RegisterStruct("node")
	i32 := in.Intern(MakeInt(32))
	next := in.Intern(MakePtr(node))
	in.SetStructFields(node, []TypeID{i32, next})

	info, ok := in.Struct(node)
	if !ok {
		t.Fatalf("struct lookup failed")
	}
	if info.Name != "node" || len(info.Fields) != 2 {
		t.Fatalf("unexpected struct info: %+v", info)
	}
	ft, ok := in.FieldType(node, 1)
	if !ok || ft != next {
		t.Fatalf("field 1 should be the self pointer")
	}
	if _, ok := in.FieldType(node, 2); ok {
		t.Fatalf("field 2 should be out of range")
	}
	if id, ok := in.StructByName("node"); !ok || id != node {
		t.Fatalf("StructByName mismatch")
	}
}

func TestAnonymousStructsAreDistinct(t *testing.T) {
	in := NewInterner()
	i8 := in.Intern(MakeInt(8))
	a := in.RegisterStruct("")
	in.SetStructFields(a, []TypeID{i8})
	b := in.RegisterStruct("")
	in.SetStructFields(b, []TypeID{i8})
	if a == b {
		t.Fatalf("anonymous structs are nominal and must stay distinct")
	}
}

func TestFormatType(t *testing.T) {
	in := NewInterner()
	i32 := in.Intern(MakeInt(32))
	i8 := in.Intern(MakeInt(8))
	node := in.RegisterStruct("node")
	in.SetStructFields(node, []TypeID{i32, in.Intern(MakePtr(node))})
	anon := in.RegisterStruct("")
	in.SetStructFields(anon, []TypeID{i32, in.Intern(MakePtr(i8))})

	cases := []struct {
		id   TypeID
		want string
	}{
		{i32, "i32"},
		{in.Intern(MakeFloat(FormatDouble)), "double"},
		{in.Intern(MakePtr(i8)), "i8*"},
		{in.Intern(MakeArray(4, i32)), "[4 x i32]"},
		{in.Intern(MakeUnboundedArray(i8)), "[0 x i8]"},
		{in.Intern(MakeOpaquePtr()), "ptr"},
		{in.Intern(MakeFuncPtr(true)), "void ()*"},
		{in.Intern(MakeFuncPtr(false)), "fn ()*"},
		{node, "%node"},
		{in.Intern(MakePtr(node)), "%node*"},
		{anon, "{ i32, i8* }"},
		{NoTypeID, "void"},
	}
	for _, tc := range cases {
		if got := FormatType(in, tc.id); got != tc.want {
			t.Errorf("FormatType(%d) = %q, want %q", tc.id, got, tc.want)
		}
	}
}
