package shape_test

import (
	"errors"
	"testing"

	"prex/internal/cursor"
	"prex/internal/schema"
	"prex/internal/shape"
)

// tags are string lists in these tests so that preserved vs freshly
// materialized nodes are easy to tell apart.
type tags = []string

func freshTag(schema.TypeID) tags { return nil }

func testSchema(t *testing.T) (*schema.Interner, map[string]schema.TypeID) {
	t.Helper()
	in := schema.NewInterner()
	ids := map[string]schema.TypeID{}
	ids["i8"] = in.Intern(schema.MakeInt(8))
	ids["i32"] = in.Intern(schema.MakeInt(32))
	ids["i32Ptr"] = in.Intern(schema.MakePtr(ids["i32"]))
	node := in.RegisterStruct("node")
	ids["node"] = node
	ids["nodePtr"] = in.Intern(schema.MakePtr(node))
	in.SetStructFields(node, []schema.TypeID{ids["i32"], ids["nodePtr"]})
	ids["arr3"] = in.Intern(schema.MakeArray(3, ids["i32"]))
	ids["unb"] = in.Intern(schema.MakeUnboundedArray(ids["i8"]))
	pair := in.RegisterStruct("")
	in.SetStructFields(pair, []schema.TypeID{ids["i32Ptr"], ids["i32Ptr"]})
	ids["pair"] = pair
	return in, ids
}

func TestMinimalShapes(t *testing.T) {
	in, ids := testSchema(t)

	s := shape.Minimal(in, ids["nodePtr"], freshTag)
	if s.Kind != schema.KindPtr || s.Ptr == nil {
		t.Fatalf("pointer shape missing pointer belief")
	}
	if s.Ptr.State != shape.PtrUnallocated {
		t.Fatalf("minimal pointer must start unallocated, got %v", s.Ptr.State)
	}
	if s.Ptr.Pointee != ids["node"] {
		t.Fatalf("pointee = type#%d, want type#%d", s.Ptr.Pointee, ids["node"])
	}

	st := shape.Minimal(in, ids["node"], freshTag)
	if st.Kind != schema.KindStruct || len(st.Elems) != 2 {
		t.Fatalf("struct shape should mirror its two fields")
	}
	if st.Elems[1].Kind != schema.KindPtr || st.Elems[1].Ptr.State != shape.PtrUnallocated {
		t.Fatalf("nested pointer field should start unallocated")
	}

	arr := shape.Minimal(in, ids["arr3"], freshTag)
	if len(arr.Elems) != 3 {
		t.Fatalf("fixed array shape should have 3 elements, got %d", len(arr.Elems))
	}

	unb := shape.Minimal(in, ids["unb"], freshTag)
	if len(unb.Elems) != 0 {
		t.Fatalf("unbounded array shape should start empty, got %d elements", len(unb.Elems))
	}
}

func TestMinimalPanicsOnValueRecursion(t *testing.T) {
	in := schema.NewInterner()
	bad := in.RegisterStruct("bad")
	in.SetStructFields(bad, []schema.TypeID{bad})
	defer func() {
		if recover() == nil {
			t.Fatalf("value-recursive struct should panic")
		}
	}()
	shape.Minimal(in, bad, freshTag)
}

func TestSeekReachesInitializedElements(t *testing.T) {
	in, ids := testSchema(t)

	// arg: %node*, initialized with one element.
	s := shape.Minimal(in, ids["nodePtr"], freshTag)
	p, red := shape.Expand(in, freshTag, shape.Initialized(1), *s.Ptr)
	if red != shape.RedundancyNone {
		t.Fatalf("unexpected redundancy %v", red)
	}
	s.Ptr = &p

	got, err := shape.Seek(cursor.New(ids["nodePtr"], cursor.Deref(), cursor.Field(0)), s)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if got.Kind != schema.KindInt || got.Type != ids["i32"] {
		t.Fatalf("landed on %v type#%d", got.Kind, got.Type)
	}
}

func TestSeekErrors(t *testing.T) {
	in, ids := testSchema(t)

	oneField := in.RegisterStruct("single")
	in.SetStructFields(oneField, []schema.TypeID{ids["i32"]})

	minimalPtr := shape.Minimal(in, ids["nodePtr"], freshTag)

	allocPtr := minimalPtr
	{
		p, _ := shape.Expand(in, freshTag, shape.Allocated(2), *minimalPtr.Ptr)
		allocPtr.Ptr = &p
	}

	initPtr := minimalPtr
	{
		p, _ := shape.Expand(in, freshTag, shape.Initialized(2), *minimalPtr.Ptr)
		initPtr.Ptr = &p
	}

	cases := []struct {
		name  string
		s     shape.Shape[tags]
		cur   cursor.Cursor
		kind  shape.SeekErrorKind
		depth int
	}{
		{"field out of range", shape.Minimal(in, oneField, freshTag), cursor.New(oneField, cursor.Field(1)), shape.SeekFieldOutOfRange, 0},
		{"deref unallocated", minimalPtr, cursor.New(ids["nodePtr"], cursor.Deref()), shape.SeekUnallocated, 0},
		{"deref allocated", allocPtr, cursor.New(ids["nodePtr"], cursor.Deref()), shape.SeekUninitialized, 0},
		{"element out of range", initPtr, cursor.New(ids["nodePtr"], cursor.DerefElem(2)), shape.SeekElementOutOfRange, 0},
		{"kind mismatch", shape.Minimal(in, ids["i32"], freshTag), cursor.New(ids["i32"], cursor.Deref()), shape.SeekKindMismatch, 0},
		{"unbounded empty", shape.Minimal(in, ids["unb"], freshTag), cursor.New(ids["unb"], cursor.Index(0)), shape.SeekIndexOutOfRange, 0},
		{"deep", initPtr, cursor.New(ids["nodePtr"], cursor.Deref(), cursor.Field(1), cursor.Deref()), shape.SeekUnallocated, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := shape.Seek(tc.cur, tc.s)
			var se *shape.SeekError
			if !errors.As(err, &se) {
				t.Fatalf("expected *SeekError, got %v", err)
			}
			if se.Kind != tc.kind || se.Depth != tc.depth {
				t.Fatalf("got kind=%v depth=%d, want kind=%v depth=%d", se.Kind, se.Depth, tc.kind, tc.depth)
			}
		})
	}
}

func TestUpdateAtIsPersistent(t *testing.T) {
	in, ids := testSchema(t)

	s := shape.Minimal(in, ids["nodePtr"], freshTag)
	p, _ := shape.Expand(in, freshTag, shape.Initialized(2), *s.Ptr)
	s.Ptr = &p

	cur := cursor.New(ids["nodePtr"], cursor.DerefElem(1), cursor.Field(0))
	updated, err := shape.UpdateAt(s, cur, func(n shape.Shape[tags]) (shape.Shape[tags], error) {
		n.Tag = append(tags{"marked"}, n.Tag...)
		return n, nil
	})
	if err != nil {
		t.Fatalf("UpdateAt: %v", err)
	}

	got, err := shape.Seek(cur, updated)
	if err != nil {
		t.Fatalf("Seek updated: %v", err)
	}
	if len(got.Tag) != 1 || got.Tag[0] != "marked" {
		t.Fatalf("updated node tag = %v", got.Tag)
	}

	// The original tree must not see the change.
	old, err := shape.Seek(cur, s)
	if err != nil {
		t.Fatalf("Seek original: %v", err)
	}
	if len(old.Tag) != 0 {
		t.Fatalf("original tree was modified: %v", old.Tag)
	}
}

func TestUpdateAtFailureLeavesNothingBehind(t *testing.T) {
	in, ids := testSchema(t)

	s := shape.Minimal(in, ids["nodePtr"], freshTag)
	boom := errors.New("boom")
	_, err := shape.UpdateAt(s, cursor.New(ids["nodePtr"]), func(shape.Shape[tags]) (shape.Shape[tags], error) {
		return shape.Shape[tags]{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if s.Ptr.State != shape.PtrUnallocated {
		t.Fatalf("input modified on failure")
	}

	// A seek miss inside the path reports the miss and touches nothing.
	_, err = shape.UpdateAt(s, cursor.New(ids["nodePtr"], cursor.Deref()), func(n shape.Shape[tags]) (shape.Shape[tags], error) {
		return n, nil
	})
	var se *shape.SeekError
	if !errors.As(err, &se) || se.Kind != shape.SeekUnallocated {
		t.Fatalf("expected unallocated seek error, got %v", err)
	}
}

func TestUpdatePtrAtRequiresPointerEndpoint(t *testing.T) {
	in, ids := testSchema(t)
	s := shape.Minimal(in, ids["node"], freshTag)
	_, err := shape.UpdatePtrAt(s, cursor.New(ids["node"], cursor.Field(0)), func(p shape.PtrShape[tags]) (shape.PtrShape[tags], error) {
		return p, nil
	})
	var se *shape.SeekError
	if !errors.As(err, &se) || se.Kind != shape.SeekNotPointer {
		t.Fatalf("expected not-a-pointer seek error, got %v", err)
	}
}

func TestWalkVisitsEverything(t *testing.T) {
	in, ids := testSchema(t)
	s := shape.Minimal(in, ids["pair"], freshTag)
	p, _ := shape.Expand(in, freshTag, shape.Initialized(2), *s.Elems[0].Ptr)
	s.Elems[0].Ptr = &p

	count := 0
	shape.Walk(s, func(shape.Shape[tags]) bool {
		count++
		return true
	})
	// pair + 2 pointer fields + 2 initialized i32 elements
	if count != 5 {
		t.Fatalf("walk visited %d nodes, want 5", count)
	}

	first := 0
	shape.Walk(s, func(shape.Shape[tags]) bool {
		first++
		return false
	})
	if first != 1 {
		t.Fatalf("walk should stop when the visitor returns false")
	}
}
