package store_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"prex/internal/constraints"
	"prex/internal/cursor"
	"prex/internal/schema"
	"prex/internal/shape"
	"prex/internal/store"
	"prex/internal/view"
)

// fixture: process(%pair*, i64), global counter i64, malloc() -> i8*,
// where %pair = { i32, i32 }.
type fixture struct {
	ts  *schema.Interner
	mod *schema.ModuleTypes
	ids map[string]schema.TypeID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ts := schema.NewInterner()
	ids := map[string]schema.TypeID{}
	ids["i8"] = ts.Intern(schema.MakeInt(8))
	ids["i32"] = ts.Intern(schema.MakeInt(32))
	ids["i64"] = ts.Intern(schema.MakeInt(64))
	ids["i8Ptr"] = ts.Intern(schema.MakePtr(ids["i8"]))
	pair := ts.RegisterStruct("pair")
	ts.SetStructFields(pair, []schema.TypeID{ids["i32"], ids["i32"]})
	ids["pair"] = pair
	ids["pairPtr"] = ts.Intern(schema.MakePtr(pair))

	mod := schema.NewModuleTypes()
	mod.AddGlobal("counter", ids["i64"])
	mod.AddFunction("malloc", schema.FuncSig{Ret: ids["i8Ptr"]})
	mod.AddFunction("process", schema.FuncSig{Args: []schema.TypeID{ids["pairPtr"], ids["i64"]}})

	return &fixture{ts: ts, mod: mod, ids: ids}
}

// refined builds a precondition exercising every snapshot section:
// expanded and refined arguments, a global, a skipped return, and a
// relational fact with a stepped cursor.
func refined(t *testing.T, f *fixture) *constraints.Constraints {
	t.Helper()
	sig, _ := f.mod.Function("process")
	c := constraints.Empty(f.ts, sig.Args)

	add := func(nc constraints.NewConstraint) {
		t.Helper()
		next, _, err := c.AddConstraint(f.ts, f.mod, nc)
		if err != nil {
			t.Fatalf("AddConstraint(%s): %v", nc, err)
		}
		c = next
	}

	add(constraints.NewShapeConstraint(
		cursor.Argument(0, cursor.New(f.ids["pairPtr"])), shape.Initialized(2)))
	add(constraints.NewPredConstraint(
		cursor.Argument(0, cursor.New(f.ids["pairPtr"], cursor.DerefElem(1), cursor.Field(0))),
		constraints.Compare(constraints.CmpNe, 32, 0)))
	add(constraints.NewPredConstraint(
		cursor.Argument(1, cursor.New(f.ids["i64"])),
		constraints.Compare(constraints.CmpSge, 64, 0)))
	add(constraints.NewPredConstraint(
		cursor.Global("counter", cursor.New(f.ids["i64"])), constraints.Aligned(8)))
	add(constraints.NewShapeConstraint(
		cursor.Return("malloc", cursor.New(f.ids["i8Ptr"])), shape.Allocated(16)))
	add(constraints.NewRelationalConstraint(constraints.ExtentEq(
		cursor.Argument(0, cursor.New(f.ids["pairPtr"])),
		cursor.Argument(1, cursor.New(f.ids["i64"])))))
	return c
}

func TestSnapshotRoundTrip(t *testing.T) {
	f := newFixture(t)
	cs := refined(t, f)

	fs := store.EncodeFunction("process", "refined", 3, cs)
	snap := store.NewModuleSnapshot("test-run", []store.FunctionSnapshot{fs})

	path := filepath.Join(t.TempDir(), "prex.snap")
	if err := store.Save(path, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Run != "test-run" || len(loaded.Functions) != 1 {
		t.Fatalf("snapshot header mangled: run=%q functions=%d", loaded.Run, len(loaded.Functions))
	}

	got, ok := loaded.Function("process")
	if !ok {
		t.Fatalf("function snapshot missing after load")
	}
	if got.Status != "refined" || got.Iterations != 3 {
		t.Fatalf("status/iterations mangled: %q/%d", got.Status, got.Iterations)
	}

	decoded, err := store.DecodeFunction(f.ts, f.mod, got)
	if err != nil {
		t.Fatalf("DecodeFunction: %v", err)
	}

	// Re-encoding the decoded aggregate must reproduce the original
	// snapshot exactly; msgpack's generic tag representation has to
	// normalize away.
	again := store.EncodeFunction("process", "refined", 3, decoded)
	if diff := cmp.Diff(fs, again); diff != "" {
		t.Fatalf("snapshot changed across the round trip (-orig +reloaded):\n%s", diff)
	}
}

func TestLoadRejectsUnknownFormat(t *testing.T) {
	f := newFixture(t)
	cs := refined(t, f)

	snap := store.NewModuleSnapshot("run", []store.FunctionSnapshot{
		store.EncodeFunction("process", "refined", 1, cs),
	})
	snap.Format = 99

	path := filepath.Join(t.TempDir(), "prex.snap")
	if err := store.Save(path, snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	_, err := store.Load(path)
	var ve *store.VersionError
	if !errors.As(err, &ve) {
		t.Fatalf("expected *VersionError, got %v", err)
	}
	if ve.Got != 99 {
		t.Fatalf("VersionError.Got = %d, want 99", ve.Got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := store.Load(filepath.Join(t.TempDir(), "absent.snap"))
	if err == nil {
		t.Fatalf("loading a missing snapshot should fail")
	}
}

func TestDecodeRefusesMismatchedProfile(t *testing.T) {
	f := newFixture(t)
	cs := refined(t, f)
	fs := store.EncodeFunction("process", "refined", 1, cs)

	// Unknown function.
	unknown := fs
	unknown.Function = "vanished"
	if _, err := store.DecodeFunction(f.ts, f.mod, unknown); err == nil {
		t.Fatalf("decoding a snapshot of an undeclared function should fail")
	}

	// Arg count drifted.
	short := fs
	short.Args = fs.Args[:1]
	if _, err := store.DecodeFunction(f.ts, f.mod, short); err == nil {
		t.Fatalf("decoding with a missing argument should fail")
	}

	// A global whose stored view no longer matches its declared type.
	bad := fs
	bad.Globals = map[string]view.ShapeView{"counter": {Kind: view.NodePtr}}
	_, err := store.DecodeFunction(f.ts, f.mod, bad)
	var se *view.ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected *view.ShapeError, got %v", err)
	}
}

func TestDecodeRejectsCorruptSelector(t *testing.T) {
	f := newFixture(t)
	cs := refined(t, f)
	fs := store.EncodeFunction("process", "refined", 1, cs)

	fs.Relational = []store.RelationalView{{
		Kind:  "extent-eq",
		Left:  store.SelectorView{Kind: "argument", Arg: 7},
		Right: store.SelectorView{Kind: "argument", Arg: 1},
	}}
	if _, err := store.DecodeFunction(f.ts, f.mod, fs); err == nil {
		t.Fatalf("out-of-range relational selector should fail to decode")
	}

	fs.Relational = []store.RelationalView{{
		Kind:  "spooky",
		Left:  store.SelectorView{Kind: "argument"},
		Right: store.SelectorView{Kind: "argument", Arg: 1},
	}}
	if _, err := store.DecodeFunction(f.ts, f.mod, fs); err == nil {
		t.Fatalf("unknown relational kind should fail to decode")
	}
}
