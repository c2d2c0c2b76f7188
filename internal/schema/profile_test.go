package schema

import (
	"strings"
	"testing"
)

const sampleProfile = `
types:
  node:
    struct:
      - {int: 32}
      - {ptr: node}
  buffer: {ptr: {int: 8}}
functions:
  process:
    args: [{ptr: node}, {int: 64}]
    ret: {int: 32}
  reset:
    args: [buffer]
globals:
  counter: {int: 64}
  table: {array: {len: 8, elem: {ptr: node}}}
`

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile([]byte(sampleProfile))
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}

	node, ok := p.Types.StructByName("node")
	if !ok {
		t.Fatalf("struct node not registered")
	}
	info, _ := p.Types.Struct(node)
	if len(info.Fields) != 2 {
		t.Fatalf("node should have 2 fields, got %d", len(info.Fields))
	}
	second := p.Types.MustLookup(info.Fields[1])
	if second.Kind != KindPtr || second.Elem != node {
		t.Fatalf("node field 1 should point back to node")
	}

	sig, ok := p.Module.Function("process")
	if !ok {
		t.Fatalf("function process not declared")
	}
	if len(sig.Args) != 2 {
		t.Fatalf("process should take 2 args, got %d", len(sig.Args))
	}
	arg0 := p.Types.MustLookup(sig.Args[0])
	if arg0.Kind != KindPtr || arg0.Elem != node {
		t.Fatalf("process arg0 should be %%node*")
	}
	if ret := p.Types.MustLookup(sig.Ret); ret.Kind != KindInt || ret.Width != 32 {
		t.Fatalf("process should return i32")
	}

	reset, ok := p.Module.Function("reset")
	if !ok {
		t.Fatalf("function reset not declared")
	}
	if reset.Ret != NoTypeID {
		t.Fatalf("reset should be void")
	}
	if FormatType(p.Types, reset.Args[0]) != "i8*" {
		t.Fatalf("alias buffer should resolve to i8*")
	}

	table, ok := p.Module.Global("table")
	if !ok {
		t.Fatalf("global table not declared")
	}
	if got := FormatType(p.Types, table); got != "[8 x %node*]" {
		t.Fatalf("global table = %s", got)
	}
}

func TestParseProfileOpaqueAndFloats(t *testing.T) {
	src := `
globals:
  handle: opaque
  ratio: {float: double}
  callback: {func: void}
`
	p, err := ParseProfile([]byte(src))
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	handle, _ := p.Module.Global("handle")
	if p.Types.MustLookup(handle).Kind != KindOpaquePtr {
		t.Fatalf("handle should be an opaque pointer")
	}
	ratio, _ := p.Module.Global("ratio")
	if tt := p.Types.MustLookup(ratio); tt.Kind != KindFloat || tt.Format != FormatDouble {
		t.Fatalf("ratio should be double, got %+v", tt)
	}
	cb, _ := p.Module.Global("callback")
	if p.Types.MustLookup(cb).Kind != KindVoidFuncPtr {
		t.Fatalf("callback should be a void function pointer")
	}
}

func TestParseProfileErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"unknown section", "bogus: {}", "unknown section"},
		{"unknown constructor", "globals:\n  g: {vector: 3}", "unknown type constructor"},
		{"unknown name", "globals:\n  g: {ptr: missing}", "unknown type name"},
		{"zero int width", "globals:\n  g: {int: 0}", "int width"},
		{"bad float", "globals:\n  g: {float: quad}", "invalid float format"},
		{"alias cycle", "types:\n  a: {ptr: b}\n  b: {ptr: a}\nglobals:\n  g: a", "recursively defined"},
		{"array missing elem", "globals:\n  g: {array: {len: 3}}", "requires len and elem"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseProfile([]byte(tc.src))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestParseProfileDuplicateTypeName(t *testing.T) {
	// Either the YAML layer or the collector rejects the duplicate;
	// both are acceptable as long as it does not parse.
	if _, err := ParseProfile([]byte("types:\n  a: {int: 8}\n  a: {int: 16}")); err == nil {
		t.Fatalf("duplicate type names should not parse")
	}
}

func TestParseProfileSelfReferenceThroughAlias(t *testing.T) {
	src := `
types:
  list:
    struct:
      - {int: 64}
      - link
  link: {ptr: list}
globals:
  head: link
`
	p, err := ParseProfile([]byte(src))
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	list, _ := p.Types.StructByName("list")
	info, _ := p.Types.Struct(list)
	link := p.Types.MustLookup(info.Fields[1])
	if link.Kind != KindPtr || link.Elem != list {
		t.Fatalf("alias through struct should close the cycle")
	}
}
