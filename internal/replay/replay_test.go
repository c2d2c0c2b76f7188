package replay_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prex/internal/constraints"
	"prex/internal/cursor"
	"prex/internal/driver"
	"prex/internal/replay"
	"prex/internal/schema"
	"prex/internal/shape"
)

const profileYAML = `
types:
  pair:
    struct:
      - {int: 32}
      - {ptr: pair}
functions:
  process:
    args: [{ptr: pair}, {int: 64}]
    ret: {int: 32}
  make_pair:
    args: []
    ret: {ptr: pair}
  reset:
    args: []
globals:
  counter: {int: 64}
`

func loadFixture(t *testing.T) *schema.Profile {
	t.Helper()
	p, err := schema.ParseProfile([]byte(profileYAML))
	if err != nil {
		t.Fatalf("ParseProfile: %v", err)
	}
	return p
}

const scriptYAML = `
functions:
  process:
    - facts:
        - at: {arg: 0}
          grow: {initialized: 1}
        - at: {arg: 1}
          pred: {aligned: 8}
        - at: {global: counter}
          pred: {cmp: sge, bits: 64, value: 0}
        - at: {return: make_pair}
          grow: {allocated: 1}
        - relate:
            kind: extent-eq
            left: {arg: 0}
            right: {arg: 1}
    - facts:
        - at: {arg: 0, path: [{deref: 0}, {field: 0}]}
          pred: {cmp: ne, bits: 32, value: 0}
  reset:
    - bug: {kind: oob-write, detail: write past the region}
`

func TestParseScript(t *testing.T) {
	p := loadFixture(t)
	s, err := replay.ParseScript([]byte(scriptYAML), p.Types, p.Module)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}

	want := []string{"process", "reset"}
	got := s.Functions()
	if len(got) != len(want) {
		t.Fatalf("Functions() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Functions() = %v, want %v", got, want)
		}
	}
	if n := s.Batches("process"); n != 2 {
		t.Fatalf("Batches(process) = %d, want 2", n)
	}
	if n := s.Batches("reset"); n != 1 {
		t.Fatalf("Batches(reset) = %d, want 1", n)
	}
	if n := s.Batches("make_pair"); n != 0 {
		t.Fatalf("Batches(make_pair) = %d, want 0", n)
	}

	// The first batch carries the recorded facts in file order.
	exec := replay.NewExecutor(s)
	res, err := exec.Execute(context.Background(), "process", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Facts) != 5 {
		t.Fatalf("batch 1 has %d facts, want 5", len(res.Facts))
	}

	grow := res.Facts[0]
	if grow.Kind != constraints.NewShape || grow.Target.Kind != cursor.SelectArgument || grow.Target.Arg != 0 {
		t.Fatalf("fact 0 = %s, want shape fact on arg0", grow)
	}
	if grow.Constraint.Kind != shape.ConstraintInitialized || grow.Constraint.Count != 1 {
		t.Fatalf("fact 0 constraint = %s, want initialized 1", grow.Constraint)
	}

	aligned := res.Facts[1]
	if aligned.Kind != constraints.NewPred || aligned.Pred.Kind != constraints.PredAligned || aligned.Pred.Align != 8 {
		t.Fatalf("fact 1 = %s, want aligned 8 on arg1", aligned)
	}

	global := res.Facts[2]
	if global.Target.Kind != cursor.SelectGlobal || global.Target.Symbol != "counter" {
		t.Fatalf("fact 2 targets %s, want global counter", global.Target)
	}
	if global.Pred.Op != constraints.CmpSge || global.Pred.Bits != 64 || global.Pred.Value != 0 {
		t.Fatalf("fact 2 pred = %s, want sge i64 0", global.Pred)
	}

	ret := res.Facts[3]
	if ret.Target.Kind != cursor.SelectReturn || ret.Target.Symbol != "make_pair" {
		t.Fatalf("fact 3 targets %s, want ret make_pair", ret.Target)
	}

	rel := res.Facts[4]
	if rel.Kind != constraints.NewRelational || rel.Relational.Kind != constraints.RelExtentEq {
		t.Fatalf("fact 4 = %s, want extent-eq relation", rel)
	}

	res, err = exec.Execute(context.Background(), "process", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(res.Facts) != 1 {
		t.Fatalf("batch 2 has %d facts, want 1", len(res.Facts))
	}
	deep := res.Facts[0]
	if deep.Target.Cursor.Len() != 2 {
		t.Fatalf("batch 2 fact path has %d steps, want 2", deep.Target.Cursor.Len())
	}
}

func TestParseScriptErrors(t *testing.T) {
	p := loadFixture(t)

	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "unknown section",
			yaml: "passes: []\n",
			want: "unknown section",
		},
		{
			name: "unknown function",
			yaml: "functions:\n  nope:\n    - facts: []\n",
			want: "not in module profile",
		},
		{
			// The YAML layer may refuse the duplicate key itself, so only
			// the rejection is asserted, not the message.
			name: "function scripted twice",
			yaml: "functions:\n  reset:\n    - facts: []\n  reset:\n    - facts: []\n",
			want: "",
		},
		{
			name: "batch is neither facts nor bug",
			yaml: "functions:\n  reset:\n    - wat: []\n",
			want: "facts or bug",
		},
		{
			name: "bug without kind",
			yaml: "functions:\n  reset:\n    - bug: {detail: hm}\n",
			want: "requires a kind",
		},
		{
			name: "arg out of range",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {arg: 7}\n          pred: {aligned: 8}\n",
			want: "out of range",
		},
		{
			name: "unknown global",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {global: nope}\n          pred: {aligned: 8}\n",
			want: "unknown global",
		},
		{
			name: "return of void function",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {return: reset}\n          grow: {allocated: 1}\n",
			want: "returns no value",
		},
		{
			name: "two regions",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {arg: 0, global: counter}\n          pred: {aligned: 8}\n",
			want: "more than one region",
		},
		{
			name: "path on clobbered",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {clobbered: true, path: [{field: 0}]}\n          pred: {aligned: 8}\n",
			want: "take no path",
		},
		{
			name: "pred and grow together",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {arg: 0}\n          pred: {aligned: 8}\n          grow: {allocated: 1}\n",
			want: "exactly one of pred or grow",
		},
		{
			name: "neither pred nor grow",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {arg: 0}\n",
			want: "exactly one of pred or grow",
		},
		{
			name: "relate mixed with at",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {arg: 0}\n          relate: {kind: value-eq, left: {arg: 0}, right: {arg: 1}}\n",
			want: "relate excludes",
		},
		{
			name: "unknown relate kind",
			yaml: "functions:\n  process:\n    - facts:\n        - relate: {kind: same-ish, left: {arg: 0}, right: {arg: 1}}\n",
			want: "unknown relate kind",
		},
		{
			name: "unknown step",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {arg: 0, path: [{hop: 1}]}\n          pred: {aligned: 8}\n",
			want: "unknown step",
		},
		{
			name: "path does not type-check",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {arg: 1, path: [{field: 0}]}\n          pred: {aligned: 8}\n",
			want: "type-check",
		},
		{
			name: "unknown cmp op",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {arg: 1}\n          pred: {cmp: gte, bits: 64, value: 0}\n",
			want: "invalid comparison",
		},
		{
			name: "cmp missing bits",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {arg: 1}\n          pred: {cmp: eq, value: 0}\n",
			want: "requires cmp, bits, and value",
		},
		{
			name: "grow with unknown key",
			yaml: "functions:\n  process:\n    - facts:\n        - at: {arg: 0}\n          grow: {reserved: 1}\n",
			want: "allocated or initialized",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := replay.ParseScript([]byte(tc.yaml), p.Types, p.Module)
			if err == nil {
				t.Fatalf("ParseScript accepted %q", tc.yaml)
			}
			if tc.want != "" && !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestExecutorServesBatchesInOrder(t *testing.T) {
	p := loadFixture(t)
	s, err := replay.ParseScript([]byte(scriptYAML), p.Types, p.Module)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	exec := replay.NewExecutor(s)
	ctx := context.Background()

	res, err := exec.Execute(ctx, "process", nil)
	if err != nil || len(res.Facts) != 5 || res.Bug != nil {
		t.Fatalf("call 1 = (%d facts, bug=%v, err=%v), want 5 facts", len(res.Facts), res.Bug, err)
	}
	res, err = exec.Execute(ctx, "process", nil)
	if err != nil || len(res.Facts) != 1 {
		t.Fatalf("call 2 = (%d facts, err=%v), want 1 fact", len(res.Facts), err)
	}
	res, err = exec.Execute(ctx, "process", nil)
	if err != nil || len(res.Facts) != 0 || res.Bug != nil {
		t.Fatalf("call 3 = (%d facts, bug=%v, err=%v), want clean", len(res.Facts), res.Bug, err)
	}

	// reset's position is independent of process's.
	res, err = exec.Execute(ctx, "reset", nil)
	if err != nil || res.Bug == nil {
		t.Fatalf("reset call 1 = (bug=%v, err=%v), want the scripted bug", res.Bug, err)
	}
	if res.Bug.Kind != "oob-write" {
		t.Fatalf("bug kind = %q, want oob-write", res.Bug.Kind)
	}

	// Unscripted functions are always clean.
	res, err = exec.Execute(ctx, "make_pair", nil)
	if err != nil || len(res.Facts) != 0 || res.Bug != nil {
		t.Fatalf("make_pair = (%d facts, bug=%v, err=%v), want clean", len(res.Facts), res.Bug, err)
	}
}

func TestExecutorHonorsCancellation(t *testing.T) {
	p := loadFixture(t)
	s, err := replay.ParseScript([]byte(scriptYAML), p.Types, p.Module)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	exec := replay.NewExecutor(s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := exec.Execute(ctx, "process", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Execute on cancelled context = %v, want context.Canceled", err)
	}
}

func TestLoadScript(t *testing.T) {
	p := loadFixture(t)

	path := filepath.Join(t.TempDir(), "facts.yaml")
	if err := os.WriteFile(path, []byte(scriptYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := replay.LoadScript(path, p.Types, p.Module)
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	if n := s.Batches("process"); n != 2 {
		t.Fatalf("Batches(process) = %d, want 2", n)
	}

	if _, err := replay.LoadScript(filepath.Join(t.TempDir(), "missing.yaml"), p.Types, p.Module); err == nil {
		t.Fatal("LoadScript accepted a missing file")
	}

	// Parse errors carry the file path.
	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("passes: []\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err = replay.LoadScript(bad, p.Types, p.Module)
	if err == nil || !strings.Contains(err.Error(), "bad.yaml") {
		t.Fatalf("LoadScript error = %v, want the path in it", err)
	}
}

func TestReplayDrivesRefinement(t *testing.T) {
	p := loadFixture(t)
	s, err := replay.ParseScript([]byte(scriptYAML), p.Types, p.Module)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	exec := replay.NewExecutor(s)

	res := driver.AnalyzeFunction(context.Background(), p.Types, p.Module, exec, "process", driver.Options{})
	if res.Status != driver.StatusRefined {
		t.Fatalf("status = %s (err=%v), want %s", res.Status, res.Err, driver.StatusRefined)
	}
	if res.Iterations != 3 {
		t.Fatalf("iterations = %d, want 3 (two recorded runs and the clean one)", res.Iterations)
	}
	if len(res.Incidents) != 0 {
		t.Fatalf("incidents = %v, want none", res.Incidents)
	}

	arg0, ok := res.Final.Arg(0)
	if !ok || arg0.Ptr == nil {
		t.Fatal("arg0 shape missing its pointer belief")
	}
	if arg0.Ptr.State != shape.PtrInitialized || len(arg0.Ptr.Elems) != 1 {
		t.Fatalf("arg0 pointee = %s/%d elems, want initialized with 1",
			arg0.Ptr.State, len(arg0.Ptr.Elems))
	}
	field := arg0.Ptr.Elems[0].Elems[0]
	if len(field.Tag) != 1 || field.Tag[0].Op != constraints.CmpNe {
		t.Fatalf("pair field preds = %v, want the recorded ne predicate", field.Tag)
	}
	if _, ok := res.Final.Global("counter"); !ok {
		t.Fatal("global counter never materialized")
	}
	if _, ok := res.Final.Return("make_pair"); !ok {
		t.Fatal("make_pair return assumption never materialized")
	}
	if len(res.Final.Relational()) != 1 {
		t.Fatalf("relational constraints = %d, want 1", len(res.Final.Relational()))
	}
}

func TestReplayReportsBug(t *testing.T) {
	p := loadFixture(t)
	s, err := replay.ParseScript([]byte(scriptYAML), p.Types, p.Module)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	exec := replay.NewExecutor(s)

	res := driver.AnalyzeFunction(context.Background(), p.Types, p.Module, exec, "reset", driver.Options{})
	if res.Status != driver.StatusBug {
		t.Fatalf("status = %s, want %s", res.Status, driver.StatusBug)
	}
	if res.Bug == nil || res.Bug.Kind != "oob-write" {
		t.Fatalf("bug = %v, want oob-write", res.Bug)
	}
}

func TestReplayDrivesModule(t *testing.T) {
	p := loadFixture(t)
	s, err := replay.ParseScript([]byte(scriptYAML), p.Types, p.Module)
	if err != nil {
		t.Fatalf("ParseScript: %v", err)
	}
	exec := replay.NewExecutor(s)

	mres, err := driver.AnalyzeModule(context.Background(), p.Types, p.Module, exec, s.Functions(), driver.Options{Jobs: 2})
	if err != nil {
		t.Fatalf("AnalyzeModule: %v", err)
	}
	byName := make(map[string]driver.FunctionResult, len(mres.Functions))
	for _, fr := range mres.Functions {
		byName[fr.Function] = fr
	}
	if got := byName["process"].Status; got != driver.StatusRefined {
		t.Fatalf("process status = %s, want %s", got, driver.StatusRefined)
	}
	if got := byName["reset"].Status; got != driver.StatusBug {
		t.Fatalf("reset status = %s, want %s", got, driver.StatusBug)
	}
}
