// Package store persists analysis results as snapshot files. Snapshots
// hold inferred preconditions in their type-erased view form and carry
// no interner handles: on load every view is replayed against the
// current module profile, so a snapshot whose shapes no longer match the
// declared types is refused rather than guessed at.
package store

import (
	"fmt"
	"time"

	"prex/internal/constraints"
	"prex/internal/cursor"
	"prex/internal/schema"
	"prex/internal/view"
)

// Current snapshot format - increment when the layout changes.
const snapshotFormatVersion uint16 = 1

// StepView is the serialized form of one cursor step.
type StepView struct {
	Kind  string `json:"kind" msgpack:"kind"`
	Index uint32 `json:"index,omitempty" msgpack:"index,omitempty"`
}

// SelectorView is the serialized form of a constraint target. Cursor
// roots are not stored; decode re-derives them from the module profile.
type SelectorView struct {
	Kind   string     `json:"kind" msgpack:"kind"`
	Arg    uint32     `json:"arg,omitempty" msgpack:"arg,omitempty"`
	Symbol string     `json:"symbol,omitempty" msgpack:"symbol,omitempty"`
	Path   []StepView `json:"path,omitempty" msgpack:"path,omitempty"`
}

// RelationalView is the serialized form of a recorded relational fact.
type RelationalView struct {
	Kind  string       `json:"kind" msgpack:"kind"`
	Left  SelectorView `json:"left" msgpack:"left"`
	Right SelectorView `json:"right" msgpack:"right"`
}

// FunctionSnapshot holds one analyzed function's inferred precondition.
type FunctionSnapshot struct {
	Function   string                    `json:"function" msgpack:"function"`
	Status     string                    `json:"status" msgpack:"status"`
	Iterations int                       `json:"iterations" msgpack:"iterations"`
	Args       []view.ShapeView          `json:"args" msgpack:"args"`
	Globals    map[string]view.ShapeView `json:"globals,omitempty" msgpack:"globals,omitempty"`
	Returns    map[string]view.ShapeView `json:"returns,omitempty" msgpack:"returns,omitempty"`
	Relational []RelationalView          `json:"relational,omitempty" msgpack:"relational,omitempty"`
}

// ModuleSnapshot is the on-disk unit: every function analyzed in one run.
type ModuleSnapshot struct {
	Format    uint16             `json:"format" msgpack:"format"`
	Run       string             `json:"run" msgpack:"run"`
	CreatedAt time.Time          `json:"created_at" msgpack:"created_at"`
	Functions []FunctionSnapshot `json:"functions" msgpack:"functions"`
}

// NewModuleSnapshot stamps a snapshot with the current format and time.
func NewModuleSnapshot(run string, fns []FunctionSnapshot) *ModuleSnapshot {
	return &ModuleSnapshot{
		Format:    snapshotFormatVersion,
		Run:       run,
		CreatedAt: time.Now().UTC(),
		Functions: fns,
	}
}

// Function returns the snapshot of the named function, if present.
func (m *ModuleSnapshot) Function(name string) (FunctionSnapshot, bool) {
	for _, fs := range m.Functions {
		if fs.Function == name {
			return fs, true
		}
	}
	return FunctionSnapshot{}, false
}

// EncodeFunction projects a function's constraints into snapshot form.
func EncodeFunction(name, status string, iterations int, cs *constraints.Constraints) FunctionSnapshot {
	fs := FunctionSnapshot{
		Function:   name,
		Status:     status,
		Iterations: iterations,
		Args:       make([]view.ShapeView, 0, cs.NumArgs()),
	}
	for _, a := range cs.Args() {
		fs.Args = append(fs.Args, view.FromShape(constraints.TagOf, a))
	}
	for _, g := range cs.GlobalNames() {
		s, _ := cs.Global(g)
		if fs.Globals == nil {
			fs.Globals = make(map[string]view.ShapeView)
		}
		fs.Globals[g] = view.FromShape(constraints.TagOf, s)
	}
	for _, r := range cs.ReturnNames() {
		s, _ := cs.Return(r)
		if fs.Returns == nil {
			fs.Returns = make(map[string]view.ShapeView)
		}
		fs.Returns[r] = view.FromShape(constraints.TagOf, s)
	}
	for _, r := range cs.Relational() {
		fs.Relational = append(fs.Relational, encodeRelational(r))
	}
	return fs
}

// DecodeFunction replays a function snapshot against the module profile
// and rebuilds the constraints aggregate. Any disagreement between the
// stored views and the declared types comes back as an error.
func DecodeFunction(ts *schema.Interner, mod *schema.ModuleTypes, fs FunctionSnapshot) (*constraints.Constraints, error) {
	sig, ok := mod.Function(fs.Function)
	if !ok {
		return nil, fmt.Errorf("store: snapshot function %q not in module profile", fs.Function)
	}
	if len(fs.Args) != len(sig.Args) {
		return nil, fmt.Errorf("store: function %q: snapshot has %d args, profile declares %d",
			fs.Function, len(fs.Args), len(sig.Args))
	}

	args := make([]constraints.ConstrainedShape, len(fs.Args))
	for i, v := range fs.Args {
		s, err := view.ToShape(ts, constraints.DecodeTag, sig.Args[i], v)
		if err != nil {
			return nil, fmt.Errorf("store: function %q arg %d: %w", fs.Function, i, err)
		}
		args[i] = s
	}

	var globals map[string]constraints.ConstrainedShape
	if len(fs.Globals) > 0 {
		globals = make(map[string]constraints.ConstrainedShape, len(fs.Globals))
		for name, v := range fs.Globals {
			typ, ok := mod.Global(name)
			if !ok {
				return nil, fmt.Errorf("store: function %q: snapshot global %q not in module profile", fs.Function, name)
			}
			s, err := view.ToShape(ts, constraints.DecodeTag, typ, v)
			if err != nil {
				return nil, fmt.Errorf("store: function %q global %q: %w", fs.Function, name, err)
			}
			globals[name] = s
		}
	}

	var returns map[string]constraints.ConstrainedShape
	if len(fs.Returns) > 0 {
		returns = make(map[string]constraints.ConstrainedShape, len(fs.Returns))
		for name, v := range fs.Returns {
			rsig, ok := mod.Function(name)
			if !ok {
				return nil, fmt.Errorf("store: function %q: snapshot return %q not in module profile", fs.Function, name)
			}
			if rsig.Ret == schema.NoTypeID {
				return nil, fmt.Errorf("store: function %q: snapshot return for void function %q", fs.Function, name)
			}
			s, err := view.ToShape(ts, constraints.DecodeTag, rsig.Ret, v)
			if err != nil {
				return nil, fmt.Errorf("store: function %q return %q: %w", fs.Function, name, err)
			}
			returns[name] = s
		}
	}

	var relational []constraints.Relational
	for i, rv := range fs.Relational {
		r, err := decodeRelational(mod, sig, rv)
		if err != nil {
			return nil, fmt.Errorf("store: function %q relational %d: %w", fs.Function, i, err)
		}
		relational = append(relational, r)
	}

	return constraints.Restore(args, globals, returns, relational), nil
}

func encodeRelational(r constraints.Relational) RelationalView {
	return RelationalView{
		Kind:  r.Kind.String(),
		Left:  encodeSelector(r.Left),
		Right: encodeSelector(r.Right),
	}
}

func decodeRelational(mod *schema.ModuleTypes, sig schema.FuncSig, rv RelationalView) (constraints.Relational, error) {
	left, err := decodeSelector(mod, sig, rv.Left)
	if err != nil {
		return constraints.Relational{}, fmt.Errorf("left: %w", err)
	}
	right, err := decodeSelector(mod, sig, rv.Right)
	if err != nil {
		return constraints.Relational{}, fmt.Errorf("right: %w", err)
	}
	switch rv.Kind {
	case "extent-eq":
		return constraints.ExtentEq(left, right), nil
	case "value-eq":
		return constraints.ValueEq(left, right), nil
	default:
		return constraints.Relational{}, fmt.Errorf("unknown relational kind %q", rv.Kind)
	}
}

func encodeSelector(sel cursor.Selector) SelectorView {
	sv := SelectorView{Kind: sel.Kind.String()}
	switch sel.Kind {
	case cursor.SelectArgument:
		sv.Arg = sel.Arg
	case cursor.SelectGlobal, cursor.SelectReturn:
		sv.Symbol = sel.Symbol
	}
	for _, st := range sel.Cursor.Steps() {
		sv.Path = append(sv.Path, StepView{Kind: st.Kind.String(), Index: st.Index})
	}
	return sv
}

func decodeSelector(mod *schema.ModuleTypes, sig schema.FuncSig, sv SelectorView) (cursor.Selector, error) {
	steps, err := decodeSteps(sv.Path)
	if err != nil {
		return cursor.Selector{}, err
	}
	switch sv.Kind {
	case "argument":
		if uint64(sv.Arg) >= uint64(len(sig.Args)) {
			return cursor.Selector{}, fmt.Errorf("argument %d out of range (%d args)", sv.Arg, len(sig.Args))
		}
		return cursor.Argument(sv.Arg, cursor.New(sig.Args[sv.Arg], steps...)), nil
	case "global":
		typ, ok := mod.Global(sv.Symbol)
		if !ok {
			return cursor.Selector{}, fmt.Errorf("unknown global %q", sv.Symbol)
		}
		return cursor.Global(sv.Symbol, cursor.New(typ, steps...)), nil
	case "return":
		fsig, ok := mod.Function(sv.Symbol)
		if !ok {
			return cursor.Selector{}, fmt.Errorf("unknown function %q", sv.Symbol)
		}
		if fsig.Ret == schema.NoTypeID {
			return cursor.Selector{}, fmt.Errorf("function %q returns no value", sv.Symbol)
		}
		return cursor.Return(sv.Symbol, cursor.New(fsig.Ret, steps...)), nil
	case "clobbered":
		return cursor.Clobbered(), nil
	default:
		return cursor.Selector{}, fmt.Errorf("unknown selector kind %q", sv.Kind)
	}
}

func decodeSteps(path []StepView) ([]cursor.Step, error) {
	if len(path) == 0 {
		return nil, nil
	}
	steps := make([]cursor.Step, 0, len(path))
	for i, sv := range path {
		switch sv.Kind {
		case "deref":
			steps = append(steps, cursor.DerefElem(sv.Index))
		case "field":
			steps = append(steps, cursor.Field(sv.Index))
		case "index":
			steps = append(steps, cursor.Index(sv.Index))
		default:
			return nil, fmt.Errorf("step %d: unknown kind %q", i, sv.Kind)
		}
	}
	return steps, nil
}
