// Package constraints stores and grows the inferred precondition of one
// function under analysis.
//
// The aggregate keeps one constrained shape per argument, plus shapes for
// every global and skipped-call return the analysis has had to make
// assumptions about, plus the recorded relational constraints. Arguments
// always exist, starting minimal; global and return entries materialize
// lazily the first time a constraint targets them.
//
// AddConstraint is copy-on-write: it either returns a fresh aggregate
// with exactly one target strengthened, or an error and no aggregate.
// Callers that hold the old value keep a consistent precondition either
// way, which is what lets the driver skip unapplicable facts and carry
// on with the rest.
package constraints

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"prex/internal/cursor"
	"prex/internal/schema"
	"prex/internal/shape"
)

// ErrClobberedMemory reports a constraint targeting memory a skipped call
// overwrote. The engine recognizes the situation but cannot yet push
// constraints through it; callers treat this as "skip this fact", not as
// a malformed input.
var ErrClobberedMemory = errors.New("constraints: target memory was clobbered by a skipped call")

// SymbolErrorKind enumerates symbol resolution failures.
type SymbolErrorKind uint8

const (
	// SymbolUnknownGlobal indicates an undeclared global variable.
	SymbolUnknownGlobal SymbolErrorKind = iota + 1
	SymbolUnknownFunction
	// SymbolVoidFunction indicates a return-value constraint on a
	// function declared void.
	SymbolVoidFunction
)

// SymbolError reports a constraint target the module's symbol tables do
// not know about.
type SymbolError struct {
	Kind SymbolErrorKind
	Name string
}

func (e *SymbolError) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch e.Kind {
	case SymbolUnknownGlobal:
		return fmt.Sprintf("unknown global %q", e.Name)
	case SymbolUnknownFunction:
		return fmt.Sprintf("unknown function %q", e.Name)
	case SymbolVoidFunction:
		return fmt.Sprintf("function %q returns no value", e.Name)
	default:
		return fmt.Sprintf("symbol error kind=%d (%q)", e.Kind, e.Name)
	}
}

// Constraints is the precondition inferred so far for one function.
// Values are immutable once built; all growth goes through AddConstraint.
type Constraints struct {
	args       []ConstrainedShape
	globals    map[string]ConstrainedShape
	returns    map[string]ConstrainedShape
	relational []Relational
}

// Empty builds the empty precondition for a function with the given
// argument types: every argument minimal, nothing assumed about globals
// or skipped calls.
func Empty(ts *schema.Interner, argTypes []schema.TypeID) *Constraints {
	args := make([]ConstrainedShape, len(argTypes))
	for i, typ := range argTypes {
		args[i] = MinimalShape(ts, typ)
	}
	return &Constraints{args: args}
}

// Restore assembles an aggregate from parts that were validated
// elsewhere, the reverse of serializing one. Containers are copied;
// shapes are shared with the caller, who must not modify them afterward.
func Restore(args []ConstrainedShape, globals, returns map[string]ConstrainedShape, relational []Relational) *Constraints {
	c := &Constraints{args: slices.Clone(args)}
	if len(globals) > 0 {
		c.globals = maps.Clone(globals)
	}
	if len(returns) > 0 {
		c.returns = maps.Clone(returns)
	}
	if len(relational) > 0 {
		c.relational = slices.Clone(relational)
	}
	return c
}

// NumArgs reports the number of argument slots.
func (c *Constraints) NumArgs() int {
	return len(c.args)
}

// Args returns the argument shapes in position order. Callers must not
// modify the slice or the trees behind it.
func (c *Constraints) Args() []ConstrainedShape {
	return c.args
}

// Arg returns the shape of argument i.
func (c *Constraints) Arg(i int) (ConstrainedShape, bool) {
	if i < 0 || i >= len(c.args) {
		return ConstrainedShape{}, false
	}
	return c.args[i], true
}

// Global returns the assumed shape of a global, if any constraint has
// touched it.
func (c *Constraints) Global(name string) (ConstrainedShape, bool) {
	s, ok := c.globals[name]
	return s, ok
}

// GlobalNames returns the touched globals in sorted order.
func (c *Constraints) GlobalNames() []string {
	return sortedKeys(c.globals)
}

// Return returns the assumed shape of a skipped function's return value.
func (c *Constraints) Return(function string) (ConstrainedShape, bool) {
	s, ok := c.returns[function]
	return s, ok
}

// ReturnNames returns the skipped functions with return assumptions in
// sorted order.
func (c *Constraints) ReturnNames() []string {
	return sortedKeys(c.returns)
}

// Relational returns the recorded relational constraints in arrival
// order. Callers must not modify the slice.
func (c *Constraints) Relational() []Relational {
	return c.relational
}

// IsEmpty reports whether the aggregate still assumes nothing: all
// argument shapes minimal and no global, return, or relational entries.
func (c *Constraints) IsEmpty() bool {
	if len(c.globals) != 0 || len(c.returns) != 0 || len(c.relational) != 0 {
		return false
	}
	for _, a := range c.args {
		if !isMinimal(a) {
			return false
		}
	}
	return true
}

func isMinimal(s ConstrainedShape) bool {
	minimal := true
	shape.Walk(s, func(n ConstrainedShape) bool {
		if len(n.Tag) > 0 {
			minimal = false
			return false
		}
		if n.Ptr != nil && n.Ptr.State != shape.PtrUnallocated {
			minimal = false
			return false
		}
		if n.Kind == schema.KindUnboundedArray && len(n.Elems) > 0 {
			minimal = false
			return false
		}
		return true
	})
	return minimal
}

// AddConstraint applies one classified fact and returns the strengthened
// aggregate. The receiver is never modified.
//
// Outcomes:
//   - success: a new aggregate, and the redundancy report when a shape
//     constraint was already satisfied (the returned aggregate then equals
//     the receiver).
//   - recoverable failure (nil aggregate, non-nil error): the fact cannot
//     be applied yet. ErrClobberedMemory, *SymbolError, and
//     *shape.SeekError all mean "skip this fact and keep the receiver".
//
// A cursor that does not type-check against the target's declared type is
// a bug in whoever minted the constraint, and panics.
func (c *Constraints) AddConstraint(ts *schema.Interner, mod *schema.ModuleTypes, nc NewConstraint) (*Constraints, shape.Redundancy, error) {
	if nc.Kind == NewRelational {
		next := c.clone()
		next.relational = append(slices.Clone(c.relational), nc.Relational)
		return next, shape.RedundancyNone, nil
	}

	sel := nc.Target
	if sel.Kind == cursor.SelectClobbered {
		return nil, shape.RedundancyNone, ErrClobberedMemory
	}

	declared, cur, err := c.resolveTarget(ts, mod, sel)
	if err != nil {
		return nil, shape.RedundancyNone, err
	}

	typed, err := sel.Cursor.CheckCompatibility(ts, declared)
	if err != nil {
		panic(fmt.Sprintf("constraints: selector %s incompatible with declared type %s: %v",
			sel, schema.FormatType(ts, declared), err))
	}

	var newShape ConstrainedShape
	red := shape.RedundancyNone
	switch nc.Kind {
	case NewPred:
		newShape, err = shape.UpdateAt(cur, typed, func(n ConstrainedShape) (ConstrainedShape, error) {
			n.Tag = append(Preds{nc.Pred}, n.Tag...)
			return n, nil
		})
	case NewShape:
		newShape, err = shape.UpdatePtrAt(cur, typed, func(p ConstrainedPtrShape) (ConstrainedPtrShape, error) {
			grown, r := shape.Expand(ts, FreshPreds, nc.Constraint, p)
			red = r
			return grown, nil
		})
	default:
		panic(fmt.Sprintf("constraints: invalid constraint kind %d", nc.Kind))
	}
	if err != nil {
		return nil, shape.RedundancyNone, err
	}

	next := c.clone()
	switch sel.Kind {
	case cursor.SelectArgument:
		next.args = slices.Clone(c.args)
		next.args[sel.Arg] = newShape
	case cursor.SelectGlobal:
		next.globals = cloneInto(c.globals, sel.Symbol, newShape)
	case cursor.SelectReturn:
		next.returns = cloneInto(c.returns, sel.Symbol, newShape)
	}
	return next, red, nil
}

// resolveTarget finds the declared root type and the current shape for a
// selector, materializing the minimal shape for globals and returns seen
// for the first time.
func (c *Constraints) resolveTarget(ts *schema.Interner, mod *schema.ModuleTypes, sel cursor.Selector) (schema.TypeID, ConstrainedShape, error) {
	switch sel.Kind {
	case cursor.SelectArgument:
		if uint64(sel.Arg) >= uint64(len(c.args)) {
			panic(fmt.Sprintf("constraints: argument %d out of range (%d args)", sel.Arg, len(c.args)))
		}
		cur := c.args[sel.Arg]
		return cur.Type, cur, nil
	case cursor.SelectGlobal:
		declared, ok := mod.Global(sel.Symbol)
		if !ok {
			return schema.NoTypeID, ConstrainedShape{}, &SymbolError{Kind: SymbolUnknownGlobal, Name: sel.Symbol}
		}
		if cur, ok := c.globals[sel.Symbol]; ok {
			return declared, cur, nil
		}
		return declared, MinimalShape(ts, declared), nil
	case cursor.SelectReturn:
		sig, ok := mod.Function(sel.Symbol)
		if !ok {
			return schema.NoTypeID, ConstrainedShape{}, &SymbolError{Kind: SymbolUnknownFunction, Name: sel.Symbol}
		}
		if sig.Ret == schema.NoTypeID {
			return schema.NoTypeID, ConstrainedShape{}, &SymbolError{Kind: SymbolVoidFunction, Name: sel.Symbol}
		}
		if cur, ok := c.returns[sel.Symbol]; ok {
			return sig.Ret, cur, nil
		}
		return sig.Ret, MinimalShape(ts, sig.Ret), nil
	default:
		panic(fmt.Sprintf("constraints: invalid selector kind %v", sel.Kind))
	}
}

// clone copies the aggregate's containers shallowly; shapes are shared.
// Callers replace exactly the container they are about to change.
func (c *Constraints) clone() *Constraints {
	return &Constraints{
		args:       c.args,
		globals:    c.globals,
		returns:    c.returns,
		relational: c.relational,
	}
}

func cloneInto(m map[string]ConstrainedShape, key string, s ConstrainedShape) map[string]ConstrainedShape {
	out := make(map[string]ConstrainedShape, len(m)+1)
	maps.Copy(out, m)
	out[key] = s
	return out
}

func sortedKeys(m map[string]ConstrainedShape) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
