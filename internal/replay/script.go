// Package replay drives the refinement loop from recorded fact scripts.
// A script holds, per function, the sequence of fact batches a real
// symbolic-execution engine would have derived run by run; the replay
// executor serves one batch per execution and reports clean (or a
// scripted bug) when the recording ends. This keeps the loop, the CLI,
// and the integration tests runnable without the engine itself.
package replay

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"prex/internal/constraints"
	"prex/internal/cursor"
	"prex/internal/driver"
	"prex/internal/schema"
	"prex/internal/shape"
)

// Script holds recorded fact batches per function.
//
// The YAML form:
//
//	functions:
//	  process:
//	    - facts:
//	        - at: {arg: 0}
//	          grow: {initialized: 1}
//	        - at: {arg: 0, path: [{deref: 0}, {field: 1}]}
//	          pred: {cmp: ne, bits: 32, value: 0}
//	        - relate:
//	            kind: extent-eq
//	            left: {arg: 0}
//	            right: {arg: 1}
//	    - bug: {kind: oob-write, detail: write past the region}
//
// Each list entry is one batch, served by one Execute call: either
// facts to strengthen the precondition with, or a terminal bug verdict.
// Selector regions are arg/global/return/clobbered; path steps are
// {deref: i}, {field: i}, {index: i}. Every path is type-checked
// against the module profile at parse time.
type Script struct {
	batches map[string][]batch
}

type batch struct {
	facts []constraints.NewConstraint
	bug   *driver.Finding
}

// Functions returns the scripted function names in sorted order.
func (s *Script) Functions() []string {
	names := make([]string, 0, len(s.batches))
	for name := range s.batches {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Batches reports how many batches are recorded for a function.
func (s *Script) Batches(function string) int {
	return len(s.batches[function])
}

// LoadScript reads and parses a fact script, resolving every selector
// against the given module profile.
func LoadScript(path string, ts *schema.Interner, mod *schema.ModuleTypes) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	s, err := ParseScript(data, ts, mod)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScript parses fact-script YAML. Selectors resolve their cursor
// roots from the module profile, and every cursor must type-check
// there; a script that disagrees with the profile is refused up front
// so replay can never feed the engine an ill-typed fact.
func ParseScript(data []byte, ts *schema.Interner, mod *schema.ModuleTypes) (*Script, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("script: empty document")
	}
	root := doc.Content[0]

	p := &scriptParser{ts: ts, mod: mod}
	s, err := p.run(root)
	if err != nil {
		return nil, err
	}
	return s, nil
}

type scriptParser struct {
	ts  *schema.Interner
	mod *schema.ModuleTypes
}

func (p *scriptParser) run(root *yaml.Node) (*Script, error) {
	sections, err := mapPairs(root)
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}

	s := &Script{batches: make(map[string][]batch)}
	for _, pair := range sections {
		switch pair.key.Value {
		case "functions":
			if err := p.parseFunctions(pair.val, s); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("script: line %d: unknown section %q", pair.key.Line, pair.key.Value)
		}
	}
	return s, nil
}

func (p *scriptParser) parseFunctions(node *yaml.Node, s *Script) error {
	pairs, err := mapPairs(node)
	if err != nil {
		return fmt.Errorf("script: functions: %w", err)
	}
	for _, pair := range pairs {
		name := pair.key.Value
		sig, ok := p.mod.Function(name)
		if !ok {
			return fmt.Errorf("script: line %d: function %q not in module profile", pair.key.Line, name)
		}
		if _, dup := s.batches[name]; dup {
			return fmt.Errorf("script: line %d: function %q scripted twice", pair.key.Line, name)
		}
		batches, err := p.parseBatches(pair.val, sig)
		if err != nil {
			return fmt.Errorf("script: function %q: %w", name, err)
		}
		s.batches[name] = batches
	}
	return nil
}

func (p *scriptParser) parseBatches(node *yaml.Node, sig schema.FuncSig) ([]batch, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a sequence of batches", node.Line)
	}
	batches := make([]batch, 0, len(node.Content))
	for _, bn := range node.Content {
		b, err := p.parseBatch(bn, sig)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (p *scriptParser) parseBatch(node *yaml.Node, sig schema.FuncSig) (batch, error) {
	if body, ok := singleKey(node, "facts"); ok {
		if body.Kind != yaml.SequenceNode {
			return batch{}, fmt.Errorf("line %d: facts must be a sequence", body.Line)
		}
		facts := make([]constraints.NewConstraint, 0, len(body.Content))
		for _, fn := range body.Content {
			fact, err := p.parseFact(fn, sig)
			if err != nil {
				return batch{}, err
			}
			facts = append(facts, fact)
		}
		return batch{facts: facts}, nil
	}
	if body, ok := singleKey(node, "bug"); ok {
		return p.parseBug(body)
	}
	return batch{}, fmt.Errorf("line %d: batch must be facts or bug", node.Line)
}

func (p *scriptParser) parseBug(node *yaml.Node) (batch, error) {
	pairs, err := mapPairs(node)
	if err != nil {
		return batch{}, fmt.Errorf("bug: %w", err)
	}
	finding := &driver.Finding{}
	for _, pair := range pairs {
		switch pair.key.Value {
		case "kind":
			finding.Kind = pair.val.Value
		case "detail":
			finding.Detail = pair.val.Value
		default:
			return batch{}, fmt.Errorf("line %d: unknown bug key %q", pair.key.Line, pair.key.Value)
		}
	}
	if finding.Kind == "" {
		return batch{}, fmt.Errorf("line %d: bug requires a kind", node.Line)
	}
	return batch{bug: finding}, nil
}

func (p *scriptParser) parseFact(node *yaml.Node, sig schema.FuncSig) (constraints.NewConstraint, error) {
	pairs, err := mapPairs(node)
	if err != nil {
		return constraints.NewConstraint{}, fmt.Errorf("fact: %w", err)
	}

	var at, pred, grow, relate *yaml.Node
	for _, pair := range pairs {
		switch pair.key.Value {
		case "at":
			at = pair.val
		case "pred":
			pred = pair.val
		case "grow":
			grow = pair.val
		case "relate":
			relate = pair.val
		default:
			return constraints.NewConstraint{}, fmt.Errorf("line %d: unknown fact key %q", pair.key.Line, pair.key.Value)
		}
	}

	if relate != nil {
		if at != nil || pred != nil || grow != nil {
			return constraints.NewConstraint{}, fmt.Errorf("line %d: relate excludes at/pred/grow", node.Line)
		}
		rel, err := p.parseRelational(relate, sig)
		if err != nil {
			return constraints.NewConstraint{}, err
		}
		return constraints.NewRelationalConstraint(rel), nil
	}

	if at == nil {
		return constraints.NewConstraint{}, fmt.Errorf("line %d: fact requires at or relate", node.Line)
	}
	sel, err := p.parseSelector(at, sig)
	if err != nil {
		return constraints.NewConstraint{}, err
	}

	switch {
	case pred != nil && grow == nil:
		pr, err := p.parsePred(pred)
		if err != nil {
			return constraints.NewConstraint{}, err
		}
		return constraints.NewPredConstraint(sel, pr), nil
	case grow != nil && pred == nil:
		c, err := p.parseGrow(grow)
		if err != nil {
			return constraints.NewConstraint{}, err
		}
		return constraints.NewShapeConstraint(sel, c), nil
	default:
		return constraints.NewConstraint{}, fmt.Errorf("line %d: fact requires exactly one of pred or grow", node.Line)
	}
}

func (p *scriptParser) parseRelational(node *yaml.Node, sig schema.FuncSig) (constraints.Relational, error) {
	pairs, err := mapPairs(node)
	if err != nil {
		return constraints.Relational{}, fmt.Errorf("relate: %w", err)
	}
	var kind string
	var left, right *cursor.Selector
	for _, pair := range pairs {
		switch pair.key.Value {
		case "kind":
			kind = pair.val.Value
		case "left":
			sel, err := p.parseSelector(pair.val, sig)
			if err != nil {
				return constraints.Relational{}, err
			}
			left = &sel
		case "right":
			sel, err := p.parseSelector(pair.val, sig)
			if err != nil {
				return constraints.Relational{}, err
			}
			right = &sel
		default:
			return constraints.Relational{}, fmt.Errorf("line %d: unknown relate key %q", pair.key.Line, pair.key.Value)
		}
	}
	if left == nil || right == nil {
		return constraints.Relational{}, fmt.Errorf("line %d: relate requires left and right", node.Line)
	}
	switch kind {
	case "extent-eq":
		return constraints.ExtentEq(*left, *right), nil
	case "value-eq":
		return constraints.ValueEq(*left, *right), nil
	default:
		return constraints.Relational{}, fmt.Errorf("line %d: unknown relate kind %q", node.Line, kind)
	}
}

func (p *scriptParser) parseSelector(node *yaml.Node, sig schema.FuncSig) (cursor.Selector, error) {
	pairs, err := mapPairs(node)
	if err != nil {
		return cursor.Selector{}, fmt.Errorf("selector: %w", err)
	}

	var sel cursor.Selector
	var root schema.TypeID
	var haveRegion bool
	var path *yaml.Node

	setRegion := func(line int) error {
		if haveRegion {
			return fmt.Errorf("line %d: selector has more than one region", line)
		}
		haveRegion = true
		return nil
	}

	for _, pair := range pairs {
		switch pair.key.Value {
		case "arg":
			if err := setRegion(pair.key.Line); err != nil {
				return cursor.Selector{}, err
			}
			var arg uint32
			if err := pair.val.Decode(&arg); err != nil {
				return cursor.Selector{}, fmt.Errorf("line %d: arg must be a non-negative integer", pair.val.Line)
			}
			if uint64(arg) >= uint64(len(sig.Args)) {
				return cursor.Selector{}, fmt.Errorf("line %d: arg %d out of range (%d args)", pair.val.Line, arg, len(sig.Args))
			}
			sel = cursor.Argument(arg, cursor.Cursor{})
			root = sig.Args[arg]
		case "global":
			if err := setRegion(pair.key.Line); err != nil {
				return cursor.Selector{}, err
			}
			typ, ok := p.mod.Global(pair.val.Value)
			if !ok {
				return cursor.Selector{}, fmt.Errorf("line %d: unknown global %q", pair.val.Line, pair.val.Value)
			}
			sel = cursor.Global(pair.val.Value, cursor.Cursor{})
			root = typ
		case "return":
			if err := setRegion(pair.key.Line); err != nil {
				return cursor.Selector{}, err
			}
			fsig, ok := p.mod.Function(pair.val.Value)
			if !ok {
				return cursor.Selector{}, fmt.Errorf("line %d: unknown function %q", pair.val.Line, pair.val.Value)
			}
			if fsig.Ret == schema.NoTypeID {
				return cursor.Selector{}, fmt.Errorf("line %d: function %q returns no value", pair.val.Line, pair.val.Value)
			}
			sel = cursor.Return(pair.val.Value, cursor.Cursor{})
			root = fsig.Ret
		case "clobbered":
			if err := setRegion(pair.key.Line); err != nil {
				return cursor.Selector{}, err
			}
			sel = cursor.Clobbered()
		case "path":
			path = pair.val
		default:
			return cursor.Selector{}, fmt.Errorf("line %d: unknown selector key %q", pair.key.Line, pair.key.Value)
		}
	}

	if !haveRegion {
		return cursor.Selector{}, fmt.Errorf("line %d: selector requires arg, global, return, or clobbered", node.Line)
	}
	if sel.Kind == cursor.SelectClobbered {
		if path != nil {
			return cursor.Selector{}, fmt.Errorf("line %d: clobbered selectors take no path", node.Line)
		}
		return sel, nil
	}

	steps, err := p.parseSteps(path)
	if err != nil {
		return cursor.Selector{}, err
	}
	sel.Cursor = cursor.New(root, steps...)
	if _, err := sel.Cursor.SeekType(p.ts); err != nil {
		return cursor.Selector{}, fmt.Errorf("line %d: path does not type-check: %w", node.Line, err)
	}
	return sel, nil
}

func (p *scriptParser) parseSteps(node *yaml.Node) ([]cursor.Step, error) {
	if node == nil {
		return nil, nil
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: path must be a sequence of steps", node.Line)
	}
	steps := make([]cursor.Step, 0, len(node.Content))
	for _, sn := range node.Content {
		if sn.Kind != yaml.MappingNode || len(sn.Content) != 2 {
			return nil, fmt.Errorf("line %d: step must have exactly one key", sn.Line)
		}
		key, val := sn.Content[0], sn.Content[1]
		var idx uint32
		if err := val.Decode(&idx); err != nil {
			return nil, fmt.Errorf("line %d: step index must be a non-negative integer", val.Line)
		}
		switch key.Value {
		case "deref":
			steps = append(steps, cursor.DerefElem(idx))
		case "field":
			steps = append(steps, cursor.Field(idx))
		case "index":
			steps = append(steps, cursor.Index(idx))
		default:
			return nil, fmt.Errorf("line %d: unknown step %q", key.Line, key.Value)
		}
	}
	return steps, nil
}

func (p *scriptParser) parsePred(node *yaml.Node) (constraints.Pred, error) {
	pairs, err := mapPairs(node)
	if err != nil {
		return constraints.Pred{}, fmt.Errorf("pred: %w", err)
	}

	if body, ok := singleKey(node, "aligned"); ok {
		var align uint32
		if err := body.Decode(&align); err != nil || align == 0 {
			return constraints.Pred{}, fmt.Errorf("line %d: aligned must be a positive integer", body.Line)
		}
		return constraints.Aligned(align), nil
	}

	var opStr string
	var bits uint32
	var value int64
	var haveOp, haveBits, haveValue bool
	for _, pair := range pairs {
		switch pair.key.Value {
		case "cmp":
			opStr = pair.val.Value
			haveOp = true
		case "bits":
			if err := pair.val.Decode(&bits); err != nil {
				return constraints.Pred{}, fmt.Errorf("line %d: bits must be a non-negative integer", pair.val.Line)
			}
			haveBits = true
		case "value":
			if err := pair.val.Decode(&value); err != nil {
				return constraints.Pred{}, fmt.Errorf("line %d: value must be an integer", pair.val.Line)
			}
			haveValue = true
		default:
			return constraints.Pred{}, fmt.Errorf("line %d: unknown pred key %q", pair.key.Line, pair.key.Value)
		}
	}
	if !haveOp || !haveBits || !haveValue {
		return constraints.Pred{}, fmt.Errorf("line %d: cmp pred requires cmp, bits, and value", node.Line)
	}
	op, err := constraints.ParseCmpOp(opStr)
	if err != nil {
		return constraints.Pred{}, fmt.Errorf("line %d: %w", node.Line, err)
	}
	return constraints.Compare(op, bits, value), nil
}

func (p *scriptParser) parseGrow(node *yaml.Node) (shape.Constraint, error) {
	if body, ok := singleKey(node, "allocated"); ok {
		var n uint32
		if err := body.Decode(&n); err != nil {
			return shape.Constraint{}, fmt.Errorf("line %d: allocated must be a non-negative integer", body.Line)
		}
		return shape.Allocated(n), nil
	}
	if body, ok := singleKey(node, "initialized"); ok {
		var n uint32
		if err := body.Decode(&n); err != nil {
			return shape.Constraint{}, fmt.Errorf("line %d: initialized must be a non-negative integer", body.Line)
		}
		return shape.Initialized(n), nil
	}
	return shape.Constraint{}, fmt.Errorf("line %d: grow must be allocated or initialized", node.Line)
}

type yamlPair struct {
	key *yaml.Node
	val *yaml.Node
}

func mapPairs(node *yaml.Node) ([]yamlPair, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	pairs := make([]yamlPair, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		pairs = append(pairs, yamlPair{key: node.Content[i], val: node.Content[i+1]})
	}
	return pairs, nil
}

// singleKey reports whether node is a single-entry mapping with the given
// key, returning the value node when it is.
func singleKey(node *yaml.Node, key string) (*yaml.Node, bool) {
	if node == nil || node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return nil, false
	}
	if node.Content[0].Value != key {
		return nil, false
	}
	return node.Content[1], true
}
