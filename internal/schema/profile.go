package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile bundles the interned types and the symbol table loaded from a
// module profile file.
//
// A profile is YAML with three sections:
//
//	types:
//	  node:
//	    struct:
//	      - {int: 32}
//	      - {ptr: node}
//	functions:
//	  process:
//	    args: [{ptr: node}, {int: 64}]
//	    ret: {int: 32}
//	globals:
//	  counter: {int: 64}
//
// Type expressions are single-key mappings ({int: N}, {float: double},
// {ptr: T}, {array: {len: N, elem: T}}, {unbounded: T}, {struct: [T, ...]},
// {func: void|nonvoid}, {named: x}) or plain scalars: "opaque" for an
// opaque pointer, any other scalar for a named type reference. Structs
// named under types: may refer to themselves through a pointer.
type Profile struct {
	Types  *Interner
	Module *ModuleTypes
}

// LoadProfile reads and parses a profile file.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	p, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// ParseProfile parses profile YAML into an interner and a symbol table.
func ParseProfile(data []byte) (*Profile, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("profile: empty document")
	}
	root := doc.Content[0]

	p := &profileParser{
		in:        NewInterner(),
		mod:       NewModuleTypes(),
		aliases:   make(map[string]*yaml.Node),
		structs:   make(map[string]*yaml.Node),
		resolved:  make(map[string]TypeID),
		resolving: make(map[string]bool),
	}
	if err := p.run(root); err != nil {
		return nil, err
	}
	return &Profile{Types: p.in, Module: p.mod}, nil
}

type profileParser struct {
	in  *Interner
	mod *ModuleTypes

	aliases   map[string]*yaml.Node // named non-struct type expressions
	structs   map[string]*yaml.Node // named struct field lists
	resolved  map[string]TypeID
	resolving map[string]bool
}

func (p *profileParser) run(root *yaml.Node) error {
	sections, err := mapPairs(root)
	if err != nil {
		return fmt.Errorf("profile: %w", err)
	}

	var typesNode, funcsNode, globalsNode *yaml.Node
	for _, pair := range sections {
		switch pair.key.Value {
		case "types":
			typesNode = pair.val
		case "functions":
			funcsNode = pair.val
		case "globals":
			globalsNode = pair.val
		default:
			return fmt.Errorf("profile: line %d: unknown section %q", pair.key.Line, pair.key.Value)
		}
	}

	if typesNode != nil {
		if err := p.collectNamed(typesNode); err != nil {
			return err
		}
	}
	if err := p.resolveStructs(); err != nil {
		return err
	}
	if err := p.resolveAliases(); err != nil {
		return err
	}
	if globalsNode != nil {
		if err := p.parseGlobals(globalsNode); err != nil {
			return err
		}
	}
	if funcsNode != nil {
		if err := p.parseFunctions(funcsNode); err != nil {
			return err
		}
	}
	return nil
}

// collectNamed registers struct names up front so that later field
// resolution can close recursive references, and files alias expressions
// for lazy resolution.
func (p *profileParser) collectNamed(node *yaml.Node) error {
	pairs, err := mapPairs(node)
	if err != nil {
		return fmt.Errorf("profile: types: %w", err)
	}
	for _, pair := range pairs {
		name := pair.key.Value
		if _, dup := p.structs[name]; dup {
			return fmt.Errorf("profile: line %d: type %q declared twice", pair.key.Line, name)
		}
		if _, dup := p.aliases[name]; dup {
			return fmt.Errorf("profile: line %d: type %q declared twice", pair.key.Line, name)
		}
		if body, ok := singleKey(pair.val, "struct"); ok {
			p.in.RegisterStruct(name)
			p.structs[name] = body
			continue
		}
		p.aliases[name] = pair.val
	}
	return nil
}

func (p *profileParser) resolveStructs() error {
	for name, body := range p.structs {
		id, _ := p.in.StructByName(name)
		fields, err := p.resolveFields(body)
		if err != nil {
			return fmt.Errorf("profile: struct %q: %w", name, err)
		}
		p.in.SetStructFields(id, fields)
	}
	return nil
}

func (p *profileParser) resolveAliases() error {
	for name := range p.aliases {
		if _, err := p.resolveName(name, p.aliases[name]); err != nil {
			return err
		}
	}
	return nil
}

func (p *profileParser) resolveFields(body *yaml.Node) ([]TypeID, error) {
	if body.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: struct body must be a sequence of field types", body.Line)
	}
	fields := make([]TypeID, 0, len(body.Content))
	for _, f := range body.Content {
		id, err := p.resolveExpr(f)
		if err != nil {
			return nil, err
		}
		fields = append(fields, id)
	}
	return fields, nil
}

func (p *profileParser) resolveExpr(node *yaml.Node) (TypeID, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "opaque" {
			return p.in.Intern(MakeOpaquePtr()), nil
		}
		return p.resolveName(node.Value, node)
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return NoTypeID, fmt.Errorf("line %d: type expression must have exactly one key", node.Line)
		}
		key, val := node.Content[0], node.Content[1]
		switch key.Value {
		case "int":
			var width uint32
			if err := val.Decode(&width); err != nil || width == 0 {
				return NoTypeID, fmt.Errorf("line %d: int width must be a positive integer", val.Line)
			}
			return p.in.Intern(MakeInt(width)), nil
		case "float":
			format, err := ParseFloatFormat(val.Value)
			if err != nil {
				return NoTypeID, fmt.Errorf("line %d: %w", val.Line, err)
			}
			return p.in.Intern(MakeFloat(format)), nil
		case "ptr":
			elem, err := p.resolveExpr(val)
			if err != nil {
				return NoTypeID, err
			}
			return p.in.Intern(MakePtr(elem)), nil
		case "array":
			return p.resolveArray(val)
		case "unbounded":
			elem, err := p.resolveExpr(val)
			if err != nil {
				return NoTypeID, err
			}
			return p.in.Intern(MakeUnboundedArray(elem)), nil
		case "struct":
			id := p.in.RegisterStruct("")
			fields, err := p.resolveFields(val)
			if err != nil {
				return NoTypeID, err
			}
			p.in.SetStructFields(id, fields)
			return id, nil
		case "func":
			switch val.Value {
			case "void":
				return p.in.Intern(MakeFuncPtr(true)), nil
			case "nonvoid":
				return p.in.Intern(MakeFuncPtr(false)), nil
			default:
				return NoTypeID, fmt.Errorf("line %d: func must be void or nonvoid, got %q", val.Line, val.Value)
			}
		case "named":
			return p.resolveName(val.Value, val)
		default:
			return NoTypeID, fmt.Errorf("line %d: unknown type constructor %q", key.Line, key.Value)
		}
	default:
		return NoTypeID, fmt.Errorf("line %d: invalid type expression", node.Line)
	}
}

func (p *profileParser) resolveArray(val *yaml.Node) (TypeID, error) {
	pairs, err := mapPairs(val)
	if err != nil {
		return NoTypeID, fmt.Errorf("line %d: array body: %w", val.Line, err)
	}
	var count uint32
	var haveLen bool
	var elem TypeID
	var haveElem bool
	for _, pair := range pairs {
		switch pair.key.Value {
		case "len":
			if err := pair.val.Decode(&count); err != nil {
				return NoTypeID, fmt.Errorf("line %d: array len must be a non-negative integer", pair.val.Line)
			}
			haveLen = true
		case "elem":
			elem, err = p.resolveExpr(pair.val)
			if err != nil {
				return NoTypeID, err
			}
			haveElem = true
		default:
			return NoTypeID, fmt.Errorf("line %d: unknown array key %q", pair.key.Line, pair.key.Value)
		}
	}
	if !haveLen || !haveElem {
		return NoTypeID, fmt.Errorf("line %d: array requires len and elem", val.Line)
	}
	return p.in.Intern(MakeArray(count, elem)), nil
}

func (p *profileParser) resolveName(name string, node *yaml.Node) (TypeID, error) {
	if id, ok := p.in.StructByName(name); ok {
		return id, nil
	}
	if id, ok := p.resolved[name]; ok {
		return id, nil
	}
	expr, ok := p.aliases[name]
	if !ok {
		return NoTypeID, fmt.Errorf("line %d: unknown type name %q", node.Line, name)
	}
	if p.resolving[name] {
		return NoTypeID, fmt.Errorf("line %d: type %q is recursively defined; recursion must pass through a named struct", node.Line, name)
	}
	p.resolving[name] = true
	id, err := p.resolveExpr(expr)
	delete(p.resolving, name)
	if err != nil {
		return NoTypeID, err
	}
	p.resolved[name] = id
	return id, nil
}

func (p *profileParser) parseGlobals(node *yaml.Node) error {
	pairs, err := mapPairs(node)
	if err != nil {
		return fmt.Errorf("profile: globals: %w", err)
	}
	for _, pair := range pairs {
		id, err := p.resolveExpr(pair.val)
		if err != nil {
			return fmt.Errorf("profile: global %q: %w", pair.key.Value, err)
		}
		p.mod.AddGlobal(pair.key.Value, id)
	}
	return nil
}

func (p *profileParser) parseFunctions(node *yaml.Node) error {
	pairs, err := mapPairs(node)
	if err != nil {
		return fmt.Errorf("profile: functions: %w", err)
	}
	for _, pair := range pairs {
		sig, err := p.parseFuncSig(pair.val)
		if err != nil {
			return fmt.Errorf("profile: function %q: %w", pair.key.Value, err)
		}
		p.mod.AddFunction(pair.key.Value, sig)
	}
	return nil
}

func (p *profileParser) parseFuncSig(node *yaml.Node) (FuncSig, error) {
	pairs, err := mapPairs(node)
	if err != nil {
		return FuncSig{}, err
	}
	var sig FuncSig
	for _, pair := range pairs {
		switch pair.key.Value {
		case "args":
			if pair.val.Kind != yaml.SequenceNode {
				return FuncSig{}, fmt.Errorf("line %d: args must be a sequence", pair.val.Line)
			}
			for _, a := range pair.val.Content {
				id, err := p.resolveExpr(a)
				if err != nil {
					return FuncSig{}, err
				}
				sig.Args = append(sig.Args, id)
			}
		case "ret":
			id, err := p.resolveExpr(pair.val)
			if err != nil {
				return FuncSig{}, err
			}
			sig.Ret = id
		default:
			return FuncSig{}, fmt.Errorf("line %d: unknown function key %q", pair.key.Line, pair.key.Value)
		}
	}
	return sig, nil
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
