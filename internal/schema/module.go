package schema

import (
	"slices"
)

// FuncSig records the argument and return types of a module function.
// Ret is NoTypeID for void functions.
type FuncSig struct {
	Args []TypeID
	Ret  TypeID
}

// ModuleTypes maps the symbols of the module under analysis to their
// declared types. The engine consults it when a constraint targets a
// global or the return value of a skipped function.
type ModuleTypes struct {
	globals map[string]TypeID
	funcs   map[string]FuncSig
}

// NewModuleTypes creates an empty symbol table.
func NewModuleTypes() *ModuleTypes {
	return &ModuleTypes{
		globals: make(map[string]TypeID),
		funcs:   make(map[string]FuncSig),
	}
}

// AddGlobal declares a global variable.
func (m *ModuleTypes) AddGlobal(name string, typ TypeID) {
	m.globals[name] = typ
}

// AddFunction declares a function signature.
func (m *ModuleTypes) AddFunction(name string, sig FuncSig) {
	m.funcs[name] = FuncSig{Args: slices.Clone(sig.Args), Ret: sig.Ret}
}

// Global returns the declared type of a global variable.
func (m *ModuleTypes) Global(name string) (TypeID, bool) {
	typ, ok := m.globals[name]
	return typ, ok
}

// Function returns the declared signature of a function.
func (m *ModuleTypes) Function(name string) (FuncSig, bool) {
	sig, ok := m.funcs[name]
	return sig, ok
}

// GlobalNames returns all declared globals in sorted order.
func (m *ModuleTypes) GlobalNames() []string {
	names := make([]string, 0, len(m.globals))
	for name := range m.globals {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// FunctionNames returns all declared functions in sorted order.
func (m *ModuleTypes) FunctionNames() []string {
	names := make([]string, 0, len(m.funcs))
	for name := range m.funcs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
