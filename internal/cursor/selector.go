package cursor

import "fmt"

// SelectorKind names the top-level region a constraint targets.
type SelectorKind uint8

const (
	SelectArgument SelectorKind = iota + 1
	SelectGlobal
	SelectReturn
	SelectClobbered
)

func (k SelectorKind) String() string {
	switch k {
	case SelectArgument:
		return "argument"
	case SelectGlobal:
		return "global"
	case SelectReturn:
		return "return"
	case SelectClobbered:
		return "clobbered"
	default:
		return fmt.Sprintf("SelectorKind(%d)", k)
	}
}

// Selector pairs a top-level region with a cursor into it. Arg is the
// argument position for SelectArgument; Symbol names the global or the
// skipped function for SelectGlobal and SelectReturn. SelectClobbered is
// a placeholder for memory overwritten by a skipped call; the engine
// recognizes it but cannot apply constraints through it yet.
type Selector struct {
	Kind   SelectorKind
	Arg    uint32
	Symbol string
	Cursor Cursor
}

// Argument targets (a sub-region of) argument arg.
func Argument(arg uint32, c Cursor) Selector {
	return Selector{Kind: SelectArgument, Arg: arg, Cursor: c}
}

// Global targets (a sub-region of) a global variable.
func Global(symbol string, c Cursor) Selector {
	return Selector{Kind: SelectGlobal, Symbol: symbol, Cursor: c}
}

// Return targets (a sub-region of) the value returned by a skipped
// function.
func Return(function string, c Cursor) Selector {
	return Selector{Kind: SelectReturn, Symbol: function, Cursor: c}
}

// Clobbered marks memory whose contents a skipped call overwrote.
func Clobbered() Selector {
	return Selector{Kind: SelectClobbered}
}

func (s Selector) String() string {
	switch s.Kind {
	case SelectArgument:
		return fmt.Sprintf("arg%d%s", s.Arg, pathSuffix(s.Cursor))
	case SelectGlobal:
		return fmt.Sprintf("global:%s%s", s.Symbol, pathSuffix(s.Cursor))
	case SelectReturn:
		return fmt.Sprintf("ret:%s%s", s.Symbol, pathSuffix(s.Cursor))
	case SelectClobbered:
		return "clobbered"
	default:
		return s.Kind.String()
	}
}

func pathSuffix(c Cursor) string {
	if c.Len() == 0 {
		return ""
	}
	return c.String()
}
