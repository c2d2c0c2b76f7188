// Package report renders inferred preconditions for humans.
//
// Output is presentation, not contract: consumers that want stable
// structure use the JSON export or the snapshot file, and only the
// overall reading order here is kept deliberate (arguments in
// declaration order, then globals and skipped returns sorted by symbol,
// then relations).
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"prex/internal/constraints"
	"prex/internal/driver"
	"prex/internal/layout"
	"prex/internal/observ"
	"prex/internal/schema"
	"prex/internal/shape"
)

// Renderer prints preconditions and analysis results. Layout is
// optional; without it regions render without byte sizes.
type Renderer struct {
	Types  *schema.Interner
	Layout *layout.Engine

	st styles
}

type styles struct {
	name    *color.Color
	typ     *color.Color
	pred    *color.Color
	dim     *color.Color
	claim   *color.Color
	bad     *color.Color
	warn    *color.Color
	good    *color.Color
	neutral *color.Color
}

// NewRenderer builds a renderer. colorOn false strips all styling.
func NewRenderer(ts *schema.Interner, eng *layout.Engine, colorOn bool) *Renderer {
	st := styles{
		name:    color.New(color.Bold),
		typ:     color.New(color.FgHiBlack),
		pred:    color.New(color.FgMagenta),
		dim:     color.New(color.FgHiBlack),
		claim:   color.New(color.FgGreen),
		bad:     color.New(color.FgRed, color.Bold),
		warn:    color.New(color.FgYellow),
		good:    color.New(color.FgGreen),
		neutral: color.New(color.FgCyan),
	}
	for _, c := range []*color.Color{st.name, st.typ, st.pred, st.dim, st.claim, st.bad, st.warn, st.good, st.neutral} {
		if colorOn {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return &Renderer{Types: ts, Layout: eng, st: st}
}

func (r *Renderer) statusStyle(status driver.Status) *color.Color {
	switch status {
	case driver.StatusClean:
		return r.st.good
	case driver.StatusRefined:
		return r.st.neutral
	case driver.StatusBug, driver.StatusError:
		return r.st.bad
	case driver.StatusBudgetExhausted, driver.StatusStalled:
		return r.st.warn
	default:
		return r.st.dim
	}
}

// Function renders one function's precondition under a status header.
// status and iterations come from the run (or the snapshot) that
// produced cs; cs may be nil when the analysis never got that far.
func (r *Renderer) Function(w io.Writer, name, status string, iterations int, cs *constraints.Constraints) {
	header := fmt.Sprintf("%s: %s", r.st.name.Sprint(name), r.statusStyle(driver.Status(status)).Sprint(status))
	if iterations == 1 {
		header += r.st.dim.Sprint(" after 1 iteration")
	} else if iterations > 1 {
		header += r.st.dim.Sprintf(" after %d iterations", iterations)
	}
	fmt.Fprintf(w, "%s\n", header) //nolint:errcheck
	if cs == nil {
		return
	}
	if cs.IsEmpty() {
		fmt.Fprintf(w, "  no assumptions\n") //nolint:errcheck
		return
	}

	type region struct {
		label string
		shape constraints.ConstrainedShape
	}
	regions := make([]region, 0, cs.NumArgs())
	for i, a := range cs.Args() {
		regions = append(regions, region{label: fmt.Sprintf("arg%d", i), shape: a})
	}
	for _, g := range cs.GlobalNames() {
		s, _ := cs.Global(g)
		regions = append(regions, region{label: "global " + g, shape: s})
	}
	for _, f := range cs.ReturnNames() {
		s, _ := cs.Return(f)
		regions = append(regions, region{label: "ret " + f, shape: s})
	}

	width := 0
	for _, reg := range regions {
		if lw := runewidth.StringWidth(reg.label); lw > width {
			width = lw
		}
	}
	for _, reg := range regions {
		pad := strings.Repeat(" ", width-runewidth.StringWidth(reg.label))
		fmt.Fprintf(w, "  %s%s  %s\n", reg.label, pad, r.nodeLine(reg.shape)) //nolint:errcheck
		r.renderChildren(w, "  "+strings.Repeat(" ", width)+"  ", reg.shape)
	}

	if rels := cs.Relational(); len(rels) > 0 {
		fmt.Fprintf(w, "  relations\n") //nolint:errcheck
		for _, rel := range rels {
			fmt.Fprintf(w, "    %s\n", rel) //nolint:errcheck
		}
	} else {
		fmt.Fprintf(w, "  %s\n", r.st.dim.Sprint("relations: none recorded")) //nolint:errcheck
	}
}

// nodeLine renders one shape node without its children: the type, the
// pointer claim when there is one, and the predicates.
func (r *Renderer) nodeLine(s constraints.ConstrainedShape) string {
	var b strings.Builder
	b.WriteString(r.st.typ.Sprint(schema.FormatType(r.Types, s.Type)))

	switch s.Kind {
	case schema.KindPtr:
		if s.Ptr != nil {
			b.WriteString(" ")
			b.WriteString(r.ptrClaim(s.Ptr))
		}
	case schema.KindStruct, schema.KindArray:
		if sz, ok := r.sizeOf(s.Type); ok {
			b.WriteString(r.st.dim.Sprintf(" (%d bytes)", sz))
		}
	case schema.KindUnboundedArray:
		b.WriteString(r.st.dim.Sprint(" (unsized)"))
	}

	if len(s.Tag) > 0 {
		b.WriteString(" ")
		b.WriteString(r.predList(s.Tag))
	}
	return b.String()
}

// ptrClaim renders the three-state belief with the bytes it claims.
func (r *Renderer) ptrClaim(p *constraints.ConstrainedPtrShape) string {
	switch p.State {
	case shape.PtrUnallocated:
		return r.st.dim.Sprint("unallocated")
	case shape.PtrAllocated:
		claim := fmt.Sprintf("allocated(%d)", p.Count)
		if sz, ok := r.sizeOf(p.Pointee); ok {
			claim += fmt.Sprintf(" (%d bytes)", int(p.Count)*sz)
		}
		return r.st.claim.Sprint(claim)
	case shape.PtrInitialized:
		claim := fmt.Sprintf("initialized[%d]", len(p.Elems))
		if sz, ok := r.sizeOf(p.Pointee); ok {
			claim += fmt.Sprintf(" (%d bytes)", len(p.Elems)*sz)
		}
		return r.st.claim.Sprint(claim)
	default:
		return p.State.String()
	}
}

func (r *Renderer) predList(preds constraints.Preds) string {
	// Stored newest first; read back in arrival order.
	parts := make([]string, 0, len(preds))
	for i := len(preds) - 1; i >= 0; i-- {
		parts = append(parts, preds[i].String())
	}
	return r.st.pred.Sprintf("{%s}", strings.Join(parts, "; "))
}

func (r *Renderer) sizeOf(t schema.TypeID) (int, bool) {
	if r.Layout == nil {
		return 0, false
	}
	sz, err := r.Layout.SizeOf(t)
	if err != nil || sz <= 0 {
		return 0, false
	}
	return sz, true
}

// renderChildren walks below one node with the tree prefixes. Pointer
// children are the initialized pointee elements; struct children are
// the fields; array children are the elements that carry assumptions.
func (r *Renderer) renderChildren(w io.Writer, prefix string, s constraints.ConstrainedShape) {
	type child struct {
		label string
		shape constraints.ConstrainedShape
	}
	var children []child
	skipped := 0

	switch s.Kind {
	case schema.KindPtr:
		if s.Ptr != nil && s.Ptr.State == shape.PtrInitialized {
			for i, e := range s.Ptr.Elems {
				children = append(children, child{label: fmt.Sprintf("[%d]", i), shape: e})
			}
		}
	case schema.KindStruct:
		for i, f := range s.Elems {
			children = append(children, child{label: fmt.Sprintf(".%d", i), shape: f})
		}
	case schema.KindArray, schema.KindUnboundedArray:
		for i, e := range s.Elems {
			if !carriesAssumptions(e) {
				skipped++
				continue
			}
			children = append(children, child{label: fmt.Sprintf("[%d]", i), shape: e})
		}
	}

	for i, c := range children {
		connector := "├─"
		childPrefix := prefix + "│  "
		if i == len(children)-1 && skipped == 0 {
			connector = "└─"
			childPrefix = prefix + "   "
		}
		fmt.Fprintf(w, "%s%s %s %s\n", prefix, connector, c.label, r.nodeLine(c.shape)) //nolint:errcheck
		r.renderChildren(w, childPrefix, c.shape)
	}
	if skipped > 0 {
		fmt.Fprintf(w, "%s└─ %s\n", prefix, r.st.dim.Sprintf("(%d elements unconstrained)", skipped)) //nolint:errcheck
	}
}

// carriesAssumptions reports whether anything below the node deviates
// from the minimal shape.
func carriesAssumptions(s constraints.ConstrainedShape) bool {
	interesting := false
	shape.Walk(s, func(n constraints.ConstrainedShape) bool {
		if len(n.Tag) > 0 || (n.Ptr != nil && n.Ptr.State != shape.PtrUnallocated) {
			interesting = true
			return false
		}
		return true
	})
	return interesting
}

// Result renders one function's full outcome: header, precondition,
// bug verdict, skipped facts, executor failure.
func (r *Renderer) Result(w io.Writer, res driver.FunctionResult) {
	r.Function(w, res.Function, string(res.Status), res.Iterations, res.Final)
	if res.Bug != nil {
		fmt.Fprintf(w, "  %s %s\n", r.st.bad.Sprintf("bug[%s]", res.Bug.Kind), res.Bug.Detail) //nolint:errcheck
	}
	if len(res.Incidents) > 0 {
		fmt.Fprintf(w, "  %s\n", r.st.warn.Sprintf("skipped facts (%d)", len(res.Incidents))) //nolint:errcheck
		for _, inc := range res.Incidents {
			fmt.Fprintf(w, "    iteration %d: %s: %v\n", inc.Iteration, inc.Fact, inc.Err) //nolint:errcheck
		}
	}
	if res.Err != nil {
		fmt.Fprintf(w, "  %s %v\n", r.st.bad.Sprint("error:"), res.Err) //nolint:errcheck
	}
}

// Module renders the run header and a per-function status table.
func (r *Renderer) Module(w io.Writer, res *driver.ModuleResult) {
	fmt.Fprintf(w, "%s\n", r.st.dim.Sprintf("run %s", res.Run)) //nolint:errcheck

	width := 0
	for _, fr := range res.Functions {
		if lw := runewidth.StringWidth(fr.Function); lw > width {
			width = lw
		}
	}
	for _, fr := range res.Functions {
		pad := strings.Repeat(" ", width-runewidth.StringWidth(fr.Function))
		line := fmt.Sprintf("  %s%s  %s", fr.Function, pad, r.statusStyle(fr.Status).Sprint(fr.Status))
		switch {
		case fr.Status == driver.StatusBug && fr.Bug != nil:
			line += fmt.Sprintf("  %s", fr.Bug.Kind)
		case fr.Status == driver.StatusError && fr.Err != nil:
			line += fmt.Sprintf("  %v", fr.Err)
		case fr.Iterations > 0:
			line += r.st.dim.Sprintf("  %d it", fr.Iterations)
		}
		fmt.Fprintf(w, "%s\n", line) //nolint:errcheck
	}
}

// Timings renders per-phase durations the way observ.Timer summarizes
// them.
func (r *Renderer) Timings(w io.Writer, rep observ.Report) {
	if len(rep.Phases) == 0 {
		return
	}
	fmt.Fprintf(w, "  timings:\n") //nolint:errcheck
	for _, p := range rep.Phases {
		line := fmt.Sprintf("    %-20s %7.2f ms", p.Name, p.DurationMS)
		if p.Note != "" {
			line += r.st.dim.Sprintf("  // %s", p.Note)
		}
		fmt.Fprintf(w, "%s\n", line) //nolint:errcheck
	}
	fmt.Fprintf(w, "    %-20s %7.2f ms\n", "total", rep.TotalMS) //nolint:errcheck
}
