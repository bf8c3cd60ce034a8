package cli

import (
	"fmt"
	"strings"

	"github.com/roach88/sfcpath/internal/dispatch"
	"github.com/roach88/sfcpath/internal/model"
)

// unitView is the JSON form of one finished unit of work.
type unitView struct {
	ID    string      `json:"id"`
	Op    string      `json:"op"`
	Chain string      `json:"chain"`
	State string      `json:"state"`
	Path  *model.Path `json:"path,omitempty"`
	Error *CLIError   `json:"error,omitempty"`
}

func newUnitView(r dispatch.Result) unitView {
	v := unitView{
		ID:    r.ID,
		Op:    r.Op.String(),
		Chain: r.Chain,
		State: r.State.String(),
		Path:  r.Path,
	}
	if r.Err != nil {
		v.Error = &CLIError{Code: ErrorCode(r.Err), Message: r.Err.Error()}
	}
	return v
}

// unitsView summarizes a batch of units.
type unitsView struct {
	Units     []unitView `json:"units"`
	Committed int        `json:"committed"`
	Failed    int        `json:"failed"`
}

func formatUnit(r dispatch.Result) string {
	var b strings.Builder
	mark := "✓"
	switch {
	case r.Err != nil && r.Path != nil:
		mark = "!"
	case r.Err != nil:
		mark = "✗"
	}
	fmt.Fprintf(&b, "%s %s %s", mark, r.Op, r.Chain)
	if r.Path != nil {
		fmt.Fprintf(&b, " -> %s (id %d)", r.Path.Name, r.Path.PathID)
	}
	if r.Err != nil {
		fmt.Fprintf(&b, "\n  [%s] %v", ErrorCode(r.Err), r.Err)
	}
	b.WriteByte('\n')
	return b.String()
}

func formatUnits(v unitsView, results []dispatch.Result) string {
	var b strings.Builder
	for _, r := range results {
		b.WriteString(formatUnit(r))
	}
	fmt.Fprintf(&b, "\n%d committed, %d failed\n", v.Committed, v.Failed)
	return b.String()
}

func formatPath(p model.Path) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (chain %s, id %d, service index %d)\n", p.Name, p.Chain, p.PathID, p.ServiceIndex)
	for i, hop := range p.Hops {
		fwd := hop.Forwarder
		if fwd == "" {
			fwd = "(unbound)"
		}
		fmt.Fprintf(&b, "  %d. %s @ %s\n", i+1, hop.Function, fwd)
	}
	return b.String()
}

func formatPaths(paths []model.Path) string {
	if len(paths) == 0 {
		return "No paths.\n"
	}
	var b strings.Builder
	for _, p := range paths {
		b.WriteString(formatPath(p))
	}
	return b.String()
}

func formatForwarder(f model.Forwarder) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", f.Name)
	if f.Locator != "" {
		fmt.Fprintf(&b, " [%s]", f.Locator)
	}
	if f.PathID != 0 {
		fmt.Fprintf(&b, " path id %d", f.PathID)
	}
	b.WriteByte('\n')
	if len(f.Dictionary) == 0 {
		b.WriteString("  (no bound functions)\n")
		return b.String()
	}
	for _, name := range f.EntryNames() {
		e := f.Dictionary[name]
		fmt.Fprintf(&b, "  %s", e.Name)
		if e.Type != "" {
			fmt.Fprintf(&b, " (%s)", e.Type)
		}
		if e.Locator != "" {
			fmt.Fprintf(&b, " [%s]", e.Locator)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatForwarders(fwds []model.Forwarder) string {
	if len(fwds) == 0 {
		return "No forwarders.\n"
	}
	var b strings.Builder
	for _, f := range fwds {
		b.WriteString(formatForwarder(f))
	}
	return b.String()
}
