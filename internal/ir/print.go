package ir

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes a textual listing of the routine to w. The output is
// deterministic, so two listings of equal routines are byte-identical.
//
//	routine f(p, q)
//	block0(p, q):
//	    v0 = getfield(p, foo)
//	    goto block1(v0)
//	block1(x):
//	    return x
func Fprint(w io.Writer, r *Routine) error {
	var buf strings.Builder

	var params []Value
	if entry := r.Entry(); entry != nil {
		params = variables(entry.Params)
	}
	fmt.Fprintf(&buf, "routine %s(%s)\n", r.Name, joinValues(params))

	for _, b := range r.Blocks {
		fmt.Fprintf(&buf, "%s(%s):\n", b, joinValues(variables(b.Params)))
		for _, op := range b.Ops {
			fmt.Fprintf(&buf, "    %s\n", op)
		}
		switch {
		case b.Switch != nil:
			fmt.Fprintf(&buf, "    if %s goto %s else %s\n", b.Switch, linkString(b.Exits[0]), linkString(b.Exits[1]))
		case len(b.Exits) == 1:
			fmt.Fprintf(&buf, "    goto %s\n", linkString(b.Exits[0]))
		}
	}

	_, err := io.WriteString(w, buf.String())
	return err
}

// String returns the listing produced by Fprint.
func (r *Routine) String() string {
	var buf strings.Builder
	_ = Fprint(&buf, r)
	return buf.String()
}

func linkString(l *Link) string {
	return fmt.Sprintf("%s(%s)", l.Target, joinValues(l.Args))
}

func variables(vs []*Variable) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}
