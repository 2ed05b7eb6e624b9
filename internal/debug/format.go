package debug

import (
	"fmt"
	"go/token"
	"maps"
	"slices"
	"strings"
)

// FormatRoutine returns a formatted debug string for a transformed routine.
func FormatRoutine(info *Info, fset *token.FileSet) string {
	if info == nil {
		return ""
	}

	var buf strings.Builder

	fmt.Fprintf(&buf, "Function: %s\n", info.Routine)
	if info.Pos.IsValid() {
		fmt.Fprintf(&buf, "  Declared: line %d\n", fset.Position(info.Pos).Line)
	}

	if len(info.Barriers) > 0 {
		fmt.Fprintf(&buf, "\n  Barriers:\n")
		for i, b := range info.Barriers {
			fmt.Fprintf(&buf, "    %d. ", i+1)
			if b.Pos.IsValid() {
				fmt.Fprintf(&buf, "line %d: ", fset.Position(b.Pos).Line)
			}
			fmt.Fprintf(&buf, "%s\n", Message(&b))
			fmt.Fprintf(&buf, "       └─ block%d[%d]\n", b.Block, b.Index)
		}
	} else {
		fmt.Fprintf(&buf, "\n  Barriers: (none)\n")
	}

	if len(info.Counts) > 0 {
		keys := slices.Sorted(maps.Keys(info.Counts))
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = fmt.Sprintf("%s=%d", k, info.Counts[k])
		}
		fmt.Fprintf(&buf, "\n  Counts: %s\n", strings.Join(parts, " "))
	}
	fmt.Fprintf(&buf, "  Identity compares: %d\n", info.PtrEqs)
	if len(info.Unreachable) > 0 {
		names := make([]string, len(info.Unreachable))
		for i, idx := range info.Unreachable {
			names[i] = fmt.Sprintf("block%d", idx)
		}
		fmt.Fprintf(&buf, "  Unreachable: %s\n", strings.Join(names, " "))
	}

	if info.Listing != "" {
		fmt.Fprintf(&buf, "\n  IR:\n")
		for line := range strings.Lines(info.Listing) {
			fmt.Fprintf(&buf, "    %s", line)
		}
		if !strings.HasSuffix(info.Listing, "\n") {
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}
