package arr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Warning is a condition that does not stop evaluation. Warnings are
// collected while a top-level unit runs and reported once it completes.
type Warning struct {
	Call    string
	Message string
}

func (w Warning) String() string {
	if w.Call == "" {
		return w.Message
	}
	return fmt.Sprintf("In %s : %s", w.Call, w.Message)
}

// maxWarnings is how many warnings one top-level unit keeps.
const maxWarnings = 50

// Warn records a warning against the top-level unit being evaluated.
// Outside of an evaluation the warning is logged instead.
func Warn(ctx context.Context, call, message string) {
	st := stateFrom(ctx)
	if st == nil {
		slog.Warn(message, "call", call)
		return
	}
	st.raised++
	if len(st.warnings) < maxWarnings {
		st.warnings = append(st.warnings, Warning{Call: call, Message: message})
	}
}

// warningCount is the number of warnings raised so far, including those
// past maxWarnings.
func warningCount(ctx context.Context) int {
	if st := stateFrom(ctx); st != nil {
		return st.raised
	}
	return 0
}

// Warnf records a warning attributed to the call of the builtin.
func (a Args) Warnf(ctx context.Context, format string, args ...any) {
	call := a.Def.Name
	if a.Call != nil {
		call = Deparse(a.Call)
	}
	Warn(ctx, call, fmt.Sprintf(format, args...))
}

// FormatWarnings renders the warnings of a top-level unit the way they are
// reported after it: a single message on its own, several numbered.
func FormatWarnings(ws []Warning) string {
	switch len(ws) {
	case 0:
		return ""
	case 1:
		return "Warning message:\n" + ws[0].String() + "\n"
	}
	var b strings.Builder
	b.WriteString("Warning messages:\n")
	for i, w := range ws {
		fmt.Fprintf(&b, "%d: %s\n", i+1, w)
	}
	return b.String()
}
