package arr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
)

// SourceLocation represents a location in source code
type SourceLocation struct {
	Filename string
	Line     int
	Column   int
	Length   int // Length of the syntax node that caused the error
}

func (loc *SourceLocation) String() string {
	if loc == nil {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", loc.Filename, loc.Line, loc.Column)
}

type SourceLocatable interface {
	GetSourceLocation() *SourceLocation
}

// SourceError represents an error with source location information
type SourceError struct {
	Inner    error
	Location *SourceLocation
	Source   string // The source code of the file
}

func NewSourceError(inner error, location *SourceLocation, source string) *SourceError {
	return &SourceError{
		Inner:    inner,
		Location: location,
		Source:   source,
	}
}

func (e *SourceError) Unwrap() error {
	return e.Inner
}

func (e *SourceError) Error() string {
	if e.Location == nil {
		return e.Inner.Error()
	}
	return fmt.Sprintf("%s: %s", e.Location, e.Inner)
}

var (
	errorHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	gutterStyle      = lipgloss.NewStyle().Faint(true).Foreground(lipgloss.Color("4"))
	caretStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// FormatWithHighlighting renders the error with a few lines of surrounding
// source and a caret under the offending node.
func (e *SourceError) FormatWithHighlighting() string {
	if e.Location == nil {
		return "Error: " + e.Inner.Error()
	}

	if e.Source == "" && e.Location.Filename != "" {
		contents, err := os.ReadFile(e.Location.Filename)
		if err == nil {
			e.Source = string(contents)
		}
	}

	lines := strings.Split(e.Source, "\n")
	if e.Location.Line < 1 || e.Location.Line > len(lines) {
		return errorHeaderStyle.Render("Error:") + " " + e.Error()
	}

	var result strings.Builder
	fmt.Fprintf(&result, "%s %s\n", errorHeaderStyle.Render("Error:"), e.Inner)
	fmt.Fprintf(&result, "  %s\n", gutterStyle.Render("--> "+e.Location.String()))
	fmt.Fprintf(&result, " %s\n", gutterStyle.Render(padLeft("", 3)+" |"))

	startLine := max(1, e.Location.Line-2)
	endLine := min(len(lines), e.Location.Line+2)
	for i := startLine; i <= endLine; i++ {
		gutter := gutterStyle.Render(padLeft(fmt.Sprintf("%d", i), 3) + " |")
		fmt.Fprintf(&result, " %s %s\n", gutter, lines[i-1])
		if i == e.Location.Line {
			// 1 space + 3 for line number + " | " + column offset
			padding := strings.Repeat(" ", 1+3+3+e.Location.Column-1)
			underline := strings.Repeat("^", max(1, e.Location.Length))
			fmt.Fprintf(&result, "%s%s\n", padding, caretStyle.Render(underline))
		}
	}
	fmt.Fprintf(&result, " %s\n", gutterStyle.Render(padLeft("", 3)+" |"))
	return result.String()
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// EvalContext carries evaluation context including source information
type EvalContext struct {
	Filename string
	Source   string
}

type evalContextKey struct{}

func WithEvalContext(ctx context.Context, evalCtx *EvalContext) context.Context {
	return context.WithValue(ctx, evalContextKey{}, evalCtx)
}

func GetEvalContext(ctx context.Context) *EvalContext {
	if evalCtx, ok := ctx.Value(evalContextKey{}).(*EvalContext); ok {
		return evalCtx
	}
	return nil
}

// CreateEvalError attaches the node's location to err, if it has one.
func CreateEvalError(ctx context.Context, err error, node SourceLocatable) error {
	var sourceErr *SourceError
	if errors.As(err, &sourceErr) {
		return err
	}
	location := node.GetSourceLocation()
	if location == nil {
		return err
	}
	var source string
	if evalCtx := GetEvalContext(ctx); evalCtx != nil {
		source = evalCtx.Source
	}
	return NewSourceError(err, location, source)
}

// WithEvalErrorHandling wraps an Eval method implementation so that errors
// carry the location of the innermost node that produced them.
func WithEvalErrorHandling(ctx context.Context, node SourceLocatable, fn func() (Value, error)) (Value, error) {
	val, err := fn()
	if err != nil {
		if isControlFlow(err) {
			return nil, err
		}
		return nil, CreateEvalError(ctx, err, node)
	}
	return val, nil
}

// BreakException is used to signal a break statement
type BreakException struct{}

func (e *BreakException) Error() string {
	return "no loop for break/next, jumping to top level"
}

// NextException is used to signal a next statement
type NextException struct{}

func (e *NextException) Error() string {
	return "no loop for break/next, jumping to top level"
}

// ReturnException carries the value of return() out of a function body.
type ReturnException struct {
	Value Value
}

func (e *ReturnException) Error() string {
	return "no function to return from, jumping to top level"
}

func isControlFlow(err error) bool {
	var breakEx *BreakException
	var nextEx *NextException
	var returnEx *ReturnException
	return errors.As(err, &breakEx) || errors.As(err, &nextEx) || errors.As(err, &returnEx)
}

// UnboundVariableError is raised when a name has no binding in any frame.
type UnboundVariableError struct {
	Name     string
	Function bool
}

func (e *UnboundVariableError) Error() string {
	if e.Function {
		return fmt.Sprintf("could not find function %q", e.Name)
	}
	return fmt.Sprintf("object '%s' not found", e.Name)
}

// RecursivePromiseError is raised when a promise is forced while it is
// already being forced.
type RecursivePromiseError struct {
	Expr Node
}

func (e *RecursivePromiseError) Error() string {
	return "promise already under evaluation: recursive default argument reference or earlier problems?"
}

// InvalidConditionError is raised by if/while conditions that are NA or
// not of length one.
type InvalidConditionError struct {
	Reason string
}

func (e *InvalidConditionError) Error() string {
	return e.Reason
}

// MissingArgumentError is raised when a missing argument without a default
// is used.
type MissingArgumentError struct {
	Name string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("argument %q is missing, with no default", e.Name)
}

// ArgumentError is raised for malformed arguments to a function.
type ArgumentError struct {
	Function string
	Message  string
}

func (e *ArgumentError) Error() string {
	if e.Function == "" {
		return e.Message
	}
	return fmt.Sprintf("in %s: %s", e.Function, e.Message)
}

// LockedBindingError is raised by writes into a locked frame, such as the
// base frame holding the builtins.
type LockedBindingError struct {
	Name string
	Add  bool
}

func (e *LockedBindingError) Error() string {
	if e.Add {
		return fmt.Sprintf("cannot add binding of '%s' to a locked environment", e.Name)
	}
	return fmt.Sprintf("cannot change value of locked binding for '%s'", e.Name)
}

// CoercionError is raised when no conversion exists between two types.
type CoercionError struct {
	From, To Type
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("cannot coerce type '%s' to vector of type '%s'", e.From, e.To)
}

// NativeInvocationError wraps failures of the native bridge.
type NativeInvocationError struct {
	Symbol string
	Err    error
}

func (e *NativeInvocationError) Error() string {
	return fmt.Sprintf("native routine %q: %s", e.Symbol, e.Err)
}

func (e *NativeInvocationError) Unwrap() error { return e.Err }

// UserError is raised by stop().
type UserError struct {
	Message string
}

func (e *UserError) Error() string {
	return e.Message
}

// CancelledError is returned when evaluation is abandoned because its
// deadline passed or its caller went away.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("evaluation cancelled: %s", e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// InternalError signals a broken interpreter invariant rather than a user
// mistake.
type InternalError struct {
	Message string
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Message
}

// ErrContextClosed is returned by any use of a torn-down Context.
var ErrContextClosed = errors.New("interpreter context is closed")
