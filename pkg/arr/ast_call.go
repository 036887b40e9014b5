package arr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Arg is one actual argument of a call. A nil Value is an empty argument,
// as in x[, 1].
type Arg struct {
	Name  string
	Value Node
}

// Call applies a function to arguments.
type Call struct {
	Fn   Node
	Args []Arg
	Loc  *SourceLocation

	// replacement marks the call made by a replacement assignment, whose
	// target may be modified in place.
	replacement bool

	site *callSite
}

var _ Node = (*Call)(nil)

func (c *Call) GetSourceLocation() *SourceLocation { return c.Loc }

// FunctionName returns the name of the callee when it is a plain symbol.
func (c *Call) FunctionName() string {
	if l, ok := c.Fn.(*Lookup); ok {
		return l.Name
	}
	return ""
}

func (c *Call) Eval(ctx context.Context, env *Frame) (Value, error) {
	return WithEvalErrorHandling(ctx, c, func() (Value, error) {
		var fn Value
		var err error
		if l, ok := c.Fn.(*Lookup); ok {
			fn, err = env.LookupFunction(ctx, l.Name)
		} else {
			fn, err = EvalNode(ctx, env, c.Fn)
		}
		if err != nil {
			return nil, err
		}
		return callFunction(ctx, env, fn, c)
	})
}

func (c *Call) Walk(fn func(Node) bool) {
	if !fn(c) {
		return
	}
	c.Fn.Walk(fn)
	for _, arg := range c.Args {
		if arg.Value != nil {
			arg.Value.Walk(fn)
		}
	}
}

// callFunction dispatches a call to a closure or a builtin.
func callFunction(ctx context.Context, env *Frame, fn Value, call *Call) (Value, error) {
	switch f := fn.(type) {
	case *Function:
		return callClosure(ctx, env, f, call)
	case *BuiltinFunction:
		return callBuiltin(ctx, env, f.Def, call)
	default:
		return nil, &ArgumentError{Message: "attempt to apply non-function"}
	}
}

// Apply calls fn with already evaluated arguments.
func Apply(ctx context.Context, env *Frame, fn Value, values []Value, names []string) (Value, error) {
	args := make([]Arg, len(values))
	for i, v := range values {
		args[i] = Arg{Value: &Constant{Value: v}}
		if names != nil {
			args[i].Name = names[i]
		}
	}
	return callFunction(ctx, env, fn, &Call{Fn: &Constant{Value: fn}, Args: args})
}

// Dots holds the unmatched arguments bound to ... in a closure frame.
type Dots struct {
	Values []Value
	Names  []string
}

func (d *Dots) Type() Type     { return DotsType }
func (d *Dots) String() string { return "<...>" }

func isDotsArg(arg Arg) bool {
	l, ok := arg.Value.(*Lookup)
	return ok && l.Name == "..."
}

func lookupDots(env *Frame) (*Dots, error) {
	raw, _, ok := env.Get("...")
	if !ok {
		return nil, &ArgumentError{Message: "'...' used in an incorrect context"}
	}
	dots, ok := raw.(*Dots)
	if !ok {
		return nil, &ArgumentError{Message: "'...' used in an incorrect context"}
	}
	return dots, nil
}

func callClosure(ctx context.Context, caller *Frame, f *Function, call *Call) (Value, error) {
	var supplied []Value
	var names []string
	for _, arg := range call.Args {
		if isDotsArg(arg) {
			dots, err := lookupDots(caller)
			if err != nil {
				return nil, err
			}
			supplied = append(supplied, dots.Values...)
			names = append(names, dots.Names...)
			continue
		}
		supplied = append(supplied, argPromise(ctx, caller, arg.Value))
		names = append(names, arg.Name)
	}

	formals := f.formals()
	slots, filled, dots, dotNames, err := matchArgs("", formals, names, supplied)
	if err != nil {
		return nil, err
	}

	frame := NewFrame(f.Env)
	for i, p := range f.Params {
		switch {
		case p.Name == "...":
			frame.Bind("...", &Dots{Values: dots, Names: dotNames})
		case filled[i]:
			frame.Bind(p.Name, slots[i])
		case p.Default != nil:
			frame.Bind(p.Name, newDefaultPromise(p.Default, frame))
		default:
			frame.Bind(p.Name, MissingArg)
		}
	}

	val, err := EvalNode(ctx, frame, f.Body)
	if err != nil {
		var ret *ReturnException
		if errors.As(err, &ret) {
			return ret.Value, nil
		}
		return nil, err
	}
	return val, nil
}

// argPromise wraps an argument expression in a promise, evaluating it on
// the spot when the configuration allows and the result cannot differ.
func argPromise(ctx context.Context, env *Frame, expr Node) Value {
	if expr == nil {
		return MissingArg
	}
	cfg := configFrom(ctx)
	switch e := expr.(type) {
	case *Constant:
		if cfg.EagerEval.Constants {
			return newEagerPromise(e, e.Value)
		}
	case *Lookup:
		if cfg.EagerEval.Variables {
			if raw, ok := env.GetLocal(e.Name); ok {
				switch v := raw.(type) {
				case *Promise:
					if v.IsForced() && v != MissingArg {
						return newVariablePromise(e, v.value, env)
					}
				case *Dots, MissingValue:
				default:
					return newVariablePromise(e, v, env)
				}
			}
		}
	}
	return NewPromise(expr, env)
}

// matchArgs assigns actual arguments to formals: exact names first, then
// unique prefixes of the formals before ..., then positions. Leftovers go
// to ... when the function has it.
func matchArgs[T any](fn string, formals []string, names []string, vals []T) ([]T, []bool, []T, []string, error) {
	slots := make([]T, len(formals))
	filled := make([]bool, len(formals))
	used := make([]bool, len(vals))
	dotsAt := len(formals)
	for j, f := range formals {
		if f == "..." {
			dotsAt = j
			break
		}
	}

	for i, name := range names {
		if name == "" {
			continue
		}
		for j, f := range formals {
			if f != name || f == "..." {
				continue
			}
			if filled[j] {
				return nil, nil, nil, nil, &ArgumentError{Function: fn, Message: fmt.Sprintf("formal argument %q matched by multiple actual arguments", f)}
			}
			slots[j], filled[j], used[i] = vals[i], true, true
			break
		}
	}

	for i, name := range names {
		if name == "" || used[i] {
			continue
		}
		match := -1
		for j := 0; j < dotsAt; j++ {
			if filled[j] || !strings.HasPrefix(formals[j], name) {
				continue
			}
			if match >= 0 {
				return nil, nil, nil, nil, &ArgumentError{Function: fn, Message: fmt.Sprintf("argument %d matches multiple formal arguments", i+1)}
			}
			match = j
		}
		if match >= 0 {
			slots[match], filled[match], used[i] = vals[i], true, true
		}
	}

	j := 0
	for i := range vals {
		if used[i] || names[i] != "" {
			continue
		}
		for j < dotsAt && filled[j] {
			j++
		}
		if j >= dotsAt {
			break
		}
		slots[j], filled[j], used[i] = vals[i], true, true
		j++
	}

	var dots []T
	var dotNames []string
	for i := range vals {
		if used[i] {
			continue
		}
		if dotsAt == len(formals) {
			desc := names[i]
			if desc == "" {
				desc = fmt.Sprintf("#%d", i+1)
			}
			return nil, nil, nil, nil, &ArgumentError{Function: fn, Message: fmt.Sprintf("unused argument (%s)", desc)}
		}
		dots = append(dots, vals[i])
		dotNames = append(dotNames, names[i])
	}
	return slots, filled, dots, dotNames, nil
}

// callSite is the rewritable state a call node keeps for builtin callees.
type callSite struct {
	def     *BuiltinDef
	spec    *Specializer[Args, Value]
	generic bool
	folded  Value
}

func (c *Call) siteFor(def *BuiltinDef) *callSite {
	if c.site == nil {
		name := def.Name
		if c.Loc != nil {
			name = fmt.Sprintf("%s@%s", def.Name, c.Loc)
		}
		c.site = &callSite{
			def:  def,
			spec: NewSpecializer(name, def.Impl, def.Specializations...),
		}
	} else if c.site.def != def && !c.site.generic {
		// the callee was rebound; this site never specializes again
		slog.Debug("call site despecialized", "site", c.site.def.Name, "callee", def.Name)
		c.site.generic = true
		c.site.folded = nil
	}
	return c.site
}

func (c *Call) foldable(def *BuiltinDef) bool {
	if def.Behavior != Pure {
		return false
	}
	for _, arg := range c.Args {
		if _, ok := arg.Value.(*Constant); !ok {
			return false
		}
	}
	return true
}

func callBuiltin(ctx context.Context, env *Frame, def *BuiltinDef, call *Call) (Value, error) {
	var val Value
	var err error
	if def.Kind == SpecialBuiltin {
		val, err = callSpecial(ctx, env, def, call)
	} else {
		val, err = callEager(ctx, env, def, call)
	}
	if err != nil {
		return nil, err
	}
	switch def.Visibility {
	case VisibleOn:
		SetVisible(ctx, true)
	case VisibleOff:
		SetVisible(ctx, false)
	}
	return val, nil
}

func callSpecial(ctx context.Context, env *Frame, def *BuiltinDef, call *Call) (Value, error) {
	values := make([]Value, 0, len(call.Args))
	names := make([]string, 0, len(call.Args))
	for _, arg := range call.Args {
		if arg.Value == nil {
			values = append(values, MissingArg)
		} else {
			values = append(values, NewPromise(arg.Value, env))
		}
		names = append(names, arg.Name)
	}
	args, err := newArgs(def, env, call, names, values)
	if err != nil {
		return nil, err
	}
	return def.Impl(ctx, args)
}

func callEager(ctx context.Context, env *Frame, def *BuiltinDef, call *Call) (Value, error) {
	site := call.siteFor(def)
	if site.folded != nil && specializationEnabled(ctx) {
		return site.folded, nil
	}
	values, names, err := evalArgs(ctx, env, call.Args)
	if err != nil {
		return nil, err
	}
	args, err := newArgs(def, env, call, names, values)
	if err != nil {
		return nil, err
	}
	warned := warningCount(ctx)
	var val Value
	if site.generic {
		val, err = def.Impl(ctx, args)
	} else {
		val, err = site.spec.Execute(ctx, args)
	}
	if err != nil {
		return nil, err
	}
	// a folded result would skip its warnings on later evaluations
	if !site.generic && specializationEnabled(ctx) && call.foldable(def) && warningCount(ctx) == warned {
		MarkSharedPermanent(val)
		site.folded = val
		slog.Debug("constant folded", "builtin", def.Name)
	}
	return val, nil
}

// evalArgs evaluates arguments left to right, expanding ... in place.
func evalArgs(ctx context.Context, env *Frame, args []Arg) ([]Value, []string, error) {
	values := make([]Value, 0, len(args))
	names := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case arg.Value == nil:
			values = append(values, MissingValue{})
			names = append(names, arg.Name)
		case isDotsArg(arg):
			dots, err := lookupDots(env)
			if err != nil {
				return nil, nil, err
			}
			for i, p := range dots.Values {
				v, err := Force(ctx, p)
				if err != nil {
					return nil, nil, err
				}
				values = append(values, v)
				names = append(names, dots.Names[i])
			}
		default:
			v, err := EvalNode(ctx, env, arg.Value)
			if err != nil {
				return nil, nil, err
			}
			values = append(values, v)
			names = append(names, arg.Name)
		}
	}
	return values, names, nil
}
