package arr

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// registerEnvironmentBuiltins registers the builtins that work on promises,
// frames and control flow.
func registerEnvironmentBuiltins() {
	// force(x): x is already forced by the time the builtin runs
	Builtin("force").
		Doc("Forces the promise of x and returns its value.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			return args.Require("x")
		})

	// missing(x)
	Builtin("missing").
		Doc("Whether the argument x was left out of the call.").
		Params("x").
		Special().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			p, ok := args.Promise("x")
			if !ok {
				return nil, args.Errorf("'missing' needs an argument")
			}
			name, ok := p.Expr.(*Lookup)
			if !ok {
				return nil, args.Errorf("invalid use of 'missing'")
			}
			if _, bound := args.Env.GetLocal(name.Name); !bound {
				return nil, args.Errorf("'missing' can only be used for arguments")
			}
			return NewLogical(LogicalOf(isMissing(args.Env, name.Name))), nil
		})

	// quote(expr)
	Builtin("quote").
		Doc("Returns expr unevaluated.").
		Params("expr").
		Special().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			p, ok := args.Promise("expr")
			if !ok {
				return nil, &MissingArgumentError{Name: "expr"}
			}
			return Quote(p.Expr), nil
		})

	// eval(expr, envir = <calling frame>)
	Builtin("eval").
		Doc("Evaluates a quoted expression in envir.").
		Params("expr", "envir").
		CustomVisibility().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			expr, err := args.Require("expr")
			if err != nil {
				return nil, err
			}
			env, err := envArg(args, "envir")
			if err != nil {
				return nil, err
			}
			switch e := expr.(type) {
			case Language:
				return EvalNode(ctx, env, e.Node)
			case Symbol:
				SetVisible(ctx, true)
				return env.Lookup(ctx, e.Name)
			default:
				SetVisible(ctx, true)
				return expr, nil
			}
		})

	// delayedAssign(x, value, eval.env, assign.env)
	Builtin("delayedAssign").
		Doc("Binds x to a promise of value, to be evaluated on first use.").
		Params("x", "value", "eval.env", "assign.env").
		Special().
		Invisible().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			namePromise, ok := args.Promise("x")
			if !ok {
				return nil, &MissingArgumentError{Name: "x"}
			}
			nameVal, err := namePromise.Force(ctx)
			if err != nil {
				return nil, err
			}
			name, ok := asStringScalar(nameVal)
			if !ok {
				return nil, args.Errorf("invalid first argument")
			}
			value, ok := args.Promise("value")
			if !ok {
				return nil, &MissingArgumentError{Name: "value"}
			}
			evalEnv, err := forcedEnvArg(ctx, args, "eval.env")
			if err != nil {
				return nil, err
			}
			assignEnv, err := forcedEnvArg(ctx, args, "assign.env")
			if err != nil {
				return nil, err
			}
			if err := assignEnv.Assign(name, NewPromise(value.Expr, evalEnv)); err != nil {
				return nil, err
			}
			return NullValue{}, nil
		})

	// exists(x, envir, inherits = TRUE)
	Builtin("exists").
		Doc("Whether a variable named x is bound.").
		Params("x", "envir", "inherits", NewLogical(True)).
		Behavior(ReadsState).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			name, env, err := nameAndEnv(args)
			if err != nil {
				return nil, err
			}
			var ok bool
			if args.GetBool("inherits", true) {
				_, _, ok = env.Get(name)
			} else {
				_, ok = env.GetLocal(name)
			}
			return NewLogical(LogicalOf(ok)), nil
		})

	// get(x, envir, inherits = TRUE)
	Builtin("get").
		Doc("The value of the variable named x.").
		Params("x", "envir", "inherits", NewLogical(True)).
		Behavior(ReadsState).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			name, env, err := nameAndEnv(args)
			if err != nil {
				return nil, err
			}
			if args.GetBool("inherits", true) {
				return env.Lookup(ctx, name)
			}
			raw, ok := env.GetLocal(name)
			if !ok {
				return nil, &UnboundVariableError{Name: name}
			}
			return forceBinding(ctx, name, raw)
		})

	// assign(x, value, envir)
	Builtin("assign").
		Doc("Binds value to the name x in envir.").
		Params("x", "value", "envir").
		Behavior(ModifiesState).
		Invisible().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			name, env, err := nameAndEnv(args)
			if err != nil {
				return nil, err
			}
			value, err := args.Require("value")
			if err != nil {
				return nil, err
			}
			if err := env.Assign(name, value); err != nil {
				return nil, err
			}
			return value, nil
		})

	// rm(..., list = character(), envir)
	Builtin("rm").
		Doc("Removes variables from envir.").
		Params("...", "list", NewString(), "envir").
		Special().
		Invisible().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			var names []string
			for _, d := range args.Dots {
				p, ok := d.(*Promise)
				if !ok {
					continue
				}
				switch e := p.Expr.(type) {
				case *Lookup:
					names = append(names, e.Name)
				case *Constant:
					s, ok := asStringScalar(e.Value)
					if !ok {
						return nil, args.Errorf("... must contain names or character strings")
					}
					names = append(names, s)
				default:
					return nil, args.Errorf("... must contain names or character strings")
				}
			}
			if p, ok := args.Promise("list"); ok {
				v, err := p.Force(ctx)
				if err != nil {
					return nil, err
				}
				if s, ok := v.(Typed[string]); ok {
					names = append(names, elems(s)...)
				}
			}
			env, err := forcedEnvArg(ctx, args, "envir")
			if err != nil {
				return nil, err
			}
			if env.Locked() && len(names) > 0 {
				return nil, &LockedBindingError{Name: names[0]}
			}
			for _, name := range names {
				env.Remove(name)
			}
			return NullValue{}, nil
		})

	// ls(envir)
	Builtin("ls").
		Doc("The sorted names bound in envir, hidden names excluded.").
		Params("envir").
		Behavior(ReadsState).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			env, err := envArg(args, "envir")
			if err != nil {
				return nil, err
			}
			names := []string{}
			for _, name := range env.Names() {
				if !strings.HasPrefix(name, ".") {
					names = append(names, name)
				}
			}
			return NewString(names...), nil
		})

	// environment(fun = NULL)
	Builtin("environment").
		Doc("The frame a closure was defined in, or the calling frame.").
		Params("fun", NullValue{}).
		Behavior(ReadsState).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			fun, _ := args.Get("fun")
			switch f := fun.(type) {
			case NullValue:
				return args.Env, nil
			case *Function:
				return f.Env, nil
			default:
				return NullValue{}, nil
			}
		})

	// new.env(parent)
	Builtin("new.env").
		Doc("A new, empty frame enclosed by parent.").
		Params("parent").
		Behavior(ReadsState).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			parent, err := envArg(args, "parent")
			if err != nil {
				return nil, err
			}
			return NewFrame(parent), nil
		})

	// globalenv()
	Builtin("globalenv").
		Doc("The global frame.").
		Behavior(ReadsState).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			return globalFrame(ctx, args.Env), nil
		})

	// stop(...)
	Builtin("stop").
		Doc("Signals an error with the concatenated message.").
		Params("...").
		Impl(func(ctx context.Context, args Args) (Value, error) {
			parts, err := catStrings(args, args.Dots)
			if err != nil {
				return nil, err
			}
			return nil, &UserError{Message: strings.Join(parts, "")}
		})

	// warning(...)
	Builtin("warning").
		Doc("Records a warning with the concatenated message; it is reported once the top-level expression completes.").
		Params("...").
		Invisible().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			parts, err := catStrings(args, args.Dots)
			if err != nil {
				return nil, err
			}
			msg := strings.Join(parts, "")
			Warn(ctx, "", msg)
			return NewString(msg), nil
		})

	// return(value = NULL)
	Builtin("return").
		Doc("Returns value from the enclosing function.").
		Params("value", NullValue{}).
		CustomVisibility().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			value, _ := args.Get("value")
			return nil, &ReturnException{Value: value}
		})

	// lapply(X, FUN, ...)
	Builtin("lapply").
		Doc("Applies FUN to each element of X, collecting the results in a list.").
		Params("X", "FUN", "...").
		Impl(func(ctx context.Context, args Args) (Value, error) {
			return applyEach(ctx, args)
		})

	// sapply(X, FUN, ...)
	Builtin("sapply").
		Doc("Like lapply, but simplifies results of length one to a vector.").
		Params("X", "FUN", "...").
		Impl(func(ctx context.Context, args Args) (Value, error) {
			res, err := applyEach(ctx, args)
			if err != nil {
				return nil, err
			}
			list := res.(*ListVector)
			for _, el := range list.Data() {
				v, ok := el.(Vector)
				if !ok || !v.Type().IsAtomic() || v.Len() != 1 {
					return list, nil
				}
			}
			var tags []string
			if names, ok := Names(list); ok {
				tags = elems(names)
			}
			return combineValues(list.Data(), tags)
		})

	// do.call(what, args)
	Builtin("do.call").
		Doc("Calls what with the elements of the list args as arguments.").
		Params("what", "args", NewList()).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			fn, err := functionArg(ctx, args, "what")
			if err != nil {
				return nil, err
			}
			callArgs, err := args.Vector("args")
			if err != nil {
				return nil, err
			}
			values := make([]Value, callArgs.Len())
			for i := range values {
				values[i] = element(callArgs, i)
			}
			var names []string
			if n, ok := Names(callArgs); ok {
				names = elems(n)
			}
			return Apply(ctx, args.Env, fn, values, names)
		})

	// Sys.sleep(time)
	Builtin("Sys.sleep").
		Doc("Suspends evaluation for time seconds.").
		Params("time").
		Invisible().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			secs, err := scalarDouble(args, "time")
			if err != nil {
				return nil, err
			}
			if secs < 0 {
				return nil, args.Errorf("invalid 'time' value")
			}
			timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
			defer timer.Stop()
			select {
			case <-timer.C:
				return NullValue{}, nil
			case <-ctx.Done():
				return nil, &CancelledError{Cause: ctx.Err()}
			}
		})
}

// Quote turns a syntax node into the value quote() returns for it.
func Quote(node Node) Value {
	switch n := node.(type) {
	case *Lookup:
		return Symbol{Name: n.Name}
	case *Constant:
		return n.Value
	default:
		return Language{Node: node}
	}
}

// isMissing reports whether name is bound in env to an argument that was
// not supplied, following arguments that merely pass on a caller's
// missing argument.
func isMissing(env *Frame, name string) bool {
	raw, ok := env.GetLocal(name)
	if !ok {
		return false
	}
	switch v := raw.(type) {
	case MissingValue:
		return true
	case *Promise:
		if v == MissingArg || v.defaulted {
			return true
		}
		if v.IsForced() || v.env == nil {
			return false
		}
		if l, ok := v.Expr.(*Lookup); ok {
			return isMissing(v.env, l.Name)
		}
	}
	return false
}

// envArg returns an environment argument, defaulting to the calling frame.
// A named list is turned into a fresh frame holding its elements.
func envArg(args Args, name string) (*Frame, error) {
	v, ok := args.Get(name)
	if !ok {
		return args.Env, nil
	}
	return asFrame(args, name, v)
}

func forcedEnvArg(ctx context.Context, args Args, name string) (*Frame, error) {
	p, ok := args.Promise(name)
	if !ok {
		return args.Env, nil
	}
	v, err := p.Force(ctx)
	if err != nil {
		return nil, err
	}
	return asFrame(args, name, v)
}

func asFrame(args Args, name string, v Value) (*Frame, error) {
	switch e := v.(type) {
	case *Frame:
		return e, nil
	case *ListVector:
		frame := NewFrame(args.Env)
		names, ok := Names(e)
		if !ok && e.Len() > 0 {
			return nil, args.Errorf("all elements of a list used as '%s' must be named", name)
		}
		for i := 0; i < e.Len(); i++ {
			frame.Bind(names.At(i), e.At(i))
		}
		return frame, nil
	}
	return nil, args.Errorf("invalid '%s' argument of type '%s'", name, v.Type())
}

func nameAndEnv(args Args) (string, *Frame, error) {
	name, ok := args.GetString("x")
	if !ok {
		return "", nil, args.Errorf("invalid first argument")
	}
	env, err := envArg(args, "envir")
	if err != nil {
		return "", nil, err
	}
	return name, env, nil
}

// functionArg resolves a function argument given as a function or by name.
func functionArg(ctx context.Context, args Args, name string) (Value, error) {
	v, err := args.Require(name)
	if err != nil {
		return nil, err
	}
	if s, ok := asStringScalar(v); ok {
		return args.Env.LookupFunction(ctx, s)
	}
	if v.Type() != FunctionType {
		return nil, args.Errorf("'%s' is not a function, character or symbol", name)
	}
	return v, nil
}

func applyEach(ctx context.Context, args Args) (Value, error) {
	x, err := args.Vector("X")
	if err != nil {
		return nil, err
	}
	fn, err := functionArg(ctx, args, "FUN")
	if err != nil {
		return nil, err
	}
	if IsFactor(x) {
		if x, err = MakeClosure(x, StringType, true); err != nil {
			return nil, err
		}
	}
	out := make([]Value, x.Len())
	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, &CancelledError{Cause: err}
		}
		values := append([]Value{element(x, i)}, args.Dots...)
		names := append([]string{""}, args.DotNames...)
		v, err := Apply(ctx, args.Env, fn, values, names)
		if err != nil {
			return nil, fmt.Errorf("in FUN(X[[%d]]): %w", i+1, err)
		}
		out[i] = v
	}
	list := NewList(out...)
	if names, ok := Names(x); ok {
		if err := list.SetAttr("names", names); err != nil {
			return nil, err
		}
	}
	return list, nil
}
