package arr

import (
	"context"
	"fmt"
)

// Assign binds the value of Value to Name. Super assignments (<<-) write to
// the nearest enclosing frame defining the name, or the global frame.
type Assign struct {
	Name  string
	Value Node
	Super bool
	Loc   *SourceLocation
}

var _ Node = (*Assign)(nil)

func (a *Assign) GetSourceLocation() *SourceLocation { return a.Loc }

func (a *Assign) Eval(ctx context.Context, env *Frame) (Value, error) {
	return WithEvalErrorHandling(ctx, a, func() (Value, error) {
		val, err := EvalNode(ctx, env, a.Value)
		if err != nil {
			return nil, err
		}
		if a.Super {
			if err := env.SuperAssign(a.Name, val, globalFrame(ctx, env)); err != nil {
				return nil, err
			}
		} else {
			env.Bind(a.Name, val)
		}
		SetVisible(ctx, false)
		return val, nil
	})
}

func (a *Assign) Walk(fn func(Node) bool) {
	if !fn(a) {
		return
	}
	a.Value.Walk(fn)
}

// Index reads x[i] or, with Double, x[[i]]. A nil Index selects everything.
type Index struct {
	X      Node
	Index  Node
	Double bool
	Loc    *SourceLocation
}

var _ Node = (*Index)(nil)

func (i *Index) GetSourceLocation() *SourceLocation { return i.Loc }

func (i *Index) Eval(ctx context.Context, env *Frame) (Value, error) {
	return WithEvalErrorHandling(ctx, i, func() (Value, error) {
		x, err := EvalNode(ctx, env, i.X)
		if err != nil {
			return nil, err
		}
		idx, err := evalIndexArg(ctx, env, i.Index)
		if err != nil {
			return nil, err
		}
		vec, ok := AsVector(x)
		if !ok {
			return nil, &ArgumentError{Message: fmt.Sprintf("object of type '%s' is not subsettable", x.Type())}
		}
		SetVisible(ctx, true)
		if _, isNull := x.(NullValue); isNull {
			return NullValue{}, nil
		}
		if i.Double {
			return Element(vec, idx)
		}
		return Subset(vec, idx)
	})
}

func (i *Index) Walk(fn func(Node) bool) {
	if !fn(i) {
		return
	}
	i.X.Walk(fn)
	if i.Index != nil {
		i.Index.Walk(fn)
	}
}

func evalIndexArg(ctx context.Context, env *Frame, node Node) (Value, error) {
	if node == nil {
		return MissingValue{}, nil
	}
	return EvalNode(ctx, env, node)
}

// IndexAssign implements name[i] <- value and name[[i]] <- value.
type IndexAssign struct {
	Name   string
	Index  Node
	Value  Node
	Double bool
	Loc    *SourceLocation
}

var _ Node = (*IndexAssign)(nil)

func (a *IndexAssign) GetSourceLocation() *SourceLocation { return a.Loc }

func (a *IndexAssign) Eval(ctx context.Context, env *Frame) (Value, error) {
	return WithEvalErrorHandling(ctx, a, func() (Value, error) {
		val, err := EvalNode(ctx, env, a.Value)
		if err != nil {
			return nil, err
		}
		cur, err := replacementTarget(ctx, env, a.Name)
		if err != nil {
			return nil, err
		}
		idx, err := evalIndexArg(ctx, env, a.Index)
		if err != nil {
			return nil, err
		}
		result, err := AssignIndex(cur, idx, val, a.Double)
		if err != nil {
			return nil, err
		}
		env.Bind(a.Name, result)
		SetVisible(ctx, false)
		return val, nil
	})
}

func (a *IndexAssign) Walk(fn func(Node) bool) {
	if !fn(a) {
		return
	}
	if a.Index != nil {
		a.Index.Walk(fn)
	}
	a.Value.Walk(fn)
}

// replacementTarget fetches the value a replacement modifies. A binding
// found in an enclosing frame is shared with that frame, so the local copy
// made by the replacement never leaks back.
func replacementTarget(ctx context.Context, env *Frame, name string) (Value, error) {
	if raw, ok := env.GetLocal(name); ok {
		return forceBinding(ctx, name, raw)
	}
	v, err := env.Lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	MarkShared(v)
	return v, nil
}

// ReplaceAssign implements fn(name, args...) <- value by calling the
// replacement function `fn<-` and rebinding name to its result.
type ReplaceAssign struct {
	Name  string
	Fn    string
	Args  []Arg
	Value Node
	Loc   *SourceLocation
}

var _ Node = (*ReplaceAssign)(nil)

func (r *ReplaceAssign) GetSourceLocation() *SourceLocation { return r.Loc }

func (r *ReplaceAssign) Eval(ctx context.Context, env *Frame) (Value, error) {
	return WithEvalErrorHandling(ctx, r, func() (Value, error) {
		val, err := EvalNode(ctx, env, r.Value)
		if err != nil {
			return nil, err
		}
		cur, err := replacementTarget(ctx, env, r.Name)
		if err != nil {
			return nil, err
		}
		fn, err := env.LookupFunction(ctx, r.Fn+"<-")
		if err != nil {
			return nil, err
		}
		args := make([]Arg, 0, len(r.Args)+2)
		args = append(args, Arg{Value: &Constant{Value: cur}})
		args = append(args, r.Args...)
		args = append(args, Arg{Name: "value", Value: &Constant{Value: val}})
		result, err := callFunction(ctx, env, fn, &Call{Fn: &Lookup{Name: r.Fn + "<-"}, Args: args, Loc: r.Loc, replacement: true})
		if err != nil {
			return nil, err
		}
		env.Bind(r.Name, result)
		SetVisible(ctx, false)
		return val, nil
	})
}

func (r *ReplaceAssign) Walk(fn func(Node) bool) {
	if !fn(r) {
		return
	}
	for _, arg := range r.Args {
		if arg.Value != nil {
			arg.Value.Walk(fn)
		}
	}
	r.Value.Walk(fn)
}
