package arr

import (
	"context"
	"errors"
	"math"
)

const naConditionMessage = "missing value where TRUE/FALSE needed"

// If evaluates Then or Else depending on a scalar condition.
type If struct {
	Cond Node
	Then Node
	Else Node // nil when absent
	Loc  *SourceLocation

	conv *Specializer[Value, Logical]
}

var _ Node = (*If)(nil)

func (c *If) GetSourceLocation() *SourceLocation { return c.Loc }

func (c *If) Eval(ctx context.Context, env *Frame) (Value, error) {
	return WithEvalErrorHandling(ctx, c, func() (Value, error) {
		if c.conv == nil {
			c.conv = newConditionConverter("if")
		}
		condVal, err := EvalNode(ctx, env, c.Cond)
		if err != nil {
			return nil, err
		}
		cond, err := c.conv.Execute(ctx, condVal)
		if err != nil {
			return nil, err
		}
		// The result of an else-less if with a false condition is invisible.
		SetVisible(ctx, c.Else != nil || cond == True)
		switch {
		case cond == NALogical:
			return nil, &InvalidConditionError{Reason: naConditionMessage}
		case cond == True:
			return EvalNode(ctx, env, c.Then)
		case c.Else != nil:
			return EvalNode(ctx, env, c.Else)
		default:
			return NullValue{}, nil
		}
	})
}

func (c *If) Walk(fn func(Node) bool) {
	if !fn(c) {
		return
	}
	c.Cond.Walk(fn)
	c.Then.Walk(fn)
	if c.Else != nil {
		c.Else.Walk(fn)
	}
}

// newConditionConverter specializes the conversion of a condition value to
// a three-valued logical. Scalars of the common types get fast paths.
func newConditionConverter(site string) *Specializer[Value, Logical] {
	return NewSpecializer(site, convertCondition,
		Specialization[Value, Logical]{
			Name: "logical",
			Guard: func(v Value) bool {
				l, ok := v.(*LogicalVector)
				return ok && l.Len() == 1
			},
			Impl: func(_ context.Context, v Value) (Logical, error) {
				return v.(*LogicalVector).At(0), nil
			},
		},
		Specialization[Value, Logical]{
			Name: "integer",
			Guard: func(v Value) bool {
				i, ok := v.(*IntVector)
				return ok && i.Len() == 1 && !IsFactor(i)
			},
			Impl: func(_ context.Context, v Value) (Logical, error) {
				i := v.(*IntVector).At(0)
				if i == NAInteger {
					return NALogical, nil
				}
				return LogicalOf(i != 0), nil
			},
		},
		Specialization[Value, Logical]{
			Name: "double",
			Guard: func(v Value) bool {
				d, ok := v.(*DoubleVector)
				return ok && d.Len() == 1
			},
			Impl: func(_ context.Context, v Value) (Logical, error) {
				return doubleCondition(v.(*DoubleVector).At(0))
			},
		},
	)
}

var errNotLogical = &InvalidConditionError{Reason: "argument is not interpretable as logical"}

// doubleCondition distinguishes NA, which is a missing condition, from
// NaN, which has no logical reading at all.
func doubleCondition(d float64) (Logical, error) {
	switch {
	case IsNADouble(d):
		return NALogical, nil
	case math.IsNaN(d):
		return NALogical, errNotLogical
	}
	return LogicalOf(d != 0), nil
}

func convertCondition(_ context.Context, v Value) (Logical, error) {
	notLogical := errNotLogical
	vec, ok := v.(Vector)
	if !ok {
		if _, isNull := v.(NullValue); isNull {
			return NALogical, &InvalidConditionError{Reason: "argument is of length zero"}
		}
		return NALogical, notLogical
	}
	switch {
	case vec.Len() == 0:
		return NALogical, &InvalidConditionError{Reason: "argument is of length zero"}
	case vec.Len() > 1:
		return NALogical, &InvalidConditionError{Reason: "the condition has length > 1"}
	}
	if s, ok := vec.(Typed[string]); ok && !IsFactor(vec) {
		str := s.At(0)
		if str == NAString {
			return NALogical, nil
		}
		l := stringToLogical(str)
		if l == NALogical {
			return NALogical, notLogical
		}
		return l, nil
	}
	if IsFactor(vec) {
		return NALogical, notLogical
	}
	if d, ok := vec.(Typed[float64]); ok {
		return doubleCondition(d.At(0))
	}
	l, err := Coerce(vec, LogicalType)
	if err != nil {
		return NALogical, notLogical
	}
	return l.(Typed[Logical]).At(0), nil
}

// While loops while Cond is TRUE.
type While struct {
	Cond Node
	Body Node
	Loc  *SourceLocation

	conv *Specializer[Value, Logical]
}

var _ Node = (*While)(nil)

func (w *While) GetSourceLocation() *SourceLocation { return w.Loc }

func (w *While) Eval(ctx context.Context, env *Frame) (Value, error) {
	return WithEvalErrorHandling(ctx, w, func() (Value, error) {
		if w.conv == nil {
			w.conv = newConditionConverter("while")
		}
		for {
			if err := ctx.Err(); err != nil {
				return nil, &CancelledError{Cause: err}
			}
			condVal, err := EvalNode(ctx, env, w.Cond)
			if err != nil {
				return nil, err
			}
			cond, err := w.conv.Execute(ctx, condVal)
			if err != nil {
				return nil, err
			}
			if cond == NALogical {
				return nil, &InvalidConditionError{Reason: naConditionMessage}
			}
			if cond == False {
				break
			}
			stop, err := runLoopBody(ctx, env, w.Body)
			if err != nil {
				return nil, err
			}
			if stop {
				break
			}
		}
		SetVisible(ctx, false)
		return NullValue{}, nil
	})
}

func (w *While) Walk(fn func(Node) bool) {
	if !fn(w) {
		return
	}
	w.Cond.Walk(fn)
	w.Body.Walk(fn)
}

// Repeat loops until break.
type Repeat struct {
	Body Node
	Loc  *SourceLocation
}

var _ Node = (*Repeat)(nil)

func (r *Repeat) GetSourceLocation() *SourceLocation { return r.Loc }

func (r *Repeat) Eval(ctx context.Context, env *Frame) (Value, error) {
	return WithEvalErrorHandling(ctx, r, func() (Value, error) {
		for {
			if err := ctx.Err(); err != nil {
				return nil, &CancelledError{Cause: err}
			}
			stop, err := runLoopBody(ctx, env, r.Body)
			if err != nil {
				return nil, err
			}
			if stop {
				break
			}
		}
		SetVisible(ctx, false)
		return NullValue{}, nil
	})
}

func (r *Repeat) Walk(fn func(Node) bool) {
	if !fn(r) {
		return
	}
	r.Body.Walk(fn)
}

// For binds Var to each element of Seq in turn. The sequence is evaluated
// once, before the first iteration.
type For struct {
	Var  string
	Seq  Node
	Body Node
	Loc  *SourceLocation
}

var _ Node = (*For)(nil)

func (f *For) GetSourceLocation() *SourceLocation { return f.Loc }

func (f *For) Eval(ctx context.Context, env *Frame) (Value, error) {
	return WithEvalErrorHandling(ctx, f, func() (Value, error) {
		seqVal, err := EvalNode(ctx, env, f.Seq)
		if err != nil {
			return nil, err
		}
		seq, ok := AsVector(seqVal)
		if !ok {
			return nil, &ArgumentError{Function: "for", Message: "invalid for() loop sequence"}
		}
		if IsFactor(seq) {
			if seq, err = MakeClosure(seq, StringType, false); err != nil {
				return nil, err
			}
		}
		for i := 0; i < seq.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return nil, &CancelledError{Cause: err}
			}
			env.Bind(f.Var, element(seq, i))
			stop, err := runLoopBody(ctx, env, f.Body)
			if err != nil {
				return nil, err
			}
			if stop {
				break
			}
		}
		SetVisible(ctx, false)
		return NullValue{}, nil
	})
}

func (f *For) Walk(fn func(Node) bool) {
	if !fn(f) {
		return
	}
	f.Seq.Walk(fn)
	f.Body.Walk(fn)
}

// runLoopBody evaluates one iteration, translating break and next.
func runLoopBody(ctx context.Context, env *Frame, body Node) (bool, error) {
	_, err := EvalNode(ctx, env, body)
	if err != nil {
		var breakEx *BreakException
		var nextEx *NextException
		if errors.As(err, &breakEx) {
			return true, nil
		}
		if errors.As(err, &nextEx) {
			return false, nil
		}
		return false, err
	}
	return false, nil
}

// Break exits the innermost loop.
type Break struct {
	Loc *SourceLocation
}

var _ Node = (*Break)(nil)

func (b *Break) GetSourceLocation() *SourceLocation { return b.Loc }

func (b *Break) Eval(ctx context.Context, env *Frame) (Value, error) {
	return nil, &BreakException{}
}

func (b *Break) Walk(fn func(Node) bool) { fn(b) }

// Next skips to the following iteration of the innermost loop.
type Next struct {
	Loc *SourceLocation
}

var _ Node = (*Next)(nil)

func (n *Next) GetSourceLocation() *SourceLocation { return n.Loc }

func (n *Next) Eval(ctx context.Context, env *Frame) (Value, error) {
	return nil, &NextException{}
}

func (n *Next) Walk(fn func(Node) bool) { fn(n) }
