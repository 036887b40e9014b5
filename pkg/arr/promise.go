package arr

import (
	"context"
)

// Promise is a deferred argument: an expression, the frame to evaluate it
// in, and the cached result once forced.
type Promise struct {
	Expr Node

	env     *Frame
	value   Value
	forcing bool

	// defaulted marks the promise of a default argument, which missing()
	// still reports as missing.
	defaulted bool

	// A value read from a variable ahead of time stays valid only while the
	// binding it came from is unchanged.
	origin  *Frame
	name    string
	version uint64
}

// MissingArg stands in for arguments that were not supplied. It forces to
// MissingValue.
var MissingArg = &Promise{value: MissingValue{}}

func NewPromise(expr Node, env *Frame) *Promise {
	return &Promise{Expr: expr, env: env}
}

func newDefaultPromise(expr Node, env *Frame) *Promise {
	return &Promise{Expr: expr, env: env, defaulted: true}
}

// newEagerPromise wraps a value that was computed ahead of time. It behaves
// exactly like a forced promise.
func newEagerPromise(expr Node, value Value) *Promise {
	MarkShared(value)
	return &Promise{Expr: expr, value: value}
}

// newVariablePromise is newEagerPromise for the current value of the
// variable expr names in env. If the binding changes before the promise is
// first forced, the expression is evaluated again as if it had been lazy.
func newVariablePromise(expr *Lookup, value Value, env *Frame) *Promise {
	p := newEagerPromise(expr, value)
	p.origin = env
	p.name = expr.Name
	p.version = env.Version(expr.Name)
	return p
}

func (p *Promise) stale() bool {
	return p.origin != nil && p.origin.Version(p.name) != p.version
}

func (p *Promise) Type() Type { return PromiseType }

func (p *Promise) String() string {
	if p.value != nil {
		return p.value.String()
	}
	return "<promise>"
}

// IsForced reports whether the value is cached.
func (p *Promise) IsForced() bool { return p.value != nil && !p.stale() }

// Env is the frame the expression will be evaluated in; nil once forced.
func (p *Promise) Env() *Frame { return p.env }

// Force evaluates the promise at most once. A promise that is forced
// while its own evaluation is in progress fails with RecursivePromiseError.
// If evaluation fails nothing is cached and the promise may be forced again.
func (p *Promise) Force(ctx context.Context) (Value, error) {
	if p.origin != nil {
		if p.stale() {
			p.value = nil
			p.env = p.origin
		}
		p.origin = nil
	}
	if p.value != nil {
		return p.value, nil
	}
	if p.forcing {
		return nil, &RecursivePromiseError{Expr: p.Expr}
	}
	p.forcing = true
	defer func() { p.forcing = false }()

	val, err := EvalNode(ctx, p.env, p.Expr)
	if err != nil {
		return nil, err
	}
	for {
		inner, ok := val.(*Promise)
		if !ok {
			break
		}
		val, err = inner.Force(ctx)
		if err != nil {
			return nil, err
		}
	}
	MarkShared(val)
	p.value = val
	p.env = nil
	return val, nil
}

// Force forces v if it is a promise.
func Force(ctx context.Context, v Value) (Value, error) {
	if p, ok := v.(*Promise); ok {
		return p.Force(ctx)
	}
	return v, nil
}
