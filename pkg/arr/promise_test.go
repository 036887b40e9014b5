package arr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingNode counts how often it is evaluated.
type countingNode struct {
	evals int
	value Value
}

func (n *countingNode) GetSourceLocation() *SourceLocation { return nil }
func (n *countingNode) Walk(fn func(Node) bool)            { fn(n) }

func (n *countingNode) Eval(context.Context, *Frame) (Value, error) {
	n.evals++
	return n.value, nil
}

func TestPromiseForcesOnce(t *testing.T) {
	ctx := context.Background()
	expr := &countingNode{value: NewInt(42)}
	p := NewPromise(expr, NewFrame(nil))
	assert.False(t, p.IsForced())

	for range 3 {
		v, err := p.Force(ctx)
		require.NoError(t, err)
		assert.Equal(t, []int{42}, ints(v))
	}
	assert.Equal(t, 1, expr.evals)
	assert.True(t, p.IsForced())
	assert.Nil(t, p.Env(), "the environment is released once forced")
	assert.True(t, IsShared(p.value))
}

func TestPromiseRetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	env := NewFrame(nil)
	p := NewPromise(&Lookup{Name: "later"}, env)

	_, err := p.Force(ctx)
	var unbound *UnboundVariableError
	require.ErrorAs(t, err, &unbound)
	assert.False(t, p.IsForced())

	env.Bind("later", NewDouble(1))
	v, err := p.Force(ctx)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, doubles(v))
}

func TestPromiseChainsAreForcedThrough(t *testing.T) {
	ctx := context.Background()
	inner := NewPromise(&countingNode{value: NewString("deep")}, NewFrame(nil))
	outer := NewPromise(&countingNode{value: inner}, NewFrame(nil))
	v, err := outer.Force(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"deep"}, strs(v))
	assert.True(t, inner.IsForced())
}

func TestMissingArgForcesToMissing(t *testing.T) {
	v, err := MissingArg.Force(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MissingValue{}, v)
}

func TestEagerArgumentPromises(t *testing.T) {
	env := NewFrame(nil)
	env.Bind("x", NewInt(1))
	constant := NewConstant(NewInt(2), nil)
	lookup := &Lookup{Name: "x"}

	lazy := DefaultConfig()
	lazy.EagerEval = EagerEvalConfig{}
	ctx := WithConfig(context.Background(), lazy)
	assert.False(t, argPromise(ctx, env, constant).(*Promise).IsForced())
	assert.False(t, argPromise(ctx, env, lookup).(*Promise).IsForced())

	eager := DefaultConfig()
	eager.EagerEval = EagerEvalConfig{Constants: true, Variables: true}
	ctx = WithConfig(context.Background(), eager)
	assert.True(t, argPromise(ctx, env, constant).(*Promise).IsForced())
	assert.True(t, argPromise(ctx, env, lookup).(*Promise).IsForced())

	// a variable bound to an unforced promise stays lazy
	env.Bind("y", NewPromise(constant, env))
	assert.False(t, argPromise(ctx, env, &Lookup{Name: "y"}).(*Promise).IsForced())

	assert.Same(t, MissingArg, argPromise(ctx, env, nil))
}

func TestFrameLookup(t *testing.T) {
	ctx := context.Background()
	parent := NewFrame(nil)
	child := NewFrame(parent)
	parent.Bind("x", NewInt(1))
	parent.Bind("f", &BuiltinFunction{Def: &BuiltinDef{Name: "f"}})
	child.Bind("f", NewInt(2))

	v, err := child.Lookup(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ints(v))

	// function lookup skips the non-function binding in child
	fn, err := child.LookupFunction(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, FunctionType, fn.Type())

	_, err = child.LookupFunction(ctx, "x")
	var unbound *UnboundVariableError
	require.ErrorAs(t, err, &unbound)
	assert.True(t, unbound.Function)
	assert.Equal(t, `could not find function "x"`, unbound.Error())

	_, err = child.Lookup(ctx, "nope")
	require.ErrorAs(t, err, &unbound)
	assert.Equal(t, "object 'nope' not found", unbound.Error())
}

func TestFrameSuperAssign(t *testing.T) {
	global := NewFrame(nil)
	outer := NewFrame(global)
	inner := NewFrame(outer)
	outer.Bind("x", NewInt(1))

	require.NoError(t, inner.SuperAssign("x", NewInt(2), global))
	v, ok := outer.GetLocal("x")
	require.True(t, ok)
	assert.Equal(t, []int{2}, ints(v))

	require.NoError(t, inner.SuperAssign("fresh", NewInt(3), global))
	_, ok = global.GetLocal("fresh")
	assert.True(t, ok)
	_, ok = inner.GetLocal("fresh")
	assert.False(t, ok)
}

func TestLockedFrame(t *testing.T) {
	base := NewFrame(nil)
	base.Bind("c", NewInt(1))
	base.Lock()
	global := NewFrame(base)

	err := global.SuperAssign("c", NewInt(2), global)
	var locked *LockedBindingError
	require.ErrorAs(t, err, &locked)
	assert.EqualError(t, err, "cannot change value of locked binding for 'c'")
	v, _ := base.GetLocal("c")
	assert.Equal(t, []int{1}, ints(v))

	assert.EqualError(t, base.Assign("d", NewInt(3)), "cannot add binding of 'd' to a locked environment")

	require.NoError(t, global.SuperAssign("d", NewInt(3), global))
	_, ok := global.GetLocal("d")
	assert.True(t, ok)
}

func TestFrameVersions(t *testing.T) {
	f := NewFrame(nil)
	assert.Zero(t, f.Version("x"))
	x := NewInt(1)
	f.Bind("x", x)
	assert.Equal(t, uint64(1), f.Version("x"))
	f.Bind("x", x)
	assert.Equal(t, uint64(1), f.Version("x"), "rebinding the same value is not a change")
	f.Remove("x")
	assert.Equal(t, uint64(2), f.Version("x"))
}

func TestFrameMissingBinding(t *testing.T) {
	f := NewFrame(nil)
	f.Bind("x", MissingArg)
	_, err := f.Lookup(context.Background(), "x")
	var missing *MissingArgumentError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "x", missing.Name)
}
