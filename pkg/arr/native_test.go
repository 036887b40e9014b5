package arr

import (
	"context"
	"fmt"
	"testing"

	"github.com/dagger/testctx"
	"github.com/dagger/testctx/oteltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type NativeSuite struct{}

func TestNative(tT *testing.T) {
	testctx.New(tT,
		oteltest.WithTracing[*testing.T](),
		oteltest.WithLogging[*testing.T](),
	).RunTests(NativeSuite{})
}

func statsLibrary() *GoLibrary {
	return NewGoLibrary("stats").
		Export("RollMean", func(_ context.Context, args []Value) (Value, error) {
			xs, err := Coerce(args[0].(Vector), DoubleType)
			if err != nil {
				return nil, err
			}
			var sum float64
			data := doubles(xs)
			for _, x := range data {
				sum += x
			}
			return NewDouble(sum / float64(len(data))), nil
		}).
		Define("fill", func(_ context.Context, args []Value) (Value, error) {
			return nil, args[0].(*IntVector).Set(0, 99)
		}).
		Define("noop", func(context.Context, []Value) (Value, error) {
			return nil, nil
		}).
		Define("explode", func(context.Context, []Value) (Value, error) {
			panic("kaboom")
		}).
		Define("fail", func(context.Context, []Value) (Value, error) {
			return nil, fmt.Errorf("bad input")
		})
}

func (NativeSuite) TestCall(ctx context.Context, t *testctx.T) {
	c := NewContext(DefaultConfig(), WithLibrary(statsLibrary()))
	defer c.Close()

	got, err := evalIn(ctx, t, c, `[{.Call: ["roll_mean", {int: [1, 2, 3, 6]}]}]`)
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, doubles(got))

	got, err = evalIn(ctx, t, c, `[{.Call: ["noop", {int: 1}, {name: PACKAGE, value: stats}]}]`)
	require.NoError(t, err)
	assert.Equal(t, NullValue{}, got, "routines returning nothing yield NULL")
}

func (NativeSuite) TestDotCReturnsCopies(ctx context.Context, t *testctx.T) {
	c := NewContext(DefaultConfig(), WithLibrary(statsLibrary()))
	defer c.Close()

	got, err := evalIn(ctx, t, c, forms(
		`- assign: {name: x, value: {int: [1, 2]}}`,
		`- {.C: ["fill", {name: out, value: {sym: x}}]}`,
	))
	require.NoError(t, err)
	list := got.(*ListVector)
	require.Equal(t, 1, list.Len())
	assert.Equal(t, []int{99, 2}, ints(list.At(0)))
	names, ok := Names(list)
	require.True(t, ok)
	assert.Equal(t, []string{"out"}, elems(names))

	x, err := evalIn(ctx, t, c, `[{sym: x}]`)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ints(x), "the caller's vector is untouched")
}

func (NativeSuite) TestInvocationErrors(ctx context.Context, t *testctx.T) {
	c := NewContext(DefaultConfig(), WithLibrary(statsLibrary()))
	defer c.Close()

	for _, tc := range []struct {
		src     string
		symbol  string
		message string
	}{
		{`[{.Call: ["explode"]}]`, "explode", "routine panicked: kaboom"},
		{`[{.Call: ["fail"]}]`, "fail", "routine failed: bad input"},
		{`[{.Call: ["nope"]}]`, "nope", "symbol not found"},
		{`[{.Call: ["roll_mean", 1, {name: PACKAGE, value: other}]}]`, "other::roll_mean", "symbol not found"},
	} {
		_, err := evalIn(ctx, t, c, tc.src)
		var native *NativeInvocationError
		require.ErrorAs(t, err, &native, tc.src)
		assert.Equal(t, tc.symbol, native.Symbol)
		assert.ErrorContains(t, err, tc.message)
	}

	_, err := evalIn(ctx, t, c, `[{.Call: [""]}]`)
	assert.ErrorContains(t, err, "'.NAME' must be a non-empty string")
}

func (NativeSuite) TestIsLoaded(ctx context.Context, t *testctx.T) {
	c := NewContext(DefaultConfig(), WithLibrary(statsLibrary()))
	defer c.Close()

	for _, tc := range []struct {
		src      string
		expected Logical
	}{
		{`[{is.loaded: ["roll_mean"]}]`, True},
		{`[{is.loaded: ["RollMean"]}]`, False},
		{`[{is.loaded: ["roll_mean", {name: PACKAGE, value: stats}]}]`, True},
		{`[{is.loaded: ["roll_mean", {name: PACKAGE, value: elsewhere}]}]`, False},
	} {
		got, err := evalIn(ctx, t, c, tc.src)
		require.NoError(t, err)
		assert.Equal(t, []Logical{tc.expected}, logicals(got), tc.src)
	}
}

func TestNativeRegistryPrecedence(t *testing.T) {
	ctx := context.Background()
	r := NewNativeRegistry(4)
	version := func(n int) NativeFunc {
		return func(context.Context, []Value) (Value, error) { return NewInt(n), nil }
	}
	r.Load(NewGoLibrary("old").Define("version", version(1)))

	v, err := r.Invoke(ctx, NativeSymbol{Name: "version"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ints(v))

	// loading purges cached resolutions, so the newer library wins
	r.Load(NewGoLibrary("new").Define("version", version(2)))
	v, err = r.Invoke(ctx, NativeSymbol{Name: "version"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ints(v))

	v, err = r.Invoke(ctx, NativeSymbol{Name: "version", Library: "old"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ints(v))

	assert.Equal(t, []string{"old", "new"}, r.Libraries())
}

func TestNativeRegistryClose(t *testing.T) {
	lib := statsLibrary()
	r := NewNativeRegistry(0)
	r.Load(lib)
	require.True(t, r.Resolves(NativeSymbol{Name: "roll_mean"}))

	require.NoError(t, r.Close())
	assert.Empty(t, r.Libraries())
	assert.False(t, r.Resolves(NativeSymbol{Name: "roll_mean"}))
	_, ok := lib.Lookup("roll_mean")
	assert.False(t, ok, "closed libraries resolve nothing")
}

func TestNativeSymbolString(t *testing.T) {
	assert.Equal(t, "f", NativeSymbol{Name: "f"}.String())
	assert.Equal(t, "lib::f", NativeSymbol{Name: "f", Library: "lib"}.String())
}
