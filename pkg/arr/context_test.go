package arr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dagger/testctx"
	"github.com/dagger/testctx/oteltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ContextSuite struct{}

func TestContext(tT *testing.T) {
	testctx.New(tT,
		oteltest.WithTracing[*testing.T](),
		oteltest.WithLogging[*testing.T](),
	).RunTests(ContextSuite{})
}

func (ContextSuite) TestTimeoutTearsDown(ctx context.Context, t *testctx.T) {
	config := DefaultConfig()
	config.Timeout = Duration{50 * time.Millisecond}
	c := NewContext(config)
	defer c.Close()

	started := time.Now()
	_, err := evalIn(ctx, t, c, `[{"Sys.sleep": [30]}]`)
	assert.Less(t, time.Since(started), 10*time.Second)

	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, c.Closed())

	_, err = evalIn(ctx, t, c, `[1]`)
	assert.ErrorIs(t, err, ErrContextClosed)
}

func (ContextSuite) TestCallerCancellation(ctx context.Context, t *testctx.T) {
	c := NewContext(DefaultConfig())
	defer c.Close()

	cctx, cancel := context.WithCancel(ctx)
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := evalIn(cctx, t, c, `[{"Sys.sleep": [30]}]`)
	var cancelled *CancelledError
	require.ErrorAs(t, err, &cancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, c.Closed())
}

func (ContextSuite) TestClose(ctx context.Context, t *testctx.T) {
	c := NewContext(DefaultConfig())
	_, err := evalIn(ctx, t, c, `[{assign: {name: x, value: 1}}]`)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close(), "closing twice is harmless")

	_, err = evalIn(ctx, t, c, `[{sym: x}]`)
	assert.ErrorIs(t, err, ErrContextClosed)
	_, err = c.Export(ctx, "x")
	assert.ErrorIs(t, err, ErrContextClosed)
	assert.ErrorIs(t, c.Import("y", NewInt(1)), ErrContextClosed)
}

func (ContextSuite) TestExportImport(ctx context.Context, t *testctx.T) {
	src := NewContext(DefaultConfig())
	defer src.Close()
	dst := NewContext(DefaultConfig())
	defer dst.Close()

	_, err := evalIn(ctx, t, src, `[{assign: {name: x, value: {setNames: [{num: [1, 2, 3]}, {str: [a, b, c]}]}}}]`)
	require.NoError(t, err)

	x, err := src.Export(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, dst.Import("y", x))

	_, err = evalIn(ctx, t, dst, `[{index_assign: {name: y, i: 1, value: 10}}]`)
	require.NoError(t, err)

	got, err := evalIn(ctx, t, dst, `[{sym: y}]`)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 2, 3}, doubles(got))
	names, ok := Names(got.(Vector))
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, elems(names))

	orig, err := evalIn(ctx, t, src, `[{sym: x}]`)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, doubles(orig), "the exporting context is unaffected")
}

func (ContextSuite) TestExportForcesPromises(ctx context.Context, t *testctx.T) {
	c := NewContext(DefaultConfig())
	defer c.Close()
	_, err := evalIn(ctx, t, c, `[{delayedAssign: ["lazy", {"+": [1, 1]}]}]`)
	require.NoError(t, err)
	v, err := c.Export(ctx, "lazy")
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, doubles(v))
}

func (ContextSuite) TestExportErrors(ctx context.Context, t *testctx.T) {
	c := NewContext(DefaultConfig())
	defer c.Close()
	_, err := evalIn(ctx, t, c, `[{assign: {name: f, value: {function: {params: [], body: 1}}}}]`)
	require.NoError(t, err)

	_, err = c.Export(ctx, "f")
	assert.ErrorContains(t, err, "cannot transfer a value of type 'closure'")

	_, err = c.Export(ctx, "nope")
	var unbound *UnboundVariableError
	assert.ErrorAs(t, err, &unbound)
}

func TestDeepCopy(t *testing.T) {
	inner := NewInt(1, 2)
	list := NewList(inner, NewString("s"))
	require.NoError(t, list.SetAttr("names", NewString("a", "b")))

	cp, err := DeepCopy(list)
	require.NoError(t, err)
	out := cp.(*ListVector)
	assert.NotSame(t, inner, out.At(0))
	assert.True(t, Identical(list, out))
	assert.False(t, IsShared(out))

	view, err := MakeClosure(NewInt(1, 2), DoubleType, false)
	require.NoError(t, err)
	cp, err = DeepCopy(view)
	require.NoError(t, err)
	_, isClosure := cp.(*VectorClosure[int, float64])
	assert.False(t, isClosure, "views are materialized")
	assert.Equal(t, []float64{1, 2}, doubles(cp))
}

func (ContextSuite) TestContextsAreIsolated(ctx context.Context, t *testctx.T) {
	a := NewContext(DefaultConfig())
	defer a.Close()
	b := NewContext(DefaultConfig())
	defer b.Close()

	_, err := evalIn(ctx, t, a, `[{assign: {name: x, value: 1}}]`)
	require.NoError(t, err)
	_, err = evalIn(ctx, t, b, `[{sym: x}]`)
	var unbound *UnboundVariableError
	require.ErrorAs(t, err, &unbound)
	assert.NotEqual(t, a.ID, b.ID)
}

func (ContextSuite) TestEvalConcurrently(ctx context.Context, t *testctx.T) {
	var programs []*Program
	for _, src := range []string{
		forms(
			`- assign: {name: x, value: {int: [1, 2, 3]}}`,
			`- {sum: [{sym: x}]}`,
		),
		forms(
			`- assign: {name: x, value: {str: [a, b]}}`,
			`- {paste: [{sym: x}, {name: collapse, value: "-"}]}`,
		),
	} {
		p, err := Decode("prog.yaml", []byte(src))
		require.NoError(t, err)
		programs = append(programs, p)
	}

	results, err := EvalConcurrently(ctx, DefaultConfig(), programs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Len(t, results[0], 2)
	assert.Equal(t, []int{6}, ints(results[0][1].Value))
	assert.False(t, results[0][0].Visible)
	assert.Equal(t, []string{"a-b"}, strs(results[1][1].Value))
}

func (ContextSuite) TestEvalConcurrentlyReportsFailures(ctx context.Context, t *testctx.T) {
	good, err := Decode("good.yaml", []byte(`[1]`))
	require.NoError(t, err)
	bad, err := Decode("bad.yaml", []byte(`[{stop: ["nope"]}]`))
	require.NoError(t, err)

	_, err = EvalConcurrently(ctx, DefaultConfig(), []*Program{good, bad})
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad.yaml")
	var user *UserError
	assert.True(t, errors.As(err, &user))
}

func (ContextSuite) TestEvalProgramStopsAtFirstError(ctx context.Context, t *testctx.T) {
	c := NewContext(DefaultConfig())
	defer c.Close()
	p := decodeForms(t, forms(
		`- 1`,
		`- {stop: ["halt"]}`,
		`- 3`,
	))
	results, err := c.EvalProgram(ctx, p)
	require.Error(t, err)
	require.Len(t, results, 1)

	var src *SourceError
	require.ErrorAs(t, err, &src)
	assert.Equal(t, 2, src.Location.Line)
	assert.Equal(t, "test.yaml", src.Location.Filename)
}
