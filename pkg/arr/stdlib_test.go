package arr

import (
	"context"
	"testing"

	"github.com/dagger/testctx"
	"github.com/dagger/testctx/oteltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type StdlibSuite struct{}

func TestStdlib(tT *testing.T) {
	testctx.New(tT,
		oteltest.WithTracing[*testing.T](),
		oteltest.WithLogging[*testing.T](),
	).RunTests(StdlibSuite{})
}

func named(v Vector, names ...string) Vector {
	if err := v.(interface{ SetAttr(string, Value) error }).SetAttr("names", NewString(names...)); err != nil {
		panic(err)
	}
	return v
}

func (StdlibSuite) TestBuiltins(ctx context.Context, t *testctx.T) {
	tests := []struct {
		name     string
		src      string
		expected Value
	}{
		{"c promotes", `[{c: [1, {int: 2}, true]}]`, NewDouble(1, 2, 1)},
		{"c to character", `[{c: [{str: [x]}, 1, {int: 2}]}]`, NewString("x", "1", "2")},
		{"c names", `[{c: [{name: a, value: 1}, {name: b, value: 2}]}]`, named(NewDouble(1, 2), "a", "b")},
		{"c of nothing", `[{c: []}]`, NullValue{}},
		{"c skips NULL", `[{c: [null, {int: 1}]}]`, NewInt(1)},

		{"rep times", `[{rep: [{int: [1, 2]}, 3]}]`, NewInt(1, 2, 1, 2, 1, 2)},
		{"rep each", `[{rep: [{int: [1, 2]}, {name: each, value: 2}]}]`, NewInt(1, 1, 2, 2)},
		{"rep times per element", `[{rep: [{str: [a, b]}, {int: [2, 1]}]}]`, NewString("a", "a", "b")},
		{"rep length.out", `[{rep: [{int: [1, 2, 3]}, {name: length.out, value: 5}]}]`, NewInt(1, 2, 3, 1, 2)},
		{"rep keeps names", `[{rep: [{setNames: [1, "a"]}, 2]}]`, named(NewDouble(1, 1), "a", "a")},

		{"seq_len", `[{seq_len: [3]}]`, NewInt(1, 2, 3)},
		{"empty seq_len", `[{seq_len: [0]}]`, NewInt()},
		{"seq_along", `[{seq_along: [{str: [a, b]}]}]`, NewInt(1, 2)},
		{"descending colon", `[{":": [3, 1]}]`, NewInt(3, 2, 1)},
		{"fractional colon", `[{":": [1.5, 3]}]`, NewDouble(1.5, 2.5)},

		{"length of NULL", `[{length: [null]}]`, NewInt(0)},
		{"length of list", `[{length: [{list: [1, 2]}]}]`, NewInt(2)},

		{"typeof double", `[{typeof: [1]}]`, NewString("double")},
		{"typeof integer", `[{typeof: [{int: 1}]}]`, NewString("integer")},
		{"typeof builtin", `[{typeof: [{sym: sum}]}]`, NewString("builtin")},
		{"typeof closure", `[{typeof: [{function: {body: 1}}]}]`, NewString("closure")},
		{"typeof NULL", `[{typeof: [null]}]`, NewString("NULL")},

		{"identical", `[{identical: [{num: [1, 2]}, {c: [1, 2]}]}]`, NewLogical(True)},
		{"identical types", `[{identical: [1, {int: 1}]}]`, NewLogical(False)},

		{"as.integer truncates", `[{as.integer: [{num: [1.9, -1.9, NA]}]}]`, NewInt(1, -1, NAInteger)},
		{"as.integer drops names", `[{as.integer: [{setNames: [{int: 1}, "a"]}]}]`, NewInt(1)},
		{"as.integer of factor", `[{as.integer: [{factor: [{str: [b, a]}]}]}]`, NewInt(2, 1)},
		{"as.character", `[{as.character: [{num: [1.5, 2]}]}]`, NewString("1.5", "2")},
		{"as.character of factor", `[{as.character: [{factor: [{str: [b, a]}]}]}]`, NewString("b", "a")},
		{"as.logical", `[{as.logical: [{str: ["TRUE", abc]}]}]`, NewLogical(True, NALogical)},
		{"as.numeric", `[{as.numeric: [{str: ["1e3"]}]}]`, NewDouble(1000)},

		{"is.na", `[{is.na: [{num: [1, NA, NaN]}]}]`, NewLogical(False, True, True)},
		{"is.null", `[{is.null: [null]}]`, NewLogical(True)},

		{"sum mixes types", `[{sum: [1, {int: 2}, 0.5]}]`, NewDouble(3.5)},
		{"sum of integers", `[{sum: [{int: [1, 2]}, {int: 3}]}]`, NewInt(6)},
		{"sum propagates NA", `[{sum: [{int: [1, NA]}]}]`, NewInt(NAInteger)},
		{"sum drops NA", `[{sum: [{num: [1, NA]}, {name: na.rm, value: true}]}]`, NewDouble(1)},
		{"empty sum", `[{sum: []}]`, NewInt(0)},

		{"paste recycles", `[{paste: ["a", {int: [1, 2]}]}]`, NewString("a 1", "a 2")},
		{"paste0 collapses", `[{paste0: ["x", {str: [a, b]}, {name: collapse, value: "+"}]}]`, NewString("xa+xb")},
		{"paste shows NA", `[{paste: [{str: [a, NA]}, {name: sep, value: "-"}]}]`, NewString("a", "NA")},

		{"unique", `[{unique: [{num: [1, 2, 1, NA, 3, NA]}]}]`, NewDouble(1, 2, NADouble, 3)},
		{"match", `[{match: [{str: [b, z]}, {str: [a, b, b]}]}]`, NewInt(2, NAInteger)},
		{"match nomatch", `[{match: [{int: [3]}, {int: [1]}, {name: nomatch, value: 0}]}]`, NewInt(0)},
		{"in", `[{"%in%": [{num: [1, 5]}, {int: [1, 2]}]}]`, NewLogical(True, False)},
		{"union", `[{union: [{num: [1, 2, 2]}, {num: [3, 2]}]}]`, NewDouble(1, 2, 3)},
		{"setdiff", `[{setdiff: [{int: [1, 2, 3, 1]}, {int: [2]}]}]`, NewInt(1, 3)},
		{"union of NULLs", `[{union: [null, null]}]`, NullValue{}},

		{"names", `[{names: [{setNames: [{int: [1, 2]}, {str: [a, b]}]}]}]`, NewString("a", "b")},
		{"no names", `[{names: [1]}]`, NullValue{}},
		{"class of double", `[{class: [1]}]`, NewString("numeric")},
		{"class of factor", `[{class: [{factor: [a]}]}]`, NewString("factor")},
		{"class of function", `[{class: [{sym: sum}]}]`, NewString("function")},
		{"inherits", `[{inherits: [{factor: [a]}, {str: [foo, factor]}]}]`, NewLogical(True)},
		{"nlevels", `[{nlevels: [{factor: [{str: [a, b, a]}]}]}]`, NewInt(2)},
		{"explicit levels", `[{levels: [{factor: [{str: [a]}, {name: levels, value: {str: [z, a]}}]}]}]`, NewString("z", "a")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(ctx context.Context, t *testctx.T) {
			got := evalValue(ctx, t, tt.src)
			require.True(t, Identical(tt.expected, got), "expected %s, got %s", FormatValue(tt.expected), FormatValue(got))
		})
	}
}

func (StdlibSuite) TestBuiltinErrors(ctx context.Context, t *testctx.T) {
	tests := []struct {
		src     string
		message string
	}{
		{`[{sum: ["a"]}]`, "invalid 'type' (character) of argument"},
		{`[{rep: [1, -1]}]`, "invalid 'times' argument"},
		{`[{rep: [{int: [1, 2]}, {int: [1, 2, 3]}]}]`, "invalid 'times' argument"},
		{`[{seq_len: [-1]}]`, "argument of length 0 or negative"},
		{`[{":": [{num: []}, 1]}]`, "argument of length 0"},
		{`[{factor: [{str: [a]}, {name: levels, value: {str: [a, a]}}]}]`, "factor level [2] is duplicated"},
		{`[{intersect: [{list: [1]}, 1]}]`, "'x' must be an atomic vector"},
		{`[{length: []}]`, `argument "x" is missing, with no default`},
		{`[{length: [1, 2]}]`, "unused argument"},
		{`[{nope: []}]`, `could not find function "nope"`},
	}
	for _, tt := range tests {
		err := evalError(ctx, t, tt.src)
		assert.ErrorContains(t, err, tt.message, tt.src)
	}
}

func (StdlibSuite) TestSumFastPath(ctx context.Context, t *testctx.T) {
	c := NewContext(DefaultConfig())
	defer c.Close()
	call := &Call{Fn: &Lookup{Name: "sum"}, Args: []Arg{{Value: &Lookup{Name: "x"}}}}

	c.Global.Bind("x", NewInt(1, 2, 3))
	res, err := c.Eval(ctx, call)
	require.NoError(t, err)
	assert.Equal(t, []int{6}, ints(res.Value))
	assert.Equal(t, "complete-integer", call.site.spec.State())

	// NA leaves the fast path for good
	c.Global.Bind("x", NewInt(1, NAInteger))
	res, err = c.Eval(ctx, call)
	require.NoError(t, err)
	assert.Equal(t, []int{NAInteger}, ints(res.Value))
	assert.True(t, call.site.spec.IsGeneric())

	c.Global.Bind("x", NewInt(4, 5))
	res, err = c.Eval(ctx, call)
	require.NoError(t, err)
	assert.Equal(t, []int{9}, ints(res.Value))
	assert.True(t, call.site.spec.IsGeneric())
}

func (StdlibSuite) TestOutput(ctx context.Context, t *testctx.T) {
	out := transcript(ctx, t, DefaultConfig(), forms(
		`- {cat: [{str: [a, b]}, 1, {name: sep, value: ","}]}`,
		`- {cat: ["\n"]}`,
		`- {cat: [{factor: [{str: [y, x]}]}, "\n"]}`,
		`- {print: [{list: [{name: n, value: 1}]}]}`,
		`- {invisible: [5]}`,
		`- {assign: {name: p, value: {print: ["shown once"]}}}`,
	))
	assert.Equal(t, "a,b,1\n2 1 \n$n\n[1] 1\n\n[1] \"shown once\"\n", out)
}

func (StdlibSuite) TestWarnings(ctx context.Context, t *testctx.T) {
	out := transcript(ctx, t, DefaultConfig(), forms(
		`- {"+": [{int: 2147483647}, {int: 1}]}`,
		`- {sum: [{int: [2147483647, 1]}]}`,
		`- {as.integer: ["x"]}`,
		`- {as.numeric: [{str: ["NA", "NaN"]}]}`,
		`- {warning: ["careful ", {int: 1}]}`,
		`- {assign: {name: w, value: {block: [{warning: [a]}, {warning: [b]}]}}}`,
		`- {for: {var: i, seq: {int: [1, 2]}, body: {"*": [{int: 65536}, {int: 65536}]}}}`,
	))
	assert.Equal(t, forms(
		`[1] NA`,
		`Warning message:`,
		`In 2147483647L + 1L : NAs produced by integer overflow`,
		`[1] NA`,
		`Warning message:`,
		`In sum(c(2147483647L, 1L)) : integer overflow - use sum(as.numeric(.))`,
		`[1] NA`,
		`Warning message:`,
		`In as.integer("x") : NAs introduced by coercion`,
		`[1]  NA NaN`,
		`Warning message:`,
		`careful 1`,
		`Warning messages:`,
		`1: a`,
		`2: b`,
		`Warning messages:`,
		`1: In 65536L * 65536L : NAs produced by integer overflow`,
		`2: In 65536L * 65536L : NAs produced by integer overflow`,
	), out)
}

func (StdlibSuite) TestWarningsAreKeptPerUnit(ctx context.Context, t *testctx.T) {
	c := NewContext(DefaultConfig())
	defer c.Close()
	prog := decodeForms(t, forms(
		`- {warning: [first]}`,
		`- 1`,
		`- {block: [{warning: [before]}, {stop: [failed]}]}`,
	))
	res, err := c.Eval(ctx, prog.Forms[0])
	require.NoError(t, err)
	assert.Equal(t, []Warning{{Message: "first"}}, res.Warnings)

	res, err = c.Eval(ctx, prog.Forms[1])
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	res, err = c.Eval(ctx, prog.Forms[2])
	assert.ErrorContains(t, err, "failed")
	assert.Equal(t, []Warning{{Message: "before"}}, res.Warnings)
}
