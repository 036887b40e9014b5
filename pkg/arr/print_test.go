package arr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"
)

func TestPrintTranscript(t *testing.T) {
	out := transcript(context.Background(), t, DefaultConfig(), forms(
		`- {":": [1, 30]}`,
		`- {num: [1.5, 2, 3.25]}`,
		`- {num: [1e-10, 1]}`,
		`- {num: [1, NA, NaN, Inf]}`,
		`- {str: [a, NA, "b c"]}`,
		`- {setNames: [{int: [1, 22, 333]}, {str: [x, yy, z]}]}`,
		`- {lgl: [true, false, NA]}`,
		`- {factor: [{str: [lo, hi, lo]}]}`,
		`- {list: [1, {str: [a]}, {name: k, value: {int: [1, 2]}}]}`,
		`- null`,
		`- {int: []}`,
		`- {cplx: ["1+2i"]}`,
		`- {cat: ["a", 1.5, {int: 2}, "\n"]}`,
		`- {function: {params: [x, {name: y, default: 2}], body: {"+": [{sym: x}, {sym: y}]}}}`,
	))
	golden.Assert(t, out, "print.golden")
}

func TestFormatDoubles(t *testing.T) {
	for _, tc := range []struct {
		in  []float64
		out []string
	}{
		{[]float64{1, 2, 3}, []string{"1", "2", "3"}},
		{[]float64{0.1, 0.25}, []string{"0.10", "0.25"}},
		{[]float64{-1.5, 2}, []string{"-1.5", "2.0"}},
		{[]float64{1.0 / 3}, []string{"0.3333333"}},
		{[]float64{123456789}, []string{"123456789"}},
		{[]float64{1e15}, []string{"1e+15"}},
		{[]float64{0}, []string{"0"}},
	} {
		assert.Equal(t, tc.out, formatDoubles(tc.in), "%v", tc.in)
	}
}

func TestDeparse(t *testing.T) {
	for _, tc := range []struct {
		src      string
		expected string
	}{
		{`{"+": [1, {"*": [2, {sym: x}]}]}`, "1 + 2 * x"},
		{`{"*": [{"+": [1, 2]}, 3]}`, "(1 + 2) * 3"},
		{`{"-": [{"-": [5, 2]}, 1]}`, "5 - 2 - 1"},
		{`{"-": [5, {"-": [2, 1]}]}`, "5 - (2 - 1)"},
		{`{"-": [{sym: x}]}`, "-x"},
		{`{":": [1, 10]}`, "1:10"},
		{`{int: [1, 2, NA]}`, "c(1L, 2L, NA)"},
		{`{str: [a, NA]}`, `c("a", NA_character_)`},
		{`{num: 2.5}`, "2.5"},
		{`null`, "NULL"},
		{`{"my fn": [1]}`, "`my fn`(1)"},
		{`{f: [{name: a, value: 1}, {missing: ~}]}`, "f(a = 1, )"},
		{`{if: {cond: {sym: a}, then: 1, else: {str: [b]}}}`, `if (a) 1 else "b"`},
		{`{for: {var: i, seq: {":": [1, 3]}, body: {next: ~}}}`, "for (i in 1:3) next"},
		{`{while: {cond: true, body: {break: ~}}}`, "while (TRUE) break"},
		{`{repeat: {break: ~}}`, "repeat break"},
		{`{index: {x: {sym: l}, i: {int: 2}, double: true}}`, "l[[2L]]"},
		{`{index_assign: {name: v, i: 1, value: 0}}`, "v[1] <- 0"},
		{`{replace: {name: x, fn: names, value: {str: [a]}}}`, `names(x) <- "a"`},
		{`{superassign: {name: n, value: {"+": [{sym: n}, 1]}}}`, "n <<- n + 1"},
		{`{call: {fn: {function: {params: [], body: 1}}, args: []}}`, "(function() 1)()"},
		{
			`{function: {params: [x, {name: y, default: 2}], body: {block: [{assign: {name: z, value: {"+": [{sym: x}, {sym: y}]}}}, {sym: z}]}}}`,
			"function(x, y = 2) {\n    z <- x + y\n    z\n}",
		},
	} {
		prog := decodeForms(t, "- "+tc.src+"\n")
		require.Len(t, prog.Forms, 1)
		assert.Equal(t, tc.expected, Deparse(prog.Forms[0]), tc.src)
	}
}

func TestDeparseValues(t *testing.T) {
	f := NewInt(1, 2)
	require.NoError(t, f.SetAttr("levels", NewString("a", "b")))
	require.NoError(t, f.SetAttr("class", NewString("factor")))
	assert.Equal(t, `structure(c(1L, 2L), class = "factor", levels = c("a", "b"))`, deparseValue(f))

	assert.Equal(t, `list(1, "a")`, deparseValue(NewList(NewDouble(1), NewString("a"))))
	assert.Equal(t, "numeric(0)", deparseValue(NewDouble()))
	assert.Equal(t, "quote(x + 1)", deparseValue(Quote(&Call{
		Fn:   &Lookup{Name: "+"},
		Args: []Arg{{Value: &Lookup{Name: "x"}}, {Value: NewConstant(NewDouble(1), nil)}},
	})))
}
