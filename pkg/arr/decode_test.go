package arr

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeOne(t *testing.T, src string) Node {
	t.Helper()
	prog := decodeForms(t, "- "+src+"\n")
	require.Len(t, prog.Forms, 1)
	return prog.Forms[0]
}

func constantValue(t *testing.T, src string) Value {
	t.Helper()
	c, ok := decodeOne(t, src).(*Constant)
	require.True(t, ok, "%s is not a constant", src)
	return c.Value
}

func TestDecodeScalars(t *testing.T) {
	assert.Equal(t, NullValue{}, constantValue(t, "~"))
	assert.Equal(t, []Logical{True}, logicals(constantValue(t, "true")))
	assert.Equal(t, []Logical{NALogical}, logicals(constantValue(t, "NA")))
	assert.Equal(t, []float64{3}, doubles(constantValue(t, "3")))
	assert.Equal(t, []float64{2.5}, doubles(constantValue(t, "2.5")))
	assert.Equal(t, []string{"hello"}, strs(constantValue(t, "hello")))
	assert.Equal(t, []string{"NA"}, strs(constantValue(t, `"NA"`)), "quoted NA is a string")
	assert.Equal(t, []string{"3"}, strs(constantValue(t, `"3"`)))
}

func TestDecodeLiterals(t *testing.T) {
	assert.Equal(t, []int{1, NAInteger, 3}, ints(constantValue(t, "{int: [1, NA, 3L]}")))
	assert.Equal(t, []int{7}, ints(constantValue(t, "{int: 7}")))
	assert.Equal(t, []string{"a", NAString}, strs(constantValue(t, "{str: [a, NA]}")))
	assert.Equal(t, []Logical{True, False, NALogical}, logicals(constantValue(t, "{lgl: [true, false, NA]}")))
	assert.Equal(t, 0, constantValue(t, "{str: []}").(Vector).Len())

	nums := doubles(constantValue(t, "{num: [Inf, -Inf, NaN, NA, .inf]}"))
	assert.True(t, math.IsInf(nums[0], 1))
	assert.True(t, math.IsInf(nums[1], -1))
	assert.True(t, math.IsNaN(nums[2]) && !IsNADouble(nums[2]))
	assert.True(t, IsNADouble(nums[3]))
	assert.True(t, math.IsInf(nums[4], 1))

	cs := elems(constantValue(t, `{cplx: ["1+2i", NA]}`).(Typed[complex128]))
	assert.Equal(t, complex(1, 2), cs[0])
	assert.True(t, IsNAComplex(cs[1]))

	assert.Equal(t, NullValue{}, constantValue(t, "{null: ~}"))

	// literal values are protected from modification
	assert.Equal(t, SharedPermanent, constantValue(t, "{int: 1}").(*IntVector).Shareability())
}

func TestDecodeStructure(t *testing.T) {
	call, ok := decodeOne(t, `{"+": [1, {sym: x}]}`).(*Call)
	require.True(t, ok)
	assert.Equal(t, "+", call.FunctionName())
	require.Len(t, call.Args, 2)
	assert.Equal(t, &Lookup{Name: "x", Loc: call.Args[1].Value.GetSourceLocation()}, call.Args[1].Value)

	call, ok = decodeOne(t, `{call: {fn: f, args: [{name: a, value: 1}, {missing: ~}, {missing: [1]}]}}`).(*Call)
	require.True(t, ok)
	assert.Equal(t, "f", call.FunctionName())
	require.Len(t, call.Args, 3)
	assert.Equal(t, "a", call.Args[0].Name)
	assert.Nil(t, call.Args[1].Value)
	inner, ok := call.Args[2].Value.(*Call)
	require.True(t, ok, "a missing key with a body is a call")
	assert.Equal(t, "missing", inner.FunctionName())

	fn, ok := decodeOne(t, `{function: {params: [x, {name: y, default: 1}, "..."], body: {sym: x}}}`).(*FunctionDef)
	require.True(t, ok)
	require.Len(t, fn.Params, 3)
	assert.Nil(t, fn.Params[0].Default)
	assert.NotNil(t, fn.Params[1].Default)
	assert.Equal(t, "...", fn.Params[2].Name)

	ifNode, ok := decodeOne(t, `{if: {cond: true, then: 1}}`).(*If)
	require.True(t, ok)
	assert.Nil(t, ifNode.Else)

	block, ok := decodeOne(t, `{block: [1, 2, 3]}`).(*Block)
	require.True(t, ok)
	assert.Len(t, block.Forms, 3)

	for _, tc := range []struct {
		src  string
		node Node
	}{
		{`{while: {cond: true, body: {break: ~}}}`, &While{}},
		{`{repeat: {next: ~}}`, &Repeat{}},
		{`{for: {var: i, seq: {int: [1]}, body: {sym: i}}}`, &For{}},
		{`{assign: {name: x, value: 1}}`, &Assign{}},
		{`{superassign: {name: x, value: 1}}`, &Assign{}},
		{`{index: {x: {sym: x}}}`, &Index{}},
		{`{index_assign: {name: x, i: 1, value: 2, double: true}}`, &IndexAssign{}},
		{`{replace: {name: x, fn: names, value: {str: [a]}}}`, &ReplaceAssign{}},
	} {
		assert.IsType(t, tc.node, decodeOne(t, tc.src), tc.src)
	}

	assert.True(t, decodeOne(t, `{superassign: {name: x, value: 1}}`).(*Assign).Super)
	assert.True(t, decodeOne(t, `{index_assign: {name: x, i: 1, value: 2, double: true}}`).(*IndexAssign).Double)
	assert.Nil(t, decodeOne(t, `{index: {x: {sym: x}}}`).(*Index).Index)
}

func TestDecodeLocations(t *testing.T) {
	prog := decodeForms(t, forms(
		`- 1`,
		`- {"+":`,
		`    [1, {sym: x}]}`,
	))
	require.Len(t, prog.Forms, 2)
	loc := prog.Forms[1].GetSourceLocation()
	require.NotNil(t, loc)
	assert.Equal(t, "test.yaml", loc.Filename)
	assert.Equal(t, 2, loc.Line)
	assert.Equal(t, 3, loc.Column)
	assert.Equal(t, 1, loc.Length)

	x := prog.Forms[1].(*Call).Args[1].Value.GetSourceLocation()
	assert.Equal(t, 3, x.Line)
	assert.Equal(t, 3, x.Length)
}

func TestDecodeFormsKey(t *testing.T) {
	prog := decodeForms(t, forms(
		`forms:`,
		`  - 1`,
		`  - 2`,
	))
	assert.Len(t, prog.Forms, 2)

	prog = decodeForms(t, "")
	assert.Empty(t, prog.Forms)

	prog = decodeForms(t, forms(
		`- &one {int: 1}`,
		`- *one`,
	))
	require.Len(t, prog.Forms, 2)
	assert.Equal(t, []int{1}, ints(prog.Forms[1].(*Constant).Value))
}

func TestDecodeErrors(t *testing.T) {
	for _, tc := range []struct {
		src     string
		message string
		line    int
	}{
		{"- 1\n- {if: {cond: true}}\n", "if: missing 'then'", 2},
		{"- {int: 1.5}\n", `invalid integer "1.5"`, 1},
		{"- {int: 3000000000}\n", `invalid integer "3000000000"`, 1},
		{"- {lgl: maybe}\n", `invalid logical "maybe"`, 1},
		{"- {num: one}\n", `invalid number "one"`, 1},
		{"- {frobnicate: 1}\n", `unknown node kind "frobnicate"`, 1},
		{"- {a: [], b: []}\n", "exactly one key", 1},
		{"- {sym: [x]}\n", "sym: expected a name", 1},
		{"- {for: {seq: 1, body: 1}}\n", "for: missing 'var'", 1},
		{"- {function: {params: x, body: 1}}\n", "params must be a sequence", 1},
		{"- {index: {x: 1, double: sure}}\n", "'double' must be a boolean", 1},
		{"stuff: []\n", "expected a 'forms' key", 1},
		{"42\n", "expected a sequence of forms", 1},
	} {
		_, err := Decode("bad.yaml", []byte(tc.src))
		require.Error(t, err, tc.src)
		assert.ErrorContains(t, err, tc.message, tc.src)

		var src *SourceError
		require.ErrorAs(t, err, &src, tc.src)
		assert.Equal(t, tc.line, src.Location.Line, tc.src)
		assert.Equal(t, "bad.yaml", src.Location.Filename)
	}

	_, err := Decode("broken.yaml", []byte("- [unclosed\n"))
	assert.ErrorContains(t, err, "parsing broken.yaml")
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- {sym: x}\n"), 0o644))
	prog, err := DecodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, prog.Filename)
	assert.Equal(t, "- {sym: x}\n", prog.Source)

	_, err = DecodeFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
