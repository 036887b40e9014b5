package arr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClosureMaterializesLikeCoerce(t *testing.T) {
	for _, tc := range []struct {
		name   string
		src    Vector
		target Type
	}{
		{"logical to integer", NewLogical(True, False, NALogical), IntegerType},
		{"logical to double", NewLogical(True, NALogical), DoubleType},
		{"integer to double", NewInt(1, NAInteger, -3), DoubleType},
		{"integer to character", NewInt(10, NAInteger), StringType},
		{"double to character", NewDouble(1.5, 2, NADouble), StringType},
		{"double to complex", NewDouble(1, 2), ComplexType},
	} {
		t.Run(tc.name, func(t *testing.T) {
			view, err := MakeClosure(tc.src, tc.target, true)
			require.NoError(t, err)
			assert.Equal(t, tc.target, view.Type())
			assert.Equal(t, tc.src.Len(), view.Len())

			coerced, err := Coerce(tc.src, tc.target)
			require.NoError(t, err)
			assert.True(t, Identical(Materialize(view), coerced))
		})
	}
}

func TestClosureDoesNotCopySource(t *testing.T) {
	src := NewInt(1, 2, 3)
	view, err := MakeClosure(src, DoubleType, false)
	require.NoError(t, err)
	closure, ok := view.(*VectorClosure[int, float64])
	require.True(t, ok)
	assert.Same(t, src, closure.Source())

	// the view follows its source
	require.NoError(t, src.Set(0, 7))
	assert.Equal(t, 7.0, closure.At(0))
}

func TestClosureKeepsNames(t *testing.T) {
	src := NewInt(1, 2)
	require.NoError(t, src.SetAttr("names", NewString("a", "b")))

	named, err := MakeClosure(src, StringType, true)
	require.NoError(t, err)
	names, ok := Names(named)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, elems(names))

	bare, err := MakeClosure(src, StringType, false)
	require.NoError(t, err)
	_, ok = Names(bare)
	assert.False(t, ok)
}

func TestClosureRejectsNarrowing(t *testing.T) {
	_, err := MakeClosure(NewDouble(1.5), IntegerType, false)
	var coercion *CoercionError
	require.ErrorAs(t, err, &coercion)
	assert.Equal(t, DoubleType, coercion.From)
	assert.Equal(t, IntegerType, coercion.To)

	// Coerce handles it by copying
	out, err := Coerce(NewDouble(1.5, NADouble), IntegerType)
	require.NoError(t, err)
	assert.Equal(t, []int{1, NAInteger}, ints(out))
}

func TestFactorClosure(t *testing.T) {
	f := NewInt(2, 1, NAInteger)
	require.NoError(t, f.SetAttr("levels", NewString("lo", "hi")))
	require.NoError(t, f.SetAttr("class", NewString("factor")))
	require.True(t, IsFactor(f))

	labels, err := MakeClosure(f, StringType, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi", "lo", NAString}, strs(Materialize(labels)))

	// the codes are complete, the numeric reading of the labels is not
	complete := NewInt(1, 2)
	require.NoError(t, complete.SetAttr("levels", NewString("3", "x")))
	require.NoError(t, complete.SetAttr("class", NewString("factor")))
	require.True(t, complete.IsComplete())
	nums, err := MakeClosure(complete, DoubleType, false)
	require.NoError(t, err)
	assert.False(t, nums.IsComplete())
	got := doubles(Materialize(nums))
	assert.Equal(t, 3.0, got[0])
	assert.True(t, IsNADouble(got[1]))
}

func TestCoerceStrings(t *testing.T) {
	out, err := Coerce(NewString("1.5", "abc", NAString, "TRUE"), DoubleType)
	require.NoError(t, err)
	got := doubles(out)
	assert.Equal(t, 1.5, got[0])
	assert.True(t, IsNADouble(got[1]))
	assert.True(t, IsNADouble(got[2]))
	assert.True(t, IsNADouble(got[3]))

	l, err := Coerce(NewString("TRUE", "false", "T", "yes"), LogicalType)
	require.NoError(t, err)
	assert.Equal(t, []Logical{True, False, True, NALogical}, logicals(l))
}
