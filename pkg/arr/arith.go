package arr

import (
	"context"
	"fmt"
	"math"
	"math/cmplx"
)

// arithOp is one arithmetic operator. ints is nil for operators whose
// result is never an integer; its results may fall outside the integer
// range, which the caller turns into NA.
type arithOp struct {
	name      string
	ints      func(a, b int) int
	doubles   func(a, b float64) float64
	complexes func(a, b complex128) complex128
}

const overflowWarning = "NAs produced by integer overflow"

// checkedInt narrows v to the integer range, setting overflow when it has
// to produce NA.
func checkedInt(v int, overflow *bool) int {
	if !inIntRange(v) {
		*overflow = true
		return NAInteger
	}
	return v
}

var arithOps = []*arithOp{
	{
		name:      "+",
		ints:      func(a, b int) int { return a + b },
		doubles:   func(a, b float64) float64 { return a + b },
		complexes: func(a, b complex128) complex128 { return a + b },
	},
	{
		name:      "-",
		ints:      func(a, b int) int { return a - b },
		doubles:   func(a, b float64) float64 { return a - b },
		complexes: func(a, b complex128) complex128 { return a - b },
	},
	{
		name:      "*",
		ints:      func(a, b int) int { return a * b },
		doubles:   func(a, b float64) float64 { return a * b },
		complexes: func(a, b complex128) complex128 { return a * b },
	},
	{
		name:      "/",
		doubles:   func(a, b float64) float64 { return a / b },
		complexes: func(a, b complex128) complex128 { return a / b },
	},
	{
		name:      "^",
		doubles:   math.Pow,
		complexes: cmplx.Pow,
	},
	{
		name: "%%",
		ints: func(a, b int) int {
			if b == 0 {
				return NAInteger
			}
			r := a % b
			if r != 0 && (r < 0) != (b < 0) {
				r += b
			}
			return r
		},
		doubles: func(a, b float64) float64 {
			if b == 0 {
				return math.NaN()
			}
			r := math.Mod(a, b)
			if r != 0 && (r < 0) != (b < 0) {
				r += b
			}
			return r
		},
	},
	{
		name: "%/%",
		ints: func(a, b int) int {
			if b == 0 {
				return NAInteger
			}
			q := a / b
			if a%b != 0 && (a < 0) != (b < 0) {
				q--
			}
			return q
		},
		doubles: func(a, b float64) float64 { return math.Floor(a / b) },
	},
}

// intVector applies op elementwise over integers, warning once if any
// element overflowed.
func (op *arithOp) intVector(ctx context.Context, args Args, x, y Typed[int], n int) *IntVector {
	overflow := false
	out := binaryTyped(IntegerType, x, y, n, func(a, b int) int {
		if a == NAInteger || b == NAInteger {
			return NAInteger
		}
		if b == 0 && (op.name == "%%" || op.name == "%/%") {
			return NAInteger
		}
		return checkedInt(op.ints(a, b), &overflow)
	})
	if overflow {
		args.Warnf(ctx, overflowWarning)
	}
	return out
}

func (op *arithOp) doubleElem(a, b float64) float64 {
	if op.name == "^" && (a == 1 || b == 0) {
		return 1
	}
	if IsNADouble(a) || IsNADouble(b) {
		return NADouble
	}
	return op.doubles(a, b)
}

func (op *arithOp) complexElem(a, b complex128) complex128 {
	if IsNAComplex(a) || IsNAComplex(b) {
		return NAComplex
	}
	return op.complexes(a, b)
}

func binaryTyped[S, T any](kind Type, x, y Typed[S], n int, f func(a, b S) T) *Vec[T] {
	out := make([]T, n)
	xn, yn := x.Len(), y.Len()
	for i := range out {
		out[i] = f(x.At(i%xn), y.At(i%yn))
	}
	return newVec(kind, out)
}

func plainInt(v Value) (*IntVector, bool) {
	i, ok := v.(*IntVector)
	return i, ok && isPlain(i)
}

func plainDouble(v Value) (*DoubleVector, bool) {
	d, ok := v.(*DoubleVector)
	return d, ok && isPlain(d)
}

func operands(args Args) (Value, Value) {
	e1, _ := args.Get("e1")
	e2, _ := args.Get("e2")
	return e1, e2
}

// numericFastPaths are the specializations shared by the arithmetic and
// comparison operators: scalars and equal-length plain vectors of the two
// numeric types, narrowest first.
func numericFastPaths(b *BuiltinBuilder, ints func(ctx context.Context, args Args, x, y *IntVector) Value, doubles func(x, y *DoubleVector) Value) *BuiltinBuilder {
	bothInt := func(args Args, scalar bool) bool {
		e1, e2 := operands(args)
		x, ok1 := plainInt(e1)
		y, ok2 := plainInt(e2)
		if !ok1 || !ok2 {
			return false
		}
		if scalar {
			return x.Len() == 1 && y.Len() == 1
		}
		return x.Len() == y.Len()
	}
	bothDouble := func(args Args, scalar bool) bool {
		e1, e2 := operands(args)
		x, ok1 := plainDouble(e1)
		y, ok2 := plainDouble(e2)
		if !ok1 || !ok2 {
			return false
		}
		if scalar {
			return x.Len() == 1 && y.Len() == 1
		}
		return x.Len() == y.Len()
	}
	runInts := func(ctx context.Context, args Args) (Value, error) {
		e1, e2 := operands(args)
		return ints(ctx, args, e1.(*IntVector), e2.(*IntVector)), nil
	}
	runDoubles := func(_ context.Context, args Args) (Value, error) {
		e1, e2 := operands(args)
		return doubles(e1.(*DoubleVector), e2.(*DoubleVector)), nil
	}
	return b.
		FastPath("integer-scalar", func(a Args) bool { return bothInt(a, true) }, runInts).
		FastPath("double-scalar", func(a Args) bool { return bothDouble(a, true) }, runDoubles).
		FastPath("integer-vector", func(a Args) bool { return bothInt(a, false) }, runInts).
		FastPath("double-vector", func(a Args) bool { return bothDouble(a, false) }, runDoubles)
}

func (op *arithOp) register() {
	b := Builtin(op.name).
		Doc(fmt.Sprintf("Elementwise %s with recycling.", op.name)).
		Params("e1", "e2").
		Pure()
	numericFastPaths(b,
		func(ctx context.Context, args Args, x, y *IntVector) Value {
			if op.ints == nil {
				return binaryTyped(DoubleType, x, y, x.Len(), func(a, b int) float64 {
					return op.doubleElem(intToDouble(a), intToDouble(b))
				})
			}
			return op.intVector(ctx, args, x, y, x.Len())
		},
		func(x, y *DoubleVector) Value {
			return binaryTyped(DoubleType, x, y, x.Len(), op.doubleElem)
		},
	).Impl(op.generic)
}

func (op *arithOp) generic(ctx context.Context, args Args) (Value, error) {
	e1v, err := args.Vector("e1")
	if err != nil {
		return nil, err
	}
	e2val, ok := args.Get("e2")
	if !ok {
		return op.unary(args, e1v)
	}
	e2v, ok := AsVector(e2val)
	if !ok {
		return nil, args.Errorf("non-numeric argument to binary operator")
	}
	for _, v := range []Vector{e1v, e2v} {
		if IsFactor(v) {
			return nil, args.Errorf("'%s' not meaningful for factors", op.name)
		}
		if t := v.Type(); t == StringType || t == ListType {
			return nil, args.Errorf("non-numeric argument to binary operator")
		}
	}

	n := max(e1v.Len(), e2v.Len())
	if e1v.Len() == 0 || e2v.Len() == 0 {
		n = 0
	}
	kind := CommonType(CommonType(e1v.Type(), e2v.Type()), IntegerType)
	if kind == IntegerType && op.ints == nil {
		kind = DoubleType
	}

	var out Vector
	switch kind {
	case IntegerType:
		x, y, err := viewBoth[int](e1v, e2v, kind)
		if err != nil {
			return nil, err
		}
		out = op.intVector(ctx, args, x, y, n)
	case DoubleType:
		x, y, err := viewBoth[float64](e1v, e2v, kind)
		if err != nil {
			return nil, err
		}
		out = binaryTyped(kind, x, y, n, op.doubleElem)
	case ComplexType:
		if op.complexes == nil {
			return nil, args.Errorf("invalid operation on complex numbers")
		}
		x, y, err := viewBoth[complex128](e1v, e2v, kind)
		if err != nil {
			return nil, err
		}
		out = binaryTyped(kind, x, y, n, op.complexElem)
	}
	if err := copyOperandNames(out, e1v, e2v); err != nil {
		return nil, err
	}
	return out, nil
}

func (op *arithOp) unary(args Args, x Vector) (Value, error) {
	if op.name != "-" && op.name != "+" {
		return nil, args.Errorf("invalid unary operator")
	}
	if t := x.Type(); t == StringType || t == ListType || IsFactor(x) {
		return nil, args.Errorf("invalid argument to unary operator")
	}
	kind := CommonType(x.Type(), IntegerType)
	var out Vector
	switch kind {
	case IntegerType:
		v, err := viewAs[int](x, kind)
		if err != nil {
			return nil, err
		}
		out = mapTyped(kind, v, func(a int) int {
			if a == NAInteger || op.name == "+" {
				return a
			}
			return -a
		})
	case DoubleType:
		v, err := viewAs[float64](x, kind)
		if err != nil {
			return nil, err
		}
		out = mapTyped(kind, v, func(a float64) float64 {
			if op.name == "+" || IsNADouble(a) {
				return a
			}
			return -a
		})
	case ComplexType:
		v, err := viewAs[complex128](x, kind)
		if err != nil {
			return nil, err
		}
		out = mapTyped(kind, v, func(a complex128) complex128 {
			if op.name == "+" || IsNAComplex(a) {
				return a
			}
			return -a
		})
	}
	if err := copyNames(x, out); err != nil {
		return nil, err
	}
	return out, nil
}

func mapTyped[S, T any](kind Type, x Typed[S], f func(S) T) *Vec[T] {
	out := make([]T, x.Len())
	for i := range out {
		out[i] = f(x.At(i))
	}
	return newVec(kind, out)
}

func viewBoth[T any](x, y Vector, kind Type) (Typed[T], Typed[T], error) {
	xv, err := viewAs[T](x, kind)
	if err != nil {
		return nil, nil, err
	}
	yv, err := viewAs[T](y, kind)
	if err != nil {
		return nil, nil, err
	}
	return xv, yv, nil
}

// copyOperandNames gives the result the names of the operand it matches in
// length, preferring the first.
func copyOperandNames(out, x, y Vector) error {
	if out.Len() == x.Len() {
		if _, ok := Names(x); ok {
			return copyNames(x, out)
		}
	}
	if out.Len() == y.Len() {
		return copyNames(y, out)
	}
	return nil
}

// compareOp is one relational operator; test receives -1, 0 or 1.
type compareOp struct {
	name string
	test func(c int) bool
}

var compareOps = []*compareOp{
	{"==", func(c int) bool { return c == 0 }},
	{"!=", func(c int) bool { return c != 0 }},
	{"<", func(c int) bool { return c < 0 }},
	{">", func(c int) bool { return c > 0 }},
	{"<=", func(c int) bool { return c <= 0 }},
	{">=", func(c int) bool { return c >= 0 }},
}

func cmp3[T int | float64 | string](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (op *compareOp) intElem(a, b int) Logical {
	if a == NAInteger || b == NAInteger {
		return NALogical
	}
	return LogicalOf(op.test(cmp3(a, b)))
}

func (op *compareOp) doubleElem(a, b float64) Logical {
	if math.IsNaN(a) || math.IsNaN(b) {
		return NALogical
	}
	return LogicalOf(op.test(cmp3(a, b)))
}

func (op *compareOp) stringElem(a, b string) Logical {
	if a == NAString || b == NAString {
		return NALogical
	}
	return LogicalOf(op.test(cmp3(a, b)))
}

func (op *compareOp) complexElem(a, b complex128) Logical {
	if cmplx.IsNaN(a) || cmplx.IsNaN(b) {
		return NALogical
	}
	if a == b {
		return LogicalOf(op.test(0))
	}
	return LogicalOf(op.test(1))
}

func (op *compareOp) register() {
	b := Builtin(op.name).
		Doc(fmt.Sprintf("Elementwise comparison %s with recycling.", op.name)).
		Params("e1", "e2").
		Pure()
	numericFastPaths(b,
		func(_ context.Context, _ Args, x, y *IntVector) Value {
			return binaryTyped(LogicalType, x, y, x.Len(), op.intElem)
		},
		func(x, y *DoubleVector) Value { return binaryTyped(LogicalType, x, y, x.Len(), op.doubleElem) },
	).Impl(op.generic)
}

func (op *compareOp) generic(_ context.Context, args Args) (Value, error) {
	e1v, err := args.Vector("e1")
	if err != nil {
		return nil, err
	}
	e2v, err := args.Vector("e2")
	if err != nil {
		return nil, err
	}
	n := max(e1v.Len(), e2v.Len())
	if e1v.Len() == 0 || e2v.Len() == 0 {
		n = 0
	}

	kind := CommonType(e1v.Type(), e2v.Type())
	if IsFactor(e1v) || IsFactor(e2v) {
		// factors compare by label
		kind = StringType
		if op.name != "==" && op.name != "!=" {
			return nil, args.Errorf("'%s' not meaningful for factors", op.name)
		}
	}
	var out Vector
	switch kind {
	case LogicalType, IntegerType:
		x, y, err := viewBoth[int](e1v, e2v, IntegerType)
		if err != nil {
			return nil, err
		}
		out = binaryTyped(LogicalType, x, y, n, op.intElem)
	case DoubleType:
		x, y, err := viewBoth[float64](e1v, e2v, DoubleType)
		if err != nil {
			return nil, err
		}
		out = binaryTyped(LogicalType, x, y, n, op.doubleElem)
	case ComplexType:
		if op.name != "==" && op.name != "!=" {
			return nil, args.Errorf("invalid comparison with complex values")
		}
		x, y, err := viewBoth[complex128](e1v, e2v, ComplexType)
		if err != nil {
			return nil, err
		}
		out = binaryTyped(LogicalType, x, y, n, op.complexElem)
	case StringType:
		x, y, err := viewBoth[string](e1v, e2v, StringType)
		if err != nil {
			return nil, err
		}
		out = binaryTyped(LogicalType, x, y, n, op.stringElem)
	default:
		return nil, args.Errorf("comparison of these types is not implemented")
	}
	if err := copyOperandNames(out, e1v, e2v); err != nil {
		return nil, err
	}
	return out, nil
}

// logical operators

func logicalOperand(args Args, name string) (Typed[Logical], error) {
	v, err := args.Vector(name)
	if err != nil {
		return nil, err
	}
	if t := v.Type(); t == StringType || t == ListType {
		return nil, args.Errorf("operations are possible only for numeric, logical or complex types")
	}
	l, err := Coerce(v, LogicalType)
	if err != nil {
		return nil, err
	}
	return l.(Typed[Logical]), nil
}

func and3(a, b Logical) Logical {
	switch {
	case a == False || b == False:
		return False
	case a == NALogical || b == NALogical:
		return NALogical
	default:
		return True
	}
}

func or3(a, b Logical) Logical {
	switch {
	case a == True || b == True:
		return True
	case a == NALogical || b == NALogical:
		return NALogical
	default:
		return False
	}
}

func registerLogicalOps() {
	Builtin("!").
		Doc("Logical negation.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := logicalOperand(args, "x")
			if err != nil {
				return nil, err
			}
			return mapTyped(LogicalType, x, func(l Logical) Logical {
				if l == NALogical {
					return l
				}
				return 1 - l
			}), nil
		})

	for name, f := range map[string]func(a, b Logical) Logical{"&": and3, "|": or3} {
		Builtin(name).
			Doc("Elementwise logical " + name + ".").
			Params("e1", "e2").
			Pure().
			Impl(func(ctx context.Context, args Args) (Value, error) {
				x, err := logicalOperand(args, "e1")
				if err != nil {
					return nil, err
				}
				y, err := logicalOperand(args, "e2")
				if err != nil {
					return nil, err
				}
				n := max(x.Len(), y.Len())
				if x.Len() == 0 || y.Len() == 0 {
					n = 0
				}
				return binaryTyped(LogicalType, x, y, n, f), nil
			})
	}

	// && and || only evaluate the right operand when it matters.
	for name, short := range map[string]Logical{"&&": False, "||": True} {
		combine := and3
		if short == True {
			combine = or3
		}
		Builtin(name).
			Doc("Scalar short-circuit logical " + name + ".").
			Params("e1", "e2").
			Special().
			Impl(func(ctx context.Context, args Args) (Value, error) {
				a, err := scalarLogicalPromise(ctx, args, "e1")
				if err != nil {
					return nil, err
				}
				if a == short {
					return NewLogical(a), nil
				}
				b, err := scalarLogicalPromise(ctx, args, "e2")
				if err != nil {
					return nil, err
				}
				return NewLogical(combine(a, b)), nil
			})
	}
}

func scalarLogicalPromise(ctx context.Context, args Args, name string) (Logical, error) {
	p, ok := args.Promise(name)
	if !ok {
		return NALogical, &MissingArgumentError{Name: name}
	}
	v, err := p.Force(ctx)
	if err != nil {
		return NALogical, err
	}
	vec, ok := v.(Vector)
	if !ok || vec.Len() != 1 {
		return NALogical, args.Errorf("invalid '%s' type in 'x %s y'", name, args.Def.Name)
	}
	if t := vec.Type(); t == StringType || t == ListType {
		return NALogical, args.Errorf("invalid '%s' type in 'x %s y'", name, args.Def.Name)
	}
	l, err := Coerce(vec, LogicalType)
	if err != nil {
		return NALogical, err
	}
	return l.(Typed[Logical]).At(0), nil
}

func init() {
	for _, op := range arithOps {
		op.register()
	}
	for _, op := range compareOps {
		op.register()
	}
	registerLogicalOps()
}
