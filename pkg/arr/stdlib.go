package arr

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/vito/arr/pkg/ioctx"
)

func init() {
	registerStdlib()
	registerAttributeBuiltins()
	registerEnvironmentBuiltins()
	registerNativeBuiltins()
}

// registerStdlib registers the vector construction, conversion and output
// builtins.
func registerStdlib() {
	// c(...): combine values into one vector
	Builtin("c").
		Doc("Combines values into a vector of their common type.").
		Params("...").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			return combineValues(args.Dots, args.DotNames)
		})

	// list(...)
	Builtin("list").
		Doc("Creates a generic vector of its arguments.").
		Params("...").
		Impl(func(ctx context.Context, args Args) (Value, error) {
			out := NewList(args.Dots...)
			if hasNames(args.DotNames) {
				if err := out.SetAttr("names", NewString(args.DotNames...)); err != nil {
					return nil, err
				}
			}
			return out, nil
		})

	// length(x)
	Builtin("length").
		Doc("The number of elements of x.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Require("x")
			if err != nil {
				return nil, err
			}
			switch v := x.(type) {
			case NullValue:
				return NewInt(0), nil
			case Vector:
				return NewInt(v.Len()), nil
			case *Frame:
				return NewInt(len(v.Names())), nil
			default:
				return NewInt(1), nil
			}
		})

	// seq_len(length.out)
	Builtin("seq_len").
		Doc("The integers 1 through length.out.").
		Params("length.out").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			n, ok := args.GetInt("length.out")
			if !ok || n < 0 {
				return nil, args.Errorf("argument of length 0 or negative")
			}
			return NewIntSeq(1, 1, n), nil
		})

	// seq_along(along.with)
	Builtin("seq_along").
		Doc("The integers 1 through length(along.with).").
		Params("along.with").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			v, err := args.Vector("along.with")
			if err != nil {
				return nil, err
			}
			return NewIntSeq(1, 1, v.Len()), nil
		})

	// from:to
	Builtin(":").
		Doc("The sequence from, from±1, ... up to to.").
		Params("from", "to").
		Pure().
		Impl(colon)

	// rep(x, times = 1, each = 1, length.out = NA)
	Builtin("rep").
		Doc("Replicates the elements of x.").
		Params("x", "times", NewInt(1), "each", NewInt(1), "length.out", NewInt(NAInteger)).
		Pure().
		Impl(repeatValues)

	// is.na(x)
	Builtin("is.na").
		Doc("Which elements of x are NA.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Vector("x")
			if err != nil {
				return nil, err
			}
			out := make([]Logical, x.Len())
			for i := range out {
				out[i] = LogicalOf(elementIsNA(x, i))
			}
			res := NewLogical(out...)
			if err := copyNames(x, res); err != nil {
				return nil, err
			}
			return res, nil
		})

	// is.null(x)
	Builtin("is.null").
		Doc("Whether x is NULL.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Require("x")
			if err != nil {
				return nil, err
			}
			_, isNull := x.(NullValue)
			return NewLogical(LogicalOf(isNull)), nil
		})

	// sum(..., na.rm = FALSE)
	Builtin("sum").
		Doc("The sum of all elements of the arguments.").
		Params("...", "na.rm", NewLogical(False)).
		Pure().
		FastPath("complete-integer", func(args Args) bool {
			if len(args.Dots) != 1 {
				return false
			}
			v, ok := plainInt(args.Dots[0])
			return ok && v.IsComplete()
		}, func(ctx context.Context, args Args) (Value, error) {
			total := 0
			for _, x := range args.Dots[0].(*IntVector).Data() {
				total += x
			}
			return intSum(ctx, args, total), nil
		}).
		Impl(sumValues)

	// identical(x, y)
	Builtin("identical").
		Doc("Whether x and y are exactly equal, attributes included.").
		Params("x", "y").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Require("x")
			if err != nil {
				return nil, err
			}
			y, err := args.Require("y")
			if err != nil {
				return nil, err
			}
			return NewLogical(LogicalOf(Identical(x, y))), nil
		})

	// typeof(x)
	Builtin("typeof").
		Doc("The internal type of x.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Require("x")
			if err != nil {
				return nil, err
			}
			if _, ok := x.(*BuiltinFunction); ok {
				return NewString("builtin"), nil
			}
			return NewString(x.Type().String()), nil
		})

	for name, kind := range map[string]Type{
		"as.logical":   LogicalType,
		"as.integer":   IntegerType,
		"as.double":    DoubleType,
		"as.numeric":   DoubleType,
		"as.complex":   ComplexType,
		"as.character": StringType,
		"as.list":      ListType,
	} {
		Builtin(name).
			Doc(fmt.Sprintf("Converts x to a %s vector, dropping attributes.", kind)).
			Params("x").
			Pure().
			Impl(func(ctx context.Context, args Args) (Value, error) {
				x, err := args.Vector("x")
				if err != nil {
					return nil, err
				}
				return convertVector(ctx, args, x, kind)
			})
	}

	// invisible(x = NULL)
	Builtin("invisible").
		Doc("Returns x without printing it at top level.").
		Params("x", NullValue{}).
		Invisible().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, _ := args.Get("x")
			return x, nil
		})

	// print(x, ...)
	Builtin("print").
		Doc("Prints x to standard output and returns it invisibly.").
		Params("x", "...").
		Invisible().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Require("x")
			if err != nil {
				return nil, err
			}
			fmt.Fprintln(ioctx.StdoutFromContext(ctx), FormatValue(x))
			return x, nil
		})

	// cat(..., sep = " ")
	Builtin("cat").
		Doc("Writes the elements of its arguments to standard output.").
		Params("...", "sep", NewString(" ")).
		Invisible().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			sep, ok := args.GetString("sep")
			if !ok {
				return nil, args.Errorf("invalid 'sep' specification")
			}
			parts, err := catStrings(args, args.Dots)
			if err != nil {
				return nil, err
			}
			var out strings.Builder
			for i, p := range parts {
				out.WriteString(p)
				if i < len(parts)-1 && !strings.HasSuffix(p, "\n") {
					out.WriteString(sep)
				}
			}
			fmt.Fprint(ioctx.StdoutFromContext(ctx), out.String())
			return NullValue{}, nil
		})

	// paste(..., sep = " ", collapse = NULL) and paste0
	for name, defaultSep := range map[string]string{"paste": " ", "paste0": ""} {
		Builtin(name).
			Doc("Concatenates its arguments elementwise as strings.").
			Params("...", "sep", NewString(defaultSep), "collapse", NullValue{}).
			Pure().
			Impl(func(ctx context.Context, args Args) (Value, error) {
				sep, ok := args.GetString("sep")
				if !ok {
					return nil, args.Errorf("invalid separator")
				}
				return paste(args, sep)
			})
	}
}

func hasNames(names []string) bool {
	for _, n := range names {
		if n != "" {
			return true
		}
	}
	return false
}

// combineValues implements c(): elements of all arguments in order, in their
// common type. Names come from argument tags and element names.
func combineValues(vals []Value, tags []string) (Value, error) {
	kind := NullType
	for _, v := range vals {
		switch x := v.(type) {
		case NullValue:
		case Vector:
			kind = CommonType(kind, x.Type())
		default:
			kind = ListType
		}
	}
	if kind == NullType {
		return NullValue{}, nil
	}
	out, err := concat(kind, vals)
	if err != nil {
		return nil, err
	}
	names, named := combinedNames(vals, tags)
	if named {
		if err := setAttr(out, "names", NewString(names...)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func combinedNames(vals []Value, tags []string) ([]string, bool) {
	var names []string
	found := false
	for i, v := range vals {
		tag := ""
		if i < len(tags) {
			tag = tags[i]
		}
		vec, ok := v.(Vector)
		if !ok {
			names = append(names, tag)
			found = found || tag != ""
			continue
		}
		inner, hasInner := Names(vec)
		found = found || tag != "" || hasInner
		for j := 0; j < vec.Len(); j++ {
			var n string
			switch {
			case hasInner && tag != "":
				n = tag + "." + inner.At(j)
			case hasInner:
				n = inner.At(j)
			case tag != "" && vec.Len() == 1:
				n = tag
			case tag != "":
				n = fmt.Sprintf("%s%d", tag, j+1)
			}
			names = append(names, n)
		}
	}
	return names, found
}

// concat joins the elements of vals into one vector of type kind. Values
// that are not vectors become list elements.
func concat(kind Type, vals []Value) (Vector, error) {
	switch kind {
	case LogicalType:
		return concatTyped[Logical](kind, vals)
	case IntegerType:
		return concatTyped[int](kind, vals)
	case DoubleType:
		return concatTyped[float64](kind, vals)
	case ComplexType:
		return concatTyped[complex128](kind, vals)
	case StringType:
		return concatTyped[string](kind, vals)
	}
	var data []Value
	for _, v := range vals {
		switch x := v.(type) {
		case NullValue:
		case Vector:
			for i := 0; i < x.Len(); i++ {
				data = append(data, element(x, i))
			}
		default:
			data = append(data, v)
		}
	}
	return NewList(data...), nil
}

func concatTyped[T any](kind Type, vals []Value) (Vector, error) {
	var data []T
	for _, v := range vals {
		vec, ok := AsVector(v)
		if !ok {
			return nil, &CoercionError{From: v.Type(), To: kind}
		}
		t, err := viewAs[T](vec, kind)
		if err != nil {
			return nil, err
		}
		data = append(data, elems(t)...)
	}
	if data == nil {
		data = []T{}
	}
	return newVec(kind, data), nil
}

func colon(_ context.Context, args Args) (Value, error) {
	from, err := scalarDouble(args, "from")
	if err != nil {
		return nil, err
	}
	to, err := scalarDouble(args, "to")
	if err != nil {
		return nil, err
	}
	n := int(math.Floor(math.Abs(to-from)+1e-10)) + 1
	stride := 1
	if from > to {
		stride = -1
	}
	last := from + float64(stride*(n-1))
	if from == math.Trunc(from) && inIntRange(int(from)) && inIntRange(int(last)) {
		return NewIntSeq(int(from), stride, n), nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = from + float64(stride*i)
	}
	return NewDouble(out...), nil
}

func scalarDouble(args Args, name string) (float64, error) {
	v, err := args.Vector(name)
	if err != nil {
		return 0, err
	}
	if v.Len() == 0 {
		return 0, args.Errorf("argument of length 0")
	}
	if IsFactor(v) {
		if v, err = Coerce(v, IntegerType); err != nil {
			return 0, err
		}
	}
	d, err := viewAs[float64](v, DoubleType)
	if err != nil {
		return 0, args.Errorf("argument '%s' must be numeric", name)
	}
	f := d.At(0)
	if math.IsNaN(f) {
		return 0, args.Errorf("NA/NaN argument")
	}
	return f, nil
}

func repeatValues(_ context.Context, args Args) (Value, error) {
	x, err := args.Vector("x")
	if err != nil {
		return nil, err
	}
	each, ok := args.GetInt("each")
	if !ok || each < 0 {
		return nil, args.Errorf("invalid 'each' argument")
	}
	base := make([]int, 0, x.Len()*each)
	for i := 0; i < x.Len(); i++ {
		for range each {
			base = append(base, i)
		}
	}

	var positions []int
	timesVec, err := args.Vector("times")
	if err != nil {
		return nil, err
	}
	times, err := viewAs[int](timesVec, IntegerType)
	if err != nil {
		return nil, args.Errorf("invalid 'times' argument")
	}
	switch {
	case times.Len() == 1:
		n := times.At(0)
		if n == NAInteger || n < 0 {
			return nil, args.Errorf("invalid 'times' argument")
		}
		for range n {
			positions = append(positions, base...)
		}
	case times.Len() == len(base):
		for i, p := range base {
			n := times.At(i)
			if n == NAInteger || n < 0 {
				return nil, args.Errorf("invalid 'times' argument")
			}
			for range n {
				positions = append(positions, p)
			}
		}
	default:
		return nil, args.Errorf("invalid 'times' argument")
	}

	if lengthOut, ok := args.GetInt("length.out"); ok {
		if len(base) == 0 {
			positions = nil
		} else {
			out := make([]int, lengthOut)
			for i := range out {
				out[i] = base[i%len(base)]
			}
			positions = out
		}
	}

	out := subsetAny(x, positions)
	if names, ok := Names(x); ok {
		if err := setAttr(out, "names", subsetTyped(names, StringType, positions)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func elementIsNA(v Vector, i int) bool {
	switch t := v.(type) {
	case Typed[Logical]:
		return t.At(i) == NALogical
	case Typed[int]:
		return t.At(i) == NAInteger
	case Typed[float64]:
		return math.IsNaN(t.At(i))
	case Typed[complex128]:
		return isNAElem(t.At(i))
	case Typed[string]:
		return t.At(i) == NAString
	case Typed[Value]:
		el, ok := t.At(i).(Vector)
		return ok && el.Type().IsAtomic() && el.Len() == 1 && elementIsNA(el, 0)
	}
	return false
}

// intSum narrows an integer total, warning when it does not fit.
func intSum(ctx context.Context, args Args, total int) Value {
	overflow := false
	total = checkedInt(total, &overflow)
	if overflow {
		args.Warnf(ctx, "integer overflow - use sum(as.numeric(.))")
	}
	return NewInt(total)
}

func sumValues(ctx context.Context, args Args) (Value, error) {
	naRm := args.GetBool("na.rm", false)
	kind := IntegerType
	for _, v := range args.Dots {
		vec, ok := AsVector(v)
		if !ok || IsFactor(vec) || vec.Type() == StringType || vec.Type() == ListType {
			return nil, args.Errorf("invalid 'type' (%s) of argument", v.Type())
		}
		kind = CommonType(kind, vec.Type())
	}
	switch kind {
	case IntegerType:
		total := 0
		for _, v := range args.Dots {
			vec, _ := AsVector(v)
			ints, err := viewAs[int](vec, IntegerType)
			if err != nil {
				return nil, err
			}
			for i := 0; i < ints.Len(); i++ {
				x := ints.At(i)
				if x == NAInteger {
					if naRm {
						continue
					}
					return NewInt(NAInteger), nil
				}
				total += x
			}
		}
		return intSum(ctx, args, total), nil
	case DoubleType:
		total := 0.0
		for _, v := range args.Dots {
			vec, _ := AsVector(v)
			ds, err := viewAs[float64](vec, DoubleType)
			if err != nil {
				return nil, err
			}
			for i := 0; i < ds.Len(); i++ {
				x := ds.At(i)
				if naRm && math.IsNaN(x) {
					continue
				}
				total += x
			}
		}
		return NewDouble(total), nil
	default:
		var total complex128
		for _, v := range args.Dots {
			vec, _ := AsVector(v)
			cs, err := viewAs[complex128](vec, ComplexType)
			if err != nil {
				return nil, err
			}
			for i := 0; i < cs.Len(); i++ {
				x := cs.At(i)
				if naRm && isNAElem(x) {
					continue
				}
				total += x
			}
		}
		return NewComplex(total), nil
	}
}

// Identical reports whether two values are the same in type, elements and
// attributes. Functions and environments compare by identity.
func Identical(x, y Value) bool {
	if x.Type() != y.Type() {
		return false
	}
	switch a := x.(type) {
	case NullValue, MissingValue:
		return true
	case Symbol:
		return a.Name == y.(Symbol).Name
	case Language:
		return Deparse(a.Node) == Deparse(y.(Language).Node)
	case Vector:
		b := y.(Vector)
		if a.Len() != b.Len() || !identicalAttrs(a.Attributes(), b.Attributes()) {
			return false
		}
		for i := 0; i < a.Len(); i++ {
			if !identicalElems(a, b, i) {
				return false
			}
		}
		return true
	default:
		return x == y
	}
}

func identicalElems(a, b Vector, i int) bool {
	switch t := a.(type) {
	case Typed[Logical]:
		return t.At(i) == b.(Typed[Logical]).At(i)
	case Typed[int]:
		return t.At(i) == b.(Typed[int]).At(i)
	case Typed[float64]:
		return sameDouble(t.At(i), b.(Typed[float64]).At(i))
	case Typed[complex128]:
		x, y := t.At(i), b.(Typed[complex128]).At(i)
		return sameDouble(real(x), real(y)) && sameDouble(imag(x), imag(y))
	case Typed[string]:
		return t.At(i) == b.(Typed[string]).At(i)
	case Typed[Value]:
		return Identical(t.At(i), b.(Typed[Value]).At(i))
	}
	return false
}

func sameDouble(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b) && IsNADouble(a) == IsNADouble(b)
	}
	return a == b
}

func identicalAttrs(a, b *Attributes) bool {
	if a.Len() != b.Len() {
		return false
	}
	for _, name := range a.Names() {
		av, _ := a.Get(name)
		bv, ok := b.Get(name)
		if !ok || !Identical(av, bv) {
			return false
		}
	}
	return true
}

// convertVector implements the as.* family. Names survive only as.list;
// factors convert by their codes except to character.
func convertVector(ctx context.Context, args Args, x Vector, kind Type) (Value, error) {
	if IsFactor(x) && kind != StringType && kind != ListType {
		codes, err := Coerce(x, IntegerType)
		if err != nil {
			return nil, err
		}
		x = codes
	}
	out, err := Coerce(x, kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case IntegerType, DoubleType, ComplexType:
		if msg, lost := coercionLoss(x, out); lost {
			args.Warnf(ctx, "%s", msg)
		}
	}
	if kind == ListType {
		return out, nil
	}
	for _, name := range out.Attributes().Names() {
		if err := setAttr(out, name, NullValue{}); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// coercionLoss reports whether converting from produced NA where from had a
// value, with the warning that goes with it.
func coercionLoss(from, to Vector) (string, bool) {
	for i := 0; i < from.Len(); i++ {
		if elementIsNA(from, i) || !elementIsNA(to, i) {
			continue
		}
		if s, ok := from.(Typed[string]); ok {
			switch strings.TrimSpace(s.At(i)) {
			case "NA", "NaN":
				continue
			}
			return "NAs introduced by coercion", true
		}
		return "NAs introduced by coercion to integer range", true
	}
	return "", false
}

// catStrings flattens the arguments of cat into the strings it writes.
func catStrings(args Args, vals []Value) ([]string, error) {
	var parts []string
	for _, v := range vals {
		switch x := v.(type) {
		case NullValue:
		case Symbol:
			parts = append(parts, x.Name)
		case *ListVector:
			for i := 0; i < x.Len(); i++ {
				el, ok := x.At(i).(Vector)
				if !ok || !el.Type().IsAtomic() || el.Len() != 1 {
					return nil, args.Errorf("argument 1 (type 'list') cannot be handled by 'cat'")
				}
				sub, err := catStrings(args, []Value{el})
				if err != nil {
					return nil, err
				}
				parts = append(parts, sub...)
			}
		case Vector:
			if IsFactor(x) {
				codes, err := Coerce(x, IntegerType)
				if err != nil {
					return nil, err
				}
				x = codes
			}
			for i := 0; i < x.Len(); i++ {
				parts = append(parts, formatElemAt(x, i, false))
			}
		default:
			return nil, args.Errorf("argument of type '%s' cannot be handled by 'cat'", v.Type())
		}
	}
	return parts, nil
}

func paste(args Args, sep string) (Value, error) {
	var cols []Typed[string]
	n := 0
	for _, v := range args.Dots {
		vec, ok := AsVector(v)
		if !ok {
			return nil, args.Errorf("cannot coerce type '%s' to vector of type 'character'", v.Type())
		}
		if vec.Len() == 0 {
			continue
		}
		s, err := viewAs[string](vec, StringType)
		if err != nil {
			return nil, err
		}
		cols = append(cols, s)
		n = max(n, s.Len())
	}
	out := make([]string, n)
	for i := range out {
		parts := make([]string, len(cols))
		for j, c := range cols {
			el := c.At(i % c.Len())
			if el == NAString {
				el = "NA"
			}
			parts[j] = el
		}
		out[i] = strings.Join(parts, sep)
	}
	if collapse, ok := args.GetString("collapse"); ok {
		return NewString(strings.Join(out, collapse)), nil
	}
	return NewString(out...), nil
}
