package arr

import (
	"math"
	"math/cmplx"
	"strconv"
	"strings"
)

// VectorClosure is a read-only view that converts the elements of a source
// vector on access. The source is never copied.
type VectorClosure[S, T any] struct {
	src       Typed[S]
	kind      Type
	conv      func(S) T
	attrs     *Attributes
	keepNames bool

	// lossy marks conversions that can produce NA from a complete source.
	lossy bool
}

var _ Typed[float64] = (*VectorClosure[int, float64])(nil)

func newClosure[S, T any](src Typed[S], kind Type, keepNames bool, conv func(S) T) *VectorClosure[S, T] {
	c := &VectorClosure[S, T]{src: src, kind: kind, conv: conv, keepNames: keepNames}
	if keepNames {
		c.attrs = namesOnly(src)
	}
	return c
}

func (c *VectorClosure[S, T]) Type() Type              { return c.kind }
func (c *VectorClosure[S, T]) Len() int                { return c.src.Len() }
func (c *VectorClosure[S, T]) At(i int) T              { return c.conv(c.src.At(i)) }
func (c *VectorClosure[S, T]) IsComplete() bool        { return !c.lossy && c.src.IsComplete() }
func (c *VectorClosure[S, T]) Attributes() *Attributes { return c.attrs }

// Source returns the wrapped vector.
func (c *VectorClosure[S, T]) Source() Vector { return c.src }

func (c *VectorClosure[S, T]) String() string { return c.Materialize().String() }

func (c *VectorClosure[S, T]) Materialize() Vector {
	data := make([]T, c.src.Len())
	for i := range data {
		data[i] = c.conv(c.src.At(i))
	}
	out := newVec(c.kind, data)
	if c.keepNames {
		out.attrs = namesOnly(c.src)
	}
	return out
}

// MakeClosure returns a view of src as the target type. Only implicit
// widening conversions are supported; anything else is a CoercionError and
// callers fall back to Coerce.
func MakeClosure(src Vector, target Type, keepNames bool) (Vector, error) {
	if IsFactor(src) {
		return factorClosure(src.(Typed[int]), target, keepNames)
	}
	if src.Type() == target {
		return src, nil
	}
	switch s := src.(type) {
	case Typed[Logical]:
		switch target {
		case IntegerType:
			return newClosure(s, target, keepNames, logicalToInt), nil
		case DoubleType:
			return newClosure(s, target, keepNames, logicalToDouble), nil
		case ComplexType:
			return newClosure(s, target, keepNames, func(l Logical) complex128 {
				return doubleToComplex(logicalToDouble(l))
			}), nil
		case StringType:
			return newClosure(s, target, keepNames, logicalToString), nil
		}
	case Typed[int]:
		switch target {
		case DoubleType:
			return newClosure(s, target, keepNames, intToDouble), nil
		case ComplexType:
			return newClosure(s, target, keepNames, func(i int) complex128 {
				return doubleToComplex(intToDouble(i))
			}), nil
		case StringType:
			return newClosure(s, target, keepNames, intToString), nil
		}
	case Typed[float64]:
		switch target {
		case ComplexType:
			return newClosure(s, target, keepNames, doubleToComplex), nil
		case StringType:
			return newClosure(s, target, keepNames, doubleToString), nil
		}
	case Typed[complex128]:
		if target == StringType {
			return newClosure(s, target, keepNames, complexToString), nil
		}
	}
	return nil, &CoercionError{From: src.Type(), To: target}
}

func factorClosure(src Typed[int], target Type, keepNames bool) (Vector, error) {
	levels, ok := Levels(src)
	if !ok {
		levels = NewString()
	}
	label := func(code int) string {
		if code == NAInteger || code < 1 || code > levels.Len() {
			return NAString
		}
		return levels.At(code - 1)
	}
	// out-of-range codes and unparsable labels become NA, so these views
	// are never known to be complete
	switch target {
	case StringType:
		view := newClosure(src, target, keepNames, label)
		view.lossy = true
		return view, nil
	case DoubleType:
		view := newClosure(src, target, keepNames, func(code int) float64 {
			return stringToDouble(label(code))
		})
		view.lossy = true
		return view, nil
	}
	return nil, &CoercionError{From: src.Type(), To: target}
}

// viewAs is MakeClosure for callers that need typed element access.
func viewAs[T any](v Vector, target Type) (Typed[T], error) {
	if t, ok := v.(Typed[T]); ok && !IsFactor(v) {
		return t, nil
	}
	view, err := MakeClosure(v, target, false)
	if err != nil {
		view, err = Coerce(v, target)
		if err != nil {
			return nil, err
		}
	}
	t, ok := view.(Typed[T])
	if !ok {
		return nil, &CoercionError{From: v.Type(), To: target}
	}
	return t, nil
}

// Coerce converts v to target, copying. It handles everything MakeClosure
// does plus narrowing conversions, string parsing and lists.
func Coerce(v Vector, target Type) (Vector, error) {
	if v.Type() == target && !IsFactor(v) {
		return Copy(v).(Vector), nil
	}
	if view, err := MakeClosure(v, target, true); err == nil {
		return Materialize(view), nil
	}
	var out Vector
	switch target {
	case ListType:
		data := make([]Value, v.Len())
		for i := range data {
			data[i] = element(v, i)
		}
		out = NewList(data...)
	case LogicalType:
		out = convertEach(v, target, func(x Value) (Logical, bool) {
			switch e := x.(type) {
			case Typed[int]:
				i := e.At(0)
				if i == NAInteger {
					return NALogical, true
				}
				return LogicalOf(i != 0), true
			case Typed[float64]:
				f := e.At(0)
				if math.IsNaN(f) {
					return NALogical, true
				}
				return LogicalOf(f != 0), true
			case Typed[complex128]:
				c := e.At(0)
				if cmplx.IsNaN(c) {
					return NALogical, true
				}
				return LogicalOf(c != 0), true
			case Typed[string]:
				return stringToLogical(e.At(0)), true
			case Typed[Logical]:
				return e.At(0), true
			}
			return NALogical, false
		})
	case IntegerType:
		out = convertEach(v, target, func(x Value) (int, bool) {
			switch e := x.(type) {
			case Typed[Logical]:
				return logicalToInt(e.At(0)), true
			case Typed[float64]:
				return doubleToInt(e.At(0)), true
			case Typed[complex128]:
				return doubleToInt(real(e.At(0))), true
			case Typed[string]:
				return doubleToInt(stringToDouble(e.At(0))), true
			case Typed[int]:
				return e.At(0), true
			}
			return NAInteger, false
		})
	case DoubleType:
		out = convertEach(v, target, func(x Value) (float64, bool) {
			switch e := x.(type) {
			case Typed[Logical]:
				return logicalToDouble(e.At(0)), true
			case Typed[int]:
				return intToDouble(e.At(0)), true
			case Typed[complex128]:
				return real(e.At(0)), true
			case Typed[string]:
				return stringToDouble(e.At(0)), true
			case Typed[float64]:
				return e.At(0), true
			}
			return NADouble, false
		})
	case ComplexType:
		out = convertEach(v, target, func(x Value) (complex128, bool) {
			switch e := x.(type) {
			case Typed[string]:
				s := e.At(0)
				if s == NAString {
					return NAComplex, true
				}
				c, err := strconv.ParseComplex(strings.TrimSpace(s), 128)
				if err != nil {
					return NAComplex, true
				}
				return c, true
			case Typed[complex128]:
				return e.At(0), true
			}
			if d, err := viewAs[float64](x.(Vector), DoubleType); err == nil {
				return doubleToComplex(d.At(0)), true
			}
			return NAComplex, false
		})
	case StringType:
		out = convertEach(v, target, func(x Value) (string, bool) {
			if s, err := viewAs[string](x.(Vector), StringType); err == nil {
				return s.At(0), true
			}
			return NAString, false
		})
	}
	if out == nil {
		return nil, &CoercionError{From: v.Type(), To: target}
	}
	if err := copyNames(v, out); err != nil {
		return nil, err
	}
	return out, nil
}

// convertEach converts element by element through length-one vectors, which
// lets list elements and atomic elements share one path. A nil result means
// some element could not be converted.
func convertEach[T any](v Vector, target Type, conv func(Value) (T, bool)) Vector {
	data := make([]T, v.Len())
	for i := range data {
		e := element(v, i)
		ev, ok := e.(Vector)
		if !ok || ev.Len() != 1 {
			return nil
		}
		x, ok := conv(ev)
		if !ok {
			return nil
		}
		data[i] = x
	}
	return newVec(target, data)
}

func copyNames(from Vector, to Vector) error {
	names, ok := from.Attributes().Get("names")
	if !ok {
		return nil
	}
	if s, ok := to.(interface{ SetAttr(string, Value) error }); ok {
		return s.SetAttr("names", names)
	}
	return nil
}

// element returns element i of v as a value: the element itself for lists
// and a length-one vector otherwise.
func element(v Vector, i int) Value {
	switch t := v.(type) {
	case Typed[Value]:
		return t.At(i)
	case Typed[Logical]:
		return NewLogical(t.At(i))
	case Typed[int]:
		return NewInt(t.At(i))
	case Typed[float64]:
		return NewDouble(t.At(i))
	case Typed[complex128]:
		return NewComplex(t.At(i))
	case Typed[string]:
		return NewString(t.At(i))
	}
	return NullValue{}
}

func logicalToInt(l Logical) int {
	if l == NALogical {
		return NAInteger
	}
	return int(l)
}

func logicalToDouble(l Logical) float64 {
	if l == NALogical {
		return NADouble
	}
	return float64(l)
}

func logicalToString(l Logical) string {
	if l == NALogical {
		return NAString
	}
	return l.String()
}

func intToDouble(i int) float64 {
	if i == NAInteger {
		return NADouble
	}
	return float64(i)
}

func intToString(i int) string {
	if i == NAInteger {
		return NAString
	}
	return strconv.Itoa(i)
}

func doubleToInt(f float64) int {
	if math.IsNaN(f) || f >= math.MaxInt32+1 || f <= math.MinInt32 {
		return NAInteger
	}
	return int(f)
}

func doubleToComplex(f float64) complex128 {
	if IsNADouble(f) {
		return NAComplex
	}
	return complex(f, 0)
}

// doubleToString renders with up to 15 significant digits, as as.character
// does.
func doubleToString(f float64) string {
	switch {
	case IsNADouble(f):
		return NAString
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	}
	s := strconv.FormatFloat(f, 'g', 15, 64)
	if strings.Contains(s, "e") {
		mant, exp, _ := strings.Cut(s, "e")
		if strings.Contains(mant, ".") {
			mant = strings.TrimRight(strings.TrimRight(mant, "0"), ".")
		}
		sign := exp[0]
		digits := strings.TrimLeft(exp[1:], "0")
		if len(digits) < 2 {
			digits = strings.Repeat("0", 2-len(digits)) + digits
		}
		return mant + "e" + string(sign) + digits
	}
	return s
}

func complexToString(c complex128) string {
	if IsNAComplex(c) {
		return NAString
	}
	sign := "+"
	im := imag(c)
	if im < 0 || (im == 0 && math.Signbit(im)) {
		sign = "-"
		im = -im
	}
	return doubleToString(real(c)) + sign + doubleToString(im) + "i"
}

func stringToDouble(s string) float64 {
	if s == NAString {
		return NADouble
	}
	s = strings.TrimSpace(s)
	switch s {
	case "NA":
		return NADouble
	case "Inf", "inf":
		return math.Inf(1)
	case "-Inf", "-inf":
		return math.Inf(-1)
	case "NaN":
		return math.NaN()
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if n, err := strconv.ParseInt(s[2:], 16, 64); err == nil {
			return float64(n)
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return NADouble
	}
	return f
}

func stringToLogical(s string) Logical {
	switch s {
	case "TRUE", "true", "T", "True":
		return True
	case "FALSE", "false", "F", "False":
		return False
	default:
		return NALogical
	}
}
