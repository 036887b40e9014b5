package arr

import (
	"fmt"
)

// resolveIndex turns an index value into zero-based positions into a vector
// of length n. Position -1 stands for NA. Positions may exceed n: reads
// yield NA there and writes grow the vector. For character indices the
// unmatched names are returned so that writes can append them.
func resolveIndex(v Vector, idx Value) ([]int, []string, error) {
	n := v.Len()
	switch idx.(type) {
	case MissingValue:
		positions := make([]int, n)
		for i := range positions {
			positions[i] = i
		}
		return positions, nil, nil
	case NullValue:
		return nil, nil, nil
	}
	iv, ok := idx.(Vector)
	if !ok {
		return nil, nil, &ArgumentError{Message: fmt.Sprintf("invalid subscript type '%s'", idx.Type())}
	}
	if IsFactor(iv) {
		// factors index by their codes
		codes := iv.(Typed[int])
		return numericPositions(n, func(i int) float64 { return intToDouble(codes.At(i)) }, iv.Len())
	}
	switch x := iv.(type) {
	case Typed[string]:
		return namePositions(v, x)
	case Typed[Logical]:
		m := max(n, x.Len())
		positions := make([]int, 0, m)
		if x.Len() == 0 {
			return positions, nil, nil
		}
		for i := 0; i < m; i++ {
			switch x.At(i % x.Len()) {
			case True:
				positions = append(positions, i)
			case NALogical:
				positions = append(positions, -1)
			}
		}
		return positions, nil, nil
	case Typed[int]:
		return numericPositions(n, func(i int) float64 { return intToDouble(x.At(i)) }, x.Len())
	case Typed[float64]:
		return numericPositions(n, x.At, x.Len())
	}
	return nil, nil, &ArgumentError{Message: fmt.Sprintf("invalid subscript type '%s'", iv.Type())}
}

func numericPositions(n int, at func(int) float64, m int) ([]int, []string, error) {
	var pos, neg bool
	for i := 0; i < m; i++ {
		f := at(i)
		if f > -1 && f < 1 || f != f {
			continue
		}
		if f < 0 {
			neg = true
		} else {
			pos = true
		}
	}
	if pos && neg {
		return nil, nil, &ArgumentError{Message: "can't mix positive and negative subscripts"}
	}
	if neg {
		excluded := make(map[int]bool, m)
		for i := 0; i < m; i++ {
			f := at(i)
			if f != f {
				return nil, nil, &ArgumentError{Message: "can't mix NAs and negative subscripts"}
			}
			excluded[int(-f)-1] = true
		}
		positions := make([]int, 0, n)
		for i := 0; i < n; i++ {
			if !excluded[i] {
				positions = append(positions, i)
			}
		}
		return positions, nil, nil
	}
	positions := make([]int, 0, m)
	for i := 0; i < m; i++ {
		f := at(i)
		switch {
		case f != f:
			positions = append(positions, -1)
		case f >= 1:
			positions = append(positions, int(f)-1)
		}
	}
	return positions, nil, nil
}

func namePositions(v Vector, idx Typed[string]) ([]int, []string, error) {
	names, _ := Names(v)
	lookup := map[string]int{}
	if names != nil {
		for i := names.Len() - 1; i >= 0; i-- {
			lookup[names.At(i)] = i
		}
	}
	positions := make([]int, idx.Len())
	var added []string
	next := v.Len()
	for i := range positions {
		name := idx.At(i)
		if p, ok := lookup[name]; ok && name != NAString {
			positions[i] = p
			continue
		}
		lookup[name] = next
		positions[i] = next
		added = append(added, name)
		next++
	}
	return positions, added, nil
}

func subsetTyped[T any](src Typed[T], kind Type, positions []int) *Vec[T] {
	out := make([]T, len(positions))
	na := naElem[T]()
	for i, p := range positions {
		if p < 0 || p >= src.Len() {
			out[i] = na
		} else {
			out[i] = src.At(p)
		}
	}
	if kind == ListType {
		for _, x := range out {
			MarkShared(any(x).(Value))
		}
	}
	return newVec(kind, out)
}

// Subset implements x[i].
func Subset(v Vector, idx Value) (Vector, error) {
	positions, _, err := resolveIndex(v, idx)
	if err != nil {
		return nil, err
	}
	out := subsetAny(v, positions)
	if names, ok := Names(v); ok {
		nameVec := subsetTyped(names, StringType, positions)
		for i, p := range positions {
			if p >= v.Len() {
				nameVec.data[i] = "<NA>"
			}
		}
		if err := setAttr(out, "names", nameVec); err != nil {
			return nil, err
		}
	}
	if IsFactor(v) {
		for _, name := range []string{"levels", "class"} {
			attr, _ := v.Attributes().Get(name)
			if err := setAttr(out, name, attr); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func subsetAny(v Vector, positions []int) Vector {
	switch t := v.(type) {
	case Typed[Logical]:
		return subsetTyped(t, LogicalType, positions)
	case Typed[int]:
		return subsetTyped(t, IntegerType, positions)
	case Typed[float64]:
		return subsetTyped(t, DoubleType, positions)
	case Typed[complex128]:
		return subsetTyped(t, ComplexType, positions)
	case Typed[string]:
		return subsetTyped(t, StringType, positions)
	case Typed[Value]:
		return subsetTyped(t, ListType, positions)
	}
	return NewLogical()
}

// Element implements x[[i]].
func Element(v Vector, idx Value) (Value, error) {
	positions, added, err := resolveIndex(v, idx)
	if err != nil {
		return nil, err
	}
	if len(positions) != 1 {
		if len(positions) == 0 {
			return nil, &ArgumentError{Message: "subscript of length zero"}
		}
		return nil, &ArgumentError{Message: "attempt to select more than one element"}
	}
	p := positions[0]
	if len(added) > 0 || p < 0 || p >= v.Len() {
		return nil, &ArgumentError{Message: "subscript out of bounds"}
	}
	if IsFactor(v) {
		return Subset(v, NewInt(p+1))
	}
	return element(v, p), nil
}

// AssignIndex implements x[i] <- value and, when double is set,
// x[[i]] <- value. The result is cur itself when cur could be modified in
// place, and a fresh vector otherwise.
func AssignIndex(cur Value, idx Value, val Value, double bool) (Vector, error) {
	target, ok := AsVector(cur)
	if !ok {
		return nil, &ArgumentError{Message: fmt.Sprintf("object of type '%s' is not subsettable", cur.Type())}
	}
	if _, isNull := cur.(NullValue); isNull {
		if double && !isAtomicScalar(val) {
			target = NewList()
		} else if vv, ok := val.(Vector); ok {
			target = NewVector(vv.Type(), 0)
		}
	}

	positions, added, err := resolveIndex(target, idx)
	if err != nil {
		return nil, err
	}

	var src Vector
	kind := target.Type()
	switch {
	case double:
		if len(positions) != 1 {
			return nil, &ArgumentError{Message: "more elements supplied than there are to replace"}
		}
		if kind == ListType || !isAtomicScalar(val) {
			kind = ListType
			src = NewList(val)
		} else {
			src = val.(Vector)
		}
	default:
		vv, ok := AsVector(val)
		if !ok {
			kind = ListType
			src = NewList(val)
			break
		}
		if vv.Len() == 0 && len(positions) > 0 {
			return nil, &ArgumentError{Message: "replacement has length zero"}
		}
		src = vv
	}
	if IsFactor(target) {
		src, err = factorCodes(target, src)
		if err != nil {
			return nil, err
		}
	} else {
		kind = CommonType(kind, src.Type())
	}

	w, err := writableAs(target, kind)
	if err != nil {
		return nil, err
	}

	size := w.Len()
	for _, p := range positions {
		size = max(size, p+1)
	}
	if err := resize(w, size); err != nil {
		return nil, err
	}
	if err := assignAny(w, positions, src); err != nil {
		return nil, err
	}
	if len(added) > 0 {
		if err := extendNames(w, target.Len(), added); err != nil {
			return nil, err
		}
	} else if _, hasNames := Names(w); hasNames && size > target.Len() {
		if err := extendNames(w, target.Len(), nil); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func isAtomicScalar(v Value) bool {
	vec, ok := v.(Vector)
	return ok && vec.Type().IsAtomic() && vec.Len() == 1
}

// factorCodes maps replacement labels onto the codes of a factor; unknown
// labels become NA.
func factorCodes(factor Vector, src Vector) (Vector, error) {
	levels, _ := Levels(factor)
	if IsFactor(src) {
		view, err := MakeClosure(src, StringType, false)
		if err != nil {
			return nil, err
		}
		src = view
	}
	labels, err := viewAs[string](src, StringType)
	if err != nil {
		return nil, err
	}
	codes := make([]int, labels.Len())
	for i := range codes {
		codes[i] = NAInteger
		for j := 0; levels != nil && j < levels.Len(); j++ {
			if levels.At(j) == labels.At(i) {
				codes[i] = j + 1
				break
			}
		}
	}
	return NewInt(codes...), nil
}

// writableAs returns a vector of type kind holding v's contents that may be
// modified in place.
func writableAs(v Vector, kind Type) (Vector, error) {
	if v.Type() != kind && !(IsFactor(v) && kind == IntegerType) {
		out, err := Coerce(v, kind)
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	m := Materialize(v)
	if m != v {
		if err := copyAttrs(v, m); err != nil {
			return nil, err
		}
		return m, nil
	}
	switch t := m.(type) {
	case *LogicalVector:
		return Writable(t), nil
	case *IntVector:
		return Writable(t), nil
	case *DoubleVector:
		return Writable(t), nil
	case *ComplexVector:
		return Writable(t), nil
	case *StringVector:
		return Writable(t), nil
	case *ListVector:
		return Writable(t), nil
	}
	return nil, &InternalError{Message: fmt.Sprintf("cannot write to %T", v)}
}

func copyAttrs(from, to Vector) error {
	attrs := from.Attributes()
	for _, name := range attrs.Names() {
		val, _ := attrs.Get(name)
		if err := setAttr(to, name, val); err != nil {
			return err
		}
	}
	return nil
}

func resize(v Vector, n int) error {
	switch t := v.(type) {
	case *LogicalVector:
		return t.Resize(n)
	case *IntVector:
		return t.Resize(n)
	case *DoubleVector:
		return t.Resize(n)
	case *ComplexVector:
		return t.Resize(n)
	case *StringVector:
		return t.Resize(n)
	case *ListVector:
		return t.Resize(n)
	}
	return &InternalError{Message: fmt.Sprintf("cannot resize %T", v)}
}

func assignAny(w Vector, positions []int, src Vector) error {
	switch t := w.(type) {
	case *LogicalVector:
		return assignTyped(t, LogicalType, positions, src)
	case *IntVector:
		return assignTyped(t, IntegerType, positions, src)
	case *DoubleVector:
		return assignTyped(t, DoubleType, positions, src)
	case *ComplexVector:
		return assignTyped(t, ComplexType, positions, src)
	case *StringVector:
		return assignTyped(t, StringType, positions, src)
	case *ListVector:
		if _, ok := src.(Typed[Value]); !ok {
			data := make([]Value, src.Len())
			for i := range data {
				data[i] = element(src, i)
			}
			src = NewList(data...)
		}
		return assignTyped(t, ListType, positions, src)
	}
	return &InternalError{Message: fmt.Sprintf("cannot assign into %T", w)}
}

func assignTyped[T any](w *Vec[T], kind Type, positions []int, src Vector) error {
	vals, err := viewAs[T](src, kind)
	if err != nil {
		return err
	}
	if vals.Len() == 0 {
		return nil
	}
	for i, p := range positions {
		if p < 0 {
			continue
		}
		if err := w.Set(p, vals.At(i%vals.Len())); err != nil {
			return err
		}
	}
	return nil
}

// extendNames pads the names of a grown vector with "" and fills in the
// names appended by character subscripts.
func extendNames(w Vector, oldLen int, added []string) error {
	data := make([]string, w.Len())
	if names, ok := Names(w); ok {
		for i := 0; i < names.Len() && i < len(data); i++ {
			data[i] = names.At(i)
		}
	}
	for i := oldLen; i < len(data); i++ {
		data[i] = ""
	}
	for i, name := range added {
		data[oldLen+i] = name
	}
	return setAttr(w, "names", NewString(data...))
}

// setAttr sets an attribute on a concrete vector.
func setAttr(v Vector, name string, val Value) error {
	s, ok := v.(interface{ SetAttr(string, Value) error })
	if !ok {
		return &ArgumentError{Message: fmt.Sprintf("cannot set attribute '%s' on a %s view", name, v.Type())}
	}
	return s.SetAttr(name, val)
}
