package arr

import (
	"context"
	"math"
	"slices"
	"sort"
)

// intersectInts is the integer fast path of intersect: the distinct values
// of x that also occur in y, in order of x. Both inputs must be non-empty.
func intersectInts(x, y Typed[int]) *IntVector {
	xs, ys := elems(x), elems(y)
	maxLen := min(len(xs), len(ys))
	var result []int
	push := func(v int) {
		if len(result) == cap(result) {
			grown := make([]int, len(result), min(maxLen, max(cap(result)*2, 8)))
			copy(grown, result)
			result = grown
		}
		result = append(result, v)
	}

	if slices.IsSorted(xs) {
		sortedY := ys
		if !slices.IsSorted(ys) {
			sortedY = slices.Clone(ys)
			slices.Sort(sortedY)
		}
		xPos, yPos := 0, 0
		for xPos < len(xs) && yPos < len(sortedY) {
			xv, yv := xs[xPos], sortedY[yPos]
			switch {
			case xv == yv:
				push(xv)
				// skip duplicates in x
				for xPos+1 < len(xs) && xs[xPos+1] == xv {
					xPos++
				}
				xPos++
				yPos++
			case xv < yv:
				xPos++
			default:
				yPos++
			}
		}
	} else {
		sortedY := slices.Clone(ys)
		slices.Sort(sortedY)
		used := make([]bool, len(sortedY))
		for _, v := range xs {
			pos := sort.SearchInts(sortedY, v)
			if pos < len(sortedY) && sortedY[pos] == v && !used[pos] {
				used[pos] = true
				push(v)
			}
		}
	}

	out := NewInt(result...)
	out.complete = x.IsComplete() || y.IsComplete()
	return out
}

func intersectFastPathApplies(args Args) bool {
	x, _ := args.Get("x")
	y, _ := args.Get("y")
	xi, ok1 := plainInt(x)
	yi, ok2 := plainInt(y)
	return ok1 && ok2 && xi.Len() > 0 && yi.Len() > 0
}

// setKey maps an element to a comparable key under which NA and NaN match
// themselves and -0 matches 0.
func setKey(v any) any {
	switch x := v.(type) {
	case float64:
		switch {
		case IsNADouble(x):
			return "\x00NA"
		case math.IsNaN(x):
			return "\x00NaN"
		case x == 0:
			return 0.0
		}
		return x
	case complex128:
		return [2]any{setKey(real(x)), setKey(imag(x))}
	default:
		return v
	}
}

// setOperand prepares an argument of a set operation: factors become their
// labels and names are dropped.
func setOperand(args Args, name string) (Vector, error) {
	v, err := args.Vector(name)
	if err != nil {
		return nil, err
	}
	if IsFactor(v) {
		return MakeClosure(v, StringType, false)
	}
	if v.Type() == ListType {
		return nil, args.Errorf("'%s' must be an atomic vector", name)
	}
	return v, nil
}

// keyed views a vector in the given type and returns its element keys.
func keyed(v Vector, kind Type) (Vector, []any, error) {
	view, err := MakeClosure(v, kind, false)
	if err != nil {
		if view, err = Coerce(v, kind); err != nil {
			return nil, nil, err
		}
	}
	keys := make([]any, view.Len())
	switch t := view.(type) {
	case Typed[Logical]:
		for i := range keys {
			keys[i] = t.At(i)
		}
	case Typed[int]:
		for i := range keys {
			keys[i] = t.At(i)
		}
	case Typed[float64]:
		for i := range keys {
			keys[i] = setKey(t.At(i))
		}
	case Typed[complex128]:
		for i := range keys {
			keys[i] = setKey(t.At(i))
		}
	case Typed[string]:
		for i := range keys {
			keys[i] = t.At(i)
		}
	}
	return view, keys, nil
}

// selectDistinct keeps the positions of v whose key passes keep and has
// not been seen before.
func selectDistinct(v Vector, keys []any, keep func(key any) bool) Vector {
	seen := make(map[any]bool, len(keys))
	positions := make([]int, 0, len(keys))
	for i, k := range keys {
		if seen[k] || !keep(k) {
			continue
		}
		seen[k] = true
		positions = append(positions, i)
	}
	return subsetAny(v, positions)
}

func keySet(keys []any) map[any]bool {
	set := make(map[any]bool, len(keys))
	for _, k := range keys {
		set[k] = true
	}
	return set
}

// setOperation is the shared shape of intersect, union and setdiff.
func setOperation(args Args, combine func(x, y Vector, xKeys, yKeys []any) Vector) (Value, error) {
	xv, _ := args.Get("x")
	yv, _ := args.Get("y")
	_, xNull := xv.(NullValue)
	_, yNull := yv.(NullValue)
	if xNull && yNull {
		return NullValue{}, nil
	}
	x, err := setOperand(args, "x")
	if err != nil {
		return nil, err
	}
	y, err := setOperand(args, "y")
	if err != nil {
		return nil, err
	}
	kind := CommonType(x.Type(), y.Type())
	if xNull {
		kind = y.Type()
	} else if yNull {
		kind = x.Type()
	}
	xs, xKeys, err := keyed(x, kind)
	if err != nil {
		return nil, err
	}
	ys, yKeys, err := keyed(y, kind)
	if err != nil {
		return nil, err
	}
	return combine(xs, ys, xKeys, yKeys), nil
}

func intersectGeneric(_ context.Context, args Args) (Value, error) {
	return setOperation(args, func(x, _ Vector, xKeys, yKeys []any) Vector {
		inY := keySet(yKeys)
		return selectDistinct(x, xKeys, func(k any) bool { return inY[k] })
	})
}

func matchPositions(xKeys, tableKeys []any, nomatch int) []int {
	first := make(map[any]int, len(tableKeys))
	for i := len(tableKeys) - 1; i >= 0; i-- {
		first[tableKeys[i]] = i + 1
	}
	out := make([]int, len(xKeys))
	for i, k := range xKeys {
		if p, ok := first[k]; ok {
			out[i] = p
		} else {
			out[i] = nomatch
		}
	}
	return out
}

func init() {
	Builtin("intersect").
		Doc("The distinct elements of x that also occur in y, in order of x.").
		Params("x", "y").
		Pure().
		FastPath("integer", intersectFastPathApplies, func(_ context.Context, args Args) (Value, error) {
			x, _ := args.Get("x")
			y, _ := args.Get("y")
			return intersectInts(x.(*IntVector), y.(*IntVector)), nil
		}).
		Impl(intersectGeneric)

	Builtin("union").
		Doc("The distinct elements of x followed by those of y.").
		Params("x", "y").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			return setOperation(args, func(x, y Vector, xKeys, yKeys []any) Vector {
				both, err := concat(x.Type(), []Value{x, y})
				if err != nil {
					return x
				}
				keys := append(slices.Clone(xKeys), yKeys...)
				return selectDistinct(both, keys, func(any) bool { return true })
			})
		})

	Builtin("setdiff").
		Doc("The distinct elements of x that do not occur in y.").
		Params("x", "y").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			return setOperation(args, func(x, _ Vector, xKeys, yKeys []any) Vector {
				inY := keySet(yKeys)
				return selectDistinct(x, xKeys, func(k any) bool { return !inY[k] })
			})
		})

	Builtin("unique").
		Doc("The distinct elements of x in order of first occurrence.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Vector("x")
			if err != nil {
				return nil, err
			}
			if x.Type() == ListType {
				return uniqueList(x.(Typed[Value])), nil
			}
			view, keys, err := keyed(x, x.Type())
			if err != nil {
				return nil, err
			}
			out := selectDistinct(view, keys, func(any) bool { return true })
			if IsFactor(x) {
				for _, name := range []string{"levels", "class"} {
					attr, _ := x.Attributes().Get(name)
					if err := setAttr(out, name, attr); err != nil {
						return nil, err
					}
				}
			}
			return out, nil
		})

	Builtin("match").
		Doc("Positions of the first matches of x in table.").
		Params("x", "table", "nomatch", NewInt(NAInteger)).
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := setOperand(args, "x")
			if err != nil {
				return nil, err
			}
			table, err := setOperand(args, "table")
			if err != nil {
				return nil, err
			}
			nomatch, ok := args.GetInt("nomatch")
			if !ok {
				nomatch = NAInteger
			}
			kind := CommonType(x.Type(), table.Type())
			_, xKeys, err := keyed(x, kind)
			if err != nil {
				return nil, err
			}
			_, tKeys, err := keyed(table, kind)
			if err != nil {
				return nil, err
			}
			return NewInt(matchPositions(xKeys, tKeys, nomatch)...), nil
		})

	Builtin("%in%").
		Doc("Whether each element of x occurs in table.").
		Params("x", "table").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := setOperand(args, "x")
			if err != nil {
				return nil, err
			}
			table, err := setOperand(args, "table")
			if err != nil {
				return nil, err
			}
			kind := CommonType(x.Type(), table.Type())
			_, xKeys, err := keyed(x, kind)
			if err != nil {
				return nil, err
			}
			_, tKeys, err := keyed(table, kind)
			if err != nil {
				return nil, err
			}
			in := keySet(tKeys)
			out := make([]Logical, len(xKeys))
			for i, k := range xKeys {
				out[i] = LogicalOf(in[k])
			}
			return NewLogical(out...), nil
		})
}

// uniqueList deduplicates list elements by identity of their printed form.
func uniqueList(x Typed[Value]) Vector {
	keys := make([]any, x.Len())
	for i := range keys {
		v := x.At(i)
		keys[i] = v.Type().String() + ":" + FormatValue(v)
	}
	return selectDistinct(x, keys, func(any) bool { return true })
}
