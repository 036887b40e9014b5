package arr

import (
	"context"
	"slices"
	"strings"
)

// registerAttributeBuiltins registers the builtins reading and writing
// attributes, factors included.
func registerAttributeBuiltins() {
	// names(x)
	Builtin("names").
		Doc("The names of x, or NULL.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Require("x")
			if err != nil {
				return nil, err
			}
			switch v := x.(type) {
			case *Frame:
				return NewString(v.Names()...), nil
			case Vector:
				if names, ok := v.Attributes().Get("names"); ok {
					return names, nil
				}
			}
			return NullValue{}, nil
		})

	// names(x) <- value
	Builtin("names<-").
		Doc("Replaces the names of x.").
		Params("x", "value").
		Behavior(ModifiesState).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			return replaceNames(args)
		})

	// setNames(object, nm)
	Builtin("setNames").
		Doc("A copy of object with the given names.").
		Params("object", "nm", NullValue{}).
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Vector("object")
			if err != nil {
				return nil, err
			}
			nm, _ := args.Get("nm")
			out := Copy(x).(Vector)
			if err := setNames(out, nm); err != nil {
				return nil, args.Errorf("%s", err)
			}
			return out, nil
		})

	// attr(x, which)
	Builtin("attr").
		Doc("A single attribute of x, or NULL.").
		Params("x", "which").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Vector("x")
			if err != nil {
				return nil, err
			}
			which, ok := args.GetString("which")
			if !ok {
				return nil, args.Errorf("exactly one attribute 'which' must be given")
			}
			if val, ok := x.Attributes().Get(which); ok {
				return val, nil
			}
			return NullValue{}, nil
		})

	// attr(x, which) <- value
	Builtin("attr<-").
		Doc("Replaces a single attribute of x.").
		Params("x", "which", "value").
		Behavior(ModifiesState).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			which, ok := args.GetString("which")
			if !ok {
				return nil, args.Errorf("'name' must be non-null character string")
			}
			value, err := args.Require("value")
			if err != nil {
				return nil, err
			}
			if which == "names" {
				return replaceNames(args)
			}
			return replaceAttr(args, which, value)
		})

	// attributes(x)
	Builtin("attributes").
		Doc("All attributes of x as a named list, or NULL.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Vector("x")
			if err != nil {
				return nil, err
			}
			attrs := x.Attributes()
			if attrs.Len() == 0 {
				return NullValue{}, nil
			}
			names := attrs.Names()
			vals := make([]Value, len(names))
			for i, name := range names {
				vals[i], _ = attrs.Get(name)
			}
			out := NewList(vals...)
			if err := out.SetAttr("names", NewString(names...)); err != nil {
				return nil, err
			}
			return out, nil
		})

	// class(x)
	Builtin("class").
		Doc("The class of x: its class attribute or the implicit class.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Require("x")
			if err != nil {
				return nil, err
			}
			return NewString(classOf(x)...), nil
		})

	// class(x) <- value
	Builtin("class<-").
		Doc("Replaces the class attribute of x.").
		Params("x", "value").
		Behavior(ModifiesState).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			value, err := args.Require("value")
			if err != nil {
				return nil, err
			}
			return replaceAttr(args, "class", value)
		})

	// inherits(x, what)
	Builtin("inherits").
		Doc("Whether the class of x includes any of what.").
		Params("x", "what").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Require("x")
			if err != nil {
				return nil, err
			}
			what, err := args.Vector("what")
			if err != nil {
				return nil, err
			}
			names, err := viewAs[string](what, StringType)
			if err != nil {
				return nil, err
			}
			classes := classOf(x)
			for i := 0; i < names.Len(); i++ {
				if slices.Contains(classes, names.At(i)) {
					return NewLogical(True), nil
				}
			}
			return NewLogical(False), nil
		})

	// factor(x = character(), levels)
	Builtin("factor").
		Doc("Encodes x as a factor over the given or the sorted distinct levels.").
		Params("x", NewString(), "levels").
		Pure().
		Impl(makeFactor)

	// levels(x)
	Builtin("levels").
		Doc("The levels of a factor, or NULL.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Vector("x")
			if err != nil {
				return nil, err
			}
			if levels, ok := x.Attributes().Get("levels"); ok {
				return levels, nil
			}
			return NullValue{}, nil
		})

	// levels(x) <- value
	Builtin("levels<-").
		Doc("Replaces the levels of x.").
		Params("x", "value").
		Behavior(ModifiesState).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			value, err := args.Require("value")
			if err != nil {
				return nil, err
			}
			if x, _ := args.Get("x"); IsFactor(x) {
				if levels, ok := AsVector(value); ok && levels.Len() < factorMaxCode(x.(Vector)) {
					return nil, args.Errorf("number of levels differs")
				}
			}
			return replaceAttr(args, "levels", value)
		})

	// nlevels(x)
	Builtin("nlevels").
		Doc("The number of levels of x.").
		Params("x").
		Pure().
		Impl(func(ctx context.Context, args Args) (Value, error) {
			x, err := args.Vector("x")
			if err != nil {
				return nil, err
			}
			levels, ok := Levels(x)
			if !ok {
				return NewInt(0), nil
			}
			return NewInt(levels.Len()), nil
		})
}

// writableTarget returns the x argument of a replacement function in a form
// that may be modified in place: x itself when the call comes from a
// replacement assignment and nothing else references it, otherwise a copy.
func writableTarget(args Args) (Vector, error) {
	x, err := args.Vector("x")
	if err != nil {
		return nil, err
	}
	if (args.Call == nil || !args.Call.replacement) && Materialize(x) == x {
		x = Copy(x).(Vector)
	}
	return writableAs(x, x.Type())
}

func replaceNames(args Args) (Value, error) {
	x, err := writableTarget(args)
	if err != nil {
		return nil, err
	}
	value, err := args.Require("value")
	if err != nil {
		return nil, err
	}
	if err := setNames(x, value); err != nil {
		return nil, args.Errorf("%s", err)
	}
	return x, nil
}

// setNames sets the names of x from nm, converted to character and padded
// with NA; NULL removes them.
func setNames(x Vector, nm Value) error {
	if _, isNull := nm.(NullValue); isNull {
		return setAttr(x, "names", NullValue{})
	}
	vec, ok := AsVector(nm)
	if !ok {
		return &CoercionError{From: nm.Type(), To: StringType}
	}
	if vec.Len() > x.Len() {
		return &ArgumentError{Message: "'names' attribute must be the same length as the vector"}
	}
	strs, err := viewAs[string](vec, StringType)
	if err != nil {
		return err
	}
	names := make([]string, x.Len())
	for i := range names {
		if i < strs.Len() {
			names[i] = strs.At(i)
		} else {
			names[i] = NAString
		}
	}
	return setAttr(x, "names", NewString(names...))
}

func replaceAttr(args Args, name string, value Value) (Value, error) {
	x, err := writableTarget(args)
	if err != nil {
		return nil, err
	}
	if err := setAttr(x, name, value); err != nil {
		return nil, args.Errorf("%s", err)
	}
	return x, nil
}

// classOf returns the explicit class attribute or the implicit class.
func classOf(v Value) []string {
	if vec, ok := v.(Vector); ok {
		if cls, ok := vec.Attributes().Get("class"); ok {
			if s, ok := cls.(Typed[string]); ok {
				return elems(s)
			}
		}
	}
	switch v.Type() {
	case DoubleType:
		return []string{"numeric"}
	case FunctionType:
		return []string{"function"}
	case SymbolType:
		return []string{"name"}
	case LanguageType:
		return []string{"call"}
	default:
		return []string{v.Type().String()}
	}
}

func factorMaxCode(f Vector) int {
	codes := f.(Typed[int])
	m := 0
	for i := 0; i < codes.Len(); i++ {
		m = max(m, codes.At(i))
	}
	return m
}

func makeFactor(_ context.Context, args Args) (Value, error) {
	x, err := args.Vector("x")
	if err != nil {
		return nil, err
	}
	if IsFactor(x) {
		if x, err = MakeClosure(x, StringType, false); err != nil {
			return nil, err
		}
	}
	labels, err := viewAs[string](x, StringType)
	if err != nil {
		return nil, err
	}

	var levels []string
	if given, ok := args.Get("levels"); ok {
		vec, ok := AsVector(given)
		if !ok {
			return nil, args.Errorf("invalid 'levels' argument")
		}
		lv, err := viewAs[string](vec, StringType)
		if err != nil {
			return nil, err
		}
		levels = elems(lv)
	} else {
		levels, err = sortedLevels(x)
		if err != nil {
			return nil, err
		}
	}

	index := make(map[string]int, len(levels))
	for i, l := range levels {
		if _, dup := index[l]; dup {
			return nil, args.Errorf("factor level [%d] is duplicated", i+1)
		}
		index[l] = i + 1
	}
	codes := make([]int, labels.Len())
	for i := range codes {
		if code, ok := index[labels.At(i)]; ok && labels.At(i) != NAString {
			codes[i] = code
		} else {
			codes[i] = NAInteger
		}
	}
	out := NewInt(codes...)
	if err := copyNames(x, out); err != nil {
		return nil, err
	}
	if err := out.SetAttr("levels", NewString(levels...)); err != nil {
		return nil, err
	}
	if err := out.SetAttr("class", NewString("factor")); err != nil {
		return nil, err
	}
	return out, nil
}

// sortedLevels returns the distinct non-NA values of x as labels, in the
// order of the values: numeric for numbers, lexical for strings.
func sortedLevels(x Vector) ([]string, error) {
	switch x.Type() {
	case LogicalType, IntegerType, DoubleType:
		d, err := viewAs[float64](x, DoubleType)
		if err != nil {
			return nil, err
		}
		vals := slices.DeleteFunc(slices.Clone(elems(d)), func(f float64) bool { return f != f })
		slices.Sort(vals)
		vals = slices.Compact(vals)
		out := make([]string, len(vals))
		for i, f := range vals {
			if x.Type() == LogicalType {
				out[i] = logicalToString(LogicalOf(f != 0))
			} else {
				out[i] = doubleToString(f)
			}
		}
		return out, nil
	default:
		s, err := viewAs[string](x, StringType)
		if err != nil {
			return nil, err
		}
		vals := slices.DeleteFunc(slices.Clone(elems(s)), func(v string) bool { return v == NAString })
		slices.SortFunc(vals, strings.Compare)
		return slices.Compact(vals), nil
	}
}
