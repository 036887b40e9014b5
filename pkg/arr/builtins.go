package arr

import (
	"context"
	"fmt"
)

// BuiltinKind says whether a builtin receives evaluated values or promises.
type BuiltinKind int

const (
	// EagerBuiltin arguments are evaluated before the call.
	EagerBuiltin BuiltinKind = iota
	// SpecialBuiltin arguments arrive as unforced promises.
	SpecialBuiltin
)

// Behavior describes the side effects of a builtin. Only Pure builtins
// are constant folded; builtins are Complex unless declared otherwise.
type Behavior int

const (
	Pure Behavior = iota
	ReadsState
	ModifiesState
	Complex
)

// VisibilityMode controls how a builtin sets the visibility flag.
type VisibilityMode int

const (
	VisibleOn VisibilityMode = iota
	VisibleOff
	// VisibleCustom builtins set the flag themselves.
	VisibleCustom
)

// BuiltinDef defines a builtin function
type BuiltinDef struct {
	Name            string
	Params          []string
	Defaults        map[string]Value
	Kind            BuiltinKind
	Behavior        Behavior
	Visibility      VisibilityMode
	Specializations []Specialization[Args, Value]
	Impl            func(ctx context.Context, args Args) (Value, error)
	Doc             string
}

// Args provides access to the matched arguments of a builtin call
type Args struct {
	Def  *BuiltinDef
	Env  *Frame
	Call *Call

	values   []Value
	Dots     []Value
	DotNames []string
}

func newArgs(def *BuiltinDef, env *Frame, call *Call, names []string, values []Value) (Args, error) {
	slots, filled, dots, dotNames, err := matchArgs(def.Name, def.Params, names, values)
	if err != nil {
		return Args{}, err
	}
	for i, ok := range filled {
		if !ok {
			slots[i] = nil
		}
	}
	return Args{Def: def, Env: env, Call: call, values: slots, Dots: dots, DotNames: dotNames}, nil
}

func (a Args) index(name string) int {
	for i, p := range a.Def.Params {
		if p == name {
			return i
		}
	}
	return -1
}

// Get retrieves an argument value by name, falling back to its default.
// Empty and missing arguments are reported as absent.
func (a Args) Get(name string) (Value, bool) {
	if i := a.index(name); i >= 0 && a.values[i] != nil {
		switch v := a.values[i].(type) {
		case MissingValue:
		case *Promise:
			if v != MissingArg {
				return v, true
			}
		default:
			return v, true
		}
	}
	if def, ok := a.Def.Defaults[name]; ok {
		return def, true
	}
	return nil, false
}

// Require retrieves an argument or fails with MissingArgumentError
func (a Args) Require(name string) (Value, error) {
	val, ok := a.Get(name)
	if !ok {
		return nil, &MissingArgumentError{Name: name}
	}
	return val, nil
}

// Vector retrieves a required vector argument; NULL is an empty vector.
func (a Args) Vector(name string) (Vector, error) {
	val, err := a.Require(name)
	if err != nil {
		return nil, err
	}
	vec, ok := AsVector(val)
	if !ok {
		return nil, a.Errorf("argument '%s' must be a vector, not %s", name, val.Type())
	}
	return vec, nil
}

// GetString retrieves a scalar string argument
func (a Args) GetString(name string) (string, bool) {
	val, ok := a.Get(name)
	if !ok {
		return "", false
	}
	return asStringScalar(val)
}

// GetBool retrieves a scalar logical argument, using def when absent or NA
func (a Args) GetBool(name string, def bool) bool {
	val, ok := a.Get(name)
	if !ok {
		return def
	}
	vec, ok := val.(Vector)
	if !ok || vec.Len() != 1 {
		return def
	}
	l, err := Coerce(vec, LogicalType)
	if err != nil {
		return def
	}
	switch l.(Typed[Logical]).At(0) {
	case True:
		return true
	case False:
		return false
	default:
		return def
	}
}

// GetInt retrieves a scalar integer argument
func (a Args) GetInt(name string) (int, bool) {
	val, ok := a.Get(name)
	if !ok {
		return 0, false
	}
	vec, ok := val.(Vector)
	if !ok || vec.Len() != 1 {
		return 0, false
	}
	ints, err := Coerce(vec, IntegerType)
	if err != nil {
		return 0, false
	}
	i := ints.(Typed[int]).At(0)
	return i, i != NAInteger
}

// Promise returns the unforced argument of a special builtin.
func (a Args) Promise(name string) (*Promise, bool) {
	val, ok := a.Get(name)
	if !ok {
		return nil, false
	}
	p, ok := val.(*Promise)
	return p, ok
}

// Errorf builds an ArgumentError attributed to the builtin.
func (a Args) Errorf(format string, args ...any) error {
	return &ArgumentError{Function: a.Def.Name, Message: fmt.Sprintf(format, args...)}
}

// BuiltinBuilder provides a fluent API for defining builtin functions
type BuiltinBuilder struct {
	def BuiltinDef
}

// Builtin creates a new builtin function builder
func Builtin(name string) *BuiltinBuilder {
	return &BuiltinBuilder{
		def: BuiltinDef{
			Name:     name,
			Defaults: map[string]Value{},
			Behavior: Complex,
		},
	}
}

// Doc sets the documentation string
func (b *BuiltinBuilder) Doc(doc string) *BuiltinBuilder {
	b.def.Doc = doc
	return b
}

// Params adds parameters to the function
// Usage: Params("x", "y") or Params("x", "sep", NewString(" "), ...)
func (b *BuiltinBuilder) Params(items ...any) *BuiltinBuilder {
	for i := 0; i < len(items); i++ {
		name, ok := items[i].(string)
		if !ok {
			panic(fmt.Sprintf("Params: expected string at position %d, got %T", i, items[i]))
		}
		b.def.Params = append(b.def.Params, name)
		if i+1 < len(items) {
			if val, isValue := items[i+1].(Value); isValue {
				MarkSharedPermanent(val)
				b.def.Defaults[name] = val
				i++
			}
		}
	}
	return b
}

// Special makes the builtin receive its arguments unevaluated
func (b *BuiltinBuilder) Special() *BuiltinBuilder {
	b.def.Kind = SpecialBuiltin
	return b
}

// Behavior sets the side-effect class
func (b *BuiltinBuilder) Behavior(behavior Behavior) *BuiltinBuilder {
	b.def.Behavior = behavior
	return b
}

// Pure marks the builtin as free of side effects
func (b *BuiltinBuilder) Pure() *BuiltinBuilder {
	return b.Behavior(Pure)
}

// Invisible marks the result as invisible
func (b *BuiltinBuilder) Invisible() *BuiltinBuilder {
	b.def.Visibility = VisibleOff
	return b
}

// CustomVisibility leaves the visibility flag to the implementation
func (b *BuiltinBuilder) CustomVisibility() *BuiltinBuilder {
	b.def.Visibility = VisibleCustom
	return b
}

// FastPath adds a specialization; declare them narrowest first
func (b *BuiltinBuilder) FastPath(name string, guard func(Args) bool, impl func(context.Context, Args) (Value, error)) *BuiltinBuilder {
	b.def.Specializations = append(b.def.Specializations, Specialization[Args, Value]{
		Name:  name,
		Guard: guard,
		Impl:  impl,
	})
	return b
}

// Impl sets the implementation and registers the builtin
func (b *BuiltinBuilder) Impl(fn func(context.Context, Args) (Value, error)) {
	b.def.Impl = fn
	def := b.def
	Register(&def)
}

var (
	registry   []*BuiltinDef
	registered = map[string]*BuiltinDef{}
)

// Register adds a builtin definition to the registry
func Register(def *BuiltinDef) {
	if _, dup := registered[def.Name]; dup {
		panic(fmt.Sprintf("builtin %q registered twice", def.Name))
	}
	registry = append(registry, def)
	registered[def.Name] = def
}

// LookupBuiltin finds a registered builtin by name
func LookupBuiltin(name string) (*BuiltinDef, bool) {
	def, ok := registered[name]
	return def, ok
}

// ForEachFunction iterates over all registered builtins
func ForEachFunction(fn func(*BuiltinDef)) {
	for _, def := range registry {
		fn(def)
	}
}
