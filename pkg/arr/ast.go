package arr

import (
	"context"
	"fmt"
	"strings"
)

// Node is an executable syntax node.
type Node interface {
	SourceLocatable
	Eval(ctx context.Context, env *Frame) (Value, error)
	Walk(fn func(Node) bool)
}

// EvalNode evaluates node in env. It refuses to run on a torn-down
// context, which is how abandoned evaluations notice they were cancelled.
func EvalNode(ctx context.Context, env *Frame, node Node) (Value, error) {
	if st := stateFrom(ctx); st != nil && st.closed() {
		return nil, ErrContextClosed
	}
	val, err := node.Eval(ctx, env)
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, &InternalError{Message: fmt.Sprintf("%T evaluated to nil", node)}
	}
	return val, nil
}

// Program is a decoded source file: a sequence of top-level forms.
type Program struct {
	Filename string
	Source   string
	Forms    []Node
}

// Constant is a literal value. Its value is shared permanently so that no
// evaluation can modify it.
type Constant struct {
	Value Value
	Loc   *SourceLocation
}

var _ Node = (*Constant)(nil)

func NewConstant(v Value, loc *SourceLocation) *Constant {
	MarkSharedPermanent(v)
	return &Constant{Value: v, Loc: loc}
}

func (c *Constant) GetSourceLocation() *SourceLocation { return c.Loc }

func (c *Constant) Eval(ctx context.Context, env *Frame) (Value, error) {
	SetVisible(ctx, true)
	return c.Value, nil
}

func (c *Constant) Walk(fn func(Node) bool) { fn(c) }

// Lookup reads a variable, forcing it if it is bound to a promise.
type Lookup struct {
	Name string
	Loc  *SourceLocation
}

var _ Node = (*Lookup)(nil)

func (l *Lookup) GetSourceLocation() *SourceLocation { return l.Loc }

func (l *Lookup) Eval(ctx context.Context, env *Frame) (Value, error) {
	return WithEvalErrorHandling(ctx, l, func() (Value, error) {
		v, err := env.Lookup(ctx, l.Name)
		if err != nil {
			return nil, err
		}
		SetVisible(ctx, true)
		return v, nil
	})
}

func (l *Lookup) Walk(fn func(Node) bool) { fn(l) }

// Block evaluates forms in order and yields the last value.
type Block struct {
	Forms []Node
	Loc   *SourceLocation
}

var _ Node = (*Block)(nil)

func (b *Block) GetSourceLocation() *SourceLocation { return b.Loc }

func (b *Block) Eval(ctx context.Context, env *Frame) (Value, error) {
	var result Value = NullValue{}
	SetVisible(ctx, true)
	for _, form := range b.Forms {
		val, err := EvalNode(ctx, env, form)
		if err != nil {
			return nil, err
		}
		result = val
	}
	return result, nil
}

func (b *Block) Walk(fn func(Node) bool) {
	if !fn(b) {
		return
	}
	for _, form := range b.Forms {
		form.Walk(fn)
	}
}

// Param is a formal parameter; Default may be nil.
type Param struct {
	Name    string
	Default Node
}

// FunctionDef creates a closure over the frame it is evaluated in.
type FunctionDef struct {
	Params []Param
	Body   Node
	Loc    *SourceLocation
}

var _ Node = (*FunctionDef)(nil)

func (f *FunctionDef) GetSourceLocation() *SourceLocation { return f.Loc }

func (f *FunctionDef) Eval(ctx context.Context, env *Frame) (Value, error) {
	SetVisible(ctx, true)
	return &Function{Params: f.Params, Body: f.Body, Env: env}, nil
}

func (f *FunctionDef) Walk(fn func(Node) bool) {
	if !fn(f) {
		return
	}
	for _, p := range f.Params {
		if p.Default != nil {
			p.Default.Walk(fn)
		}
	}
	f.Body.Walk(fn)
}

// Function is a user-defined closure.
type Function struct {
	Params []Param
	Body   Node
	Env    *Frame
}

func (f *Function) Type() Type { return FunctionType }

func (f *Function) String() string {
	return deparseFunction(f.Params, f.Body)
}

func (f *Function) formals() []string {
	names := make([]string, len(f.Params))
	for i, p := range f.Params {
		names[i] = p.Name
	}
	return names
}

// BuiltinFunction is a function implemented in Go.
type BuiltinFunction struct {
	Def *BuiltinDef
}

func (b *BuiltinFunction) Type() Type { return FunctionType }

func (b *BuiltinFunction) String() string {
	return fmt.Sprintf("function (%s) .Primitive(%q)", strings.Join(b.Def.Params, ", "), b.Def.Name)
}
