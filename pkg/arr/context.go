package arr

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// evalState is the per-evaluation state reachable from a context.Context.
// A Context evaluates one top-level unit at a time, so it is not locked.
type evalState struct {
	visible  bool
	owner    *Context
	warnings []Warning
	raised   int
}

func (s *evalState) closed() bool {
	return s.owner != nil && s.owner.closed.Load()
}

type stateKey struct{}

func stateFrom(ctx context.Context) *evalState {
	st, _ := ctx.Value(stateKey{}).(*evalState)
	return st
}

// SetVisible sets whether the current top-level result should be printed.
func SetVisible(ctx context.Context, visible bool) {
	if st := stateFrom(ctx); st != nil {
		st.visible = visible
	}
}

// Visible reports the current visibility flag.
func Visible(ctx context.Context) bool {
	if st := stateFrom(ctx); st != nil {
		return st.visible
	}
	return true
}

func globalFrame(ctx context.Context, env *Frame) *Frame {
	if st := stateFrom(ctx); st != nil && st.owner != nil {
		return st.owner.Global
	}
	// without an owning context, the global frame is the child of the root
	for env.parent != nil && env.parent.parent != nil {
		env = env.parent
	}
	return env
}

// Context is an isolated interpreter instance. Contexts share nothing
// mutable, so independent contexts may run on different goroutines.
type Context struct {
	ID     uuid.UUID
	Global *Frame
	Base   *Frame

	config  Config
	natives *NativeRegistry

	mu     sync.Mutex
	closed atomic.Bool
}

type evalOutcome struct {
	val Value
	err error
}

// Result is the outcome of evaluating one top-level unit.
type Result struct {
	Value    Value
	Visible  bool
	Warnings []Warning
}

type ContextOption func(*Context)

// WithLibrary makes a native library available to .Call and .C.
func WithLibrary(lib NativeLibrary) ContextOption {
	return func(c *Context) {
		c.natives.Load(lib)
	}
}

func NewContext(config Config, opts ...ContextOption) *Context {
	c := &Context{
		ID:      uuid.New(),
		config:  config,
		natives: NewNativeRegistry(config.NativeCacheSize),
	}
	c.Base = NewNamedFrame("base", nil)
	ForEachFunction(func(def *BuiltinDef) {
		c.Base.Bind(def.Name, &BuiltinFunction{Def: def})
	})
	for name, val := range baseConstants() {
		MarkSharedPermanent(val)
		c.Base.Bind(name, val)
	}
	c.Base.Lock()
	c.Global = NewNamedFrame("R_GlobalEnv", c.Base)
	for _, opt := range opts {
		opt(c)
	}
	slog.Debug("context created", "id", c.ID)
	return c
}

func baseConstants() map[string]Value {
	letters := make([]string, 26)
	upper := make([]string, 26)
	for i := range letters {
		letters[i] = string(rune('a' + i))
		upper[i] = string(rune('A' + i))
	}
	return map[string]Value{
		"T":       NewLogical(True),
		"F":       NewLogical(False),
		"pi":      NewDouble(math.Pi),
		"letters": NewString(letters...),
		"LETTERS": NewString(upper...),
	}
}

// Config returns the configuration the context was created with.
func (c *Context) Config() Config { return c.config }

// Natives returns the native symbol registry of this context.
func (c *Context) Natives() *NativeRegistry { return c.natives }

// Eval evaluates one top-level unit in the global frame. If the configured
// timeout passes or ctx is cancelled first, the context is torn down and
// CancelledError is returned without waiting for the evaluation.
func (c *Context) Eval(ctx context.Context, node Node) (Result, error) {
	if c.closed.Load() {
		return Result{}, ErrContextClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := tracer.Start(ctx, "eval", trace.WithAttributes(
		attribute.String("arr.context", c.ID.String()),
	))
	defer span.End()

	st := &evalState{visible: true, owner: c}
	ctx = context.WithValue(ctx, stateKey{}, st)
	ctx = WithConfig(ctx, c.config)
	if c.config.Timeout.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout.Duration)
		defer cancel()
	}

	done := make(chan evalOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- evalOutcome{err: &InternalError{Message: fmt.Sprint(r)}}
			}
		}()
		val, err := EvalNode(ctx, c.Global, node)
		done <- evalOutcome{val: val, err: err}
	}()

	select {
	case o := <-done:
		if cause := ctx.Err(); cause != nil {
			c.teardown(nil)
			return Result{}, &CancelledError{Cause: cause}
		}
		if o.err != nil {
			return Result{Warnings: st.warnings}, o.err
		}
		return Result{Value: o.val, Visible: st.visible, Warnings: st.warnings}, nil
	case <-ctx.Done():
		cause := ctx.Err()
		slog.Debug("evaluation cancelled", "id", c.ID, "cause", cause)
		span.SetStatus(codes.Error, "cancelled")
		c.teardown(done)
		return Result{}, &CancelledError{Cause: cause}
	}
}

// EvalProgram evaluates the forms of p in order, stopping at the first
// error. The results of the forms evaluated so far are returned either way.
func (c *Context) EvalProgram(ctx context.Context, p *Program) ([]Result, error) {
	ctx = WithEvalContext(ctx, NewEvalContext(p.Filename, p.Source))
	results := make([]Result, 0, len(p.Forms))
	for _, form := range p.Forms {
		res, err := c.Eval(ctx, form)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// NewEvalContext creates a new evaluation context
func NewEvalContext(filename, source string) *EvalContext {
	return &EvalContext{
		Filename: filename,
		Source:   source,
	}
}

// Close tears the context down. Further use fails with ErrContextClosed.
func (c *Context) Close() error {
	if c.closed.Load() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardown(nil)
	return nil
}

// teardown marks the context closed and releases its frames and native
// libraries. Goroutines cannot be killed, so when an evaluation is still
// running the frames are released once it notices the closed flag and
// returns.
func (c *Context) teardown(running <-chan evalOutcome) {
	if c.closed.Swap(true) {
		return
	}
	c.natives.Purge()
	release := func() {
		c.Global.destroy()
		c.Base.destroy()
		if err := c.natives.Close(); err != nil {
			slog.Warn("closing native libraries", "id", c.ID, "error", err)
		}
		slog.Debug("context closed", "id", c.ID)
	}
	if running == nil {
		release()
		return
	}
	go func() {
		<-running
		release()
	}()
}

// Closed reports whether the context has been torn down.
func (c *Context) Closed() bool { return c.closed.Load() }

// Export returns a deep copy of a global variable, suitable for importing
// into another context.
func (c *Context) Export(ctx context.Context, name string) (Value, error) {
	if c.closed.Load() {
		return nil, ErrContextClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.Global.GetLocal(name)
	if !ok {
		return nil, &UnboundVariableError{Name: name}
	}
	ctx = context.WithValue(ctx, stateKey{}, &evalState{visible: true, owner: c})
	val, err := forceBinding(WithConfig(ctx, c.config), name, raw)
	if err != nil {
		return nil, err
	}
	return DeepCopy(val)
}

// Import binds a deep copy of val in the global frame.
func (c *Context) Import(name string, val Value) error {
	if c.closed.Load() {
		return ErrContextClosed
	}
	cp, err := DeepCopy(val)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Global.Bind(name, cp)
	return nil
}

// DeepCopy copies a value so that it shares no storage with the original.
// Functions, environments and unevaluated code are bound to the context
// that created them and cannot be copied.
func DeepCopy(v Value) (Value, error) {
	switch x := v.(type) {
	case NullValue, Symbol:
		return x, nil
	case *ListVector:
		data := make([]Value, x.Len())
		for i := range data {
			el, err := DeepCopy(x.At(i))
			if err != nil {
				return nil, err
			}
			data[i] = el
		}
		out := newVec(ListType, data)
		if err := deepCopyAttrs(x, out); err != nil {
			return nil, err
		}
		return out, nil
	case Vector:
		out := Copy(Materialize(x)).(Vector)
		if err := deepCopyAttrs(x, out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("cannot transfer a value of type '%s' between contexts", v.Type())
	}
}

func deepCopyAttrs(from, to Vector) error {
	attrs := from.Attributes()
	for _, name := range attrs.Names() {
		val, _ := attrs.Get(name)
		cp, err := DeepCopy(val)
		if err != nil {
			return err
		}
		if err := setAttr(to, name, cp); err != nil {
			return err
		}
	}
	return nil
}

// EvalConcurrently runs each program in a fresh context of its own, in
// parallel. Results are indexed like programs.
func EvalConcurrently(ctx context.Context, config Config, programs []*Program, opts ...ContextOption) ([][]Result, error) {
	results := make([][]Result, len(programs))
	eg, gctx := errgroup.WithContext(ctx)
	for i, p := range programs {
		eg.Go(func() error {
			c := NewContext(config, opts...)
			defer c.Close()
			res, err := c.EvalProgram(gctx, p)
			results[i] = res
			if err != nil {
				return fmt.Errorf("%s: %w", p.Filename, err)
			}
			return nil
		})
	}
	return results, eg.Wait()
}
