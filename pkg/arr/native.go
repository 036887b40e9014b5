package arr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/vito/arr/pkg/arr")

// NativeFunc is a routine callable through .Call and .C.
type NativeFunc func(ctx context.Context, args []Value) (Value, error)

// NativeLibrary is a named set of native routines.
type NativeLibrary interface {
	Name() string
	Lookup(symbol string) (NativeFunc, bool)
	Close() error
}

// NativeSymbol is a handle to a routine. It is resolved against the loaded
// libraries at its first invocation, not when it is created.
type NativeSymbol struct {
	Name string
	// Library restricts resolution to one library; empty searches all.
	Library string
}

func (s NativeSymbol) key() string { return s.Library + "::" + s.Name }

func (s NativeSymbol) String() string {
	if s.Library == "" {
		return s.Name
	}
	return s.Library + "::" + s.Name
}

// NativeInvoker calls native routines by symbol.
type NativeInvoker interface {
	// Invoke calls a routine and returns its result.
	Invoke(ctx context.Context, sym NativeSymbol, args []Value) (Value, error)
	// InvokeVoid calls a routine for its side effects.
	InvokeVoid(ctx context.Context, sym NativeSymbol, args []Value) error
}

// GoLibrary is a NativeLibrary of Go functions.
type GoLibrary struct {
	name     string
	mu       sync.RWMutex
	routines map[string]NativeFunc
	closed   bool
}

var _ NativeLibrary = (*GoLibrary)(nil)

func NewGoLibrary(name string) *GoLibrary {
	return &GoLibrary{name: name, routines: map[string]NativeFunc{}}
}

// Export registers fn under the snake_case form of goName, so that
// "RollMean" is called as .Call("roll_mean", ...).
func (l *GoLibrary) Export(goName string, fn NativeFunc) *GoLibrary {
	return l.Define(strcase.ToSnake(goName), fn)
}

// Define registers fn under exactly symbol.
func (l *GoLibrary) Define(symbol string, fn NativeFunc) *GoLibrary {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routines[symbol] = fn
	return l
}

func (l *GoLibrary) Name() string { return l.name }

func (l *GoLibrary) Lookup(symbol string) (NativeFunc, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, false
	}
	fn, ok := l.routines[symbol]
	return fn, ok
}

func (l *GoLibrary) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// NativeRegistry resolves symbols against loaded libraries and caches the
// results.
type NativeRegistry struct {
	mu    sync.RWMutex
	libs  []NativeLibrary
	cache *lru.Cache[string, NativeFunc]
}

var _ NativeInvoker = (*NativeRegistry)(nil)

func NewNativeRegistry(cacheSize int) *NativeRegistry {
	if cacheSize <= 0 {
		cacheSize = DefaultConfig().NativeCacheSize
	}
	cache, err := lru.New[string, NativeFunc](cacheSize)
	if err != nil {
		// only possible for a non-positive size
		panic(err)
	}
	return &NativeRegistry{cache: cache}
}

// Load makes lib available. Libraries loaded later take precedence.
func (r *NativeRegistry) Load(lib NativeLibrary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.libs = append(r.libs, lib)
	r.cache.Purge()
}

// Libraries lists the loaded library names in load order.
func (r *NativeRegistry) Libraries() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.libs))
	for i, lib := range r.libs {
		names[i] = lib.Name()
	}
	return names
}

func (r *NativeRegistry) resolve(sym NativeSymbol) (NativeFunc, error) {
	if fn, ok := r.cache.Get(sym.key()); ok {
		return fn, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.libs) - 1; i >= 0; i-- {
		lib := r.libs[i]
		if sym.Library != "" && lib.Name() != sym.Library {
			continue
		}
		if fn, ok := lib.Lookup(sym.Name); ok {
			r.cache.Add(sym.key(), fn)
			slog.Debug("resolved native symbol", "symbol", sym.Name, "library", lib.Name())
			return fn, nil
		}
	}
	return nil, errors.New("symbol not found")
}

func (r *NativeRegistry) Invoke(ctx context.Context, sym NativeSymbol, args []Value) (val Value, err error) {
	ctx, span := tracer.Start(ctx, "native "+sym.Name)
	span.SetAttributes(
		attribute.String("arr.native.symbol", sym.Name),
		attribute.String("arr.native.library", sym.Library),
		attribute.Int("arr.native.args", len(args)),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	fn, err := r.resolve(sym)
	if err != nil {
		return nil, &NativeInvocationError{Symbol: sym.String(), Err: err}
	}
	val, err = callNative(ctx, fn, args)
	if err != nil {
		return nil, &NativeInvocationError{Symbol: sym.String(), Err: err}
	}
	if val == nil {
		val = NullValue{}
	}
	return val, nil
}

func (r *NativeRegistry) InvokeVoid(ctx context.Context, sym NativeSymbol, args []Value) error {
	_, err := r.Invoke(ctx, sym, args)
	return err
}

func callNative(ctx context.Context, fn NativeFunc, args []Value) (val Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.WithStack(fmt.Errorf("routine panicked: %v", r))
		}
	}()
	val, err = fn(ctx, args)
	if err != nil {
		return nil, errors.Wrap(err, "routine failed")
	}
	return val, nil
}

// Purge drops every cached resolution.
func (r *NativeRegistry) Purge() {
	r.cache.Purge()
}

// Close releases every loaded library.
func (r *NativeRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, lib := range r.libs {
		if err := lib.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "closing %s", lib.Name()))
		}
	}
	r.libs = nil
	r.cache.Purge()
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func nativesFrom(ctx context.Context) (*NativeRegistry, error) {
	st := stateFrom(ctx)
	if st == nil || st.owner == nil {
		return nil, &InternalError{Message: "native call outside of a context"}
	}
	return st.owner.natives, nil
}

// Resolves reports whether sym names a routine in a loaded library.
func (r *NativeRegistry) Resolves(sym NativeSymbol) bool {
	_, err := r.resolve(sym)
	return err == nil
}

func nativeSymbolArg(args Args) (NativeSymbol, error) {
	name, ok := args.GetString(".NAME")
	if !ok || name == "" || name == NAString {
		return NativeSymbol{}, args.Errorf("'.NAME' must be a non-empty string")
	}
	sym := NativeSymbol{Name: name}
	if pkg, ok := args.GetString("PACKAGE"); ok {
		sym.Library = pkg
	}
	return sym, nil
}

// registerNativeBuiltins registers the entry points of the native bridge.
func registerNativeBuiltins() {
	// .Call(.NAME, ..., PACKAGE)
	Builtin(".Call").
		Doc("Calls a native routine and returns its result.").
		Params(".NAME", "...", "PACKAGE").
		Impl(func(ctx context.Context, args Args) (Value, error) {
			sym, err := nativeSymbolArg(args)
			if err != nil {
				return nil, err
			}
			natives, err := nativesFrom(ctx)
			if err != nil {
				return nil, err
			}
			return natives.Invoke(ctx, sym, args.Dots)
		})

	// .C(.NAME, ..., PACKAGE): routines write into copies of their
	// arguments, which are returned as a list
	Builtin(".C").
		Doc("Calls a native routine for its effect on copies of the arguments.").
		Params(".NAME", "...", "PACKAGE").
		Impl(func(ctx context.Context, args Args) (Value, error) {
			sym, err := nativeSymbolArg(args)
			if err != nil {
				return nil, err
			}
			natives, err := nativesFrom(ctx)
			if err != nil {
				return nil, err
			}
			copies := make([]Value, len(args.Dots))
			for i, v := range args.Dots {
				copies[i] = Copy(v)
			}
			if err := natives.InvokeVoid(ctx, sym, copies); err != nil {
				return nil, err
			}
			out := NewList(copies...)
			if hasNames(args.DotNames) {
				if err := out.SetAttr("names", NewString(args.DotNames...)); err != nil {
					return nil, err
				}
			}
			return out, nil
		})

	// is.loaded(symbol, PACKAGE)
	Builtin("is.loaded").
		Doc("Whether a native routine can be resolved.").
		Params("symbol", "PACKAGE").
		Behavior(ReadsState).
		Impl(func(ctx context.Context, args Args) (Value, error) {
			name, ok := args.GetString("symbol")
			if !ok {
				return nil, args.Errorf("invalid 'symbol' argument")
			}
			sym := NativeSymbol{Name: name}
			if pkg, ok := args.GetString("PACKAGE"); ok {
				sym.Library = pkg
			}
			natives, err := nativesFrom(ctx)
			if err != nil {
				return nil, err
			}
			return NewLogical(LogicalOf(natives.Resolves(sym))), nil
		})
}
