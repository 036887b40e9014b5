package arr

import (
	"context"
	"sort"
)

// Frame is a lexical environment: a mapping from names to values with a
// parent link.
type Frame struct {
	name   string
	vars   map[string]Value
	parent *Frame

	// versions counts writes per name, so that values captured ahead of
	// time can tell whether their binding has changed since.
	versions map[string]uint64
	locked   bool
}

var _ Value = (*Frame)(nil)

func NewFrame(parent *Frame) *Frame {
	return &Frame{vars: map[string]Value{}, versions: map[string]uint64{}, parent: parent}
}

// NewNamedFrame is NewFrame with a printable name, used for the global and
// base frames.
func NewNamedFrame(name string, parent *Frame) *Frame {
	f := NewFrame(parent)
	f.name = name
	return f
}

func (f *Frame) Type() Type { return EnvironmentType }

func (f *Frame) String() string {
	if f.name != "" {
		return "<environment: " + f.name + ">"
	}
	return "<environment>"
}

func (f *Frame) Parent() *Frame { return f.parent }

// Bind sets name in this frame. Binding a vector that is already bound
// elsewhere marks it shared; rebinding the same value to the same name is a
// no-op.
func (f *Frame) Bind(name string, v Value) {
	if old, ok := f.vars[name]; ok && sameValue(old, v) {
		return
	}
	if s, ok := v.(Shareable); ok {
		s.markBound()
	}
	f.vars[name] = v
	f.versions[name]++
}

// Version is the number of times name has been bound or removed in this
// frame.
func (f *Frame) Version(name string) uint64 { return f.versions[name] }

// Lock makes every later Assign, SuperAssign or rm targeting this frame
// fail. Bind is unaffected, so the owner can still populate it.
func (f *Frame) Lock() { f.locked = true }

func (f *Frame) Locked() bool { return f.locked }

// Assign is Bind for writes made by user code: it fails on a locked frame.
func (f *Frame) Assign(name string, v Value) error {
	if f.locked {
		_, exists := f.vars[name]
		return &LockedBindingError{Name: name, Add: !exists}
	}
	f.Bind(name, v)
	return nil
}

func sameValue(a, b Value) bool {
	_, aok := a.(Shareable)
	_, bok := b.(Shareable)
	return aok && bok && a == b
}

// Remove unbinds name from this frame only.
func (f *Frame) Remove(name string) bool {
	_, ok := f.vars[name]
	if ok {
		delete(f.vars, name)
		f.versions[name]++
	}
	return ok
}

// GetLocal returns the raw binding in this frame, which may be a promise.
func (f *Frame) GetLocal(name string) (Value, bool) {
	v, ok := f.vars[name]
	return v, ok
}

// Get searches this frame and its ancestors for the raw binding.
func (f *Frame) Get(name string) (Value, *Frame, bool) {
	for cur := f; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, cur, true
		}
	}
	return nil, nil, false
}

// Lookup resolves name and forces it if it is bound to a promise.
func (f *Frame) Lookup(ctx context.Context, name string) (Value, error) {
	v, _, ok := f.Get(name)
	if !ok {
		return nil, &UnboundVariableError{Name: name}
	}
	return forceBinding(ctx, name, v)
}

// LookupFunction resolves name to a function, skipping bindings of other
// types.
func (f *Frame) LookupFunction(ctx context.Context, name string) (Value, error) {
	for cur := f; cur != nil; cur = cur.parent {
		raw, ok := cur.vars[name]
		if !ok {
			continue
		}
		v, err := forceBinding(ctx, name, raw)
		if err != nil {
			return nil, err
		}
		if v.Type() == FunctionType {
			return v, nil
		}
	}
	return nil, &UnboundVariableError{Name: name, Function: true}
}

func forceBinding(ctx context.Context, name string, v Value) (Value, error) {
	if p, ok := v.(*Promise); ok {
		forced, err := p.Force(ctx)
		if err != nil {
			return nil, err
		}
		v = forced
	}
	if _, missing := v.(MissingValue); missing {
		return nil, &MissingArgumentError{Name: name}
	}
	return v, nil
}

// SuperAssign writes name into the nearest enclosing frame that binds it,
// falling back to global.
func (f *Frame) SuperAssign(name string, v Value, global *Frame) error {
	for cur := f.parent; cur != nil; cur = cur.parent {
		if _, ok := cur.vars[name]; ok {
			return cur.Assign(name, v)
		}
	}
	return global.Assign(name, v)
}

// Names lists the bindings of this frame, sorted.
func (f *Frame) Names() []string {
	names := make([]string, 0, len(f.vars))
	for k := range f.vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// destroy drops every binding; used when a Context is torn down.
func (f *Frame) destroy() {
	f.vars = map[string]Value{}
	f.versions = map[string]uint64{}
	f.parent = nil
}
