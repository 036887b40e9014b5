package arr

import (
	"errors"
	"strings"
)

// Vector is any value with elements and optional attributes.
type Vector interface {
	Value
	Len() int
	// IsComplete reports that the vector is known to contain no NA. A false
	// result means "unknown", not "has NA".
	IsComplete() bool
	// Attributes returns nil when the vector has none.
	Attributes() *Attributes
}

// Typed is read access to the elements of a vector, whatever its
// representation.
type Typed[T any] interface {
	Vector
	At(i int) T
}

// Shareability tracks whether a value may be mutated in place.
type Shareability int

const (
	// Temporary values are referenced from at most one place.
	Temporary Shareability = iota
	// Shared values are referenced from several places and are copied on
	// write.
	Shared
	// SharedPermanent values are never mutated, e.g. AST constants.
	SharedPermanent
)

func (s Shareability) String() string {
	switch s {
	case Temporary:
		return "temporary"
	case Shared:
		return "shared"
	default:
		return "shared-permanent"
	}
}

// ErrSharedMutation is returned when mutating a vector that is shared.
var ErrSharedMutation = errors.New("in-place modification of a shared vector")

// Vec is the concrete, materialized vector representation.
type Vec[T any] struct {
	kind     Type
	data     []T
	complete bool
	attrs    *Attributes
	share    Shareability
	// bound is set once the vector has been stored in a frame slot; a second
	// binding makes it Shared.
	bound bool
}

type (
	LogicalVector = Vec[Logical]
	IntVector     = Vec[int]
	DoubleVector  = Vec[float64]
	ComplexVector = Vec[complex128]
	StringVector  = Vec[string]
	ListVector    = Vec[Value]
)

var _ Typed[int] = (*IntVector)(nil)
var _ Typed[Value] = (*ListVector)(nil)

func newVec[T any](kind Type, data []T) *Vec[T] {
	v := &Vec[T]{kind: kind, data: data, complete: true}
	if kind != ListType {
		for _, x := range data {
			if isNAElem(x) {
				v.complete = false
				break
			}
		}
	}
	return v
}

func NewLogical(data ...Logical) *LogicalVector { return newVec(LogicalType, data) }

func NewInt(data ...int) *IntVector { return newVec(IntegerType, data) }

func NewDouble(data ...float64) *DoubleVector { return newVec(DoubleType, data) }

func NewComplex(data ...complex128) *ComplexVector { return newVec(ComplexType, data) }

func NewString(data ...string) *StringVector { return newVec(StringType, data) }

// NewList builds a generic vector. Elements are marked shared since the list
// now holds a second reference to them.
func NewList(data ...Value) *ListVector {
	for _, v := range data {
		MarkShared(v)
	}
	return newVec(ListType, data)
}

// NewVector allocates an NA-filled (or NULL-filled, for lists) vector of the
// given type and length.
func NewVector(kind Type, n int) Vector {
	switch kind {
	case LogicalType:
		return filled[Logical](kind, n)
	case IntegerType:
		return filled[int](kind, n)
	case DoubleType:
		return filled[float64](kind, n)
	case ComplexType:
		return filled[complex128](kind, n)
	case StringType:
		return filled[string](kind, n)
	case ListType:
		return filled[Value](kind, n)
	default:
		return NewLogical()
	}
}

func filled[T any](kind Type, n int) *Vec[T] {
	data := make([]T, n)
	na := naElem[T]()
	for i := range data {
		data[i] = na
	}
	return &Vec[T]{kind: kind, data: data, complete: n == 0 || kind == ListType}
}

func (v *Vec[T]) Type() Type { return v.kind }

func (v *Vec[T]) String() string {
	parts := make([]string, len(v.data))
	for i, x := range v.data {
		parts[i] = formatElem(any(x), false)
	}
	return strings.Join(parts, " ")
}

func (v *Vec[T]) Len() int { return len(v.data) }

func (v *Vec[T]) At(i int) T { return v.data[i] }

// Data exposes the backing slice. Callers must not write to it.
func (v *Vec[T]) Data() []T { return v.data }

func (v *Vec[T]) IsComplete() bool { return v.complete }

func (v *Vec[T]) Attributes() *Attributes { return v.attrs }

// Attr returns the named attribute, or nil.
func (v *Vec[T]) Attr(name string) Value {
	val, _ := v.attrs.Get(name)
	return val
}

// SetAttr sets an attribute; NULL removes it.
func (v *Vec[T]) SetAttr(name string, val Value) error {
	if v.share != Temporary {
		return ErrSharedMutation
	}
	if _, isNull := val.(NullValue); isNull {
		v.attrs.remove(name)
		if v.attrs.Len() == 0 {
			v.attrs = nil
		}
		return nil
	}
	if v.attrs == nil {
		v.attrs = &Attributes{}
	}
	MarkShared(val)
	v.attrs.set(name, val)
	return nil
}

// Set writes element i in place.
func (v *Vec[T]) Set(i int, x T) error {
	if v.share != Temporary {
		return ErrSharedMutation
	}
	if v.kind == ListType {
		MarkShared(any(x).(Value))
	} else if isNAElem(x) {
		v.complete = false
	}
	v.data[i] = x
	return nil
}

// Resize grows or truncates the vector in place, padding with NA.
func (v *Vec[T]) Resize(n int) error {
	if v.share != Temporary {
		return ErrSharedMutation
	}
	if n <= len(v.data) {
		v.data = v.data[:n]
		return nil
	}
	na := naElem[T]()
	for len(v.data) < n {
		v.data = append(v.data, na)
	}
	if v.kind != ListType {
		v.complete = false
	}
	return nil
}

func (v *Vec[T]) Shareability() Shareability { return v.share }

func (v *Vec[T]) escalate(s Shareability) {
	if s > v.share {
		v.share = s
	}
}

func (v *Vec[T]) markBound() {
	if v.bound {
		v.escalate(Shared)
	}
	v.bound = true
}

// Copy clones the storage and attributes into a fresh Temporary vector.
func (v *Vec[T]) Copy() *Vec[T] {
	data := make([]T, len(v.data))
	copy(data, v.data)
	if v.kind == ListType {
		for _, x := range data {
			MarkShared(any(x).(Value))
		}
	}
	return &Vec[T]{
		kind:     v.kind,
		data:     data,
		complete: v.complete,
		attrs:    v.attrs.Copy(),
	}
}

func (v *Vec[T]) Materialize() Vector { return v }

// Shareable is implemented by values that carry a sharing state.
type Shareable interface {
	Value
	Shareability() Shareability
	escalate(Shareability)
	markBound()
}

// IsShared reports whether v must be copied before it is modified. Values
// without sharing state are treated as shared.
func IsShared(v Value) bool {
	if s, ok := v.(Shareable); ok {
		return s.Shareability() != Temporary
	}
	return true
}

// MarkShared records that v is referenced from more than one place. It
// never lowers the state.
func MarkShared(v Value) {
	if s, ok := v.(Shareable); ok {
		s.escalate(Shared)
	}
}

// MarkSharedPermanent freezes v for good.
func MarkSharedPermanent(v Value) {
	if s, ok := v.(Shareable); ok {
		s.escalate(SharedPermanent)
	}
}

// Writable returns v itself when it may be modified in place, or a fresh
// copy otherwise.
func Writable[T any](v *Vec[T]) *Vec[T] {
	if v.share != Temporary {
		return v.Copy()
	}
	return v
}

// Copy returns a Temporary copy of a vector, materializing views.
func Copy(v Value) Value {
	switch x := v.(type) {
	case *LogicalVector:
		return x.Copy()
	case *IntVector:
		return x.Copy()
	case *DoubleVector:
		return x.Copy()
	case *ComplexVector:
		return x.Copy()
	case *StringVector:
		return x.Copy()
	case *ListVector:
		return x.Copy()
	case Vector:
		return Materialize(x)
	default:
		return v
	}
}

type materializer interface {
	Materialize() Vector
}

// Materialize converts any vector representation into a concrete Vec. Views
// produce a new Temporary vector; a Vec is returned as is.
func Materialize(v Vector) Vector {
	if m, ok := v.(materializer); ok {
		return m.Materialize()
	}
	return v
}

// IntSeq is the compact representation of an arithmetic integer sequence,
// produced by `:` and seq_len.
type IntSeq struct {
	start, stride, n int
}

var _ Typed[int] = (*IntSeq)(nil)

// NewIntSeq returns start, start+stride, ... with n elements.
func NewIntSeq(start, stride, n int) *IntSeq {
	return &IntSeq{start: start, stride: stride, n: n}
}

func (s *IntSeq) Type() Type              { return IntegerType }
func (s *IntSeq) Len() int                { return s.n }
func (s *IntSeq) At(i int) int            { return s.start + i*s.stride }
func (s *IntSeq) IsComplete() bool        { return true }
func (s *IntSeq) Attributes() *Attributes { return nil }
func (s *IntSeq) Start() int              { return s.start }
func (s *IntSeq) Stride() int             { return s.stride }

func (s *IntSeq) String() string {
	if s.n == 0 {
		return "integer(0)"
	}
	return s.Materialize().String()
}

func (s *IntSeq) Materialize() Vector {
	data := make([]int, s.n)
	for i := range data {
		data[i] = s.At(i)
	}
	return NewInt(data...)
}

// elems copies the elements of any Typed vector into a slice.
func elems[T any](v Typed[T]) []T {
	if vec, ok := v.(*Vec[T]); ok {
		return vec.data
	}
	out := make([]T, v.Len())
	for i := range out {
		out[i] = v.At(i)
	}
	return out
}

// AsVector converts NULL to an empty logical vector and reports whether v is
// a vector at all.
func AsVector(v Value) (Vector, bool) {
	switch x := v.(type) {
	case Vector:
		return x, true
	case NullValue:
		return NewLogical(), true
	default:
		return nil, false
	}
}

// Names returns the names attribute, if any.
func Names(v Vector) (Typed[string], bool) {
	val, ok := v.Attributes().Get("names")
	if !ok {
		return nil, false
	}
	names, ok := val.(Typed[string])
	return names, ok
}

// IsFactor reports whether v carries the factor class.
func IsFactor(v Value) bool {
	vec, ok := v.(Vector)
	if !ok || vec.Type() != IntegerType {
		return false
	}
	return inherits(vec, "factor")
}

func inherits(v Vector, class string) bool {
	val, ok := v.Attributes().Get("class")
	if !ok {
		return false
	}
	classes, ok := val.(Typed[string])
	if !ok {
		return false
	}
	for i := 0; i < classes.Len(); i++ {
		if classes.At(i) == class {
			return true
		}
	}
	return false
}

// Levels returns the label table of a factor.
func Levels(v Vector) (Typed[string], bool) {
	val, ok := v.Attributes().Get("levels")
	if !ok {
		return nil, false
	}
	levels, ok := val.(Typed[string])
	return levels, ok
}

// scalar helpers used by builtins and the fast paths.

func isPlain(v Vector) bool { return v.Attributes().Len() == 0 }

func asIntScalar(v Value) (int, bool) {
	if t, ok := v.(Typed[int]); ok && t.Len() == 1 {
		return t.At(0), true
	}
	return 0, false
}

func asStringScalar(v Value) (string, bool) {
	if t, ok := v.(Typed[string]); ok && t.Len() == 1 {
		return t.At(0), true
	}
	return "", false
}
