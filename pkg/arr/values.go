package arr

import (
	"math"
)

// Type is the runtime type tag of a Value.
type Type int

const (
	NullType Type = iota
	LogicalType
	IntegerType
	DoubleType
	ComplexType
	StringType
	ListType
	FunctionType
	SymbolType
	LanguageType
	MissingType
	EnvironmentType
	PromiseType
	DotsType
)

var typeNames = map[Type]string{
	NullType:        "NULL",
	LogicalType:     "logical",
	IntegerType:     "integer",
	DoubleType:      "double",
	ComplexType:     "complex",
	StringType:      "character",
	ListType:        "list",
	FunctionType:    "closure",
	SymbolType:      "symbol",
	LanguageType:    "language",
	MissingType:     "missing",
	EnvironmentType: "environment",
	PromiseType:     "promise",
	DotsType:        "...",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsAtomic reports whether t is one of the atomic vector types.
func (t Type) IsAtomic() bool {
	return t >= LogicalType && t <= StringType
}

// IsVector reports whether values of type t implement Vector.
func (t Type) IsVector() bool {
	return t >= LogicalType && t <= ListType
}

// CommonType returns the type both operands are implicitly promoted to,
// following logical < integer < double < complex < character < list.
func CommonType(a, b Type) Type {
	if a == NullType {
		return b
	}
	if b == NullType {
		return a
	}
	if a > b {
		return a
	}
	return b
}

// Value represents a runtime value.
type Value interface {
	Type() Type
	String() string
}

// NullValue is R's NULL.
type NullValue struct{}

func (NullValue) Type() Type     { return NullType }
func (NullValue) String() string { return "NULL" }

// MissingValue marks an argument that was not supplied and has no default.
type MissingValue struct{}

func (MissingValue) Type() Type     { return MissingType }
func (MissingValue) String() string { return "" }

// Symbol is a quoted name.
type Symbol struct {
	Name string
}

func (s Symbol) Type() Type     { return SymbolType }
func (s Symbol) String() string { return s.Name }

// Language is a quoted, unevaluated expression.
type Language struct {
	Node Node
}

func (l Language) Type() Type     { return LanguageType }
func (l Language) String() string { return Deparse(l.Node) }

// Logical is a three-valued boolean element.
type Logical int8

const (
	False     Logical = 0
	True      Logical = 1
	NALogical Logical = -1
)

// LogicalOf converts a Go bool.
func LogicalOf(b bool) Logical {
	if b {
		return True
	}
	return False
}

func (l Logical) String() string {
	switch l {
	case True:
		return "TRUE"
	case False:
		return "FALSE"
	default:
		return "NA"
	}
}

// NAInteger is the integer NA, which is also the reason integers are
// restricted to the 32-bit range.
const NAInteger = math.MinInt32

const naDoublePayload = 1954

// NADouble is a NaN carrying R's NA payload; it is distinct from NaN.
var NADouble = math.Float64frombits(0x7FF0000000000000 | naDoublePayload)

// NAComplex has NA in both parts.
var NAComplex = complex(NADouble, NADouble)

// NAString is the reserved sentinel for a missing string.
const NAString = "\x00NA\x00"

// IsNADouble reports whether f is NA (and not merely NaN).
func IsNADouble(f float64) bool {
	return math.IsNaN(f) && uint32(math.Float64bits(f)) == naDoublePayload
}

// IsNAComplex reports whether either part of c is NA.
func IsNAComplex(c complex128) bool {
	return IsNADouble(real(c)) || IsNADouble(imag(c))
}

// isNAElem reports whether an element of any vector type is NA. NaN counts
// as NA here, matching is.na().
func isNAElem[T any](x T) bool {
	switch v := any(x).(type) {
	case Logical:
		return v == NALogical
	case int:
		return v == NAInteger
	case float64:
		return math.IsNaN(v)
	case complex128:
		return math.IsNaN(real(v)) || math.IsNaN(imag(v))
	case string:
		return v == NAString
	default:
		return false
	}
}

// naElem returns the NA element for the Go element type T.
func naElem[T any]() T {
	var out T
	switch p := any(&out).(type) {
	case *Logical:
		*p = NALogical
	case *int:
		*p = NAInteger
	case *float64:
		*p = NADouble
	case *complex128:
		*p = NAComplex
	case *string:
		*p = NAString
	case *Value:
		*p = NullValue{}
	}
	return out
}

// inIntRange reports whether v can be stored as a non-NA integer element.
func inIntRange(v int) bool {
	return v > math.MinInt32 && v <= math.MaxInt32
}
