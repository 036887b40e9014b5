package arr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// printWidth is the line width vectors are wrapped at.
const printWidth = 80

// printDigits is the number of significant digits shown for doubles.
const printDigits = 7

// FormatValue renders v the way print() shows it, without a trailing
// newline.
func FormatValue(v Value) string {
	var b strings.Builder
	formatValue(&b, v, "")
	return strings.TrimSuffix(b.String(), "\n")
}

func formatValue(b *strings.Builder, v Value, prefix string) {
	switch x := v.(type) {
	case NullValue:
		b.WriteString("NULL\n")
	case *ListVector:
		formatList(b, x, prefix)
	case Vector:
		if IsFactor(x) {
			formatFactor(b, x)
		} else {
			formatAtomic(b, x)
		}
		formatAttrs(b, x, prefix)
	case *Promise:
		if x.IsForced() {
			formatValue(b, x.value, prefix)
			return
		}
		b.WriteString("<promise>\n")
	default:
		b.WriteString(v.String())
		b.WriteString("\n")
	}
}

func formatList(b *strings.Builder, l *ListVector, prefix string) {
	if l.Len() == 0 {
		if _, ok := Names(l); ok {
			b.WriteString("named list()\n")
		} else {
			b.WriteString("list()\n")
		}
		formatAttrs(b, l, prefix)
		return
	}
	names, hasNames := Names(l)
	for i := 0; i < l.Len(); i++ {
		tag := fmt.Sprintf("%s[[%d]]", prefix, i+1)
		if hasNames && names.At(i) != "" && names.At(i) != NAString {
			tag = prefix + "$" + deparseName(names.At(i))
		}
		b.WriteString(tag)
		b.WriteString("\n")
		formatValue(b, l.At(i), tag)
		b.WriteString("\n")
	}
	formatAttrs(b, l, prefix)
}

// formatAttrs prints the attributes that are not shown as part of the
// vector itself.
func formatAttrs(b *strings.Builder, v Vector, prefix string) {
	for _, name := range v.Attributes().Names() {
		switch name {
		case "names":
			continue
		case "levels", "class":
			if IsFactor(v) {
				continue
			}
		}
		val, _ := v.Attributes().Get(name)
		tag := fmt.Sprintf("attr(,%q)", name)
		b.WriteString(tag)
		b.WriteString("\n")
		formatValue(b, val, prefix+tag)
	}
}

func emptyVector(t Type) string {
	switch t {
	case DoubleType:
		return "numeric(0)"
	case StringType:
		return "character(0)"
	default:
		return t.String() + "(0)"
	}
}

func formatAtomic(b *strings.Builder, v Vector) {
	if v.Len() == 0 {
		if _, ok := Names(v); ok {
			b.WriteString("named " + emptyVector(v.Type()) + "\n")
		} else {
			b.WriteString(emptyVector(v.Type()) + "\n")
		}
		return
	}
	cells := formatCells(v, true)
	if names, ok := Names(v); ok {
		labels := make([]string, names.Len())
		for i := range labels {
			labels[i] = names.At(i)
			if labels[i] == NAString {
				labels[i] = "<NA>"
			}
		}
		writeNamedColumns(b, labels, cells)
		return
	}
	writeIndexedRows(b, cells, v.Type() == StringType)
}

func formatFactor(b *strings.Builder, v Vector) {
	levels, _ := Levels(v)
	if v.Len() == 0 {
		b.WriteString("factor(0)\n")
	} else {
		labels, err := MakeClosure(v, StringType, false)
		if err != nil {
			b.WriteString(v.String() + "\n")
			return
		}
		strs := labels.(Typed[string])
		cells := make([]string, strs.Len())
		for i := range cells {
			cells[i] = strs.At(i)
			if cells[i] == NAString {
				cells[i] = "<NA>"
			}
		}
		if names, ok := Names(v); ok {
			writeNamedColumns(b, elems(names), cells)
		} else {
			writeIndexedRows(b, cells, true)
		}
	}
	var lv []string
	if levels != nil {
		lv = elems(levels)
	}
	b.WriteString("Levels: " + strings.Join(lv, " ") + "\n")
}

// writeIndexedRows lays cells out in rows prefixed by the index of their
// first element. Left-aligned cells are padded on the right.
func writeIndexedRows(b *strings.Builder, cells []string, left bool) {
	w := 0
	for _, c := range cells {
		w = max(w, displayWidth(c))
	}
	// the label column is as wide as the label of the last row
	labelWidth, perLine := len("[1]"), 1
	for {
		perLine = max(1, (printWidth-labelWidth)/(w+1))
		last := len(fmt.Sprintf("[%d]", (len(cells)-1)/perLine*perLine+1))
		if last <= labelWidth {
			break
		}
		labelWidth = last
	}
	for start := 0; start < len(cells); start += perLine {
		label := fmt.Sprintf("[%d]", start+1)
		b.WriteString(strings.Repeat(" ", labelWidth-len(label)))
		b.WriteString(label)
		end := min(len(cells), start+perLine)
		for i, c := range cells[start:end] {
			b.WriteString(" ")
			pad := strings.Repeat(" ", w-displayWidth(c))
			if left {
				if start+i == end-1 {
					pad = ""
				}
				b.WriteString(c + pad)
			} else {
				b.WriteString(pad + c)
			}
		}
		b.WriteString("\n")
	}
}

// writeNamedColumns lays out a names row above a values row, right-aligned
// in columns of a common width.
func writeNamedColumns(b *strings.Builder, names, cells []string) {
	w := 0
	for i, c := range cells {
		w = max(w, displayWidth(c), displayWidth(names[i]))
	}
	perLine := max(1, printWidth/(w+1))
	for start := 0; start < len(cells); start += perLine {
		end := min(len(cells), start+perLine)
		var top, bottom []string
		for i := start; i < end; i++ {
			top = append(top, padLeft(names[i], w))
			bottom = append(bottom, padLeft(cells[i], w))
		}
		b.WriteString(strings.Join(top, " ") + "\n")
		b.WriteString(strings.Join(bottom, " ") + "\n")
	}
}

func displayWidth(s string) int {
	return utf8.RuneCountInString(s)
}

// formatCells formats every element of an atomic vector with a common
// layout: doubles share their number of decimals or use scientific
// notation together.
func formatCells(v Vector, quote bool) []string {
	switch t := v.(type) {
	case Typed[float64]:
		return formatDoubles(elems(t))
	case Typed[complex128]:
		cs := elems(t)
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = formatComplex(c)
		}
		return out
	}
	out := make([]string, v.Len())
	for i := range out {
		out[i] = formatElemAt(v, i, quote)
	}
	return out
}

// formatElemAt formats element i of v on its own.
func formatElemAt(v Vector, i int, quote bool) string {
	switch t := v.(type) {
	case Typed[Logical]:
		return t.At(i).String()
	case Typed[int]:
		return formatInt(t.At(i))
	case Typed[float64]:
		return formatDoubles([]float64{t.At(i)})[0]
	case Typed[complex128]:
		return formatComplex(t.At(i))
	case Typed[string]:
		return formatString(t.At(i), quote)
	case Typed[Value]:
		return formatListElem(t.At(i))
	}
	return "?"
}

// formatElem formats a single element of any vector type.
func formatElem(x any, quote bool) string {
	switch e := x.(type) {
	case Logical:
		return e.String()
	case int:
		return formatInt(e)
	case float64:
		return formatDoubles([]float64{e})[0]
	case complex128:
		return formatComplex(e)
	case string:
		return formatString(e, quote)
	case Value:
		return formatListElem(e)
	}
	return fmt.Sprint(x)
}

func formatInt(i int) string {
	if i == NAInteger {
		return "NA"
	}
	return strconv.Itoa(i)
}

func formatString(s string, quote bool) string {
	if s == NAString {
		return "NA"
	}
	if !quote {
		return s
	}
	return quoteString(s)
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func formatListElem(v Value) string {
	vec, ok := v.(Vector)
	if !ok {
		if _, isNull := v.(NullValue); isNull {
			return "NULL"
		}
		return v.Type().String()
	}
	if vec.Len() == 1 && vec.Type().IsAtomic() {
		return formatElemAt(vec, 0, true)
	}
	return fmt.Sprintf("%s,%d", vec.Type(), vec.Len())
}

func formatComplex(c complex128) string {
	if IsNAComplex(c) {
		return "NA"
	}
	re := formatDoubles([]float64{real(c)})[0]
	im := imag(c)
	sign := "+"
	if im < 0 || (im == 0 && math.Signbit(im)) {
		sign = "-"
		im = -im
	}
	return re + sign + formatDoubles([]float64{im})[0] + "i"
}

// sigDigits returns the decimal exponent of |f| and the number of
// significant digits needed to show it to printDigits precision.
func sigDigits(f float64) (exp, nsig int) {
	if f == 0 {
		return 0, 1
	}
	s := strconv.FormatFloat(math.Abs(f), 'e', printDigits-1, 64)
	mant, e, _ := strings.Cut(s, "e")
	exp, _ = strconv.Atoi(e)
	digits := strings.TrimRight(strings.Replace(mant, ".", "", 1), "0")
	return exp, max(1, len(digits))
}

// formatDoubles chooses between fixed and scientific notation for the
// whole vector, preferring fixed unless it is wider.
func formatDoubles(xs []float64) []string {
	var (
		neg, finite    bool
		maxLeft        = 1
		maxRight       = 0
		maxSig         = 1
		minExp, maxExp = math.MaxInt, math.MinInt
	)
	for _, f := range xs {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		finite = true
		if f < 0 {
			neg = true
		}
		exp, nsig := sigDigits(f)
		maxLeft = max(maxLeft, exp+1)
		maxRight = max(maxRight, nsig-exp-1)
		maxSig = max(maxSig, nsig)
		minExp = min(minExp, exp)
		maxExp = max(maxExp, exp)
	}

	fixed := true
	if finite {
		fixedWidth := maxLeft + maxRight
		if maxRight > 0 {
			fixedWidth++
		}
		sciWidth := maxSig + 4
		if maxSig > 1 {
			sciWidth++
		}
		if maxExp >= 100 || minExp <= -100 {
			sciWidth++
		}
		if neg {
			fixedWidth++
			sciWidth++
		}
		fixed = fixedWidth <= sciWidth
	}

	out := make([]string, len(xs))
	for i, f := range xs {
		switch {
		case IsNADouble(f):
			out[i] = "NA"
		case math.IsNaN(f):
			out[i] = "NaN"
		case math.IsInf(f, 1):
			out[i] = "Inf"
		case math.IsInf(f, -1):
			out[i] = "-Inf"
		case fixed:
			out[i] = strconv.FormatFloat(f, 'f', maxRight, 64)
		default:
			out[i] = strconv.FormatFloat(f, 'e', maxSig-1, 64)
		}
	}
	return out
}

// Deparse renders a syntax node back to source form.
func Deparse(node Node) string {
	var d deparser
	d.node(node)
	return d.String()
}

func deparseFunction(params []Param, body Node) string {
	var d deparser
	d.function(params, body)
	return d.String()
}

type deparser struct {
	strings.Builder
	indent int
}

var binaryPrecedence = map[string]int{
	"||": 1, "|": 1,
	"&&": 2, "&": 2,
	"==": 4, "!=": 4, "<": 4, ">": 4, "<=": 4, ">=": 4,
	"+": 5, "-": 5,
	"*": 6, "/": 6,
	"%%": 7, "%/%": 7, "%in%": 7,
	":": 8,
	"^": 10,
}

func (d *deparser) newline() {
	d.WriteString("\n")
	d.WriteString(strings.Repeat("    ", d.indent))
}

func (d *deparser) node(n Node) {
	switch x := n.(type) {
	case nil:
	case *Constant:
		d.WriteString(deparseValue(x.Value))
	case *Lookup:
		d.WriteString(deparseName(x.Name))
	case *Block:
		d.WriteString("{")
		d.indent++
		for _, f := range x.Forms {
			d.newline()
			d.node(f)
		}
		d.indent--
		d.newline()
		d.WriteString("}")
	case *If:
		d.WriteString("if (")
		d.node(x.Cond)
		d.WriteString(") ")
		d.node(x.Then)
		if x.Else != nil {
			d.WriteString(" else ")
			d.node(x.Else)
		}
	case *While:
		d.WriteString("while (")
		d.node(x.Cond)
		d.WriteString(") ")
		d.node(x.Body)
	case *Repeat:
		d.WriteString("repeat ")
		d.node(x.Body)
	case *For:
		d.WriteString("for (" + deparseName(x.Var) + " in ")
		d.node(x.Seq)
		d.WriteString(") ")
		d.node(x.Body)
	case *Break:
		d.WriteString("break")
	case *Next:
		d.WriteString("next")
	case *Assign:
		d.WriteString(deparseName(x.Name))
		if x.Super {
			d.WriteString(" <<- ")
		} else {
			d.WriteString(" <- ")
		}
		d.node(x.Value)
	case *Index:
		d.operand(x.X, 11)
		d.index(x.Index, x.Double)
	case *IndexAssign:
		d.WriteString(deparseName(x.Name))
		d.index(x.Index, x.Double)
		d.WriteString(" <- ")
		d.node(x.Value)
	case *ReplaceAssign:
		d.WriteString(deparseName(x.Fn) + "(" + deparseName(x.Name))
		for _, a := range x.Args {
			d.WriteString(", ")
			d.arg(a)
		}
		d.WriteString(") <- ")
		d.node(x.Value)
	case *FunctionDef:
		d.function(x.Params, x.Body)
	case *Call:
		d.call(x)
	default:
		fmt.Fprintf(d, "<%T>", n)
	}
}

func (d *deparser) index(idx Node, double bool) {
	if double {
		d.WriteString("[[")
	} else {
		d.WriteString("[")
	}
	d.node(idx)
	if double {
		d.WriteString("]]")
	} else {
		d.WriteString("]")
	}
}

func (d *deparser) function(params []Param, body Node) {
	d.WriteString("function(")
	for i, p := range params {
		if i > 0 {
			d.WriteString(", ")
		}
		d.WriteString(deparseName(p.Name))
		if p.Default != nil {
			d.WriteString(" = ")
			d.node(p.Default)
		}
	}
	d.WriteString(") ")
	d.node(body)
}

func (d *deparser) call(c *Call) {
	name := c.FunctionName()
	if prec, ok := binaryPrecedence[name]; ok && len(c.Args) == 2 && c.Args[0].Name == "" && c.Args[1].Name == "" {
		d.operand(c.Args[0].Value, prec)
		if name == ":" || name == "^" {
			d.WriteString(name)
		} else {
			d.WriteString(" " + name + " ")
		}
		d.operand(c.Args[1].Value, prec+1)
		return
	}
	if (name == "-" || name == "+" || name == "!") && len(c.Args) == 1 && c.Args[0].Name == "" {
		d.WriteString(name)
		d.operand(c.Args[0].Value, 9)
		return
	}
	if c.FunctionName() != "" {
		d.WriteString(deparseName(name))
	} else {
		d.operand(c.Fn, 11)
	}
	d.WriteString("(")
	for i, a := range c.Args {
		if i > 0 {
			d.WriteString(", ")
		}
		d.arg(a)
	}
	d.WriteString(")")
}

func (d *deparser) arg(a Arg) {
	if a.Name != "" {
		d.WriteString(deparseName(a.Name))
		if a.Value == nil {
			d.WriteString(" = ")
			return
		}
		d.WriteString(" = ")
	}
	d.node(a.Value)
}

// operand deparses n, parenthesized when it binds less tightly than prec.
func (d *deparser) operand(n Node, prec int) {
	inner := 12
	switch x := n.(type) {
	case *Call:
		if p, ok := binaryPrecedence[x.FunctionName()]; ok && len(x.Args) == 2 {
			inner = p
		} else if len(x.Args) == 1 && (x.FunctionName() == "-" || x.FunctionName() == "!") {
			inner = 9
		}
	case *Assign, *IndexAssign, *ReplaceAssign, *FunctionDef, *If, *While, *For, *Repeat:
		inner = 0
	}
	if inner < prec {
		d.WriteString("(")
		d.node(n)
		d.WriteString(")")
		return
	}
	d.node(n)
}

var reservedWords = map[string]bool{
	"if": true, "else": true, "repeat": true, "while": true, "function": true,
	"for": true, "next": true, "break": true, "TRUE": true, "FALSE": true,
	"NULL": true, "Inf": true, "NaN": true, "NA": true, "in": true,
}

// deparseName quotes names that are not syntactic with backticks.
func deparseName(name string) string {
	if name == "..." || isSyntacticName(name) {
		return name
	}
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

func isSyntacticName(name string) bool {
	if name == "" || reservedWords[name] {
		return false
	}
	for i, r := range name {
		switch {
		case r == '.' || r == '_' && i > 0:
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	if name[0] == '.' && len(name) > 1 && name[1] >= '0' && name[1] <= '9' {
		return false
	}
	return true
}

// deparseValue renders a constant as the source that would produce it.
func deparseValue(v Value) string {
	switch x := v.(type) {
	case NullValue:
		return "NULL"
	case Symbol:
		return deparseName(x.Name)
	case Language:
		return "quote(" + Deparse(x.Node) + ")"
	case Vector:
		if IsFactor(x) || x.Attributes().Len() > 0 {
			return deparseVectorWithAttrs(x)
		}
		parts := deparseElems(x)
		if len(parts) == 1 && x.Type() != ListType {
			return parts[0]
		}
		if len(parts) == 0 {
			switch x.Type() {
			case ListType:
				return "list()"
			case DoubleType:
				return "numeric(0)"
			default:
				return x.Type().String() + "(0)"
			}
		}
		if x.Type() == ListType {
			return "list(" + strings.Join(parts, ", ") + ")"
		}
		return "c(" + strings.Join(parts, ", ") + ")"
	default:
		return v.String()
	}
}

func deparseVectorWithAttrs(x Vector) string {
	plain := Copy(x).(Vector)
	var attrs []string
	for _, name := range x.Attributes().Names() {
		val, _ := x.Attributes().Get(name)
		_ = setAttr(plain, name, NullValue{})
		attrs = append(attrs, fmt.Sprintf("%s = %s", deparseName(name), deparseValue(val)))
	}
	return "structure(" + deparseValue(plain) + ", " + strings.Join(attrs, ", ") + ")"
}

func deparseElems(v Vector) []string {
	out := make([]string, v.Len())
	for i := range out {
		switch t := v.(type) {
		case Typed[Logical]:
			out[i] = t.At(i).String()
		case Typed[int]:
			if t.At(i) == NAInteger {
				out[i] = "NA"
			} else {
				out[i] = strconv.Itoa(t.At(i)) + "L"
			}
		case Typed[float64]:
			f := t.At(i)
			if IsNADouble(f) {
				out[i] = "NA_real_"
			} else {
				out[i] = doubleToString(f)
			}
		case Typed[complex128]:
			if IsNAComplex(t.At(i)) {
				out[i] = "NA_complex_"
			} else {
				out[i] = complexToString(t.At(i))
			}
		case Typed[string]:
			if t.At(i) == NAString {
				out[i] = "NA_character_"
			} else {
				out[i] = quoteString(t.At(i))
			}
		case Typed[Value]:
			out[i] = deparseValue(t.At(i))
		}
	}
	return out
}
