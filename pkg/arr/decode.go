package arr

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Decode reads the YAML interchange form of a program: either a sequence of
// forms or a mapping with a "forms" key. Each node is a single-key mapping
// naming its kind; see nodeDecoders. Bare scalars are constants, and a
// mapping whose key is not a node kind is a call of that function with the
// listed arguments, so {"+": [1, 2]} is 1 + 2.
func Decode(filename string, data []byte) (*Program, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}
	d := &decoder{filename: filename, source: string(data)}
	prog := &Program{Filename: filename, Source: string(data)}
	if len(doc.Content) == 0 {
		return prog, nil
	}
	root := doc.Content[0]
	if root.Kind == yaml.MappingNode {
		forms, ok := d.field(root, "forms")
		if !ok {
			return nil, d.errorf(root, "expected a 'forms' key")
		}
		root = forms
	}
	if root.Kind != yaml.SequenceNode {
		return nil, d.errorf(root, "expected a sequence of forms")
	}
	for _, item := range root.Content {
		n, err := d.node(item)
		if err != nil {
			return nil, err
		}
		prog.Forms = append(prog.Forms, n)
	}
	return prog, nil
}

// DecodeFile decodes the program stored at path.
func DecodeFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(path, data)
}

type decoder struct {
	filename string
	source   string
}

func (d *decoder) loc(n *yaml.Node) *SourceLocation {
	length := 1
	if n.Kind == yaml.MappingNode && len(n.Content) > 0 {
		length = len(n.Content[0].Value)
	} else if n.Kind == yaml.ScalarNode {
		length = max(1, len(n.Value))
	}
	return &SourceLocation{Filename: d.filename, Line: n.Line, Column: n.Column, Length: length}
}

func (d *decoder) errorf(n *yaml.Node, format string, args ...any) error {
	return NewSourceError(fmt.Errorf(format, args...), d.loc(n), d.source)
}

// field returns the value of key in a mapping node.
func (d *decoder) field(n *yaml.Node, key string) (*yaml.Node, bool) {
	if n.Kind != yaml.MappingNode {
		return nil, false
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1], true
		}
	}
	return nil, false
}

func (d *decoder) requiredField(n *yaml.Node, kind, key string) (*yaml.Node, error) {
	v, ok := d.field(n, key)
	if !ok {
		return nil, d.errorf(n, "%s: missing '%s'", kind, key)
	}
	return v, nil
}

func (d *decoder) nodeField(n *yaml.Node, kind, key string) (Node, error) {
	v, err := d.requiredField(n, kind, key)
	if err != nil {
		return nil, err
	}
	return d.node(v)
}

func (d *decoder) optionalNodeField(n *yaml.Node, key string) (Node, error) {
	v, ok := d.field(n, key)
	if !ok || isNullNode(v) {
		return nil, nil
	}
	return d.node(v)
}

func (d *decoder) stringField(n *yaml.Node, kind, key string) (string, error) {
	v, err := d.requiredField(n, kind, key)
	if err != nil {
		return "", err
	}
	if v.Kind != yaml.ScalarNode {
		return "", d.errorf(v, "%s: '%s' must be a string", kind, key)
	}
	return v.Value, nil
}

func (d *decoder) boolField(n *yaml.Node, key string) (bool, error) {
	v, ok := d.field(n, key)
	if !ok {
		return false, nil
	}
	var b bool
	if err := v.Decode(&b); err != nil {
		return false, d.errorf(v, "'%s' must be a boolean", key)
	}
	return b, nil
}

func isNullNode(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}

type nodeDecoder func(d *decoder, n, body *yaml.Node) (Node, error)

var nodeDecoders map[string]nodeDecoder

func init() {
	nodeDecoders = map[string]nodeDecoder{
		"num":  literal(DoubleType),
		"int":  literal(IntegerType),
		"str":  literal(StringType),
		"lgl":  literal(LogicalType),
		"cplx": literal(ComplexType),
		"null": func(d *decoder, n, _ *yaml.Node) (Node, error) {
			return NewConstant(NullValue{}, d.loc(n)), nil
		},
		"sym": func(d *decoder, n, body *yaml.Node) (Node, error) {
			if body.Kind != yaml.ScalarNode {
				return nil, d.errorf(body, "sym: expected a name")
			}
			return &Lookup{Name: body.Value, Loc: d.loc(n)}, nil
		},
		"call":         (*decoder).call,
		"block":        (*decoder).block,
		"if":           (*decoder).ifNode,
		"while":        (*decoder).while,
		"repeat":       (*decoder).repeat,
		"for":          (*decoder).forNode,
		"break":        func(d *decoder, n, _ *yaml.Node) (Node, error) { return &Break{Loc: d.loc(n)}, nil },
		"next":         func(d *decoder, n, _ *yaml.Node) (Node, error) { return &Next{Loc: d.loc(n)}, nil },
		"assign":       assign(false),
		"superassign":  assign(true),
		"index":        (*decoder).index,
		"index_assign": (*decoder).indexAssign,
		"replace":      (*decoder).replace,
		"function":     (*decoder).function,
	}
}

func (d *decoder) node(n *yaml.Node) (Node, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return d.node(n.Alias)
	case yaml.ScalarNode:
		val, err := d.scalar(n, NullType)
		if err != nil {
			return nil, err
		}
		return NewConstant(val, d.loc(n)), nil
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return nil, d.errorf(n, "a node must be a mapping with exactly one key")
		}
		kind, body := n.Content[0].Value, n.Content[1]
		if dec, ok := nodeDecoders[kind]; ok {
			return dec(d, n, body)
		}
		if body.Kind != yaml.SequenceNode {
			return nil, d.errorf(n, "unknown node kind %q", kind)
		}
		args, err := d.args(body)
		if err != nil {
			return nil, err
		}
		return &Call{Fn: &Lookup{Name: kind, Loc: d.loc(n)}, Args: args, Loc: d.loc(n)}, nil
	default:
		return nil, d.errorf(n, "expected a node")
	}
}

// scalar converts a YAML scalar to a length-one vector. With kind NullType
// the type follows the YAML tag; numbers are doubles, as unsuffixed
// numeric literals are.
func (d *decoder) scalar(n *yaml.Node, kind Type) (Value, error) {
	if kind == NullType {
		switch n.Tag {
		case "!!null":
			return NullValue{}, nil
		case "!!bool":
			kind = LogicalType
		case "!!int", "!!float":
			kind = DoubleType
		default:
			kind = StringType
			if n.Value == "NA" && n.Style == 0 {
				kind = LogicalType
			}
		}
	}
	isNA := n.Value == "NA" && n.Style == 0
	switch kind {
	case LogicalType:
		if isNA {
			return NewLogical(NALogical), nil
		}
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, d.errorf(n, "invalid logical %q", n.Value)
		}
		return NewLogical(LogicalOf(b)), nil
	case IntegerType:
		if isNA {
			return NewInt(NAInteger), nil
		}
		i, err := strconv.Atoi(strings.TrimSuffix(n.Value, "L"))
		if err != nil || !inIntRange(i) {
			return nil, d.errorf(n, "invalid integer %q", n.Value)
		}
		return NewInt(i), nil
	case DoubleType:
		if isNA {
			return NewDouble(NADouble), nil
		}
		switch n.Value {
		case "Inf", ".inf", "+.inf":
			return NewDouble(math.Inf(1)), nil
		case "-Inf", "-.inf":
			return NewDouble(math.Inf(-1)), nil
		case "NaN", ".nan":
			return NewDouble(math.NaN()), nil
		}
		f, err := strconv.ParseFloat(n.Value, 64)
		if err != nil {
			return nil, d.errorf(n, "invalid number %q", n.Value)
		}
		return NewDouble(f), nil
	case ComplexType:
		if isNA {
			return NewComplex(NAComplex), nil
		}
		c, err := strconv.ParseComplex(n.Value, 128)
		if err != nil {
			return nil, d.errorf(n, "invalid complex %q", n.Value)
		}
		return NewComplex(c), nil
	default:
		if isNA {
			return NewString(NAString), nil
		}
		return NewString(n.Value), nil
	}
}

// literal decodes a constant of the given type; a sequence body is a
// vector constant.
func literal(kind Type) nodeDecoder {
	return func(d *decoder, n, body *yaml.Node) (Node, error) {
		items := []*yaml.Node{body}
		if body.Kind == yaml.SequenceNode {
			items = body.Content
		}
		vals := make([]Value, len(items))
		for i, item := range items {
			if item.Kind != yaml.ScalarNode {
				return nil, d.errorf(item, "expected a %s literal", kind)
			}
			v, err := d.scalar(item, kind)
			if err != nil {
				return nil, err
			}
			vals[i] = v
		}
		vec, err := concat(kind, vals)
		if err != nil {
			return nil, d.errorf(n, "%s", err)
		}
		return NewConstant(vec, d.loc(n)), nil
	}
}

// args decodes call arguments. An item is a node, or a mapping with "name"
// and "value" keys; {missing: ~} is an empty argument.
func (d *decoder) args(seq *yaml.Node) ([]Arg, error) {
	if seq.Kind != yaml.SequenceNode {
		return nil, d.errorf(seq, "arguments must be a sequence")
	}
	args := make([]Arg, 0, len(seq.Content))
	for _, item := range seq.Content {
		_, hasValue := d.field(item, "value")
		_, hasName := d.field(item, "name")
		missing, isMissing := d.field(item, "missing")
		isMissing = isMissing && isNullNode(missing)
		if !hasValue && !hasName && !isMissing {
			n, err := d.node(item)
			if err != nil {
				return nil, err
			}
			args = append(args, Arg{Value: n})
			continue
		}
		var arg Arg
		if hasName {
			name, err := d.stringField(item, "argument", "name")
			if err != nil {
				return nil, err
			}
			arg.Name = name
		}
		if !isMissing {
			v, err := d.nodeField(item, "argument", "value")
			if err != nil {
				return nil, err
			}
			arg.Value = v
		}
		args = append(args, arg)
	}
	return args, nil
}

func (d *decoder) call(n, body *yaml.Node) (Node, error) {
	fnNode, err := d.requiredField(body, "call", "fn")
	if err != nil {
		return nil, err
	}
	var fn Node
	if fnNode.Kind == yaml.ScalarNode {
		fn = &Lookup{Name: fnNode.Value, Loc: d.loc(fnNode)}
	} else if fn, err = d.node(fnNode); err != nil {
		return nil, err
	}
	var args []Arg
	if a, ok := d.field(body, "args"); ok {
		if args, err = d.args(a); err != nil {
			return nil, err
		}
	}
	return &Call{Fn: fn, Args: args, Loc: d.loc(n)}, nil
}

func (d *decoder) block(n, body *yaml.Node) (Node, error) {
	if body.Kind != yaml.SequenceNode {
		return nil, d.errorf(body, "block: expected a sequence of forms")
	}
	b := &Block{Loc: d.loc(n)}
	for _, item := range body.Content {
		f, err := d.node(item)
		if err != nil {
			return nil, err
		}
		b.Forms = append(b.Forms, f)
	}
	return b, nil
}

func (d *decoder) ifNode(n, body *yaml.Node) (Node, error) {
	cond, err := d.nodeField(body, "if", "cond")
	if err != nil {
		return nil, err
	}
	then, err := d.nodeField(body, "if", "then")
	if err != nil {
		return nil, err
	}
	els, err := d.optionalNodeField(body, "else")
	if err != nil {
		return nil, err
	}
	return &If{Cond: cond, Then: then, Else: els, Loc: d.loc(n)}, nil
}

func (d *decoder) while(n, body *yaml.Node) (Node, error) {
	cond, err := d.nodeField(body, "while", "cond")
	if err != nil {
		return nil, err
	}
	loopBody, err := d.nodeField(body, "while", "body")
	if err != nil {
		return nil, err
	}
	return &While{Cond: cond, Body: loopBody, Loc: d.loc(n)}, nil
}

func (d *decoder) repeat(n, body *yaml.Node) (Node, error) {
	loopBody, err := d.node(body)
	if err != nil {
		return nil, err
	}
	return &Repeat{Body: loopBody, Loc: d.loc(n)}, nil
}

func (d *decoder) forNode(n, body *yaml.Node) (Node, error) {
	name, err := d.stringField(body, "for", "var")
	if err != nil {
		return nil, err
	}
	seq, err := d.nodeField(body, "for", "seq")
	if err != nil {
		return nil, err
	}
	loopBody, err := d.nodeField(body, "for", "body")
	if err != nil {
		return nil, err
	}
	return &For{Var: name, Seq: seq, Body: loopBody, Loc: d.loc(n)}, nil
}

func assign(super bool) nodeDecoder {
	kind := "assign"
	if super {
		kind = "superassign"
	}
	return func(d *decoder, n, body *yaml.Node) (Node, error) {
		name, err := d.stringField(body, kind, "name")
		if err != nil {
			return nil, err
		}
		val, err := d.nodeField(body, kind, "value")
		if err != nil {
			return nil, err
		}
		return &Assign{Name: name, Value: val, Super: super, Loc: d.loc(n)}, nil
	}
}

func (d *decoder) index(n, body *yaml.Node) (Node, error) {
	x, err := d.nodeField(body, "index", "x")
	if err != nil {
		return nil, err
	}
	i, err := d.optionalNodeField(body, "i")
	if err != nil {
		return nil, err
	}
	double, err := d.boolField(body, "double")
	if err != nil {
		return nil, err
	}
	return &Index{X: x, Index: i, Double: double, Loc: d.loc(n)}, nil
}

func (d *decoder) indexAssign(n, body *yaml.Node) (Node, error) {
	name, err := d.stringField(body, "index_assign", "name")
	if err != nil {
		return nil, err
	}
	i, err := d.optionalNodeField(body, "i")
	if err != nil {
		return nil, err
	}
	val, err := d.nodeField(body, "index_assign", "value")
	if err != nil {
		return nil, err
	}
	double, err := d.boolField(body, "double")
	if err != nil {
		return nil, err
	}
	return &IndexAssign{Name: name, Index: i, Value: val, Double: double, Loc: d.loc(n)}, nil
}

func (d *decoder) replace(n, body *yaml.Node) (Node, error) {
	name, err := d.stringField(body, "replace", "name")
	if err != nil {
		return nil, err
	}
	fn, err := d.stringField(body, "replace", "fn")
	if err != nil {
		return nil, err
	}
	var args []Arg
	if a, ok := d.field(body, "args"); ok {
		if args, err = d.args(a); err != nil {
			return nil, err
		}
	}
	val, err := d.nodeField(body, "replace", "value")
	if err != nil {
		return nil, err
	}
	return &ReplaceAssign{Name: name, Fn: fn, Args: args, Value: val, Loc: d.loc(n)}, nil
}

// function decodes {params: [...], body: node}. A parameter is a name or a
// mapping {name, default}.
func (d *decoder) function(n, body *yaml.Node) (Node, error) {
	def := &FunctionDef{Loc: d.loc(n)}
	if ps, ok := d.field(body, "params"); ok {
		if ps.Kind != yaml.SequenceNode {
			return nil, d.errorf(ps, "function: params must be a sequence")
		}
		for _, p := range ps.Content {
			if p.Kind == yaml.ScalarNode {
				def.Params = append(def.Params, Param{Name: p.Value})
				continue
			}
			name, err := d.stringField(p, "parameter", "name")
			if err != nil {
				return nil, err
			}
			dflt, err := d.optionalNodeField(p, "default")
			if err != nil {
				return nil, err
			}
			def.Params = append(def.Params, Param{Name: name, Default: dflt})
		}
	}
	fnBody, err := d.nodeField(body, "function", "body")
	if err != nil {
		return nil, err
	}
	def.Body = fnBody
	return def, nil
}
