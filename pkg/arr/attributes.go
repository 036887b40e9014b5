package arr

import "sort"

// Attributes is the lazily allocated name-to-value map attached to a
// vector. A nil *Attributes is an empty set.
type Attributes struct {
	m map[string]Value
}

func (a *Attributes) Get(name string) (Value, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a.m[name]
	return v, ok
}

func (a *Attributes) Len() int {
	if a == nil {
		return 0
	}
	return len(a.m)
}

// Names returns the attribute names, "names" first and the rest sorted.
func (a *Attributes) Names() []string {
	if a == nil {
		return nil
	}
	out := make([]string, 0, len(a.m))
	for k := range a.m {
		if k != "names" {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	if _, ok := a.m["names"]; ok {
		out = append([]string{"names"}, out...)
	}
	return out
}

// Copy returns an independent map holding the same (now shared) values.
func (a *Attributes) Copy() *Attributes {
	if a == nil {
		return nil
	}
	out := &Attributes{m: make(map[string]Value, len(a.m))}
	for k, v := range a.m {
		MarkShared(v)
		out.m[k] = v
	}
	return out
}

func (a *Attributes) set(name string, v Value) {
	if a.m == nil {
		a.m = map[string]Value{}
	}
	a.m[name] = v
}

func (a *Attributes) remove(name string) {
	if a == nil {
		return
	}
	delete(a.m, name)
}

// namesOnly returns a fresh attribute set holding just the names of v.
func namesOnly(v Vector) *Attributes {
	names, ok := v.Attributes().Get("names")
	if !ok {
		return nil
	}
	MarkShared(names)
	return &Attributes{m: map[string]Value{"names": names}}
}
