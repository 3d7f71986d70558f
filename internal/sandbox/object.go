package sandbox

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"
)

// Object is a mutable attribute bag such as argparse.Namespace.
type Object struct {
	typeName string
	names    []string
	attrs    map[string]starlark.Value
	frozen   bool
}

var (
	_ starlark.HasSetField = (*Object)(nil)
	_ starlark.Comparable  = (*Object)(nil)
)

// NewObject returns an empty object whose type is typeName.
func NewObject(typeName string) *Object {
	return &Object{typeName: typeName, attrs: make(map[string]starlark.Value)}
}

// Get returns the attribute name.
func (o *Object) Get(name string) (starlark.Value, bool) {
	v, ok := o.attrs[name]
	return v, ok
}

// Set binds name to v, keeping first-assignment order.
func (o *Object) Set(name string, v starlark.Value) {
	if _, ok := o.attrs[name]; !ok {
		o.names = append(o.names, name)
	}
	o.attrs[name] = v
}

func (o *Object) String() string {
	parts := make([]string, len(o.names))
	for i, name := range o.names {
		parts[i] = name + "=" + pyRepr(o.attrs[name])
	}
	return o.typeName + "(" + strings.Join(parts, ", ") + ")"
}

func (o *Object) Type() string         { return o.typeName }
func (o *Object) Truth() starlark.Bool { return starlark.True }

func (o *Object) Freeze() {
	if o.frozen {
		return
	}
	o.frozen = true
	for _, v := range o.attrs {
		v.Freeze()
	}
}

func (o *Object) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: '%s'", o.typeName)
}

func (o *Object) Attr(name string) (starlark.Value, error) {
	if v, ok := o.attrs[name]; ok {
		return v, nil
	}
	return nil, nil
}

func (o *Object) AttrNames() []string {
	names := append([]string(nil), o.names...)
	sort.Strings(names)
	return names
}

func (o *Object) SetField(name string, v starlark.Value) error {
	if o.frozen {
		return fmt.Errorf("cannot set .%s on frozen %s", name, o.typeName)
	}
	o.Set(name, v)
	return nil
}

// CompareSameType implements == and != by attribute equality.
func (o *Object) CompareSameType(op syntax.Token, y starlark.Value, depth int) (bool, error) {
	other := y.(*Object)
	eq := o.typeName == other.typeName && len(o.attrs) == len(other.attrs)
	for name, v := range o.attrs {
		if !eq {
			break
		}
		w, ok := other.attrs[name]
		if !ok {
			eq = false
			break
		}
		same, err := starlark.EqualDepth(v, w, depth-1)
		if err != nil {
			return false, err
		}
		eq = same
	}
	switch op {
	case syntax.EQL:
		return eq, nil
	case syntax.NEQ:
		return !eq, nil
	}
	return false, fmt.Errorf("'%s' not supported between instances of '%s' and '%s'", op, o.typeName, other.typeName)
}
