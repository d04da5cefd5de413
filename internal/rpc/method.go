package rpc

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

var (
	errorType   = reflect.TypeFor[error]()
	contextType = reflect.TypeFor[context.Context]()
)

// ClassName is the wire name of a type: import path, a dot, type name.
// Pointers are named after their element.
func ClassName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// Method describes one remotely callable method.
type Method struct {
	Name string
	// Params are the wire parameters; a leading context.Context is not one.
	Params []reflect.Type
	// Result is nil for methods without a value result.
	Result       reflect.Type
	ReturnsError bool
	TakesContext bool

	index int
}

// Arity is the number of wire parameters.
func (m *Method) Arity() int { return len(m.Params) }

type methodKey struct {
	name  string
	arity int
}

// MethodTable is the immutable set of callable methods of one type.
type MethodTable struct {
	Type    reflect.Type
	Class   string
	methods map[methodKey]*Method
}

// Lookup finds a method by name and wire arity.
func (t *MethodTable) Lookup(name string, arity int) (*Method, bool) {
	m, ok := t.methods[methodKey{name: name, arity: arity}]
	return m, ok
}

// Methods returns every method sorted by name, then arity.
func (t *MethodTable) Methods() []*Method {
	out := make([]*Method, 0, len(t.methods))
	for _, m := range t.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Arity() < out[j].Arity()
	})
	return out
}

var tables sync.Map // reflect.Type -> *MethodTable

// Introspect returns the method table of t, building it on first use.
//
// For an interface, the interface's own methods are eligible. For any other
// type the exported method set is used, promoted methods included. Methods
// whose results are not (), (R), (error) or (R, error), and variadic
// methods, are left out.
func Introspect(t reflect.Type) (*MethodTable, error) {
	if cached, ok := tables.Load(t); ok {
		return cached.(*MethodTable), nil
	}
	if t.NumMethod() == 0 {
		return nil, fmt.Errorf("rpc: type %s has no methods", t)
	}

	table := &MethodTable{
		Type:    t,
		Class:   ClassName(t),
		methods: make(map[methodKey]*Method),
	}
	isInterface := t.Kind() == reflect.Interface
	for i := 0; i < t.NumMethod(); i++ {
		rm := t.Method(i)
		if !rm.IsExported() {
			continue
		}
		ft := rm.Type
		first := 1 // receiver
		if isInterface {
			first = 0
		}
		if m, ok := describe(rm.Name, ft, first); ok {
			m.index = i
			table.methods[methodKey{name: m.Name, arity: m.Arity()}] = m
		}
	}

	actual, _ := tables.LoadOrStore(t, table)
	return actual.(*MethodTable), nil
}

func describe(name string, ft reflect.Type, first int) (*Method, bool) {
	if ft.IsVariadic() {
		return nil, false
	}
	m := &Method{Name: name}

	in := first
	if ft.NumIn() > in && ft.In(in) == contextType {
		m.TakesContext = true
		in++
	}
	for ; in < ft.NumIn(); in++ {
		m.Params = append(m.Params, ft.In(in))
	}

	switch ft.NumOut() {
	case 0:
	case 1:
		if ft.Out(0) == errorType {
			m.ReturnsError = true
		} else {
			m.Result = ft.Out(0)
		}
	case 2:
		if ft.Out(1) != errorType || ft.Out(0) == errorType {
			return nil, false
		}
		m.Result = ft.Out(0)
		m.ReturnsError = true
	default:
		return nil, false
	}
	return m, true
}

// call runs m on recv, whose type must be the table's type. Panics are
// returned as errors.
func (m *Method) call(ctx context.Context, recv reflect.Value, args []reflect.Value) (result reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()

	in := args
	if m.TakesContext {
		in = make([]reflect.Value, 0, len(args)+1)
		in = append(in, reflect.ValueOf(ctx))
		in = append(in, args...)
	}
	out := recv.Method(m.index).Call(in)

	if m.ReturnsError {
		if e := out[len(out)-1]; !e.IsNil() {
			return reflect.Value{}, e.Interface().(error)
		}
	}
	if m.Result != nil {
		return out[0], nil
	}
	return reflect.Value{}, nil
}
