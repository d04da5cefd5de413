package rpc

import (
	"context"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type base struct{}

func (base) Inherited() string { return "base" }

type shapes struct {
	base
}

func (shapes) None()                                 {}
func (shapes) Value() int                            { return 1 }
func (shapes) Err() error                            { return nil }
func (shapes) Both(a, b int) (int, error)            { return a + b, nil }
func (shapes) WithContext(context.Context, int) bool { return true }
func (shapes) TooMany() (int, int, error)            { return 0, 0, nil }
func (shapes) WrongOrder() (error, int)              { return nil, 0 }
func (shapes) Variadic(...int)                       {}

type narrow interface {
	Value() int
}

func TestIntrospect_Concrete(t *testing.T) {
	table, err := Introspect(reflect.TypeFor[shapes]())
	require.NoError(t, err)

	names := make([]string, 0)
	for _, m := range table.Methods() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Both", "Err", "Inherited", "None", "Value", "WithContext"}, names)

	both, ok := table.Lookup("Both", 2)
	require.True(t, ok)
	assert.Equal(t, reflect.TypeFor[int](), both.Result)
	assert.True(t, both.ReturnsError)

	_, ok = table.Lookup("Both", 1)
	assert.False(t, ok)

	wc, ok := table.Lookup("WithContext", 1)
	require.True(t, ok)
	assert.True(t, wc.TakesContext)
	assert.Equal(t, []reflect.Type{reflect.TypeFor[int]()}, wc.Params)

	e, ok := table.Lookup("Err", 0)
	require.True(t, ok)
	assert.Nil(t, e.Result)
	assert.True(t, e.ReturnsError)
}

func TestIntrospect_InterfaceRoot(t *testing.T) {
	table, err := Introspect(reflect.TypeFor[narrow]())
	require.NoError(t, err)

	require.Len(t, table.Methods(), 1)
	_, ok := table.Lookup("Value", 0)
	assert.True(t, ok)
	_, ok = table.Lookup("Inherited", 0)
	assert.False(t, ok)
	assert.Equal(t, "github.com/yndnr/nodemesh-go/internal/rpc.narrow", table.Class)
}

func TestIntrospect_Cached(t *testing.T) {
	a, err := Introspect(reflect.TypeFor[*shapes]())
	require.NoError(t, err)
	b, err := Introspect(reflect.TypeFor[*shapes]())
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestIntrospect_NoMethods(t *testing.T) {
	_, err := Introspect(reflect.TypeFor[int]())
	assert.Error(t, err)
}

func TestMethodCall_UsesInterfaceTable(t *testing.T) {
	h, err := NewHandler(reflect.TypeFor[narrow](), shapes{})
	require.NoError(t, err)

	m, ok := h.Table().Lookup("Value", 0)
	require.True(t, ok)
	v, err := m.call(context.Background(), h.recv, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Interface())
}

func TestNewHandler_Rejects(t *testing.T) {
	_, err := NewHandler(reflect.TypeFor[narrow](), nil)
	assert.Error(t, err)

	_, err = NewHandler(reflect.TypeFor[narrow](), "not a narrow")
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	h, err := HandlerFor[narrow](shapes{})
	require.NoError(t, err)

	require.NoError(t, r.Register(h))
	assert.Error(t, r.Register(h))

	got, ok := r.Lookup(h.Class())
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, []string{h.Class()}, r.Classes())

	r.Unregister(h.Class())
	_, ok = r.Lookup(h.Class())
	assert.False(t, ok)
}

func TestClassName(t *testing.T) {
	assert.Equal(t, "github.com/yndnr/nodemesh-go/internal/rpc.shapes", ClassName(reflect.TypeFor[shapes]()))
	assert.Equal(t, ClassName(reflect.TypeFor[shapes]()), ClassName(reflect.TypeFor[*shapes]()))
	assert.Equal(t, "int", ClassName(reflect.TypeFor[int]()))
}
