package wire

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNoSerializer is returned when a value's type has no serializer and no
// structural fallback.
var ErrNoSerializer = errors.New("wire: no serializer for type")

// Enum is implemented by named integer types that travel as ordinals.
// EnumCount is called on the zero value and must return the number of
// known constants.
type Enum interface {
	EnumCount() int32
}

// Marshaler is implemented by types that encode themselves.
// DecodeWire is called on a pointer to a zero value.
type Marshaler interface {
	EncodeWire(b *Buffer)
	DecodeWire(b *Buffer) error
}

// Serializer encodes and decodes values of one type.
type Serializer interface {
	Write(m *Mapper, b *Buffer, v reflect.Value) error
	Read(m *Mapper, b *Buffer, t reflect.Type) (reflect.Value, error)
}

var (
	enumType      = reflect.TypeFor[Enum]()
	marshalerType = reflect.TypeFor[Marshaler]()
	uuidType      = reflect.TypeFor[uuid.UUID]()
	timeType      = reflect.TypeFor[time.Time]()
	durationType  = reflect.TypeFor[time.Duration]()
	bufferPtrType = reflect.TypeFor[*Buffer]()
	bytesType     = reflect.TypeFor[[]byte]()
)

// Mapper converts Go values to and from Buffers.
//
// Lookup order: registered serializer, Marshaler, Enum, built-in types,
// then a structural fallback by kind. A Mapper is safe for concurrent use.
type Mapper struct {
	mu          sync.RWMutex
	serializers map[reflect.Type]Serializer
}

// NewMapper returns a mapper with no custom serializers.
func NewMapper() *Mapper {
	return &Mapper{serializers: make(map[reflect.Type]Serializer)}
}

var defaultMapper = NewMapper()

// DefaultMapper returns the process-wide mapper used when none is injected.
func DefaultMapper() *Mapper {
	return defaultMapper
}

// Register installs s for t, replacing any previous serializer.
func (m *Mapper) Register(t reflect.Type, s Serializer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serializers[t] = s
}

type funcSerializer[T any] struct {
	write func(*Buffer, T)
	read  func(*Buffer) T
}

func (f funcSerializer[T]) Write(_ *Mapper, b *Buffer, v reflect.Value) error {
	f.write(b, v.Interface().(T))
	return nil
}

func (f funcSerializer[T]) Read(_ *Mapper, b *Buffer, _ reflect.Type) (reflect.Value, error) {
	v := f.read(b)
	if err := b.Err(); err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(&v).Elem(), nil
}

// RegisterFunc installs a serializer for T built from two plain functions.
func RegisterFunc[T any](m *Mapper, write func(*Buffer, T), read func(*Buffer) T) {
	m.Register(reflect.TypeFor[T](), funcSerializer[T]{write: write, read: read})
}

func (m *Mapper) lookup(t reflect.Type) (Serializer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.serializers[t]
	return s, ok
}

// WriteObject encodes v. A nil interface is rejected.
func (m *Mapper) WriteObject(b *Buffer, v any) error {
	if v == nil {
		return fmt.Errorf("%w: <nil>", ErrNoSerializer)
	}
	return m.WriteValue(b, reflect.ValueOf(v))
}

// ReadObject decodes a value of type t.
func (m *Mapper) ReadObject(b *Buffer, t reflect.Type) (reflect.Value, error) {
	v, err := m.ReadValue(b, t)
	if err != nil {
		return reflect.Value{}, err
	}
	return v, nil
}

// Read decodes a value of type T.
func Read[T any](m *Mapper, b *Buffer) (T, error) {
	var zero T
	v, err := m.ReadValue(b, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	return v.Interface().(T), nil
}

// WriteValue encodes a reflected value according to its static type.
func (m *Mapper) WriteValue(b *Buffer, v reflect.Value) error {
	t := v.Type()
	if s, ok := m.lookup(t); ok {
		return s.Write(m, b, v)
	}

	switch {
	case t == uuidType:
		b.WriteUUID(v.Interface().(uuid.UUID))
		return nil
	case t == timeType:
		tm := v.Interface().(time.Time)
		if tm.IsZero() {
			b.WriteBool(false)
			return nil
		}
		b.WriteBool(true)
		b.WriteInt64(tm.UnixNano())
		return nil
	case t == durationType:
		b.WriteInt64(v.Int())
		return nil
	case t == bufferPtrType:
		b.WriteBuffer(v.Interface().(*Buffer))
		return nil
	case t == bytesType:
		b.WriteBytes(v.Bytes())
		return nil
	case t.Implements(marshalerType):
		if t.Kind() == reflect.Pointer && v.IsNil() {
			b.WriteBool(false)
			return nil
		}
		if t.Kind() == reflect.Pointer {
			b.WriteBool(true)
		}
		v.Interface().(Marshaler).EncodeWire(b)
		return nil
	case reflect.PointerTo(t).Implements(marshalerType) && t.Kind() != reflect.Pointer:
		p := reflect.New(t)
		p.Elem().Set(v)
		p.Interface().(Marshaler).EncodeWire(b)
		return nil
	case t.Implements(enumType) && isInteger(t.Kind()):
		b.WriteEnum(int32(v.Int()))
		return nil
	}

	switch t.Kind() {
	case reflect.Bool:
		b.WriteBool(v.Bool())
	case reflect.Int8:
		_ = b.WriteByte(byte(v.Int()))
	case reflect.Uint8:
		_ = b.WriteByte(byte(v.Uint()))
	case reflect.Int16:
		b.WriteInt16(int16(v.Int()))
	case reflect.Uint16:
		b.WriteInt16(int16(v.Uint()))
	case reflect.Int32:
		b.WriteInt32(int32(v.Int()))
	case reflect.Uint32:
		b.WriteInt32(int32(v.Uint()))
	case reflect.Int, reflect.Int64:
		b.WriteInt64(v.Int())
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		b.WriteInt64(int64(v.Uint()))
	case reflect.Float32:
		b.WriteFloat32(float32(v.Float()))
	case reflect.Float64:
		b.WriteFloat64(v.Float())
	case reflect.String:
		b.WriteString(v.String())
	case reflect.Slice, reflect.Array:
		n := v.Len()
		b.WriteInt32(int32(n))
		for i := 0; i < n; i++ {
			if err := m.WriteValue(b, v.Index(i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		b.WriteInt32(int32(v.Len()))
		iter := v.MapRange()
		for iter.Next() {
			if err := m.WriteValue(b, iter.Key()); err != nil {
				return err
			}
			if err := m.WriteValue(b, iter.Value()); err != nil {
				return err
			}
		}
	case reflect.Pointer:
		if v.IsNil() {
			b.WriteBool(false)
			return nil
		}
		b.WriteBool(true)
		return m.WriteValue(b, v.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			if err := m.WriteValue(b, v.Field(i)); err != nil {
				return fmt.Errorf("field %s.%s: %w", t.Name(), t.Field(i).Name, err)
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrNoSerializer, t)
	}
	return nil
}

// ReadValue decodes a value of type t. The returned value is settable.
func (m *Mapper) ReadValue(b *Buffer, t reflect.Type) (reflect.Value, error) {
	if s, ok := m.lookup(t); ok {
		return s.Read(m, b, t)
	}

	out := reflect.New(t).Elem()

	switch {
	case t == uuidType:
		out.Set(reflect.ValueOf(b.ReadUUID()))
		return out, b.Err()
	case t == timeType:
		if b.ReadBool() {
			out.Set(reflect.ValueOf(time.Unix(0, b.ReadInt64())))
		}
		return out, b.Err()
	case t == durationType:
		out.SetInt(b.ReadInt64())
		return out, b.Err()
	case t == bufferPtrType:
		out.Set(reflect.ValueOf(b.ReadBuffer()))
		return out, b.Err()
	case t == bytesType:
		out.SetBytes(b.ReadBytes())
		return out, b.Err()
	case t.Kind() == reflect.Pointer && t.Implements(marshalerType):
		if !b.ReadBool() {
			return out, b.Err()
		}
		p := reflect.New(t.Elem())
		if err := p.Interface().(Marshaler).DecodeWire(b); err != nil {
			return reflect.Value{}, err
		}
		out.Set(p)
		return out, b.Err()
	case t.Kind() != reflect.Pointer && reflect.PointerTo(t).Implements(marshalerType):
		p := reflect.New(t)
		if err := p.Interface().(Marshaler).DecodeWire(b); err != nil {
			return reflect.Value{}, err
		}
		out.Set(p.Elem())
		return out, b.Err()
	case t.Implements(enumType) && isInteger(t.Kind()):
		count := out.Interface().(Enum).EnumCount()
		out.SetInt(int64(b.ReadEnum(count)))
		return out, b.Err()
	}

	switch t.Kind() {
	case reflect.Bool:
		out.SetBool(b.ReadBool())
	case reflect.Int8:
		v, _ := b.ReadByte()
		out.SetInt(int64(int8(v)))
	case reflect.Uint8:
		v, _ := b.ReadByte()
		out.SetUint(uint64(v))
	case reflect.Int16:
		out.SetInt(int64(b.ReadInt16()))
	case reflect.Uint16:
		out.SetUint(uint64(uint16(b.ReadInt16())))
	case reflect.Int32:
		out.SetInt(int64(b.ReadInt32()))
	case reflect.Uint32:
		out.SetUint(uint64(uint32(b.ReadInt32())))
	case reflect.Int, reflect.Int64:
		out.SetInt(b.ReadInt64())
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		out.SetUint(uint64(b.ReadInt64()))
	case reflect.Float32:
		out.SetFloat(float64(b.ReadFloat32()))
	case reflect.Float64:
		out.SetFloat(b.ReadFloat64())
	case reflect.String:
		out.SetString(b.ReadString())
	case reflect.Slice:
		n := b.readLength()
		if err := b.Err(); err != nil {
			return reflect.Value{}, err
		}
		s := reflect.MakeSlice(t, 0, min(n, 1024))
		for i := 0; i < n; i++ {
			elem, err := m.ReadValue(b, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			s = reflect.Append(s, elem)
		}
		out.Set(s)
	case reflect.Array:
		n := b.readLength()
		if err := b.Err(); err != nil {
			return reflect.Value{}, err
		}
		if n != t.Len() {
			return reflect.Value{}, fmt.Errorf("wire: array length %d, want %d", n, t.Len())
		}
		for i := 0; i < n; i++ {
			elem, err := m.ReadValue(b, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(elem)
		}
	case reflect.Map:
		n := b.readLength()
		if err := b.Err(); err != nil {
			return reflect.Value{}, err
		}
		mv := reflect.MakeMapWithSize(t, min(n, 1024))
		for i := 0; i < n; i++ {
			k, err := m.ReadValue(b, t.Key())
			if err != nil {
				return reflect.Value{}, err
			}
			v, err := m.ReadValue(b, t.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			mv.SetMapIndex(k, v)
		}
		out.Set(mv)
	case reflect.Pointer:
		if !b.ReadBool() {
			return out, b.Err()
		}
		elem, err := m.ReadValue(b, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(elem)
		out.Set(p)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !t.Field(i).IsExported() {
				continue
			}
			fv, err := m.ReadValue(b, t.Field(i).Type)
			if err != nil {
				return reflect.Value{}, fmt.Errorf("field %s.%s: %w", t.Name(), t.Field(i).Name, err)
			}
			out.Field(i).Set(fv)
		}
	default:
		return reflect.Value{}, fmt.Errorf("%w: %s", ErrNoSerializer, t)
	}

	if err := b.Err(); err != nil {
		return reflect.Value{}, err
	}
	return out, nil
}

// Supports reports whether values of t can be encoded without a custom
// serializer. Interfaces, channels and funcs are never supported.
func (m *Mapper) Supports(t reflect.Type) bool {
	return m.supports(t, make(map[reflect.Type]bool))
}

func (m *Mapper) supports(t reflect.Type, seen map[reflect.Type]bool) bool {
	if _, ok := m.lookup(t); ok {
		return true
	}
	if seen[t] {
		return true
	}
	seen[t] = true
	switch t {
	case uuidType, timeType, durationType, bufferPtrType, bytesType:
		return true
	}
	if t.Implements(marshalerType) || reflect.PointerTo(t).Implements(marshalerType) {
		return true
	}
	switch t.Kind() {
	case reflect.Interface, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Slice, reflect.Array, reflect.Pointer:
		return m.supports(t.Elem(), seen)
	case reflect.Map:
		return m.supports(t.Key(), seen) && m.supports(t.Elem(), seen)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if t.Field(i).IsExported() && !m.supports(t.Field(i).Type, seen) {
				return false
			}
		}
	}
	return true
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}
