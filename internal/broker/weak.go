package broker

import (
	"fmt"
	"reflect"
	"unsafe"
	"weak"
)

// instanceRef is a non-owning reference to a registered instance. Two refs
// to the same instance have equal ptr values, so ptr doubles as identity.
type instanceRef struct {
	ptr weak.Pointer[byte]
	typ reflect.Type
}

// tinySize is the size below which the runtime may pack pointer-free
// objects into a shared block. Such an object is not freed on its own, so
// its cleanup may never run.
const tinySize = 16

// newRef checks that instance can be weakly referenced and returns the
// reference along with a strong pointer to the instance memory.
func newRef(instance any) (instanceRef, *byte, error) {
	v := reflect.ValueOf(instance)
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() {
		return instanceRef{}, nil, ErrInvalidInstance
	}
	et := v.Type().Elem()
	if et.Kind() != reflect.Struct || et.Size() == 0 {
		return instanceRef{}, nil, ErrInvalidInstance
	}
	if et.Size() < tinySize && !hasPointers(et) {
		return instanceRef{}, nil, fmt.Errorf("%w: %s is pointer-free and smaller than %d bytes",
			ErrInvalidInstance, v.Type(), tinySize)
	}

	base := (*byte)(v.UnsafePointer())
	return instanceRef{ptr: weak.Make(base), typ: v.Type()}, base, nil
}

// hasPointers reports whether values of t hold pointers the collector
// tracks.
func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Slice, reflect.String, reflect.Interface:
		return true
	case reflect.Array:
		return t.Len() > 0 && hasPointers(t.Elem())
	case reflect.Struct:
		for i := range t.NumField() {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
	}
	return false
}

// value returns the instance, or nil once it has been collected.
func (r instanceRef) value() any {
	if r.typ == nil {
		return nil
	}
	p := r.ptr.Value()
	if p == nil {
		return nil
	}
	return reflect.NewAt(r.typ.Elem(), unsafe.Pointer(p)).Interface()
}

// alive reports whether the instance has not been collected yet.
func (r instanceRef) alive() bool {
	return r.typ != nil && r.ptr.Value() != nil
}

// typeName returns the instance type, e.g. "*app.View".
func (r instanceRef) typeName() string {
	if r.typ == nil {
		return "<none>"
	}
	return r.typ.String()
}

// fieldOffset locates src inside the instance starting at base. It fails
// when src lives outside of the instance memory.
func fieldOffset(r instanceRef, base *byte, src EventSource) (uintptr, error) {
	addr := reflect.ValueOf(src).Pointer()
	start := uintptr(unsafe.Pointer(base))
	if addr < start || addr >= start+r.typ.Elem().Size() {
		return 0, ErrStaticMember
	}
	return addr - start, nil
}

// eventAt returns the event of type et (a pointer type) stored at offset
// off of the live instance.
func eventAt(instance any, et reflect.Type, off uintptr) EventSource {
	base := reflect.ValueOf(instance).UnsafePointer()
	src, _ := reflect.NewAt(et.Elem(), unsafe.Add(base, off)).Interface().(EventSource)
	return src
}

// fieldName returns the dotted path of the field of type et (a pointer
// type) at offset off inside the struct type t.
func fieldName(t reflect.Type, off uintptr, et reflect.Type) string {
	if name, ok := fieldPath(t, off, et.Elem()); ok {
		return name
	}
	return fmt.Sprintf("event+%d", off)
}

func fieldPath(t reflect.Type, off uintptr, target reflect.Type) (string, bool) {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if off < f.Offset || off >= f.Offset+f.Type.Size() {
			continue
		}
		if off == f.Offset && f.Type == target {
			return f.Name, true
		}
		if f.Type.Kind() == reflect.Struct {
			if name, ok := fieldPath(f.Type, off-f.Offset, target); ok {
				return f.Name + "." + name, true
			}
		}
	}
	return "", false
}
