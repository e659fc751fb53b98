// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// tagMoved marks a payload position whose value travels on the move
// list. The tag content is the move-list index.
const tagMoved = 30819

var (
	encMode = mustEncMode()
	decMode = mustDecMode()
)

func mustEncMode() cbor.EncMode {
	em, err := cbor.EncOptions{}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// Untyped decoding yields int64 integers and string-keyed maps, the
// closest Go shapes to the values most callers send.
func mustDecMode() cbor.DecMode {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSignedOrFail,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	return dm
}

// encoder copies the payload of one send and collects what it moves.
type encoder struct {
	moves moveList
}

// encode copies v into CBOR. A Transfer envelope is unwrapped in place
// and its resources join the move list; a Transferable value is replaced
// by a move reference.
func (e *encoder) encode(v any) (cbor.RawMessage, error) {
	if t, ok := asTransfer(v); ok {
		for _, r := range t.List {
			if r != nil {
				e.moves.add(r)
			}
		}
		v = t.Value
	}
	switch r := v.(type) {
	case ServiceRef:
		return e.encodeRef(r)
	case *ServiceRef:
		if r != nil {
			return e.encodeRef(*r)
		}
	}
	if r, ok := v.(Transferable); ok && !isNil(r) {
		return e.moveRef(r)
	}
	b, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return b, nil
}

func (e *encoder) moveRef(r Transferable) (cbor.RawMessage, error) {
	i := e.moves.add(r)
	return encMode.Marshal(cbor.Tag{Number: tagMoved, Content: uint64(i)})
}

// serviceRefWire is a ServiceRef on the wire: the description is copied,
// the port is a move reference.
type serviceRefWire struct {
	Tree any             `cbor:"tree"`
	Port cbor.RawMessage `cbor:"port"`
}

func (e *encoder) encodeRef(r ServiceRef) (cbor.RawMessage, error) {
	if r.Port == nil {
		return nil, fmt.Errorf("%w: service reference without a port", ErrArgument)
	}
	port, err := e.moveRef(r.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	b, err := encMode.Marshal(serviceRefWire{Tree: r.Tree, Port: port})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	return b, nil
}

func decodeRef(raw cbor.RawMessage, moved []Transferable, dst *ServiceRef) error {
	var w serviceRefWire
	if err := decMode.Unmarshal(raw, &w); err != nil {
		return fmt.Errorf("%w: service reference: %w", ErrArgument, err)
	}
	tree, err := toTree(w.Tree)
	if err != nil {
		return err
	}
	r, ok, err := movedRef(w.Port, moved)
	if err != nil {
		return err
	}
	port, _ := r.(*Port)
	if !ok || port == nil {
		return fmt.Errorf("%w: service reference without a moved port", ErrArgument)
	}
	*dst = ServiceRef{Tree: tree, Port: port}
	return nil
}

func isNil(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// movedRef resolves raw when it is a move reference.
func movedRef(raw cbor.RawMessage, moved []Transferable) (Transferable, bool, error) {
	if len(raw) == 0 || raw[0]>>5 != 6 {
		return nil, false, nil
	}
	var tag cbor.RawTag
	if err := decMode.Unmarshal(raw, &tag); err != nil || tag.Number != tagMoved {
		return nil, false, nil
	}
	var i uint64
	if err := decMode.Unmarshal(tag.Content, &i); err != nil {
		return nil, true, fmt.Errorf("%w: bad move reference: %w", ErrTransport, err)
	}
	if i >= uint64(len(moved)) {
		return nil, true, fmt.Errorf("%w: move reference %d out of range", ErrTransport, i)
	}
	return moved[i], true, nil
}

// decodeInto decodes raw into the pointer dst, resolving move references.
func decodeInto(raw cbor.RawMessage, moved []Transferable, dst any) error {
	if ref, ok := dst.(*ServiceRef); ok {
		return decodeRef(raw, moved, ref)
	}
	r, ok, err := movedRef(raw, moved)
	if err != nil {
		return err
	}
	if !ok {
		if len(raw) == 0 {
			raw = cbor.RawMessage{0xf6}
		}
		return decMode.Unmarshal(raw, dst)
	}
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("%w: decode target must be a non-nil pointer", ErrArgument)
	}
	elem := rv.Elem()
	rr := reflect.ValueOf(r)
	if !rr.Type().AssignableTo(elem.Type()) {
		return fmt.Errorf("%w: moved %s is not assignable to %s", ErrArgument, rr.Type(), elem.Type())
	}
	elem.Set(rr)
	return nil
}

// Args is the receiving side's view of call arguments.
type Args struct {
	raw   []cbor.RawMessage
	moved []Transferable
}

// Len returns the number of arguments.
func (a Args) Len() int { return len(a.raw) }

// Moved returns every resource moved with the call.
func (a Args) Moved() []Transferable { return a.moved }

// Decode decodes argument i into the pointer v.
// A moved argument is assigned by reference.
func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a.raw) {
		return fmt.Errorf("%w: missing argument %d", ErrArgument, i)
	}
	if err := decodeInto(a.raw[i], a.moved, v); err != nil {
		return fmt.Errorf("%w: argument %d: %w", ErrArgument, i, err)
	}
	return nil
}

// Value decodes argument i without a target type.
func (a Args) Value(i int) (any, error) {
	var v any
	err := a.Decode(i, &v)
	return v, err
}

// Value is a call result as received by the coordinator.
type Value struct {
	raw   cbor.RawMessage
	moved []Transferable
}

// IsNil reports whether the result is nil.
func (v Value) IsNil() bool {
	return isNull(v.raw)
}

// Decode decodes the result into the pointer dst.
func (v Value) Decode(dst any) error {
	return decodeInto(v.raw, v.moved, dst)
}

// Interface decodes the result without a target type.
func (v Value) Interface() (any, error) {
	var x any
	err := v.Decode(&x)
	return x, err
}

// Moved returns every resource moved with the result.
func (v Value) Moved() []Transferable { return v.moved }

// Tree decodes the result as a registry description.
func (v Value) Tree() (Tree, error) {
	x, err := v.Interface()
	if err != nil {
		return nil, err
	}
	return toTree(x)
}

// As decodes v into a fresh T.
func As[T any](v Value) (T, error) {
	var t T
	err := v.Decode(&t)
	return t, err
}
