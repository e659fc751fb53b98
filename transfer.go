// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"fmt"
	"reflect"
)

// Transferable is a resource that is moved, never copied, across a channel.
//
// Detach hands the underlying resource to a fresh value for the receiving
// side. After Detach the sender's value is unusable and Detached reports
// true; a second Detach fails with ErrDetached. Implementations should be
// pointer types.
type Transferable interface {
	Detach() (Transferable, error)
	Detached() bool
}

// Transfer marks a call argument or a function result for move semantics.
//
// Value replaces the envelope in the copied payload. Every resource in
// List is moved alongside the message. A Value that is itself
// Transferable is moved even when List does not name it.
type Transfer struct {
	Value any
	List  []Transferable
}

// Move wraps v in a Transfer envelope moving the listed resources.
func Move(v any, list ...Transferable) Transfer {
	return Transfer{Value: v, List: list}
}

// IsTransfer reports whether x is a Transfer envelope.
func IsTransfer(x any) bool {
	_, ok := asTransfer(x)
	return ok
}

func asTransfer(x any) (Transfer, bool) {
	switch t := x.(type) {
	case Transfer:
		return t, true
	case *Transfer:
		if t != nil {
			return *t, true
		}
	}
	return Transfer{}, false
}

// Buffer is a movable byte buffer. Moving a Buffer leaves the sender's
// copy empty and detached.
type Buffer struct {
	b        []byte
	detached bool
}

// NewBuffer takes ownership of b.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{b: b}
}

// Bytes returns the buffer contents, nil once detached.
func (b *Buffer) Bytes() []byte { return b.b }

// Len returns the buffer length.
func (b *Buffer) Len() int { return len(b.b) }

// Detached reports whether the buffer has been moved away.
func (b *Buffer) Detached() bool { return b.detached }

// Detach implements Transferable.
func (b *Buffer) Detach() (Transferable, error) {
	if b.detached {
		return nil, ErrDetached
	}
	nb := &Buffer{b: b.b}
	b.b = nil
	b.detached = true
	return nb, nil
}

// MarshalCBOR rejects structural copies of a Buffer; buffers can only move.
func (b *Buffer) MarshalCBOR() ([]byte, error) {
	return nil, ErrNotCloneable
}

// moveList collects the resources of one send, each exactly once.
type moveList struct {
	items []Transferable
}

func (m *moveList) add(r Transferable) int {
	for i, x := range m.items {
		if sameResource(x, r) {
			return i
		}
	}
	m.items = append(m.items, r)
	return len(m.items) - 1
}

// checkAttached fails when any resource has already been moved away.
func checkAttached(items []Transferable) error {
	for i, r := range items {
		if r == nil || r.Detached() {
			return fmt.Errorf("%w: move list entry %d: %w", ErrTransport, i, ErrDetached)
		}
	}
	return nil
}

// detachAll moves every resource, in order. Callers run checkAttached
// first so that a rejected send leaves every resource with the sender.
func detachAll(items []Transferable) ([]Transferable, error) {
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]Transferable, len(items))
	for i, r := range items {
		d, err := r.Detach()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		out[i] = d
	}
	return out, nil
}

func sameResource(a, b Transferable) bool {
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
