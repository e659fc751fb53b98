// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import "strconv"

// Handle names one outstanding call: a slot index stamped with the
// generation the slot had when the call was issued.
//
// The zero Handle is never issued by Slots and marks messages that
// expect no reply.
type Handle struct {
	Index uint32
	Gen   uint32
}

// Pack encodes h for the wire: generation in the high 32 bits, index in
// the low 32 bits.
func (h Handle) Pack() uint64 {
	return uint64(h.Gen)<<32 | uint64(h.Index)
}

// UnpackHandle is the inverse of Handle.Pack.
func UnpackHandle(v uint64) Handle {
	return Handle{Index: uint32(v), Gen: uint32(v >> 32)}
}

// IsZero reports whether h is the no-reply handle.
func (h Handle) IsZero() bool {
	return h.Gen == 0
}

func (h Handle) String() string {
	return strconv.FormatUint(uint64(h.Index), 10) + "@" + strconv.FormatUint(uint64(h.Gen), 10)
}

// Slots is a fixed-capacity pool of correlation handles.
//
// Free indices form a stack; every acquire bumps the slot's generation,
// so a handle from an earlier use of the slot never matches again.
// Slots is not safe for concurrent use; it belongs to one Bridge.
type Slots[T any] struct {
	data []T
	gen  []uint32
	used []bool
	free []uint32
	next int
}

// NewSlots creates a pool with the given capacity.
// A non-positive capacity selects DefaultCapacity.
func NewSlots[T any](capacity int) *Slots[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &Slots[T]{
		data: make([]T, capacity),
		gen:  make([]uint32, capacity),
		used: make([]bool, capacity),
		free: make([]uint32, capacity),
	}
	for i := range s.free {
		s.free[i] = uint32(i)
	}
	return s
}

// Acquire stores v in a free slot and returns its handle.
// Returns ErrCapacityExceeded when every slot is in use.
func (s *Slots[T]) Acquire(v T) (Handle, error) {
	if s.next == len(s.free) {
		return Handle{}, ErrCapacityExceeded
	}
	i := s.free[s.next]
	s.next++
	s.gen[i]++
	if s.gen[i] == 0 {
		s.gen[i] = 1
	}
	s.data[i] = v
	s.used[i] = true
	return Handle{Index: i, Gen: s.gen[i]}, nil
}

// Release removes and returns the value held for h.
// It reports false, and changes nothing, when h is out of range, its
// generation is stale, or the slot was already released.
func (s *Slots[T]) Release(h Handle) (T, bool) {
	var zero T
	i := h.Index
	if int(i) >= len(s.data) || !s.used[i] || s.gen[i] != h.Gen {
		return zero, false
	}
	v := s.data[i]
	s.data[i] = zero
	s.used[i] = false
	s.next--
	s.free[s.next] = i
	return v, true
}

// Drain releases every occupied slot, passing each handle and value to f.
func (s *Slots[T]) Drain(f func(Handle, T)) {
	for i := range s.used {
		if !s.used[i] {
			continue
		}
		h := Handle{Index: uint32(i), Gen: s.gen[i]}
		if v, ok := s.Release(h); ok && f != nil {
			f(h, v)
		}
	}
}

// Len returns the number of occupied slots.
func (s *Slots[T]) Len() int {
	return s.next
}

// Cap returns the pool capacity.
func (s *Slots[T]) Cap() int {
	return len(s.data)
}
