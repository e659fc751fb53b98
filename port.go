// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package xcall

import (
	"context"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// Serial is a monotonically increasing channel identifier.
// Both ports of a pair share the serial assigned by NewChannel.
type Serial = uint32

// serials is the global monotonic counter for channel serials.
var serials atomix.Uint32

func nextSerial() Serial {
	return serials.Add(1)
}

// Message is one unit of channel traffic: a structurally copied payload
// and the resources moved alongside it.
type Message struct {
	Data  []byte
	Moved []Transferable
}

// portContext holds the lock-free transport for one side of a channel.
// Each direction is a single-producer single-consumer bounded queue.
// sent counts this side's enqueues; peerRecvd counts the peer's dequeues
// of them, so their difference is the occupancy of sendQ.
type portContext struct {
	sendQ     *lfq.SPSC[Message]
	recvQ     *lfq.SPSC[Message]
	closed    *atomix.Uint32
	peerRecvd *atomix.Uint64
	recvd     *atomix.Uint64
	sent      uint64
	sendSlot  Message
}

// Port is one endpoint of a channel created by NewChannel.
//
// A Port is owned by a single goroutine: Post and Receive must not be
// called concurrently. Ownership moves with the Port when it is sent
// to another context as a Transferable.
type Port struct {
	ctx    *portContext
	serial Serial
}

// channelPair holds both ports, both queues, and the shared close
// counter in a single allocation.
type channelPair struct {
	a      Port
	b      Port
	ctxA   portContext
	ctxB   portContext
	closed atomix.Uint32
	recvAB atomix.Uint64
	recvBA atomix.Uint64
	ab     lfq.SPSC[Message]
	ba     lfq.SPSC[Message]
}

// NewChannel creates a connected pair of ports.
// depth bounds each direction; it is rounded up to a power of two and
// defaults to DefaultQueueDepth when not positive.
//
// Post and Receive are non-blocking: they return iox.ErrWouldBlock when
// the peer has not yet consumed or produced.
func NewChannel(depth int) (*Port, *Port) {
	depth = queueDepth(depth)
	s := nextSerial()

	pair := &channelPair{}
	pair.ab.Init(depth)
	pair.ba.Init(depth)
	pair.ctxA = portContext{sendQ: &pair.ab, recvQ: &pair.ba, closed: &pair.closed, peerRecvd: &pair.recvAB, recvd: &pair.recvBA}
	pair.ctxB = portContext{sendQ: &pair.ba, recvQ: &pair.ab, closed: &pair.closed, peerRecvd: &pair.recvBA, recvd: &pair.recvAB}
	pair.a = Port{ctx: &pair.ctxA, serial: s}
	pair.b = Port{ctx: &pair.ctxB, serial: s}
	return &pair.a, &pair.b
}

func queueDepth(n int) int {
	if n <= 0 {
		n = DefaultQueueDepth
	}
	d := 2
	for d < n {
		d <<= 1
	}
	return d
}

// Serial returns the serial number of the channel this port belongs to.
func (p *Port) Serial() Serial {
	return p.serial
}

// Post enqueues one message for the peer and moves every resource in
// moved along with it. The resources are detached only once the message
// is accepted; when Post fails the sender keeps all of them.
//
// Returns iox.ErrWouldBlock when the queue is full, ErrClosed once
// either side has closed the channel, ErrDetached after the port
// has been moved away, and ErrTransport when a resource in moved has
// already been detached.
func (p *Port) Post(data []byte, moved []Transferable) error {
	if p.ctx == nil {
		return ErrDetached
	}
	if p.ctx.closed.Load() != 0 {
		return ErrClosed
	}
	if err := checkAttached(moved); err != nil {
		return err
	}
	if p.ctx.sent-p.ctx.peerRecvd.Load() >= uint64(p.ctx.sendQ.Cap()) {
		return iox.ErrWouldBlock
	}
	out, err := detachAll(moved)
	if err != nil {
		return err
	}
	p.ctx.sendSlot = Message{Data: data, Moved: out}
	err = p.ctx.sendQ.Enqueue(&p.ctx.sendSlot)
	p.ctx.sendSlot = Message{}
	if err == nil {
		p.ctx.sent++
	}
	return err
}

// Receive dequeues the next message from the peer.
// Messages queued before a close are still delivered; ErrClosed is
// returned only once the channel is closed and drained.
func (p *Port) Receive() (Message, error) {
	if p.ctx == nil {
		return Message{}, ErrDetached
	}
	m, err := p.ctx.recvQ.Dequeue()
	if err == nil {
		p.ctx.recvd.Add(1)
		return m, nil
	}
	if p.ctx.closed.Load() == 0 {
		return Message{}, err
	}
	// The peer may have enqueued between the failed dequeue and its close.
	if m, err = p.ctx.recvQ.Dequeue(); err == nil {
		p.ctx.recvd.Add(1)
		return m, nil
	}
	return Message{}, ErrClosed
}

// Close closes the channel for both ports. Never blocks.
func (p *Port) Close() {
	if p.ctx == nil {
		return
	}
	p.ctx.closed.Add(1)
}

// Closed reports whether either side has closed the channel.
// A detached port reports true.
func (p *Port) Closed() bool {
	return p.ctx == nil || p.ctx.closed.Load() != 0
}

// Detached reports whether the port has been moved away.
func (p *Port) Detached() bool { return p.ctx == nil }

// Detach implements Transferable. The returned Port takes over the
// endpoint; p can no longer post or receive.
func (p *Port) Detach() (Transferable, error) {
	if p.ctx == nil {
		return nil, ErrDetached
	}
	np := &Port{ctx: p.ctx, serial: p.serial}
	p.ctx = nil
	return np, nil
}

// MarshalCBOR rejects structural copies of a Port; ports can only move.
func (p *Port) MarshalCBOR() ([]byte, error) {
	return nil, ErrNotCloneable
}

// postWait posts one message, backing off while the queue is full. idle is called
// between attempts and reports whether it made progress; it lets the
// caller keep draining its own inbound traffic while waiting.
func postWait(ctx context.Context, p *Port, data []byte, moved []Transferable, idle func() bool) error {
	var bo iox.Backoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := p.Post(data, moved)
		if err == nil || !iox.IsWouldBlock(err) {
			return err
		}
		if idle != nil && idle() {
			bo.Reset()
			continue
		}
		bo.Wait()
	}
}
