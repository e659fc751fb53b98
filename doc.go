// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package xcall invokes named functions living in an isolated execution
// context as if they were ordinary asynchronous calls.
//
// A coordinator and an execution context share nothing but a channel.
// Requests and replies are correlated by generation-stamped handles, so
// concurrent calls settle exactly once in any reply order.
//
// # Architecture
//
//   - Transport: Lock-free bounded SPSC queues via [code.hybscloud.com/lfq]. [NewChannel] creates a [Port] pair.
//   - Copy and move: Payloads are copied structurally as CBOR; resources named in a [Transfer] are moved, and the sender's copy is detached once the channel accepts the message.
//   - Correlation: [Slots] hands out [Handle] values whose generation changes on every reuse; stale replies are dropped.
//   - Failures: Errors cross the channel as an [ErrorEnvelope] and are rebuilt as [*RemoteError], whose trace ends with the local call site after a boundary marker.
//   - Non-blocking: [Port.Post], [Port.Receive], [Bridge.Poll] and [Runtime.Poll] return [code.hybscloud.com/iox.ErrWouldBlock] on backpressure.
//
// # API Topologies
//
//   - Coordinator: [Bridge] with [Bridge.Call], [Bridge.Register], [Bridge.Connect], [Bridge.AddPort], [Bridge.Close]; results are [*Pending].
//   - Execution context: [Runtime] serving setups from a [Catalog]; a [Setup] adds [Func] values through a [Builder].
//   - Stubs: [Stub] turns a registry [Tree] into memoized [Thunk] values; [Typed] adds a result type.
//   - Delegation: [Stub.Ref] packs a registry and a fresh port into a [ServiceRef] that can be passed to another context, which calls the service through [ServiceRef.Bind].
//   - Effects: [Invoke], [Issue], [Await] run under [Exec] or [ExecExpr]; fused forms are [InvokeBind], [IssueBind], [AwaitBind].
//
// # Integration
//
//   - Stepping: [Step] and [Advance] evaluate call protocols one effect at a time for use inside an event loop.
//   - Blocking: [Pending.Await], [Exec] and [Runtime.Serve] wait with adaptive backoff.
//   - Goroutines: [Spawn] runs a runtime on its own goroutine under an errgroup.
//
// # Example
//
//	xcall.RegisterSetup("math", func(b *xcall.Builder) (any, error) {
//		return b.AddAll(map[string]xcall.Func{
//			"add": xcall.Func2(func(_ context.Context, x, y int) (int, error) { return x + y, nil }),
//		})
//	})
//
//	b, _, wait := xcall.Spawn(ctx)
//	stub, _ := b.RegisterStub(ctx, "math")
//	add, _ := stub.Func("add")
//	sum, _ := xcall.Typed[int](add)(ctx, 1, 2)
//	b.Close()
//	wait()
package xcall
