// Package engine implements the host side RPC engine that talks to a network
// coprocessor over a single framed link. It correlates requests with their
// responses, enforces timeouts and dispatches unsolicited events.
//
// Key Components:
//
//   - Engine: Public API with an explicit lifecycle (Init, Deinit) and the two
//     call styles SubmitSync and SubmitAsync.
//
//   - registry: Two fixed capacity transaction tables (sync and async) keyed by
//     correlation id. Removing an entry is the only way to complete a request,
//     which makes every outcome exclusive.
//
//   - eventRegistry: One callback slot per event kind.
//
//   - Outbound pump: Single goroutine draining the lock free submission queue,
//     encoding requests and writing them to the transport.
//
//   - Inbound pump: Single goroutine reading the transport, resolving responses
//     and running event callbacks.
//
//   - Watchdog: One timer per async request. Sync callers wait with their own timer.
//
// Guarantees:
//
//   - Correlation ids of pending requests are unique and never 0.
//   - A request is registered before it is sent, a response can never beat its registration.
//   - Every accepted request completes exactly once: with the remote response,
//     StatusRequestTimedOut, StatusTransportSendFailed, StatusEncodeFailed or
//     StatusEngineStopped. Late responses are dropped.
//   - The FreeHook of every accepted request runs exactly once.
//
// Threading:
//
//	Submissions are safe from any goroutine. Async callbacks run on the inbound
//	pump (responses), the outbound pump (send failures), a timer goroutine
//	(timeouts) or the goroutine calling Deinit (engine stopped). All callbacks
//	are serialized and recovered, a panicking callback never stops a pump.
//	Callbacks must not block on SubmitSync, the response could only be read by
//	the pump that runs the callback.
//
// Usage:
//
//	e := engine.New(common.DefaultEngineConfig(), tcp.NewTCPTransport(cfg), codec.NewProtoCodec())
//	if err := e.Init(); err != nil {
//	    return err
//	}
//	defer e.Deinit()
//
//	resp, err := e.SubmitSync(ctx, common.Request{Kind: common.KindGetWifiMode})
package engine
