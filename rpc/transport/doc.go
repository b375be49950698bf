// Package transport defines the link abstraction between the host and the
// coprocessor. The RPC engine only sees ITransport: a framed byte pipe that
// sends and receives encoded messages.
//
// Implementations:
//
//   - base: Stream transport over any net.Conn, using the coprocessor's serial
//     TLV framing. Also provides the listener used by the coprocessor simulator.
//
//   - tcp, unix: Connectors for TCP and Unix domain sockets, e.g. to reach a
//     serial bridge or the simulator.
//
//   - pipe: In-memory pair for tests and the in-process demo.
package transport
