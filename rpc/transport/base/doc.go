// Package base provides the stream transport shared by all socket based links
// between the host and the coprocessor, independent of the specific network
// protocol (TCP, Unix sockets, in-memory pipes). Protocol specifics are plugged
// in through connectors.
//
// Framing:
//
//	Messages use the coprocessor's serial TLV framing, lengths are 16 bit
//	little endian:
//
//	  | 0x01 | len | "RPCRsp" or "RPCEvt" | 0x02 | len | data |
//
//	The host writes the response endpoint. Frames from the coprocessor may
//	use either endpoint. Frames carry at most 65535 bytes of data.
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - clientTransport: transport.ITransport over a single connection. A failed read
//     drops the connection and dials again, so a resynchronized stream is available
//     for the next Receive.
//
//   - Listener: Accepts coprocessor side connections and runs a handler per
//     connection. Used by the simulator.
//
//   - Conn: One framed connection with serialized writes and optional write deadlines.
//
// Performance Optimizations:
//
//   - Frame Batching: header and data are written with net.Buffers in a single
//     write operation.
//
// Thread Safety:
//
//	Send and Receive of a client transport may run concurrently. Conn serializes
//	writers with a mutex but supports only one reader.
package base
