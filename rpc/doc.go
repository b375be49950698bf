// Package rpc provides the request/response correlation and event dispatch
// layer between a host and a network coprocessor that share a single framed
// link.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the system, including the
//     Message envelope, message and event kinds, status codes, payloads,
//     configuration structures and logging.
//
//   - engine: The host side. Assigns correlation ids, keeps the sync and async
//     transaction tables, runs the outbound and inbound pumps, expires
//     requests and fans events out to subscribers.
//
//   - codec: Message encodings (Protobuf, Binary, JSON) converting between
//     Message objects and byte arrays.
//
//   - transport: The framed byte link with pluggable implementations
//     (TCP, Unix sockets, in-memory pipe).
//
//   - client: Typed calls for the coprocessor's Wi-Fi and system requests on
//     top of the engine.
//
//   - slave: A coprocessor simulator that answers requests and emits events
//     like the firmware would.
package rpc
