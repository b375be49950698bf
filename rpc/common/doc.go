// Package common provides the data structures and utilities shared by all
// hRPC packages: the wire message envelope, request/response/event types,
// configuration structures and the logger setup.
//
// Key Components:
//
//   - Message: The envelope every codec serializes. It carries the message
//     type (request, response, event), the kind, the correlation uid, a status
//     and an opaque payload.
//
//   - Request, Response, Event: The values callers exchange with the engine.
//     A Request never contains a correlation id, the engine assigns it.
//
//   - MessageKind, EventKind, StatusCode: Dense enumerations of the remote
//     procedures, the unsolicited events and the result codes. Host side
//     failures (timeouts, send failures, ...) use their own status codes so
//     callers only ever have to look at Response.Status.
//
//   - Payloads: Small protobuf wire format payloads understood by the
//     coprocessor firmware (MAC, Wi-Fi mode, heartbeat, firmware version).
//
//   - EngineConfig, TransportConfig, SimulatorConfig: Configuration structs
//     with human readable String() output.
//
//   - Logger: Custom logging implementation plugged into Dragonboat's logger
//     facade, so every package uses logger.GetLogger("<name>").
package common
