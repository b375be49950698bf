// Package unix implements Unix domain socket connectors for the base stream
// transport. It is the cheapest link between a host process and a simulator
// or serial bridge running on the same machine.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners, removing a stale socket file first
package unix
