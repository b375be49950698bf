// Package tcp implements TCP socket connectors for the base stream transport.
// The host side dials a TCP endpoint, typically a serial-to-TCP bridge in
// front of the coprocessor or the simulator. The listener side is used by the
// simulator.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector
//
// Both apply the TCPConf and SocketConf options (no delay, keep alive, linger,
// buffer sizes) to every connection.
package tcp
