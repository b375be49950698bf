// Package cmd implements the command-line interface of hRPC. It provides a
// hierarchical command structure for running the coprocessor simulator and
// for talking to a coprocessor through the engine.
//
// The package is organized into several subpackages:
//
//   - host: Commands that drive the engine against a coprocessor (mac, mode, fw, heartbeat, bench, ...)
//   - simulate: Runs the coprocessor simulator
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See hrpc -help for a list of all commands.
package cmd
