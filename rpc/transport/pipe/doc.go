// Package pipe provides an in-memory link between a host engine and a
// coprocessor simulator running in the same process. It uses net.Pipe, so
// writes block until the other side reads, just like a serial line without
// buffering.
//
// Usage:
//
//	host, slaveConn := pipe.New(time.Second)
//	go simulator.ServeConn(slaveConn)
//	e := engine.New(common.DefaultEngineConfig(), host, codec.NewProtoCodec())
package pipe
