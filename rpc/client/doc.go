// Package client provides typed calls of the coprocessor interface on top of
// the hRPC engine, so applications do not have to deal with message kinds and
// payload encoding.
//
// Every synchronous call returns an error for hard engine errors (not ready,
// table full), for context cancellation and for every response with a status
// other than StatusOK. Remote failures are returned as *common.StatusError,
// use errors.As to inspect the status.
//
// Usage Example:
//
//	e := engine.New(common.DefaultEngineConfig(), tcp.NewTCPTransport(cfg), codec.NewProtoCodec())
//	if err := e.Init(); err != nil {
//	    return err
//	}
//	defer e.Deinit()
//
//	c := client.New(e)
//	mode, err := c.GetWifiMode(ctx)
//
//	c.OnHeartbeat(func(beat uint32) {
//	    log.Printf("coprocessor alive (%d)", beat)
//	})
//	c.ConfigHeartbeat(ctx, true, 10)
//
// Thread Safety:
//
//	A Client is safe for concurrent use. Event and async callbacks run on
//	engine goroutines and must not block on synchronous calls.
package client
