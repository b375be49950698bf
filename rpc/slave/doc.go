// Package slave simulates the coprocessor side of an hRPC link. It is used by
// `hrpc simulate`, the client tests and the in-process demo.
//
// The simulator keeps a small radio state (Wi-Fi mode, MAC addresses, power
// save type) shared by all connections and answers requests through a handler
// table. Kinds without a handler are answered with StatusUnsupported. Every
// connection starts with an ESPInit event and may receive periodic heartbeat
// events.
//
// Requests of one connection are handled by up to WorkersPerConn goroutines,
// so responses can arrive out of order, exactly what the host engine has to cope with.
//
// Usage:
//
//	s := slave.New(config, codec.NewProtoCodec())
//	defer s.Close()
//
//	l := tcp.NewTCPListener(config.Transport)
//	if _, err := l.Listen(); err != nil {
//	    return err
//	}
//	return s.Serve(l)
package slave
