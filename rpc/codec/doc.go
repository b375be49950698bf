// Package codec provides the message encodings used between the host and the
// coprocessor. It defines a common interface and several implementations that
// convert the common.Message envelope to bytes and back.
//
// Key Components:
//
//   - ICodec: Core interface that all codec implementations must satisfy.
//
//   - protoCodecImpl: Protobuf wire format of the coprocessor's Rpc message,
//     written with protowire. This is what real firmware speaks.
//
//   - binaryCodecImpl: Custom binary format with a fixed header and a flag byte
//     for optional fields. Smallest output, useful between two hRPC processes.
//
//   - jsonCodecImpl: JSON encoding with kinds written by name. Useful for
//     debugging captured traffic, slowest of the three.
//
// Thread Safety:
//
//	All codec implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
//
// Usage:
//
//	c, err := codec.ByName("proto")
//	data, err := c.Serialize(msg)
//	// ... send data ...
//	var received common.Message
//	err = c.Deserialize(data, &received)
package codec
