package codec

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("codec")

// ICodec converts wire envelopes to bytes and back. The engine treats the
// encoded form as opaque, the transport only frames it.
type ICodec interface {
	// Serialize encodes a Message into a byte array
	// It returns the encoded bytes and an error if the message cannot be represented
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes a byte array into the Message pointed to by msg
	// It returns an error for malformed or truncated input
	Deserialize(b []byte, msg *common.Message) error
}

// Names lists the codecs accepted by ByName
var Names = []string{"json", "binary", "proto"}

// ByName returns the codec with the given name (json, binary or proto)
func ByName(name string) (ICodec, error) {
	var c ICodec
	switch strings.ToLower(name) {
	case "json":
		c = NewJSONCodec()
	case "binary":
		c = NewBinaryCodec()
	case "proto", "protobuf":
		c = NewProtoCodec()
	default:
		return nil, fmt.Errorf("unknown codec %q (expected one of %s)", name, strings.Join(Names, ", "))
	}
	Logger.Debugf("using %s codec", name)
	return c, nil
}
