package codec

import (
	"fmt"
	"math"

	"github.com/ValentinKolb/hRPC/rpc/common"
	"google.golang.org/protobuf/encoding/protowire"
)

// NewProtoCodec creates a codec speaking the protobuf wire format of the
// coprocessor's Rpc message. It needs no generated code, fields are written
// with protowire directly.
func NewProtoCodec() ICodec {
	return &protoCodecImpl{}
}

// protoCodecImpl implements ICodec for the message
//
//	message Rpc {
//	  uint32 msg_type = 1;
//	  uint32 msg_id   = 2;
//	  uint32 uid      = 3;
//	  int32  status   = 4;
//	  bytes  payload  = 5;
//	}
type protoCodecImpl struct {
}

const (
	fieldMsgType protowire.Number = 1
	fieldMsgID   protowire.Number = 2
	fieldUID     protowire.Number = 3
	fieldStatus  protowire.Number = 4
	fieldPayload protowire.Number = 5
)

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (p protoCodecImpl) Serialize(msg common.Message) ([]byte, error) {
	b := make([]byte, 0, 16+len(msg.Payload))

	// proto3 semantics: zero values are not written
	if msg.MsgType != 0 {
		b = protowire.AppendTag(b, fieldMsgType, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(msg.MsgType))
	}
	if msg.Kind != 0 {
		b = protowire.AppendTag(b, fieldMsgID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(msg.Kind))
	}
	if msg.UID != 0 {
		b = protowire.AppendTag(b, fieldUID, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(msg.UID))
	}
	if msg.Status != 0 {
		// int32 is sign extended to 64 bit on the wire
		b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(msg.Status)))
	}
	if len(msg.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, msg.Payload)
	}
	return b, nil
}

func (p protoCodecImpl) Deserialize(b []byte, msg *common.Message) error {
	*msg = common.Message{}

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		if num >= fieldMsgType && num <= fieldStatus && typ == protowire.VarintType {
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("invalid varint in field %d: %w", num, protowire.ParseError(m))
			}
			b = b[m:]
			if err := p.setVarint(msg, num, v); err != nil {
				return err
			}
			continue
		}

		if num == fieldPayload && typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("invalid payload: %w", protowire.ParseError(m))
			}
			b = b[m:]
			msg.Payload = append([]byte(nil), v...)
			continue
		}

		// unknown field or unexpected wire type, skip it
		m := protowire.ConsumeFieldValue(num, typ, b)
		if m < 0 {
			return fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(m))
		}
		Logger.Debugf("skipping unknown field %d (wire type %d)", num, typ)
		b = b[m:]
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (p protoCodecImpl) setVarint(msg *common.Message, num protowire.Number, v uint64) error {
	switch num {
	case fieldMsgType:
		if v > 0xff {
			return fmt.Errorf("msg_type %d out of range", v)
		}
		msg.MsgType = common.MsgType(v)
	case fieldMsgID:
		if v > 0xffff {
			return fmt.Errorf("msg_id %d out of range", v)
		}
		msg.Kind = uint16(v)
	case fieldUID:
		if v > 0xffffffff {
			return fmt.Errorf("uid %d out of range", v)
		}
		msg.UID = uint32(v)
	case fieldStatus:
		// int32 is encoded sign extended to 64 bits
		if s := int64(v); s < math.MinInt32 || s > math.MaxInt32 {
			return fmt.Errorf("status %d out of range", s)
		}
		msg.Status = int32(int64(v))
	}
	return nil
}
