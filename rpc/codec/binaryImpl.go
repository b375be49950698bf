package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/hRPC/rpc/common"
)

// NewBinaryCodec creates a new codec using a compact custom binary format
func NewBinaryCodec() ICodec {
	return &binaryCodecImpl{}
}

// binaryCodecImpl implements ICodec using a custom binary format:
//
//	msg type (1) | flags (1) | kind (2) | [uid (4)] | [status (4)] | [payload len (4) | payload]
//
// All integers are big endian. Optional fields are only written when their
// flag is set.
type binaryCodecImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasUID     byte = 1 << 0
	hasStatus  byte = 1 << 1
	hasPayload byte = 1 << 2
)

// headerSize is msg type + flags + kind
const headerSize = 4

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (b binaryCodecImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, b.sizeBytes(msg))

	result[0] = byte(msg.MsgType)
	binary.BigEndian.PutUint16(result[2:4], msg.Kind)

	var flags byte = 0
	pos := headerSize

	if msg.UID != 0 {
		flags |= hasUID
		binary.BigEndian.PutUint32(result[pos:pos+4], msg.UID)
		pos += 4
	}

	if msg.Status != 0 {
		flags |= hasStatus
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(msg.Status))
		pos += 4
	}

	if msg.Payload != nil {
		flags |= hasPayload
		binary.BigEndian.PutUint32(result[pos:pos+4], uint32(len(msg.Payload)))
		pos += 4
		copy(result[pos:], msg.Payload)
	}

	// set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binaryCodecImpl) Deserialize(data []byte, msg *common.Message) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for message header")
	}

	msg.MsgType = common.MsgType(data[0])
	flags := data[1]
	msg.Kind = binary.BigEndian.Uint16(data[2:4])
	pos := headerSize

	if flags&hasUID != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for uid")
		}
		msg.UID = binary.BigEndian.Uint32(data[pos : pos+4])
		pos += 4
	} else {
		msg.UID = 0
	}

	if flags&hasStatus != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for status")
		}
		msg.Status = int32(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4
	} else {
		msg.Status = 0
	}

	if flags&hasPayload != 0 {
		if pos+4 > len(data) {
			return fmt.Errorf("data too short for payload length")
		}
		payloadLen := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		pos += 4

		if payloadLen > len(data)-pos {
			return fmt.Errorf("data too short for payload data")
		}

		// the frame buffer is reused by the transport, the payload must be copied
		msg.Payload = make([]byte, payloadLen)
		copy(msg.Payload, data[pos:pos+payloadLen])
		pos += payloadLen
	} else {
		msg.Payload = nil
	}

	if pos != len(data) {
		return fmt.Errorf("%d trailing bytes after message", len(data)-pos)
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// sizeBytes calculates the total size needed for serialization
func (b binaryCodecImpl) sizeBytes(msg common.Message) int {
	size := headerSize
	if msg.UID != 0 {
		size += 4
	}
	if msg.Status != 0 {
		size += 4
	}
	if msg.Payload != nil {
		size += 4 + len(msg.Payload)
	}
	return size
}
