package codec

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ValentinKolb/hRPC/rpc/common"
)

// NewJSONCodec creates a new codec using json encoding. Kinds are written by
// name, which makes captured traffic readable.
func NewJSONCodec() ICodec {
	return &jsonCodecImpl{}
}

// jsonCodecImpl implements the ICodec interface using json encoding
type jsonCodecImpl struct {
}

// jsonEnvelope is the json representation of a common.Message
type jsonEnvelope struct {
	MsgType common.MsgType `json:"msg_type"`
	Kind    string         `json:"kind"`
	UID     uint32         `json:"uid,omitempty"`
	Status  int32          `json:"status,omitempty"`
	Payload []byte         `json:"payload,omitempty"`
}

// --------------------------------------------------------------------------
// Interface Methods (docu see codec.ICodec)
// --------------------------------------------------------------------------

func (j jsonCodecImpl) Serialize(msg common.Message) ([]byte, error) {
	return json.Marshal(jsonEnvelope{
		MsgType: msg.MsgType,
		Kind:    kindName(msg.MsgType, msg.Kind),
		UID:     msg.UID,
		Status:  msg.Status,
		Payload: msg.Payload,
	})
}

func (j jsonCodecImpl) Deserialize(b []byte, msg *common.Message) error {
	var env jsonEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	kind, err := parseKindName(env.MsgType, env.Kind)
	if err != nil {
		return err
	}

	*msg = common.Message{
		MsgType: env.MsgType,
		Kind:    kind,
		UID:     env.UID,
		Status:  env.Status,
		Payload: env.Payload,
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// kindName returns the name of a known kind and the decimal value otherwise
func kindName(t common.MsgType, kind uint16) string {
	if t == common.MsgTypeEvent {
		if k := common.EventKind(kind); k.Valid() {
			return k.String()
		}
	} else if k := common.MessageKind(kind); k.Valid() {
		return k.String()
	}
	return strconv.FormatUint(uint64(kind), 10)
}

// parseKindName is the inverse of kindName
func parseKindName(t common.MsgType, name string) (uint16, error) {
	if t == common.MsgTypeEvent {
		if k, err := common.ParseEventKind(name); err == nil {
			return uint16(k), nil
		}
	} else if k, err := common.ParseMessageKind(name); err == nil {
		return uint16(k), nil
	}

	v, err := strconv.ParseUint(name, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid kind %q for %s message", name, t)
	}
	return uint16(v), nil
}
