package common

import (
	"fmt"
	"net"

	"google.golang.org/protobuf/encoding/protowire"
)

// --------------------------------------------------------------------------
// Payload definitions
// --------------------------------------------------------------------------

/*
 The payloads below use the protobuf wire format so they stay compatible with
 the coprocessor firmware, which decodes them with its generated protobuf code.
 Field numbers follow the firmware's .proto definitions.
*/

// WifiMode is the operating mode of the coprocessor radio
type WifiMode uint32

const (
	WifiModeNull WifiMode = iota
	WifiModeSTA
	WifiModeAP
	WifiModeAPSTA
)

// String returns the string representation of a WifiMode
func (m WifiMode) String() string {
	switch m {
	case WifiModeNull:
		return "null"
	case WifiModeSTA:
		return "sta"
	case WifiModeAP:
		return "ap"
	case WifiModeAPSTA:
		return "apsta"
	default:
		return fmt.Sprintf("mode(%d)", uint32(m))
	}
}

// ParseWifiMode is the inverse of WifiMode.String
func ParseWifiMode(s string) (WifiMode, error) {
	for m := WifiModeNull; m <= WifiModeAPSTA; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return WifiModeNull, fmt.Errorf("invalid wifi mode %q (expected one of null, sta, ap, apsta)", s)
}

// WifiModePayload carries a Wi-Fi mode (get/set mode, get MAC request)
type WifiModePayload struct {
	Mode WifiMode
}

// Marshal encodes the payload
func (p WifiModePayload) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Mode))
	return b
}

// Unmarshal decodes the payload
func (p *WifiModePayload) Unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, _ []byte) {
		if num == 1 {
			p.Mode = WifiMode(v)
		}
	})
}

// MACPayload carries a MAC address for one interface
type MACPayload struct {
	Mode WifiMode
	MAC  net.HardwareAddr
}

// Marshal encodes the payload
func (p MACPayload) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Mode))
	if len(p.MAC) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, p.MAC)
	}
	return b
}

// Unmarshal decodes the payload
func (p *MACPayload) Unmarshal(b []byte) error {
	err := consumeFields(b, func(num protowire.Number, v uint64, raw []byte) {
		switch num {
		case 1:
			p.Mode = WifiMode(v)
		case 2:
			p.MAC = append(net.HardwareAddr(nil), raw...)
		}
	})
	if err != nil {
		return err
	}
	if len(p.MAC) != 0 && len(p.MAC) != 6 {
		return fmt.Errorf("invalid mac length %d", len(p.MAC))
	}
	return nil
}

// PowerSavePayload carries the power save type (0 none, 1 min modem, 2 max modem)
type PowerSavePayload struct {
	Type uint32
}

// Marshal encodes the payload
func (p PowerSavePayload) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Type))
	return b
}

// Unmarshal decodes the payload
func (p *PowerSavePayload) Unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, _ []byte) {
		if num == 1 {
			p.Type = uint32(v)
		}
	})
}

// TxPowerPayload carries the maximum transmit power in units of 0.25 dBm
type TxPowerPayload struct {
	Power int32
}

// Marshal encodes the payload
func (p TxPowerPayload) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(int64(p.Power)))
	return b
}

// Unmarshal decodes the payload
func (p *TxPowerPayload) Unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, _ []byte) {
		if num == 1 {
			p.Power = int32(v)
		}
	})
}

// HeartbeatConfigPayload enables or disables periodic heartbeat events
type HeartbeatConfigPayload struct {
	Enable      bool
	DurationSec uint32
}

// Marshal encodes the payload
func (p HeartbeatConfigPayload) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeBool(p.Enable))
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.DurationSec))
	return b
}

// Unmarshal decodes the payload
func (p *HeartbeatConfigPayload) Unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, _ []byte) {
		switch num {
		case 1:
			p.Enable = protowire.DecodeBool(v)
		case 2:
			p.DurationSec = uint32(v)
		}
	})
}

// HeartbeatPayload is the payload of a heartbeat event
type HeartbeatPayload struct {
	Beat uint32
}

// Marshal encodes the payload
func (p HeartbeatPayload) Marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Beat))
	return b
}

// Unmarshal decodes the payload
func (p *HeartbeatPayload) Unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, _ []byte) {
		if num == 1 {
			p.Beat = uint32(v)
		}
	})
}

// FwVersionPayload is the coprocessor firmware version
type FwVersionPayload struct {
	Major uint32
	Minor uint32
	Patch uint32
}

// String returns the version as major.minor.patch
func (p FwVersionPayload) String() string {
	return fmt.Sprintf("%d.%d.%d", p.Major, p.Minor, p.Patch)
}

// Marshal encodes the payload
func (p FwVersionPayload) Marshal() []byte {
	var b []byte
	for i, v := range []uint32{p.Major, p.Minor, p.Patch} {
		b = protowire.AppendTag(b, protowire.Number(i+1), protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

// Unmarshal decodes the payload
func (p *FwVersionPayload) Unmarshal(b []byte) error {
	return consumeFields(b, func(num protowire.Number, v uint64, _ []byte) {
		switch num {
		case 1:
			p.Major = uint32(v)
		case 2:
			p.Minor = uint32(v)
		case 3:
			p.Patch = uint32(v)
		}
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// consumeFields walks all fields of a protobuf encoded message. Varint fields
// are reported with their value, bytes fields with their raw content, all
// other wire types are skipped.
func consumeFields(b []byte, fn func(num protowire.Number, v uint64, raw []byte)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid payload tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("invalid varint in field %d: %w", num, protowire.ParseError(m))
			}
			fn(num, v, nil)
			b = b[m:]
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("invalid bytes in field %d: %w", num, protowire.ParseError(m))
			}
			fn(num, 0, v)
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("invalid field %d: %w", num, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return nil
}
