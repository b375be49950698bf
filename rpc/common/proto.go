package common

import (
	"encoding/json"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Message Structure (wire envelope)
// --------------------------------------------------------------------------

// Message is the envelope exchanged between host and coprocessor.
// Codecs only ever see Messages; the engine converts them to and from
// Requests, Responses and Events.
type Message struct {
	// Type of message (request, response or event)
	MsgType MsgType `json:"msg_type"`

	// Kind is a MessageKind for requests/responses and an EventKind for events
	Kind uint16 `json:"kind"`

	// UID links a response to its request. Always 0 for events
	UID uint32 `json:"uid,omitempty"`

	// Status of a response or event, StatusOK if everything went well
	Status int32 `json:"status,omitempty"`

	// Payload is opaque to the engine
	Payload []byte `json:"payload,omitempty"`
}

// NewRequestMessage creates the wire message for a request with the given uid
func NewRequestMessage(req Request, uid uint32) Message {
	return Message{
		MsgType: MsgTypeRequest,
		Kind:    uint16(req.Kind),
		UID:     uid,
		Payload: req.Payload,
	}
}

// NewResponseMessage creates the wire message for a response
func NewResponseMessage(kind MessageKind, uid uint32, status StatusCode, payload []byte) Message {
	return Message{
		MsgType: MsgTypeResponse,
		Kind:    uint16(kind),
		UID:     uid,
		Status:  int32(status),
		Payload: payload,
	}
}

// NewEventMessage creates the wire message for an unsolicited event
func NewEventMessage(kind EventKind, payload []byte) Message {
	return Message{
		MsgType: MsgTypeEvent,
		Kind:    uint16(kind),
		Payload: payload,
	}
}

// ToResponse converts a response message
func (m Message) ToResponse() Response {
	return Response{
		Kind:    MessageKind(m.Kind),
		UID:     m.UID,
		Status:  StatusCode(m.Status),
		Payload: m.Payload,
	}
}

// ToEvent converts an event message
func (m Message) ToEvent() Event {
	return Event{
		Kind:    EventKind(m.Kind),
		Status:  StatusCode(m.Status),
		Payload: m.Payload,
	}
}

// --------------------------------------------------------------------------
// Request / Response / Event
// --------------------------------------------------------------------------

// Request is what a caller hands to the engine. The correlation id is
// assigned by the engine and is intentionally not part of this struct.
type Request struct {
	Kind    MessageKind
	Payload []byte

	// Timeout for the response. Zero means EngineConfig.DefaultTimeout
	Timeout time.Duration

	// FreeHook is called exactly once when the engine no longer needs the request
	FreeHook func()
}

// Response is the single terminal outcome of a request. It is either decoded
// from the coprocessor or synthesized by the engine (timeout, send failure, ...)
type Response struct {
	Kind    MessageKind
	UID     uint32
	Status  StatusCode
	Payload []byte
}

// OK reports whether the response carries StatusOK
func (r Response) OK() bool {
	return r.Status == StatusOK
}

// Err returns nil for successful responses and a *StatusError otherwise
func (r Response) Err() error {
	if r.OK() {
		return nil
	}
	return &StatusError{Kind: r.Kind, Status: r.Status}
}

// Event is an unsolicited message from the coprocessor
type Event struct {
	Kind    EventKind
	Status  StatusCode
	Payload []byte
}

// ResponseCallback receives the response of an asynchronous request
type ResponseCallback func(resp Response)

// EventCallback receives events of a subscribed kind
type EventCallback func(evt Event)

// StatusError is the error form of a non OK response
type StatusError struct {
	Kind   MessageKind
	Status StatusCode
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %s", e.Kind, e.Status)
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MsgType tells requests, responses and events apart on the wire
type MsgType uint8

const (
	MsgTypeUnknown MsgType = iota
	MsgTypeRequest
	MsgTypeResponse
	MsgTypeEvent
)

// String returns the string representation of a MsgType
func (t MsgType) String() string {
	switch t {
	case MsgTypeRequest:
		return "request"
	case MsgTypeResponse:
		return "response"
	case MsgTypeEvent:
		return "event"
	default:
		return "unknown"
	}
}

// MarshalJSON serializes the MsgType as a string
func (t MsgType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON parses the string form written by MarshalJSON
func (t *MsgType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "request":
		*t = MsgTypeRequest
	case "response":
		*t = MsgTypeResponse
	case "event":
		*t = MsgTypeEvent
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}
	return nil
}

// --------------------------------------------------------------------------
// Message Kinds (request / response)
// --------------------------------------------------------------------------

// MessageKind identifies the remote procedure of a request and its response
type MessageKind uint16

const (
	KindUnknown MessageKind = iota

	// Station / softAP identity

	KindGetMACAddress
	KindSetMACAddress
	KindGetWifiMode
	KindSetWifiMode

	// Power save

	KindWifiSetPs
	KindWifiGetPs

	// Wi-Fi driver control

	KindWifiInit
	KindWifiDeinit
	KindWifiStart
	KindWifiStop
	KindWifiConnect
	KindWifiDisconnect
	KindWifiScanStart
	KindWifiSetMaxTxPower
	KindWifiGetMaxTxPower

	// Coprocessor management

	KindConfigHeartbeat
	KindGetCoprocessorFwVersion
	KindOTABegin
	KindOTAWrite
	KindOTAEnd

	// Custom operations

	KindCustom

	kindMax
)

var messageKindNames = [...]string{
	KindUnknown:                 "unknown",
	KindGetMACAddress:           "getMACAddress",
	KindSetMACAddress:           "setMACAddress",
	KindGetWifiMode:             "getWifiMode",
	KindSetWifiMode:             "setWifiMode",
	KindWifiSetPs:               "wifiSetPs",
	KindWifiGetPs:               "wifiGetPs",
	KindWifiInit:                "wifiInit",
	KindWifiDeinit:              "wifiDeinit",
	KindWifiStart:               "wifiStart",
	KindWifiStop:                "wifiStop",
	KindWifiConnect:             "wifiConnect",
	KindWifiDisconnect:          "wifiDisconnect",
	KindWifiScanStart:           "wifiScanStart",
	KindWifiSetMaxTxPower:       "wifiSetMaxTxPower",
	KindWifiGetMaxTxPower:       "wifiGetMaxTxPower",
	KindConfigHeartbeat:         "configHeartbeat",
	KindGetCoprocessorFwVersion: "getCoprocessorFwVersion",
	KindOTABegin:                "otaBegin",
	KindOTAWrite:                "otaWrite",
	KindOTAEnd:                  "otaEnd",
	KindCustom:                  "custom",
}

// Valid reports whether k names a known procedure
func (k MessageKind) Valid() bool {
	return k > KindUnknown && k < kindMax
}

// String returns the string representation of a MessageKind
func (k MessageKind) String() string {
	if k < kindMax {
		return messageKindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}

// ParseMessageKind is the inverse of MessageKind.String
func ParseMessageKind(s string) (MessageKind, error) {
	for k := KindUnknown + 1; k < kindMax; k++ {
		if messageKindNames[k] == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("unknown message kind: %s", s)
}

// --------------------------------------------------------------------------
// Event Kinds
// --------------------------------------------------------------------------

// EventKind identifies an unsolicited event
type EventKind uint16

const (
	EventUnknown EventKind = iota
	EventESPInit
	EventHeartbeat
	EventAPStaConnected
	EventAPStaDisconnected
	EventWifiEventNoArgs
	EventStaScanDone
	EventStaConnected
	EventStaDisconnected
	EventDhcpDnsStatus

	eventMax
)

// NumEventKinds is the size of a table indexed by EventKind.Index
const NumEventKinds = int(eventMax) - 1

var eventKindNames = [...]string{
	EventUnknown:           "unknown",
	EventESPInit:           "espInit",
	EventHeartbeat:         "heartbeat",
	EventAPStaConnected:    "apStaConnected",
	EventAPStaDisconnected: "apStaDisconnected",
	EventWifiEventNoArgs:   "wifiEventNoArgs",
	EventStaScanDone:       "staScanDone",
	EventStaConnected:      "staConnected",
	EventStaDisconnected:   "staDisconnected",
	EventDhcpDnsStatus:     "dhcpDnsStatus",
}

// Valid reports whether k names a known event
func (k EventKind) Valid() bool {
	return k > EventUnknown && k < eventMax
}

// Index returns the dense table index of k, or -1 if k is not valid
func (k EventKind) Index() int {
	if !k.Valid() {
		return -1
	}
	return int(k) - 1
}

// String returns the string representation of an EventKind
func (k EventKind) String() string {
	if k < eventMax {
		return eventKindNames[k]
	}
	return fmt.Sprintf("event(%d)", uint16(k))
}

// ParseEventKind is the inverse of EventKind.String
func ParseEventKind(s string) (EventKind, error) {
	for k := EventUnknown + 1; k < eventMax; k++ {
		if eventKindNames[k] == s {
			return k, nil
		}
	}
	return EventUnknown, fmt.Errorf("unknown event kind: %s", s)
}

// --------------------------------------------------------------------------
// Status Codes
// --------------------------------------------------------------------------

// StatusCode is the result of a remote call. Values other than the ones
// below are coprocessor error codes and are passed through unchanged.
type StatusCode int32

const (
	StatusOK StatusCode = 0

	// statuses synthesized on the host side (same range as the coprocessor's RPC_ERR_*)

	StatusRequestTimedOut     StatusCode = 0x2f00 + 1
	StatusTransportSendFailed StatusCode = 0x2f00 + 2
	StatusEncodeFailed        StatusCode = 0x2f00 + 3
	StatusEngineStopped       StatusCode = 0x2f00 + 4
	StatusUnsupported         StatusCode = 0x2f00 + 5
)

// String returns the string representation of a StatusCode
func (s StatusCode) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRequestTimedOut:
		return "request timed out"
	case StatusTransportSendFailed:
		return "transport send failed"
	case StatusEncodeFailed:
		return "encode failed"
	case StatusEngineStopped:
		return "engine stopped"
	case StatusUnsupported:
		return "unsupported message"
	default:
		return fmt.Sprintf("remote error 0x%x", int32(s))
	}
}
