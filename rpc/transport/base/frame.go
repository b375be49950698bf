package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
)

/*
 Every message is wrapped in two TLV records, lengths are 16 bit little endian:

	| 0x01 | len | endpoint name | 0x02 | len | data |

 The host always writes the response endpoint, the coprocessor uses the
 response endpoint for responses and the event endpoint for events.
*/

const (
	tlvTypeEndpoint byte = 0x01
	tlvTypeData     byte = 0x02

	// EndpointResponse is the endpoint name of requests and responses
	EndpointResponse = "RPCRsp"
	// EndpointEvent is the endpoint name of unsolicited events
	EndpointEvent = "RPCEvt"

	// MaxFrameData is the largest message a single frame can carry
	MaxFrameData = math.MaxUint16

	// both endpoint names have the same length
	endpointLen = len(EndpointResponse)
	tlvHeaderLen = 3
)

var (
	// ErrFrameTooLarge is returned when the data does not fit into one frame
	ErrFrameTooLarge = errors.New("frame data exceeds 65535 bytes")
	// ErrMalformedFrame is returned for frames not following the TLV layout
	ErrMalformedFrame = errors.New("malformed frame")
)

// writeFrame writes one frame with a single write call
func writeFrame(conn net.Conn, endpoint string, data []byte) error {
	if len(data) > MaxFrameData {
		return ErrFrameTooLarge
	}
	if len(endpoint) != endpointLen {
		return fmt.Errorf("invalid endpoint name %q", endpoint)
	}

	// one buffer, one write: an empty data record must not turn into a
	// zero length write, which blocks on synchronous conns like net.Pipe
	frame := make([]byte, 0, 2*tlvHeaderLen+endpointLen+len(data))
	frame = append(frame, tlvTypeEndpoint)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(endpointLen))
	frame = append(frame, endpoint...)
	frame = append(frame, tlvTypeData)
	frame = binary.LittleEndian.AppendUint16(frame, uint16(len(data)))
	frame = append(frame, data...)

	_, err := conn.Write(frame)
	return err
}

// readFrame reads one frame. hdr is a scratch buffer for the header, the
// returned data is always freshly allocated because it is handed to other goroutines.
func readFrame(r io.Reader, hdr []byte) (string, []byte, error) {
	if len(hdr) < tlvHeaderLen+endpointLen {
		hdr = make([]byte, tlvHeaderLen+endpointLen)
	}

	// endpoint record
	if _, err := io.ReadFull(r, hdr[:tlvHeaderLen+endpointLen]); err != nil {
		return "", nil, err
	}
	if hdr[0] != tlvTypeEndpoint {
		return "", nil, fmt.Errorf("%w: expected endpoint type 0x%02x, got 0x%02x", ErrMalformedFrame, tlvTypeEndpoint, hdr[0])
	}
	if n := binary.LittleEndian.Uint16(hdr[1:3]); int(n) != endpointLen {
		return "", nil, fmt.Errorf("%w: endpoint length %d", ErrMalformedFrame, n)
	}

	var endpoint string
	switch name := string(hdr[tlvHeaderLen : tlvHeaderLen+endpointLen]); name {
	case EndpointResponse:
		endpoint = EndpointResponse
	case EndpointEvent:
		endpoint = EndpointEvent
	default:
		return "", nil, fmt.Errorf("%w: unknown endpoint %q", ErrMalformedFrame, name)
	}

	// data record
	if _, err := io.ReadFull(r, hdr[:tlvHeaderLen]); err != nil {
		return "", nil, err
	}
	if hdr[0] != tlvTypeData {
		return "", nil, fmt.Errorf("%w: expected data type 0x%02x, got 0x%02x", ErrMalformedFrame, tlvTypeData, hdr[0])
	}

	data := make([]byte, binary.LittleEndian.Uint16(hdr[1:3]))
	if _, err := io.ReadFull(r, data); err != nil {
		return "", nil, err
	}
	return endpoint, data, nil
}
