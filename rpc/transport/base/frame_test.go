package base

import (
	"bytes"
	"errors"
	"net"
	"testing"
	"time"
)

func TestFrameLayout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go writeFrame(client, EndpointResponse, []byte{0xaa, 0xbb})

	want := []byte{0x01, 0x06, 0x00, 'R', 'P', 'C', 'R', 's', 'p', 0x02, 0x02, 0x00, 0xaa, 0xbb}
	got := make([]byte, len(want))
	server.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := readFull(server, got); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("unexpected frame\n got: % x\nwant: % x", got, want)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		data     []byte
	}{
		{"response", EndpointResponse, []byte("hello")},
		{"event", EndpointEvent, []byte{1, 2, 3}},
		{"empty", EndpointResponse, []byte{}},
		{"max size", EndpointEvent, make([]byte, MaxFrameData)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := net.Pipe()
			defer a.Close()
			defer b.Close()

			errCh := make(chan error, 1)
			go func() { errCh <- writeFrame(a, tt.endpoint, tt.data) }()

			ep, data, err := readFrame(b, nil)
			if err != nil {
				t.Fatalf("readFrame: %v", err)
			}
			if ep != tt.endpoint || !bytes.Equal(data, tt.data) {
				t.Errorf("got %s/%d bytes, want %s/%d bytes", ep, len(data), tt.endpoint, len(tt.data))
			}
			if err := <-errCh; err != nil {
				t.Errorf("writeFrame: %v", err)
			}
		})
	}
}

func TestFrameTooLarge(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	if err := writeFrame(a, EndpointResponse, make([]byte, MaxFrameData+1)); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}
}

func TestMalformedFrames(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"wrong endpoint type", []byte{0x02, 0x06, 0x00, 'R', 'P', 'C', 'R', 's', 'p'}},
		{"wrong endpoint length", []byte{0x01, 0x05, 0x00, 'R', 'P', 'C', 'R', 's', 'p'}},
		{"unknown endpoint", []byte{0x01, 0x06, 0x00, 'R', 'P', 'C', 'X', 'y', 'z'}},
		{"wrong data type", []byte{0x01, 0x06, 0x00, 'R', 'P', 'C', 'E', 'v', 't', 0x01, 0x00, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := readFrame(bytes.NewReader(tt.raw), nil)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Errorf("expected ErrMalformedFrame, got %v", err)
			}
		})
	}

	// a frame cut off in the data record is an io error, not a malformed frame
	truncated := []byte{0x01, 0x06, 0x00, 'R', 'P', 'C', 'R', 's', 'p', 0x02, 0x05, 0x00, 1, 2}
	if _, _, err := readFrame(bytes.NewReader(truncated), nil); err == nil || errors.Is(err, ErrMalformedFrame) {
		t.Errorf("expected io error for truncated frame, got %v", err)
	}
}

func TestConnConcurrentWriters(t *testing.T) {
	a, b := net.Pipe()
	writer := NewConn(a, time.Second)
	reader := NewConn(b, 0)
	defer writer.Close()
	defer reader.Close()

	const writers = 8
	const framesPerWriter = 50

	for w := 0; w < writers; w++ {
		go func(w int) {
			for i := 0; i < framesPerWriter; i++ {
				if err := writer.WriteFrame(EndpointResponse, []byte{byte(w), byte(i)}); err != nil {
					t.Errorf("writer %d: %v", w, err)
					return
				}
			}
		}(w)
	}

	// frames of one writer must arrive complete and in order
	next := make([]int, writers)
	for n := 0; n < writers*framesPerWriter; n++ {
		_, data, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if len(data) != 2 {
			t.Fatalf("interleaved frame: % x", data)
		}
		w, i := int(data[0]), int(data[1])
		if i != next[w] {
			t.Fatalf("writer %d: expected frame %d, got %d", w, next[w], i)
		}
		next[w]++
	}
}

// readFull reads exactly len(buf) bytes
func readFull(conn net.Conn, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func TestConnEmptyFrames(t *testing.T) {
	a, b := net.Pipe()
	writer := NewConn(a, time.Second)
	reader := NewConn(b, 0)
	defer writer.Close()
	defer reader.Close()

	// empty frames must not leave the writer waiting for a read of zero bytes
	done := make(chan error, 1)
	go func() {
		for _, data := range [][]byte{nil, {}, []byte("after")} {
			if err := writer.WriteFrame(EndpointEvent, data); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for _, want := range []string{"", "", "after"} {
		_, data, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(data) != want {
			t.Fatalf("expected %q, got %q", want, data)
		}
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("writer blocked after the last frame was read")
	}
}
