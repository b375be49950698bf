package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/hRPC/rpc/codec"
	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/ValentinKolb/hRPC/rpc/transport"
)

// --------------------------------------------------------------------------
// Fakes
// --------------------------------------------------------------------------

// fakeTransport is an in-memory transport.ITransport driven by the test
type fakeTransport struct {
	sent      chan []byte
	inbound   chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	failSend  atomic.Bool
	openErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sent:    make(chan []byte, 256),
		inbound: make(chan []byte, 256),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) Open() error {
	return f.openErr
}

func (f *fakeTransport) Send(data []byte) error {
	if f.failSend.Load() {
		return errors.New("link down")
	}
	select {
	case f.sent <- data:
		return nil
	case <-f.closed:
		return transport.ErrClosed
	}
}

func (f *fakeTransport) Receive() ([]byte, error) {
	select {
	case data := <-f.inbound:
		return data, nil
	case <-f.closed:
		return nil, transport.ErrClosed
	}
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

// failingCodec refuses to encode requests
type failingCodec struct {
	codec.ICodec
}

func (failingCodec) Serialize(common.Message) ([]byte, error) {
	return nil, errors.New("cannot encode")
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

var testCodec = codec.NewJSONCodec()

func testConfig() common.EngineConfig {
	return common.EngineConfig{
		MaxSync:        5,
		MaxAsync:       5,
		DefaultTimeout: time.Second,
		PollInterval:   time.Millisecond,
	}
}

// startEngine creates and initializes an engine on a fake transport
func startEngine(t *testing.T, config common.EngineConfig) (*Engine, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	e := New(config, ft, testCodec)
	if err := e.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { e.Deinit() })
	return e, ft
}

// recvRequest returns the next request written by the engine. Safe to call from any goroutine.
func (f *fakeTransport) recvRequest() (common.Message, error) {
	select {
	case data := <-f.sent:
		var msg common.Message
		if err := testCodec.Deserialize(data, &msg); err != nil {
			return msg, fmt.Errorf("engine sent undecodable data: %w", err)
		}
		if msg.MsgType != common.MsgTypeRequest {
			return msg, fmt.Errorf("engine sent %s instead of a request", msg.MsgType)
		}
		return msg, nil
	case <-time.After(time.Second):
		return common.Message{}, errors.New("timeout waiting for request")
	}
}

// respond answers req with status and payload. Safe to call from any goroutine.
func (f *fakeTransport) respond(req common.Message, status common.StatusCode, payload []byte) error {
	data, err := testCodec.Serialize(common.NewResponseMessage(common.MessageKind(req.Kind), req.UID, status, payload))
	if err != nil {
		return err
	}
	f.inbound <- data
	return nil
}

// nextRequest returns the next request written by the engine
func (f *fakeTransport) nextRequest(t *testing.T) common.Message {
	t.Helper()
	msg, err := f.recvRequest()
	if err != nil {
		t.Fatal(err)
	}
	return msg
}

// inject delivers a message from the coprocessor to the engine
func (f *fakeTransport) inject(t *testing.T, msg common.Message) {
	t.Helper()
	data, err := testCodec.Serialize(msg)
	if err != nil {
		t.Fatalf("failed to encode injected message: %v", err)
	}
	f.inbound <- data
}

// reply answers a request with status and payload
func (f *fakeTransport) reply(t *testing.T, req common.Message, status common.StatusCode, payload []byte) {
	t.Helper()
	if err := f.respond(req, status, payload); err != nil {
		t.Fatal(err)
	}
}

// answerNext answers the next request from a separate goroutine
func (f *fakeTransport) answerNext(t *testing.T, status common.StatusCode, payload []byte, check func(req common.Message)) {
	go func() {
		req, err := f.recvRequest()
		if err != nil {
			t.Error(err)
			return
		}
		if check != nil {
			check(req)
		}
		if err := f.respond(req, status, payload); err != nil {
			t.Error(err)
		}
	}()
}

// serve answers every request with an echo of its payload until the transport closes
func (f *fakeTransport) serve() {
	for {
		select {
		case data := <-f.sent:
			var msg common.Message
			if err := testCodec.Deserialize(data, &msg); err != nil {
				continue
			}
			resp, _ := testCodec.Serialize(common.NewResponseMessage(common.MessageKind(msg.Kind), msg.UID, common.StatusOK, msg.Payload))
			select {
			case f.inbound <- resp:
			case <-f.closed:
				return
			}
		case <-f.closed:
			return
		}
	}
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// responseCollector is an async callback that records every response
type responseCollector struct {
	ch chan common.Response
}

func newCollector() *responseCollector {
	return &responseCollector{ch: make(chan common.Response, 64)}
}

func (c *responseCollector) callback(resp common.Response) {
	c.ch <- resp
}

func (c *responseCollector) next(t *testing.T) common.Response {
	t.Helper()
	select {
	case resp := <-c.ch:
		return resp
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for callback")
		return common.Response{}
	}
}

func (c *responseCollector) expectNone(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case resp := <-c.ch:
		t.Fatalf("unexpected extra callback: %+v", resp)
	case <-time.After(d):
	}
}

// --------------------------------------------------------------------------
// Round trips
// --------------------------------------------------------------------------

func TestSyncRoundTrip(t *testing.T) {
	e, ft := startEngine(t, testConfig())

	payload := common.WifiModePayload{Mode: common.WifiModeSTA}.Marshal()
	ft.answerNext(t, common.StatusOK, payload, func(req common.Message) {
		if common.MessageKind(req.Kind) != common.KindGetWifiMode {
			t.Errorf("unexpected kind %d", req.Kind)
		}
		if req.UID == 0 {
			t.Error("uid 0 must never be sent")
		}
	})

	resp, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindGetWifiMode})
	if err != nil {
		t.Fatalf("SubmitSync failed: %v", err)
	}
	if !resp.OK() || resp.Kind != common.KindGetWifiMode || !bytes.Equal(resp.Payload, payload) {
		t.Fatalf("unexpected response %+v", resp)
	}

	if s, a := e.Pending(); s != 0 || a != 0 {
		t.Errorf("expected empty tables, got %d/%d", s, a)
	}
}

func TestAsyncRoundTrip(t *testing.T) {
	e, ft := startEngine(t, testConfig())
	c := newCollector()

	if err := e.SubmitAsync(common.Request{Kind: common.KindGetCoprocessorFwVersion}, c.callback); err != nil {
		t.Fatalf("SubmitAsync failed: %v", err)
	}

	req := ft.nextRequest(t)
	fw := common.FwVersionPayload{Major: 1, Minor: 2, Patch: 3}.Marshal()
	ft.reply(t, req, common.StatusOK, fw)

	resp := c.next(t)
	if !resp.OK() || resp.UID != req.UID || !bytes.Equal(resp.Payload, fw) {
		t.Fatalf("unexpected response %+v", resp)
	}
	c.expectNone(t, 20*time.Millisecond)
}

func TestRemoteStatusPassedThrough(t *testing.T) {
	e, ft := startEngine(t, testConfig())

	ft.answerNext(t, common.StatusCode(0x3007), nil, nil)

	resp, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindWifiConnect})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != 0x3007 {
		t.Fatalf("expected remote status 0x3007, got %s", resp.Status)
	}
	var statusErr *common.StatusError
	if !errors.As(resp.Err(), &statusErr) {
		t.Fatalf("expected *StatusError, got %v", resp.Err())
	}
}

// TestConcurrentOutOfOrder answers requests in reverse order
func TestConcurrentOutOfOrder(t *testing.T) {
	config := testConfig()
	config.MaxSync = 4
	e, ft := startEngine(t, config)

	const n = 4
	go func() {
		reqs := make([]common.Message, 0, n)
		for i := 0; i < n; i++ {
			req, err := ft.recvRequest()
			if err != nil {
				t.Error(err)
				return
			}
			reqs = append(reqs, req)
		}
		for i := n - 1; i >= 0; i-- {
			ft.respond(reqs[i], common.StatusOK, reqs[i].Payload)
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte{byte(i)}
			resp, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindCustom, Payload: payload})
			if err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			if !bytes.Equal(resp.Payload, payload) {
				t.Errorf("request %d got response of another request: %v", i, resp.Payload)
			}
		}(i)
	}
	wg.Wait()
}

// --------------------------------------------------------------------------
// Correlation ids
// --------------------------------------------------------------------------

func TestUniqueIDs(t *testing.T) {
	config := testConfig()
	config.MaxAsync = 64
	e, ft := startEngine(t, config)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.SubmitAsync(common.Request{Kind: common.KindWifiGetPs}, func(common.Response) {}); err != nil {
				t.Errorf("SubmitAsync: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint32]bool, n)
	for i := 0; i < n; i++ {
		req := ft.nextRequest(t)
		if req.UID == 0 {
			t.Fatal("uid 0 sent")
		}
		if seen[req.UID] {
			t.Fatalf("uid %d sent twice", req.UID)
		}
		seen[req.UID] = true
	}
}

func TestIDsSkipLiveEntriesAfterWrap(t *testing.T) {
	e, ft := startEngine(t, testConfig())
	c := newCollector()

	// the first request gets uid 1 and stays pending
	if err := e.SubmitAsync(common.Request{Kind: common.KindWifiGetPs}, c.callback); err != nil {
		t.Fatal(err)
	}
	first := ft.nextRequest(t)
	if first.UID != 1 {
		t.Fatalf("expected uid 1, got %d", first.UID)
	}

	// wrap the generator so the next draw would be 1 again
	e.uids.last.Store(^uint32(0))
	if err := e.SubmitAsync(common.Request{Kind: common.KindWifiGetPs}, c.callback); err != nil {
		t.Fatal(err)
	}
	second := ft.nextRequest(t)
	if second.UID != 2 {
		t.Fatalf("expected uid 2 after skipping the live uid 1, got %d", second.UID)
	}
}

// --------------------------------------------------------------------------
// Resolution and timeouts
// --------------------------------------------------------------------------

func TestDuplicateResponseDropped(t *testing.T) {
	e, ft := startEngine(t, testConfig())
	c := newCollector()

	if err := e.SubmitAsync(common.Request{Kind: common.KindGetMACAddress}, c.callback); err != nil {
		t.Fatal(err)
	}
	req := ft.nextRequest(t)
	ft.reply(t, req, common.StatusOK, []byte{1})
	ft.reply(t, req, common.StatusOK, []byte{2})

	resp := c.next(t)
	if resp.Payload[0] != 1 {
		t.Fatalf("expected first response, got %+v", resp)
	}
	c.expectNone(t, 30*time.Millisecond)
	waitFor(t, "stale counter", func() bool { return e.metrics.stale.Get() == 1 })
}

func TestUnknownResponseDropped(t *testing.T) {
	e, ft := startEngine(t, testConfig())

	ft.inject(t, common.NewResponseMessage(common.KindGetWifiMode, 4711, common.StatusOK, nil))
	waitFor(t, "stale counter", func() bool { return e.metrics.stale.Get() == 1 })

	// the engine keeps working
	go ft.serve()
	resp, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindGetWifiMode})
	if err != nil || !resp.OK() {
		t.Fatalf("unexpected result %+v, %v", resp, err)
	}
}

func TestSyncTimeout(t *testing.T) {
	e, ft := startEngine(t, testConfig())

	start := time.Now()
	resp, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindWifiStart, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("timeout must not be a hard error: %v", err)
	}
	if resp.Status != common.StatusRequestTimedOut {
		t.Fatalf("expected timeout status, got %s", resp.Status)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %s, before the timeout", elapsed)
	}
	if s, _ := e.Pending(); s != 0 {
		t.Errorf("timed out request still pending")
	}

	// the late response finds no transaction
	req := ft.nextRequest(t)
	ft.reply(t, req, common.StatusOK, nil)
	waitFor(t, "stale counter", func() bool { return e.metrics.stale.Get() == 1 })
}

func TestAsyncTimeout(t *testing.T) {
	e, ft := startEngine(t, testConfig())
	c := newCollector()

	if err := e.SubmitAsync(common.Request{Kind: common.KindWifiStop, Timeout: 30 * time.Millisecond}, c.callback); err != nil {
		t.Fatal(err)
	}
	req := ft.nextRequest(t)

	resp := c.next(t)
	if resp.Status != common.StatusRequestTimedOut || resp.UID != req.UID || resp.Kind != common.KindWifiStop {
		t.Fatalf("unexpected timeout response %+v", resp)
	}

	ft.reply(t, req, common.StatusOK, nil)
	c.expectNone(t, 30*time.Millisecond)
}

func TestDefaultTimeout(t *testing.T) {
	config := testConfig()
	config.DefaultTimeout = 40 * time.Millisecond
	e, _ := startEngine(t, config)

	resp, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindWifiInit})
	if err != nil || resp.Status != common.StatusRequestTimedOut {
		t.Fatalf("expected timeout after default timeout, got %+v, %v", resp, err)
	}
}

// TestTimeoutExclusivity races responses against the watchdog
func TestTimeoutExclusivity(t *testing.T) {
	config := testConfig()
	config.MaxAsync = 32
	e, ft := startEngine(t, config)

	const n = 32
	var counts [n]atomic.Int32
	var total sync.WaitGroup
	total.Add(n)

	for i := 0; i < n; i++ {
		i := i
		err := e.SubmitAsync(common.Request{Kind: common.KindCustom, Timeout: 10 * time.Millisecond}, func(common.Response) {
			if counts[i].Add(1) == 1 {
				total.Done()
			}
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	// answer around the deadline
	for i := 0; i < n; i++ {
		req := ft.nextRequest(t)
		go func(req common.Message, delay time.Duration) {
			time.Sleep(delay)
			ft.respond(req, common.StatusOK, nil)
		}(req, time.Duration(i%20)*time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		total.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("not every request completed")
	}

	// give late responses and timers time to misbehave
	time.Sleep(50 * time.Millisecond)
	for i := range counts {
		if c := counts[i].Load(); c != 1 {
			t.Errorf("request %d completed %d times", i, c)
		}
	}
}

func TestContextCancel(t *testing.T) {
	e, _ := startEngine(t, testConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	resp, err := e.SubmitSync(ctx, common.Request{Kind: common.KindWifiScanStart, Timeout: time.Minute})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context error, got %v", err)
	}
	if resp.Status != common.StatusRequestTimedOut {
		t.Fatalf("expected timeout status, got %s", resp.Status)
	}
	if s, _ := e.Pending(); s != 0 {
		t.Error("cancelled request still pending")
	}
}

// --------------------------------------------------------------------------
// Capacity
// --------------------------------------------------------------------------

func TestSyncTableFull(t *testing.T) {
	config := testConfig()
	config.MaxSync = 1
	e, ft := startEngine(t, config)

	firstDone := make(chan common.Response, 1)
	go func() {
		resp, _ := e.SubmitSync(context.Background(), common.Request{Kind: common.KindGetWifiMode})
		firstDone <- resp
	}()
	req := ft.nextRequest(t)

	if _, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindGetWifiMode}); !errors.Is(err, ErrTableFull) {
		t.Fatalf("expected ErrTableFull, got %v", err)
	}

	// async requests use their own table
	if err := e.SubmitAsync(common.Request{Kind: common.KindGetWifiMode}, func(common.Response) {}); err != nil {
		t.Fatalf("async table must be independent: %v", err)
	}

	ft.reply(t, req, common.StatusOK, nil)
	<-firstDone

	// the slot is free again
	go ft.serve()
	if _, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindGetWifiMode}); err != nil {
		t.Fatalf("expected free slot after resolution: %v", err)
	}
}

func TestAsyncTableFull(t *testing.T) {
	config := testConfig()
	config.MaxAsync = 2
	e, ft := startEngine(t, config)

	c := newCollector()
	for i := 0; i < 2; i++ {
		if err := e.SubmitAsync(common.Request{Kind: common.KindCustom}, c.callback); err != nil {
			t.Fatal(err)
		}
	}
	if err := e.SubmitAsync(common.Request{Kind: common.KindCustom}, c.callback); !errors.Is(err, ErrTableFull) {
		t.Fatalf("expected ErrTableFull, got %v", err)
	}
	if e.metrics.tableFull.Get() != 1 {
		t.Errorf("expected one table full rejection, got %d", e.metrics.tableFull.Get())
	}

	// the accepted requests are untouched by the rejection
	uids := make(map[uint32]bool)
	for i := 0; i < 2; i++ {
		req := ft.nextRequest(t)
		uids[req.UID] = true
		ft.reply(t, req, common.StatusOK, []byte("ok"))
	}
	for i := 0; i < 2; i++ {
		resp := c.next(t)
		if !resp.OK() || string(resp.Payload) != "ok" || !uids[resp.UID] {
			t.Errorf("unexpected response %+v", resp)
		}
		delete(uids, resp.UID)
	}
	c.expectNone(t, 20*time.Millisecond)

	if _, asyncN := e.Pending(); asyncN != 0 {
		t.Errorf("expected empty async table, got %d entries", asyncN)
	}
}

// --------------------------------------------------------------------------
// Failures on the outbound path
// --------------------------------------------------------------------------

func TestSendFailure(t *testing.T) {
	e, ft := startEngine(t, testConfig())
	ft.failSend.Store(true)

	resp, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindSetWifiMode})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != common.StatusTransportSendFailed || resp.Kind != common.KindSetWifiMode {
		t.Fatalf("expected send failure, got %+v", resp)
	}

	c := newCollector()
	if err := e.SubmitAsync(common.Request{Kind: common.KindSetWifiMode, Timeout: 20 * time.Millisecond}, c.callback); err != nil {
		t.Fatal(err)
	}
	if resp := c.next(t); resp.Status != common.StatusTransportSendFailed {
		t.Fatalf("expected send failure, got %+v", resp)
	}
	// the watchdog was stopped with the failure
	c.expectNone(t, 50*time.Millisecond)

	if s, a := e.Pending(); s != 0 || a != 0 {
		t.Errorf("failed requests still pending: %d/%d", s, a)
	}
}

func TestEncodeFailure(t *testing.T) {
	ft := newFakeTransport()
	e := New(testConfig(), ft, failingCodec{testCodec})
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	defer e.Deinit()

	resp, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindOTAWrite})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != common.StatusEncodeFailed {
		t.Fatalf("expected encode failure, got %+v", resp)
	}
}

func TestFreeHookAfterSend(t *testing.T) {
	e, ft := startEngine(t, testConfig())
	go ft.serve()

	var calls atomic.Int32
	req := common.Request{Kind: common.KindOTAWrite, Payload: make([]byte, 128), FreeHook: func() { calls.Add(1) }}
	if _, err := e.SubmitSync(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	ft.failSend.Store(true)
	if _, err := e.SubmitSync(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	waitFor(t, "free hooks", func() bool { return calls.Load() == 2 })
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 2 {
		t.Fatalf("free hook ran %d times for 2 requests", calls.Load())
	}
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

func TestEventFanIn(t *testing.T) {
	e, ft := startEngine(t, testConfig())

	beats := make(chan uint32, 8)
	err := e.SubscribeEvent(common.EventHeartbeat, func(evt common.Event) {
		var hb common.HeartbeatPayload
		if err := hb.Unmarshal(evt.Payload); err != nil {
			t.Errorf("bad heartbeat payload: %v", err)
		}
		beats <- hb.Beat
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := uint32(1); i <= 3; i++ {
		ft.inject(t, common.NewEventMessage(common.EventHeartbeat, common.HeartbeatPayload{Beat: i}.Marshal()))
	}

	for want := uint32(1); want <= 3; want++ {
		select {
		case got := <-beats:
			if got != want {
				t.Fatalf("expected beat %d, got %d", want, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for beat %d", want)
		}
	}
}

func TestUnsubscribedEventDropped(t *testing.T) {
	e, ft := startEngine(t, testConfig())

	got := make(chan common.Event, 4)
	if err := e.SubscribeEvent(common.EventStaConnected, func(evt common.Event) { got <- evt }); err != nil {
		t.Fatal(err)
	}
	if err := e.UnsubscribeEvent(common.EventStaConnected); err != nil {
		t.Fatal(err)
	}

	ft.inject(t, common.NewEventMessage(common.EventStaConnected, nil))
	ft.inject(t, common.NewEventMessage(common.EventDhcpDnsStatus, nil))
	waitFor(t, "dropped events", func() bool { return e.metrics.eventsDropped.Get() == 2 })

	select {
	case evt := <-got:
		t.Fatalf("unsubscribed callback ran for %s", evt.Kind)
	default:
	}
}

func TestResubscribeReplacesCallback(t *testing.T) {
	e, ft := startEngine(t, testConfig())

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	e.SubscribeEvent(common.EventESPInit, func(common.Event) { first <- struct{}{} })
	e.SubscribeEvent(common.EventESPInit, func(common.Event) { second <- struct{}{} })

	ft.inject(t, common.NewEventMessage(common.EventESPInit, nil))
	select {
	case <-second:
	case <-first:
		t.Fatal("replaced callback ran")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventValidation(t *testing.T) {
	e := New(testConfig(), newFakeTransport(), testCodec)

	if err := e.SubscribeEvent(common.EventUnknown, func(common.Event) {}); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
	if err := e.SubscribeEvent(common.EventKind(200), func(common.Event) {}); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent for out of range kind, got %v", err)
	}
	if err := e.SubscribeEvent(common.EventHeartbeat, nil); !errors.Is(err, ErrNilCallback) {
		t.Errorf("expected ErrNilCallback, got %v", err)
	}
	if err := e.UnsubscribeEvent(common.EventKind(200)); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
	// unsubscribing an empty slot is fine
	if err := e.UnsubscribeEvent(common.EventHeartbeat); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestUnknownEventKindDropped(t *testing.T) {
	e, ft := startEngine(t, testConfig())

	ft.inject(t, common.Message{MsgType: common.MsgTypeEvent, Kind: 999})
	waitFor(t, "dropped event", func() bool { return e.metrics.eventsDropped.Get() == 1 })
}

// --------------------------------------------------------------------------
// Robustness
// --------------------------------------------------------------------------

func TestMalformedInboundDropped(t *testing.T) {
	e, ft := startEngine(t, testConfig())

	ft.inbound <- []byte("definitely not json")
	ft.inject(t, common.Message{MsgType: common.MsgTypeRequest, Kind: 1, UID: 3})
	waitFor(t, "malformed counter", func() bool { return e.metrics.malformed.Get() == 2 })

	go ft.serve()
	if resp, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindGetWifiMode}); err != nil || !resp.OK() {
		t.Fatalf("engine broken after malformed input: %+v, %v", resp, err)
	}
}

func TestCallbackPanicRecovered(t *testing.T) {
	e, ft := startEngine(t, testConfig())
	go ft.serve()

	err := e.SubmitAsync(common.Request{Kind: common.KindCustom}, func(common.Response) {
		panic("boom")
	})
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "recovered panic", func() bool { return e.metrics.callbackPanics.Get() == 1 })

	c := newCollector()
	if err := e.SubmitAsync(common.Request{Kind: common.KindCustom}, c.callback); err != nil {
		t.Fatal(err)
	}
	if resp := c.next(t); !resp.OK() {
		t.Fatalf("unexpected response after panic %+v", resp)
	}
}

func TestCallbacksSerialized(t *testing.T) {
	config := testConfig()
	config.MaxAsync = 16
	e, ft := startEngine(t, config)
	go ft.serve()

	var active, maxActive atomic.Int32
	var wg sync.WaitGroup
	cb := func(common.Response) {
		defer wg.Done()
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(time.Millisecond)
		active.Add(-1)
	}

	// mix responses and timeouts so callbacks come from different goroutines
	for i := 0; i < 16; i++ {
		wg.Add(1)
		timeout := time.Second
		if i%2 == 0 {
			timeout = time.Millisecond
		}
		if err := e.SubmitAsync(common.Request{Kind: common.KindCustom, Timeout: timeout}, cb); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	if maxActive.Load() != 1 {
		t.Fatalf("callbacks overlapped, max %d at once", maxActive.Load())
	}
}

func TestInvalidRequests(t *testing.T) {
	e, _ := startEngine(t, testConfig())

	if _, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindUnknown}); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
	if err := e.SubmitAsync(common.Request{Kind: common.MessageKind(5000)}, func(common.Response) {}); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
	if err := e.SubmitAsync(common.Request{Kind: common.KindCustom}, nil); !errors.Is(err, ErrNilCallback) {
		t.Errorf("expected ErrNilCallback, got %v", err)
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

func TestLifecycle(t *testing.T) {
	ft := newFakeTransport()
	e := New(testConfig(), ft, testCodec)

	if _, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindCustom}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady before Init, got %v", err)
	}
	if err := e.Deinit(); err != nil {
		t.Fatalf("Deinit before Init must be a no-op: %v", err)
	}

	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	if !e.Ready() {
		t.Fatal("engine not ready after Init")
	}
	if err := e.Init(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}

	if err := e.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
	if e.Ready() {
		t.Fatal("engine still ready after Deinit")
	}
	if err := e.Deinit(); err != nil {
		t.Fatalf("second Deinit must be a no-op: %v", err)
	}
	if err := e.Init(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := e.SubmitAsync(common.Request{Kind: common.KindCustom}, func(common.Response) {}); !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady after Deinit, got %v", err)
	}
}

func TestInitOpenFailure(t *testing.T) {
	ft := newFakeTransport()
	ft.openErr = errors.New("no device")
	e := New(testConfig(), ft, testCodec)

	if err := e.Init(); err == nil {
		t.Fatal("expected Init to fail")
	}
	if e.Ready() {
		t.Fatal("engine ready after failed Init")
	}

	// a later attempt may succeed
	ft.openErr = nil
	if err := e.Init(); err != nil {
		t.Fatalf("retry of Init failed: %v", err)
	}
	e.Deinit()
}

func TestDeinitCompletesPending(t *testing.T) {
	config := testConfig()
	config.DefaultTimeout = time.Minute
	ft := newFakeTransport()
	e := New(config, ft, testCodec)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}

	var hooks atomic.Int32
	hook := func() { hooks.Add(1) }

	syncDone := make(chan common.Response, 1)
	go func() {
		resp, _ := e.SubmitSync(context.Background(), common.Request{Kind: common.KindGetWifiMode, FreeHook: hook})
		syncDone <- resp
	}()
	ft.nextRequest(t)

	c := newCollector()
	if err := e.SubmitAsync(common.Request{Kind: common.KindWifiGetPs, FreeHook: hook}, c.callback); err != nil {
		t.Fatal(err)
	}
	ft.nextRequest(t)

	if err := e.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}

	select {
	case resp := <-syncDone:
		if resp.Status != common.StatusEngineStopped {
			t.Fatalf("expected engine stopped, got %+v", resp)
		}
	case <-time.After(time.Second):
		t.Fatal("sync caller still blocked after Deinit")
	}
	if resp := c.next(t); resp.Status != common.StatusEngineStopped {
		t.Fatalf("expected engine stopped, got %+v", resp)
	}
	if hooks.Load() != 2 {
		t.Fatalf("expected 2 free hooks, got %d", hooks.Load())
	}
	if s, a := e.Pending(); s != 0 || a != 0 {
		t.Fatalf("tables not empty after Deinit: %d/%d", s, a)
	}
}

// TestDeinitUnderLoad submits from many goroutines while the engine stops
func TestDeinitUnderLoad(t *testing.T) {
	config := testConfig()
	config.MaxSync = 8
	config.MaxAsync = 8
	ft := newFakeTransport()
	e := New(config, ft, testCodec)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	go ft.serve()

	var accepted, completed, hooks atomic.Int32
	var wg sync.WaitGroup
	stop := make(chan struct{})

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				req := common.Request{Kind: common.KindCustom, FreeHook: func() { hooks.Add(1) }}
				if w%2 == 0 {
					if _, err := e.SubmitSync(context.Background(), req); err == nil {
						accepted.Add(1)
						completed.Add(1)
					}
				} else if err := e.SubmitAsync(req, func(common.Response) { completed.Add(1) }); err == nil {
					accepted.Add(1)
				}
			}
		}(w)
	}

	time.Sleep(20 * time.Millisecond)
	if err := e.Deinit(); err != nil {
		t.Fatalf("Deinit: %v", err)
	}
	close(stop)
	wg.Wait()

	if accepted.Load() != completed.Load() {
		t.Fatalf("%d requests accepted but %d completed", accepted.Load(), completed.Load())
	}
	if accepted.Load() != hooks.Load() {
		t.Fatalf("%d requests accepted but %d free hooks ran", accepted.Load(), hooks.Load())
	}
}

// TestDeinitFromCallback stops the engine from an event callback through a new goroutine
func TestDeinitFromCallback(t *testing.T) {
	e, ft := startEngine(t, testConfig())

	c := newCollector()
	if err := e.SubmitAsync(common.Request{Kind: common.KindGetWifiMode}, c.callback); err != nil {
		t.Fatal(err)
	}
	ft.nextRequest(t)

	stopped := make(chan error, 1)
	if err := e.SubscribeEvent(common.EventESPInit, func(common.Event) {
		go func() { stopped <- e.Deinit() }()
	}); err != nil {
		t.Fatal(err)
	}
	ft.inject(t, common.NewEventMessage(common.EventESPInit, nil))

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Deinit: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Deinit started from a callback did not return")
	}
	if e.Ready() {
		t.Error("engine still ready after Deinit")
	}
	if resp := c.next(t); resp.Status != common.StatusEngineStopped {
		t.Errorf("expected engine stopped, got %+v", resp)
	}
}

func TestWriteMetrics(t *testing.T) {
	e, ft := startEngine(t, testConfig())
	go ft.serve()

	if _, err := e.SubmitSync(context.Background(), common.Request{Kind: common.KindGetWifiMode}); err != nil {
		t.Fatal(err)
	}

	var sb strings.Builder
	e.WriteMetrics(&sb)
	out := sb.String()
	for _, name := range []string{
		`hrpc_requests_submitted_total{mode="sync"} 1`,
		`hrpc_requests_sent_total 1`,
		`hrpc_pending_requests{table="sync"} 0`,
		`hrpc_round_trip_seconds`,
	} {
		if !strings.Contains(out, name) {
			t.Errorf("metrics output misses %q:\n%s", name, out)
		}
	}
}
