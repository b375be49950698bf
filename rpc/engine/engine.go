package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/hRPC/lib/util"
	"github.com/ValentinKolb/hRPC/rpc/codec"
	"github.com/ValentinKolb/hRPC/rpc/common"
	"github.com/ValentinKolb/hRPC/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("engine")

// engineState is the lifecycle state of an engine
type engineState int32

const (
	stateInactive engineState = iota
	stateReady
	stateClosed
)

func (s engineState) String() string {
	switch s {
	case stateInactive:
		return "inactive"
	case stateReady:
		return "ready"
	default:
		return "closed"
	}
}

// callMode tells synchronous and asynchronous requests apart
type callMode uint8

const (
	modeSync callMode = iota
	modeAsync
)

// outboundCall is one accepted request waiting for the outbound pump
type outboundCall struct {
	req     common.Request
	uid     uint32
	mode    callMode
	timeout time.Duration
}

// Engine correlates requests with responses and dispatches events for one
// link to a coprocessor. Requests are queued by any number of goroutines and
// written by a single outbound pump. A single inbound pump reads the link and
// resolves pending requests or runs event callbacks.
type Engine struct {
	config    common.EngineConfig
	transport transport.ITransport
	codec     codec.ICodec

	uids     uidGenerator
	registry *registry
	events   eventRegistry
	metrics  *engineMetrics

	// lifecycle orders submissions (read lock) against Init and Deinit (write lock)
	lifecycle sync.RWMutex
	state     atomic.Int32
	queue     atomic.Pointer[util.LockFreeMPSC[outboundCall]]
	stopCh    chan struct{}
	pumps     *errgroup.Group

	// callbackMu serializes all user callbacks
	callbackMu sync.Mutex
}

// New creates an engine for the given link. Unset config fields get their defaults.
// The engine does nothing until Init is called.
func New(config common.EngineConfig, t transport.ITransport, c codec.ICodec) *Engine {
	e := &Engine{
		config:    config.WithDefaults(),
		transport: t,
		codec:     c,
	}
	e.registry = newRegistry(e.config.MaxSync, e.config.MaxAsync, e.invokeResponse)
	e.metrics = newEngineMetrics(e)
	e.registry.observe = e.metrics.roundTrip.UpdateDuration
	return e
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Init opens the transport, starts both pumps and makes the engine ready
// for submissions. An engine can be initialized only once.
func (e *Engine) Init() error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	switch engineState(e.state.Load()) {
	case stateReady:
		return ErrAlreadyInitialized
	case stateClosed:
		return ErrClosed
	}

	if err := e.transport.Open(); err != nil {
		return fmt.Errorf("failed to open transport: %w", err)
	}

	e.queue.Store(util.NewLockFreeMPSC[outboundCall]())
	e.stopCh = make(chan struct{})
	e.pumps = new(errgroup.Group)
	e.pumps.Go(e.runOutbound)
	e.pumps.Go(e.runInbound)

	e.state.Store(int32(stateReady))
	Logger.Infof("Engine ready (%d sync / %d async slots, default timeout %s)",
		e.config.MaxSync, e.config.MaxAsync, e.config.DefaultTimeout)
	return nil
}

// Deinit stops the engine. Every request still pending completes with
// StatusEngineStopped and every outstanding FreeHook runs before Deinit
// returns. Calling Deinit before Init or a second time does nothing.
//
// Deinit waits for the pumps and for running callbacks, so it must not be
// called from a response or event callback. Start it on a new goroutine there.
func (e *Engine) Deinit() error {
	e.lifecycle.Lock()
	if state := engineState(e.state.Load()); state != stateReady {
		e.lifecycle.Unlock()
		Logger.Debugf("Deinit ignored, engine is %s", state)
		return nil
	}
	// no submission can be half done once the write lock is held
	e.state.Store(int32(stateClosed))
	e.lifecycle.Unlock()

	Logger.Infof("Stopping engine")

	close(e.stopCh)
	closeErr := e.transport.Close()
	pumpErr := e.pumps.Wait()

	// nothing pushes anymore, collect what the outbound pump did not take
	queue := e.queue.Load()
	queue.Close()
	var queued []outboundCall
	for call := range queue.Recv() {
		queued = append(queued, call)
	}

	n := e.registry.drain(common.StatusEngineStopped)
	e.metrics.stopped.Add(n)
	for _, call := range queued {
		e.release(call.req)
	}

	Logger.Infof("Engine stopped, %d pending requests cancelled", n)

	if closeErr != nil {
		return fmt.Errorf("failed to close transport: %w", closeErr)
	}
	return pumpErr
}

// Ready reports whether the engine accepts submissions
func (e *Engine) Ready() bool {
	return engineState(e.state.Load()) == stateReady
}

// --------------------------------------------------------------------------
// Requests
// --------------------------------------------------------------------------

// SubmitSync sends req and blocks until its response arrives, the request
// timeout expires or ctx is done.
//
// Hard errors (ErrNotReady, ErrTableFull, ErrInvalidKind) mean the request was
// not accepted. Every accepted request yields exactly one Response: the remote
// one or a synthesized one (timeout, send failure, engine stopped). When ctx
// ends first, the StatusRequestTimedOut response is returned with ctx.Err().
func (e *Engine) SubmitSync(ctx context.Context, req common.Request) (common.Response, error) {
	if !req.Kind.Valid() {
		return common.Response{}, ErrInvalidKind
	}

	uid, wait, err := e.submit(req, modeSync, nil)
	if err != nil {
		return common.Response{}, err
	}
	e.metrics.submittedSync.Inc()

	timer := time.NewTimer(e.timeoutFor(req))
	defer timer.Stop()

	select {
	case resp := <-wait:
		return resp, nil
	case <-timer.C:
		resp, _ := e.abandon(uid, req.Kind, wait)
		return resp, nil
	case <-ctx.Done():
		resp, cancelled := e.abandon(uid, req.Kind, wait)
		if !cancelled {
			// the outcome won the race against the cancellation
			return resp, nil
		}
		return resp, ctx.Err()
	}
}

// SubmitAsync queues req and returns immediately. cb receives exactly one
// Response: the remote one or a synthesized one (timeout, send failure,
// engine stopped). Callbacks never run on the submitting goroutine.
func (e *Engine) SubmitAsync(req common.Request, cb common.ResponseCallback) error {
	if cb == nil {
		return ErrNilCallback
	}
	if !req.Kind.Valid() {
		return ErrInvalidKind
	}

	if _, _, err := e.submit(req, modeAsync, cb); err != nil {
		return err
	}
	e.metrics.submittedAsync.Inc()
	return nil
}

// Pending returns the number of outstanding sync and async requests
func (e *Engine) Pending() (syncN, asyncN int) {
	return e.registry.pending()
}

// --------------------------------------------------------------------------
// Events
// --------------------------------------------------------------------------

// SubscribeEvent installs cb for events of kind, replacing an earlier subscription
func (e *Engine) SubscribeEvent(kind common.EventKind, cb common.EventCallback) error {
	if err := e.events.subscribe(kind, cb); err != nil {
		return err
	}
	Logger.Debugf("Subscribed to %s events", kind)
	return nil
}

// UnsubscribeEvent removes the subscription of kind. Events of that kind are dropped afterwards.
func (e *Engine) UnsubscribeEvent(kind common.EventKind) error {
	if err := e.events.unsubscribe(kind); err != nil {
		return err
	}
	Logger.Debugf("Unsubscribed from %s events", kind)
	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// submit assigns a correlation id, registers the request and queues it for
// the outbound pump. Registration precedes the send, so a response can never
// arrive for an unknown id.
func (e *Engine) submit(req common.Request, mode callMode, cb common.ResponseCallback) (uint32, <-chan common.Response, error) {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()

	if engineState(e.state.Load()) != stateReady {
		return 0, nil, ErrNotReady
	}

	var (
		uid  uint32
		wait <-chan common.Response
		err  error
	)
	// after a wraparound the next id may still be pending, draw again
	for {
		uid = e.uids.next()
		if mode == modeSync {
			wait, err = e.registry.registerSync(uid, req.Kind)
		} else {
			err = e.registry.registerAsync(uid, req.Kind, cb)
		}
		if !errors.Is(err, errDuplicateID) {
			break
		}
	}
	if err != nil {
		e.metrics.tableFull.Inc()
		return 0, nil, err
	}

	call := outboundCall{req: req, uid: uid, mode: mode, timeout: e.timeoutFor(req)}
	if !e.queue.Load().Push(call) {
		e.registry.cancel(uid)
		return 0, nil, ErrNotReady
	}

	Logger.Debugf("Queued %s request uid=%d", req.Kind, uid)
	return uid, wait, nil
}

// abandon gives up on a sync request. If the request is still pending it is
// removed and a StatusRequestTimedOut response is returned with cancelled set.
// Otherwise its outcome is already on the way and is returned instead.
func (e *Engine) abandon(uid uint32, kind common.MessageKind, wait <-chan common.Response) (resp common.Response, cancelled bool) {
	if e.registry.cancel(uid) {
		e.metrics.timedOut.Inc()
		Logger.Warningf("%s request uid=%d timed out", kind, uid)
		return common.Response{Kind: kind, UID: uid, Status: common.StatusRequestTimedOut}, true
	}
	return <-wait, false
}

// timeoutFor returns the response timeout of req
func (e *Engine) timeoutFor(req common.Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return e.config.DefaultTimeout
}

// queueLen returns the number of queued requests not yet taken by the outbound pump
func (e *Engine) queueLen() int {
	if q := e.queue.Load(); q != nil {
		return q.Len()
	}
	return 0
}

// release runs the free hook of req. The engine calls it exactly once per accepted request.
func (e *Engine) release(req common.Request) {
	if req.FreeHook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			Logger.Errorf("Free hook of %s request panicked: %v", req.Kind, r)
		}
	}()
	req.FreeHook()
}

// invokeResponse runs an async response callback, serialized with all other callbacks
func (e *Engine) invokeResponse(cb common.ResponseCallback, resp common.Response) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			e.metrics.callbackPanics.Inc()
			Logger.Errorf("Callback for %s uid=%d panicked: %v", resp.Kind, resp.UID, r)
		}
	}()
	cb(resp)
}

// invokeEvent runs an event callback, serialized with all other callbacks
func (e *Engine) invokeEvent(cb common.EventCallback, evt common.Event) {
	e.callbackMu.Lock()
	defer e.callbackMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			e.metrics.callbackPanics.Inc()
			Logger.Errorf("Callback for %s event panicked: %v", evt.Kind, r)
		}
	}()
	cb(evt)
}

// sleep waits for d and returns false if the engine is stopped in the meantime
func (e *Engine) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-e.stopCh:
		return false
	case <-t.C:
		return true
	}
}
