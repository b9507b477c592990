// Package session implements the session core: the revision state
// machine, the bounded outbound queue, and the glue between the framed
// stdio transport and a toolkit.Binding.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/projection-ui/host/internal/framing"
	"github.com/projection-ui/host/internal/logger"
	"github.com/projection-ui/host/internal/patch"
	"github.com/projection-ui/host/internal/protocol"
	"github.com/projection-ui/host/internal/toolkit"
)

// Core owns one session's worth of state: the sid it was started with,
// the binding it drives, the outbound queue, and the local view-model.
// All state mutation happens on the internal UI task goroutine, serial
// with itself; the reader goroutine only ever posts closures to it.
type Core struct {
	sid      string
	binding  toolkit.Binding
	outbound *OutboundQueue

	mu    sync.Mutex
	state State

	resyncPending atomic.Bool
	intentCounter atomic.Uint64

	uiTasks chan func()
}

// NewCore constructs a Core bound to sid and binding, with an outbound
// queue of the given capacity.
func NewCore(sid string, binding toolkit.Binding, queueCap int) *Core {
	c := &Core{
		sid:      sid,
		binding:  binding,
		outbound: NewOutboundQueue(queueCap),
		state:    NewState(),
		uiTasks:  make(chan func(), 64),
	}
	c.bindCallbacks()
	return c
}

// Outbound exposes the outbound queue, mainly for tests that want to
// observe what the writer side would have sent.
func (c *Core) Outbound() *OutboundQueue { return c.outbound }

func (c *Core) bindCallbacks() {
	c.binding.BindBridgeIntent(c.handleSimpleIntent)
	c.binding.BindUIIntent(c.handleSimpleIntent)
	c.binding.BindNavigate(c.handleNavigateIntent)
}

// Run drives the session until r is exhausted (clean EOF), an
// unrecoverable transport error occurs, or ctx is cancelled. It starts
// the writer and UI-task goroutines, enqueues the initial Ready
// envelope, then reads frames from r on the calling goroutine until one
// of those conditions holds.
func (c *Core) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(w)
	}()

	go c.uiTaskLoop(ctx)

	ready, err := protocol.EncodeReady(protocol.NewReady(c.sid))
	if err != nil {
		return fmt.Errorf("session: encode initial ready envelope: %w", err)
	}
	c.outbound.SendControlBlocking(ready)

	err = c.readLoop(ctx, r)

	// Let every UI task the reader already posted run before the outbound
	// queue closes, so their state changes and any resync Ready they
	// enqueue are not lost at shutdown.
	flushed := make(chan struct{})
	select {
	case c.uiTasks <- func() { close(flushed) }:
		select {
		case <-flushed:
		case <-ctx.Done():
		}
	case <-ctx.Done():
	}

	c.outbound.Close()
	<-writerDone
	return err
}

func (c *Core) writeLoop(w io.Writer) {
	for payload := range c.outbound.Chan() {
		if err := framing.WriteFrame(w, payload, framing.OutboundMaxFrame); err != nil {
			logger.Error("outbound write failed, stopping writer", "err", err)
			return
		}
	}
}

func (c *Core) uiTaskLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-c.uiTasks:
			c.runUITask(task)
		}
	}
}

func (c *Core) postUITask(task func()) {
	c.uiTasks <- task
}

// runUITask executes task with panic recovery. A Go mutex, unlike the
// Rust original's, cannot be poisoned by a panicking holder, but a panic
// mid-mutation can still leave the view-model in a state the session no
// longer trusts — so a recovered panic here is treated like the Rust
// poisoned-lock case: log it and request resync. Local state is not
// reset here; the next accepted render replaces it.
func (c *Core) runUITask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("ui task panicked, requesting resync", "panic", r)
			c.requestResync("recovered panic in ui task")
		}
	}()
	task()
}

func (c *Core) readLoop(ctx context.Context, r io.Reader) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := framing.ReadFrame(r, framing.InboundMaxFrame)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("session: read frame: %w", err)
		}

		in, err := protocol.Decode(payload)
		if err != nil {
			logger.Error("failed to decode inbound envelope", "err", err)
			c.requestResync("decode error on inbound envelope")
			continue
		}

		switch {
		case in.Render != nil:
			render := in.Render
			c.postUITask(func() { c.handleRender(render) })
		case in.Patch != nil:
			p := in.Patch
			c.postUITask(func() { c.handlePatch(p) })
		case in.Err != nil:
			c.handleError(in.Err)
		}
	}
}

func (c *Core) handleRender(r *protocol.Render) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r.Sid != c.sid {
		c.state.Reset()
		c.requestResync(fmt.Sprintf("sid mismatch for render envelope: got %q, want %q", r.Sid, c.sid))
		return
	}
	if !ValidateRenderRev(c.state.LastRev, r.Rev) {
		c.state.Reset()
		c.requestResync(fmt.Sprintf("invalid render revision %d", r.Rev))
		return
	}

	c.state.VM = r.VM
	c.pushProjectionLocked()
	screenID, err := c.binding.ApplyScreenRender(c.state.VM)
	if err != nil {
		c.state.Reset()
		c.requestResync(fmt.Sprintf("render apply failed: %v", err))
		return
	}
	c.state.ScreenID = screenID

	c.state.MarkAppliedRev(r.Rev)
	c.resyncPending.Store(false)
}

func (c *Core) handlePatch(p *protocol.Patch) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p.Sid != c.sid {
		c.state.Reset()
		c.requestResync(fmt.Sprintf("sid mismatch for patch envelope: got %q, want %q", p.Sid, c.sid))
		return
	}
	if !ValidatePatchRev(c.state.LastRev, p.Rev) {
		c.state.Reset()
		c.requestResync(fmt.Sprintf("invalid patch revision %d", p.Rev))
		return
	}

	if err := patch.ApplyOps(&c.state.VM, p.Ops); err != nil {
		c.state.Reset()
		c.requestResync(fmt.Sprintf("patch apply failed: %v", err))
		return
	}
	c.pushProjectionLocked()

	if patch.ChangesScreen(p.Ops) {
		screenID, err := c.binding.ApplyScreenRender(c.state.VM)
		if err != nil {
			c.state.Reset()
			c.requestResync(fmt.Sprintf("screen re-render apply failed: %v", err))
			return
		}
		c.state.ScreenID = screenID
	} else if err := c.binding.ApplyScreenPatch(c.state.ScreenID, p.Ops, c.state.VM); err != nil {
		c.state.Reset()
		c.requestResync(fmt.Sprintf("screen patch apply failed: %v", err))
		return
	}

	c.state.MarkAppliedRev(p.Rev)
	c.state.MarkAppliedAck(p.Ack)
}

// handleError logs the inbound diagnostic and, for error codes the
// protocol marks as resync-forcing, requests one. Unlike the sid,
// revision, and apply-failure guards above, an Error envelope never
// resets local state first: the controller reporting a problem does not
// by itself mean the host's own view is untrustworthy, and the next
// accepted render will replace it wholesale regardless.
func (c *Core) handleError(e *protocol.Error) {
	if protocol.ResyncCodes[e.Code] {
		logger.Error("controller reported error", "sid", e.Sid, "rev", e.Rev, "code", e.Code, "message", e.Message)
		c.requestResync(fmt.Sprintf("controller error %q forces resync", e.Code))
		return
	}
	logger.ErrorEnvelopeThrottled("controller reported error", "sid", e.Sid, "rev", e.Rev, "code", e.Code, "message", e.Message)
}

// requestResync debounces itself: only the transition from not-pending
// to pending actually logs and re-announces Ready. It is safe to call
// both while c.mu is held (the sid/rev/apply-failure paths) and without
// it (the Error-envelope path), since it only touches the independent
// resyncPending flag and the outbound queue.
func (c *Core) requestResync(reason string) {
	if !c.resyncPending.CompareAndSwap(false, true) {
		return
	}
	logger.Warn(reason + "; requesting resync")

	raw, err := protocol.EncodeReady(protocol.NewReady(c.sid))
	if err != nil {
		logger.Error("failed to encode ready envelope for resync", "err", err)
		return
	}
	c.outbound.SendControlBlocking(raw)
}

func (c *Core) pushProjectionLocked() {
	proj := patch.Project(c.state.VM)
	c.binding.SetAppTitle(proj.AppTitle)
	c.binding.SetActiveScreen(proj.ScreenName)
	c.binding.SetNavCanBack(proj.NavCanBack)
	c.binding.SetErrorTitle(proj.ScreenTitle)
	c.binding.SetErrorMessage(proj.ScreenMessage)
	c.binding.SetErrorScreenModule(proj.ScreenModule)
}

func (c *Core) handleSimpleIntent(name, arg string) {
	if name == "" {
		return
	}
	payload := patch.EmptyObject()
	if arg != "" {
		patch.SetPath(&payload, "/arg", patch.String(arg), false)
	}
	c.sendIntent(name, payload)
}

func (c *Core) handleNavigateIntent(route, paramsJSON string) {
	if route == "" {
		return
	}
	payload := patch.EmptyObject()
	patch.SetPath(&payload, "/to", patch.String(route), false)
	patch.SetPath(&payload, "/params", parseParamsObject(paramsJSON), false)
	c.sendIntent("ui.route.navigate", payload)
}

func parseParamsObject(raw string) patch.Value {
	if raw == "" {
		return patch.EmptyObject()
	}
	var v patch.Value
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return patch.EmptyObject()
	}
	if v.Kind() != patch.KindObject {
		return patch.EmptyObject()
	}
	return v
}

func (c *Core) sendIntent(name string, payload patch.Value) {
	id := c.intentCounter.Add(1)
	raw, err := protocol.EncodeIntent(protocol.NewIntent(c.sid, id, name, payload))
	if err != nil {
		logger.Error("failed to encode intent", "name", name, "err", err)
		return
	}
	c.outbound.TrySendIntent(raw)
}
