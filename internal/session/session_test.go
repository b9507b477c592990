package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/projection-ui/host/internal/framing"
	"github.com/projection-ui/host/internal/toolkit/fake"
)

func TestValidateRenderRevAcceptsAnyFirstRender(t *testing.T) {
	if !ValidateRenderRev(nil, 0) || !ValidateRenderRev(nil, 99) {
		t.Fatal("expected first render to accept any rev")
	}
}

func TestValidateRenderRevRequiresSuccessorAfterBaseline(t *testing.T) {
	last := uint64(5)
	if !ValidateRenderRev(&last, 6) {
		t.Fatal("expected rev 6 to follow last_rev 5")
	}
	if ValidateRenderRev(&last, 5) || ValidateRenderRev(&last, 7) {
		t.Fatal("expected stale or skipped rev to be rejected once a baseline exists")
	}
}

func TestValidatePatchRevRejectsBeforeAnyRender(t *testing.T) {
	if ValidatePatchRev(nil, 1) {
		t.Fatal("expected patch before any render to be rejected")
	}
}

func TestValidatePatchRevRequiresExactSuccessor(t *testing.T) {
	last := uint64(3)
	if !ValidatePatchRev(&last, 4) {
		t.Fatal("expected rev 4 to follow last_rev 3")
	}
	if ValidatePatchRev(&last, 3) || ValidatePatchRev(&last, 5) {
		t.Fatal("expected stale or skipped rev to be rejected")
	}
}

func TestMarkAppliedAckTracksMax(t *testing.T) {
	s := NewState()
	seq := []*uint64{nil, u64p(5), u64p(3), u64p(8)}
	want := []*uint64{nil, u64p(5), u64p(5), u64p(8)}
	for i, ack := range seq {
		s.MarkAppliedAck(ack)
		if want[i] == nil {
			if s.LastAck != nil {
				t.Fatalf("step %d: expected nil LastAck, got %v", i, *s.LastAck)
			}
			continue
		}
		if s.LastAck == nil || *s.LastAck != *want[i] {
			t.Fatalf("step %d: got %v, want %v", i, s.LastAck, *want[i])
		}
	}
}

func u64p(v uint64) *uint64 { return &v }

func TestOutboundQueueDropsIntentsOnceFullAndThrottlesLogging(t *testing.T) {
	q := NewOutboundQueue(1)
	// Fill the single slot, then fire 10 more sends that must all drop
	// since nothing drains the channel.
	q.TrySendIntent([]byte("seed"))
	for i := 0; i < 10; i++ {
		q.TrySendIntent([]byte("x"))
	}
	if q.DroppedCount() != 10 {
		t.Fatalf("got dropped=%d, want 10", q.DroppedCount())
	}
	if len(q.ch) != 1 {
		t.Fatalf("expected exactly 1 enqueued payload, got %d", len(q.ch))
	}
}

func TestOutboundQueueControlBlockingFallsBackWhenFull(t *testing.T) {
	q := NewOutboundQueue(1)
	q.TrySendIntent([]byte("seed"))
	q.SendControlBlocking([]byte("ready"))

	// Drain the one slot; the blocking goroutine should then deliver
	// the control envelope.
	got := <-q.ch
	if string(got) != "seed" {
		t.Fatalf("got %q, want seed", got)
	}
	select {
	case got := <-q.ch:
		if string(got) != "ready" {
			t.Fatalf("got %q, want ready", got)
		}
	case <-time.After(time.Second):
		t.Fatal("control envelope was never delivered")
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []uint64{1, 2, 4, 8, 16} {
		if !isPowerOfTwo(n) {
			t.Fatalf("expected %d to be a power of two", n)
		}
	}
	for _, n := range []uint64{0, 3, 5, 6, 7, 9} {
		if isPowerOfTwo(n) {
			t.Fatalf("did not expect %d to be a power of two", n)
		}
	}
}

// --- Core scenario tests -------------------------------------------------

func writeFrame(t *testing.T, buf *bytes.Buffer, payload []byte) {
	t.Helper()
	if err := framing.WriteFrame(buf, payload, framing.InboundMaxFrame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readEnvelopes(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for buf.Len() > 0 {
		if buf.Len() < 4 {
			t.Fatalf("trailing partial frame header, %d bytes left", buf.Len())
		}
		n := binary.BigEndian.Uint32(buf.Bytes()[:4])
		buf.Next(4)
		payload := buf.Next(int(n))
		var env map[string]any
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("decode outbound envelope: %v", err)
		}
		out = append(out, env)
	}
	return out
}

func runCore(t *testing.T, c *Core, input io.Reader) (*bytes.Buffer, func()) {
	t.Helper()
	out := &bytes.Buffer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, input, out)
	}()
	wait := func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("core.Run did not exit after cancel")
		}
	}
	return out, wait
}

// settle gives the UI task goroutine a moment to drain posted tasks
// before the test inspects binding state.
func settle() { time.Sleep(20 * time.Millisecond) }

func TestColdStartSendsReadyEnvelope(t *testing.T) {
	binding := fake.New()
	c := NewCore("S1", binding, 8)

	input := &bytes.Buffer{}
	out, wait := runCore(t, c, input)
	settle()
	wait()

	envs := readEnvelopes(t, out)
	if len(envs) != 1 || envs[0]["t"] != "ready" || envs[0]["sid"] != "S1" {
		t.Fatalf("unexpected outbound envelopes: %+v", envs)
	}
}

func TestFirstRenderIsApplied(t *testing.T) {
	binding := fake.New()
	c := NewCore("S1", binding, 8)

	input := &bytes.Buffer{}
	writeFrame(t, input, []byte(`{"t":"render","sid":"S1","rev":1,"vm":{"app":{"title":"Hi"}}}`))

	out, wait := runCore(t, c, input)
	settle()
	wait()
	_ = out

	if binding.RenderCount != 1 {
		t.Fatalf("got render count %d, want 1", binding.RenderCount)
	}
	if binding.AppTitle != "Hi" {
		t.Fatalf("got app title %q, want Hi", binding.AppTitle)
	}
}

func TestMonotonicPatchAppliesIncrementally(t *testing.T) {
	binding := fake.New()
	c := NewCore("S1", binding, 8)

	input := &bytes.Buffer{}
	writeFrame(t, input, []byte(`{"t":"render","sid":"S1","rev":1,"vm":{"app":{"title":"Hi"}}}`))
	writeFrame(t, input, []byte(`{"t":"patch","sid":"S1","rev":2,"ops":[{"op":"replace","path":"/app/title","value":"Bye"}]}`))

	_, wait := runCore(t, c, input)
	settle()
	wait()

	if binding.RenderCount != 1 {
		t.Fatalf("got render count %d, want 1 (patch should not re-render)", binding.RenderCount)
	}
	if binding.PatchCount != 1 {
		t.Fatalf("got patch count %d, want 1", binding.PatchCount)
	}
	if binding.AppTitle != "Bye" {
		t.Fatalf("got app title %q, want Bye", binding.AppTitle)
	}
}

func TestScreenNamePatchTriggersFullRerender(t *testing.T) {
	binding := fake.New()
	c := NewCore("S1", binding, 8)

	input := &bytes.Buffer{}
	writeFrame(t, input, []byte(`{"t":"render","sid":"S1","rev":1,"vm":{"screen":{"name":"home"}}}`))
	writeFrame(t, input, []byte(`{"t":"patch","sid":"S1","rev":2,"ops":[{"op":"replace","path":"/screen/name","value":"devices"}]}`))

	_, wait := runCore(t, c, input)
	settle()
	wait()

	if binding.RenderCount != 2 {
		t.Fatalf("got render count %d, want 2 (screen swap forces re-render)", binding.RenderCount)
	}
	if binding.PatchCount != 0 {
		t.Fatalf("got patch count %d, want 0", binding.PatchCount)
	}
	if binding.ActiveScreen != "devices" {
		t.Fatalf("got active screen %q, want devices", binding.ActiveScreen)
	}
}

func TestRevisionGapTriggersResync(t *testing.T) {
	binding := fake.New()
	c := NewCore("S1", binding, 8)

	input := &bytes.Buffer{}
	writeFrame(t, input, []byte(`{"t":"render","sid":"S1","rev":1,"vm":{}}`))
	writeFrame(t, input, []byte(`{"t":"patch","sid":"S1","rev":5,"ops":[]}`))

	out, wait := runCore(t, c, input)
	settle()
	wait()

	envs := readEnvelopes(t, out)
	if len(envs) != 2 {
		t.Fatalf("got %d outbound envelopes, want 2 (initial ready + resync ready)", len(envs))
	}
	if envs[1]["t"] != "ready" {
		t.Fatalf("expected second envelope to be a resync ready, got %+v", envs[1])
	}
}

func TestSidMismatchTriggersResyncAndStaysPendingUntilAcceptedRender(t *testing.T) {
	binding := fake.New()
	c := NewCore("S1", binding, 8)

	input := &bytes.Buffer{}
	writeFrame(t, input, []byte(`{"t":"render","sid":"WRONG","rev":1,"vm":{}}`))
	writeFrame(t, input, []byte(`{"t":"error","sid":"S1","code":"resync_required","message":"still bad"}`))
	writeFrame(t, input, []byte(`{"t":"render","sid":"S1","rev":7,"vm":{"app":{"title":"Recovered"}}}`))

	out, wait := runCore(t, c, input)
	settle()
	wait()

	envs := readEnvelopes(t, out)
	// initial ready, resync ready from the sid mismatch; the error envelope's
	// resync request must have been debounced away since one was already
	// pending, and the final render must have been accepted and cleared it.
	if len(envs) != 2 {
		t.Fatalf("got %d outbound envelopes, want 2 (resync debounced), envs=%+v", len(envs), envs)
	}
	if binding.RenderCount != 1 {
		t.Fatalf("got render count %d, want 1 (only the recovering render applies)", binding.RenderCount)
	}
	if binding.AppTitle != "Recovered" {
		t.Fatalf("got app title %q, want Recovered", binding.AppTitle)
	}
}

func TestErrorEnvelopeDoesNotResetLocalState(t *testing.T) {
	binding := fake.New()
	c := NewCore("S1", binding, 8)

	input := &bytes.Buffer{}
	writeFrame(t, input, []byte(`{"t":"render","sid":"S1","rev":1,"vm":{"app":{"title":"Keep"}}}`))
	writeFrame(t, input, []byte(`{"t":"error","sid":"S1","code":"some_informational_code","message":"fyi"}`))
	writeFrame(t, input, []byte(`{"t":"patch","sid":"S1","rev":2,"ops":[{"op":"replace","path":"/app/title","value":"Still there"}]}`))

	_, wait := runCore(t, c, input)
	settle()
	wait()

	// A non-resync-forcing error must not have reset last_rev; the
	// following rev=2 patch (successor of rev=1) must still be accepted.
	if binding.PatchCount != 1 {
		t.Fatalf("got patch count %d, want 1 (patch after informational error should still apply)", binding.PatchCount)
	}
	if binding.AppTitle != "Still there" {
		t.Fatalf("got app title %q, want Still there", binding.AppTitle)
	}
}

func TestApplyFailureResetsStateAndRequestsResync(t *testing.T) {
	binding := fake.New()
	c := NewCore("S1", binding, 8)
	binding.FailRender = errApply

	input := &bytes.Buffer{}
	writeFrame(t, input, []byte(`{"t":"render","sid":"S1","rev":1,"vm":{}}`))

	out, wait := runCore(t, c, input)
	settle()
	wait()

	envs := readEnvelopes(t, out)
	if len(envs) != 2 || envs[1]["t"] != "ready" {
		t.Fatalf("expected a resync ready after failed apply, got %+v", envs)
	}
}

func TestIntentIDsStartAtOneAndIncrement(t *testing.T) {
	binding := fake.New()
	c := NewCore("S1", binding, 8)

	// The input stays open while intents fire: EOF ends the session and
	// closes the outbound queue.
	input, closeInput := io.Pipe()
	out, wait := runCore(t, c, input)
	settle()

	binding.FireUIIntent("some.action", "")
	binding.FireUIIntent("some.action", "")
	settle()
	closeInput.Close()
	wait()

	envs := readEnvelopes(t, out)
	var ids []float64
	for _, e := range envs {
		if e["t"] == "intent" {
			ids = append(ids, e["id"].(float64))
		}
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 {
		t.Fatalf("got intent ids %v, want [1 2]", ids)
	}
}

func TestNavigateIntentCarriesRouteAndParams(t *testing.T) {
	binding := fake.New()
	c := NewCore("S1", binding, 8)

	input, closeInput := io.Pipe()
	out, wait := runCore(t, c, input)
	settle()

	binding.FireNavigate("devices", `{"room":"kitchen"}`)
	settle()
	closeInput.Close()
	wait()

	envs := readEnvelopes(t, out)
	var navEnv map[string]any
	for _, e := range envs {
		if e["t"] == "intent" && e["name"] == "ui.route.navigate" {
			navEnv = e
		}
	}
	if navEnv == nil {
		t.Fatal("expected a ui.route.navigate intent")
	}
	payload := navEnv["payload"].(map[string]any)
	if payload["to"] != "devices" {
		t.Fatalf("got to=%v, want devices", payload["to"])
	}
	params := payload["params"].(map[string]any)
	if params["room"] != "kitchen" {
		t.Fatalf("got params=%v, want room=kitchen", params)
	}
}

func TestEmptyIntentNameIsDropped(t *testing.T) {
	binding := fake.New()
	c := NewCore("S1", binding, 8)

	input, closeInput := io.Pipe()
	out, wait := runCore(t, c, input)
	settle()

	binding.FireUIIntent("", "ignored")
	settle()
	closeInput.Close()
	wait()

	envs := readEnvelopes(t, out)
	for _, e := range envs {
		if e["t"] == "intent" {
			t.Fatalf("did not expect an intent envelope for an empty name, got %+v", e)
		}
	}
}

var errApply = bindingError("forced render failure")

type bindingError string

func (e bindingError) Error() string { return string(e) }
