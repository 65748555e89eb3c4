package relay

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/wilsonzlin/aero/proxy/webrtc-rendezvous-relay/internal/metrics"
)

func newTestDispatcher(validator Validator) (*Dispatcher, *Registry, *Store, *metrics.Metrics) {
	m := metrics.New()
	reg := NewRegistry(nil, nil)
	store := NewStore(0)
	return NewDispatcher(reg, store, validator, discardLogger(), m), reg, store, m
}

func TestDispatch_RuleSelection(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{`{"messageType":"clear"}`, []string{"clear"}},
		{`{"messageType":"clear","origin":"camera"}`, []string{"clear"}},
		{`{"messageType":"init","origin":"camera"}`, []string{"init"}},
		{`{"messageType":"close","origin":"computer"}`, []string{"close"}},
		{`{"messageType":"pong","origin":"camera"}`, []string{"pong"}},
		{`{"messageType":"offer","origin":"camera","sdp":"v=0"}`, []string{"enqueue_camera"}},
		{`{"messageType":"ice-candidate","origin":"camera","candidate":"c"}`, []string{"enqueue_camera"}},
		{`{"messageType":"answer","origin":"computer","sdp":"v=0"}`, []string{"enqueue_computer"}},
		{`{"messageType":"ice-candidate","origin":"computer","candidate":"c"}`, []string{"enqueue_computer"}},
		{`{"messageType":"poll","origin":"computer"}`, []string{"poll_computer"}},
		{`{"messageType":"poll","origin":"camera"}`, []string{"poll_camera"}},
		{`{"messageType":"answer","origin":"camera","sdp":"v=0"}`, nil},
		{`{"messageType":"offer","origin":"computer","sdp":"v=0"}`, nil},
		{`{"messageType":"poll"}`, nil},
		{`{"messageType":"subscribe","origin":"camera"}`, nil},
		{`{"origin":"camera"}`, nil},
	}

	for _, tc := range cases {
		d, _, _, _ := newTestDispatcher(nil)
		got := d.Dispatch(newFakeChannel("x"), msg(t, tc.raw))
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Dispatch(%s)=%v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestDispatch_InitBindsSender(t *testing.T) {
	d, reg, _, m := newTestDispatcher(nil)
	x := newFakeChannel("x")

	d.Dispatch(x, msg(t, `{"messageType":"init","origin":"camera"}`))

	got, ok := reg.Resolve(RoleCamera)
	if !ok || got.ID() != "x" {
		t.Fatalf("resolve(camera)=%v,%v, want x", got, ok)
	}
	if m.Get(metrics.Bind) != 1 {
		t.Fatalf("bind metric=%d, want 1", m.Get(metrics.Bind))
	}
	if len(x.messages()) != 0 {
		t.Fatalf("init produced outbound messages: %v", x.messages())
	}
}

func TestDispatch_InitWithUnknownOriginDoesNotBind(t *testing.T) {
	d, reg, _, _ := newTestDispatcher(nil)
	d.Dispatch(newFakeChannel("x"), msg(t, `{"messageType":"init","origin":"projector"}`))
	if len(reg.Bindings()) != 0 {
		t.Fatalf("bindings=%v, want none", reg.Bindings())
	}
}

func TestDispatch_CloseUnbindsNamedRoleFromAnyChannel(t *testing.T) {
	d, reg, _, _ := newTestDispatcher(nil)
	x, y := newFakeChannel("x"), newFakeChannel("y")
	d.Dispatch(x, msg(t, `{"messageType":"init","origin":"camera"}`))

	d.Dispatch(y, msg(t, `{"messageType":"close","origin":"camera"}`))

	if _, ok := reg.Resolve(RoleCamera); ok {
		t.Fatalf("camera still bound after close message")
	}
}

func TestDispatch_PongRebindsReplyingChannel(t *testing.T) {
	d, reg, _, m := newTestDispatcher(nil)
	x, y := newFakeChannel("x"), newFakeChannel("y")
	d.Dispatch(x, msg(t, `{"messageType":"init","origin":"computer"}`))

	d.Dispatch(x, msg(t, `{"messageType":"pong","origin":"computer"}`))
	if m.Get(metrics.Rebind) != 0 {
		t.Fatalf("same-channel pong counted as rebind")
	}

	d.Dispatch(y, msg(t, `{"messageType":"pong","origin":"computer"}`))
	got, _ := reg.Resolve(RoleComputer)
	if got.ID() != "y" {
		t.Fatalf("resolve(computer)=%q, want y", got.ID())
	}
	if m.Get(metrics.Pong) != 2 || m.Get(metrics.Rebind) != 1 {
		t.Fatalf("pong=%d rebind=%d, want 2/1", m.Get(metrics.Pong), m.Get(metrics.Rebind))
	}
}

func TestDispatch_PollSendsEachStoredMessageVerbatim(t *testing.T) {
	d, _, _, m := newTestDispatcher(nil)
	camera, computer := newFakeChannel("cam"), newFakeChannel("pc")

	sent := []string{
		`{"messageType":"offer","origin":"camera","sdp":"v=0 offer"}`,
		`{"messageType":"ice-candidate","origin":"camera","candidate":"c1"}`,
		`{"messageType":"ice-candidate","origin":"camera","candidate":"c2"}`,
	}
	for _, raw := range sent {
		d.Dispatch(camera, msg(t, raw))
	}

	d.Dispatch(computer, msg(t, `{"messageType":"poll","origin":"computer"}`))
	if got := computer.messages(); !reflect.DeepEqual(got, sent) {
		t.Fatalf("computer received %v, want %v", got, sent)
	}
	if got := camera.messages(); len(got) != 0 {
		t.Fatalf("camera received %v, want nothing", got)
	}
	if m.Get(metrics.PollDelivered) != 3 {
		t.Fatalf("poll_delivered=%d, want 3", m.Get(metrics.PollDelivered))
	}
}

func TestDispatch_PollWithoutBindingStillAnswersSender(t *testing.T) {
	d, _, _, _ := newTestDispatcher(nil)
	computer := newFakeChannel("pc")
	d.Dispatch(computer, msg(t, `{"messageType":"answer","origin":"computer","sdp":"v=0"}`))

	camera := newFakeChannel("cam")
	d.Dispatch(camera, msg(t, `{"messageType":"poll","origin":"camera"}`))
	if got := camera.messages(); len(got) != 1 {
		t.Fatalf("camera received %d messages, want 1", len(got))
	}
}

func TestDispatch_SendFailureKeepsStateConsistent(t *testing.T) {
	d, _, store, m := newTestDispatcher(nil)
	camera := newFakeChannel("cam")
	d.Dispatch(camera, msg(t, `{"messageType":"offer","origin":"camera","sdp":"v=0"}`))
	d.Dispatch(camera, msg(t, `{"messageType":"ice-candidate","origin":"camera","candidate":"c"}`))

	stale := newFakeChannel("stale")
	stale.setFail(true)
	d.Dispatch(stale, msg(t, `{"messageType":"poll","origin":"computer"}`))

	if m.Get(metrics.SendFailed) != 1 {
		t.Fatalf("send_failed=%d, want 1 (stop after first failure)", m.Get(metrics.SendFailed))
	}
	if store.Len(RoleCamera) != 2 {
		t.Fatalf("camera queue len=%d, want 2", store.Len(RoleCamera))
	}

	fresh := newFakeChannel("fresh")
	d.Dispatch(fresh, msg(t, `{"messageType":"poll","origin":"computer"}`))
	if got := fresh.messages(); len(got) != 2 {
		t.Fatalf("fresh poller received %d messages, want 2", len(got))
	}
}

func TestDispatch_MismatchedOriginNeverStored(t *testing.T) {
	d, _, store, m := newTestDispatcher(nil)
	d.Dispatch(newFakeChannel("x"), msg(t, `{"messageType":"answer","origin":"camera","sdp":"v=0"}`))

	for _, role := range Roles {
		if store.Len(role) != 0 {
			t.Fatalf("len(%s)=%d, want 0", role, store.Len(role))
		}
	}
	if m.Get(metrics.MessageIgnored) != 1 {
		t.Fatalf("message_ignored=%d, want 1", m.Get(metrics.MessageIgnored))
	}
}

type rejectAll struct{}

func (rejectAll) Validate(Message) error { return ErrInvalidPayload }

func TestDispatch_ValidatorDiscardsMessage(t *testing.T) {
	d, _, store, m := newTestDispatcher(rejectAll{})
	got := d.Dispatch(newFakeChannel("x"), msg(t, `{"messageType":"offer","origin":"camera","sdp":"junk"}`))
	if got != nil {
		t.Fatalf("applied=%v, want none", got)
	}
	if store.Len(RoleCamera) != 0 {
		t.Fatalf("invalid message stored")
	}
	if m.Get(metrics.MessageInvalid) != 1 {
		t.Fatalf("message_invalid=%d, want 1", m.Get(metrics.MessageInvalid))
	}
}

func TestDispatch_PollHandsBatchSenderTheWholeSnapshot(t *testing.T) {
	d, _, store, m := newTestDispatcher(nil)
	camera := newFakeChannel("camera")
	for i := 0; i < 600; i++ {
		d.Dispatch(camera, msg(t, fmt.Sprintf(`{"messageType":"ice-candidate","origin":"camera","candidate":"c%d"}`, i)))
	}
	if store.Len(RoleCamera) != 600 {
		t.Fatalf("camera queue=%d, want 600", store.Len(RoleCamera))
	}

	computer := &batchChannel{fakeChannel: newFakeChannel("computer")}
	d.Dispatch(computer, msg(t, `{"messageType":"poll","origin":"computer"}`))

	if len(computer.batches) != 1 || len(computer.batches[0]) != 600 {
		t.Fatalf("batches=%d, want one batch of 600", len(computer.batches))
	}
	if got := string(computer.batches[0][599]); got != `{"messageType":"ice-candidate","origin":"camera","candidate":"c599"}` {
		t.Fatalf("last=%s", got)
	}
	if len(computer.messages()) != 0 {
		t.Fatalf("single sends=%d, want 0", len(computer.messages()))
	}
	if m.Get(metrics.PollDelivered) != 600 || m.Get(metrics.SendFailed) != 0 {
		t.Fatalf("poll_delivered=%d send_failed=%d, want 600/0", m.Get(metrics.PollDelivered), m.Get(metrics.SendFailed))
	}

	// An empty snapshot queues nothing.
	d.Dispatch(camera, msg(t, `{"messageType":"poll","origin":"camera"}`))
	if len(camera.messages()) != 0 {
		t.Fatalf("empty poll sent %d messages", len(camera.messages()))
	}
}
