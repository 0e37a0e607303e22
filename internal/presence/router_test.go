package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/gopherchat/internal/chat"
)

type fakeConn struct {
	mu     sync.Mutex
	events []Event
	closed bool
	stall  bool
}

func (f *fakeConn) Push(ctx context.Context, ev Event) error {
	if f.stall {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnClosed
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) received() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func startRouter(t *testing.T, opts Options) *Router {
	t.Helper()
	r := NewRouter(nil, opts)
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)
	t.Cleanup(func() {
		cancel()
		r.Wait()
	})
	return r
}

var (
	thread = chat.Thread{ID: "01J0000000000000000000CHAT", UserLow: "U1", UserHigh: "U2"}
	m1     = chat.Message{ID: "01J0000000000000000000MSG1", ChatID: thread.ID, SenderID: "U1", Content: "hi"}
)

func TestForward_PushesToCounterpart(t *testing.T) {
	r := startRouter(t, Options{})
	u2 := &fakeConn{}
	r.Register("U2", u2)

	r.Forward(thread, m1)

	require.Eventually(t, func() bool { return len(u2.received()) == 1 }, time.Second, 5*time.Millisecond)
	ev := u2.received()[0]
	require.Equal(t, EventMessageNew, ev.Type)
	require.Equal(t, m1.ID, ev.Message.ID)
	require.Equal(t, "hi", ev.Message.Content)
}

func TestForward_SenderNeverReceives(t *testing.T) {
	r := startRouter(t, Options{})
	u1 := &fakeConn{}
	u2 := &fakeConn{}
	r.Register("U1", u1)
	r.Register("U2", u2)

	r.Forward(thread, m1)

	require.Eventually(t, func() bool { return len(u2.received()) == 1 }, time.Second, 5*time.Millisecond)
	require.Empty(t, u1.received())
}

func TestForward_AfterUnregisterIsDropped(t *testing.T) {
	r := startRouter(t, Options{})
	u2 := &fakeConn{}
	r.Register("U2", u2)
	r.Unregister("U2")

	require.True(t, u2.isClosed())
	require.False(t, r.Online("U2"))

	r.Forward(thread, m1)
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, u2.received())
}

func TestForward_OutsiderSenderIgnored(t *testing.T) {
	r := startRouter(t, Options{})
	u2 := &fakeConn{}
	r.Register("U2", u2)

	r.Forward(thread, chat.Message{ID: "x", ChatID: thread.ID, SenderID: "U9", Content: "spoof"})
	time.Sleep(50 * time.Millisecond)
	require.Empty(t, u2.received())
}

func TestDeliver_TimeoutReleasesConnection(t *testing.T) {
	r := startRouter(t, Options{Timeout: 20 * time.Millisecond})
	stuck := &fakeConn{stall: true}
	r.Register("U2", stuck)

	r.Forward(thread, m1)

	require.Eventually(t, func() bool { return !r.Online("U2") }, time.Second, 5*time.Millisecond)
	require.True(t, stuck.isClosed())
}

func TestForward_NeverBlocksWhenQueueFull(t *testing.T) {
	// no workers started: nothing drains the queue
	r := NewRouter(nil, Options{QueueSize: 1})
	r.Register("U2", &fakeConn{})

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			r.Forward(thread, m1)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward blocked on a full queue")
	}
}

func TestRegister_ReplacesAndClosesPrevious(t *testing.T) {
	r := startRouter(t, Options{})
	first := &fakeConn{}
	second := &fakeConn{}

	r.Register("U2", first)
	r.Register("U2", second)

	require.True(t, first.isClosed())
	require.False(t, second.isClosed())
	require.Equal(t, 1, r.Count())

	r.Forward(thread, m1)
	require.Eventually(t, func() bool { return len(second.received()) == 1 }, time.Second, 5*time.Millisecond)
	require.Empty(t, first.received())
}

func TestRelease_StaleConnKeepsReplacement(t *testing.T) {
	r := NewRouter(nil, Options{})
	old := &fakeConn{}
	cur := &fakeConn{}
	r.Register("U2", old)
	r.Register("U2", cur)

	require.False(t, r.Release("U2", old))
	require.True(t, r.Online("U2"))

	require.True(t, r.Release("U2", cur))
	require.False(t, r.Online("U2"))
	require.True(t, cur.isClosed())
}

func TestUnregister_Idempotent(t *testing.T) {
	r := NewRouter(nil, Options{})
	require.NotPanics(t, func() {
		r.Unregister("nobody")
		r.Unregister("nobody")
	})

	r.Register("U1", &fakeConn{})
	r.Unregister("U1")
	r.Unregister("U1")
	require.Equal(t, 0, r.Count())
}

func TestCloseAll(t *testing.T) {
	r := NewRouter(nil, Options{})
	a, b := &fakeConn{}, &fakeConn{}
	r.Register("U1", a)
	r.Register("U2", b)

	r.CloseAll()

	require.Equal(t, 0, r.Count())
	require.True(t, a.isClosed())
	require.True(t, b.isClosed())
}
