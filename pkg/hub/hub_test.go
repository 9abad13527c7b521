package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type written struct {
	kind int
	data []byte
}

// fakeConn blocks reads until closed and records writes.
type fakeConn struct {
	writes chan written
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{writes: make(chan written, 64), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(kind int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	f.writes <- written{kind, data}
	return nil
}

func (f *fakeConn) SetReadLimit(int64)                {}
func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) Close() error                      { f.once.Do(func() { close(f.closed) }); return nil }

func next(t *testing.T, f *fakeConn) written {
	t.Helper()
	select {
	case w := <-f.writes:
		return w
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for write")
		return written{}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestHub_Broadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", nil)
	go h.Run(ctx)

	conn := newFakeConn()
	client := NewClient(h, conn, NewJSONMessage([]byte(`{"hello":true}`)))
	go client.Run()

	first := next(t, conn)
	assert.Equal(t, websocket.TextMessage, first.kind)
	assert.JSONEq(t, `{"hello":true}`, string(first.data))

	waitFor(t, func() bool { return h.ClientCount() == 1 })

	require.NoError(t, h.BroadcastJSON(map[string]int{"n": 1}))
	w := next(t, conn)
	assert.Equal(t, websocket.TextMessage, w.kind)
	assert.JSONEq(t, `{"n":1}`, string(w.data))

	h.BroadcastBinary([]byte{0xff, 0xd8})
	w = next(t, conn)
	assert.Equal(t, websocket.BinaryMessage, w.kind)
	assert.Equal(t, []byte{0xff, 0xd8}, w.data)
}

func TestHub_Disconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", nil)
	go h.Run(ctx)

	conn := newFakeConn()
	client := NewClient(h, conn)
	go client.Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	conn.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	h := New("test", nil)
	go h.Run(ctx)
	assert.Eventually(t, h.IsRunning, time.Second, 5*time.Millisecond)

	conn := newFakeConn()
	client := NewClient(h, conn)
	go client.Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}
	select {
	case <-conn.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("client connection not closed")
	}
	assert.Equal(t, 0, h.ClientCount())
	assert.False(t, h.IsRunning())

	// Registering after shutdown must not block.
	late := NewClient(h, newFakeConn())
	_, ok := <-late.send
	assert.False(t, ok)
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	h := New("idle", nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.BroadcastBinary([]byte{byte(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked without a running hub")
	}
}

func TestHub_BroadcastJSONError(t *testing.T) {
	h := New("test", nil)
	assert.Error(t, h.BroadcastJSON(make(chan int)))
}
