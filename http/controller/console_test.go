package controller

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	messageType int
	data        []byte
}

// fakeWSConn is an in-memory frame pipe implementing both ends of a websocket
// connection for relay tests.
type fakeWSConn struct {
	mu       sync.Mutex
	incoming chan frame
	written  []frame
	controls []frame
	closed   bool

	pingHandler  func(string) error
	pongHandler  func(string) error
	closeHandler func(int, string) error
}

func newFakeWSConn() *fakeWSConn {
	return &fakeWSConn{incoming: make(chan frame, 16)}
}

func (f *fakeWSConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-f.incoming
	if !ok {
		return 0, nil, io.EOF
	}
	switch msg.messageType {
	case websocket.PingMessage:
		if f.pingHandler != nil {
			_ = f.pingHandler(string(msg.data))
		}
		return f.ReadMessage()
	case websocket.PongMessage:
		if f.pongHandler != nil {
			_ = f.pongHandler(string(msg.data))
		}
		return f.ReadMessage()
	case websocket.CloseMessage:
		if f.closeHandler != nil {
			_ = f.closeHandler(websocket.CloseNormalClosure, "bye")
		}
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"}
	}
	return msg.messageType, msg.data, nil
}

func (f *fakeWSConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("write on closed connection")
	}
	f.written = append(f.written, frame{messageType, data})
	return nil
}

func (f *fakeWSConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("write on closed connection")
	}
	f.controls = append(f.controls, frame{messageType, data})
	return nil
}

func (f *fakeWSConn) SetPingHandler(h func(string) error)       { f.pingHandler = h }
func (f *fakeWSConn) SetPongHandler(h func(string) error)       { f.pongHandler = h }
func (f *fakeWSConn) SetCloseHandler(h func(int, string) error) { f.closeHandler = h }

func (f *fakeWSConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.incoming)
	}
	return nil
}

func (f *fakeWSConn) writtenFrames() []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]frame(nil), f.written...)
}

func (f *fakeWSConn) controlFrames() []frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]frame(nil), f.controls...)
}

func TestRelayFramesForwardsDataFrames(t *testing.T) {
	src := newFakeWSConn()
	dst := newFakeWSConn()

	src.incoming <- frame{websocket.BinaryMessage, []byte{0x52, 0x46, 0x42}}
	src.incoming <- frame{websocket.TextMessage, []byte("hello")}
	src.Close()

	err := relayFrames(src, dst)
	require.Error(t, err)

	frames := dst.writtenFrames()
	require.Len(t, frames, 2)
	assert.Equal(t, websocket.BinaryMessage, frames[0].messageType)
	assert.Equal(t, []byte{0x52, 0x46, 0x42}, frames[0].data)
	assert.Equal(t, websocket.TextMessage, frames[1].messageType)
	assert.Equal(t, []byte("hello"), frames[1].data)
}

func TestRelayFramesMirrorsControlFrames(t *testing.T) {
	src := newFakeWSConn()
	dst := newFakeWSConn()

	src.incoming <- frame{websocket.PingMessage, []byte("keepalive")}
	src.incoming <- frame{websocket.PongMessage, []byte("keepalive")}
	src.Close()

	_ = relayFrames(src, dst)

	controls := dst.controlFrames()
	require.Len(t, controls, 2)
	assert.Equal(t, websocket.PingMessage, controls[0].messageType)
	assert.Equal(t, []byte("keepalive"), controls[0].data)
	assert.Equal(t, websocket.PongMessage, controls[1].messageType)
}

func TestRelayFramesForwardsClose(t *testing.T) {
	src := newFakeWSConn()
	dst := newFakeWSConn()

	src.incoming <- frame{websocket.CloseMessage, nil}

	err := relayFrames(src, dst)
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)

	controls := dst.controlFrames()
	require.Len(t, controls, 1)
	assert.Equal(t, websocket.CloseMessage, controls[0].messageType)
}

func TestProxyConsoleRemoteCloseEndsSession(t *testing.T) {
	client := newFakeWSConn()
	remote := newFakeWSConn()

	remote.incoming <- frame{websocket.BinaryMessage, []byte("fb-update")}
	remote.Close()

	done := make(chan struct{})
	go func() {
		proxyConsole(context.Background(), client, remote)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("proxy did not terminate after remote close")
	}

	// The frame sent before the close still reached the client, and both
	// sides ended up closed.
	frames := client.writtenFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("fb-update"), frames[0].data)
	assert.True(t, client.closed)
	assert.True(t, remote.closed)
}

func TestProxyConsoleClientCloseEndsSession(t *testing.T) {
	client := newFakeWSConn()
	remote := newFakeWSConn()

	client.Close()

	done := make(chan struct{})
	go func() {
		proxyConsole(context.Background(), client, remote)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("proxy did not terminate after client close")
	}
	assert.True(t, remote.closed)
}
