package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
)

// fakeConn replays a scripted list of messages and then returns err.
type fakeConn struct {
	kinds  []int
	msgs   [][]byte
	err    error
	closed bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	if len(f.msgs) == 0 {
		return 0, nil, f.err
	}
	k, m := f.kinds[0], f.msgs[0]
	f.kinds, f.msgs = f.kinds[1:], f.msgs[1:]
	return k, m, nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func TestWebSocketSourceSkipsText(t *testing.T) {
	conn := &fakeConn{
		kinds: []int{websocket.TextMessage, websocket.BinaryMessage, websocket.BinaryMessage},
		msgs:  [][]byte{[]byte("hello"), {0xFF, 0xD8, 0x01}, {0xFF, 0xD8, 0x02}},
		err:   &websocket.CloseError{Code: websocket.CloseNormalClosure},
	}
	src := NewWebSocketSource(conn)

	f1, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	f2, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if f1.Seq != 1 || f2.Seq != 2 {
		t.Errorf("Expected sequences 1 and 2, got %d and %d", f1.Seq, f2.Seq)
	}
	if f1.Data[2] != 0x01 || f2.Data[2] != 0x02 {
		t.Errorf("Frames out of order: %X %X", f1.Data, f2.Data)
	}

	_, err = src.Next()
	if !IsClosed(err) {
		t.Errorf("Expected close error at end of stream, got %v", err)
	}

	src.Close()
	if !conn.closed {
		t.Error("Close was not forwarded to the connection")
	}
}

func TestStreamSource(t *testing.T) {
	first := []byte{0xFF, 0xD8, 0x10, 0xFF, 0xD9}
	second := []byte{0xFF, 0xD8, 0x20, 0x21, 0xFF, 0xD9}
	stream := append([]byte{0x00}, first...)
	stream = append(stream, second...)

	src := NewStreamSource(io.NopCloser(bytes.NewReader(stream)))

	f1, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !bytes.Equal(f1.Data, first) {
		t.Errorf("Expected %X, got %X", first, f1.Data)
	}
	if f1.Release == nil {
		t.Fatal("Expected pooled frame to carry a release hook")
	}
	// Copy before releasing: the buffer may be reused by the next frame
	got1 := append([]byte(nil), f1.Data...)
	f1.Release()

	f2, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if !bytes.Equal(f2.Data, second) || f2.Seq != 2 {
		t.Errorf("Expected second frame with seq 2, got seq %d data %X", f2.Seq, f2.Data)
	}
	if !bytes.Equal(got1, first) {
		t.Errorf("First frame changed before release: %X", got1)
	}

	if _, err := src.Next(); err != io.EOF {
		t.Errorf("Expected io.EOF, got %v", err)
	}
}

func TestIsClosed(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"EOF", io.EOF, true},
		{"normal closure", &websocket.CloseError{Code: websocket.CloseNormalClosure}, true},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{"abnormal closure", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false},
		{"other", errors.New("connection reset by peer"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsClosed(tt.err); got != tt.want {
				t.Errorf("IsClosed(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWebSocketDialer(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		c.WriteMessage(websocket.BinaryMessage, []byte{0xFF, 0xD8, 0xFF, 0xD9})
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	defer srv.Close()

	addr := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/video"
	conn, err := WebSocketDialer{}.Dial(context.Background(), addr)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	src := NewWebSocketSource(conn)
	defer src.Close()

	f, err := src.Next()
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if len(f.Data) != 4 {
		t.Errorf("Expected 4-byte frame, got %d", len(f.Data))
	}
	if _, err := src.Next(); !IsClosed(err) {
		t.Errorf("Expected orderly close, got %v", err)
	}
}

func TestWebSocketDialerRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	if _, err := (WebSocketDialer{}).Dial(context.Background(), addr); err == nil {
		t.Fatal("Expected dial to a closed server to fail")
	}
}
