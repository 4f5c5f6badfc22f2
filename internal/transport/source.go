package transport

import (
	"bufio"
	"io"
	"sync"
	"time"

	"github.com/andresmejia3/framewall/internal/logging"
	"github.com/andresmejia3/framewall/internal/types"
	"github.com/andresmejia3/framewall/internal/utils"
	"github.com/gorilla/websocket"
	"github.com/juju/errors"
)

var log = logging.MustGetLogger("transport")

const megabyte = 1024 * 1024

// Source yields encoded frames one at a time. Next returns io.EOF or a close
// error once the stream has ended.
type Source interface {
	Next() (types.Frame, error)
	Close() error
}

// WebSocketSource yields one frame per binary message.
type WebSocketSource struct {
	conn Conn
	seq  uint64
}

func NewWebSocketSource(conn Conn) *WebSocketSource {
	return &WebSocketSource{conn: conn}
}

func (s *WebSocketSource) Next() (types.Frame, error) {
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			return types.Frame{}, errors.Trace(err)
		}
		if kind != websocket.BinaryMessage {
			log.Debugf("ignoring non-binary message (type %d, %d bytes)", kind, len(data))
			continue
		}
		s.seq++
		return types.Frame{Seq: s.seq, Data: data, ReceivedAt: time.Now()}, nil
	}
}

func (s *WebSocketSource) Close() error {
	return s.conn.Close()
}

// Buffer pool to reduce GC pressure while splitting byte streams
var frameBufferPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, megabyte) },
}

// StreamSource splits a concatenated JPEG byte stream (MJPEG, image2pipe) into frames.
// Each frame's buffer comes from a pool and goes back when the frame is released.
type StreamSource struct {
	rc      io.ReadCloser
	scanner *bufio.Scanner
	seq     uint64
}

func NewStreamSource(rc io.ReadCloser) *StreamSource {
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)
	return &StreamSource{rc: rc, scanner: scanner}
}

func (s *StreamSource) Next() (types.Frame, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return types.Frame{}, errors.Annotate(err, "frame scanner failed")
		}
		return types.Frame{}, io.EOF
	}

	token := s.scanner.Bytes()
	buf := frameBufferPool.Get().([]byte)
	if cap(buf) < len(token) {
		buf = make([]byte, len(token))
	}
	buf = buf[:len(token)]
	copy(buf, token)

	s.seq++
	return types.Frame{
		Seq:        s.seq,
		Data:       buf,
		ReceivedAt: time.Now(),
		Release:    func() { frameBufferPool.Put(buf[:0]) },
	}, nil
}

func (s *StreamSource) Close() error {
	return s.rc.Close()
}
