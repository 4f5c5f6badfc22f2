// Package render draws live JPEG frame streams onto document surfaces.
//
// A Renderer owns one connection for one surface. Every inbound frame is wrapped
// as a blob reference, decoded on its own goroutine and drawn over the previous
// frame; the reference is revoked right after the draw. Overlapping decodes are
// not sequenced: the last one to finish is what the surface shows, unless
// DropStale is set.
package render

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andresmejia3/framewall/internal/logging"
	"github.com/andresmejia3/framewall/internal/metrics"
	"github.com/andresmejia3/framewall/internal/surface"
	"github.com/andresmejia3/framewall/internal/transport"
	"github.com/andresmejia3/framewall/internal/types"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var log = logging.MustGetLogger("render")

const tracerName = "github.com/andresmejia3/framewall/internal/render"

// Journal records connection sessions. store.Store implements it.
type Journal interface {
	OpenSession(ctx context.Context, id, surface, address string) error
	CloseSession(ctx context.Context, id string, received, drawn, failures int64, reason string) error
}

// Options configures a Renderer.
type Options struct {
	Surface string
	Address string

	// DropStale discards a decoded frame older than the one already drawn.
	DropStale bool

	Decoder Decoder
	Metrics *metrics.Metrics
	Journal Journal
	Tracer  trace.Tracer

	// OnDraw is called after each successful draw.
	OnDraw func(seq uint64)
}

// Stats counts what happened to the frames of one connection.
type Stats struct {
	Received       int64
	Drawn          int64
	DecodeFailures int64
	StaleDropped   int64
}

// Renderer binds one surface to one stream. It runs once.
type Renderer struct {
	opts   Options
	doc    *surface.Document
	dialer transport.Dialer
	blobs  *blobTable

	started  atomic.Bool
	state    atomic.Int32
	inflight sync.WaitGroup

	received atomic.Int64
	drawn    atomic.Int64
	failures atomic.Int64
	stale    atomic.Int64
}

func New(doc *surface.Document, dialer transport.Dialer, opts Options) *Renderer {
	if opts.Decoder == nil {
		opts.Decoder = JPEGDecoder{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	r := &Renderer{
		opts:   opts,
		doc:    doc,
		dialer: dialer,
		blobs:  newBlobTable(opts.Surface),
	}
	r.state.Store(int32(types.StateConnecting))
	return r
}

func (r *Renderer) Surface() string { return r.opts.Surface }
func (r *Renderer) Address() string { return r.opts.Address }

func (r *Renderer) State() types.ConnState {
	return types.ConnState(r.state.Load())
}

// Outstanding is the number of frame references not yet revoked.
func (r *Renderer) Outstanding() int {
	return r.blobs.len()
}

func (r *Renderer) Stats() Stats {
	return Stats{
		Received:       r.received.Load(),
		Drawn:          r.drawn.Load(),
		DecodeFailures: r.failures.Load(),
		StaleDropped:   r.stale.Load(),
	}
}

func (r *Renderer) setState(s types.ConnState) {
	r.state.Store(int32(s))
	r.opts.Metrics.SetState(r.opts.Surface, s)
}

// Run waits for the surface, connects, and renders until the connection closes or
// ctx ends. Connection failures are logged, never returned: the only error is a
// ctx that ended before the surface appeared.
func (r *Renderer) Run(ctx context.Context) (Stats, error) {
	if !r.started.CompareAndSwap(false, true) {
		return r.Stats(), errors.New("renderer already ran")
	}
	addr := r.opts.Address

	// 1. Setup: wait for the document to announce the surface
	s, err := r.doc.WaitFor(ctx, r.opts.Surface)
	if err != nil {
		r.setState(types.StateClosed)
		return r.Stats(), err
	}

	// 2. Connect
	r.setState(types.StateConnecting)
	sessionID := uuid.NewString()
	r.journalOpen(ctx, sessionID)

	conn, err := r.dialer.Dial(ctx, addr)
	if err != nil {
		log.Errorf("connection error (%s): %v", addr, err)
		r.opts.Metrics.ConnectionError(r.opts.Surface)
		r.setState(types.StateClosed)
		log.Infof("connection closed (%s)", addr)
		r.journalClose(sessionID, err.Error())
		return r.Stats(), nil
	}
	r.setState(types.StateOpen)
	log.Infof("connection open (%s) -> %s", addr, r.opts.Surface)

	// 3. Render until the stream ends
	reason := r.consume(ctx, s, transport.NewWebSocketSource(conn))
	r.journalClose(sessionID, reason)
	return r.Stats(), nil
}

// Render drives the pipeline from an already-open source, such as a local MJPEG stream.
func (r *Renderer) Render(ctx context.Context, src transport.Source) (Stats, error) {
	if !r.started.CompareAndSwap(false, true) {
		return r.Stats(), errors.New("renderer already ran")
	}
	s, err := r.doc.WaitFor(ctx, r.opts.Surface)
	if err != nil {
		src.Close()
		r.setState(types.StateClosed)
		return r.Stats(), err
	}
	r.setState(types.StateOpen)
	r.consume(ctx, s, src)
	return r.Stats(), nil
}

// consume reads frames until the source ends, waits for in-flight decodes and
// returns why the stream ended.
func (r *Renderer) consume(ctx context.Context, s *surface.Surface, src transport.Source) string {
	addr := r.opts.Address

	// Tearing down ctx closes the source, which unblocks Next
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			src.Close()
		case <-stop:
		}
	}()

	var reason string
	for {
		frame, err := src.Next()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				reason = "cancelled"
			case transport.IsClosed(err):
				reason = "closed by peer"
			default:
				log.Errorf("connection error (%s): %v", addr, err)
				r.opts.Metrics.ConnectionError(r.opts.Surface)
				reason = err.Error()
			}
			break
		}

		r.received.Add(1)
		r.opts.Metrics.FrameReceived(r.opts.Surface)

		r.inflight.Add(1)
		go r.decodeAndDraw(ctx, s, frame)
	}
	close(stop)
	src.Close()

	r.inflight.Wait()
	r.setState(types.StateClosed)
	log.Infof("connection closed (%s): %s", addr, reason)
	return reason
}

func (r *Renderer) decodeAndDraw(ctx context.Context, s *surface.Surface, frame types.Frame) {
	defer r.inflight.Done()

	// 1-2. Wrap the payload as a typed resource behind a temporary reference
	url := r.blobs.create(frame.Data, ContentTypeJPEG, frame.Release)
	r.opts.Metrics.RefsChanged(r.opts.Surface, 1)
	defer func() {
		if r.blobs.revoke(url) {
			r.opts.Metrics.RefsChanged(r.opts.Surface, -1)
		}
	}()

	_, span := r.opts.Tracer.Start(ctx, "render.frame", trace.WithAttributes(
		attribute.String("framewall.surface", r.opts.Surface),
		attribute.Int64("framewall.seq", int64(frame.Seq)),
		attribute.Int("framewall.bytes", len(frame.Data)),
	))
	defer span.End()

	// 3. Decode
	b, ok := r.blobs.resolve(url)
	if !ok {
		return
	}
	img, err := r.opts.Decoder.Decode(b.contentType, b.data)
	if err != nil {
		r.failures.Add(1)
		r.opts.Metrics.DecodeFailed(r.opts.Surface)
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		log.Warningf("dropping frame %d on %s: %v", frame.Seq, r.opts.Surface, err)
		return
	}

	// 4. Resize and draw; the deferred revoke runs right after
	if !s.DrawSeq(frame.Seq, img, r.opts.DropStale) {
		r.stale.Add(1)
		r.opts.Metrics.StaleDropped(r.opts.Surface)
		log.Debugf("discarding stale frame %d on %s", frame.Seq, r.opts.Surface)
		return
	}
	r.drawn.Add(1)
	r.opts.Metrics.FrameDrawn(r.opts.Surface, frame.ReceivedAt)
	if r.opts.OnDraw != nil {
		r.opts.OnDraw(frame.Seq)
	}
}

func (r *Renderer) journalOpen(ctx context.Context, id string) {
	if r.opts.Journal == nil {
		return
	}
	if err := r.opts.Journal.OpenSession(ctx, id, r.opts.Surface, r.opts.Address); err != nil {
		log.Warningf("journal: failed to open session %s: %v", id, err)
	}
}

func (r *Renderer) journalClose(id, reason string) {
	if r.opts.Journal == nil {
		return
	}
	// Background: the run context is usually cancelled by now
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st := r.Stats()
	if err := r.opts.Journal.CloseSession(ctx, id, st.Received, st.Drawn, st.DecodeFailures, reason); err != nil {
		log.Warningf("journal: failed to close session %s: %v", id, err)
	}
}
