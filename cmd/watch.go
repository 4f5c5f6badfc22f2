package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/andresmejia3/framewall/internal/config"
	"github.com/andresmejia3/framewall/internal/metrics"
	"github.com/andresmejia3/framewall/internal/render"
	"github.com/andresmejia3/framewall/internal/server"
	"github.com/andresmejia3/framewall/internal/snapshot"
	"github.com/andresmejia3/framewall/internal/surface"
	"github.com/andresmejia3/framewall/internal/transport"
	"github.com/andresmejia3/framewall/internal/types"
	"github.com/spf13/cobra"
)

// WatchOptions holds the watch flags that are not part of the config file
type WatchOptions struct {
	Streams          []string
	Host             string
	Listen           string
	HandshakeTimeout string
	DropStale        bool
	SnapshotDir      string
	SnapshotBucket   string
	SnapshotInterval string
	// DeferSurfaces leaves the document empty; surfaces are inserted later with PUT /surfaces/{id}
	DeferSurfaces bool
	// ExitOnClose returns once every stream has closed instead of serving the last frames until interrupted
	ExitOnClose bool
}

var watchOpts WatchOptions

var watchCmd = &cobra.Command{
	Use:         "watch",
	Short:       "Render every configured stream and serve the surfaces over HTTP",
	Annotations: map[string]string{dbAnnotation: dbOptional},
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyWatchFlags(cmd, &cfg, watchOpts); err != nil {
			return err
		}
		return runWatch(cmd.Context(), cfg, watchOpts)
	},
}

func init() {
	addWatchFlags(watchCmd, &watchOpts)
	rootCmd.AddCommand(watchCmd)
}

func addWatchFlags(cmd *cobra.Command, opts *WatchOptions) {
	cmd.Flags().StringArrayVarP(&opts.Streams, "stream", "s", nil, "Surface binding as surface=/ws/path (repeatable, replaces the configured streams)")
	cmd.Flags().StringVar(&opts.Host, "host", "", "Stream host:port (default from config, localhost:8000)")
	cmd.Flags().StringVarP(&opts.Listen, "listen", "l", "", "HTTP listen address for surfaces and /metrics (default :8090)")
	cmd.Flags().StringVar(&opts.HandshakeTimeout, "handshake-timeout", "", "WebSocket handshake timeout (e.g. '10s')")
	cmd.Flags().BoolVar(&opts.DropStale, "drop-stale", false, "Discard decoded frames older than the one already drawn")
	cmd.Flags().StringVar(&opts.SnapshotDir, "snapshot-dir", "", "Write periodic surface snapshots to this directory")
	cmd.Flags().StringVar(&opts.SnapshotBucket, "snapshot-bucket", "", "Upload periodic surface snapshots to this S3 bucket")
	cmd.Flags().StringVar(&opts.SnapshotInterval, "snapshot-interval", "", "Time between snapshots (e.g. '5s')")
	cmd.Flags().BoolVar(&opts.DeferSurfaces, "defer-surfaces", false, "Start with no surfaces; renderers attach when a surface is PUT")
	cmd.Flags().BoolVar(&opts.ExitOnClose, "exit-on-close", false, "Exit once every stream has closed")
}

// applyWatchFlags layers explicitly set flags over the loaded config and validates the result.
func applyWatchFlags(cmd *cobra.Command, c *config.Config, opts WatchOptions) error {
	flags := cmd.Flags()

	if len(opts.Streams) > 0 {
		var bindings []types.Binding
		for _, s := range opts.Streams {
			b, err := config.ParseBinding(s)
			if err != nil {
				return err
			}
			bindings = append(bindings, b)
		}
		c.Streams = bindings
	}
	if flags.Changed("host") {
		c.Host = opts.Host
	}
	if flags.Changed("listen") {
		c.Listen = opts.Listen
	}
	if flags.Changed("handshake-timeout") {
		c.HandshakeTimeout = opts.HandshakeTimeout
	}
	if flags.Changed("drop-stale") {
		c.DropStale = opts.DropStale
	}
	if flags.Changed("snapshot-dir") {
		c.Snapshot.Dir = opts.SnapshotDir
	}
	if flags.Changed("snapshot-bucket") {
		c.Snapshot.Bucket = opts.SnapshotBucket
	}
	if flags.Changed("snapshot-interval") {
		c.Snapshot.Interval = opts.SnapshotInterval
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// newSnapshotSink picks the configured sink. The bucket wins over the directory; nil means no snapshots.
func newSnapshotSink(c config.Config) snapshot.Sink {
	switch {
	case c.Snapshot.Bucket != "":
		client := snapshot.NewS3Client(c.Snapshot.Region, c.Snapshot.Endpoint)
		return snapshot.NewS3Sink(client, c.Snapshot.Bucket, c.Snapshot.Prefix)
	case c.Snapshot.Dir != "":
		return snapshot.DirSink{Dir: c.Snapshot.Dir}
	default:
		return nil
	}
}

// newGroup builds one renderer per binding, all sharing the document, dialer and metrics.
func newGroup(doc *surface.Document, c config.Config, m *metrics.Metrics, j render.Journal) *render.Group {
	dialer := transport.WebSocketDialer{
		HandshakeTimeout: c.HandshakeTimeoutDuration(),
		ReadLimit:        c.ReadLimit,
	}

	renderers := make([]*render.Renderer, 0, len(c.Streams))
	for _, b := range c.Streams {
		renderers = append(renderers, render.New(doc, dialer, render.Options{
			Surface:   b.Surface,
			Address:   c.URL(b),
			DropStale: c.DropStale,
			Metrics:   m,
			Journal:   j,
		}))
	}
	return render.NewGroup(renderers...)
}

// runWatch renders every binding and serves the document until ctx ends
// (or, with ExitOnClose, until every stream has closed).
func runWatch(ctx context.Context, c config.Config, opts WatchOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 1. Document and surfaces
	doc := surface.NewDocument()
	if !opts.DeferSurfaces {
		for _, b := range c.Streams {
			if _, err := doc.Create(b.Surface); err != nil {
				return err
			}
		}
	}

	// 2. Renderers
	m := metrics.New()
	group := newGroup(doc, c, m, journal())
	for _, r := range group.Renderers() {
		fmt.Fprintf(os.Stderr, "📡 %s <- %s\n", r.Surface(), r.Address())
	}

	// 3. HTTP host
	srv := server.New(doc, group, m.Registry())
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.ListenAndServe(ctx, c.Listen)
	}()
	fmt.Fprintf(os.Stderr, "🖼️  Serving surfaces on %s\n", c.Listen)

	// 4. Snapshots
	var snap *snapshot.Snapshotter
	if sink := newSnapshotSink(c); sink != nil {
		snap = &snapshot.Snapshotter{Doc: doc, Sink: sink}
		go snap.Run(ctx, c.SnapshotInterval())
		fmt.Fprintf(os.Stderr, "📸 Snapshots every %s\n", c.SnapshotInterval())
	}

	// 5. Render until every stream is closed
	groupDone := make(chan map[string]render.Stats, 1)
	go func() {
		groupDone <- group.Run(ctx)
	}()

	var stats map[string]render.Stats
	select {
	case stats = <-groupDone:
		printSummary(os.Stderr, stats)
		if !opts.ExitOnClose {
			fmt.Fprintf(os.Stderr, "⏸️  All streams closed. Serving last frames until interrupted...\n")
			select {
			case <-ctx.Done():
			case err := <-srvErr:
				return err
			}
		}
	case err := <-srvErr:
		// The HTTP host failed to start; tear the renderers down too
		cancel()
		<-groupDone
		return err
	}

	// Final snapshot so the sink holds the last frame of every surface
	if snap != nil {
		finalCtx, finalCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer finalCancel()
		if _, err := snap.Once(finalCtx); err != nil {
			fmt.Fprintf(os.Stderr, "⚠️  Final snapshot failed: %v\n", err)
		}
	}

	cancel()
	return <-srvErr
}

// printSummary writes one line per surface, sorted by surface id.
func printSummary(w io.Writer, stats map[string]render.Stats) {
	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Fprintf(w, "\n🏁 Streams closed.\n")
	for _, id := range ids {
		st := stats[id]
		fmt.Fprintf(w, "   %-14s received %d, drawn %d, decode failures %d, stale %d\n",
			id, st.Received, st.Drawn, st.DecodeFailures, st.StaleDropped)
	}
}
