package cmd

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/andresmejia3/framewall/internal/config"
	"github.com/andresmejia3/framewall/internal/render"
	"github.com/andresmejia3/framewall/internal/snapshot"
	"github.com/andresmejia3/framewall/internal/surface"
	"github.com/andresmejia3/framewall/internal/transport"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// CaptureOptions configures a one-shot capture of a live stream
type CaptureOptions struct {
	Stream    string
	Frames    int
	Output    string
	Quality   int
	DropStale bool
}

var captureOpts CaptureOptions

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Attach to one live stream, draw N frames and save the surface as a JPEG",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateCaptureFlags(&captureOpts); err != nil {
			return err
		}
		return runCapture(cmd.Context(), cfg, captureOpts)
	},
}

func init() {
	captureCmd.Flags().StringVarP(&captureOpts.Stream, "stream", "s", "objectCanvas=/ws/objects", "Surface binding as surface=/ws/path")
	captureCmd.Flags().IntVarP(&captureOpts.Frames, "frames", "n", 1, "Number of frames to draw before saving")
	captureCmd.Flags().StringVarP(&captureOpts.Output, "output", "o", "", "Output JPEG path (default: <surface>.jpg)")
	captureCmd.Flags().IntVarP(&captureOpts.Quality, "quality", "q", 90, "JPEG quality of the saved surface (1-100)")
	captureCmd.Flags().BoolVar(&captureOpts.DropStale, "drop-stale", false, "Discard decoded frames older than the one already drawn")

	rootCmd.AddCommand(captureCmd)
}

// validateCaptureFlags ensures all CLI arguments are valid before connecting.
func validateCaptureFlags(opts *CaptureOptions) error {
	b, err := config.ParseBinding(opts.Stream)
	if err != nil {
		return err
	}
	if opts.Frames < 1 {
		return fmt.Errorf("invalid frame count: must be >= 1, got %d", opts.Frames)
	}
	if opts.Quality < 1 || opts.Quality > 100 {
		return fmt.Errorf("invalid quality: must be between 1 and 100, got %d", opts.Quality)
	}
	if opts.Output == "" {
		opts.Output = b.Surface + ".jpg"
	}
	return nil
}

// runCapture renders a single stream until opts.Frames frames are drawn or the stream closes,
// then writes whatever the surface shows.
func runCapture(ctx context.Context, c config.Config, opts CaptureOptions) error {
	b, err := config.ParseBinding(opts.Stream)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	doc := surface.NewDocument()
	surf, err := doc.Create(b.Surface)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(opts.Frames,
		progressbar.OptionSetDescription("🎯 Capturing "+b.Surface),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)

	var drawn atomic.Int64
	dialer := transport.WebSocketDialer{
		HandshakeTimeout: c.HandshakeTimeoutDuration(),
		ReadLimit:        c.ReadLimit,
	}
	r := render.New(doc, dialer, render.Options{
		Surface:   b.Surface,
		Address:   c.URL(b),
		DropStale: opts.DropStale,
		OnDraw: func(seq uint64) {
			n := drawn.Add(1)
			if n <= int64(opts.Frames) {
				bar.Add(1)
			}
			if n >= int64(opts.Frames) {
				cancel()
			}
		},
	})

	fmt.Fprintf(os.Stderr, "📡 %s <- %s\n", b.Surface, r.Address())
	stats, err := r.Run(ctx)
	if err != nil {
		return err
	}
	bar.Finish()

	if stats.Drawn == 0 {
		return fmt.Errorf("no frame was drawn on %s (received %d, decode failures %d)", b.Surface, stats.Received, stats.DecodeFailures)
	}

	data, err := snapshot.EncodeJPEG(surf.Snapshot(), opts.Quality)
	if err != nil {
		return fmt.Errorf("failed to encode surface: %w", err)
	}
	if err := os.WriteFile(opts.Output, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.Output, err)
	}

	width, height := surf.Size()
	fmt.Fprintf(os.Stderr, "\n✅ Saved %s (%dx%d) after %d frames.\n", opts.Output, width, height, stats.Drawn)
	return nil
}
