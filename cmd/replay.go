package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/andresmejia3/framewall/internal/render"
	"github.com/andresmejia3/framewall/internal/snapshot"
	"github.com/andresmejia3/framewall/internal/surface"
	"github.com/andresmejia3/framewall/internal/transport"
	"github.com/andresmejia3/framewall/internal/types"
	"github.com/andresmejia3/framewall/internal/utils"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// ReplayOptions configures an offline replay of a recorded stream
type ReplayOptions struct {
	InputPath string
	Surface   string
	Output    string
	FPS       float64
	DropStale bool
}

var replayOpts ReplayOptions

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Render a recorded MJPEG stream (or any video via ffmpeg) and save the final surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateReplayFlags(&replayOpts); err != nil {
			return err
		}
		return runReplay(cmd.Context(), replayOpts)
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayOpts.InputPath, "input", "i", "", "Path to an MJPEG/JPEG stream or a video file")
	replayCmd.Flags().StringVar(&replayOpts.Surface, "surface", "videoCanvas", "Surface id to render onto")
	replayCmd.Flags().StringVarP(&replayOpts.Output, "output", "o", "", "Output JPEG path (default: replay-<source id>.jpg)")
	replayCmd.Flags().Float64Var(&replayOpts.FPS, "fps", 0, "Pace frames like a live stream (0 = as fast as possible)")
	replayCmd.Flags().BoolVar(&replayOpts.DropStale, "drop-stale", true, "Discard decoded frames older than the one already drawn")

	replayCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(replayCmd)
}

// validateReplayFlags ensures all CLI arguments are valid before starting heavy processes.
func validateReplayFlags(opts *ReplayOptions) error {
	info, err := os.Stat(opts.InputPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("input file does not exist: %w", err)
		}
		return fmt.Errorf("unable to access input file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("input path %s is a directory, expected a file", opts.InputPath)
	}
	if opts.Surface == "" {
		return fmt.Errorf("surface must not be empty")
	}
	if opts.FPS < 0 {
		return fmt.Errorf("invalid fps: must be >= 0, got %v", opts.FPS)
	}
	if opts.Output == "" {
		id, err := utils.GenerateSourceID(opts.InputPath)
		if err != nil {
			return fmt.Errorf("failed to generate source ID: %w", err)
		}
		opts.Output = fmt.Sprintf("replay-%s.jpg", id[:12])
	}
	return nil
}

// isJPEGStream reports whether the file already is a concatenated JPEG stream.
func isJPEGStream(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, len(utils.JpegSOI))
	if _, err := io.ReadFull(f, head); err != nil {
		return false, nil
	}
	return utils.IsJPEG(head), nil
}

// pacedSource delays every frame after the first by a fixed interval.
type pacedSource struct {
	transport.Source
	interval time.Duration
	next     time.Time
}

func (p *pacedSource) Next() (types.Frame, error) {
	if !p.next.IsZero() {
		time.Sleep(time.Until(p.next))
	}
	frame, err := p.Source.Next()
	p.next = time.Now().Add(p.interval)
	return frame, err
}

// runReplay streams the input through a renderer and writes the final surface.
func runReplay(ctx context.Context, opts ReplayOptions) error {
	direct, err := isJPEGStream(opts.InputPath)
	if err != nil {
		return err
	}

	// 1. Open the frame stream: the file itself, or an ffmpeg transcoding pipe
	var rc io.ReadCloser
	var ffmpeg *utils.SafeCommand
	totalFrames := -1

	if direct {
		f, err := os.Open(opts.InputPath)
		if err != nil {
			return err
		}
		rc = f
		fmt.Fprintf(os.Stderr, "📼 Replaying JPEG stream %s\n", opts.InputPath)
	} else {
		if n := utils.GetTotalFrames(opts.InputPath); n > 0 {
			totalFrames = n
		}
		ffmpeg = utils.NewFFmpegCmd(opts.InputPath)
		out, err := ffmpeg.StdoutPipe()
		if err != nil {
			utils.Die("Failed to create FFmpeg stdout pipe", err, nil)
		}
		if err := ffmpeg.Start(); err != nil {
			utils.Die("Failed to start FFmpeg", err, ffmpeg)
		}
		rc = out
		fmt.Fprintf(os.Stderr, "📼 Transcoding %s with ffmpeg\n", opts.InputPath)
	}

	var src transport.Source = transport.NewStreamSource(rc)
	if opts.FPS > 0 {
		src = &pacedSource{Source: src, interval: time.Duration(float64(time.Second) / opts.FPS)}
	}

	bar := progressbar.NewOptions(totalFrames,
		progressbar.OptionSetDescription("🎞️  Replaying"),
		progressbar.OptionSetWriter(os.Stderr), // Write bar to Stderr
		progressbar.OptionShowCount(),
	)

	// 2. Render onto a fresh surface
	doc := surface.NewDocument()
	surf, err := doc.Create(opts.Surface)
	if err != nil {
		return err
	}
	r := render.New(doc, nil, render.Options{
		Surface:   opts.Surface,
		Address:   opts.InputPath,
		DropStale: opts.DropStale,
		OnDraw:    func(uint64) { bar.Add(1) },
	})

	stats, err := r.Render(ctx, src)
	if err != nil {
		return err
	}
	bar.Finish()

	// 3. Cleanup & completion check
	if ffmpeg != nil {
		if err := ffmpeg.Wait(); err != nil && ctx.Err() == nil {
			utils.Die("FFmpeg execution failed", err, ffmpeg)
		}
	}
	if stats.Drawn == 0 {
		return fmt.Errorf("no frame could be drawn from %s (read %d, decode failures %d)", opts.InputPath, stats.Received, stats.DecodeFailures)
	}

	data, err := snapshot.EncodeJPEG(surf.Snapshot(), 90)
	if err != nil {
		return fmt.Errorf("failed to encode surface: %w", err)
	}
	if err := os.WriteFile(opts.Output, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.Output, err)
	}

	width, height := surf.Size()
	fmt.Fprintf(os.Stderr, "\n🏁 Replay Complete. Drew %d of %d frames (%d failed, %d stale). Saved %s (%dx%d).\n",
		stats.Drawn, stats.Received, stats.DecodeFailures, stats.StaleDropped, opts.Output, width, height)
	return nil
}
