// Package transcode converts a source video into a single-rendition HLS
// playlist and its transport-stream segments using ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"canistream/internal/domain"
	"canistream/internal/metrics"
)

type Options struct {
	// SegmentDuration is the target segment length in seconds.
	SegmentDuration int
	// VideoBitrate re-encodes video with libx264 when set; otherwise the
	// video stream is copied.
	VideoBitrate string
	AudioBitrate string
	Thumbnail    bool
}

func DefaultOptions() Options {
	return Options{
		SegmentDuration: 2,
		AudioBitrate:    "128k",
		Thumbnail:       true,
	}
}

func (o Options) withDefaults() Options {
	if o.SegmentDuration <= 0 {
		o.SegmentDuration = 2
	}
	if strings.TrimSpace(o.AudioBitrate) == "" {
		o.AudioBitrate = "128k"
	}
	o.VideoBitrate = strings.TrimSpace(o.VideoBitrate)
	return o
}

// Output is the result of one transcode. Segments are ordered by Index.
type Output struct {
	Playlist  string
	Segments  []domain.MediaSegment
	Thumbnail []byte
}

// ProgressFunc receives transcoder notifications.
type ProgressFunc func(domain.TranscodeProgress)

type Transcoder struct {
	ffmpeg  string
	ffprobe string
	prober  *Prober
	logger  *slog.Logger

	loadMu sync.Mutex
	loaded bool
}

type Option func(*Transcoder)

func WithLogger(logger *slog.Logger) Option {
	return func(t *Transcoder) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func New(ffmpegPath, ffprobePath string, opts ...Option) *Transcoder {
	ffmpeg := strings.TrimSpace(ffmpegPath)
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	t := &Transcoder{
		ffmpeg: ffmpeg,
		prober: NewProber(ffprobePath),
		logger: slog.Default(),
	}
	t.ffprobe = t.prober.binary
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load verifies the ffmpeg and ffprobe binaries. Only the first successful
// call does any work; a failed call leaves the transcoder unloaded.
func (t *Transcoder) Load(ctx context.Context) error {
	t.loadMu.Lock()
	defer t.loadMu.Unlock()
	if t.loaded {
		return nil
	}
	for _, bin := range []string{t.ffmpeg, t.ffprobe} {
		out, err := exec.CommandContext(ctx, bin, "-version").CombinedOutput()
		if err != nil {
			return &domain.TranscodeError{Stage: "load", Err: fmt.Errorf("%s -version: %w", bin, err)}
		}
		t.logger.Debug("transcoder binary ready",
			slog.String("binary", bin),
			slog.String("version", firstLine(string(out))),
		)
	}
	t.loaded = true
	return nil
}

func (t *Transcoder) Loaded() bool {
	t.loadMu.Lock()
	defer t.loadMu.Unlock()
	return t.loaded
}

// Transcode converts inputPath into HLS. It is all-or-nothing: on error no
// segments are returned. The thumbnail is best effort.
func (t *Transcoder) Transcode(ctx context.Context, inputPath string, opts Options, onProgress ProgressFunc) (Output, error) {
	start := time.Now()
	out, err := t.transcode(ctx, inputPath, opts.withDefaults(), onProgress)
	if err != nil {
		metrics.TranscodeFailuresTotal.Inc()
		return Output{}, err
	}
	metrics.TranscodeDuration.Observe(time.Since(start).Seconds())
	return out, nil
}

func (t *Transcoder) transcode(ctx context.Context, inputPath string, opts Options, onProgress ProgressFunc) (Output, error) {
	notify := func(p domain.TranscodeProgress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	input, err := filepath.Abs(strings.TrimSpace(inputPath))
	if err != nil || strings.TrimSpace(inputPath) == "" {
		return Output{}, &domain.TranscodeError{Stage: "input", Err: errors.New("input path is required")}
	}
	if _, err := os.Stat(input); err != nil {
		return Output{}, &domain.TranscodeError{Stage: "input", Err: err}
	}

	notify(domain.TranscodeProgress{Message: "Loading engine"})
	if err := t.Load(ctx); err != nil {
		return Output{}, err
	}

	var duration float64
	if info, err := t.prober.Probe(ctx, input); err != nil {
		t.logger.Warn("probe failed, transcode progress unavailable",
			slog.String("input", input),
			slog.String("error", err.Error()),
		)
	} else {
		duration = info.Duration
	}

	dir, err := os.MkdirTemp("", "canistream-hls-*")
	if err != nil {
		return Output{}, &domain.TranscodeError{Stage: "transcode", Err: err}
	}
	defer os.RemoveAll(dir)

	notify(domain.TranscodeProgress{Message: "Transcoding"})
	args := buildHLSArgs(hlsArgConfig{
		Input:           input,
		SegmentDuration: opts.SegmentDuration,
		VideoBitrate:    opts.VideoBitrate,
		AudioBitrate:    opts.AudioBitrate,
	})
	if err := t.runFFmpeg(ctx, dir, args, duration, notify); err != nil {
		return Output{}, &domain.TranscodeError{Stage: "transcode", Err: err}
	}

	playlistBytes, err := os.ReadFile(filepath.Join(dir, playlistFile))
	if err != nil {
		return Output{}, &domain.TranscodeError{Stage: "read", Err: err}
	}
	playlist := string(playlistBytes)
	refs := playlistSegments(playlist)
	if len(refs) == 0 {
		return Output{}, &domain.TranscodeError{Stage: "read", Err: errors.New("ffmpeg produced no segments")}
	}

	segments := make([]domain.MediaSegment, 0, len(refs))
	for i, ref := range refs {
		data, err := os.ReadFile(filepath.Join(dir, filepath.Base(ref)))
		if err != nil {
			return Output{}, &domain.TranscodeError{Stage: "read", Err: err}
		}
		segments = append(segments, domain.MediaSegment{Index: i, Data: data})
		notify(domain.TranscodeProgress{
			Message: fmt.Sprintf("Processing segment %d of %d", i+1, len(refs)),
			Progress: &domain.StageProgress{
				Type:    "processing",
				Current: i + 1,
				Total:   len(refs),
				Percent: float64(i+1) / float64(len(refs)) * 100,
			},
		})
	}

	var thumbnail []byte
	if opts.Thumbnail {
		thumbnail = t.grabThumbnail(ctx, dir, input, duration)
	}

	notify(domain.TranscodeProgress{Message: "Done"})
	t.logger.Info("transcode finished",
		slog.String("input", input),
		slog.Int("segments", len(segments)),
		slog.Bool("thumbnail", len(thumbnail) > 0),
	)
	return Output{Playlist: playlist, Segments: segments, Thumbnail: thumbnail}, nil
}

func (t *Transcoder) runFFmpeg(ctx context.Context, dir string, args []string, duration float64, notify func(domain.TranscodeProgress)) error {
	cmd := exec.CommandContext(ctx, t.ffmpeg, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		last := -1.0
		scanProgress(stdout, func(seconds float64) {
			if duration <= 0 {
				return
			}
			percent := seconds / duration * 100
			if percent > 100 {
				percent = 100
			}
			if percent <= last {
				return
			}
			last = percent
			notify(domain.TranscodeProgress{
				Message: "Transcoding",
				Progress: &domain.StageProgress{
					Type:    "transcoding",
					Current: int(seconds),
					Total:   int(duration),
					Percent: percent,
				},
			})
		})
	}()
	<-scanned

	if err := cmd.Wait(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func (t *Transcoder) grabThumbnail(ctx context.Context, dir, input string, duration float64) []byte {
	at := 1.0
	if duration > 0 && duration < 1 {
		at = 0
	}
	out := filepath.Join(dir, thumbnailFile)
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.ffmpeg, buildThumbnailArgs(input, at, out)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.logger.Warn("thumbnail extraction failed",
			slog.String("input", input),
			slog.String("error", err.Error()),
			slog.String("stderr", strings.TrimSpace(stderr.String())),
		)
		return nil
	}
	data, err := os.ReadFile(out)
	if err != nil || len(data) == 0 {
		t.logger.Warn("thumbnail missing after extraction", slog.String("input", input))
		return nil
	}
	return data
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
