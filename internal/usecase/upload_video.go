package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"canistream/internal/domain"
	"canistream/internal/domain/ports"
	"canistream/internal/progress"
	"canistream/internal/timer"
	"canistream/internal/transcode"
	"canistream/internal/upload"
)

type Transcoder interface {
	Load(ctx context.Context) error
	Transcode(ctx context.Context, inputPath string, opts transcode.Options, onProgress transcode.ProgressFunc) (transcode.Output, error)
}

type SegmentUploader interface {
	UploadSegments(ctx context.Context, id domain.VideoID, segments []domain.MediaSegment, onProgress upload.ProgressFunc) error
	UploadThumbnail(ctx context.Context, id domain.VideoID, data []byte) error
}

type UploadVideo struct {
	Transcoder Transcoder
	Backend    ports.Uploader
	Uploader   SegmentUploader
	Reporter   progress.Reporter
	Options    transcode.Options
	// TranscodeWeight is the share of the progress bar given to transcoding.
	TranscodeWeight float64
	Logger          *slog.Logger
	Now             func() time.Time
}

type UploadInput struct {
	Path        string
	Title       string
	Description string
}

type UploadResult struct {
	VideoID   domain.VideoID
	Segments  int
	Bytes     int64
	Thumbnail bool
	Splits    []timer.Split
	Elapsed   time.Duration
}

func (uc UploadVideo) Execute(ctx context.Context, input UploadInput) (UploadResult, error) {
	logger := uc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(input.Path) == "" {
		return UploadResult{}, fmt.Errorf("%w: file path is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.Title) == "" {
		return UploadResult{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if info, err := os.Stat(input.Path); err != nil {
		return UploadResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	} else if info.IsDir() {
		return UploadResult{}, fmt.Errorf("%w: %s is a directory", ErrInvalidInput, input.Path)
	}

	ctx, span := otel.Tracer("canistream/usecase").Start(ctx, "UploadVideo",
		trace.WithAttributes(attribute.String("video.title", input.Title)),
	)
	defer span.End()

	weight := uc.TranscodeWeight
	if weight < 0 || weight >= 100 {
		weight = upload.DefaultConfig().TranscodeWeight
	}

	var timerOpts []timer.Option
	if uc.Now != nil {
		timerOpts = append(timerOpts, timer.WithClock(uc.Now))
	}
	tm := timer.New("upload", logger, timerOpts...)
	tm.Start()

	em := &emitter{reporter: uc.Reporter, now: uc.Now}
	result := UploadResult{}

	fail := func(err error) (UploadResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		em.failed(ctx, result.VideoID, err)
		tm.Stop()
		result.Splits = tm.Splits()
		logger.Error("upload failed",
			slog.String("path", input.Path),
			slog.String("videoId", string(result.VideoID)),
			slog.String("error", err.Error()),
		)
		return result, err
	}

	em.emit(ctx, "", domain.PhaseTranscode, 0, "Loading engine")
	if err := uc.Transcoder.Load(ctx); err != nil {
		return fail(wrapTranscode(err))
	}
	out, err := uc.Transcoder.Transcode(ctx, input.Path, uc.Options, func(p domain.TranscodeProgress) {
		if pct, ok := transcodePercent(p, weight); ok {
			em.emit(ctx, "", domain.PhaseTranscode, pct, p.Message)
		}
	})
	if err != nil {
		return fail(wrapTranscode(err))
	}
	tm.Split("transcode")
	result.Segments = len(out.Segments)
	for _, seg := range out.Segments {
		result.Bytes += int64(len(seg.Data))
	}

	id, err := uc.Backend.CreateVideo(ctx, input.Title, input.Description)
	if err != nil {
		return fail(wrapBackend(err))
	}
	result.VideoID = id
	span.SetAttributes(attribute.String("video.id", string(id)))
	tm.Split("create")
	em.emit(ctx, id, domain.PhaseUpload, weight, "Video created")

	if err := uc.Backend.UploadPlaylist(ctx, id, out.Playlist); err != nil {
		return fail(wrapBackend(err))
	}
	tm.Split("playlist")

	err = uc.Uploader.UploadSegments(ctx, id, out.Segments, func(percent float64, message string) {
		em.emit(ctx, id, domain.PhaseUpload, percent, message)
	})
	if err != nil {
		return fail(wrapBackend(err))
	}
	tm.Split("segments")

	if len(out.Thumbnail) > 0 {
		if err := uc.Uploader.UploadThumbnail(ctx, id, out.Thumbnail); err != nil {
			return fail(wrapBackend(err))
		}
		result.Thumbnail = true
		tm.Split("thumbnail")
	}

	em.emit(ctx, id, domain.PhaseDone, 100, "Upload complete")
	result.Elapsed = tm.Stop()
	result.Splits = tm.Splits()
	logger.Info("upload complete",
		slog.String("videoId", string(id)),
		slog.Int("segments", result.Segments),
		slog.Int64("bytes", result.Bytes),
		slog.Int64("elapsedMs", result.Elapsed.Milliseconds()),
	)
	return result, nil
}

// transcodePercent maps transcoder notifications into [0, weight). Encoding
// takes the first 90% of the band, reading segments back the rest.
func transcodePercent(p domain.TranscodeProgress, weight float64) (float64, bool) {
	if p.Progress == nil {
		return 0, false
	}
	var fraction float64
	switch {
	case p.Progress.Type == "processing" && p.Progress.Total > 0:
		fraction = 0.9 + 0.09*float64(p.Progress.Current)/float64(p.Progress.Total)
	default:
		fraction = 0.9 * math.Max(0, math.Min(p.Progress.Percent, 100)) / 100
	}
	return fraction * weight, true
}

// emitter forwards progress to the reporter, never letting the percentage
// go backwards.
type emitter struct {
	reporter progress.Reporter
	now      func() time.Time

	mu   sync.Mutex
	last float64
}

func (e *emitter) emit(ctx context.Context, id domain.VideoID, phase domain.UploadPhase, percent float64, message string) {
	if e.reporter == nil {
		return
	}
	e.mu.Lock()
	if percent < e.last {
		percent = e.last
	}
	e.last = percent
	e.mu.Unlock()

	e.reporter.Report(ctx, domain.UploadProgress{
		VideoID:   id,
		Phase:     phase,
		Percent:   math.Round(percent*10) / 10,
		Message:   message,
		Timestamp: e.timestamp(),
	})
}

func (e *emitter) failed(ctx context.Context, id domain.VideoID, err error) {
	if e.reporter == nil {
		return
	}
	e.mu.Lock()
	percent := e.last
	e.mu.Unlock()
	// The caller's context may already be done; the failure event still goes out.
	e.reporter.Report(context.WithoutCancel(ctx), domain.UploadProgress{
		VideoID:   id,
		Phase:     domain.PhaseFailed,
		Percent:   math.Round(percent*10) / 10,
		Message:   err.Error(),
		Timestamp: e.timestamp(),
	})
}

func (e *emitter) timestamp() time.Time {
	if e.now != nil {
		return e.now().UTC()
	}
	return time.Now().UTC()
}
