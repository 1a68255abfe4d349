package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/redis/go-redis/v9"

	"canistream/internal/domain"
	"canistream/internal/progress"
	"canistream/internal/transcode"
	"canistream/internal/upload"
	"canistream/internal/usecase"
)

type transcoder = usecase.Transcoder

func uploadCommand(ctx context.Context, env *cliEnv, fs *flag.FlagSet, args []string) error {
	c := env.cfg.Client
	title := fs.String("title", "", "video title (required)")
	description := fs.String("description", "", "video description")
	segmentDuration := fs.Int("segment-duration", c.SegmentDuration, "target segment length in seconds")
	videoBitrate := fs.String("video-bitrate", c.VideoBitrate, "re-encode video at this bitrate; empty copies the stream")
	audioBitrate := fs.String("audio-bitrate", c.AudioBitrate, "AAC audio bitrate")
	noThumbnail := fs.Bool("no-thumbnail", false, "skip thumbnail extraction")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("%w: exactly one input file is required", errUsage)
	}

	upCfg := upload.Config{
		MaxChunkSize:          int(c.ChunkBytes),
		RetryCount:            c.RetryCount,
		RetryDelay:            c.RetryDelay,
		MaxConcurrentSegments: c.MaxConcurrentSegments,
		TranscodeWeight:       upload.DefaultConfig().TranscodeWeight,
	}
	coordinator := upload.NewCoordinator(env.backend, upCfg, upload.WithLogger(env.logger))

	reporters := progress.Multi{progress.NewLogReporter(env.logger)}
	if c.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword})
		defer client.Close()
		reporters = append(reporters, progress.NewRedisReporter(client, env.logger))
	}

	var tr transcoder
	if env.newTranscoder != nil {
		tr = env.newTranscoder()
	} else {
		tr = transcode.New(c.FFMPEGPath, c.FFProbePath, transcode.WithLogger(env.logger))
	}

	uc := usecase.UploadVideo{
		Transcoder: tr,
		Backend:    env.backend,
		Uploader:   coordinator,
		Reporter:   reporters,
		Options: transcode.Options{
			SegmentDuration: *segmentDuration,
			VideoBitrate:    *videoBitrate,
			AudioBitrate:    *audioBitrate,
			Thumbnail:       !*noThumbnail,
		},
		TranscodeWeight: upCfg.TranscodeWeight,
		Logger:          env.logger,
	}
	res, err := uc.Execute(ctx, usecase.UploadInput{
		Path:        fs.Arg(0),
		Title:       *title,
		Description: *description,
	})
	if err != nil {
		if res.VideoID != "" {
			env.logger.Warn("partial upload left on backend", slog.String("videoId", string(res.VideoID)))
		}
		return err
	}

	for _, s := range res.Splits {
		env.logger.Info("upload timing", slog.String("step", s.Label), slog.Duration("elapsed", s.Elapsed))
	}
	fmt.Fprintln(env.stdout, res.VideoID)
	return nil
}

func listCommand(ctx context.Context, env *cliEnv, fs *flag.FlagSet, args []string) error {
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	if err := fs.Parse(args); err != nil {
		return err
	}

	videos, err := usecase.ListVideos{Backend: env.backend}.Execute(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(env.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(videos)
	}

	tw := tabwriter.NewWriter(env.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDESCRIPTION\tHASH")
	for _, v := range videos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", v.ID, v.Title, oneLine(v.Description), shortHash(v.Hash))
	}
	return tw.Flush()
}

func deleteCommand(ctx context.Context, env *cliEnv, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("%w: at least one video id is required", errUsage)
	}

	uc := usecase.DeleteVideo{Backend: env.backend}
	var failed int
	for _, raw := range fs.Args() {
		id := domain.VideoID(strings.TrimSpace(raw))
		if err := uc.Execute(ctx, id); err != nil {
			failed++
			env.logger.Error("delete failed", slog.String("videoId", string(id)), slog.String("error", err.Error()))
			continue
		}
		fmt.Fprintf(env.stdout, "deleted %s\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deletes failed", failed, fs.NArg())
	}
	return nil
}

func progressCommand(ctx context.Context, env *cliEnv, fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("%w: exactly one video id is required", errUsage)
	}
	p, err := env.backend.Progress(ctx, domain.VideoID(fs.Arg(0)))
	if err != nil {
		return err
	}
	fmt.Fprintf(env.stdout, "%s %.1f%% %s\n", p.Phase, p.Percent, p.Message)
	return nil
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 40 {
		return s[:37] + "..."
	}
	return s
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
