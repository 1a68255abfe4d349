package transcode

import (
	"fmt"
	"strconv"
)

const (
	playlistFile   = "playlist.m3u8"
	segmentPattern = "segment_%03d.ts"
	thumbnailFile  = "thumbnail.jpg"
)

// hlsArgConfig holds the parameters for one single-rendition HLS job.
type hlsArgConfig struct {
	Input           string
	SegmentDuration int
	// VideoBitrate empty means the video stream is copied.
	VideoBitrate string
	AudioBitrate string
}

// buildHLSArgs returns the ffmpeg arguments for cfg. Output paths are
// relative; the command runs inside the job's temp dir.
func buildHLSArgs(cfg hlsArgConfig) []string {
	segDur := cfg.SegmentDuration
	if segDur <= 0 {
		segDur = 2
	}
	audioBitrate := cfg.AudioBitrate
	if audioBitrate == "" {
		audioBitrate = "128k"
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-nostats",
		"-progress", "pipe:1",
		"-y",
		"-i", cfg.Input,
		"-map", "0:v:0",
		"-map", "0:a:0?",
	}

	if cfg.VideoBitrate == "" {
		args = append(args, "-c:v", "copy")
	} else {
		args = append(args,
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
			"-preset", "veryfast",
			"-b:v", cfg.VideoBitrate,
			"-force_key_frames", fmt.Sprintf("expr:gte(t,n_forced*%d)", segDur),
		)
	}

	args = append(args,
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-ac", "2",
		"-f", "hls",
		"-hls_time", strconv.Itoa(segDur),
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", segmentPattern,
		playlistFile,
	)
	return args
}

// buildThumbnailArgs grabs a single JPEG frame at the given offset.
func buildThumbnailArgs(input string, atSeconds float64, output string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-ss", strconv.FormatFloat(atSeconds, 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-q:v", "2",
		output,
	}
}
