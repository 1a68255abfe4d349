package transcode

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Prober reads container metadata with ffprobe.
type Prober struct {
	binary string
}

func NewProber(binary string) *Prober {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &Prober{binary: bin}
}

// MediaInfo is the subset of probe output the transcoder needs.
type MediaInfo struct {
	Duration float64
	HasVideo bool
	HasAudio bool
}

func (p *Prober) Probe(ctx context.Context, filePath string) (MediaInfo, error) {
	path := strings.TrimSpace(filePath)
	if path == "" {
		return MediaInfo{}, errors.New("file path is required")
	}
	return p.runProbe(ctx, []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	})
}

const maxProbeTimeout = 30 * time.Second

func (p *Prober) runProbe(ctx context.Context, args []string) (MediaInfo, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxProbeTimeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, p.binary, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return MediaInfo{}, fmt.Errorf("ffprobe failed: %w", err)
		}
		return MediaInfo{}, fmt.Errorf("ffprobe failed: %w: %s", err, msg)
	}

	info, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		return MediaInfo{}, fmt.Errorf("ffprobe output parse failed: %w", err)
	}
	return info, nil
}

type probePayload struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbeOutput(data []byte) (MediaInfo, error) {
	var payload probePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return MediaInfo{}, err
	}
	var info MediaInfo
	for _, stream := range payload.Streams {
		switch stream.CodecType {
		case "video":
			info.HasVideo = true
		case "audio":
			info.HasAudio = true
		}
	}
	if payload.Format.Duration != "" {
		if d, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil && d > 0 {
			info.Duration = d
		}
	}
	return info, nil
}
