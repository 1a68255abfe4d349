// Package playlist repairs media playlists fetched from the backend and
// rewrites their segment references for the playback loader.
package playlist

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"canistream/internal/domain"
)

const (
	tagHeader         = "#EXTM3U"
	tagVersion        = "#EXT-X-VERSION"
	tagTargetDuration = "#EXT-X-TARGETDURATION"
	tagMediaSequence  = "#EXT-X-MEDIA-SEQUENCE"
	tagInf            = "#EXTINF"
	tagKey            = "#EXT-X-KEY"
	tagSessionKey     = "#EXT-X-SESSION-KEY"
)

// Tags that belong to the next segment reference rather than the playlist.
var segmentTags = map[string]bool{
	"#EXT-X-BYTERANGE":         true,
	"#EXT-X-DISCONTINUITY":     true,
	"#EXT-X-PROGRAM-DATE-TIME": true,
	"#EXT-X-DATERANGE":         true,
	"#EXT-X-MAP":               true,
	"#EXT-X-GAP":               true,
	"#EXT-X-BITRATE":           true,
}

type Config struct {
	Version         int
	TargetDuration  int
	MediaSequence   int
	SegmentDuration float64
}

func DefaultConfig() Config {
	return Config{
		Version:         3,
		TargetDuration:  4,
		MediaSequence:   0,
		SegmentDuration: 4.0,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Version <= 0 {
		c.Version = def.Version
	}
	if c.TargetDuration <= 0 {
		c.TargetDuration = def.TargetDuration
	}
	if c.MediaSequence < 0 {
		c.MediaSequence = def.MediaSequence
	}
	if c.SegmentDuration <= 0 {
		c.SegmentDuration = def.SegmentDuration
	}
	return c
}

// Normalized is a playlist that is safe to hand to a standard HLS engine.
type Normalized struct {
	Text string
	// SegmentURIs lists segment references in playlist order, exactly as
	// they appeared in the input.
	SegmentURIs []string
	// IndexByURI maps each literal segment reference to its zero-based
	// position. Duplicate references resolve to their first position.
	IndexByURI map[string]int
}

type segmentEntry struct {
	tags []string
	inf  string
	uri  string
}

// Normalize validates raw and injects any missing mandatory directives.
// The output always holds, in order, the header, version, target duration
// and media sequence directives, followed by every segment reference
// preceded by its duration directive. Key directives and IV attributes are
// removed.
func Normalize(raw string, cfg Config) (Normalized, error) {
	cfg = cfg.withDefaults()

	var (
		version, target, sequence string
		headerExtra               []string
		trailer                   []string
		segments                  []segmentEntry
		pendingTags               []string
		pendingInf                string
	)

	scanner := bufio.NewScanner(strings.NewReader(raw))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "#") {
			segments = append(segments, segmentEntry{tags: pendingTags, inf: pendingInf, uri: line})
			pendingTags = nil
			pendingInf = ""
			continue
		}
		if !strings.HasPrefix(line, "#EXT") {
			// Plain M3U comment.
			continue
		}

		name := tagName(line)
		switch name {
		case tagHeader:
		case tagKey, tagSessionKey:
		case tagVersion:
			if version == "" {
				version = line
			}
		case tagTargetDuration:
			if target == "" {
				target = line
			}
		case tagMediaSequence:
			if sequence == "" {
				sequence = line
			}
		case tagInf:
			if pendingInf == "" {
				pendingInf = stripIV(line)
			}
		default:
			line = stripIV(line)
			switch {
			case segmentTags[name]:
				pendingTags = append(pendingTags, line)
			case len(segments) == 0:
				headerExtra = append(headerExtra, line)
			default:
				trailer = append(trailer, line)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Normalized{}, &domain.PlaylistMalformedError{Reason: err.Error()}
	}
	if len(segments) == 0 {
		return Normalized{}, &domain.PlaylistMalformedError{Reason: "no segment references"}
	}

	if version == "" {
		version = fmt.Sprintf("%s:%d", tagVersion, cfg.Version)
	}
	if target == "" {
		target = fmt.Sprintf("%s:%d", tagTargetDuration, cfg.TargetDuration)
	}
	if sequence == "" {
		sequence = fmt.Sprintf("%s:%d", tagMediaSequence, cfg.MediaSequence)
	}
	defaultInf := tagInf + ":" + strconv.FormatFloat(cfg.SegmentDuration, 'f', 3, 64) + ","

	var b strings.Builder
	writeLine := func(s string) {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	writeLine(tagHeader)
	writeLine(version)
	writeLine(target)
	writeLine(sequence)
	for _, line := range headerExtra {
		writeLine(line)
	}

	out := Normalized{
		SegmentURIs: make([]string, 0, len(segments)),
		IndexByURI:  make(map[string]int, len(segments)),
	}
	for i, seg := range segments {
		for _, tag := range seg.tags {
			writeLine(tag)
		}
		if seg.inf == "" {
			writeLine(defaultInf)
		} else {
			writeLine(seg.inf)
		}
		writeLine(seg.uri)

		out.SegmentURIs = append(out.SegmentURIs, seg.uri)
		if _, seen := out.IndexByURI[seg.uri]; !seen {
			out.IndexByURI[seg.uri] = i
		}
	}
	// Tags left pending after the last reference have no segment to attach to.
	for _, line := range pendingTags {
		writeLine(line)
	}
	for _, line := range trailer {
		writeLine(line)
	}

	out.Text = b.String()
	return out, nil
}

func tagName(line string) string {
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		return line[:idx]
	}
	return line
}

// stripIV removes IV= attributes from a directive's attribute list.
func stripIV(line string) string {
	idx := strings.IndexByte(line, ':')
	if idx < 0 || !strings.Contains(line[idx+1:], "IV=") {
		return line
	}
	attrs := splitAttributes(line[idx+1:])
	kept := attrs[:0]
	for _, attr := range attrs {
		if strings.HasPrefix(strings.TrimSpace(attr), "IV=") {
			continue
		}
		kept = append(kept, attr)
	}
	return line[:idx+1] + strings.Join(kept, ",")
}

// splitAttributes splits an attribute list on commas outside quoted strings.
func splitAttributes(s string) []string {
	var (
		parts  []string
		quoted bool
		start  int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
