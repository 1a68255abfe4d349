package transcode

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// scanProgress reads ffmpeg -progress key=value output and calls onTime with
// each out_time_us value in seconds.
func scanProgress(r io.Reader, onTime func(seconds float64)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		value, ok := strings.CutPrefix(line, "out_time_us=")
		if !ok {
			continue
		}
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			continue
		}
		onTime(float64(us) / 1e6)
	}
	// Keep ffmpeg from blocking on a full pipe if the scanner gave up early.
	_, _ = io.Copy(io.Discard, r)
}

// playlistSegments returns the segment references of an ffmpeg-written
// media playlist in order.
func playlistSegments(text string) []string {
	var refs []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		refs = append(refs, line)
	}
	return refs
}
