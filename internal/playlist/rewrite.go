package playlist

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"canistream/internal/domain"
)

var trailingSegmentNumber = regexp.MustCompile(`(\d+)\.ts$`)

// RewriteSegmentURIs replaces every segment reference ending in
// "<number>.ts" with scheme://<videoID>/<number>. The digits are kept as
// written so the index survives the round trip through ParseSegmentURI.
func RewriteSegmentURIs(text, scheme string, videoID domain.VideoID) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		m := trailingSegmentNumber.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		lines[i] = fmt.Sprintf("%s://%s/%s", scheme, videoID, m[1])
	}
	return strings.Join(lines, "\n")
}

// SegmentRef is a decoded synthetic segment URI.
type SegmentRef struct {
	Scheme  string
	VideoID domain.VideoID
	Index   int
}

func ParseSegmentURI(uri string) (SegmentRef, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok || scheme == "" {
		return SegmentRef{}, fmt.Errorf("%w: segment uri %q has no scheme", domain.ErrInvalidArgument, uri)
	}
	slash := strings.LastIndexByte(rest, '/')
	if slash <= 0 || slash == len(rest)-1 {
		return SegmentRef{}, fmt.Errorf("%w: segment uri %q is not scheme://video/index", domain.ErrInvalidArgument, uri)
	}
	index, err := strconv.Atoi(rest[slash+1:])
	if err != nil || index < 0 {
		return SegmentRef{}, fmt.Errorf("%w: segment uri %q has invalid index", domain.ErrInvalidArgument, uri)
	}
	return SegmentRef{
		Scheme:  scheme,
		VideoID: domain.VideoID(rest[:slash]),
		Index:   index,
	}, nil
}
