package playback

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"canistream/internal/domain"
)

type fakeSource struct {
	mu            sync.Mutex
	playlist      string
	playlistErr   error
	playlistCalls int
	segments      map[int][][]byte
	failChunk     map[[2]int]error
	gate          chan struct{}
	calls         [][2]int
	active        int
	maxActive     int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		segments:  map[int][][]byte{},
		failChunk: map[[2]int]error{},
	}
}

func (f *fakeSource) GetPlaylist(ctx context.Context, id domain.VideoID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playlistCalls++
	if f.playlistErr != nil {
		return "", f.playlistErr
	}
	return f.playlist, nil
}

func (f *fakeSource) GetSegmentChunk(ctx context.Context, id domain.VideoID, segmentIndex, chunkIndex int) (domain.SegmentChunk, error) {
	f.mu.Lock()
	f.calls = append(f.calls, [2]int{segmentIndex, chunkIndex})
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	gate := f.gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.SegmentChunk{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failChunk[[2]int{segmentIndex, chunkIndex}]; err != nil {
		return domain.SegmentChunk{}, err
	}
	chunks, ok := f.segments[segmentIndex]
	if !ok || chunkIndex >= len(chunks) {
		return domain.SegmentChunk{}, &domain.RemoteError{Message: "chunk not found"}
	}
	return domain.SegmentChunk{Data: chunks[chunkIndex], TotalChunkCount: len(chunks)}, nil
}

func (f *fakeSource) callsFor(segment int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c[0] == segment && c[1] == 0 {
			n++
		}
	}
	return n
}

func (f *fakeSource) segmentOrder() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var order []int
	for _, c := range f.calls {
		if c[1] == 0 {
			order = append(order, c[0])
		}
	}
	return order
}

func (f *fakeSource) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func tsSegment(n int, marker byte) []byte {
	data := bytes.Repeat([]byte{marker}, n)
	data[0] = domain.TSSyncByte
	return data
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var errBoom = errors.New("boom")
