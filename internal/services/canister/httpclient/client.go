// Package httpclient implements the backend contract against a remote
// canister HTTP API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"canistream/internal/domain"
	"canistream/internal/domain/ports"
)

const maxResponseBytes = 32 << 20

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ports.Backend = (*Client)(nil)

type createVideoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type uploadPlaylistRequest struct {
	Playlist string `json:"playlist"`
}

type uploadChunkRequest struct {
	TotalChunks int    `json:"totalChunks"`
	Data        []byte `json:"data"`
}

func (c *Client) CreateVideo(ctx context.Context, title, description string) (domain.VideoID, error) {
	return call[domain.VideoID](ctx, c, http.MethodPost, "/videos", createVideoRequest{Title: title, Description: description})
}

func (c *Client) UploadPlaylist(ctx context.Context, id domain.VideoID, playlist string) error {
	_, err := call[domain.Unit](ctx, c, http.MethodPut, videoPath(id, "playlist"), uploadPlaylistRequest{Playlist: playlist})
	return err
}

func (c *Client) UploadSegmentChunk(ctx context.Context, id domain.VideoID, segmentIndex, chunkIndex, totalChunks int, data []byte) error {
	path := videoPath(id, "segments", strconv.Itoa(segmentIndex), "chunks", strconv.Itoa(chunkIndex))
	_, err := call[domain.Unit](ctx, c, http.MethodPut, path, uploadChunkRequest{TotalChunks: totalChunks, Data: data})
	return err
}

func (c *Client) UploadThumbnailChunk(ctx context.Context, id domain.VideoID, chunkIndex, totalChunks int, data []byte) error {
	path := videoPath(id, "thumbnail", "chunks", strconv.Itoa(chunkIndex))
	_, err := call[domain.Unit](ctx, c, http.MethodPut, path, uploadChunkRequest{TotalChunks: totalChunks, Data: data})
	return err
}

func (c *Client) GetPlaylist(ctx context.Context, id domain.VideoID) (string, error) {
	return call[string](ctx, c, http.MethodGet, videoPath(id, "playlist"), nil)
}

func (c *Client) GetSegmentChunk(ctx context.Context, id domain.VideoID, segmentIndex, chunkIndex int) (domain.SegmentChunk, error) {
	path := videoPath(id, "segments", strconv.Itoa(segmentIndex), "chunks", strconv.Itoa(chunkIndex))
	return call[domain.SegmentChunk](ctx, c, http.MethodGet, path, nil)
}

func (c *Client) GetThumbnail(ctx context.Context, id domain.VideoID) ([]byte, error) {
	return call[[]byte](ctx, c, http.MethodGet, videoPath(id, "thumbnail"), nil)
}

func (c *Client) DeleteVideo(ctx context.Context, id domain.VideoID) error {
	_, err := call[domain.Unit](ctx, c, http.MethodDelete, videoPath(id), nil)
	return err
}

func (c *Client) ListVideos(ctx context.Context) ([]domain.VideoSummary, error) {
	videos, err := call[[]domain.VideoSummary](ctx, c, http.MethodGet, "/videos", nil)
	if err != nil {
		return nil, err
	}
	if videos == nil {
		videos = []domain.VideoSummary{}
	}
	return videos, nil
}

// Progress returns the last upload progress event the server recorded.
func (c *Client) Progress(ctx context.Context, id domain.VideoID) (domain.UploadProgress, error) {
	return call[domain.UploadProgress](ctx, c, http.MethodGet, videoPath(id, "progress"), nil)
}

func videoPath(id domain.VideoID, parts ...string) string {
	segs := append([]string{"videos", url.PathEscape(string(id))}, parts...)
	return "/" + strings.Join(segs, "/")
}

// call performs one request and unwraps the result envelope. A body that is
// not an envelope is reported with the HTTP status.
func call[T any](ctx context.Context, c *Client, method, path string, body interface{}) (T, error) {
	var zero T

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return zero, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return zero, fmt.Errorf("read response: %w", err)
	}

	var res domain.Result[T]
	if err := json.Unmarshal(raw, &res); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return zero, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
		}
		return zero, fmt.Errorf("%w: %v", domain.ErrMalformedResult, err)
	}
	value, err := res.Unwrap()
	if err != nil {
		c.logger.Debug("backend call failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("error", err.Error()),
		)
		return zero, err
	}
	return value, nil
}
