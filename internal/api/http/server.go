// Package apihttp exposes the backend over HTTP. Every response body is a
// result envelope: {"ok": value} or {"err": "message"}.
package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"canistream/internal/domain"
	domainports "canistream/internal/domain/ports"
)

const (
	defaultMaxBodyBytes = 8 << 20
	defaultRateLimitRPS = 100
	defaultRateBurst    = 200
)

// ProgressStore returns the last upload progress event recorded for a video.
type ProgressStore interface {
	Last(ctx context.Context, id domain.VideoID) (domain.UploadProgress, bool, error)
}

type Server struct {
	backend        domainports.Backend
	progress       ProgressStore
	allowedOrigins []string
	maxBodyBytes   int64
	rateRPS        float64
	rateBurst      int
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithProgressStore(store ProgressStore) ServerOption {
	return func(s *Server) {
		s.progress = store
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithMaxBodyBytes bounds JSON request bodies. Chunk payloads travel base64
// encoded, so this must exceed 4/3 of the backend chunk limit.
func WithMaxBodyBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.rateRPS = rps
			s.rateBurst = burst
		}
	}
}

func NewServer(backend domainports.Backend, opts ...ServerOption) *Server {
	s := &Server{
		backend:      backend,
		maxBodyBytes: defaultMaxBodyBytes,
		rateRPS:      defaultRateLimitRPS,
		rateBurst:    defaultRateBurst,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()
	mux.HandleFunc("/videos", s.handleVideos)
	mux.HandleFunc("/videos/", s.handleVideoByID)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", s.handleWS)

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "canister",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			return p != "/metrics" && p != "/healthz" && !strings.HasPrefix(p, "/ws")
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(s.rateRPS, s.rateBurst, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, healthResponse{Status: "ok"})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}

// BroadcastProgress relays an upload progress event to WebSocket clients.
func (s *Server) BroadcastProgress(p domain.UploadProgress) {
	s.wsHub.Broadcast("upload_progress", p)
}

// Close disconnects all WebSocket clients.
func (s *Server) Close() {
	s.wsHub.Close()
}
