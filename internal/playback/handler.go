package playback

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"canistream/internal/domain"
)

const (
	playlistName     = "playlist.m3u8"
	// segmentQueryPath takes the segment reference from ?uri=. The leading
	// underscore keeps it apart from ffmpeg-style segment names.
	segmentQueryPath = "_segment"
	playlistMIMEType = "application/vnd.apple.mpegurl"
	segmentMIMEType  = "video/mp2t"
)

// Handler serves the playback proxy:
//
//	GET    /{id}/playlist.m3u8          normalized playlist
//	GET    /{id}/playlist.m3u8?addressing=synthetic
//	GET    /{id}/_segment?uri=<uri>     segment by synthetic or literal uri
//	GET    /{id}/{segmentURI}           segment by literal playlist reference
//	DELETE /{id}                        release the session
func (m *Manager) Handler() http.Handler {
	return http.HandlerFunc(m.handleVideo)
}

func (m *Manager) handleVideo(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/")
	idPart, tail, _ := strings.Cut(rest, "/")
	if idPart == "" {
		writeError(w, http.StatusNotFound, "not_found", "video id is required")
		return
	}
	id := domain.VideoID(idPart)

	if tail == "" {
		if r.Method != http.MethodDelete {
			w.Header().Set("Allow", http.MethodDelete)
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		m.Release(id)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	session, err := m.Session(r.Context(), id)
	if err != nil {
		m.writeSessionError(w, id, err)
		return
	}

	if tail == playlistName {
		text := session.Playlist()
		if r.URL.Query().Get("addressing") == "synthetic" {
			text = session.SyntheticPlaylist()
		}
		w.Header().Set("Content-Type", playlistMIMEType)
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write([]byte(text))
		return
	}

	uri := tail
	if tail == segmentQueryPath && r.URL.Query().Has("uri") {
		uri = r.URL.Query().Get("uri")
	}
	data, err := session.LoadURI(r.Context(), uri)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", "segment not found")
		case errors.Is(err, domain.ErrInvalidArgument):
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, ErrSessionClosed):
			writeError(w, http.StatusGone, "session_closed", "playback session closed")
		default:
			// Only the client's own context ends a segment request early.
			writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		}
		return
	}
	w.Header().Set("Content-Type", segmentMIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "max-age=3600")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(data)
}

func (m *Manager) writeSessionError(w http.ResponseWriter, id domain.VideoID, err error) {
	var malformed *domain.PlaylistMalformedError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "video not found")
	case errors.As(err, &malformed):
		writeError(w, http.StatusUnprocessableEntity, "playlist_malformed", malformed.Error())
	default:
		m.logger.Error("open playback session failed",
			slog.String("videoId", string(id)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "backend_error", err.Error())
	}
}

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}
