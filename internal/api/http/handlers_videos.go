package apihttp

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"canistream/internal/domain"
)

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

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		videos, err := s.backend.ListVideos(r.Context())
		if err != nil {
			s.writeBackendError(w, r, err)
			return
		}
		writeOK(w, videos)
	case http.MethodPost:
		var req createVideoRequest
		if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
			s.writeBackendError(w, r, err)
			return
		}
		id, err := s.backend.CreateVideo(r.Context(), req.Title, req.Description)
		if err != nil {
			s.writeBackendError(w, r, err)
			return
		}
		writeOK(w, id)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// handleVideoByID dispatches:
//
//	DELETE /videos/{id}
//	GET|PUT /videos/{id}/playlist
//	GET    /videos/{id}/thumbnail
//	PUT    /videos/{id}/thumbnail/chunks/{chunk}
//	GET|PUT /videos/{id}/segments/{segment}/chunks/{chunk}
//	GET    /videos/{id}/progress
func (s *Server) handleVideoByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/videos/")
	if len(parts) == 0 || strings.TrimSpace(parts[0]) == "" {
		writeErrorMessage(w, http.StatusNotFound, "not found")
		return
	}
	id := domain.VideoID(parts[0])

	switch {
	case len(parts) == 1:
		s.handleDeleteVideo(w, r, id)
	case len(parts) == 2 && parts[1] == "playlist":
		s.handlePlaylist(w, r, id)
	case len(parts) == 2 && parts[1] == "thumbnail":
		s.handleGetThumbnail(w, r, id)
	case len(parts) == 2 && parts[1] == "progress":
		s.handleProgress(w, r, id)
	case len(parts) == 4 && parts[1] == "thumbnail" && parts[2] == "chunks":
		s.handleThumbnailChunk(w, r, id, parts[3])
	case len(parts) == 5 && parts[1] == "segments" && parts[3] == "chunks":
		s.handleSegmentChunk(w, r, id, parts[2], parts[4])
	default:
		writeErrorMessage(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleDeleteVideo(w http.ResponseWriter, r *http.Request, id domain.VideoID) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, http.MethodDelete)
		return
	}
	if err := s.backend.DeleteVideo(r.Context(), id); err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeOK(w, domain.Unit{})
}

func (s *Server) handlePlaylist(w http.ResponseWriter, r *http.Request, id domain.VideoID) {
	switch r.Method {
	case http.MethodGet:
		text, err := s.backend.GetPlaylist(r.Context(), id)
		if err != nil {
			s.writeBackendError(w, r, err)
			return
		}
		writeOK(w, text)
	case http.MethodPut:
		var req uploadPlaylistRequest
		if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
			s.writeBackendError(w, r, err)
			return
		}
		if err := s.backend.UploadPlaylist(r.Context(), id, req.Playlist); err != nil {
			s.writeBackendError(w, r, err)
			return
		}
		writeOK(w, domain.Unit{})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}

func (s *Server) handleGetThumbnail(w http.ResponseWriter, r *http.Request, id domain.VideoID) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	data, err := s.backend.GetThumbnail(r.Context(), id)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeOK(w, data)
}

func (s *Server) handleThumbnailChunk(w http.ResponseWriter, r *http.Request, id domain.VideoID, chunkParam string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, http.MethodPut)
		return
	}
	chunkIndex, err := parseIndex(chunkParam, "chunkIndex")
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	var req uploadChunkRequest
	if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	if err := s.backend.UploadThumbnailChunk(r.Context(), id, chunkIndex, req.TotalChunks, req.Data); err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	writeOK(w, domain.Unit{})
}

func (s *Server) handleSegmentChunk(w http.ResponseWriter, r *http.Request, id domain.VideoID, segmentParam, chunkParam string) {
	segmentIndex, err := parseIndex(segmentParam, "segmentIndex")
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	chunkIndex, err := parseIndex(chunkParam, "chunkIndex")
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		chunk, err := s.backend.GetSegmentChunk(r.Context(), id, segmentIndex, chunkIndex)
		if err != nil {
			s.writeBackendError(w, r, err)
			return
		}
		writeOK(w, chunk)
	case http.MethodPut:
		var req uploadChunkRequest
		if err := decodeJSON(w, r, s.maxBodyBytes, &req); err != nil {
			s.writeBackendError(w, r, err)
			return
		}
		if err := s.backend.UploadSegmentChunk(r.Context(), id, segmentIndex, chunkIndex, req.TotalChunks, req.Data); err != nil {
			s.writeBackendError(w, r, err)
			return
		}
		writeOK(w, domain.Unit{})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request, id domain.VideoID) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if s.progress == nil {
		writeErrorMessage(w, http.StatusNotImplemented, "progress tracking is not configured")
		return
	}
	p, ok, err := s.progress.Last(r.Context(), id)
	if err != nil {
		s.writeBackendError(w, r, err)
		return
	}
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "progress for video "+string(id)+": "+domain.ErrNotFound.Error())
		return
	}
	writeOK(w, p)
}

func (s *Server) writeBackendError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("backend request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	message := err.Error()
	if errors.Is(err, domain.ErrNotFound) && !strings.HasSuffix(message, domain.ErrNotFound.Error()) {
		message += ": " + domain.ErrNotFound.Error()
	}
	writeErrorMessage(w, status, message)
}
