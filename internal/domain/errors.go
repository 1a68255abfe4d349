package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("not found")
var ErrUnsupported = errors.New("unsupported operation")
var ErrAlreadyExists = errors.New("already exists")
var ErrInvalidArgument = errors.New("invalid argument")

// ErrMalformedResult is returned when a backend response carries neither the
// ok nor the err variant.
var ErrMalformedResult = errors.New("malformed backend result")

// RemoteError is the err variant of a backend result.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "backend: " + e.Message
}

// Is maps well-known backend messages onto the local sentinels so callers can
// use errors.Is regardless of transport.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return strings.HasSuffix(e.Message, ErrNotFound.Error())
	case ErrInvalidArgument:
		return strings.HasPrefix(e.Message, ErrInvalidArgument.Error())
	}
	return false
}

// TranscodeError reports an engine initialization or conversion failure.
type TranscodeError struct {
	Stage string
	Err   error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode %s: %v", e.Stage, e.Err)
}

func (e *TranscodeError) Unwrap() error { return e.Err }

// ChunkUploadError is raised once a chunk has exhausted its retry budget.
// SegmentIndex is ThumbnailIndex for thumbnail chunks.
type ChunkUploadError struct {
	SegmentIndex int
	ChunkIndex   int
	Err          error
}

func (e *ChunkUploadError) Error() string {
	if e.SegmentIndex == ThumbnailIndex {
		return fmt.Sprintf("upload thumbnail chunk %d: %v", e.ChunkIndex, e.Err)
	}
	return fmt.Sprintf("upload segment %d chunk %d: %v", e.SegmentIndex, e.ChunkIndex, e.Err)
}

func (e *ChunkUploadError) Unwrap() error { return e.Err }

// PlaylistMalformedError is returned when a playlist cannot be repaired into
// a playable form.
type PlaylistMalformedError struct {
	Reason string
}

func (e *PlaylistMalformedError) Error() string {
	return "malformed playlist: " + e.Reason
}
