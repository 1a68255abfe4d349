package domain

import "time"

// StageProgress describes per-item progress inside a stage.
type StageProgress struct {
	Type    string  `json:"type"`
	Current int     `json:"current"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// TranscodeProgress is emitted by the transcoder while it works.
type TranscodeProgress struct {
	Message  string         `json:"message"`
	Progress *StageProgress `json:"progress,omitempty"`
}

// UploadPhase names the logical phases of an upload.
type UploadPhase string

const (
	PhaseTranscode UploadPhase = "transcode"
	PhaseUpload    UploadPhase = "upload"
	PhaseDone      UploadPhase = "done"
	PhaseFailed    UploadPhase = "failed"
)

// UploadProgress is the aggregated, monotonic upload percentage.
type UploadProgress struct {
	VideoID   VideoID     `json:"videoId,omitempty"`
	Phase     UploadPhase `json:"phase"`
	Percent   float64     `json:"percent"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
}
