package domain

import (
	"fmt"
	"strings"
	"time"
)

type VideoID string

// VideoRecord is the backend-owned description of an uploaded video.
type VideoRecord struct {
	ID          VideoID   `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ContentHash string    `json:"contentHash"`
	Playlist    string    `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// VideoSummary is one entry of ListVideos.
type VideoSummary struct {
	ID          VideoID `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Hash        string  `json:"hash"`
}

func (r VideoRecord) Summary() VideoSummary {
	return VideoSummary{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Hash:        r.ContentHash,
	}
}

func (r VideoRecord) Validate() error {
	if strings.TrimSpace(string(r.ID)) == "" {
		return fmt.Errorf("%w: video id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: video title is required", ErrInvalidArgument)
	}
	return nil
}
