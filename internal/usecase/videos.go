package usecase

import (
	"context"
	"errors"

	"canistream/internal/domain"
	"canistream/internal/domain/ports"
)

type VideoLister interface {
	ListVideos(ctx context.Context) ([]domain.VideoSummary, error)
}

type VideoDeleter interface {
	DeleteVideo(ctx context.Context, id domain.VideoID) error
}

var (
	_ VideoLister  = (ports.Backend)(nil)
	_ VideoDeleter = (ports.Backend)(nil)
)

type ListVideos struct {
	Backend VideoLister
}

func (uc ListVideos) Execute(ctx context.Context) ([]domain.VideoSummary, error) {
	videos, err := uc.Backend.ListVideos(ctx)
	if err != nil {
		return nil, wrapBackend(err)
	}
	return videos, nil
}

type DeleteVideo struct {
	Backend VideoDeleter
}

func (uc DeleteVideo) Execute(ctx context.Context, id domain.VideoID) error {
	if id == "" {
		return ErrInvalidInput
	}
	if err := uc.Backend.DeleteVideo(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return wrapBackend(err)
	}
	return nil
}
