package ports

import (
	"context"

	"canistream/internal/domain"
)

type VideoRepository interface {
	Create(ctx context.Context, v domain.VideoRecord) error
	Get(ctx context.Context, id domain.VideoID) (domain.VideoRecord, error)
	List(ctx context.Context) ([]domain.VideoRecord, error)
	SetPlaylist(ctx context.Context, id domain.VideoID, playlist, contentHash string) error
	Delete(ctx context.Context, id domain.VideoID) error
}
