package progress

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"canistream/internal/domain"
)

const (
	channelPrefix = "upload:progress:"
	lastKeyPrefix = "upload:progress:last:"
	// AllChannel carries every upload's events.
	AllChannel = "upload:progress:all"
	lastTTL    = 24 * time.Hour
)

func ChannelFor(id domain.VideoID) string { return channelPrefix + string(id) }

func LastKey(id domain.VideoID) string { return lastKeyPrefix + string(id) }

// RedisReporter publishes progress to per-video and global channels and
// keeps the latest event per video for 24h.
type RedisReporter struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisReporter(client *redis.Client, logger *slog.Logger) *RedisReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisReporter{client: client, logger: logger}
}

func (r *RedisReporter) Report(ctx context.Context, p domain.UploadProgress) {
	if err := r.Publish(ctx, p); err != nil {
		r.logger.Warn("publish upload progress failed",
			slog.String("videoId", string(p.VideoID)),
			slog.String("error", err.Error()),
		)
	}
}

// Publish sends p. Events without a video id (the transcode phase runs
// before the video exists) only go to AllChannel.
func (r *RedisReporter) Publish(ctx context.Context, p domain.UploadProgress) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	if p.VideoID != "" {
		pipe.Publish(ctx, ChannelFor(p.VideoID), data)
		pipe.Set(ctx, LastKey(p.VideoID), data, lastTTL)
	}
	pipe.Publish(ctx, AllChannel, data)
	_, err = pipe.Exec(ctx)
	return err
}

// Last returns the most recent event stored for id.
func Last(ctx context.Context, client *redis.Client, id domain.VideoID) (domain.UploadProgress, bool, error) {
	data, err := client.Get(ctx, LastKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.UploadProgress{}, false, nil
		}
		return domain.UploadProgress{}, false, err
	}
	var p domain.UploadProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.UploadProgress{}, false, err
	}
	return p, true, nil
}

// Subscribe delivers every event on AllChannel to handle until ctx ends.
// Malformed messages are logged and skipped.
func Subscribe(ctx context.Context, client *redis.Client, logger *slog.Logger, handle func(domain.UploadProgress)) error {
	if logger == nil {
		logger = slog.Default()
	}
	sub := client.Subscribe(ctx, AllChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var p domain.UploadProgress
			if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
				logger.Warn("skip malformed progress event", slog.String("error", err.Error()))
				continue
			}
			handle(p)
		}
	}
}

// RedisStore reads stored progress events.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Last(ctx context.Context, id domain.VideoID) (domain.UploadProgress, bool, error) {
	return Last(ctx, s.client, id)
}
