package main

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"canistream/internal/app"
	"canistream/internal/domain/ports"
	mongorepo "canistream/internal/repository/mongo"
	"canistream/internal/storage/memory"
	"canistream/internal/storage/s3"
)

const (
	videosCollection = "videos"
	chunksCollection = "chunks"
)

type stores struct {
	Videos ports.VideoRepository
	Chunks ports.ChunkStore

	mongoClient *mongo.Client
	logger      *slog.Logger
}

func (s *stores) Close() {
	if s.mongoClient == nil {
		return
	}
	if err := s.mongoClient.Disconnect(context.Background()); err != nil {
		s.logger.Warn("mongo disconnect error", slog.String("error", err.Error()))
	}
}

// openStores builds the metadata repository and chunk store selected by
// METADATA_STORE and CHUNK_STORE. A mongo client is shared when both use it.
func openStores(ctx context.Context, cfg app.ServerConfig, logger *slog.Logger) (*stores, error) {
	out := &stores{logger: logger}
	var mem *memory.Store
	memoryStore := func() *memory.Store {
		if mem == nil {
			mem = memory.NewStore(memory.WithMaxBytes(cfg.MemoryMaxBytes))
		}
		return mem
	}
	mongoClient := func() (*mongo.Client, error) {
		if out.mongoClient != nil {
			return out.mongoClient, nil
		}
		client, err := mongorepo.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("mongo ping: %w", err)
		}
		out.mongoClient = client
		return client, nil
	}

	switch cfg.MetadataStore {
	case "memory":
		out.Videos = memoryStore()
	case "mongo", "":
		client, err := mongoClient()
		if err != nil {
			return nil, err
		}
		repo := mongorepo.NewVideoRepository(client, cfg.MongoDatabase, videosCollection)
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("collection", videosCollection), slog.String("error", err.Error()))
		}
		out.Videos = repo
	default:
		return nil, fmt.Errorf("unknown METADATA_STORE %q", cfg.MetadataStore)
	}

	switch cfg.ChunkStore {
	case "memory":
		out.Chunks = memoryStore()
	case "mongo", "":
		client, err := mongoClient()
		if err != nil {
			out.Close()
			return nil, err
		}
		chunks := mongorepo.NewChunkStore(client, cfg.MongoDatabase, chunksCollection)
		if err := chunks.EnsureIndexes(ctx); err != nil {
			logger.Warn("mongo ensure indexes failed", slog.String("collection", chunksCollection), slog.String("error", err.Error()))
		}
		out.Chunks = chunks
	case "minio", "s3":
		client, err := s3.NewClient(s3.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("minio client: %w", err)
		}
		chunks := s3.NewChunkStore(client, cfg.S3Bucket, logger)
		if err := chunks.EnsureBucket(ctx); err != nil {
			out.Close()
			return nil, fmt.Errorf("minio bucket: %w", err)
		}
		out.Chunks = chunks
	default:
		out.Close()
		return nil, fmt.Errorf("unknown CHUNK_STORE %q", cfg.ChunkStore)
	}

	return out, nil
}
