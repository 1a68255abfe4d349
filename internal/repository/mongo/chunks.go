package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"canistream/internal/domain"
)

// ChunkStore keeps chunk payloads as one document each. Payloads are bounded
// by the backend's chunk limit, far below the document size cap.
type ChunkStore struct {
	collection *mongo.Collection
}

type chunkDoc struct {
	ID           string `bson:"_id"`
	VideoID      string `bson:"videoId"`
	Kind         string `bson:"kind"`
	SegmentIndex int    `bson:"segmentIndex"`
	ChunkIndex   int    `bson:"chunkIndex"`
	TotalChunks  int    `bson:"totalChunks"`
	Data         []byte `bson:"data"`
}

func NewChunkStore(client *mongo.Client, dbName, collectionName string) *ChunkStore {
	return &ChunkStore{collection: client.Database(dbName).Collection(collectionName)}
}

func (s *ChunkStore) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "videoId", Value: 1},
				{Key: "kind", Value: 1},
				{Key: "segmentIndex", Value: 1},
				{Key: "chunkIndex", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, models)
	return err
}

func chunkDocID(id domain.VideoID, kind domain.ChunkKind, segmentIndex, chunkIndex int) string {
	return fmt.Sprintf("%s/%s/%d/%d", id, kind, segmentIndex, chunkIndex)
}

func (s *ChunkStore) PutChunk(ctx context.Context, c domain.Chunk) error {
	if err := c.Validate(); err != nil {
		return err
	}
	doc := chunkDoc{
		ID:           chunkDocID(c.VideoID, c.Kind, c.SegmentIndex, c.ChunkIndex),
		VideoID:      string(c.VideoID),
		Kind:         string(c.Kind),
		SegmentIndex: c.SegmentIndex,
		ChunkIndex:   c.ChunkIndex,
		TotalChunks:  c.TotalChunks,
		Data:         c.Data,
	}
	_, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *ChunkStore) GetChunk(ctx context.Context, id domain.VideoID, kind domain.ChunkKind, segmentIndex, chunkIndex int) (domain.Chunk, error) {
	var doc chunkDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": chunkDocID(id, kind, segmentIndex, chunkIndex)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Chunk{}, domain.ErrNotFound
		}
		return domain.Chunk{}, err
	}
	return fromChunkDoc(doc), nil
}

func (s *ChunkStore) TotalChunks(ctx context.Context, id domain.VideoID, kind domain.ChunkKind, segmentIndex int) (int, bool, error) {
	var doc struct {
		TotalChunks int `bson:"totalChunks"`
	}
	err := s.collection.FindOne(
		ctx,
		bson.M{"videoId": string(id), "kind": string(kind), "segmentIndex": segmentIndex},
		options.FindOne().SetProjection(bson.M{"totalChunks": 1}),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return doc.TotalChunks, true, nil
}

func (s *ChunkStore) DeleteVideo(ctx context.Context, id domain.VideoID) error {
	_, err := s.collection.DeleteMany(ctx, bson.M{"videoId": string(id)})
	return err
}

func fromChunkDoc(doc chunkDoc) domain.Chunk {
	return domain.Chunk{
		VideoID:      domain.VideoID(doc.VideoID),
		Kind:         domain.ChunkKind(doc.Kind),
		SegmentIndex: doc.SegmentIndex,
		ChunkIndex:   doc.ChunkIndex,
		TotalChunks:  doc.TotalChunks,
		Data:         doc.Data,
	}
}
