package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"

	"canistream/internal/domain"
)

type VideoRepository struct {
	collection *mongo.Collection
}

type videoDoc struct {
	ID          string `bson:"_id"`
	Title       string `bson:"title"`
	Description string `bson:"description"`
	ContentHash string `bson:"contentHash,omitempty"`
	Playlist    string `bson:"playlist,omitempty"`
	CreatedAt   int64  `bson:"createdAt"`
	UpdatedAt   int64  `bson:"updatedAt"`
}

func NewVideoRepository(client *mongo.Client, dbName, collectionName string) *VideoRepository {
	return &VideoRepository{collection: client.Database(dbName).Collection(collectionName)}
}

// Connect opens a client with command tracing enabled.
func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	base := options.Client().ApplyURI(uri).SetMonitor(otelmongo.NewMonitor())
	opts := append([]*options.ClientOptions{base}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (r *VideoRepository) EnsureIndexes(ctx context.Context) error {
	if r == nil || r.collection == nil {
		return nil
	}
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	}
	_, err := r.collection.Indexes().CreateMany(ctx, models)
	return err
}

func (r *VideoRepository) Create(ctx context.Context, v domain.VideoRecord) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
	_, err := r.collection.InsertOne(ctx, toVideoDoc(v))
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
	}
	return err
}

func (r *VideoRepository) Get(ctx context.Context, id domain.VideoID) (domain.VideoRecord, error) {
	var doc videoDoc
	if err := r.collection.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.VideoRecord{}, domain.ErrNotFound
		}
		return domain.VideoRecord{}, err
	}
	return fromVideoDoc(doc), nil
}

// List returns every video oldest first. Playlists are not loaded.
func (r *VideoRepository) List(ctx context.Context) ([]domain.VideoRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetProjection(bson.M{"playlist": 0})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []videoDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.VideoRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromVideoDoc(doc))
	}
	return out, nil
}

func (r *VideoRepository) SetPlaylist(ctx context.Context, id domain.VideoID, playlist, contentHash string) error {
	res, err := r.collection.UpdateOne(
		ctx,
		bson.M{"_id": string(id)},
		bson.M{"$set": bson.M{
			"playlist":    playlist,
			"contentHash": contentHash,
			"updatedAt":   time.Now().UTC().UnixMilli(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *VideoRepository) Delete(ctx context.Context, id domain.VideoID) error {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func toVideoDoc(v domain.VideoRecord) videoDoc {
	return videoDoc{
		ID:          string(v.ID),
		Title:       v.Title,
		Description: v.Description,
		ContentHash: v.ContentHash,
		Playlist:    v.Playlist,
		CreatedAt:   v.CreatedAt.UnixMilli(),
		UpdatedAt:   v.UpdatedAt.UnixMilli(),
	}
}

func fromVideoDoc(doc videoDoc) domain.VideoRecord {
	return domain.VideoRecord{
		ID:          domain.VideoID(doc.ID),
		Title:       doc.Title,
		Description: doc.Description,
		ContentHash: doc.ContentHash,
		Playlist:    doc.Playlist,
		CreatedAt:   timeFromMillis(doc.CreatedAt),
		UpdatedAt:   timeFromMillis(doc.UpdatedAt),
	}
}

func timeFromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
