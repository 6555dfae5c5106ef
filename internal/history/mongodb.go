package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// OutOfDiskSpace, raised by WiredTiger when the volume fills up.
const mongoOutOfDiskSpace = 14031

type historyDocument struct {
	Id        string    `bson:"_id"`
	CreatedAt time.Time `bson:"created_at"`
	Payload   string    `bson:"payload"`
}

type MongoRepository struct {
	client     *mongo.Client
	collection *mongo.Collection
	url        string
	dbName     string
	once       sync.Once
	initErr    error
}

func NewMongoRepository(connectionString, dbName string) *MongoRepository {
	return &MongoRepository{url: connectionString, dbName: dbName}
}

func (r *MongoRepository) connect() error {
	r.once.Do(func() {
		client, err := mongo.Connect(options.Client().ApplyURI(r.url))
		if err != nil {
			r.initErr = err
			return
		}
		r.client = client
		r.collection = client.Database(r.dbName).Collection("history")
	})
	return r.initErr
}

var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

func (r *MongoRepository) Insert(ctx context.Context, e *Entry) error {
	if err := r.connect(); err != nil {
		return err
	}
	data, err := encodeEntry(e)
	if err != nil {
		return err
	}

	doc := historyDocument{Id: e.ID, CreatedAt: e.Timestamp, Payload: string(data)}
	_, err = r.collection.InsertOne(ctx, doc)
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorCode(mongoOutOfDiskSpace) {
		return errors.Join(ErrQuotaExceeded, err)
	}
	return err
}

func (r *MongoRepository) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := r.connect(); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []historyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(docs))
	for _, doc := range docs {
		e, err := decodeEntry([]byte(doc.Payload))
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*Entry, error) {
	if err := r.connect(); err != nil {
		return nil, err
	}

	var doc historyDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeEntry([]byte(doc.Payload))
}

func (r *MongoRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.connect(); err != nil {
		return false, err
	}
	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, err
	}
	return result.DeletedCount > 0, nil
}

func (r *MongoRepository) DeleteAll(ctx context.Context) error {
	if err := r.connect(); err != nil {
		return err
	}
	_, err := r.collection.DeleteMany(ctx, bson.M{})
	return err
}

func (r *MongoRepository) Trim(ctx context.Context, keep int) error {
	if err := r.connect(); err != nil {
		return err
	}

	opts := options.Find().
		SetSort(newestFirst).
		SetSkip(int64(max(keep, 0))).
		SetProjection(bson.M{"_id": 1})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return err
	}
	var stale []historyDocument
	if err := cursor.All(ctx, &stale); err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	ids := make([]string, len(stale))
	for i, doc := range stale {
		ids[i] = doc.Id
	}
	_, err = r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	return err
}

func (r *MongoRepository) HealthCheck(ctx context.Context) error {
	if err := r.connect(); err != nil {
		return err
	}
	return r.client.Ping(ctx, nil)
}

func (r *MongoRepository) Disconnect(ctx context.Context) error {
	if r.client != nil {
		return r.client.Disconnect(ctx)
	}
	return nil
}
