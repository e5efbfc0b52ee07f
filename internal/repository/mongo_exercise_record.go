package repository

import (
	"context"
	"time"

	"github.com/mansoorceksport/ironlog/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoExerciseRecordRepository is the durable store for exercise records
type MongoExerciseRecordRepository struct {
	collection *mongo.Collection
}

func NewMongoExerciseRecordRepository(db *mongo.Database) *MongoExerciseRecordRepository {
	collection := db.Collection("exercise_records")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// One aggregate per user and exercise
	_, _ = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "normalized_name", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})

	return &MongoExerciseRecordRepository{
		collection: collection,
	}
}

func (r *MongoExerciseRecordRepository) Get(ctx context.Context, userID, normalizedName string) (*domain.ExerciseRecord, error) {
	var record domain.ExerciseRecord
	err := r.collection.FindOne(ctx, bson.M{
		"user_id":         userID,
		"normalized_name": normalizedName,
	}).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil // No record exists yet
		}
		return nil, err
	}
	return &record, nil
}

func (r *MongoExerciseRecordRepository) ListByUser(ctx context.Context, userID string) ([]*domain.ExerciseRecord, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.M{"normalized_name": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []*domain.ExerciseRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Upsert replaces the whole aggregate if nobody wrote it since record was
// read. The caller decides what improved; the repository only stores it.
func (r *MongoExerciseRecordRepository) Upsert(ctx context.Context, record *domain.ExerciseRecord) error {
	next := record.Clone()
	next.Revision = domain.NewID()

	filter := bson.M{
		"user_id":         record.UserID,
		"normalized_name": record.NormalizedName,
	}
	opts := options.Replace()
	if record.Revision == "" {
		// matches a missing field too, for documents written before revisions
		filter["revision"] = nil
		opts.SetUpsert(true)
	} else {
		filter["revision"] = record.Revision
	}

	result, err := r.collection.ReplaceOne(ctx, filter, next, opts)
	if mongo.IsDuplicateKeyError(err) {
		// another writer inserted the aggregate first
		return domain.ErrRecordConflict
	}
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 && result.UpsertedCount == 0 {
		return domain.ErrRecordConflict
	}

	record.Revision = next.Revision
	return nil
}

func (r *MongoExerciseRecordRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}
