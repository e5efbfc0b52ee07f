package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/mansoorceksport/ironlog/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoWorkoutHistoryRepository keeps finished workouts for replay.
// The workout ID is the document _id, so a workout can only be stored once.
type MongoWorkoutHistoryRepository struct {
	collection *mongo.Collection
}

func NewMongoWorkoutHistoryRepository(db *mongo.Database) *MongoWorkoutHistoryRepository {
	collection := db.Collection("workout_history")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "date", Value: 1},
		},
	})

	return &MongoWorkoutHistoryRepository{
		collection: collection,
	}
}

func (r *MongoWorkoutHistoryRepository) Append(ctx context.Context, workout *domain.HistoryWorkout) error {
	workout.CreatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, workout); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrDuplicateWorkout
		}
		return fmt.Errorf("%w: failed to append workout: %w", domain.ErrStorage, err)
	}
	return nil
}

func (r *MongoWorkoutHistoryRepository) Exists(ctx context.Context, workoutID string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": workoutID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%w: failed to look up workout: %w", domain.ErrStorage, err)
	}
	return n > 0, nil
}

// Cursor iterates the user's history oldest first; ties on date keep insertion order
func (r *MongoWorkoutHistoryRepository) Cursor(ctx context.Context, userID string) (domain.HistoryCursor, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "date", Value: 1},
		{Key: "created_at", Value: 1},
	})
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	return &mongoHistoryCursor{cursor: cursor}, nil
}

func (r *MongoWorkoutHistoryRepository) ListUserIDs(ctx context.Context) ([]string, error) {
	values, err := r.collection.Distinct(ctx, "user_id", bson.M{})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// mongoHistoryCursor decodes one document at a time so a single bad
// document does not spoil the rest of the history
type mongoHistoryCursor struct {
	cursor *mongo.Cursor
}

func (c *mongoHistoryCursor) Next(ctx context.Context) bool {
	return c.cursor.Next(ctx)
}

func (c *mongoHistoryCursor) Decode() (*domain.HistoryWorkout, error) {
	var workout domain.HistoryWorkout
	if err := c.cursor.Decode(&workout); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidHistoryEntry, err)
	}
	return &workout, nil
}

func (c *mongoHistoryCursor) Err() error {
	return c.cursor.Err()
}

func (c *mongoHistoryCursor) Close(ctx context.Context) error {
	return c.cursor.Close(ctx)
}
