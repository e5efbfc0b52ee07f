package repository

import (
	"context"

	"github.com/mansoorceksport/ironlog/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStreakRepository stores one streak document per user, keyed by user ID
type MongoStreakRepository struct {
	collection *mongo.Collection
}

func NewMongoStreakRepository(db *mongo.Database) *MongoStreakRepository {
	return &MongoStreakRepository{
		collection: db.Collection("user_streaks"),
	}
}

func (r *MongoStreakRepository) Get(ctx context.Context, userID string) (*domain.StreakState, error) {
	var state domain.StreakState
	err := r.collection.FindOne(ctx, bson.M{"_id": userID}).Decode(&state)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *MongoStreakRepository) Save(ctx context.Context, state *domain.StreakState) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": state.UserID}, state, options.Replace().SetUpsert(true))
	return err
}

func (r *MongoStreakRepository) ListExpirable(ctx context.Context) ([]*domain.StreakState, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"is_paused":      false,
		"current_streak": bson.M{"$gt": 0},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var states []*domain.StreakState
	if err := cursor.All(ctx, &states); err != nil {
		return nil, err
	}
	return states, nil
}
