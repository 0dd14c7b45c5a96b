package database

import (
	"context"
	"fmt"
	"time"
	"tmps-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const userCollectionName = "users"

// MongoUserRepository implements UserRepository for MongoDB.
type MongoUserRepository struct {
	collection *mongo.Collection
}

// NewMongoUserRepository creates a new MongoDB user repository.
func NewMongoUserRepository(db *mongo.Database) *MongoUserRepository {
	return &MongoUserRepository{
		collection: db.Collection(userCollectionName),
	}
}

// GetByTelegramID retrieves a user by their Telegram user id.
func (r *MongoUserRepository) GetByTelegramID(ctx context.Context, telegramUserID int64) (*models.User, error) {
	var user models.User
	filter := bson.M{"telegram_user_id": telegramUserID}

	err := r.collection.FindOne(ctx, filter).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user %d: %w", telegramUserID, err)
	}
	return &user, nil
}

// Exists reports whether a user with the given Telegram user id is registered.
func (r *MongoUserRepository) Exists(ctx context.Context, telegramUserID int64) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"telegram_user_id": telegramUserID})
	if err != nil {
		return false, fmt.Errorf("failed to count users with id %d: %w", telegramUserID, err)
	}
	return count > 0, nil
}

// Create inserts a new user record.
func (r *MongoUserRepository) Create(ctx context.Context, user *models.User) error {
	user.ID = primitive.NewObjectID()
	now := time.Now()
	user.FirstSeen = now
	user.LastSeen = now

	_, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to insert user %d: %w", user.TelegramUserID, err)
	}
	return nil
}

// SetChannelID updates the user's destination channel.
func (r *MongoUserRepository) SetChannelID(ctx context.Context, telegramUserID, channelID int64) error {
	return r.setField(ctx, telegramUserID, "channel_id", channelID)
}

// SetTimezone updates the user's IANA time zone identifier.
func (r *MongoUserRepository) SetTimezone(ctx context.Context, telegramUserID int64, zone string) error {
	return r.setField(ctx, telegramUserID, "time_zone", zone)
}

func (r *MongoUserRepository) setField(ctx context.Context, telegramUserID int64, field string, value interface{}) error {
	filter := bson.M{"telegram_user_id": telegramUserID}
	update := bson.M{"$set": bson.M{field: value, "last_seen": time.Now()}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update %s for user %d: %w", field, telegramUserID, err)
	}
	if result.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordActivity updates the user's last-seen timestamp and last action.
func (r *MongoUserRepository) RecordActivity(ctx context.Context, telegramUserID int64, username, action string) error {
	filter := bson.M{"telegram_user_id": telegramUserID}
	update := bson.M{"$set": bson.M{
		"username":    username,
		"last_seen":   time.Now(),
		"last_action": action,
	}}

	if _, err := r.collection.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("failed to record activity for user %d: %w", telegramUserID, err)
	}
	return nil
}
