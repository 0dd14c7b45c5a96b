package database

import (
	"context"
	"fmt"
	"time"
	"tmps-bot/internal/database/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const postCollectionName = "posts"

// MongoPostRepository implements PostRepository for MongoDB.
type MongoPostRepository struct {
	collection *mongo.Collection
}

// NewMongoPostRepository creates a new MongoDB post repository.
func NewMongoPostRepository(db *mongo.Database) *MongoPostRepository {
	return &MongoPostRepository{
		collection: db.Collection(postCollectionName),
	}
}

// Create inserts a new post with its embedded media.
func (r *MongoPostRepository) Create(ctx context.Context, post *models.Post) error {
	post.ID = primitive.NewObjectID()
	post.CreatedAt = time.Now()
	if post.Media == nil {
		post.Media = []models.Media{}
	}

	_, err := r.collection.InsertOne(ctx, post)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// AppendMedia pushes one media item onto an unposted post.
func (r *MongoPostRepository) AppendMedia(ctx context.Context, id primitive.ObjectID, m models.Media) error {
	filter := bson.M{"_id": id, "is_posted": false}
	update := bson.M{"$push": bson.M{"media": m}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to append media to post %s: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

// UpdateText replaces the text of an unposted post.
func (r *MongoPostRepository) UpdateText(ctx context.Context, id primitive.ObjectID, text string) error {
	return r.updatePending(ctx, id, bson.M{"text": text})
}

// UpdateSchedule replaces both text and delivery instant of an unposted post.
func (r *MongoPostRepository) UpdateSchedule(ctx context.Context, id primitive.ObjectID, text string, postAt time.Time) error {
	return r.updatePending(ctx, id, bson.M{"text": text, "post_at": postAt})
}

// UpdateDate replaces the delivery instant of an unposted post.
func (r *MongoPostRepository) UpdateDate(ctx context.Context, id primitive.ObjectID, postAt time.Time) error {
	return r.updatePending(ctx, id, bson.M{"post_at": postAt})
}

func (r *MongoPostRepository) updatePending(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	filter := bson.M{"_id": id, "is_posted": false}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("failed to update post %s: %w", id.Hex(), err)
	}
	if result.MatchedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

// Delete removes an unposted post. Media is embedded, so it goes with the document.
func (r *MongoPostRepository) Delete(ctx context.Context, id primitive.ObjectID) error {
	filter := bson.M{"_id": id, "is_posted": false}

	result, err := r.collection.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to delete post %s: %w", id.Hex(), err)
	}
	if result.DeletedCount == 0 {
		return ErrPostNotFound
	}
	return nil
}

// FindPendingByID returns the unposted post with the given id.
func (r *MongoPostRepository) FindPendingByID(ctx context.Context, id primitive.ObjectID) (*models.Post, error) {
	return r.findOne(ctx, bson.M{"_id": id, "is_posted": false})
}

// FindPendingByMediaGroupID returns the unposted post aggregating the given media group.
func (r *MongoPostRepository) FindPendingByMediaGroupID(ctx context.Context, mediaGroupID string) (*models.Post, error) {
	return r.findOne(ctx, bson.M{"media_group_id": mediaGroupID, "is_posted": false})
}

// ExistsPendingByMediaGroupID reports whether an unposted post carries the given media group id.
func (r *MongoPostRepository) ExistsPendingByMediaGroupID(ctx context.Context, mediaGroupID string) (bool, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"media_group_id": mediaGroupID, "is_posted": false})
	if err != nil {
		return false, fmt.Errorf("failed to count posts for media group %s: %w", mediaGroupID, err)
	}
	return count > 0, nil
}

// FindPendingByMessageID returns the unposted post created from the given Telegram
// message, restricted to the given owner.
func (r *MongoPostRepository) FindPendingByMessageID(ctx context.Context, telegramUserID int64, messageID int) (*models.Post, error) {
	return r.findOne(ctx, bson.M{"message_id": messageID, "user_id": telegramUserID, "is_posted": false})
}

func (r *MongoPostRepository) findOne(ctx context.Context, filter bson.M) (*models.Post, error) {
	var post models.Post

	err := r.collection.FindOne(ctx, filter).Decode(&post)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	return &post, nil
}

// CountPending returns the number of unposted posts owned by the user.
func (r *MongoPostRepository) CountPending(ctx context.Context, telegramUserID int64) (int64, error) {
	count, err := r.collection.CountDocuments(ctx, bson.M{"user_id": telegramUserID, "is_posted": false})
	if err != nil {
		return 0, fmt.Errorf("failed to count pending posts for user %d: %w", telegramUserID, err)
	}
	return count, nil
}

// FindDue returns unposted posts with a delivery instant in (from, to], oldest first.
func (r *MongoPostRepository) FindDue(ctx context.Context, from, to time.Time) ([]models.Post, error) {
	filter := bson.M{
		"is_posted": false,
		"post_at":   bson.M{"$gt": from, "$lte": to},
	}
	findOptions := options.Find().SetSort(bson.D{{Key: "post_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to find due posts: %w", err)
	}
	defer cursor.Close(ctx)

	var posts []models.Post
	if err = cursor.All(ctx, &posts); err != nil {
		return nil, fmt.Errorf("failed to decode due posts: %w", err)
	}
	return posts, nil
}

// MarkPosted flips is_posted on the given post. The filter on is_posted=false
// makes the flip idempotent: a second sweep over the same window reports false.
func (r *MongoPostRepository) MarkPosted(ctx context.Context, id primitive.ObjectID) (bool, error) {
	filter := bson.M{"_id": id, "is_posted": false}
	update := bson.M{"$set": bson.M{"is_posted": true}}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to mark post %s as posted: %w", id.Hex(), err)
	}
	return result.ModifiedCount > 0, nil
}
