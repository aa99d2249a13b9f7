package chats

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"secure_chat/internal/errs"
	"secure_chat/internal/model"
)

type ChatRepo struct {
	collection *mongo.Collection
}

func NewChatRepo(db *mongo.Database) *ChatRepo {
	return &ChatRepo{
		collection: db.Collection("chats"),
	}
}

func (r *ChatRepo) Create(ctx context.Context, chat *model.Chat) error {
	if _, err := r.collection.InsertOne(ctx, chat); err != nil {
		return errs.DependencyUnavailable("create chat", err)
	}
	return nil
}

func (r *ChatRepo) Get(ctx context.Context, chatID string) (*model.Chat, error) {
	var chat model.Chat
	err := r.collection.FindOne(ctx, bson.M{"_id": chatID}).Decode(&chat)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("chat not found")
	}
	if err != nil {
		return nil, errs.DependencyUnavailable("get chat", err)
	}
	return &chat, nil
}

func (r *ChatRepo) FindDirect(ctx context.Context, directKey string) (*model.Chat, error) {
	var chat model.Chat
	err := r.collection.FindOne(ctx, bson.M{"direct_key": directKey}).Decode(&chat)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, errs.DependencyUnavailable("find direct chat", err)
	}
	return &chat, nil
}

func (r *ChatRepo) AddParticipant(ctx context.Context, chatID, userID string) error {
	update := bson.M{
		"$addToSet": bson.M{"participants": userID},
		"$set":      bson.M{"updated_at": time.Now()},
	}
	return r.updateOne(ctx, chatID, update, "add participant")
}

func (r *ChatRepo) RemoveParticipant(ctx context.Context, chatID, userID string) error {
	update := bson.M{
		"$pull": bson.M{"participants": userID, "admins": userID},
		"$set":  bson.M{"updated_at": time.Now()},
	}
	return r.updateOne(ctx, chatID, update, "remove participant")
}

func (r *ChatRepo) SetEncryption(ctx context.Context, chatID string, enabled bool, keys map[string][]byte) error {
	set := bson.M{
		"encrypted":  enabled,
		"updated_at": time.Now(),
	}
	if enabled {
		set["public_keys"] = keys
	}

	update := bson.M{"$set": set}
	if !enabled {
		update["$unset"] = bson.M{"public_keys": ""}
	}
	return r.updateOne(ctx, chatID, update, "set encryption")
}

func (r *ChatRepo) SetRetention(ctx context.Context, chatID string, policy model.RetentionPolicy) error {
	update := bson.M{"$set": bson.M{"retention": policy, "updated_at": time.Now()}}
	return r.updateOne(ctx, chatID, update, "set retention")
}

func (r *ChatRepo) SetMediaControls(ctx context.Context, chatID string, controls model.MediaControls) error {
	update := bson.M{"$set": bson.M{"media_controls": controls, "updated_at": time.Now()}}
	return r.updateOne(ctx, chatID, update, "set media controls")
}

func (r *ChatRepo) SetLastMessage(ctx context.Context, chatID string, lm *model.LastMessage) error {
	var update bson.M
	if lm == nil {
		update = bson.M{
			"$unset": bson.M{"last_message": ""},
			"$set":   bson.M{"updated_at": time.Now()},
		}
	} else {
		update = bson.M{
			"$set": bson.M{"last_message": lm, "updated_at": time.Now()},
		}
	}
	return r.updateOne(ctx, chatID, update, "set last message")
}

func (r *ChatRepo) updateOne(ctx context.Context, chatID string, update bson.M, op string) error {
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": chatID}, update)
	if err != nil {
		return errs.DependencyUnavailable(op, err)
	}
	if res.MatchedCount == 0 {
		return errs.NotFound("chat not found")
	}
	return nil
}
