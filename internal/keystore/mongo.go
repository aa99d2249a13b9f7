package keystore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"secure_chat/internal/errs"
	"secure_chat/internal/model"
	"secure_chat/internal/utils/log"
)

// MongoStore persists key material across three collections. The
// one-time pre-key claim relies on FindOneAndUpdate so the used flag
// flips atomically for exactly one fetcher.
type MongoStore struct {
	identities *mongo.Collection
	signedPre  *mongo.Collection
	oneTime    *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		identities: db.Collection("identity_keys"),
		signedPre:  db.Collection("signed_pre_keys"),
		oneTime:    db.Collection("one_time_pre_keys"),
	}
}

func (s *MongoStore) StoreKeys(ctx context.Context, identity *model.IdentityKeyBundle, spk *model.SignedPreKey, otks []model.OneTimePreKey) error {
	userID := identity.UserID

	opts := options.Replace().SetUpsert(true)
	if _, err := s.identities.ReplaceOne(ctx, bson.M{"user_id": userID}, identity, opts); err != nil {
		return errs.DependencyUnavailable("store identity key", err)
	}

	// Mark any previous signed pre-key superseded before installing the
	// new one.
	_, err := s.signedPre.UpdateMany(ctx,
		bson.M{"user_id": userID, "key_id": bson.M{"$ne": spk.KeyID}, "superseded": false},
		bson.M{"$set": bson.M{"superseded": true}},
	)
	if err != nil {
		return errs.DependencyUnavailable("supersede signed pre-key", err)
	}

	if _, err := s.signedPre.ReplaceOne(ctx, bson.M{"user_id": userID, "key_id": spk.KeyID}, spk, opts); err != nil {
		return errs.DependencyUnavailable("store signed pre-key", err)
	}

	for i := range otks {
		k := otks[i]
		_, err := s.oneTime.UpdateOne(ctx,
			bson.M{"user_id": userID, "key_id": k.KeyID},
			bson.M{"$setOnInsert": k},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return errs.DependencyUnavailable("store one-time pre-key", err)
		}
	}

	log.Info("stored key material",
		zap.String("userID", userID),
		zap.Int("oneTimeKeys", len(otks)),
	)
	return nil
}

func (s *MongoStore) FetchKeyBundle(ctx context.Context, userID string) (*model.KeyBundle, error) {
	var identity model.IdentityKeyBundle
	err := s.identities.FindOne(ctx, bson.M{"user_id": userID}).Decode(&identity)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("no published keys for user " + userID)
	}
	if err != nil {
		return nil, errs.DependencyUnavailable("fetch identity key", err)
	}

	var spk model.SignedPreKey
	err = s.signedPre.FindOne(ctx, bson.M{"user_id": userID, "superseded": false}).Decode(&spk)
	if err != nil && err != mongo.ErrNoDocuments {
		return nil, errs.DependencyUnavailable("fetch signed pre-key", err)
	}

	bundle := &model.KeyBundle{
		UserID:      userID,
		IdentityKey: identity.PublicKey,
		SigningKey:  identity.SigningKey,
	}
	if err == nil {
		bundle.SignedPreKey = &spk
	}

	// Atomic claim: exactly one concurrent fetcher flips used on a given
	// key. An exhausted pool degrades to a bundle without a one-time key.
	var otk model.OneTimePreKey
	claimOpts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err = s.oneTime.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID, "used": false},
		bson.M{"$set": bson.M{"used": true, "claimed_at": time.Now()}},
		claimOpts,
	).Decode(&otk)
	switch {
	case err == mongo.ErrNoDocuments:
		log.Warn("one-time pre-key pool exhausted", zap.String("userID", userID))
	case err != nil:
		return nil, errs.DependencyUnavailable("claim one-time pre-key", err)
	default:
		bundle.OneTimePreKey = &otk
	}

	return bundle, nil
}

func (s *MongoStore) PrivateMaterial(ctx context.Context, userID string) (*model.IdentityKeyBundle, error) {
	var identity model.IdentityKeyBundle
	err := s.identities.FindOne(ctx, bson.M{"user_id": userID}).Decode(&identity)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("no published keys for user " + userID)
	}
	if err != nil {
		return nil, errs.DependencyUnavailable("fetch private material", err)
	}
	return &identity, nil
}

func (s *MongoStore) SignedPreKeyByID(ctx context.Context, userID string, keyID uint32) (*model.SignedPreKey, error) {
	var spk model.SignedPreKey
	err := s.signedPre.FindOne(ctx, bson.M{"user_id": userID, "key_id": keyID}).Decode(&spk)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("signed pre-key not found")
	}
	if err != nil {
		return nil, errs.DependencyUnavailable("fetch signed pre-key by id", err)
	}
	return &spk, nil
}

func (s *MongoStore) OneTimePreKeyByID(ctx context.Context, userID string, keyID uint32) (*model.OneTimePreKey, error) {
	var otk model.OneTimePreKey
	err := s.oneTime.FindOne(ctx, bson.M{"user_id": userID, "key_id": keyID}).Decode(&otk)
	if err == mongo.ErrNoDocuments {
		return nil, errs.NotFound("one-time pre-key not found")
	}
	if err != nil {
		return nil, errs.DependencyUnavailable("fetch one-time pre-key by id", err)
	}
	return &otk, nil
}

func (s *MongoStore) CountOneTimePreKeys(ctx context.Context, userID string) (int, error) {
	count, err := s.oneTime.CountDocuments(ctx, bson.M{"user_id": userID, "used": false})
	if err != nil {
		return 0, errs.DependencyUnavailable("count one-time pre-keys", err)
	}
	return int(count), nil
}
