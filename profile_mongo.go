package phoneauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProfileStore keeps one document per principal. Both verification
// fields travel in a single FindOneAndUpdate, so a reader never observes
// a verified flag pointing at the previous number.
type MongoProfileStore struct {
	collection *mongo.Collection
}

type mongoProfile struct {
	PrincipalID   string    `bson:"_id"`
	FullName      string    `bson:"full_name,omitempty"`
	Email         string    `bson:"email,omitempty"`
	PhoneNumber   string    `bson:"phone_number,omitempty"`
	PhoneVerified bool      `bson:"phone_verified"`
	Role          string    `bson:"role,omitempty"`
	ReferralCode  string    `bson:"referral_code,omitempty"`
	CreatedAt     time.Time `bson:"created_at"`
}

func NewMongoProfileStore(collection *mongo.Collection) *MongoProfileStore {
	return &MongoProfileStore{collection: collection}
}

func (s *MongoProfileStore) Get(ctx context.Context, principalID string) (*UserProfile, error) {
	var doc mongoProfile
	err := s.collection.FindOne(ctx, bson.M{"_id": principalID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return doc.toProfile(), nil
}

func (s *MongoProfileStore) Create(ctx context.Context, profile *UserProfile) error {
	if profile == nil || profile.PrincipalID == "" {
		return errors.New("profile principal id required")
	}
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now()
	}

	doc := mongoProfile{
		PrincipalID:   profile.PrincipalID,
		FullName:      profile.FullName,
		Email:         profile.Email,
		PhoneNumber:   profile.PhoneNumber,
		PhoneVerified: profile.PhoneVerified,
		Role:          string(profile.Role),
		ReferralCode:  profile.ReferralCode,
		CreatedAt:     profile.CreatedAt,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (s *MongoProfileStore) SetVerifiedPhone(ctx context.Context, principalID, phoneNumber string) (*UserProfile, error) {
	return s.updatePhone(ctx, principalID, phoneNumber, true)
}

func (s *MongoProfileStore) UpdatePhoneNumber(ctx context.Context, principalID, phoneNumber string) (*UserProfile, error) {
	return s.updatePhone(ctx, principalID, phoneNumber, false)
}

func (s *MongoProfileStore) updatePhone(ctx context.Context, principalID, phoneNumber string, verified bool) (*UserProfile, error) {
	after := options.After
	opts := options.FindOneAndUpdate().SetReturnDocument(after)

	var doc mongoProfile
	err := s.collection.FindOneAndUpdate(
		ctx,
		bson.M{"_id": principalID},
		bson.M{"$set": bson.M{
			"phone_number":   phoneNumber,
			"phone_verified": verified,
		}},
		opts,
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return doc.toProfile(), nil
}

func (s *MongoProfileStore) Delete(ctx context.Context, principalID string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": principalID}); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}

func (d *mongoProfile) toProfile() *UserProfile {
	return &UserProfile{
		PrincipalID:   d.PrincipalID,
		FullName:      d.FullName,
		Email:         d.Email,
		PhoneNumber:   d.PhoneNumber,
		PhoneVerified: d.PhoneVerified,
		Role:          Role(d.Role),
		ReferralCode:  d.ReferralCode,
		CreatedAt:     d.CreatedAt,
	}
}
